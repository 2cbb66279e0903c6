package tests

import (
	"fmt"
	"io/ioutil"
	"log"
	"os"
	"testing"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	. "github.com/darasahq/darasa/apps/api/echo"
	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/core/course"
	"github.com/darasahq/darasa/core/enrollment"
	"github.com/darasahq/darasa/core/payment"
	"github.com/darasahq/darasa/core/review"
	"github.com/darasahq/darasa/core/user"
	"github.com/darasahq/darasa/services/email"
	"github.com/darasahq/darasa/services/logger"
	"github.com/darasahq/darasa/services/payment"
	"github.com/darasahq/darasa/storage/database/dummy"
)

var (
	conf *core.Config
	db   *dummydb.DB
	app  *Server

	usrRepo user.Repository
	crsRepo course.Repository
	enrRepo enrollment.Repository
	revRepo review.Repository
	pmtRepo payment.Repository

	gateway = paymentsvc.NewDummyGateway()

	errMissingToken = httpErr{Error: "missing or malformed jwt"}
)

func TestMain(m *testing.M) {
	conf = core.NewTestConfig()

	// set up DB & repos
	var err error
	if db, err = dummydb.Open(); err != nil {
		fmt.Printf("dummydb.Open(): %v", err)
		os.Exit(1)
	}
	usrRepo = dummydb.NewUserRepository(db)
	crsRepo = dummydb.NewCourseRepository(db)
	enrRepo = dummydb.NewEnrollmentRepository(db)
	revRepo = dummydb.NewReviewRepository(db)
	pmtRepo = dummydb.NewPaymentRepository(db)

	// set up services
	logger := logsvc.NewRollbarLogger(log.New(ioutil.Discard, "TEST : ", log.LstdFlags), conf)
	logger.Enable(false)

	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	usrSvc := user.NewServiceMock(usrRepo, mailSvc, conf)
	crsSvc := course.NewService(db, crsRepo)
	enrSvc := enrollment.NewService(db, enrRepo, crsSvc, mailSvc, conf)
	revSvc := review.NewService(revRepo, enrSvc)
	pmtSvc := payment.NewService(db, pmtRepo, enrRepo, usrSvc, crsSvc, gateway, mailSvc, conf)

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	core.ParseEmailTemplates(conf, logger)
	user.LoadCommonPasswords(logger)

	// set up server
	app = NewServer(
		ServerDeps{
			Conf:       conf,
			Logger:     logger,
			UserSvc:    usrSvc,
			CourseSvc:  crsSvc,
			EnrollSvc:  enrSvc,
			ReviewSvc:  revSvc,
			PaymentSvc: pmtSvc,
			Validate:   validate,
			Translator: translator,
		},
	)

	os.Exit(m.Run())
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}
