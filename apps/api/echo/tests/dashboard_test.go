package tests

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	echoapi "github.com/darasahq/darasa/apps/api/echo"
	"github.com/darasahq/darasa/core/enrollment"
	"github.com/darasahq/darasa/core/payment"
	"github.com/darasahq/darasa/core/user"
	"github.com/darasahq/darasa/tests"
)

func Test_dashboardApi_roleGates(t *testing.T) {
	testutil.ResetDB(t, db)

	student := testutil.CreateUser(t, usrRepo, "Hero", "hero01", "hero@test.cd", "", []string{user.RoleStudent}, true)
	tutor := testutil.CreateUser(t, usrRepo, "Teacher", "teach01", "teach@test.cd", "", []string{user.RoleTutor}, true)

	errForbidden := marchallObj(t, httpErr{Error: "permission denied"})

	tests := []httpTest{
		{name: "auth required", path: "/v1/dashboard/student", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "student board is for students", path: "/v1/dashboard/student", token: getToken(t, tutor), wantCode: http.StatusForbidden, wantData: errForbidden},
		{name: "tutor board is for tutors", path: "/v1/dashboard/tutor", token: getToken(t, student), wantCode: http.StatusForbidden, wantData: errForbidden},
		{name: "admin board is for admins", path: "/v1/dashboard/admin", token: getToken(t, tutor), wantCode: http.StatusForbidden, wantData: errForbidden},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_dashboardApi_student(t *testing.T) {
	testutil.ResetDB(t, db)

	tutor := testutil.CreateUser(t, usrRepo, "Teacher", "teach01", "teach@test.cd", "", []string{user.RoleTutor}, true)
	hero := testutil.CreateUser(t, usrRepo, "Hero", "hero01", "hero@test.cd", "", []string{user.RoleStudent}, true)

	goCrs := testutil.CreateCourse(t, crsRepo, tutor.ID, "Go for Beginners", "programming", 0, true)
	cookingCrs := testutil.CreateCourse(t, crsRepo, tutor.ID, "Congolese Cooking", "cooking", 2500, true)

	active := testutil.CreateEnrollment(t, enrRepo, hero.ID, goCrs.ID, enrollment.StatusActive)
	completed := testutil.CreateEnrollment(t, enrRepo, hero.ID, cookingCrs.ID, enrollment.StatusCompleted)

	cert, err := enrRepo.CreateCertificate(context.Background(), enrollment.Certificate{
		EnrollmentID: completed.ID,
		Serial:       enrollment.MakeSerial(completed.ID, conf),
		IssuedAt:     time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateCertificate() failed: %v", err)
	}

	req, rec := newAuthRequest(http.MethodGet, "/v1/dashboard/student", getToken(t, hero))
	app.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("failed! code = %v; wantCode %v; body %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	var dash echoapi.StudentDashboard
	if err := json.Unmarshal(rec.Body.Bytes(), &dash); err != nil {
		t.Fatalf("json.Unmarshal() failed! err %v", err)
	}

	if len(dash.Enrollments) != 2 {
		t.Fatalf("failed! len(enrollments) = %d; want 2", len(dash.Enrollments))
	}
	if dash.InProgress != 1 {
		t.Errorf("failed! in_progress = %d; want 1", dash.InProgress)
	}
	if dash.Completed != 1 {
		t.Errorf("failed! completed = %d; want 1", dash.Completed)
	}
	if len(dash.Certificates) != 1 || dash.Certificates[0].Serial != cert.Serial {
		t.Errorf("failed! certificates = %v; want [%v]", dash.Certificates, cert)
	}
	for _, enr := range dash.Enrollments {
		if enr.Course == nil {
			t.Errorf("failed! enrollment %s has no course snippet", enr.ID)
			continue
		}
		if enr.ID == active.ID && enr.Course.ID != goCrs.ID {
			t.Errorf("failed! course.id = %q; want %q", enr.Course.ID, goCrs.ID)
		}
		if len(enr.Course.Lessons) > 0 {
			t.Error("failed! course snippet carries lessons")
		}
	}
}

func Test_dashboardApi_tutor(t *testing.T) {
	testutil.ResetDB(t, db)

	tutor := testutil.CreateUser(t, usrRepo, "Teacher", "teach01", "teach@test.cd", "", []string{user.RoleTutor}, true)
	rival := testutil.CreateUser(t, usrRepo, "Rival", "rival01", "rival@test.cd", "", []string{user.RoleTutor}, true)
	hero := testutil.CreateUser(t, usrRepo, "Hero", "hero01", "hero@test.cd", "", []string{user.RoleStudent}, true)
	other := testutil.CreateUser(t, usrRepo, "Other", "other01", "other@test.cd", "", []string{user.RoleStudent}, true)

	crs := testutil.CreateCourse(t, crsRepo, tutor.ID, "Congolese Cooking", "cooking", 2500, true)
	testutil.CreateCourse(t, crsRepo, rival.ID, "Rival Ramen", "cooking", 2000, true)

	heroEnr := testutil.CreateEnrollment(t, enrRepo, hero.ID, crs.ID, enrollment.StatusCompleted)
	testutil.CreateEnrollment(t, enrRepo, other.ID, crs.ID, enrollment.StatusActive)
	testutil.CreateReview(t, revRepo, heroEnr, 4, "Tasty")
	testutil.CreatePayment(t, pmtRepo, heroEnr, crs.PriceCents, payment.StatusSucceeded, "pi_hero")

	req, rec := newAuthRequest(http.MethodGet, "/v1/dashboard/tutor", getToken(t, tutor))
	app.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("failed! code = %v; wantCode %v; body %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	var dash echoapi.TutorDashboard
	if err := json.Unmarshal(rec.Body.Bytes(), &dash); err != nil {
		t.Fatalf("json.Unmarshal() failed! err %v", err)
	}

	if len(dash.Courses) != 1 {
		t.Fatalf("failed! len(courses) = %d; want 1", len(dash.Courses))
	}
	st := dash.Courses[0]
	if st.CourseID != crs.ID {
		t.Errorf("failed! course_id = %q; want %q", st.CourseID, crs.ID)
	}
	if st.EnrollmentCount != 2 {
		t.Errorf("failed! enrollment_count = %d; want 2", st.EnrollmentCount)
	}
	if st.CompletedCount != 1 {
		t.Errorf("failed! completed_count = %d; want 1", st.CompletedCount)
	}
	if st.RatingCount != 1 {
		t.Errorf("failed! rating_count = %d; want 1", st.RatingCount)
	}
	if st.RatingAvg != 4 {
		t.Errorf("failed! rating_avg = %v; want 4", st.RatingAvg)
	}
	if st.EarningsCents != crs.PriceCents {
		t.Errorf("failed! earnings_cents = %d; want %d", st.EarningsCents, crs.PriceCents)
	}
}

func Test_dashboardApi_admin(t *testing.T) {
	testutil.ResetDB(t, db)

	tutor := testutil.CreateUser(t, usrRepo, "Teacher", "teach01", "teach@test.cd", "", []string{user.RoleTutor}, true)
	hero := testutil.CreateUser(t, usrRepo, "Hero", "hero01", "hero@test.cd", "", []string{user.RoleStudent}, true)
	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin01", "admin@test.cd", "", []string{user.RoleAdmin}, true)
	for i, uname := range []string{"extra001", "extra002", "extra003"} {
		testutil.CreateUser(t, usrRepo, "Extra", uname, uname+"@test.cd", "", []string{user.RoleStudent}, true,
			time.Now().Add(time.Duration(i+1)*time.Hour))
	}

	crs := testutil.CreateCourse(t, crsRepo, tutor.ID, "Congolese Cooking", "cooking", 2500, true)
	enr := testutil.CreateEnrollment(t, enrRepo, hero.ID, crs.ID, enrollment.StatusActive)
	testutil.CreateReview(t, revRepo, enr, 5, "Tasty")
	testutil.CreatePayment(t, pmtRepo, enr, crs.PriceCents, payment.StatusSucceeded, "pi_hero")
	testutil.CreatePayment(t, pmtRepo, enr, 1000, payment.StatusFailed, "pi_failed")

	req, rec := newAuthRequest(http.MethodGet, "/v1/dashboard/admin", getToken(t, admin))
	app.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("failed! code = %v; wantCode %v; body %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	var dash echoapi.AdminDashboard
	if err := json.Unmarshal(rec.Body.Bytes(), &dash); err != nil {
		t.Fatalf("json.Unmarshal() failed! err %v", err)
	}

	if dash.Users != 6 {
		t.Errorf("failed! users = %d; want 6", dash.Users)
	}
	if dash.Courses != 1 {
		t.Errorf("failed! courses = %d; want 1", dash.Courses)
	}
	if dash.Enrollments != 1 {
		t.Errorf("failed! enrollments = %d; want 1", dash.Enrollments)
	}
	if dash.Reviews != 1 {
		t.Errorf("failed! reviews = %d; want 1", dash.Reviews)
	}
	if dash.Payments != 2 {
		t.Errorf("failed! payments = %d; want 2", dash.Payments)
	}
	// only succeeded payments count towards revenue
	if dash.RevenueCents != crs.PriceCents {
		t.Errorf("failed! revenue_cents = %d; want %d", dash.RevenueCents, crs.PriceCents)
	}
	if len(dash.RecentSignups) != 5 {
		t.Fatalf("failed! len(recent_signups) = %d; want 5", len(dash.RecentSignups))
	}
	// newest first
	if dash.RecentSignups[0].Username != "extra003" {
		t.Errorf("failed! recent_signups[0].username = %q; want %q", dash.RecentSignups[0].Username, "extra003")
	}
}
