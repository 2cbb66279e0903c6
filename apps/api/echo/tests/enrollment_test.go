package tests

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"testing"

	echoapi "github.com/darasahq/darasa/apps/api/echo"
	"github.com/darasahq/darasa/core/enrollment"
	"github.com/darasahq/darasa/core/payment"
	"github.com/darasahq/darasa/core/user"
	"github.com/darasahq/darasa/services/email"
	"github.com/darasahq/darasa/tests"
)

func Test_enrollmentApi_enroll(t *testing.T) {
	testutil.ResetDB(t, db)

	tutor := testutil.CreateUser(t, usrRepo, "Teacher", "teach01", "teach@test.cd", "", []string{user.RoleTutor}, true)
	student := testutil.CreateUser(t, usrRepo, "Hero", "hero01", "hero@test.cd", "", []string{user.RoleStudent}, true)
	hybrid := testutil.CreateUser(t, usrRepo, "Hybrid", "hybrid01", "hybrid@test.cd", "", []string{user.RoleStudent, user.RoleTutor}, true)

	freeCrs := testutil.CreateCourse(t, crsRepo, tutor.ID, "Go for Beginners", "programming", 0, true)
	paidCrs := testutil.CreateCourse(t, crsRepo, tutor.ID, "Congolese Cooking", "cooking", 2500, true)
	draft := testutil.CreateCourse(t, crsRepo, tutor.ID, "Unfinished Draft", "programming", 1000, false)
	ownCrs := testutil.CreateCourse(t, crsRepo, hybrid.ID, "Hybrid Teaching", "teaching", 0, true)

	studentToken := getToken(t, student)
	enrollBody := func(courseID string) []byte {
		return marchallObj(t, enrollment.NewEnrollment{CourseID: courseID})
	}

	tests := []httpTest{
		{name: "auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "students only", token: getToken(t, tutor), body: enrollBody(freeCrs.ID),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "required fields", token: studentToken, wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"course_id": "this field is required"}),
		},
		{
			name: "course_id must be a uuid", token: studentToken, body: enrollBody("lol"),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"course_id": "course_id must be a valid version 4 UUID"}),
		},
		{
			name: "unknown course", token: studentToken, body: enrollBody("aaaaaaaa-aaaa-4aaa-8aaa-aaaaaaaaaaaa"),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "not found"}),
		},
		{
			name: "unpublished course", token: studentToken, body: enrollBody(draft.ID),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "not found"}),
		},
		{
			name: "own course", token: getToken(t, hybrid), body: enrollBody(ownCrs.ID),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "tutors cannot enroll in their own course"}),
		},
		{name: "free course activates immediately", token: studentToken, body: enrollBody(freeCrs.ID), wantCode: http.StatusCreated},
		{
			name: "already enrolled", token: studentToken, body: enrollBody(freeCrs.ID),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "already enrolled in this course"}),
		},
		{name: "paid course awaits payment", token: studentToken, body: enrollBody(paidCrs.ID), wantCode: http.StatusCreated},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/enrollments"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)

			if tt.wantCode == http.StatusCreated {
				if rec.Code != tt.wantCode {
					t.Fatalf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
				}
				var resp echoapi.EnrollmentResponse
				if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
					t.Fatalf("json.Unmarshal() failed! err %v", err)
				}
				if resp.StudentID != student.ID {
					t.Errorf("failed! student_id = %q; want %q", resp.StudentID, student.ID)
				}

				switch tt.name {
				case "free course activates immediately":
					if resp.Status != enrollment.StatusActive {
						t.Errorf("failed! status = %q; want %q", resp.Status, enrollment.StatusActive)
					}
					if resp.EnrolledAt.IsZero() {
						t.Error("failed! enrolled_at is not set")
					}
					if resp.Payment != nil {
						t.Error("failed! free enrollment carries a payment")
					}
				case "paid course awaits payment":
					if resp.Status != enrollment.StatusPendingPayment {
						t.Errorf("failed! status = %q; want %q", resp.Status, enrollment.StatusPendingPayment)
					}
					if resp.Payment == nil {
						t.Fatal("failed! paid enrollment carries no payment")
					}
					if resp.Payment.Status != payment.StatusPending {
						t.Errorf("failed! payment status = %q; want %q", resp.Payment.Status, payment.StatusPending)
					}
					if resp.Payment.AmountCents != paidCrs.PriceCents {
						t.Errorf("failed! amount_cents = %d; want %d", resp.Payment.AmountCents, paidCrs.PriceCents)
					}
					if resp.Payment.ClientSecret == "" {
						t.Error("failed! empty client_secret")
					}
					if !strings.HasPrefix(resp.Payment.IntentID, "pi_") {
						t.Errorf("failed! intent_id = %q; want %q prefix", resp.Payment.IntentID, "pi_")
					}
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_enrollmentApi_query(t *testing.T) {
	testutil.ResetDB(t, db)

	tutor := testutil.CreateUser(t, usrRepo, "Teacher", "teach01", "teach@test.cd", "", []string{user.RoleTutor}, true)
	hero := testutil.CreateUser(t, usrRepo, "Hero", "hero01", "hero@test.cd", "", []string{user.RoleStudent}, true)
	other := testutil.CreateUser(t, usrRepo, "Other", "other01", "other@test.cd", "", []string{user.RoleStudent}, true)
	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin01", "admin@test.cd", "", []string{user.RoleAdmin}, true)

	crs := testutil.CreateCourse(t, crsRepo, tutor.ID, "Go for Beginners", "programming", 0, true)
	cookingCrs := testutil.CreateCourse(t, crsRepo, tutor.ID, "Congolese Cooking", "cooking", 2500, true)

	heroEnr := testutil.CreateEnrollment(t, enrRepo, hero.ID, crs.ID, enrollment.StatusActive)
	heroPending := testutil.CreateEnrollment(t, enrRepo, hero.ID, cookingCrs.ID, enrollment.StatusPendingPayment)
	otherEnr := testutil.CreateEnrollment(t, enrRepo, other.ID, crs.ID, enrollment.StatusCompleted)

	statusPath := "/v1/enrollments?" + url.Values{"status": []string{enrollment.StatusActive}}.Encode()

	tests := []httpTest{
		{name: "auth required", path: "/v1/enrollments", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "students see their own", path: "/v1/enrollments", token: getToken(t, hero), wantCode: http.StatusOK, wantData: marchallList(t, heroPending, heroEnr)},
		{name: "admin sees all", path: "/v1/enrollments", token: getToken(t, admin), wantCode: http.StatusOK, wantData: marchallList(t, otherEnr, heroPending, heroEnr)},
		{name: "status filter", path: statusPath, token: getToken(t, hero), wantCode: http.StatusOK, wantData: marchallList(t, heroEnr)},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	t.Run("detail is hidden from other students", func(t *testing.T) {
		tt := httpTest{wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "not found"})}
		req, rec := newAuthRequest(http.MethodGet, "/v1/enrollments/"+heroEnr.ID, getToken(t, other))
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, tt, rec)
	})

	t.Run("detail", func(t *testing.T) {
		tt := httpTest{wantCode: http.StatusOK, wantData: marchallObj(t, heroEnr)}
		req, rec := newAuthRequest(http.MethodGet, "/v1/enrollments/"+heroEnr.ID, getToken(t, hero))
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, tt, rec)
	})

	t.Run("admin reads any detail", func(t *testing.T) {
		tt := httpTest{wantCode: http.StatusOK, wantData: marchallObj(t, heroEnr)}
		req, rec := newAuthRequest(http.MethodGet, "/v1/enrollments/"+heroEnr.ID, getToken(t, admin))
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, tt, rec)
	})
}

func Test_enrollmentApi_completionFlow(t *testing.T) {
	testutil.ResetDB(t, db)
	emailsvc.ClearSentMessages()

	tutor := testutil.CreateUser(t, usrRepo, "Teacher", "teach01", "teach@test.cd", "", []string{user.RoleTutor}, true)
	student := testutil.CreateUser(t, usrRepo, "Hero", "hero01", "hero@test.cd", "", []string{user.RoleStudent}, true)
	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin01", "admin@test.cd", "", []string{user.RoleAdmin}, true)

	crs := testutil.CreateCourse(t, crsRepo, tutor.ID, "Go for Beginners", "programming", 0, true)
	first := testutil.CreateLesson(t, crsRepo, crs.ID, "Hello World", 1)
	second := testutil.CreateLesson(t, crsRepo, crs.ID, "Variables", 2)

	enr := testutil.CreateEnrollment(t, enrRepo, student.ID, crs.ID, enrollment.StatusActive)
	pending := testutil.CreateEnrollment(t, enrRepo, admin.ID, crs.ID, enrollment.StatusPendingPayment)

	studentToken := getToken(t, student)
	completePath := func(enrID, lsnID string) string {
		return "/v1/enrollments/" + enrID + "/lessons/" + lsnID + "/complete"
	}

	completeLesson := func(t *testing.T, lsnID string) enrollment.Enrollment {
		t.Helper()
		req, rec := newAuthRequest(http.MethodPost, completePath(enr.ID, lsnID), studentToken)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; wantCode %v; body %s", rec.Code, http.StatusOK, rec.Body.String())
		}
		var updated enrollment.Enrollment
		if err := json.Unmarshal(rec.Body.Bytes(), &updated); err != nil {
			t.Fatalf("json.Unmarshal() failed! err %v", err)
		}
		return updated
	}

	t.Run("only the enrolled student makes progress", func(t *testing.T) {
		tt := httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"})}
		req, rec := newAuthRequest(http.MethodPost, completePath(enr.ID, first.ID), getToken(t, admin))
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, tt, rec)
	})

	t.Run("enrollment must be active", func(t *testing.T) {
		tt := httpTest{wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "enrollment is not active"})}
		req, rec := newAuthRequest(http.MethodPost, completePath(pending.ID, first.ID), getToken(t, admin))
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, tt, rec)
	})

	t.Run("unknown lesson", func(t *testing.T) {
		tt := httpTest{wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "not found"})}
		req, rec := newAuthRequest(http.MethodPost, completePath(enr.ID, "lol"), studentToken)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, tt, rec)
	})

	t.Run("certificate before completion", func(t *testing.T) {
		tt := httpTest{wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "course is not completed yet"})}
		req, rec := newAuthRequest(http.MethodGet, "/v1/enrollments/"+enr.ID+"/certificate", studentToken)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, tt, rec)
	})

	t.Run("first lesson is half the course", func(t *testing.T) {
		updated := completeLesson(t, first.ID)
		if updated.ProgressPercent != 50 {
			t.Errorf("failed! progress_percent = %d; want 50", updated.ProgressPercent)
		}
		if updated.Status != enrollment.StatusActive {
			t.Errorf("failed! status = %q; want %q", updated.Status, enrollment.StatusActive)
		}
	})

	t.Run("re-completing a lesson is a no-op", func(t *testing.T) {
		updated := completeLesson(t, first.ID)
		if updated.ProgressPercent != 50 {
			t.Errorf("failed! progress_percent = %d; want 50", updated.ProgressPercent)
		}
	})

	t.Run("last lesson completes the enrollment", func(t *testing.T) {
		updated := completeLesson(t, second.ID)
		if updated.ProgressPercent != 100 {
			t.Errorf("failed! progress_percent = %d; want 100", updated.ProgressPercent)
		}
		if updated.Status != enrollment.StatusCompleted {
			t.Errorf("failed! status = %q; want %q", updated.Status, enrollment.StatusCompleted)
		}
		if updated.CompletedAt.IsZero() {
			t.Error("failed! completed_at is not set")
		}

		if len(emailsvc.SentMessages) != 1 {
			t.Fatalf("failed! len(SentMessages) = %d; want 1", len(emailsvc.SentMessages))
		}
		wantSubject := "Congratulations, you completed " + crs.Title
		if subject := emailsvc.SentMessages[0].Subject; subject != wantSubject {
			t.Errorf("failed! subject = %q; want %q", subject, wantSubject)
		}
	})

	t.Run("progress listing", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/enrollments/"+enr.ID+"/progress", studentToken)
		app.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; wantCode %v; body %s", rec.Code, http.StatusOK, rec.Body.String())
		}
		var progress []enrollment.LessonProgress
		if err := json.Unmarshal(rec.Body.Bytes(), &progress); err != nil {
			t.Fatalf("json.Unmarshal() failed! err %v", err)
		}
		if len(progress) != 2 {
			t.Fatalf("failed! len(progress) = %d; want 2", len(progress))
		}
		for _, lp := range progress {
			if lp.EnrollmentID != enr.ID {
				t.Errorf("failed! enrollment_id = %q; want %q", lp.EnrollmentID, enr.ID)
			}
			if lp.CompletedAt.IsZero() {
				t.Error("failed! completed_at is not set")
			}
		}
	})

	var serial string
	t.Run("certificate", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/enrollments/"+enr.ID+"/certificate", studentToken)
		app.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; wantCode %v; body %s", rec.Code, http.StatusOK, rec.Body.String())
		}
		var cert enrollment.Certificate
		if err := json.Unmarshal(rec.Body.Bytes(), &cert); err != nil {
			t.Fatalf("json.Unmarshal() failed! err %v", err)
		}
		if cert.EnrollmentID != enr.ID {
			t.Errorf("failed! enrollment_id = %q; want %q", cert.EnrollmentID, enr.ID)
		}
		if !strings.HasPrefix(cert.Serial, "DRS-") {
			t.Errorf("failed! serial = %q; want %q prefix", cert.Serial, "DRS-")
		}
		serial = cert.Serial
	})

	t.Run("public certificate verification", func(t *testing.T) {
		req, rec := newRequest(http.MethodGet, "/v1/certificates/verify?serial="+url.QueryEscape(serial))
		app.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; wantCode %v; body %s", rec.Code, http.StatusOK, rec.Body.String())
		}
		var cert enrollment.Certificate
		if err := json.Unmarshal(rec.Body.Bytes(), &cert); err != nil {
			t.Fatalf("json.Unmarshal() failed! err %v", err)
		}
		if cert.Serial != serial {
			t.Errorf("failed! serial = %q; want %q", cert.Serial, serial)
		}
	})

	t.Run("verification requires a serial", func(t *testing.T) {
		tt := httpTest{wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"serial": "this field is required"})}
		req, rec := newRequest(http.MethodGet, "/v1/certificates/verify")
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, tt, rec)
	})

	t.Run("verification rejects unknown serials", func(t *testing.T) {
		tt := httpTest{wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "not found"})}
		req, rec := newRequest(http.MethodGet, "/v1/certificates/verify?serial=DRS-DEADBEEF-AAAAAAAAAA")
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, tt, rec)
	})
}

func Test_enrollmentApi_cancel(t *testing.T) {
	testutil.ResetDB(t, db)

	tutor := testutil.CreateUser(t, usrRepo, "Teacher", "teach01", "teach@test.cd", "", []string{user.RoleTutor}, true)
	student := testutil.CreateUser(t, usrRepo, "Hero", "hero01", "hero@test.cd", "", []string{user.RoleStudent}, true)

	crs := testutil.CreateCourse(t, crsRepo, tutor.ID, "Go for Beginners", "programming", 0, true)
	cookingCrs := testutil.CreateCourse(t, crsRepo, tutor.ID, "Congolese Cooking", "cooking", 2500, true)

	active := testutil.CreateEnrollment(t, enrRepo, student.ID, crs.ID, enrollment.StatusActive)
	completed := testutil.CreateEnrollment(t, enrRepo, student.ID, cookingCrs.ID, enrollment.StatusCompleted)

	studentToken := getToken(t, student)

	cancel := func(t *testing.T, enrID string) *http.Response {
		t.Helper()
		req, rec := newAuthRequest(http.MethodDelete, "/v1/enrollments/"+enrID, studentToken)
		app.ServeHTTP(rec, req)
		return rec.Result()
	}

	t.Run("a completed enrollment stays", func(t *testing.T) {
		tt := httpTest{wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "a completed enrollment cannot be cancelled"})}
		req, rec := newAuthRequest(http.MethodDelete, "/v1/enrollments/"+completed.ID, studentToken)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, tt, rec)
	})

	t.Run("cancel", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, "/v1/enrollments/"+active.ID, studentToken)
		app.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; wantCode %v; body %s", rec.Code, http.StatusOK, rec.Body.String())
		}
		var enr enrollment.Enrollment
		if err := json.Unmarshal(rec.Body.Bytes(), &enr); err != nil {
			t.Fatalf("json.Unmarshal() failed! err %v", err)
		}
		if enr.Status != enrollment.StatusCancelled {
			t.Errorf("failed! status = %q; want %q", enr.Status, enrollment.StatusCancelled)
		}
	})

	t.Run("cancelling twice is a no-op", func(t *testing.T) {
		resp := cancel(t, active.ID)
		if resp.StatusCode != http.StatusOK {
			t.Errorf("failed! code = %v; wantCode %v", resp.StatusCode, http.StatusOK)
		}
	})

	t.Run("a cancelled enrollment can be retaken", func(t *testing.T) {
		body := marchallObj(t, enrollment.NewEnrollment{CourseID: crs.ID})
		req, rec := newAuthRequest(http.MethodPost, "/v1/enrollments", studentToken, body)
		app.ServeHTTP(rec, req)

		if rec.Code != http.StatusCreated {
			t.Fatalf("failed! code = %v; wantCode %v; body %s", rec.Code, http.StatusCreated, rec.Body.String())
		}
	})
}
