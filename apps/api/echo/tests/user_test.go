package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/mail"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"

	echoapi "github.com/darasahq/darasa/apps/api/echo"
	"github.com/darasahq/darasa/core/user"
	"github.com/darasahq/darasa/services/email"
	"github.com/darasahq/darasa/tests"
)

func Test_userApi_signup(t *testing.T) {
	testutil.ResetDB(t, db)
	emailsvc.ClearSentMessages()

	testutil.CreateUser(t, usrRepo, "Taken", "takenuser", "taken@test.cd", "", nil, true)

	reqMsg := "this field is required"
	unameOrEmailMsg := "one of username or email is required"

	tests := []httpTest{
		{
			name: "required fields", wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{
				"name":             reqMsg,
				"username":         unameOrEmailMsg,
				"email":            unameOrEmailMsg,
				"password":         "password must contain at least 8 characters",
				"password_confirm": reqMsg,
			}),
		},
		{
			name:     "password confirmation mismatch",
			body:     marchallObj(t, map[string]interface{}{"name": "John Doe", "username": "johndoe1", "password": "LolC@t123", "password_confirm": "lol"}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"password_confirm": "password_confirm must be equal to Password"}),
		},
		{
			name:     "password too common",
			body:     marchallObj(t, map[string]interface{}{"name": "John Doe", "username": "johndoe1", "password": "P@$$w0rd", "password_confirm": "P@$$w0rd"}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"password": "password is too common"}),
		},
		{
			name:     "username taken",
			body:     marchallObj(t, map[string]interface{}{"name": "John Doe", "username": "takenuser", "password": "LolC@t123", "password_confirm": "LolC@t123"}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"username": "a user with this username already exists"}),
		},
		{
			name:     "signup ok; always a student",
			body:     marchallObj(t, map[string]interface{}{"name": "John Doe", "username": "johndoe1", "email": "john@test.cd", "roles": user.AdminRoles, "password": "LolC@t123", "password_confirm": "LolC@t123"}),
			wantCode: http.StatusCreated,
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/users/signup"

		t.Run(tt.name, func(t *testing.T) {
			emailsvc.ClearSentMessages()

			req, rec := newRequest(tt.method, tt.path, tt.body)
			app.ServeHTTP(rec, req)

			if tt.wantCode == http.StatusCreated {
				if rec.Code != tt.wantCode {
					t.Fatalf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
				}
				var usr user.User
				if err := json.Unmarshal(rec.Body.Bytes(), &usr); err != nil {
					t.Fatalf("json.Unmarshal() failed! err %v", err)
				}
				if usr.ID == "" {
					t.Error("failed! empty user ID")
				}
				if !usr.Active() {
					t.Error("failed! new user is not active")
				}
				if len(usr.Roles) != 1 || usr.Roles[0] != user.RoleStudent {
					t.Errorf("failed! roles = %v; want [%s]", usr.Roles, user.RoleStudent)
				}
				if len(emailsvc.SentMessages) != 1 {
					t.Fatalf("failed! len(SentMessages) = %d; want 1", len(emailsvc.SentMessages))
				}
				if !strings.Contains(emailsvc.SentMessages[0].Subject, "Welcome") {
					t.Errorf("failed! unexpected welcome email subject %q", emailsvc.SentMessages[0].Subject)
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_login(t *testing.T) {
	testutil.ResetDB(t, db)

	student := testutil.CreateUser(t, usrRepo, "Hero", "hero01", "hero@test.cd", "LolC@t123", []string{user.RoleStudent}, true)
	testutil.CreateUser(t, usrRepo, "N Dog", "ndog01", "ndog@test.cd", "LolC@t123", []string{user.RoleStudent}, false)

	reqMsg := "this field is required"
	tests := []httpTest{
		{
			name: "required fields", wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"username": reqMsg, "password": reqMsg}),
		},
		{
			name:     "unknown user",
			body:     marchallObj(t, echoapi.LoginRequest{Username: "lol", Password: "lol"}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name:     "wrong password",
			body:     marchallObj(t, echoapi.LoginRequest{Username: student.Username, Password: "lol"}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name:     "inactive account",
			body:     marchallObj(t, echoapi.LoginRequest{Username: "ndog01", Password: "LolC@t123"}),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
		{
			name:     "login with username",
			body:     marchallObj(t, echoapi.LoginRequest{Username: student.Username, Password: "LolC@t123"}),
			wantCode: http.StatusOK,
		},
		{
			name:     "login with email",
			body:     marchallObj(t, echoapi.LoginRequest{Username: student.Email, Password: "LolC@t123"}),
			wantCode: http.StatusOK,
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/users/login"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(tt.method, tt.path, tt.body)
			app.ServeHTTP(rec, req)

			if tt.wantCode == http.StatusOK {
				if rec.Code != tt.wantCode {
					t.Fatalf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
				}
				var respData echoapi.LoginResponse
				if err := json.Unmarshal(rec.Body.Bytes(), &respData); err != nil {
					t.Errorf("json.Unmarshal() failed! err %v", err)
				}
				if respData.Token == "" {
					t.Error("failed! empty token")
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_userQuery(t *testing.T) {
	testutil.ResetDB(t, db)

	path := func(search string, isActive *bool, roles ...string) string {
		v := make(url.Values)
		if search != "" {
			v.Add("search", search)
		}
		if isActive != nil {
			v.Add("is_active", strconv.FormatBool(*isActive))
		}
		for _, r := range roles {
			v.Add("role", r)
		}
		return "/v1/users?" + v.Encode()
	}
	bPtr := func(b bool) *bool { return &b }

	now := time.Now()
	t1 := now.Add(1 * time.Hour)
	t2 := now.Add(2 * time.Hour)

	student := testutil.CreateUser(t, usrRepo, "Hero", "hero01", "hero@test.cd", "", []string{user.RoleStudent}, true)
	tutor := testutil.CreateUser(t, usrRepo, "Teacher", "teach01", "teach@test.cd", "", []string{user.RoleTutor}, true, t1)
	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin01", "admin@test.cd", "", []string{user.RoleAdmin}, true, t2)
	naughty := testutil.CreateUser(t, usrRepo, "N Dog", "ndog01", "ndog@test.cd", "", []string{user.RoleStudent}, false)

	adminToken := getToken(t, admin)
	empty := marchallList(t, []interface{}{}...)

	tests := []httpTest{
		{name: "auth required", path: "/v1/users", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "admin required", path: "/v1/users", token: getToken(t, student), wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{name: "get all", path: "/v1/users", token: adminToken, wantData: marchallList(t, admin, tutor, naughty, student)},
		{name: "search (unknown)", path: path("lol", nil), token: adminToken, wantData: empty},
		{name: "search=hero", path: path("hero", nil), token: adminToken, wantData: marchallList(t, student)},
		{name: "role=tutor:", path: path("", nil, user.RoleTutor), token: adminToken, wantData: marchallList(t, tutor)},
		{name: "role=admin:,tutor:", path: path("", nil, user.RoleAdmin, user.RoleTutor), token: adminToken, wantData: marchallList(t, admin, tutor)},
		{name: "is_active=false", path: path("", bPtr(false)), token: adminToken, wantData: marchallList(t, naughty)},
		{name: "is_active=true", path: path("", bPtr(true)), token: adminToken, wantData: marchallList(t, admin, tutor, student)},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet
		if tt.wantCode == 0 {
			tt.wantCode = http.StatusOK
		}

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_refreshToken(t *testing.T) {
	testutil.ResetDB(t, db)

	naughty := testutil.CreateUser(t, usrRepo, "N Dog", "ndog01", "ndog@test.cd", "", []string{user.RoleStudent}, false)
	student := testutil.CreateUser(t, usrRepo, "Hero", "hero01", "hero@test.cd", "", []string{user.RoleStudent}, true)

	now := time.Now()
	unrefreshableClaims := &echoapi.Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			Subject:   student.ID,
			Audience:  "Marketplace",
			ExpiresAt: now.Add(conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		OrigIssuedAt: now.Add(-2 * conf.Server.JWTRefreshExpirationDelta).Unix(), // older than threshold
		Username:     student.Username,
		Email:        student.Email,
		IsStudent:    student.IsStudent(),
		Roles:        student.Roles,
	}
	unrefreshableToken, err := echoapi.GenerateToken(unrefreshableClaims)
	if err != nil {
		t.Fatalf("GenerateToken(): %v", err)
	}

	tests := []httpTest{
		{name: "auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "inactive user not allowed", token: getToken(t, naughty), wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account deactivated"})},
		{name: "refresh period expired", token: unrefreshableToken, wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "refresh has expired"})},
		{name: "token refreshed", token: getToken(t, student), wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/users/token-refresh"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)

			// cannot guess the new token.. just check that it's not empty
			if tt.wantCode == http.StatusOK {
				if rec.Code != tt.wantCode {
					t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
				}
				var respData echoapi.LoginResponse
				if err := json.Unmarshal(rec.Body.Bytes(), &respData); err != nil {
					t.Errorf("json.Unmarshal() failed! err %v", err)
				}
				if respData.Token == "" {
					t.Error("failed! empty token")
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_userDetail(t *testing.T) {
	testutil.ResetDB(t, db)

	student := testutil.CreateUser(t, usrRepo, "Hero", "hero01", "hero@test.cd", "", []string{user.RoleStudent}, true)
	other := testutil.CreateUser(t, usrRepo, "Other", "other01", "other@test.cd", "", []string{user.RoleStudent}, true)
	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin01", "admin@test.cd", "", []string{user.RoleAdmin}, true)

	studentToken := getToken(t, student)
	adminToken := getToken(t, admin)

	tests := []httpTest{
		{name: "auth required", method: http.MethodGet, path: "/v1/users/" + student.ID, wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "others are hidden", method: http.MethodGet, path: "/v1/users/" + other.ID, token: studentToken,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "not found"}),
		},
		{name: "own profile", method: http.MethodGet, path: "/v1/users/" + student.ID, token: studentToken, wantCode: http.StatusOK, wantData: marchallObj(t, student)},
		{name: "admin reads anyone", method: http.MethodGet, path: "/v1/users/" + other.ID, token: adminToken, wantCode: http.StatusOK, wantData: marchallObj(t, other)},
		{
			name: "self role escalation forbidden", method: http.MethodPut, path: "/v1/users/" + student.ID, token: studentToken,
			body:     marchallObj(t, map[string]interface{}{"roles": user.AdminRoles}),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "admin cannot escalate beyond own roles", method: http.MethodPut, path: "/v1/users/" + other.ID, token: adminToken,
			body:     marchallObj(t, map[string]interface{}{"roles": []string{user.RoleAdminOwner}}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"roles": "not enough rights to set these roles"}),
		},
		{
			name: "self delete forbidden", method: http.MethodDelete, path: "/v1/users/" + admin.ID, token: adminToken,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "delete requires admin", method: http.MethodDelete, path: "/v1/users/" + student.ID, token: studentToken,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	t.Run("update own name", func(t *testing.T) {
		body := marchallObj(t, map[string]interface{}{"name": "Hero Renamed"})
		req, rec := newAuthRequest(http.MethodPut, "/v1/users/"+student.ID, studentToken, body)
		app.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; wantCode %v; body %s", rec.Code, http.StatusOK, rec.Body.String())
		}
		var usr user.User
		if err := json.Unmarshal(rec.Body.Bytes(), &usr); err != nil {
			t.Fatalf("json.Unmarshal() failed! err %v", err)
		}
		if usr.Name != "Hero Renamed" {
			t.Errorf("failed! name = %q; want %q", usr.Name, "Hero Renamed")
		}
	})

	t.Run("admin deletes a user", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, "/v1/users/"+other.ID, adminToken)
		app.ServeHTTP(rec, req)

		if rec.Code != http.StatusNoContent {
			t.Fatalf("failed! code = %v; wantCode %v; body %s", rec.Code, http.StatusNoContent, rec.Body.String())
		}
		if _, err := usrRepo.GetUser(context.Background(), user.GetFilter{ID: other.ID}); err == nil {
			t.Error("failed! user still exists")
		}
	})
}

func Test_userApi_resetPassword(t *testing.T) {
	testutil.ResetDB(t, db)

	student := testutil.CreateUser(t, usrRepo, "Hero", "hero01", "hero@test.cd", "", []string{user.RoleStudent}, true)
	successData := marchallObj(t, echoapi.SuccessResponse{Success: "If the email address supplied is associated with an active account on this system, " +
		"an email will arrive in your inbox shortly with instructions to reset your password."})

	type extraTest struct {
		emailSent bool
		to        mail.Address
	}
	tests := []httpTest{
		{name: "required fields", wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"email": "this field is required"})},
		{
			name: "invalid email", wantCode: http.StatusBadRequest, body: marchallObj(t, echoapi.PasswordResetRequest{Email: "lol"}),
			wantData: marchallObj(t, map[string]string{"email": "email must be a valid email address"}),
		},
		{
			name: "unknown email", wantCode: http.StatusOK, body: marchallObj(t, echoapi.PasswordResetRequest{Email: "lol@test.cd"}),
			wantData: successData, extra: extraTest{emailSent: false},
		},
		{
			name: "known email", wantCode: http.StatusOK, body: marchallObj(t, echoapi.PasswordResetRequest{Email: student.Email}),
			wantData: successData, extra: extraTest{emailSent: true, to: mail.Address{Name: student.Name, Address: student.Email}},
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/users/password-reset"

		t.Run(tt.name, func(t *testing.T) {
			emailsvc.ClearSentMessages()

			req, rec := newRequest(tt.method, tt.path, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)

			if extra, ok := tt.extra.(extraTest); ok {
				if extra.emailSent {
					if len(emailsvc.SentMessages) != 1 {
						t.Fatalf("failed! len(SentMessages) = %d; want 1", len(emailsvc.SentMessages))
					}
					msg := emailsvc.SentMessages[0]
					if msg.To[0] != extra.to {
						t.Errorf("failed! To = %v; want %v", msg.To[0], extra.to)
					}
					if !strings.Contains(msg.TextContent, student.Username) {
						t.Errorf("failed! text content does not contain the username %q", student.Username)
					}
				} else if len(emailsvc.SentMessages) > 0 {
					t.Errorf("failed! len(SentMessages) = %d; want 0", len(emailsvc.SentMessages))
				}
			}
		})
	}
}

func Test_userApi_confirmPasswordReset(t *testing.T) {
	testutil.ResetDB(t, db)

	student := testutil.CreateUser(t, usrRepo, "Hero", "hero01", "hero@test.cd", "OldC@t123", []string{user.RoleStudent}, true)
	validUID := user.EncodeUID(student)
	validToken, err := user.MakeToken(student, conf)
	if err != nil {
		t.Fatalf("MakeToken(): %v", err)
	}

	// generate an expired token
	dayLate := conf.Server.PasswordResetTimeoutDelta + (24 * time.Hour)
	user.NowFunc = func() time.Time { return time.Now().Add(-dayLate) }
	expiredToken, err := user.MakeToken(student, conf)
	if err != nil {
		t.Fatalf("MakeToken(): %v", err)
	}
	user.NowFunc = time.Now // reset

	tests := []httpTest{
		{
			name: "invalid pwd: complexity", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, user.ResetUserPassword{Token: "lol", UID: "lol", Password: "lol12345", PasswordConfirm: "lol12345"}),
			wantData: marchallObj(t, map[string]string{"password": "password must contain at least 1 uppercase character, 1 lowercase character, 1 digit and 1 special character"}),
		},
		{
			name: "invalid uid", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, user.ResetUserPassword{Token: "lol", UID: "?!?", Password: "LolC@t123", PasswordConfirm: "LolC@t123"}),
			wantData: marchallObj(t, httpErr{Error: "invalid token"}),
		},
		{
			name: "invalid token", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, user.ResetUserPassword{Token: "HE4TS-sigsig-sig", UID: validUID, Password: "LolC@t123", PasswordConfirm: "LolC@t123"}),
			wantData: marchallObj(t, httpErr{Error: "invalid token"}),
		},
		{
			name: "expired token", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, user.ResetUserPassword{Token: expiredToken, UID: validUID, Password: "LolC@t123", PasswordConfirm: "LolC@t123"}),
			wantData: marchallObj(t, httpErr{Error: "token expired"}),
		},
		{
			name: "valid token", wantCode: http.StatusOK,
			body:     marchallObj(t, user.ResetUserPassword{Token: validToken, UID: validUID, Password: "LolC@t123", PasswordConfirm: "LolC@t123"}),
			wantData: marchallObj(t, echoapi.SuccessResponse{Success: "Password has been reset with the new password."}),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/users/password-reset-confirm"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(tt.method, tt.path, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)

			if tt.wantCode == http.StatusOK {
				refreshed, err := usrRepo.GetUser(context.Background(), user.GetFilter{ID: student.ID})
				if err != nil {
					t.Fatalf("GetUser() failed: %v", err)
				}
				if bytes.Equal(refreshed.PasswordHash, student.PasswordHash) {
					t.Fatal("failed to update the password")
				}
			}
		})
	}
}
