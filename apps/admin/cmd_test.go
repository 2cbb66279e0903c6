package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strconv"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/darasahq/darasa/core/course"
	"github.com/darasahq/darasa/core/user"
	"github.com/darasahq/darasa/storage/database"
	"github.com/darasahq/darasa/storage/database/dummy"
	"github.com/darasahq/darasa/tests"
)

var (
	usrRepo user.Repository
	crsRepo course.Repository
)

func setup(t *testing.T) *commandLine {
	// set up DB & repos
	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("dummydb.Open(): %v", err)
	}
	usrRepo = dummydb.NewUserRepository(db)
	crsRepo = dummydb.NewCourseRepository(db)

	// start CLI; migrations are mocked so an unconnected handle will do
	return &commandLine{
		db:      &database.DB{DB: &sqlx.DB{}},
		usrRepo: usrRepo,
		crsRepo: crsRepo,
	}
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func Test_commandLine_migrate(t *testing.T) {
	cli := setup(t)

	gooseRunFunc = func(command string, db *sql.DB, fsys fs.FS, dir string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to":
			if len(args) == 0 {
				return fmt.Errorf("up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		case "down-to":
			if len(args) == 0 {
				return fmt.Errorf("down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-by-one", args: []string{"migrate", "up-by-one"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "reset", args: []string{"migrate", "reset"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
		{name: "create", args: []string{"migrate", "create", "enrollment", "sql"}},
		{name: "fix", args: []string{"migrate", "fix"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			if err := cli.run(args); err != nil {
				if tt.wantErr != nil {
					if err != tt.wantErr {
						t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
					}
				} else if tt.wantErrStr != "" {
					if err.Error() != tt.wantErrStr {
						t.Errorf("cli.run() error.Error() = %s, wantErrStr %s", err.Error(), tt.wantErrStr)
					}
				} else {
					t.Errorf("cli.run() unexpected error = %v", err)
				}
			}
		})
	}
}

func Test_commandLine_addUser(t *testing.T) {
	cli := setup(t)

	existing := testutil.CreateUser(t, usrRepo, "User", "awe", "awe@test.cd", "mdr", nil, false)

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"adduser"}, wantErr: errHelp},
		{name: "username but no password", args: []string{"adduser", "-username", "kin"}, wantErr: errHelp},
		{name: "create", args: []string{"adduser", "-username", "kin", "-email", "kin@test.cd"}, extra: extra{pwd: "lol"}},
		{name: "create admin", args: []string{"adduser", "-username", "boss", "-admin"}, extra: extra{pwd: "lol"}},
		{name: "update existing", args: []string{"adduser", "-username", existing.Username}, extra: extra{pwd: "lmao"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		readPasswordFunc = func(fd int) ([]byte, error) {
			if extra, ok := tt.extra.(extra); ok {
				return []byte(extra.pwd), nil
			}
			return nil, nil
		}

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			if err != nil {
				if err != tt.wantErr {
					t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
				}
				return
			}

			switch tt.name {
			case "create":
				usr, err := usrRepo.GetUser(context.Background(), user.GetFilter{Username: "kin"})
				if err != nil {
					t.Fatalf("GetUser() failed: %v", err)
				}
				if !usr.Active() {
					t.Error("failed! new user is not active")
				}
				if len(usr.Roles) > 0 {
					t.Errorf("failed! roles = %v; want none", usr.Roles)
				}
				if err := usr.CheckPassword("lol"); err != nil {
					t.Error("failed to set the password")
				}
			case "create admin":
				usr, err := usrRepo.GetUser(context.Background(), user.GetFilter{Username: "boss"})
				if err != nil {
					t.Fatalf("GetUser() failed: %v", err)
				}
				if len(usr.Roles) != len(user.AllRoles) {
					t.Errorf("failed! roles = %v; want %v", usr.Roles, user.AllRoles)
				}
			case "update existing":
				usr, err := usrRepo.GetUser(context.Background(), user.GetFilter{ID: existing.ID})
				if err != nil {
					t.Fatalf("GetUser() failed: %v", err)
				}
				if !usr.Active() {
					t.Error("failed! user was not activated")
				}
				if bytes.Equal(usr.PasswordHash, existing.PasswordHash) {
					t.Error("failed to update new password")
				}
			}
		})
	}
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli := setup(t)

	usr := testutil.CreateUser(t, usrRepo, "User", "awe", "awe@test.cd", "mdr", nil, true)

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "username but no password", args: []string{"resetpassword", "-username", "lol"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-username", "lol"}, extra: extra{pwd: "lol"}, wantErr: user.ErrNotFound},
		{name: "reset with username", args: []string{"resetpassword", "-username", usr.Username}, extra: extra{pwd: "lol"}},
		{name: "reset with email", args: []string{"resetpassword", "-username", usr.Email}, extra: extra{pwd: "lmao"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		readPasswordFunc = func(fd int) ([]byte, error) {
			if extra, ok := tt.extra.(extra); ok {
				return []byte(extra.pwd), nil
			}
			return nil, nil
		}

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			if err == nil {
				refreshedUsr, err := usrRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
				if err != nil {
					t.Fatalf("GetUser() failed: %v", err)
				}
				if bytes.Equal(refreshedUsr.PasswordHash, usr.PasswordHash) {
					t.Error("failed to update new password")
				}
			} else if err != tt.wantErr {
				t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func Test_commandLine_publishCourse(t *testing.T) {
	cli := setup(t)

	tutor := testutil.CreateUser(t, usrRepo, "Teacher", "teach01", "teach@test.cd", "", nil, true)
	draft := testutil.CreateCourse(t, crsRepo, tutor.ID, "Go for Beginners", "programming", 0, false)
	live := testutil.CreateCourse(t, crsRepo, tutor.ID, "Congolese Cooking", "cooking", 2500, true)

	tests := []cliTest{
		{name: "no args", args: []string{"publishcourse"}, wantErr: errHelp},
		{name: "course not found", args: []string{"publishcourse", "-course", "lol"}, wantErr: course.ErrNotFound},
		{name: "publish by slug", args: []string{"publishcourse", "-course", draft.Slug}},
		{name: "unpublish by id", args: []string{"publishcourse", "-course", live.ID, "-unpublish"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			if err != nil {
				if err != tt.wantErr {
					t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
				}
				return
			}

			switch tt.name {
			case "publish by slug":
				crs, err := crsRepo.GetCourse(context.Background(), course.GetFilter{ID: draft.ID})
				if err != nil {
					t.Fatalf("GetCourse() failed: %v", err)
				}
				if !crs.IsPublished {
					t.Error("failed! course is not published")
				}
			case "unpublish by id":
				crs, err := crsRepo.GetCourse(context.Background(), course.GetFilter{ID: live.ID})
				if err != nil {
					t.Fatalf("GetCourse() failed: %v", err)
				}
				if crs.IsPublished {
					t.Error("failed! course is still published")
				}
			}
		})
	}
}
