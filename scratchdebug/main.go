package main

import (
	"fmt"
	"io/fs"
	"net/mail"

	"github.com/darasahq/darasa/core"
	appfs "github.com/darasahq/darasa/fs"
)

type stderrLogger struct{}

func (stderrLogger) Debug(msg string, args ...interface{}) { fmt.Println("LOG DEBUG:", msg) }
func (stderrLogger) Info(msg string, args ...interface{})  { fmt.Println("LOG INFO:", msg) }
func (stderrLogger) Warn(msg string, args ...interface{})  { fmt.Println("LOG WARN:", msg) }
func (stderrLogger) Error(msg string, args ...interface{}) { fmt.Println("LOG ERROR:", msg) }
func (stderrLogger) Fatal(msg string, args ...interface{}) { fmt.Println("LOG FATAL:", msg) }

func main() {
	entries, err := fs.ReadDir(appfs.FS, "templates/email")
	fmt.Println("ReadDir err:", err, "entries:", len(entries))
	for _, e := range entries {
		fmt.Println(" -", e.Name())
	}

	conf := core.NewTestConfig()
	var lg core.Logger = stderrLogger{}
	core.ParseEmailTemplates(conf, lg)

	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: "X", Address: "x@test.cd"}},
		Subject:      "Welcome",
		TemplateName: "welcome",
		TemplateData: map[string]interface{}{"Username": "x"},
	}
	rerr := msg.Render(conf)
	fmt.Println("Render err:", rerr)
	fmt.Println("HasContent:", msg.HasContent(), "textLen:", len(msg.TextContent), "htmlLen:", len(msg.HTMLContent))
}
