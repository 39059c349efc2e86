// Package views embeds the minimal account pages. Every page renders
// inside the layout, which lists the form errors with their codes.
package views

import (
	"embed"
	"io/fs"
	"net/http"

	"github.com/gofiber/template/django/v3"
)

// Layout is the default fiber views layout
const Layout = "layout"

//go:embed templates/*.html
var files embed.FS

// New returns a django engine over the embedded templates
func New() *django.Engine {
	sub, err := fs.Sub(files, "templates")
	if err != nil {
		panic(err)
	}
	return django.NewFileSystem(http.FS(sub), ".html")
}

// Names lists the embedded page names without extension
func Names() []string {
	entries, _ := fs.ReadDir(files, "templates")
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		out = append(out, name[:len(name)-len(".html")])
	}
	return out
}
