// ABOUTME: Embeds the chat UI template into the binary using go:embed
// ABOUTME: Parses it once at startup for the index handler

package web

import (
	"embed"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

var indexTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))
