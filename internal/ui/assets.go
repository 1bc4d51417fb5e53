// Package ui serves the upload page and its form fragments.
package ui

import (
	"embed"
	"html/template"
	"strings"

	"github.com/gin-contrib/static"
	"github.com/gin-gonic/gin"
)

// DatastarURL is the client bundle the page loads.
const DatastarURL = "https://cdn.jsdelivr.net/gh/starfederation/datastar@1.0.0-RC.6/bundles/datastar.js"

const staticPrefix = "/static/"

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// Templates parses the page and form templates.
func Templates() (*template.Template, error) {
	return template.ParseFS(templateFS, "templates/*.html")
}

// Static serves the embedded stylesheet and scripts under /static/.
func Static() gin.HandlerFunc {
	serve := static.Serve("/", static.EmbedFolder(staticFS, "."))
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if !strings.HasPrefix(path, staticPrefix) || strings.HasSuffix(path, "/") {
			return
		}
		c.Header("Cache-Control", "public, max-age=86400")
		serve(c)
	}
}
