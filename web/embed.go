// Package web holds the map dashboard served by cmd/api.
package web

import "embed"

// Static contains index.html, app.js and style.css under static/
//
//go:embed static
var Static embed.FS
