// Package web embeds the built frontend.
package web

import "embed"

// Assets holds dist/, the output of the frontend build. The placeholder
// index.html is replaced when the frontend is built into this directory.
//
//go:embed all:dist
var Assets embed.FS
