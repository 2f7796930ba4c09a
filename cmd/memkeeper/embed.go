package main

import (
	"embed"
	"io/fs"

	"github.com/lazypower/memkeeper/internal/server"
)

// The ui directory is populated by copying the web app's build output here.
// With only the placeholder present the API serves its welcome message at /.
//
//go:embed all:ui
var uiDist embed.FS

func init() {
	sub, err := fs.Sub(uiDist, "ui")
	if err != nil {
		return
	}
	server.SetUI(sub)
}
