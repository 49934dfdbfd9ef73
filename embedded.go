package main

import (
	"embed"
	"io/fs"
)

//go:embed static
var embeddedFiles embed.FS

// clientPage returns the upload page served at /.
func clientPage() (fs.FS, error) {
	return fs.Sub(embeddedFiles, "static")
}
