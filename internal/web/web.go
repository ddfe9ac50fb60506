// Package web embeds the gallery page served at "/".
package web

import (
	"embed"
	"io/fs"
)

//go:embed static/*
var content embed.FS

// FS returns the gallery assets rooted at the static directory.
func FS() fs.FS {
	sub, err := fs.Sub(content, "static")
	if err != nil {
		panic(err)
	}
	return sub
}
