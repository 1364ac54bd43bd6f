// Package site serves the embedded landing page.
package site

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Register mounts the landing page at GET /.
func Register(_ context.Context, r chi.Router) {
	if r == nil {
		panic("router is nil")
	}
	r.Get("/", HandleRoot)
}

// HandleRoot serves index.html from the embedded site.
func HandleRoot(w http.ResponseWriter, r *http.Request) {
	http.FileServer(FS()).ServeHTTP(w, r)
}
