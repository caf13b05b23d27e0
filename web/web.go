// Package web carries the embedded single-page UI served at the root path.
package web

import (
	"embed"
	"io"
	"io/fs"
	"net/http"
)

//go:embed static
var static embed.FS

// Handler serves index.html and the static assets.
func Handler() http.Handler {
	sub, err := fs.Sub(static, "static")
	if err != nil {
		panic(err)
	}

	fileServer := http.FileServer(http.FS(sub))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			// http.ServeFileFS needs Go 1.22; this is its equivalent on 1.21.
			f, err := sub.Open("index.html")
			if err != nil {
				http.Error(w, "404 page not found", http.StatusNotFound)

				return
			}
			defer f.Close()

			stat, err := f.Stat()
			if err != nil {
				http.Error(w, "500 internal server error", http.StatusInternalServerError)

				return
			}

			http.ServeContent(w, r, "index.html", stat.ModTime(), f.(io.ReadSeeker))

			return
		}

		http.StripPrefix("/static/", fileServer).ServeHTTP(w, r)
	})
}
