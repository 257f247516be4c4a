// Package admin provides the HTML/JSON monitoring endpoints for sserelay.
package admin

import (
	"encoding/json"
	"net/http"

	rice "github.com/GeertJohan/go.rice"

	"github.com/mroth/sserelay"
)

// Handles serving the static HTML page
func adminStatusHTMLHandler(w http.ResponseWriter, r *http.Request) {
	box, err := rice.FindBox("views")
	if err != nil {
		http.Error(w, "500 admin page unavailable", http.StatusInternalServerError)
		return
	}
	file, err := box.Open("index.html")
	if err != nil {
		http.Error(w, "500 admin page unavailable", http.StatusInternalServerError)
		return
	}
	defer file.Close()

	fstat, err := file.Stat()
	if err != nil {
		http.Error(w, "500 admin page unavailable", http.StatusInternalServerError)
		return
	}
	http.ServeContent(w, r, fstat.Name(), fstat.ModTime(), file)
}

// Handles serving the JSON status data, effectively the admin API endpoint
func adminStatusDataHandler(w http.ResponseWriter, r *http.Request, s *sserelay.Server) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(s.Status())
}

// AdminHandler serves the status page at /admin/ and its data at
// /admin/status.json. Both answer 403 when the server has admin disabled.
func AdminHandler(s *sserelay.Server) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/admin/", adminStatusHTMLHandler)
	mux.HandleFunc("/admin/status.json", func(w http.ResponseWriter, r *http.Request) {
		adminStatusDataHandler(w, r, s)
	})

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.AdminDisabled() {
			http.Error(w, "403 admin endpoint disabled", http.StatusForbidden)
			return
		}
		mux.ServeHTTP(w, r)
	})
}
