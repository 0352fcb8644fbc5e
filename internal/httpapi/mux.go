package httpapi

import (
	"net/http"

	"github.com/jmoiron/sqlx"
)

// NewMux registers the health check and static assets. mqtt may be nil.
func NewMux(db *sqlx.DB, staticDir string, mqtt ConnectionStatus) *http.ServeMux {
	mux := http.NewServeMux()
	registerHealthcheck(mux, db, mqtt)
	if staticDir != "" {
		mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir))))
	}
	return mux
}
