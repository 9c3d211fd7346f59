// Package httpapi exposes the sync client over HTTP for the demo daemon.
// The daemon fronts a single signed-in session; tokens issued at sign-in
// gate every other route.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"gamelysync/internal/auth"
	"gamelysync/internal/client"
	"gamelysync/internal/gateway"
)

type API struct {
	client *client.Client
	tokens *auth.TokenManager
}

func New(c *client.Client, tokens *auth.TokenManager) *API {
	return &API{client: c, tokens: tokens}
}

// Router builds the route table.
func (a *API) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/v1/auth/signup", a.SignUp).Methods("POST")
	r.HandleFunc("/api/v1/auth/signin", a.SignIn).Methods("POST")

	s := r.PathPrefix("/api/v1").Subrouter()
	s.Use(a.RequireAuth)
	s.HandleFunc("/profiles/{id}", a.GetProfile).Methods("GET")
	s.HandleFunc("/profiles/{id}/follow", a.Follow).Methods("POST")
	s.HandleFunc("/profiles/{id}/follow", a.Unfollow).Methods("DELETE")
	s.HandleFunc("/me/profile", a.UpdateProfile).Methods("PUT")
	s.HandleFunc("/posts", a.CreatePost).Methods("POST")
	s.HandleFunc("/posts/{id}", a.GetPost).Methods("GET")
	s.HandleFunc("/posts/{id}/like", a.ToggleLike).Methods("POST")
	s.HandleFunc("/feed", a.Feed).Methods("GET")
	s.HandleFunc("/stories", a.Stories).Methods("GET")
	s.HandleFunc("/stories", a.CreateStory).Methods("POST")
	s.HandleFunc("/music/search", a.SearchMusic).Methods("GET")
	s.HandleFunc("/media", a.UploadMedia).Methods("POST")
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the gateway failure taxonomy onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var f *gateway.Failure
	if errors.As(err, &f) {
		switch f.Kind {
		case gateway.ErrNotFound:
			status = http.StatusNotFound
		case gateway.ErrUnauthenticated:
			status = http.StatusUnauthorized
		case gateway.ErrPermissionDenied:
			status = http.StatusForbidden
		case gateway.ErrUnavailable:
			status = http.StatusServiceUnavailable
		case gateway.ErrConflict:
			status = http.StatusConflict
		}
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
