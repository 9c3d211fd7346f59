package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"gamelysync/internal/client"
	"gamelysync/internal/entity"
	"gamelysync/internal/feed"
	"gamelysync/internal/reconcile"
)

type signUpRequest struct {
	Handle   string `json:"handle"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signInRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type sessionResponse struct {
	UserID string `json:"user_id"`
	Handle string `json:"handle"`
	Token  string `json:"token"`
}

func (a *API) SignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	s, err := a.client.SignUp(r.Context(), req.Handle, req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{UserID: s.UserID, Handle: s.Handle, Token: s.Token})
}

func (a *API) SignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	s, err := a.client.SignIn(r.Context(), req.Identifier, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{UserID: s.UserID, Handle: s.Handle, Token: s.Token})
}

type profileResponse struct {
	Profile *entity.Profile     `json:"profile"`
	Stats   client.ProfileStats `json:"stats"`
}

func (a *API) GetProfile(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	p, err := a.client.Profile(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profileResponse{Profile: p, Stats: client.Stats(p)})
}

// Follow answers with the optimistic snapshot; the remote write settles in
// the background.
func (a *API) Follow(w http.ResponseWriter, r *http.Request) {
	other, _, err := a.client.Follow(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, profileResponse{Profile: other, Stats: client.Stats(other)})
}

func (a *API) Unfollow(w http.ResponseWriter, r *http.Request) {
	other, _, err := a.client.Unfollow(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, profileResponse{Profile: other, Stats: client.Stats(other)})
}

func (a *API) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var edit reconcile.ProfileEdit
	if err := json.NewDecoder(r.Body).Decode(&edit); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	p, _, err := a.client.UpdateProfile(r.Context(), edit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, profileResponse{Profile: p, Stats: client.Stats(p)})
}

type createPostRequest struct {
	Media   []string `json:"media"`
	Caption string   `json:"caption"`
	GameTag string   `json:"game_tag"`
}

func (a *API) CreatePost(w http.ResponseWriter, r *http.Request) {
	var req createPostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	post, err := a.client.CreatePost(r.Context(), req.Media, req.Caption, req.GameTag)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, post)
}

func (a *API) GetPost(w http.ResponseWriter, r *http.Request) {
	post, err := a.client.Post(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

func (a *API) ToggleLike(w http.ResponseWriter, r *http.Request) {
	post, _, err := a.client.ToggleLike(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, post)
}

type feedResponse struct {
	Items []feed.Item  `json:"items"`
	Next  *feed.Cursor `json:"next,omitempty"`
}

// Feed pages the home feed. The cursor round-trips as a millisecond
// timestamp plus the last post id.
func (a *API) Feed(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))

	var cursor *feed.Cursor
	if ts := q.Get("cursor_ts"); ts != "" {
		ms, err := strconv.ParseInt(ts, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid cursor"})
			return
		}
		cursor = &feed.Cursor{
			CreatedAt: time.UnixMilli(ms).UTC(),
			PostID:    q.Get("cursor_id"),
		}
	}

	items, next, err := a.client.Feed(r.Context(), cursor, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, feedResponse{Items: items, Next: next})
}

func (a *API) Stories(w http.ResponseWriter, r *http.Request) {
	items, err := a.client.Stories(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stories": items})
}

type createStoryRequest struct {
	Media    []string         `json:"media"`
	Caption  string           `json:"caption"`
	Overlays []entity.Overlay `json:"overlays"`
	Track    *entity.Track    `json:"track"`
}

func (a *API) CreateStory(w http.ResponseWriter, r *http.Request) {
	var req createStoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	story, err := a.client.CreateStory(r.Context(), req.Media, req.Caption, req.Overlays, req.Track)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, story)
}

func (a *API) SearchMusic(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing query"})
		return
	}
	tracks, err := a.client.SearchMusic(r.Context(), query)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tracks": tracks})
}

func (a *API) UploadMedia(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read file"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read file"})
		return
	}
	folder := r.FormValue("folder")
	if folder == "" {
		folder = "uploads"
	}
	url, err := a.client.UploadMedia(r.Context(), header.Filename, folder, data)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"url": url})
}
