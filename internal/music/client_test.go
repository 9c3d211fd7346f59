package music

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"gamelysync/internal/entity"
)

func TestSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/search", r.URL.Path)
		require.Equal(t, "lofi beats", r.URL.Query().Get("query"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"tracks": [
				{"id": "t1", "title": "Night Drive", "artist_name": "Neon Wolf", "preview_url": "https://cdn/t1.mp3"},
				{"id": "t2", "title": "Respawn", "artist_name": "GG Crew"}
			]
		}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	tracks, err := c.Search(context.Background(), "lofi beats")
	require.NoError(t, err)
	require.Equal(t, []entity.Track{
		{ID: "t1", Name: "Night Drive", Artist: "Neon Wolf", PreviewURL: "https://cdn/t1.mp3"},
		{ID: "t2", Name: "Respawn", Artist: "GG Crew"},
	}, tracks)
}

func TestSearchNoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"tracks": []}`))
	}))
	defer srv.Close()

	tracks, err := NewClient(srv.URL).Search(context.Background(), "nothing")
	require.NoError(t, err)
	require.Empty(t, tracks)
}

func TestSearchServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Search(context.Background(), "anything")
	require.Error(t, err)
}

func TestSearchMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"tracks": `))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Search(context.Background(), "anything")
	require.Error(t, err)
}
