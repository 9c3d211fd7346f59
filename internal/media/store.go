// Package media uploads avatar, banner, and post/story media to object
// storage and hands back durable public URLs.
package media

import (
	"context"
	"strings"
)

// Store accepts media bytes plus a destination folder tag and returns a
// durable public URL.
type Store interface {
	Upload(ctx context.Context, name, folder, mimeType string, data []byte) (string, error)
}

// GuessMIME maps a file name extension to a MIME type, falling back to an
// octet stream for anything unrecognized.
func GuessMIME(name string) string {
	clean := name
	if i := strings.IndexByte(clean, '?'); i >= 0 {
		clean = clean[:i]
	}
	ext := ""
	if i := strings.LastIndexByte(clean, '.'); i >= 0 {
		ext = strings.ToLower(clean[i+1:])
	}
	switch ext {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "webp":
		return "image/webp"
	case "heic":
		return "image/heic"
	case "mp4":
		return "video/mp4"
	case "mov":
		return "video/quicktime"
	}
	return "application/octet-stream"
}

// IsVideo reports whether the MIME type is a video type.
func IsVideo(mimeType string) bool {
	return strings.HasPrefix(mimeType, "video/")
}
