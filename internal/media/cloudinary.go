package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// CloudinaryStore uploads through Cloudinary's unsigned upload endpoint.
// Images and videos go to separate resource paths; the folder tag groups
// avatars, banners, and post media in the media library.
type CloudinaryStore struct {
	cloudName    string
	uploadPreset string
	baseURL      string
	client       *http.Client
}

func NewCloudinaryStore(cloudName, uploadPreset string) *CloudinaryStore {
	return &CloudinaryStore{
		cloudName:    cloudName,
		uploadPreset: uploadPreset,
		baseURL:      "https://api.cloudinary.com/v1_1",
		client:       &http.Client{Timeout: 30 * time.Second},
	}
}

// SetBaseURL points the store at a different endpoint, for tests.
func (s *CloudinaryStore) SetBaseURL(u string) { s.baseURL = u }

type cloudinaryResponse struct {
	SecureURL string `json:"secure_url"`
	Error     struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (s *CloudinaryStore) Upload(ctx context.Context, name, folder, mimeType string, data []byte) (string, error) {
	if mimeType == "" {
		mimeType = GuessMIME(name)
	}
	resource := "image"
	if IsVideo(mimeType) {
		resource = "video"
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", name)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := form.WriteField("upload_preset", s.uploadPreset); err != nil {
		return "", err
	}
	if err := form.WriteField("folder", folder); err != nil {
		return "", err
	}
	if err := form.Close(); err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/%s/%s/upload", s.baseURL, s.cloudName, resource)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("cloudinary upload: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("cloudinary upload: %w", err)
	}
	var parsed cloudinaryResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("cloudinary upload: bad response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("cloudinary upload: %s (status %d)", parsed.Error.Message, resp.StatusCode)
	}
	if parsed.SecureURL == "" {
		return "", fmt.Errorf("cloudinary upload: response missing secure_url")
	}
	return parsed.SecureURL, nil
}
