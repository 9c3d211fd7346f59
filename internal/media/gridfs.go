package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// GridFSStore keeps media in a GridFS bucket and returns URLs under a
// serving base, for self-hosted deployments without a CDN.
type GridFSStore struct {
	bucket  *gridfs.Bucket
	baseURL string
}

func NewGridFSStore(bucket *gridfs.Bucket, baseURL string) *GridFSStore {
	return &GridFSStore{bucket: bucket, baseURL: baseURL}
}

func (s *GridFSStore) Upload(ctx context.Context, name, folder, mimeType string, data []byte) (string, error) {
	if mimeType == "" {
		mimeType = GuessMIME(name)
	}
	metadata := bson.M{
		"folder":      folder,
		"mime_type":   mimeType,
		"uploaded_at": time.Now().UTC(),
	}
	opts := options.GridFSUpload().SetMetadata(metadata)
	stream, err := s.bucket.OpenUploadStream(name, opts)
	if err != nil {
		return "", fmt.Errorf("gridfs upload: %w", err)
	}
	if _, err := io.Copy(stream, bytes.NewReader(data)); err != nil {
		stream.Close()
		return "", fmt.Errorf("gridfs upload: %w", err)
	}
	if err := stream.Close(); err != nil {
		return "", fmt.Errorf("gridfs upload: %w", err)
	}
	id, ok := stream.FileID.(primitive.ObjectID)
	if !ok {
		return "", fmt.Errorf("gridfs upload: unexpected file id type %T", stream.FileID)
	}
	return fmt.Sprintf("%s/%s", s.baseURL, id.Hex()), nil
}

// Download streams a stored file back by the id segment of its URL.
func (s *GridFSStore) Download(ctx context.Context, fileID string) ([]byte, error) {
	id, err := primitive.ObjectIDFromHex(fileID)
	if err != nil {
		return nil, fmt.Errorf("gridfs download: invalid file id: %w", err)
	}
	var buf bytes.Buffer
	if _, err := s.bucket.DownloadToStream(id, &buf); err != nil {
		return nil, fmt.Errorf("gridfs download: %w", err)
	}
	return buf.Bytes(), nil
}
