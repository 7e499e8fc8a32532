package storage

import (
	"context"
	"io"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"example.com/backstage/services/charity/config"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	uploadTimeout = 60 * time.Second
	deleteTimeout = 30 * time.Second
)

// FileStore stores event media and returns public urls
type FileStore interface {
	Store(ctx context.Context, name string, file io.Reader) (string, error)
	Delete(ctx context.Context, fileURL string) error
}

// CloudinaryStore keeps files in a Cloudinary folder
type CloudinaryStore struct {
	cld    *cloudinary.Cloudinary
	folder string
}

// NewFileStore returns a Cloudinary store, or a no-op store when credentials are missing
func NewFileStore(cfg config.StorageConfig) (FileStore, error) {
	if cfg.CloudName == "" || cfg.APIKey == "" {
		log.Warn().Msg("Cloudinary credentials not set, uploaded files will not be persisted")
		return NoopStore{}, nil
	}

	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, errors.Wrap(err, "cloudinary config error")
	}
	return &CloudinaryStore{cld: cld, folder: cfg.Folder}, nil
}

// Store uploads the file and returns its secure url
func (s *CloudinaryStore) Store(ctx context.Context, name string, file io.Reader) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	resp, err := s.cld.Upload.Upload(ctx, file, uploader.UploadParams{
		Folder:   s.folder,
		PublicID: strings.TrimSuffix(path.Base(name), path.Ext(name)) + "-" + uuid.NewString()[:8],
	})
	if err != nil {
		return "", errors.Wrap(err, "upload error")
	}
	if resp.Error.Message != "" {
		return "", errors.Errorf("upload error: %s", resp.Error.Message)
	}
	return resp.SecureURL, nil
}

// Delete removes the file behind a url returned by Store
func (s *CloudinaryStore) Delete(ctx context.Context, fileURL string) error {
	publicID, err := PublicID(fileURL)
	if err != nil {
		return errors.Wrap(err, "could not extract public ID")
	}

	ctx, cancel := context.WithTimeout(ctx, deleteTimeout)
	defer cancel()

	if _, err := s.cld.Upload.Destroy(ctx, uploader.DestroyParams{PublicID: publicID}); err != nil {
		return errors.Wrap(err, "delete error")
	}
	return nil
}

var versionSegment = regexp.MustCompile(`^v\d+$`)

// PublicID extracts the Cloudinary public id from a delivery url, e.g.
// https://res.cloudinary.com/demo/image/upload/v1234567890/events/abc123.jpg
// yields events/abc123.
func PublicID(fileURL string) (string, error) {
	parsed, err := url.Parse(fileURL)
	if err != nil {
		return "", err
	}

	parts := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	upload := -1
	for i, p := range parts {
		if p == "upload" {
			upload = i
			break
		}
	}
	if upload < 0 || upload == len(parts)-1 {
		return "", errors.New("invalid cloudinary URL format")
	}

	rest := parts[upload+1:]
	if len(rest) > 1 && versionSegment.MatchString(rest[0]) {
		rest = rest[1:]
	}

	last := rest[len(rest)-1]
	rest[len(rest)-1] = strings.TrimSuffix(last, path.Ext(last))
	return strings.Join(rest, "/"), nil
}

// NoopStore accepts files without persisting them
type NoopStore struct{}

func (NoopStore) Store(ctx context.Context, name string, file io.Reader) (string, error) {
	if _, err := io.Copy(io.Discard, file); err != nil {
		return "", errors.Wrap(err, "failed to read upload")
	}
	return "memory://" + uuid.NewString() + path.Ext(name), nil
}

func (NoopStore) Delete(ctx context.Context, fileURL string) error { return nil }
