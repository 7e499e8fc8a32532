package services

import (
	"context"
	"io"
	"path/filepath"
	"strings"

	"example.com/backstage/services/charity/internal/models"
	"example.com/backstage/services/charity/internal/repositories"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var allowedImageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

// ImageUpload is an image file attached to an event
type ImageUpload struct {
	FileName  string    `json:"file" validate:"required,max=255"`
	Title     string    `json:"title" validate:"max=255"`
	IsPreview bool      `json:"is_preview"`
	File      io.Reader `json:"-" validate:"-"`
}

// MediaService manages event images
type MediaService struct {
	deps   Dependencies
	events repositories.EventRepository
	media  repositories.MediaRepository
}

// NewMediaService creates a new media service
func NewMediaService(deps Dependencies) *MediaService {
	return &MediaService{
		deps:   deps,
		events: deps.Repos.Events,
		media:  deps.Repos.Media,
	}
}

// Upload stores the file and attaches it to the event. Owner only.
func (s *MediaService) Upload(ctx context.Context, eventID uuid.UUID, actor Actor, in ImageUpload) (*models.EventImage, error) {
	txn := s.deps.Tracer.StartTransaction("upload-event-image")
	defer s.deps.Tracer.EndTransaction(txn)

	if err := validate(in); err != nil {
		return nil, err
	}
	if in.File == nil {
		return nil, fieldError("file", "is required")
	}
	ext := strings.ToLower(filepath.Ext(in.FileName))
	if !allowedImageExtensions[ext] {
		return nil, fieldError("file", "must be a jpg, png, gif or webp image")
	}
	if _, err := loadOwnedEvent(ctx, s.events, eventID, actor, false); err != nil {
		return nil, err
	}

	span := s.deps.Tracer.StartSpan("store-file", txn)
	url, err := s.deps.Files.Store(ctx, in.FileName, in.File)
	span.End()
	if err != nil {
		s.deps.Tracer.RecordError(txn, err)
		return nil, domainError(err, "failed to store image")
	}

	image := &models.EventImage{
		EventID: eventID,
		URL:     url,
		Title:   in.Title,
	}
	if err := s.media.CreateImage(ctx, image); err != nil {
		if derr := s.deps.Files.Delete(ctx, url); derr != nil {
			log.Warn().Err(derr).Str("url", url).Msg("Failed to remove orphaned image file")
		}
		return nil, domainError(err, "failed to save image")
	}

	if in.IsPreview {
		if err := s.media.SetPreview(ctx, eventID, image.ID); err != nil {
			return nil, domainError(err, "failed to set preview image")
		}
		image.IsPreview = true
		bumpSearchVersion(ctx, s.deps)
	}

	log.Info().Str("event_id", eventID.String()).Str("image_id", image.ID.String()).Msg("Event image uploaded")
	return image, nil
}

// SetPreview makes the image the event's only preview. Owner only.
func (s *MediaService) SetPreview(ctx context.Context, eventID, imageID uuid.UUID, actor Actor) error {
	if _, err := loadOwnedEvent(ctx, s.events, eventID, actor, false); err != nil {
		return err
	}
	if err := s.media.SetPreview(ctx, eventID, imageID); err != nil {
		return domainError(err, "failed to set preview image")
	}
	bumpSearchVersion(ctx, s.deps)
	return nil
}

// Delete removes the image and its stored file. Owner or admin.
func (s *MediaService) Delete(ctx context.Context, eventID, imageID uuid.UUID, actor Actor) error {
	if _, err := loadOwnedEvent(ctx, s.events, eventID, actor, true); err != nil {
		return err
	}

	image, err := s.media.GetImage(ctx, eventID, imageID)
	if err != nil {
		return domainError(err, "failed to load image")
	}
	if err := s.media.DeleteImage(ctx, eventID, imageID); err != nil {
		return domainError(err, "failed to delete image")
	}
	if err := s.deps.Files.Delete(ctx, image.URL); err != nil {
		log.Warn().Err(err).Str("url", image.URL).Msg("Failed to delete image file")
	}
	if image.IsPreview {
		bumpSearchVersion(ctx, s.deps)
	}
	return nil
}
