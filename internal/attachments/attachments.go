// Package attachments manages community stylesheet images. Each image gets
// a slot number that stays stable until the image is deleted, and its bytes
// are stored under a key derived from the slot.
package attachments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/alphabot-ai/threadcache/internal/slots"
)

const contentType = "image/png"

var (
	ErrInvalidName   = errors.New("invalid image name")
	ErrEmptyImage    = errors.New("image is empty")
	ErrImageNotFound = errors.New("image not found")
)

var validName = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

type Image struct {
	Name string `json:"name"`
	Slot int    `json:"slot"`
	Key  string `json:"key"`
}

type Service struct {
	slots  *slots.Allocator
	blobs  Blobstore
	prefix string
	max    int
	logger *slog.Logger
}

// NewService returns an image service. max caps images per community; zero
// or less means no cap.
func NewService(allocator *slots.Allocator, blobs Blobstore, prefix string, max int, logger *slog.Logger) *Service {
	if max <= 0 {
		max = slots.NoLimit
	}
	return &Service{slots: allocator, blobs: blobs, prefix: prefix, max: max, logger: logger}
}

// Key is the blob key of a community's slot.
func (s *Service) Key(communityID string, slot int) string {
	key := fmt.Sprintf("%s_%d.png", communityID, slot)
	if s.prefix == "" {
		return key
	}
	return s.prefix + "/" + key
}

// Upload stores data as the community's image called name. Re-uploading a
// name overwrites its blob in place. A full community yields
// slots.ErrSlotLimitExceeded.
func (s *Service) Upload(ctx context.Context, communityID, name string, data []byte) (*Image, error) {
	if !validName.MatchString(name) {
		return nil, ErrInvalidName
	}
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}

	slot, created, err := s.slots.Allocate(ctx, communityID, name, s.max)
	if err != nil {
		return nil, err
	}

	img := &Image{Name: name, Slot: slot, Key: s.Key(communityID, slot)}
	if err := s.blobs.Put(ctx, img.Key, data, contentType); err != nil {
		// A new name must not keep a slot with no bytes behind it. A
		// re-upload keeps its slot and its previous blob.
		if created {
			if _, _, relErr := s.slots.Release(ctx, communityID, name); relErr != nil {
				s.logger.Error("failed to release slot after failed upload", "community", communityID, "name", name, "slot", slot, "error", relErr)
			}
		}
		return nil, fmt.Errorf("store image %s: %w", name, err)
	}
	s.logger.Info("community image stored", "community", communityID, "name", name, "slot", slot)
	return img, nil
}

// Delete removes the image and frees its slot. It reports false when the
// community had no such image.
func (s *Service) Delete(ctx context.Context, communityID, name string) (bool, error) {
	slot, found, err := s.slots.Release(ctx, communityID, name)
	if err != nil || !found {
		return false, err
	}
	if err := s.blobs.Delete(ctx, s.Key(communityID, slot)); err != nil {
		// the slot is free again; a stale blob is overwritten on reuse
		s.logger.Warn("failed to delete image blob", "community", communityID, "slot", slot, "error", err)
	}
	return true, nil
}

// List returns the community's images ordered by slot.
func (s *Service) List(ctx context.Context, communityID string) ([]Image, error) {
	entries, err := s.slots.List(ctx, communityID)
	if err != nil {
		return nil, err
	}
	images := make([]Image, len(entries))
	for i, e := range entries {
		images[i] = Image{Name: e.Name, Slot: e.Slot, Key: s.Key(communityID, e.Slot)}
	}
	return images, nil
}

// Open returns the bytes of the named image.
func (s *Service) Open(ctx context.Context, communityID, name string) ([]byte, error) {
	images, err := s.List(ctx, communityID)
	if err != nil {
		return nil, err
	}
	for _, img := range images {
		if img.Name == name {
			data, err := s.blobs.Get(ctx, img.Key)
			if errors.Is(err, ErrBlobNotFound) {
				return nil, ErrImageNotFound
			}
			return data, err
		}
	}
	return nil, ErrImageNotFound
}
