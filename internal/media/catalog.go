// Package media keeps the catalog of media assets owned by administrators.
package media

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/YannKr/medialink/internal/apperr"
	"github.com/YannKr/medialink/internal/clock"
	"github.com/YannKr/medialink/internal/model"
	"github.com/YannKr/medialink/internal/store"
	"github.com/YannKr/medialink/internal/validation"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

const (
	MsgInvalidID = "Invalid media ID."
	MsgNotFound  = "Media asset not found."
)

type CreateInput struct {
	Title   string `json:"title" validate:"required,max=200"`
	Type    string `json:"type" validate:"required,oneof=video audio"`
	FileURL string `json:"file_url" validate:"required,http_url"`
}

type Page struct {
	Media []model.MediaAsset
	Page  int
	Limit int
	Total int
	Pages int
}

type Catalog struct {
	media store.Media
	clock clock.Clock
}

func NewCatalog(media store.Media, c clock.Clock) *Catalog {
	if c == nil {
		c = clock.System{}
	}
	return &Catalog{media: media, clock: c}
}

// ValidateID rejects ids that could never name an asset, before any lookup.
func ValidateID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return apperr.Validation(MsgInvalidID)
	}
	return nil
}

func (c *Catalog) Create(ctx context.Context, ownerID string, in CreateInput) (*model.MediaAsset, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Type = strings.ToLower(strings.TrimSpace(in.Type))
	in.FileURL = strings.TrimSpace(in.FileURL)
	if err := validation.Struct(&in); err != nil {
		return nil, err
	}

	asset := &model.MediaAsset{
		ID:        uuid.NewString(),
		Title:     in.Title,
		Type:      model.MediaType(in.Type),
		FileURL:   in.FileURL,
		OwnerID:   ownerID,
		CreatedAt: c.clock.Now(),
	}
	if err := c.media.CreateMedia(ctx, asset); err != nil {
		return nil, apperr.Internal("Failed to create media asset.", err)
	}
	return asset, nil
}

// Get returns the asset or a NotFound error; malformed ids are a Validation error.
func (c *Catalog) Get(ctx context.Context, id string) (*model.MediaAsset, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	asset, err := c.media.GetMedia(ctx, id)
	if err != nil {
		return nil, apperr.Internal("Failed to load media asset.", err)
	}
	if asset == nil {
		return nil, apperr.NotFound(MsgNotFound)
	}
	return asset, nil
}

// List pages through the owner's assets, newest first. Out-of-range page
// and limit values are clamped.
func (c *Catalog) List(ctx context.Context, ownerID string, page, limit int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	total, err := c.media.CountMediaByOwner(ctx, ownerID)
	if err != nil {
		return nil, apperr.Internal("Failed to list media.", err)
	}
	pages := (total + limit - 1) / limit
	res := &Page{
		Media: []model.MediaAsset{},
		Page:  page,
		Limit: limit,
		Total: total,
		Pages: pages,
	}
	// Pages past the end are empty; checking first keeps the offset from overflowing.
	if page > pages {
		return res, nil
	}

	assets, err := c.media.ListMediaByOwner(ctx, ownerID, (page-1)*limit, limit)
	if err != nil {
		return nil, apperr.Internal("Failed to list media.", err)
	}
	if assets != nil {
		res.Media = assets
	}
	return res, nil
}
