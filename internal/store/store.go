// Package store declares the persistence collaborators used by the services.
//
// Lookups return (nil, nil) when the record does not exist; callers decide
// how absence is reported to clients.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/YannKr/medialink/internal/model"
)

// ErrDuplicateEmail is returned by CreateAdmin when the email is taken.
var ErrDuplicateEmail = errors.New("store: email already registered")

type Admins interface {
	CreateAdmin(ctx context.Context, a *model.Administrator) error
	GetAdminByID(ctx context.Context, id string) (*model.Administrator, error)
	GetAdminByEmail(ctx context.Context, email string) (*model.Administrator, error)
	UpdateAdmin(ctx context.Context, a *model.Administrator) error
	// ClearExpiredOTPs drops OTP and reset-OTP states that expired before now.
	ClearExpiredOTPs(ctx context.Context, now time.Time) (int64, error)
}

type Media interface {
	CreateMedia(ctx context.Context, m *model.MediaAsset) error
	GetMedia(ctx context.Context, id string) (*model.MediaAsset, error)
	// ListMediaByOwner returns the owner's assets newest first. A limit <= 0
	// returns every asset from offset on.
	ListMediaByOwner(ctx context.Context, ownerID string, offset, limit int) ([]model.MediaAsset, error)
	CountMediaByOwner(ctx context.Context, ownerID string) (int, error)
	ListMediaIDs(ctx context.Context) ([]string, error)
	SetViewCount(ctx context.Context, id string, count int64) error
}

// ViewQuery selects ledger rows for one media asset. Zero Since/Until leave
// that side of the range open.
type ViewQuery struct {
	MediaID    string
	Since      time.Time
	Until      time.Time
	Descending bool
}

type Views interface {
	// RecordView appends e to the ledger and increments the asset's
	// view_count as one atomic unit.
	RecordView(ctx context.Context, e *model.ViewLogEntry) error
	ListViews(ctx context.Context, q ViewQuery) ([]model.ViewLogEntry, error)
	CountViews(ctx context.Context, mediaID string) (int64, error)
}

type Store interface {
	Admins
	Media
	Views
}
