package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/YannKr/medialink/internal/model"
	"github.com/YannKr/medialink/internal/store"
)

// Store adapts the query functions to store.Store.
type Store struct {
	DB *sql.DB
}

var _ store.Store = (*Store)(nil)

func NewStore(database *sql.DB) *Store {
	return &Store{DB: database}
}

func (s *Store) CreateAdmin(ctx context.Context, a *model.Administrator) error {
	return CreateAdmin(ctx, s.DB, a)
}

func (s *Store) GetAdminByID(ctx context.Context, id string) (*model.Administrator, error) {
	return GetAdminByID(ctx, s.DB, id)
}

func (s *Store) GetAdminByEmail(ctx context.Context, email string) (*model.Administrator, error) {
	return GetAdminByEmail(ctx, s.DB, email)
}

func (s *Store) UpdateAdmin(ctx context.Context, a *model.Administrator) error {
	return UpdateAdmin(ctx, s.DB, a)
}

func (s *Store) ClearExpiredOTPs(ctx context.Context, now time.Time) (int64, error) {
	return ClearExpiredOTPs(ctx, s.DB, now)
}

func (s *Store) CreateMedia(ctx context.Context, m *model.MediaAsset) error {
	return CreateMedia(ctx, s.DB, m)
}

func (s *Store) GetMedia(ctx context.Context, id string) (*model.MediaAsset, error) {
	return GetMedia(ctx, s.DB, id)
}

func (s *Store) ListMediaByOwner(ctx context.Context, ownerID string, offset, limit int) ([]model.MediaAsset, error) {
	return ListMediaByOwner(ctx, s.DB, ownerID, offset, limit)
}

func (s *Store) CountMediaByOwner(ctx context.Context, ownerID string) (int, error) {
	return CountMediaByOwner(ctx, s.DB, ownerID)
}

func (s *Store) ListMediaIDs(ctx context.Context) ([]string, error) {
	return ListMediaIDs(ctx, s.DB)
}

func (s *Store) SetViewCount(ctx context.Context, id string, count int64) error {
	return SetViewCount(ctx, s.DB, id, count)
}

func (s *Store) RecordView(ctx context.Context, e *model.ViewLogEntry) error {
	return RecordView(ctx, s.DB, e)
}

func (s *Store) ListViews(ctx context.Context, q store.ViewQuery) ([]model.ViewLogEntry, error) {
	return ListViews(ctx, s.DB, q)
}

func (s *Store) CountViews(ctx context.Context, mediaID string) (int64, error) {
	return CountViews(ctx, s.DB, mediaID)
}
