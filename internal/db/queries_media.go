package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/YannKr/medialink/internal/model"
)

func CreateMedia(ctx context.Context, database *sql.DB, m *model.MediaAsset) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	_, err := database.ExecContext(ctx,
		`INSERT INTO media_assets (id, title, media_type, file_url, owner_id, view_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Title, string(m.Type), m.FileURL, m.OwnerID, m.ViewCount, formatTime(m.CreatedAt),
	)
	return err
}

func GetMedia(ctx context.Context, database *sql.DB, id string) (*model.MediaAsset, error) {
	m := &model.MediaAsset{}
	var mediaType string
	var createdAt SQLiteTime
	err := database.QueryRowContext(ctx,
		`SELECT id, title, media_type, file_url, owner_id, view_count, created_at
		 FROM media_assets WHERE id = ?`, id,
	).Scan(&m.ID, &m.Title, &mediaType, &m.FileURL, &m.OwnerID, &m.ViewCount, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m.Type = model.MediaType(mediaType)
	m.CreatedAt = createdAt.Time
	return m, nil
}

func ListMediaByOwner(ctx context.Context, database *sql.DB, ownerID string, offset, limit int) ([]model.MediaAsset, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := database.QueryContext(ctx,
		`SELECT id, title, media_type, file_url, owner_id, view_count, created_at
		 FROM media_assets WHERE owner_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ? OFFSET ?`, ownerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.MediaAsset
	for rows.Next() {
		var m model.MediaAsset
		var mediaType string
		var createdAt SQLiteTime
		if err := rows.Scan(&m.ID, &m.Title, &mediaType, &m.FileURL, &m.OwnerID, &m.ViewCount, &createdAt); err != nil {
			return nil, err
		}
		m.Type = model.MediaType(mediaType)
		m.CreatedAt = createdAt.Time
		out = append(out, m)
	}
	return out, rows.Err()
}

func CountMediaByOwner(ctx context.Context, database *sql.DB, ownerID string) (int, error) {
	var n int
	err := database.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM media_assets WHERE owner_id = ?`, ownerID).Scan(&n)
	return n, err
}

func ListMediaIDs(ctx context.Context, database *sql.DB) ([]string, error) {
	rows, err := database.QueryContext(ctx, `SELECT id FROM media_assets ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func SetViewCount(ctx context.Context, database *sql.DB, id string, count int64) error {
	_, err := database.ExecContext(ctx,
		`UPDATE media_assets SET view_count = ? WHERE id = ?`, count, id)
	return err
}
