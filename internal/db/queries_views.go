package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/YannKr/medialink/internal/model"
	"github.com/YannKr/medialink/internal/store"
)

// RecordView inserts the ledger row and bumps view_count in one transaction.
func RecordView(ctx context.Context, database *sql.DB, e *model.ViewLogEntry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	tx, err := database.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO view_log (id, media_id, viewer_ip, user_agent, token_used, viewed_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.MediaID, e.ViewerIP, e.UserAgent, e.TokenUsed, formatTime(e.Timestamp),
	); err != nil {
		return fmt.Errorf("insert view: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE media_assets SET view_count = view_count + 1 WHERE id = ?`, e.MediaID)
	if err != nil {
		return fmt.Errorf("increment view_count: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("increment view_count: media %s not found", e.MediaID)
	}

	return tx.Commit()
}

func ListViews(ctx context.Context, database *sql.DB, q store.ViewQuery) ([]model.ViewLogEntry, error) {
	var b strings.Builder
	b.WriteString(`SELECT id, media_id, viewer_ip, user_agent, token_used, viewed_at
		FROM view_log WHERE media_id = ?`)
	args := []interface{}{q.MediaID}
	if !q.Since.IsZero() {
		b.WriteString(` AND viewed_at >= ?`)
		args = append(args, formatTime(q.Since))
	}
	if !q.Until.IsZero() {
		b.WriteString(` AND viewed_at <= ?`)
		args = append(args, formatTime(q.Until))
	}
	if q.Descending {
		b.WriteString(` ORDER BY viewed_at DESC, rowid DESC`)
	} else {
		b.WriteString(` ORDER BY viewed_at ASC, rowid ASC`)
	}

	rows, err := database.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ViewLogEntry
	for rows.Next() {
		var e model.ViewLogEntry
		var viewedAt SQLiteTime
		if err := rows.Scan(&e.ID, &e.MediaID, &e.ViewerIP, &e.UserAgent, &e.TokenUsed, &viewedAt); err != nil {
			return nil, err
		}
		e.Timestamp = viewedAt.Time
		out = append(out, e)
	}
	return out, rows.Err()
}

func CountViews(ctx context.Context, database *sql.DB, mediaID string) (int64, error) {
	var n int64
	err := database.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM view_log WHERE media_id = ?`, mediaID).Scan(&n)
	return n, err
}
