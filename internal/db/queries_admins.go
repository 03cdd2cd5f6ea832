package db

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/YannKr/medialink/internal/model"
	"github.com/YannKr/medialink/internal/store"
)

const adminColumns = `id, email, password_hash, verified, otp_code, otp_expires_at,
	reset_otp_code, reset_otp_expires_at, created_at`

func otpColumns(o *model.OTPState) (*string, *string) {
	if o == nil {
		return nil, nil
	}
	code := o.Code
	return &code, formatTimePtr(&o.ExpiresAt)
}

func otpFromColumns(code sql.NullString, expiresAt SQLiteTime) *model.OTPState {
	if !code.Valid || !expiresAt.Valid {
		return nil
	}
	return &model.OTPState{Code: code.String, ExpiresAt: expiresAt.Time}
}

func CreateAdmin(ctx context.Context, database *sql.DB, a *model.Administrator) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	otpCode, otpExp := otpColumns(a.OTP)
	resetCode, resetExp := otpColumns(a.ResetOTP)
	_, err := database.ExecContext(ctx,
		`INSERT INTO administrators (id, email, password_hash, verified, otp_code, otp_expires_at,
		  reset_otp_code, reset_otp_expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Email, a.PasswordHash, a.Verified, otpCode, otpExp, resetCode, resetExp,
		formatTime(a.CreatedAt),
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed: administrators.email") {
		return store.ErrDuplicateEmail
	}
	return err
}

func scanAdmin(row *sql.Row) (*model.Administrator, error) {
	a := &model.Administrator{}
	var otpCode, resetCode sql.NullString
	var otpExp, resetExp, createdAt SQLiteTime
	err := row.Scan(&a.ID, &a.Email, &a.PasswordHash, &a.Verified, &otpCode, &otpExp,
		&resetCode, &resetExp, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.OTP = otpFromColumns(otpCode, otpExp)
	a.ResetOTP = otpFromColumns(resetCode, resetExp)
	a.CreatedAt = createdAt.Time
	return a, nil
}

func GetAdminByID(ctx context.Context, database *sql.DB, id string) (*model.Administrator, error) {
	return scanAdmin(database.QueryRowContext(ctx,
		`SELECT `+adminColumns+` FROM administrators WHERE id = ?`, id))
}

// GetAdminByEmail matches case-insensitively through the column collation.
func GetAdminByEmail(ctx context.Context, database *sql.DB, email string) (*model.Administrator, error) {
	return scanAdmin(database.QueryRowContext(ctx,
		`SELECT `+adminColumns+` FROM administrators WHERE email = ?`, email))
}

func UpdateAdmin(ctx context.Context, database *sql.DB, a *model.Administrator) error {
	otpCode, otpExp := otpColumns(a.OTP)
	resetCode, resetExp := otpColumns(a.ResetOTP)
	_, err := database.ExecContext(ctx,
		`UPDATE administrators SET password_hash = ?, verified = ?, otp_code = ?, otp_expires_at = ?,
		  reset_otp_code = ?, reset_otp_expires_at = ?
		 WHERE id = ?`,
		a.PasswordHash, a.Verified, otpCode, otpExp, resetCode, resetExp, a.ID,
	)
	return err
}

func ClearExpiredOTPs(ctx context.Context, database *sql.DB, now time.Time) (int64, error) {
	cutoff := formatTime(now)
	tx, err := database.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var total int64
	res, err := tx.ExecContext(ctx,
		`UPDATE administrators SET otp_code = NULL, otp_expires_at = NULL
		 WHERE otp_expires_at IS NOT NULL AND otp_expires_at <= ?`, cutoff)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	total += n

	res, err = tx.ExecContext(ctx,
		`UPDATE administrators SET reset_otp_code = NULL, reset_otp_expires_at = NULL
		 WHERE reset_otp_expires_at IS NOT NULL AND reset_otp_expires_at <= ?`, cutoff)
	if err != nil {
		return 0, err
	}
	n, _ = res.RowsAffected()
	total += n

	return total, tx.Commit()
}
