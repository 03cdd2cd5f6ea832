package model

import "time"

// DirectToken marks ledger rows that were logged without a stream token.
const DirectToken = "direct"

type MediaType string

const (
	MediaVideo MediaType = "video"
	MediaAudio MediaType = "audio"
)

func (t MediaType) Valid() bool {
	return t == MediaVideo || t == MediaAudio
}

// OTPState is a pending one-time passcode. A nil *OTPState means none is pending.
type OTPState struct {
	Code      string
	ExpiresAt time.Time
}

func (o *OTPState) Expired(now time.Time) bool {
	return o == nil || !now.Before(o.ExpiresAt)
}

type Administrator struct {
	ID           string
	Email        string
	PasswordHash string
	Verified     bool
	OTP          *OTPState
	ResetOTP     *OTPState
	CreatedAt    time.Time
}

type MediaAsset struct {
	ID        string
	Title     string
	Type      MediaType
	FileURL   string
	OwnerID   string
	ViewCount int64
	CreatedAt time.Time
}

type ViewLogEntry struct {
	ID        string
	MediaID   string
	ViewerIP  string
	UserAgent string
	TokenUsed string
	Timestamp time.Time
}
