package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"time"

	"github.com/YannKr/medialink/internal/model"
)

const (
	OTPDigits = 6
	OTPTTL    = 10 * time.Minute
)

var otpMax = big.NewInt(1_000_000)

// NewOTP draws a zero-padded 6-digit code valid for OTPTTL from now.
func NewOTP(now time.Time) (*model.OTPState, error) {
	n, err := rand.Int(rand.Reader, otpMax)
	if err != nil {
		return nil, fmt.Errorf("generate otp: %w", err)
	}
	return &model.OTPState{
		Code:      fmt.Sprintf("%0*d", OTPDigits, n.Int64()),
		ExpiresAt: now.Add(OTPTTL),
	}, nil
}

// MatchOTP reports whether code matches state and state has not expired.
func MatchOTP(state *model.OTPState, code string, now time.Time) bool {
	if state == nil || state.Expired(now) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(state.Code), []byte(code)) == 1
}
