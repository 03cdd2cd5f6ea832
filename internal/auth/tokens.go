package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/YannKr/medialink/internal/clock"
)

// StreamTTL bounds how long a minted stream link stays redeemable.
const StreamTTL = 10 * time.Minute

const (
	kindSession = "session"
	kindStream  = "stream"
)

// ErrInvalidToken covers every verification failure: bad signature, expiry,
// wrong purpose, malformed payload.
var ErrInvalidToken = errors.New("invalid token")

type sessionClaims struct {
	Kind string `json:"kind"`
	jwt.RegisteredClaims
}

type streamClaims struct {
	Kind     string `json:"kind"`
	MediaID  string `json:"media_id"`
	ViewerIP string `json:"viewer_ip"`
	jwt.RegisteredClaims
}

// StreamGrant is the payload recovered from a valid stream token.
type StreamGrant struct {
	MediaID   string
	ViewerIP  string
	ExpiresAt time.Time
}

// TokenService signs session and stream tokens under two independent HMAC
// keys. It holds no state besides its keys and clock.
type TokenService struct {
	sessionKey []byte
	streamKey  []byte
	clock      clock.Clock
}

func NewTokenService(sessionSecret, streamSecret string, c clock.Clock) (*TokenService, error) {
	if sessionSecret == "" || streamSecret == "" {
		return nil, errors.New("token secrets must not be empty")
	}
	if sessionSecret == streamSecret {
		return nil, errors.New("session and stream secrets must differ")
	}
	if c == nil {
		c = clock.System{}
	}
	return &TokenService{
		sessionKey: []byte(sessionSecret),
		streamKey:  []byte(streamSecret),
		clock:      c,
	}, nil
}

// IssueSession returns a bearer token identifying adminID for ttl. The
// returned expiry is the one encoded in the token, truncated to the second.
func (s *TokenService) IssueSession(adminID string, ttl time.Duration) (string, time.Time, error) {
	now := s.clock.Now()
	exp := now.Add(ttl)
	claims := sessionClaims{
		Kind: kindSession,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   adminID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.sessionKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session token: %w", err)
	}
	return signed, claims.ExpiresAt.Time, nil
}

// VerifySession returns the administrator id carried by token.
func (s *TokenService) VerifySession(token string) (string, error) {
	claims := &sessionClaims{}
	if err := s.parse(token, claims, s.sessionKey); err != nil {
		return "", err
	}
	if claims.Kind != kindSession || claims.Subject == "" {
		return "", fmt.Errorf("%w: not a session token", ErrInvalidToken)
	}
	return claims.Subject, nil
}

// IssueStream mints a stream token for mediaID bound to viewerIP, valid for
// StreamTTL.
func (s *TokenService) IssueStream(mediaID, viewerIP string) (string, time.Time, error) {
	now := s.clock.Now()
	exp := now.Add(StreamTTL)
	claims := streamClaims{
		Kind:     kindStream,
		MediaID:  mediaID,
		ViewerIP: viewerIP,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.streamKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign stream token: %w", err)
	}
	return signed, claims.ExpiresAt.Time, nil
}

func (s *TokenService) VerifyStream(token string) (StreamGrant, error) {
	claims := &streamClaims{}
	if err := s.parse(token, claims, s.streamKey); err != nil {
		return StreamGrant{}, err
	}
	if claims.Kind != kindStream || claims.MediaID == "" {
		return StreamGrant{}, fmt.Errorf("%w: not a stream token", ErrInvalidToken)
	}
	return StreamGrant{
		MediaID:   claims.MediaID,
		ViewerIP:  claims.ViewerIP,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func (s *TokenService) parse(token string, claims jwt.Claims, key []byte) error {
	if token == "" {
		return fmt.Errorf("%w: empty", ErrInvalidToken)
	}
	_, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (interface{}, error) { return key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.clock.Now),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return nil
}
