// Package stream mints and redeems short-lived streaming links and records
// every accepted access in the view ledger.
//
// Minting requires an authenticated administrator; redemption requires only
// the stream token, which acts as a capability for its ten-minute lifetime.
// Tokens may be redeemed repeatedly while valid, and the redeeming address is
// recorded but not compared with the one embedded at mint time.
package stream

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/YannKr/medialink/internal/apperr"
	"github.com/YannKr/medialink/internal/auth"
	"github.com/YannKr/medialink/internal/clock"
	"github.com/YannKr/medialink/internal/media"
	"github.com/YannKr/medialink/internal/metrics"
	"github.com/YannKr/medialink/internal/model"
	"github.com/YannKr/medialink/internal/store"
)

const ExpiresIn = "10 minutes"

const (
	MsgTokenRequired = "Streaming token required."
	MsgTokenInvalid  = "Streaming token is invalid or expired."
	MsgMediaMismatch = "Media ID mismatch."
)

type Link struct {
	StreamURL string
	Token     string
	ExpiresIn string
	ExpiresAt time.Time
}

type Redemption struct {
	Media           *model.MediaAsset
	ActualStreamURL string
	ViewLogID       string
}

type Gate struct {
	catalog *media.Catalog
	views   store.Views
	tokens  *auth.TokenService
	clock   clock.Clock
	baseURL string
}

func NewGate(catalog *media.Catalog, views store.Views, tokens *auth.TokenService, c clock.Clock, baseURL string) *Gate {
	if c == nil {
		c = clock.System{}
	}
	return &Gate{
		catalog: catalog,
		views:   views,
		tokens:  tokens,
		clock:   c,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// RequestStreamURL mints a stream token for an existing asset. Ownership is
// not required; any authenticated administrator may mint.
func (g *Gate) RequestStreamURL(ctx context.Context, mediaID, viewerIP string) (*Link, error) {
	asset, err := g.catalog.Get(ctx, mediaID)
	if err != nil {
		return nil, err
	}

	token, exp, err := g.tokens.IssueStream(asset.ID, viewerIP)
	if err != nil {
		return nil, apperr.Internal("Failed to generate stream URL.", err)
	}
	metrics.StreamTokensIssued.Inc()

	return &Link{
		StreamURL: g.baseURL + "/api/media/" + url.PathEscape(asset.ID) + "/stream?token=" + url.QueryEscape(token),
		Token:     token,
		ExpiresIn: ExpiresIn,
		ExpiresAt: exp,
	}, nil
}

// Redeem verifies token against the asset named in the path and appends a
// ledger entry attributed to the viewer address carried in the token.
func (g *Gate) Redeem(ctx context.Context, mediaID, token, userAgent string) (*Redemption, error) {
	if token == "" {
		metrics.RecordRedemption(metrics.RedeemInvalidToken)
		return nil, apperr.Authentication(MsgTokenRequired)
	}
	grant, err := g.tokens.VerifyStream(token)
	if err != nil {
		metrics.RecordRedemption(metrics.RedeemInvalidToken)
		return nil, &apperr.Error{Kind: apperr.KindAuthentication, Message: MsgTokenInvalid, Err: err}
	}
	if grant.MediaID != mediaID {
		metrics.RecordRedemption(metrics.RedeemMediaMismatch)
		return nil, apperr.Validation(MsgMediaMismatch)
	}

	asset, err := g.catalog.Get(ctx, mediaID)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			metrics.RecordRedemption(metrics.RedeemNotFound)
		} else {
			metrics.RecordRedemption(metrics.RedeemError)
		}
		return nil, err
	}

	entry := &model.ViewLogEntry{
		ID:        uuid.NewString(),
		MediaID:   asset.ID,
		ViewerIP:  grant.ViewerIP,
		UserAgent: userAgent,
		TokenUsed: token,
		Timestamp: g.clock.Now(),
	}
	if err := g.views.RecordView(ctx, entry); err != nil {
		metrics.RecordRedemption(metrics.RedeemError)
		return nil, apperr.Internal("Failed to record view.", err)
	}
	asset.ViewCount++
	metrics.RecordRedemption(metrics.RedeemOK)
	metrics.RecordView("stream")

	return &Redemption{
		Media:           asset,
		ActualStreamURL: withToken(asset.FileURL, token),
		ViewLogID:       entry.ID,
	}, nil
}

// LogView records a view that did not come through redemption. token is
// stored verbatim as provenance and is not verified.
func (g *Gate) LogView(ctx context.Context, mediaID, viewerIP, userAgent, token string) (*model.ViewLogEntry, error) {
	asset, err := g.catalog.Get(ctx, mediaID)
	if err != nil {
		return nil, err
	}
	if token == "" {
		token = model.DirectToken
	}

	entry := &model.ViewLogEntry{
		ID:        uuid.NewString(),
		MediaID:   asset.ID,
		ViewerIP:  viewerIP,
		UserAgent: userAgent,
		TokenUsed: token,
		Timestamp: g.clock.Now(),
	}
	if err := g.views.RecordView(ctx, entry); err != nil {
		return nil, apperr.Internal("Failed to log view.", err)
	}
	source := "stream"
	if token == model.DirectToken {
		source = "direct"
	}
	metrics.RecordView(source)
	return entry, nil
}

func withToken(fileURL, token string) string {
	u, err := url.Parse(fileURL)
	if err != nil {
		return fileURL + "?token=" + url.QueryEscape(token)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}
