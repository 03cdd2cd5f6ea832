package handler

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/YannKr/medialink/internal/account"
	"github.com/YannKr/medialink/internal/analytics"
	"github.com/YannKr/medialink/internal/auth"
	"github.com/YannKr/medialink/internal/cache"
	"github.com/YannKr/medialink/internal/clock"
	"github.com/YannKr/medialink/internal/config"
	"github.com/YannKr/medialink/internal/geo"
	"github.com/YannKr/medialink/internal/media"
	"github.com/YannKr/medialink/internal/store"
	"github.com/YannKr/medialink/internal/stream"
)

type captureMailer struct {
	mu   sync.Mutex
	otps map[string]string
}

func (m *captureMailer) SendOTP(_ context.Context, to, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.otps[to] = code
	return nil
}

func (m *captureMailer) SendPasswordReset(_ context.Context, to, code string) error {
	return m.SendOTP(context.Background(), to, code)
}

func (m *captureMailer) code(to string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.otps[to]
}

type testServer struct {
	router chi.Router
	mailer *captureMailer
	store  *store.Memory
	clock  *clock.Manual
}

func newTestServer(t *testing.T, viewLimit int) *testServer {
	t.Helper()
	cfg := &config.Config{}
	cfg.Views.RateLimit = viewLimit
	return newTestServerWithConfig(t, cfg)
}

func newTestServerWithConfig(t *testing.T, cfg *config.Config) *testServer {
	t.Helper()
	clk := clock.NewManual(time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))
	st := store.NewMemory()
	mailer := &captureMailer{otps: map[string]string{}}

	tokens, err := auth.NewTokenService("session-secret", "stream-secret", clk)
	if err != nil {
		t.Fatal(err)
	}
	accounts := account.NewService(st, tokens, mailer, clk, account.Options{})
	catalog := media.NewCatalog(st, clk)
	gate := stream.NewGate(catalog, st, tokens, clk, "http://localhost:5000")

	c := cache.NewMemory(clk, 0)
	t.Cleanup(func() { c.Close() })
	locator := geo.NewLocator(geo.Static{"8.8.8.8": "United States"}, geo.Options{})
	engine := analytics.NewEngine(st, st, c, locator, clk, analytics.Options{})

	h := New(accounts, catalog, gate, engine, cfg, clk)
	return &testServer{router: h.Routes(nil), mailer: mailer, store: st, clock: clk}
}

type response struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Cached  *bool           `json:"cached"`
	Error   string          `json:"error"`
}

func (s *testServer) do(t *testing.T, method, target, token string, body any) (int, response) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var resp response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("%s %s: decode %q: %v", method, target, rec.Body.String(), err)
	}
	return rec.Code, resp
}

func decodeData(t *testing.T, resp response, v any) {
	t.Helper()
	if err := json.Unmarshal(resp.Data, v); err != nil {
		t.Fatalf("decode data %s: %v", resp.Data, err)
	}
}

// register runs sign-up, OTP verification and login, returning a session token.
func (s *testServer) register(t *testing.T, email, password string) string {
	t.Helper()
	code, resp := s.do(t, http.MethodPost, "/api/auth/sign-up", "", map[string]string{"email": email, "password": password})
	if code != http.StatusCreated {
		t.Fatalf("sign-up %s: %d %s", email, code, resp.Message)
	}
	otp := s.mailer.code(email)
	if len(otp) != 6 {
		t.Fatalf("otp = %q", otp)
	}

	code, resp = s.do(t, http.MethodPost, "/api/auth/verify-otp", "", map[string]string{"email": email, "otp": otp})
	if code != http.StatusOK {
		t.Fatalf("verify-otp: %d %s", code, resp.Message)
	}

	code, resp = s.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": email, "password": password})
	if code != http.StatusOK {
		t.Fatalf("login: %d %s", code, resp.Message)
	}
	var sess sessionResponse
	decodeData(t, resp, &sess)
	if sess.Token == "" || sess.User.Email != email {
		t.Fatalf("session = %+v", sess)
	}
	return sess.Token
}

func (s *testServer) createMedia(t *testing.T, token, title string) apiMedia {
	t.Helper()
	code, resp := s.do(t, http.MethodPost, "/api/media", token, map[string]string{
		"title": title, "type": "video", "file_url": "https://cdn/x.mp4",
	})
	if code != http.StatusCreated {
		t.Fatalf("create media: %d %s", code, resp.Message)
	}
	var m apiMedia
	decodeData(t, resp, &m)
	return m
}

func (s *testServer) dashboard(t *testing.T, token string) analytics.Dashboard {
	t.Helper()
	code, resp := s.do(t, http.MethodGet, "/api/analytics/dashboard", token, nil)
	if code != http.StatusOK {
		t.Fatalf("dashboard: %d %s", code, resp.Message)
	}
	var d analytics.Dashboard
	decodeData(t, resp, &d)
	return d
}

func (s *testServer) mint(t *testing.T, token, mediaID string) string {
	t.Helper()
	code, resp := s.do(t, http.MethodGet, "/api/media/"+mediaID+"/stream-url", token, nil)
	if code != http.StatusOK {
		t.Fatalf("stream-url: %d %s", code, resp.Message)
	}
	var link struct {
		StreamURL string `json:"stream_url"`
		ExpiresIn string `json:"expires_in"`
	}
	decodeData(t, resp, &link)
	if link.ExpiresIn != "10 minutes" {
		t.Errorf("expires_in = %q", link.ExpiresIn)
	}
	u, err := url.Parse(link.StreamURL)
	if err != nil {
		t.Fatal(err)
	}
	if u.Path != "/api/media/"+mediaID+"/stream" {
		t.Errorf("stream path = %q", u.Path)
	}
	return u.Query().Get("token")
}

func TestStreamingScenario(t *testing.T) {
	s := newTestServer(t, 10)

	alice := s.register(t, "alice@example.com", "pw1")
	demo := s.createMedia(t, alice, "Demo")

	d := s.dashboard(t, alice)
	if d.TotalMedia != 1 || d.TotalViews != 0 {
		t.Fatalf("dashboard before = %+v", d)
	}

	streamToken := s.mint(t, alice, demo.ID)

	// Redemption takes no session token.
	code, resp := s.do(t, http.MethodGet, "/api/media/"+demo.ID+"/stream?token="+url.QueryEscape(streamToken), "", nil)
	if code != http.StatusOK {
		t.Fatalf("redeem: %d %s", code, resp.Message)
	}
	var red struct {
		Media struct {
			Title           string `json:"title"`
			FileURL         string `json:"file_url"`
			ActualStreamURL string `json:"actual_stream_url"`
			ViewLogID       string `json:"view_log_id"`
		} `json:"media"`
	}
	decodeData(t, resp, &red)
	if red.Media.Title != "Demo" || red.Media.ViewLogID == "" {
		t.Errorf("redemption = %+v", red.Media)
	}
	if !strings.HasPrefix(red.Media.ActualStreamURL, "https://cdn/x.mp4?token=") {
		t.Errorf("actual_stream_url = %q", red.Media.ActualStreamURL)
	}

	d = s.dashboard(t, alice)
	if d.TotalViews != 1 {
		t.Fatalf("dashboard total_views = %d, want 1", d.TotalViews)
	}
	asset, err := s.store.GetMedia(context.Background(), demo.ID)
	if err != nil {
		t.Fatal(err)
	}
	if asset.ViewCount != 1 {
		t.Fatalf("view_count = %d, want 1", asset.ViewCount)
	}

	// First analytics read populates the cache, the second is served from it.
	code, first := s.do(t, http.MethodGet, "/api/analytics/media/"+demo.ID+"/analytics?days=7", alice, nil)
	if code != http.StatusOK || first.Cached == nil || *first.Cached {
		t.Fatalf("first analytics: %d cached=%v", code, first.Cached)
	}
	code, second := s.do(t, http.MethodGet, "/api/analytics/media/"+demo.ID+"/analytics?days=7", alice, nil)
	if code != http.StatusOK || second.Cached == nil || !*second.Cached {
		t.Fatalf("second analytics: %d cached=%v", code, second.Cached)
	}
	if !bytes.Equal(first.Data, second.Data) {
		t.Errorf("cached data differs:\n%s\n%s", first.Data, second.Data)
	}
	var report struct {
		Analytics struct {
			TotalViews    int `json:"total_views"`
			UniqueViewers int `json:"unique_viewers"`
		} `json:"analytics"`
	}
	decodeData(t, first, &report)
	if report.Analytics.TotalViews != 1 || report.Analytics.UniqueViewers != 1 {
		t.Errorf("analytics = %+v", report.Analytics)
	}

	bob := s.register(t, "bob@example.com", "pw2")
	code, resp = s.do(t, http.MethodGet, "/api/analytics/media/"+demo.ID+"/analytics?days=7", bob, nil)
	if code != http.StatusForbidden {
		t.Fatalf("bob analytics: %d %s", code, resp.Message)
	}
	if resp.Message != analytics.MsgForbidden {
		t.Errorf("message = %q", resp.Message)
	}
}

func TestStreamErrors(t *testing.T) {
	s := newTestServer(t, 10)
	alice := s.register(t, "alice@example.com", "pw1")
	first := s.createMedia(t, alice, "First")
	second := s.createMedia(t, alice, "Second")
	otherToken := s.mint(t, alice, second.ID)

	tests := []struct {
		name   string
		method string
		target string
		token  string
		want   int
	}{
		{"mint unknown media", http.MethodGet, "/api/media/6f1c1a52-4c33-4a4e-9f62-7b1f52c4b2f1/stream-url", alice, http.StatusNotFound},
		{"mint malformed id", http.MethodGet, "/api/media/not-a-uuid/stream-url", alice, http.StatusBadRequest},
		{"mint without session", http.MethodGet, "/api/media/" + first.ID + "/stream-url", "", http.StatusUnauthorized},
		{"redeem without token", http.MethodGet, "/api/media/" + first.ID + "/stream", "", http.StatusUnauthorized},
		{"redeem garbage token", http.MethodGet, "/api/media/" + first.ID + "/stream?token=garbage", "", http.StatusUnauthorized},
		{"redeem session token", http.MethodGet, "/api/media/" + first.ID + "/stream?token=" + alice, "", http.StatusUnauthorized},
		{"redeem token for other media", http.MethodGet, "/api/media/" + first.ID + "/stream?token=" + url.QueryEscape(otherToken), "", http.StatusBadRequest},
		{"stream token as session", http.MethodGet, "/api/analytics/dashboard", otherToken, http.StatusUnauthorized},
		{"analytics bad days", http.MethodGet, "/api/analytics/media/" + first.ID + "/analytics?days=400", alice, http.StatusBadRequest},
		{"analytics non-integer days", http.MethodGet, "/api/analytics/media/" + first.ID + "/analytics?days=abc", alice, http.StatusBadRequest},
		{"log view malformed id", http.MethodPost, "/api/analytics/media/nope/view", "", http.StatusBadRequest},
		{"unknown route", http.MethodGet, "/api/nothing-here", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp := s.do(t, tt.method, tt.target, tt.token, nil)
			if code != tt.want {
				t.Fatalf("status = %d, want %d (%s)", code, tt.want, resp.Message)
			}
			if resp.Success {
				t.Error("success = true on error response")
			}
			if resp.Message == "" {
				t.Error("empty message")
			}
		})
	}

	views, err := s.store.CountViews(context.Background(), first.ID)
	if err != nil {
		t.Fatal(err)
	}
	if views != 0 {
		t.Errorf("rejected redemptions recorded %d views", views)
	}
}

func TestMissingBearer(t *testing.T) {
	s := newTestServer(t, 10)
	code, resp := s.do(t, http.MethodGet, "/api/media", "", nil)
	if code != http.StatusUnauthorized || resp.Message != msgNoToken {
		t.Fatalf("got %d %q", code, resp.Message)
	}
}

func TestListMediaPagination(t *testing.T) {
	s := newTestServer(t, 10)
	alice := s.register(t, "alice@example.com", "pw1")
	for _, title := range []string{"a", "b", "c"} {
		s.createMedia(t, alice, title)
		s.clock.Advance(time.Second)
	}

	code, resp := s.do(t, http.MethodGet, "/api/media?page=2&limit=2", alice, nil)
	if code != http.StatusOK {
		t.Fatalf("list: %d %s", code, resp.Message)
	}
	var page struct {
		Media      []apiMedia `json:"media"`
		Pagination pagination `json:"pagination"`
	}
	decodeData(t, resp, &page)
	if page.Pagination != (pagination{Page: 2, Limit: 2, Total: 3, Pages: 2}) {
		t.Errorf("pagination = %+v", page.Pagination)
	}
	if len(page.Media) != 1 || page.Media[0].Title != "a" {
		t.Errorf("media = %+v", page.Media)
	}
}

func TestLogViewRateLimit(t *testing.T) {
	s := newTestServer(t, 3)
	alice := s.register(t, "alice@example.com", "pw1")
	m := s.createMedia(t, alice, "Demo")

	for i := 0; i < 3; i++ {
		code, resp := s.do(t, http.MethodPost, "/api/analytics/media/"+m.ID+"/view", "", nil)
		if code != http.StatusCreated {
			t.Fatalf("view %d: %d %s", i, code, resp.Message)
		}
		var v struct {
			MediaID string `json:"media_id"`
			ViewID  string `json:"view_id"`
		}
		decodeData(t, resp, &v)
		if v.MediaID != m.ID || v.ViewID == "" {
			t.Fatalf("view = %+v", v)
		}
	}

	code, resp := s.do(t, http.MethodPost, "/api/analytics/media/"+m.ID+"/view", "", nil)
	if code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", code)
	}
	if resp.Message != msgTooManyViews {
		t.Errorf("message = %q", resp.Message)
	}

	rows, err := s.store.ListViews(context.Background(), store.ViewQuery{MediaID: m.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 || rows[0].TokenUsed != "direct" {
		t.Errorf("ledger = %+v", rows)
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, 10)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusOK || body["status"] != "OK" || body["message"] != msgHealthy {
		t.Fatalf("health = %d %v", rec.Code, body)
	}
}

func TestInternalErrorDetail(t *testing.T) {
	tests := []struct {
		env        string
		wantDetail bool
	}{
		{"development", true},
		{"production", false},
	}
	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			cfg := &config.Config{}
			cfg.Server.Environment = tt.env
			h := &Handler{Cfg: cfg}

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			rec := httptest.NewRecorder()
			h.renderError(rec, req, context.DeadlineExceeded)

			var resp response
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatal(err)
			}
			if rec.Code != http.StatusInternalServerError || resp.Message != "Internal server error" {
				t.Fatalf("got %d %q", rec.Code, resp.Message)
			}
			if (resp.Error != "") != tt.wantDetail {
				t.Errorf("error detail = %q, want present=%v", resp.Error, tt.wantDetail)
			}
		})
	}
}

func TestRateLimiterMiddleware(t *testing.T) {
	rl := PerMinute(2)
	defer rl.Stop()
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	h := rl.Middleware(remoteIP)(next)

	for i, want := range []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests} {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = "203.0.113.7:5555"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Fatalf("request %d: status %d, want %d", i, rec.Code, want)
		}
	}

	// A different address has its own bucket.
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	req.RemoteAddr = "203.0.113.8:5555"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("second ip status = %d", rec.Code)
	}
}

// postView sends a direct view from the given socket peer with a forged
// X-Forwarded-For header.
func (s *testServer) postView(t *testing.T, mediaID, remoteAddr, forwarded string) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/analytics/media/"+mediaID+"/view", nil)
	req.RemoteAddr = remoteAddr
	req.Header.Set("X-Forwarded-For", forwarded)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec.Code
}

func TestLogViewIgnoresForwardedHeadersByDefault(t *testing.T) {
	s := newTestServer(t, 3)
	alice := s.register(t, "alice@example.com", "pw1")
	m := s.createMedia(t, alice, "Demo")

	var accepted int
	for i := 0; i < 20; i++ {
		code := s.postView(t, m.ID, "203.0.113.7:4000", fmt.Sprintf("10.0.0.%d", i))
		switch code {
		case http.StatusCreated:
			accepted++
		case http.StatusTooManyRequests:
		default:
			t.Fatalf("view %d: status %d", i, code)
		}
	}
	if accepted != 3 {
		t.Fatalf("accepted %d views from one peer, want 3", accepted)
	}

	rows, err := s.store.ListViews(context.Background(), store.ViewQuery{MediaID: m.ID})
	if err != nil {
		t.Fatal(err)
	}
	for _, row := range rows {
		if row.ViewerIP != "203.0.113.7" {
			t.Errorf("viewer_ip = %q, want socket peer", row.ViewerIP)
		}
	}
}

func TestLogViewTrustedProxy(t *testing.T) {
	cfg := &config.Config{}
	cfg.Views.RateLimit = 1
	cfg.Server.TrustProxy = true
	s := newTestServerWithConfig(t, cfg)
	alice := s.register(t, "alice@example.com", "pw1")
	m := s.createMedia(t, alice, "Demo")

	// Behind the proxy every client shares one socket peer but has its own bucket.
	for _, client := range []string{"198.51.100.1", "198.51.100.2"} {
		if code := s.postView(t, m.ID, "10.0.0.1:4000", client); code != http.StatusCreated {
			t.Fatalf("first view from %s: status %d", client, code)
		}
	}
	if code := s.postView(t, m.ID, "10.0.0.1:4000", "198.51.100.1"); code != http.StatusTooManyRequests {
		t.Fatalf("second view from same client: status %d, want 429", code)
	}

	rows, err := s.store.ListViews(context.Background(), store.ViewQuery{MediaID: m.ID})
	if err != nil {
		t.Fatal(err)
	}
	got := map[string]bool{}
	for _, row := range rows {
		got[row.ViewerIP] = true
	}
	if len(rows) != 2 || !got["198.51.100.1"] || !got["198.51.100.2"] {
		t.Errorf("ledger = %+v", rows)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name  string
		trust bool
		xff   string
		xri   string
		want  string
	}{
		{"untrusted ignores xff", false, "10.0.0.9", "", "203.0.113.7"},
		{"untrusted ignores x-real-ip", false, "", "10.0.0.9", "203.0.113.7"},
		{"trusted first xff hop", true, "198.51.100.4, 10.0.0.1", "", "198.51.100.4"},
		{"trusted x-real-ip", true, "", "198.51.100.5", "198.51.100.5"},
		{"trusted without headers", true, "", "", "203.0.113.7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{}
			cfg.Server.TrustProxy = tt.trust
			h := &Handler{Cfg: cfg}

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = "203.0.113.7:4000"
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				req.Header.Set("X-Real-IP", tt.xri)
			}
			if got := h.clientIP(req); got != tt.want {
				t.Errorf("clientIP = %q, want %q", got, tt.want)
			}
		})
	}
}
