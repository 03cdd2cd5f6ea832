package geo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
)

const DefaultIPAPIURL = "http://ip-api.com/json"

type ipAPIResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Country string `json:"country"`
}

// IPAPIProvider queries ip-api.com behind a circuit breaker so an outage
// costs one fast failure per lookup instead of a timeout.
type IPAPIProvider struct {
	client  *http.Client
	baseURL string
	cb      *gobreaker.CircuitBreaker[string]
}

func NewIPAPIProvider(baseURL string, timeout time.Duration) *IPAPIProvider {
	if baseURL == "" {
		baseURL = DefaultIPAPIURL
	}
	cb := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "ip-api",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("geo circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
		},
	})
	return &IPAPIProvider{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		cb:      cb,
	}
}

func (p *IPAPIProvider) Lookup(ctx context.Context, ip string) (string, error) {
	label, err := p.cb.Execute(func() (string, error) {
		return p.query(ctx, ip)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", fmt.Errorf("ip-api unavailable: %w", err)
	}
	return label, err
}

func (p *IPAPIProvider) query(ctx context.Context, ip string) (string, error) {
	url := fmt.Sprintf("%s/%s?fields=status,message,country", p.baseURL, ip)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("query ip-api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ip-api returned status %d", resp.StatusCode)
	}

	var result ipAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode ip-api response: %w", err)
	}
	if result.Status != "success" {
		return "", fmt.Errorf("ip-api lookup failed: %s", result.Message)
	}
	return result.Country, nil
}

// Static is a fixed table of labels, used in tests and air-gapped setups.
type Static map[string]string

func (s Static) Lookup(_ context.Context, ip string) (string, error) {
	if label, ok := s[ip]; ok {
		return label, nil
	}
	return "", errors.New("no entry")
}
