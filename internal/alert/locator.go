package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

const FallbackLocation = "Location could not be determined."

// lookupTTL is how long a successful IP geolocation is reused.
const lookupTTL = time.Hour

// Locator resolves where the camera is. A configured location always wins;
// otherwise the public IP is geolocated via an ipinfo.io compatible endpoint.
type Locator struct {
	static string
	url    string
	client *http.Client

	mu       sync.Mutex
	cached   string
	cachedAt time.Time
}

func NewLocator(static, lookupURL string) *Locator {
	return &Locator{
		static: static,
		url:    lookupURL,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

// Resolve never fails; it returns FallbackLocation when nothing is known.
func (l *Locator) Resolve(ctx context.Context) string {
	if l.static != "" {
		return l.static
	}
	if l.url == "" {
		return FallbackLocation
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cached != "" && time.Since(l.cachedAt) < lookupTTL {
		return l.cached
	}

	loc, err := l.lookup(ctx)
	if err != nil {
		return FallbackLocation
	}
	l.cached = loc
	l.cachedAt = time.Now()
	return loc
}

func (l *Locator) lookup(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.url, nil)
	if err != nil {
		return "", err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}

	var info struct {
		City    string `json:"city"`
		Region  string `json:"region"`
		Country string `json:"country"`
		Loc     string `json:"loc"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s, %s, %s (approx. coordinates: %s)",
		orDefault(info.City, "Unknown City"),
		orDefault(info.Region, "Unknown Region"),
		orDefault(info.Country, "Unknown Country"),
		orDefault(info.Loc, "N/A"),
	), nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
