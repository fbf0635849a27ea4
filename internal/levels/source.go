package levels

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"kcu-coach-engine/internal/coach"
)

// Source fetches a fresh key-level snapshot for a symbol.
type Source interface {
	Fetch(ctx context.Context, symbol string) (coach.KeyLevels, error)
}

// HTTPSource pulls snapshots from the levels service REST API.
type HTTPSource struct {
	baseURL string
	client  *http.Client
}

// NewHTTPSource creates a source against the given base URL.
func NewHTTPSource(baseURL string) *HTTPSource {
	return &HTTPSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Fetch retrieves the current snapshot for a symbol.
func (s *HTTPSource) Fetch(ctx context.Context, symbol string) (coach.KeyLevels, error) {
	url := fmt.Sprintf("%s/api/levels/%s", s.baseURL, normalizeSymbol(symbol))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return coach.KeyLevels{}, fmt.Errorf("failed to create levels request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return coach.KeyLevels{}, fmt.Errorf("levels request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return coach.KeyLevels{}, fmt.Errorf("levels service returned %d: %s", resp.StatusCode, string(body))
	}

	var levels coach.KeyLevels
	if err := json.NewDecoder(resp.Body).Decode(&levels); err != nil {
		return coach.KeyLevels{}, fmt.Errorf("failed to decode levels response: %w", err)
	}

	return levels, nil
}
