package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"skyseal/internal/attestation"
	"skyseal/pkg/platform/sentinel"
)

// HTTPClient queries a weather oracle service over HTTP. The oracle is
// expected to answer GET {base}?lat={lat}&lon={lon} with
// {"uvIndex": n, "weatherLabel": "...", "oracleRef": "..."}.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient builds an oracle client with a per-request timeout. A slow
// oracle must only fail its own request, never block unrelated ones, so the
// client carries no shared locks.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) Lookup(ctx context.Context, lat, lon float64) (attestation.OracleReading, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return attestation.OracleReading{}, fmt.Errorf("build oracle request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return attestation.OracleReading{}, fmt.Errorf("oracle lookup: %w: %v", sentinel.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return attestation.OracleReading{}, fmt.Errorf("oracle lookup: status %d: %w", resp.StatusCode, sentinel.ErrUnavailable)
	}

	var reading attestation.OracleReading
	if err := json.NewDecoder(resp.Body).Decode(&reading); err != nil {
		return attestation.OracleReading{}, fmt.Errorf("decode oracle response: %w: %v", sentinel.ErrUnavailable, err)
	}
	return reading, nil
}
