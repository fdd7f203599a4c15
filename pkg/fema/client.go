// Package fema queries the FEMA National Flood Hazard Layer for a flood zone
// determination at a point. It is the live fallback used when the pre-loaded
// flood reference set has no coverage for a site.
package fema

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/meridian-housing/sitescreen-cli/internal/resilience"
)

// Client determines the flood zone for a coordinate.
type Client interface {
	// FloodZone returns the flood zone designation at a point. A response
	// with Known=false means the service answered but has no zone there.
	FloodZone(ctx context.Context, lat, lng float64) (*Determination, error)
}

// Determination is the outcome of a flood zone lookup.
type Determination struct {
	Known  bool   // service returned a definitive answer
	Zone   string // e.g. "AE", "X", "VE"
	Digest string // response digest, recorded as audit evidence
}

// Option configures the client.
type Option func(*client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) { c.httpClient = hc }
}

// WithRateLimit sets the requests-per-second limit. The limiter is shared by
// every caller of this client instance, so one client per run keeps the whole
// run inside the quota.
func WithRateLimit(rps float64) Option {
	return func(c *client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *client) { c.httpClient.Timeout = d }
}

type client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a flood determination client for the given NFHL base URL.
func NewClient(baseURL string, opts ...Option) Client {
	c := &client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		limiter:    rate.NewLimiter(2, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// nfhlResponse is the subset of the ArcGIS query response we read.
type nfhlResponse struct {
	Features []struct {
		Attributes struct {
			FloodZone string `json:"FLD_ZONE"`
		} `json:"attributes"`
	} `json:"features"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *client) FloodZone(ctx context.Context, lat, lng float64) (*Determination, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "fema: rate limiter wait")
	}

	q := url.Values{}
	q.Set("geometry", fmt.Sprintf("%f,%f", lng, lat))
	q.Set("geometryType", "esriGeometryPoint")
	q.Set("inSR", "4326")
	q.Set("spatialRel", "esriSpatialRelIntersects")
	q.Set("outFields", "FLD_ZONE")
	q.Set("returnGeometry", "false")
	q.Set("f", "json")

	reqURL := fmt.Sprintf("%s/public/NFHL/MapServer/28/query?%s", c.baseURL, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "fema: build request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "fema: query NFHL")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, eris.Wrap(err, "fema: read response")
	}

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("fema: NFHL returned status %d", resp.StatusCode)
		if resilience.RetryableStatus(resp.StatusCode) {
			return nil, resilience.Transient(err, resp.StatusCode)
		}
		return nil, err
	}

	var parsed nfhlResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, eris.Wrap(err, "fema: decode response")
	}
	if parsed.Error != nil {
		err := eris.Errorf("fema: NFHL error %d: %s", parsed.Error.Code, parsed.Error.Message)
		if resilience.RetryableStatus(parsed.Error.Code) {
			return nil, resilience.Transient(err, parsed.Error.Code)
		}
		return nil, err
	}

	det := &Determination{Digest: digest(body)}
	if len(parsed.Features) > 0 && parsed.Features[0].Attributes.FloodZone != "" {
		det.Known = true
		det.Zone = parsed.Features[0].Attributes.FloodZone
	}
	return det, nil
}

func digest(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])[:16]
}
