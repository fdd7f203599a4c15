// Package firehaz queries a state fire hazard severity zone service for the
// severity classification at a point. It is the live fallback used when the
// pre-loaded fire reference set has no coverage for a site.
package firehaz

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/meridian-housing/sitescreen-cli/internal/resilience"
)

// Client determines fire hazard severity for a coordinate.
type Client interface {
	// Severity returns the hazard severity at a point. Known=false means the
	// service answered but the point is outside any mapped severity zone.
	Severity(ctx context.Context, lat, lng float64) (*Determination, error)
}

// Determination is the outcome of a severity lookup.
type Determination struct {
	Known    bool
	Severity string // normalized: "low", "moderate", "high", "very_high"
	Digest   string // response digest, recorded as audit evidence
}

// Option configures the client.
type Option func(*client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) { c.httpClient = hc }
}

// WithRateLimit sets the requests-per-second limit shared by all callers of
// this client instance.
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

// NewClient creates a fire hazard severity client for the given base URL.
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

type fhszResponse struct {
	Features []struct {
		Attributes struct {
			HazClass string `json:"HAZ_CLASS"`
		} `json:"attributes"`
	} `json:"features"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *client) Severity(ctx context.Context, lat, lng float64) (*Determination, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "firehaz: rate limiter wait")
	}

	q := url.Values{}
	q.Set("geometry", fmt.Sprintf("%f,%f", lng, lat))
	q.Set("geometryType", "esriGeometryPoint")
	q.Set("inSR", "4326")
	q.Set("spatialRel", "esriSpatialRelIntersects")
	q.Set("outFields", "HAZ_CLASS")
	q.Set("returnGeometry", "false")
	q.Set("f", "json")

	reqURL := fmt.Sprintf("%s/FHSZ/MapServer/0/query?%s", c.baseURL, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "firehaz: build request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "firehaz: query FHSZ")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, eris.Wrap(err, "firehaz: read response")
	}

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("firehaz: FHSZ returned status %d", resp.StatusCode)
		if resilience.RetryableStatus(resp.StatusCode) {
			return nil, resilience.Transient(err, resp.StatusCode)
		}
		return nil, err
	}

	var parsed fhszResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, eris.Wrap(err, "firehaz: decode response")
	}
	if parsed.Error != nil {
		err := eris.Errorf("firehaz: FHSZ error %d: %s", parsed.Error.Code, parsed.Error.Message)
		if resilience.RetryableStatus(parsed.Error.Code) {
			return nil, resilience.Transient(err, parsed.Error.Code)
		}
		return nil, err
	}

	det := &Determination{Digest: digest(body)}
	if len(parsed.Features) > 0 && parsed.Features[0].Attributes.HazClass != "" {
		det.Known = true
		det.Severity = NormalizeSeverity(parsed.Features[0].Attributes.HazClass)
	}
	return det, nil
}

// NormalizeSeverity maps service labels onto the ordered severity scale used
// by the fire analyzer.
func NormalizeSeverity(label string) string {
	s := strings.ToLower(strings.TrimSpace(label))
	s = strings.ReplaceAll(s, "-", " ")
	s = strings.ReplaceAll(s, "_", " ")
	switch {
	case strings.Contains(s, "very high"):
		return "very_high"
	case strings.Contains(s, "high"):
		return "high"
	case strings.Contains(s, "moderate"), strings.Contains(s, "medium"):
		return "moderate"
	case strings.Contains(s, "low"):
		return "low"
	default:
		return s
	}
}

func digest(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])[:16]
}
