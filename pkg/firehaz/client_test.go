package firehaz

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-housing/sitescreen-cli/internal/resilience"
)

func TestSeverity_NormalizesClass(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/FHSZ/MapServer/0/query", r.URL.Path)
		assert.Equal(t, "HAZ_CLASS", r.URL.Query().Get("outFields"))

		_, _ = w.Write([]byte(`{"features":[{"attributes":{"HAZ_CLASS":"Very High"}}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithRateLimit(1000))
	det, err := c.Severity(context.Background(), 36.74, -119.78)
	require.NoError(t, err)

	assert.True(t, det.Known)
	assert.Equal(t, "very_high", det.Severity)
	assert.Len(t, det.Digest, 16)
}

func TestSeverity_OutsideMappedZones(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"features":[]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithRateLimit(1000))
	det, err := c.Severity(context.Background(), 36.74, -119.78)
	require.NoError(t, err)

	assert.False(t, det.Known)
	assert.Empty(t, det.Severity)
}

func TestSeverity_ServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithRateLimit(1000))
	_, err := c.Severity(context.Background(), 36.74, -119.78)
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}

func TestSeverity_ArcGISEnvelopeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"invalid geometry"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithRateLimit(1000))
	_, err := c.Severity(context.Background(), 36.74, -119.78)
	require.Error(t, err)
	assert.False(t, resilience.IsTransient(err))
}

func TestNormalizeSeverity(t *testing.T) {
	cases := []struct {
		label string
		want  string
	}{
		{"Very High", "very_high"},
		{"VERY-HIGH", "very_high"},
		// Canonical config spelling must normalize to itself, not to "high".
		{"very_high", "very_high"},
		{"VERY_HIGH", "very_high"},
		{"High", "high"},
		{"Moderate", "moderate"},
		{"Medium", "moderate"},
		{"Low", "low"},
		{"  low  ", "low"},
		{"Non-Wildland/Non-Urban", "non wildland/non urban"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, NormalizeSeverity(tc.label), tc.label)
	}
}
