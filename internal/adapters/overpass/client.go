// Package overpass implements ports.QueryService against an Overpass API
// interpreter endpoint.
package overpass

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/osmfj/MapComplete/internal/core/domain"
	"github.com/osmfj/MapComplete/internal/core/tags"
	"github.com/osmfj/MapComplete/internal/pkg/telemetry"
)

// DefaultURL is the public main Overpass instance.
const DefaultURL = "https://overpass-api.de/api/interpreter"

// ErrRuntime is returned when Overpass answers 200 but reports a runtime
// error in the remark, which means the result is incomplete.
var ErrRuntime = errors.New("overpass runtime error")

// ErrNoTimestamp is returned when the response lacks a usable
// osm3s.timestamp_osm_base.
var ErrNoTimestamp = errors.New("overpass response without data timestamp")

var tracer = telemetry.Tracer("overpass")

// Client queries an Overpass interpreter.
type Client struct {
	url     string
	timeout time.Duration
	http    *http.Client
}

// NewClient creates a Client. timeout is the server-side query timeout; the
// HTTP client gets a little more so Overpass can report its own timeout.
func NewClient(endpoint string, timeout time.Duration) *Client {
	if endpoint == "" {
		endpoint = DefaultURL
	}
	if timeout <= 0 {
		timeout = 180 * time.Second
	}
	return &Client{
		url:     endpoint,
		timeout: timeout,
		http:    &http.Client{Timeout: timeout + 15*time.Second},
	}
}

// Query runs filter over bounds and returns the matching features together
// with the data timestamp the server reports.
func (c *Client) Query(ctx context.Context, bounds domain.Bounds, filter tags.Filter) (*domain.QueryResult, error) {
	ql := BuildQuery(bounds, filter, int(c.timeout.Seconds()))

	ctx, span := tracer.Start(ctx, "overpass.query")
	defer span.End()
	span.SetAttributes(
		telemetry.OverpassURL.String(c.url),
		telemetry.OverpassQueryLength.Int(len(ql)),
	)

	res, err := c.do(ctx, ql)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(telemetry.OverpassFeatures.Int(len(res.Features.Features)))
	return res, nil
}

func (c *Client) do(ctx context.Context, ql string) (*domain.QueryResult, error) {
	form := url.Values{"data": {ql}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", c.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("overpass: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var body response
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode overpass response: %w", err)
	}
	if strings.Contains(body.Remark, "runtime error") {
		return nil, fmt.Errorf("%w: %s", ErrRuntime, body.Remark)
	}

	ts, err := time.Parse(time.RFC3339, body.OSM3S.TimestampOSMBase)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrNoTimestamp, body.OSM3S.TimestampOSMBase)
	}

	return &domain.QueryResult{Features: toFeatures(body.Elements), Timestamp: ts}, nil
}
