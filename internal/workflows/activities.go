package workflows

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/osmfj/MapComplete/internal/core/domain"
)

const requestTimeout = 10 * time.Second

// PrefetchActivities talk to a running loader API.
type PrefetchActivities struct {
	APIURL       string
	Client       *fasthttp.Client
	PollInterval time.Duration // default 2s
}

// NewPrefetchActivities creates activities for the loader at apiURL.
func NewPrefetchActivities(apiURL string) *PrefetchActivities {
	return &PrefetchActivities{
		APIURL:       apiURL,
		Client:       &fasthttp.Client{Name: "mapsync-warmer"},
		PollInterval: 2 * time.Second,
	}
}

// ReportViewport PUTs the viewport to the loader. A viewport the loader
// rejects is not retried.
func (a *PrefetchActivities) ReportViewport(ctx context.Context, vp WarmViewport) error {
	body, err := json.Marshal(map[string]any{
		"center": domain.GeoPoint{Lat: vp.Lat, Lon: vp.Lon},
		"zoom":   vp.Zoom,
		"width":  vp.Width,
		"height": vp.Height,
	})
	if err != nil {
		return err
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(a.APIURL + "/v1/viewport")
	req.Header.SetMethod(fasthttp.MethodPut)
	req.Header.SetContentType("application/json")
	req.SetBody(body)

	if err := a.Client.DoTimeout(req, resp, requestTimeout); err != nil {
		return fmt.Errorf("report viewport %s: %w", vp.Name, err)
	}

	switch code := resp.StatusCode(); {
	case code == fasthttp.StatusAccepted:
		activity.GetLogger(ctx).Info("viewport reported", "viewport", vp.Name)
		return nil
	case code == fasthttp.StatusBadRequest || code == fasthttp.StatusUnprocessableEntity:
		return temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("viewport %s rejected: %s", vp.Name, resp.Body()), "InvalidViewport", nil)
	default:
		return fmt.Errorf("report viewport %s: HTTP %d", vp.Name, code)
	}
}

// AwaitIdle polls the loader until no query is running and no retry is
// pending, and returns the number of loaded features.
func (a *PrefetchActivities) AwaitIdle(ctx context.Context) (int, error) {
	interval := a.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		st, err := a.state()
		if err != nil {
			return 0, err
		}
		if !st.RunningQuery && st.RetryCount == 0 {
			return st.FeatureCount, nil
		}
		activity.RecordHeartbeat(ctx, st.RetryCount)

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (a *PrefetchActivities) state() (*domain.LoaderState, error) {
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(a.APIURL + "/v1/state")
	req.Header.SetMethod(fasthttp.MethodGet)

	if err := a.Client.DoTimeout(req, resp, requestTimeout); err != nil {
		return nil, fmt.Errorf("get state: %w", err)
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return nil, fmt.Errorf("get state: HTTP %d", resp.StatusCode())
	}

	var st domain.LoaderState
	if err := json.Unmarshal(resp.Body(), &st); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	return &st, nil
}
