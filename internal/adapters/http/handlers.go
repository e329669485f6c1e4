package http

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/paulmach/orb/geojson"

	"github.com/osmfj/MapComplete/internal/core/domain"
	"github.com/osmfj/MapComplete/internal/core/usecases"
	"github.com/osmfj/MapComplete/internal/pkg/config"
)

// maxFetchHistory bounds how many fetch log rows /v1/fetches pages through.
const maxFetchHistory = 500

// StateHandler returns the loader's current state.
func StateHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(deps.Loader.State())
	}
}

// FeaturesHandler returns the committed feature collection as GeoJSON.
// With ?layer=<id> only the features assigned to that layer are returned;
// a feature belongs to the first layer in the layout whose tags match it.
func FeaturesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		fc := deps.Loader.Features().Get()
		if fc == nil {
			fc = geojson.NewFeatureCollection()
		}
		ts, fresh := deps.Loader.Freshness().Lookup()
		if fresh {
			c.Set("X-Data-Timestamp", ts.UTC().Format(time.RFC3339))
		}

		if id := c.Query("layer"); id != "" {
			layout := deps.Layouts.Layout()
			if _, ok := layout.Layer(id); !ok {
				return errNotFound(c, "unknown layer: "+id)
			}
			out := geojson.NewFeatureCollection()
			out.Features = usecases.SplitByLayer(layout.Layers, fc)[id]
			if out.Features == nil {
				out.Features = []*geojson.Feature{}
			}
			fc = out
		} else if fresh {
			// The collection only changes on commit.
			c.Set(fiber.HeaderETag, fmt.Sprintf(`W/"%x-%d"`, ts.UnixNano(), len(fc.Features)))
		}

		c.Set(fiber.HeaderContentType, "application/geo+json")
		data, err := fc.MarshalJSON()
		if err != nil {
			return errInternal(c, err.Error())
		}
		return c.Send(data)
	}
}

// viewportBody is either explicit bounds or a center with a pixel size.
type viewportBody struct {
	Bounds *domain.Bounds   `json:"bounds"`
	Center *domain.GeoPoint `json:"center"`
	Zoom   *float64         `json:"zoom"`
	Width  int              `json:"width"`
	Height int              `json:"height"`
}

// ViewportHandler accepts the client's current map view. Reporting a
// viewport may start a query; the response is the state right after.
func ViewportHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body viewportBody
		if err := c.BodyParser(&body); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if body.Zoom == nil {
			return errBadRequest(c, "zoom is required")
		}

		var err error
		switch {
		case body.Bounds != nil:
			vp := domain.Viewport{Zoom: *body.Zoom, Bounds: *body.Bounds}
			if body.Center != nil {
				vp.Center = *body.Center
			}
			err = deps.Viewports.Report(vp)
		case body.Center != nil:
			err = deps.Viewports.ReportCenter(*body.Center, *body.Zoom, body.Width, body.Height)
		default:
			return errBadRequest(c, "either bounds or center with width and height is required")
		}
		if errors.Is(err, usecases.ErrInvalidViewport) {
			return errUnprocessable(c, err.Error())
		}
		if err != nil {
			return errInternal(c, err.Error())
		}

		return c.Status(fiber.StatusAccepted).JSON(deps.Loader.State())
	}
}

// RefreshHandler forgets all coverage and reloads the current viewport.
func RefreshHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		dispatched := deps.Loader.ForceRefresh(c.UserContext())
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"dispatched": dispatched,
			"state":      deps.Loader.State(),
		})
	}
}

type layerView struct {
	ID            string `json:"id"`
	Name          string `json:"name,omitempty"`
	MinZoom       int    `json:"minzoom"`
	Tags          string `json:"tags,omitempty"`
	DoNotDownload bool   `json:"do_not_download"`
}

type layoutView struct {
	ID          string      `json:"id"`
	WidenFactor float64     `json:"widen_factor"`
	Layers      []layerView `json:"layers"`
}

func newLayoutView(l domain.Layout) layoutView {
	out := layoutView{ID: l.ID, WidenFactor: l.WidenFactor, Layers: []layerView{}}
	for _, layer := range l.Layers {
		v := layerView{
			ID:            layer.ID,
			Name:          layer.Name,
			MinZoom:       layer.MinZoom,
			DoNotDownload: layer.DoNotDownload,
		}
		if layer.Tags != nil {
			v.Tags = layer.Tags.String()
		}
		out.Layers = append(out.Layers, v)
	}
	return out
}

// GetLayoutHandler returns the active layout with filters rendered as expressions.
func GetLayoutHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(newLayoutView(deps.Layouts.Layout()))
	}
}

type layerBody struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	MinZoom       *int   `json:"minzoom"`
	Tags          string `json:"tags"`
	DoNotDownload bool   `json:"do_not_download"`
}

type layoutBody struct {
	ID          string      `json:"id"`
	WidenFactor float64     `json:"widen_factor"`
	Layers      []layerBody `json:"layers"`
}

// PutLayoutHandler replaces the active layout. Layers take the same shape as
// the layout section of the config file.
func PutLayoutHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body layoutBody
		if err := c.BodyParser(&body); err != nil {
			return errBadRequest(c, "invalid request body")
		}

		lc := config.LayoutConfig{ID: body.ID, WidenFactor: body.WidenFactor}
		for _, l := range body.Layers {
			lc.Layers = append(lc.Layers, config.LayerConfig(l))
		}
		layout, err := lc.Domain()
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		if err := deps.Layouts.Replace(layout); err != nil {
			if errors.Is(err, usecases.ErrInvalidLayout) {
				return errUnprocessable(c, err.Error())
			}
			return errInternal(c, err.Error())
		}

		return c.JSON(newLayoutView(deps.Layouts.Layout()))
	}
}

type coverageBucket struct {
	Zoom   int             `json:"zoom"`
	Bounds []domain.Bounds `json:"bounds"`
}

// CoverageHandler lists the rectangles recorded per zoom bucket.
func CoverageHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		snap := deps.Loader.Coverage()
		buckets := make([]coverageBucket, 0, len(snap))
		total := 0
		for z, b := range snap {
			buckets = append(buckets, coverageBucket{Zoom: z, Bounds: b})
			total += len(b)
		}
		sort.Slice(buckets, func(i, j int) bool { return buckets[i].Zoom < buckets[j].Zoom })

		return c.JSON(fiber.Map{
			"buckets": buckets,
			"total":   total,
		})
	}
}

// FetchesHandler pages through the most recent fetch log entries, newest first.
func FetchesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.FetchLog == nil {
			return errUnavailable(c, "fetch log not configured")
		}

		offset := c.QueryInt("offset", 0)
		limit := c.QueryInt("limit", 50)
		if offset < 0 {
			offset = 0
		}
		if limit <= 0 || limit > 200 {
			limit = 50
		}

		records, err := deps.FetchLog.ListRecent(c.UserContext(), maxFetchHistory)
		if err != nil {
			return errInternal(c, err.Error())
		}

		total := len(records)
		if offset >= total {
			records = []domain.FetchRecord{}
		} else {
			end := offset + limit
			if end > total {
				end = total
			}
			records = records[offset:end]
		}

		pg := Pagination{Offset: offset, Limit: limit, Total: total}
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: records, Pagination: pg})
	}
}
