package usecases

import (
	"errors"
	"fmt"
	"strings"

	"github.com/osmfj/MapComplete/internal/core/domain"
	"github.com/osmfj/MapComplete/internal/core/tags"
	"github.com/osmfj/MapComplete/internal/pkg/observable"
)

// ErrInvalidLayout is returned when a layout is rejected.
var ErrInvalidLayout = errors.New("invalid layout")

// LayoutService holds the active layout and notifies on replacement.
type LayoutService struct {
	current *observable.Value[domain.Layout]
}

// NewLayoutService creates a LayoutService. The initial layout is not validated.
func NewLayoutService(initial domain.Layout) *LayoutService {
	return &LayoutService{current: observable.New(initial)}
}

// Layout returns the active layout.
func (s *LayoutService) Layout() domain.Layout {
	return s.current.Get()
}

// SubscribeLayout registers fn for every replacement.
func (s *LayoutService) SubscribeLayout(fn func(domain.Layout)) func() {
	return s.current.Subscribe(fn)
}

// Replace validates and activates l.
func (s *LayoutService) Replace(l domain.Layout) error {
	if err := ValidateLayout(l); err != nil {
		return err
	}
	s.current.Set(l)
	return nil
}

// ValidateLayout reports every problem with l at once.
func ValidateLayout(l domain.Layout) error {
	var errs []string
	if l.WidenFactor < 0 {
		errs = append(errs, fmt.Sprintf("widen_factor must not be negative, got %g", l.WidenFactor))
	}
	seen := make(map[string]bool)
	for i, layer := range l.Layers {
		switch {
		case layer.ID == "":
			errs = append(errs, fmt.Sprintf("layers[%d]: id is required", i))
		case seen[layer.ID]:
			errs = append(errs, fmt.Sprintf("layers[%d]: duplicate id %q", i, layer.ID))
		}
		seen[layer.ID] = true
		if layer.MinZoom < 0 || layer.MinZoom > domain.MaxZoom {
			errs = append(errs, fmt.Sprintf("layers[%d]: minzoom must be 0-%d, got %d", i, domain.MaxZoom, layer.MinZoom))
		}
		if layer.Tags == nil && !layer.DoNotDownload {
			errs = append(errs, fmt.Sprintf("layers[%d]: tags are required unless do_not_download is set", i))
		}
		if layer.Tags != nil && layer.Downloadable() {
			if err := tags.Queryable(layer.Tags); err != nil {
				errs = append(errs, fmt.Sprintf("layers[%d]: %v", i, err))
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w:\n  - %s", ErrInvalidLayout, strings.Join(errs, "\n  - "))
	}
	return nil
}
