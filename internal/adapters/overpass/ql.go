package overpass

import (
	"fmt"
	"strings"

	"github.com/osmfj/MapComplete/internal/core/domain"
	"github.com/osmfj/MapComplete/internal/core/tags"
)

// BuildQuery renders filter as an Overpass QL query over bounds that returns
// JSON with full geometry. Every conjunction of the filter becomes one nwr
// statement of the union.
func BuildQuery(bounds domain.Bounds, filter tags.Filter, timeoutSeconds int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[out:json][timeout:%d][bbox:%s];(", timeoutSeconds, bounds.OverpassBBox())
	for _, sel := range filter.Selectors() {
		b.WriteString("nwr")
		b.WriteString(sel)
		b.WriteString(";")
	}
	b.WriteString(");out body geom;")
	return b.String()
}
