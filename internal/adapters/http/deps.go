package http

import (
	"github.com/nats-io/nats.go"

	"github.com/osmfj/MapComplete/internal/adapters/postgres"
	"github.com/osmfj/MapComplete/internal/adapters/valkey"
	"github.com/osmfj/MapComplete/internal/core/ports"
	"github.com/osmfj/MapComplete/internal/core/usecases"
)

// Dependencies holds all services needed by HTTP handlers.
// Loader, Viewports and Layouts are required; the rest may be nil.
type Dependencies struct {
	Loader    *usecases.QueryDispatcher
	Viewports *usecases.ViewportService
	Layouts   *usecases.LayoutService
	FetchLog  ports.FetchLogRepository
	NATS      *nats.Conn
	DB        *postgres.DB
	Cache     *valkey.Cache
}
