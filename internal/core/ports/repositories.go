package ports

import (
	"context"

	"github.com/osmfj/MapComplete/internal/core/domain"
)

// FetchLogRepository persists the outcome of every completed dispatch.
type FetchLogRepository interface {
	Insert(ctx context.Context, rec *domain.FetchRecord) error
	ListRecent(ctx context.Context, limit int) ([]domain.FetchRecord, error)
}
