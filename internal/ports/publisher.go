package ports

import (
	"apollocfg/internal/types"
	"context"
)

// ChangePublisher forwards change events outside the process.
type ChangePublisher interface {
	PublishChange(ctx context.Context, event types.ChangeEvent) error
}
