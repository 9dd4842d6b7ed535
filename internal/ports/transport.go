package ports

import (
	"apollocfg/internal/types"
	"context"
	"time"
)

// Getter issues a GET against the config service. A response with any status code is returned as-is; only
// requests that produced no response return an error, which MUST be a *types.TransportError.
type Getter interface {
	Get(ctx context.Context, rawURL string, timeout time.Duration) (*types.HTTPResponse, error)
}
