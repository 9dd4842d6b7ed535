package ports

import (
	"apollocfg/internal/types"
	"context"
)

// Refresher produces the current snapshot of a namespace. Fetch never fails: on error it degrades to the durable
// cache or the previous in-memory snapshot and says so in FetchResult.Source.
type Refresher interface {
	Fetch(ctx context.Context, namespace string) types.FetchResult
}
