package schedule

import (
	"context"

	"github.com/memohai/provsync/internal/probe"
	"github.com/memohai/provsync/internal/providers"
)

// Selector runs one auto-select pass for a provider.
type Selector interface {
	TestAndAutoSelectFastest(ctx context.Context, name string, trials int) (probe.AutoSelectResult, error)
}

// Lister enumerates the registry.
type Lister interface {
	List(ctx context.Context) ([]providers.Provider, error)
}
