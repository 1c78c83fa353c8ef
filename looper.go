package looper

import (
	"context"
	"sync"

	"github.com/Swind/go-looper/core"
	"github.com/pkg/errors"
)

// ErrDefaultInitialized reports an InitDefaultRegistry call after the
// process-default registry was already created, lazily or by a previous
// call.
var ErrDefaultInitialized = errors.New("looper: default registry already initialized")

// The process-default registry. Applications that want the classic ambient
// prepare/loop API use these helpers; everything else should hold its own
// *Registry. The default is created lazily on first use.
var (
	defaultMu       sync.Mutex
	defaultRegistry *core.Registry
)

// InitDefaultRegistry configures the process-default registry. Call it at
// application startup, before any package-level Prepare. It fails with
// ErrDefaultInitialized once the default has already been created (lazily
// or by a previous call), because swapping the registry under live handles
// would orphan their queues.
func InitDefaultRegistry(opts ...RegistryOption) (*Registry, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultRegistry != nil {
		return nil, ErrDefaultInitialized
	}
	defaultRegistry = core.NewRegistry(opts...)
	return defaultRegistry, nil
}

// Default returns the process-default registry, creating it on first use.
func Default() *Registry {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultRegistry == nil {
		defaultRegistry = core.NewRegistry()
	}
	return defaultRegistry
}

// Prepare registers lc as a consumer on the default registry.
func Prepare(lc *LoopContext) (Handle, error) {
	return Default().Prepare(lc)
}

// Loop runs the consumer procedure for lc on the calling goroutine, against
// the default registry. See core.Registry.Loop for the termination
// contract.
func Loop(ctx context.Context, lc *LoopContext) error {
	return Default().Loop(ctx, lc)
}

// NewHandler builds a Handler bound to lc's handle on the default registry.
func NewHandler(lc *LoopContext) (*Handler, error) {
	return core.NewHandler(Default(), lc)
}

// Shutdown requests orderly termination of h's loop on the default
// registry. Idempotent.
func Shutdown(h Handle) {
	Default().Shutdown(h)
}
