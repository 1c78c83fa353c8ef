// Package looper provides a per-goroutine, single-consumer message loop,
// modeled on the classic Looper/Handler threading pattern.
//
// One designated goroutine repeatedly drains a FIFO queue of deferred work;
// any other goroutine hands work to that queue through a Handler. Shutdown
// is a two-phase protocol (poison sentinel + admission flag) that cannot
// race with concurrent submissions on the strict path, and result-producing
// submissions deliver their outcome back through a single-assignment Future.
//
// # Quick Start
//
//	reg := looper.NewRegistry()
//	lc := looper.NewLoopContext()
//
//	if _, err := reg.Prepare(lc); err != nil {
//		log.Fatal(err)
//	}
//	h, _ := looper.NewHandlerFor(reg, lc)
//
//	go func() {
//		h.Post(func(ctx context.Context) error {
//			fmt.Println("hello from the loop")
//			return nil
//		})
//		h.Shutdown()
//	}()
//
//	// Blocks, draining the queue, until Shutdown's sentinel arrives.
//	if err := reg.Loop(context.Background(), lc); err != nil {
//		log.Fatal(err)
//	}
//
// # Key Concepts
//
// Registry: owns the handle table. Registries are plain values; create as
// many as you need; tests can drive several simulated consumers from one
// goroutine. A lazy process-default registry backs the package-level
// Prepare/Loop helpers for applications that want the classic ambient API.
//
// LoopContext: the explicit per-consumer registration object. Prepare it
// once; a second Prepare on the same context fails with ErrAlreadyPrepared.
//
// Handler: the producer-side facade. Post is fire-and-forget (declined with
// a plain false after shutdown); the Execute family returns a Future and
// fails loudly with ErrRejected after shutdown. ExecuteResultRelaxed trades
// the admission critical section for a small post-shutdown acceptance
// window.
//
// Future: single-assignment result cell. Get blocks until the loop settles
// it and re-raises a captured task failure as the identical error value.
//
// # Error Isolation
//
// A failing or panicking task never stops its loop. Fire-and-forget
// failures are logged through the registry's Logger; future-bound failures
// surface only through Future.Get.
//
// For metrics, see the observability/prometheus subpackage.
package looper
