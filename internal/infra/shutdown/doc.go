// Package shutdown coordinates graceful process termination.
//
// Components register named stages with OnShutdown. Wait blocks until
// SIGINT or SIGTERM arrives, Trigger is called or the parent context ends,
// then runs the stages in registration order under one shared deadline:
//
//	h := shutdown.NewHandler(30*time.Second, shutdown.WithLogger(l))
//	h.OnShutdown("http", srv.Shutdown)
//	h.OnShutdown("storage", func(context.Context) error { return engine.Close() })
//	err := h.Wait(ctx)
package shutdown
