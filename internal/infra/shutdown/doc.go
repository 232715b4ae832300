// Package shutdown stops long-running commands on SIGINT or SIGTERM.
//
// A Handler turns the first signal into context cancellation, so a pull
// finishes its current round and the stored checkpoint stays consistent,
// and then runs the registered cleanup hooks (closing the ledger store,
// stopping the metrics server) in reverse order under a timeout.
//
//	h := shutdown.NewHandler(10 * time.Second)
//	ctx, stop := h.Context(context.Background())
//	defer stop()
//	h.OnShutdown("store", func(context.Context) error { return store.Close() })
//	err := run(ctx)
//	h.Shutdown()
package shutdown
