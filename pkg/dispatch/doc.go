// Package dispatch fetches an ordered batch of marketplace URLs in parallel
// and returns one JSON-or-null result per URL, in input order.
//
// Every URL gets its own goroutine. A goroutine must take a slot from a
// fixed-capacity limiter before issuing its GET and gives the slot back as
// soon as the call settles. All calls of a run share one connection pool
// whose size is configured separately from the limiter, so two bounds apply:
// the limiter caps running calls, the pool caps open sockets.
//
// Example usage:
//
//	cfg := dispatch.DefaultConfig()
//	cfg.Concurrency = 50
//	d, err := dispatch.New(cfg)
//	if err != nil {
//		return err
//	}
//	pages := d.DispatchPages(ctx, urls)
//
// A run:
//   - Starts the per-call deadline before limiter admission
//   - Collapses connect, read, timeout and JSON errors into a nil page
//   - Never retries and never cancels siblings when one call fails
//   - Returns only after every call has settled
package dispatch
