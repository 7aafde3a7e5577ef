// Package memento is a fail-open cache facade over a cache.Store.
//
// A [Cache] namespaces every key as prefix + ":" + key, where the prefix
// comes from the SERVICE_NAME environment variable (default "memento") or
// [Options.SetPrefix]. Store and codec errors are absorbed: reads degrade to
// a miss and writes to a no-op, and each failure is recorded by a
// [resilience.HealthGate]. After the configured number of consecutive
// failures the gate disables store access; it re-enables optimistically once
// the reset interval has elapsed, and any successful operation re-enables it
// immediately, including after a manual [Cache.Disable].
//
// Every key written through the Cache is added in the background to a key
// index stored under [IndexKey], outside the prefix namespace. [Cache.Clear]
// walks that index, so bulk invalidation works on stores without key scans.
// The index is best effort: removed or expired keys stay listed, and it is
// only emptied by Clear when [Options.SetResetIndexOnClear] is enabled.
//
//	opts := memento.NewOptions().
//		Configure(memento.TypeRedis, "redis://localhost:6379/0", "orders").
//		ConfigureHealthCheck(true, 5, 5)
//	c, err := memento.Open(ctx, opts, log)
//	if err != nil {
//		return err // only configuration errors are returned
//	}
//	defer c.Close()
//	memento.Set(ctx, c, "order:1", order)
//	if o, ok := memento.Get[Order](ctx, c, "order:1"); ok {
//		...
//	}
package memento
