// Package health provides liveness, readiness and version endpoints.
//
// /health answers as long as the process is serving. /ready runs every
// registered check concurrently, each bounded by the checker timeout, and
// answers 503 when any check fails. tap registers a storage check, which
// counts records, and a reporter check, which fails while the storage
// circuit breaker is open.
//
//	checker := health.New(2 * time.Second)
//	checker.Register("storage", func(ctx context.Context) error {
//	    _, err := store.Count(ctx, &report.Query{})
//	    return err
//	})
//	r.Get("/ready", checker.ReadinessHandler())
package health
