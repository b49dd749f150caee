// Package handlers contains reusable HTTP building blocks for the worker's
// status server: health checks and middleware.
//
// # Health Checks
//
// Named checks run in parallel, each under its own timeout:
//
//	checker := handlers.NewCompositeHealthChecker("v1.0.0")
//	checker.AddCheck("database", handlers.PingCheck(conn))
//	checker.AddCheck("cache", handlers.PingCheck(cache))
//	checker.AddCheck("notas_api", handlers.ExternalAPICheck(client))
//
// A check registered with AddOptionalCheck is reported but never makes the
// service unhealthy.
//
// # Middleware
//
//	h := handlers.ChainHandler(mux,
//	    handlers.SecurityHeadersMiddleware,
//	    handlers.NoCacheMiddleware,
//	)
package handlers
