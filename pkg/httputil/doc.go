// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Response Helpers
//
// Every JSON body is an envelope with a success flag:
//
//	httputil.WriteSuccess(w, httputil.Envelope{"logs": logs})
//	httputil.WriteBadRequest(w, "daysToKeep must be at least 7")
//	httputil.WriteInternalError(w, "failed to fetch audit logs")
//
// # Request Parsing
//
// Query parsing is permissive: malformed numbers fall back to the default.
//
//	limit := httputil.QueryInt(r, "limit", 50)
//	from := httputil.QueryInt64Ptr(r, "startDate")
//
// # Middleware
//
//	handler := httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.RecoveryMiddleware(logger),
//		httputil.LoggingMiddleware(logger),
//		httputil.MaxBytesMiddleware(1<<20),
//	)(router)
package httputil
