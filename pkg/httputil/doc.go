// Package httputil provides JSON response helpers, query parameter parsing
// and the middleware shared by the search server.
//
//	handler := httputil.Chain(
//		httputil.RequestIDMiddleware(logger),
//		httputil.RecoveryMiddleware,
//		httputil.LoggingMiddleware,
//	)(router)
package httputil
