// Package middleware provides HTTP middleware for the data bridge's
// intake and admin surfaces.
//
// # Available Middleware
//
//   - RequestID: assigns/propagates X-Request-ID
//   - Logger: structured request logging
//   - Recovery: panic recovery, 500 Problem Details response
//   - Compress: gzip response compression
//   - RateLimit: token-bucket limiting keyed by remote address
//   - AdminToken: X-Token check gating the admin/operator endpoints
//
// # Context Values
//
//   - GetRequestID(ctx): returns the request's unique identifier
package middleware
