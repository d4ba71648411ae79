// Package handler implements the bridge's HTTP surface: message intake from
// the peer, the admin/operator API, and the health endpoint.
//
// # Handler Pattern
//
//   - Constructor function (NewXxxHandler) accepts its dependencies directly
//   - Methods handle one endpoint each, registered with a method-pattern
//     ServeMux route ("POST /api/inbox")
//   - Response helpers from response.go standardize JSON output
//   - Failures are mapped to RFC 9457 Problem Details responses
package handler
