// Package model defines the domain entities shared across the bridge:
// parameter metadata and values, durable outbox/inbox records, the closed
// NAK error taxonomy, and the RFC 9457 problem-details type used by the
// admin/intake HTTP surface.
package model
