// Package forward persists accepted lines to an append-only store and
// publishes them to a broker with at-least-once delivery.
package forward

import (
	"strings"
	"time"
)

// Record is one accepted raw line with its receipt sequence number.
type Record struct {
	Seq        uint64
	Line       string
	ReceivedAt time.Time
}

// Fields is the row written to the store: the raw line split on commas, with
// no schema applied.
func (r Record) Fields() []string {
	return strings.Split(r.Line, ",")
}

// Payload is the opaque broker message body.
func (r Record) Payload() []byte {
	return []byte(r.Line)
}
