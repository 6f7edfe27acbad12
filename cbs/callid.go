package cbs

import (
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
)

// callIDManager generates correlation identifiers for dispatched CBS
// operations. The sequence counter is for log correlation only (atomic,
// monotonic, never reused); the wire-level correlation ID that actually
// demultiplexes a completion back to its request is a UUID, matching how
// the rest of this module's AMQP-facing code stamps message and session
// identifiers.
type callIDManager struct {
	seq atomic.Int64
}

func newCallIDManager() *callIDManager {
	return &callIDManager{}
}

// Next returns a fresh correlation ID and its log sequence number.
func (m *callIDManager) Next() (correlationID string, seq int64) {
	seq = m.seq.Add(1)
	correlationID = "uuid:" + strings.ToUpper(uuid.New().String())
	return correlationID, seq
}
