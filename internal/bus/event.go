package bus

import "time"

// Event kinds published by the engine. Subscribers filter by namespace
// prefix, e.g. "message." receives every store mutation.
const (
	KindSessionStatusChanged = "session.status_changed"
	KindSessionDegraded      = "session.degraded"
	KindMessageMerged        = "message.merged"
	KindMessageRemoved       = "message.removed"
	KindChannelConnected     = "channel.connected"
	KindChannelDisconnected  = "channel.disconnected"
	KindChannelFailed        = "channel.failed"
	KindGroupMetadata        = "group.metadata"
	KindGroupExpired         = "group.expired"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
