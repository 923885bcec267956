// Package layers joins the modem and the ARQ windows into a station: the
// audio callback, CSMA/CD channel access and the MAC workers.
package layers

import "go.uber.org/atomic"

// ProtocolControl is the state shared between the audio callback and the
// MAC workers. Every field is read and written independently.
type ProtocolControl struct {
	Busy      atomic.Bool
	Collision atomic.Bool

	// Ack is the last in-order sequence number received, -1 before any.
	Ack atomic.Int64
	// Reack asks the sender to repeat its ack after a duplicate frame.
	Reack atomic.Bool
	// PrivilegeNode is the station whose data was last decoded, -1 for none.
	PrivilegeNode atomic.Int64

	Clock   atomic.Uint64
	Started atomic.Bool
	Dead    atomic.Bool
}

func NewProtocolControl() *ProtocolControl {
	c := &ProtocolControl{}
	c.Ack.Store(-1)
	c.PrivilegeNode.Store(-1)
	return c
}
