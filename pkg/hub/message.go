// Package hub fans outcome events out to websocket subscribers
// using the idiomatic Go channel-based fan-out pattern.
package hub

// Message is one encoded text frame for subscribers
type Message struct {
	// Monitor scopes delivery. Subscribers filtering on a monitor name only
	// receive messages for that monitor; empty reaches everyone.
	Monitor string
	Data    []byte
}

// NewMessage creates a message delivered to every subscriber
func NewMessage(data []byte) Message {
	return Message{Data: data}
}

// NewMonitorMessage creates a message scoped to one monitor
func NewMonitorMessage(monitor string, data []byte) Message {
	return Message{Monitor: monitor, Data: data}
}
