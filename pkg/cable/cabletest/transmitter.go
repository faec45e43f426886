// Package cabletest provides helpers to test channels and interceptors without a websocket
// server: a recording transmitter, a channel mock and a channel test case which drives a stub
// connection.
package cabletest

import (
	"context"
	"sync"

	"github.com/gbdevw/gocable/pkg/cable"
)

// Transmitter which records all messages sent to the client.
type RecordingTransmitter struct {
	messages []*cable.Message
	// Error returned by Transmit, if any
	err error
	mu  sync.Mutex
}

// Factory which creates a new, empty RecordingTransmitter.
func NewRecordingTransmitter() *RecordingTransmitter {
	return &RecordingTransmitter{messages: []*cable.Message{}}
}

// Record the message. The message is recorded even if a failure has been set with FailWith.
func (rt *RecordingTransmitter) Transmit(ctx context.Context, msg *cable.Message) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.messages = append(rt.messages, msg)
	return rt.err
}

// Make all subsequent Transmit calls return err. Use nil to clear the failure.
func (rt *RecordingTransmitter) FailWith(err error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.err = err
}

// Return a copy of the recorded messages.
func (rt *RecordingTransmitter) Messages() []*cable.Message {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return append([]*cable.Message{}, rt.messages...)
}

// Return the recorded messages which have the provided type. Use an empty type to get channel
// messages.
func (rt *RecordingTransmitter) MessagesOfType(msgType string) []*cable.Message {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	filtered := []*cable.Message{}
	for _, msg := range rt.messages {
		if msg.Type == msgType {
			filtered = append(filtered, msg)
		}
	}
	return filtered
}

// Forget all recorded messages.
func (rt *RecordingTransmitter) Clear() {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.messages = []*cable.Message{}
}
