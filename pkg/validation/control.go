package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Limits on viewer control traffic
const (
	MaxMessageSize    = 4 * 1024
	MaxMessagesPerMin = 120
)

// ControlType is the kind of a viewer control message
type ControlType string

const (
	// ControlPing asks for a pong, to measure latency or keep the
	// connection alive
	ControlPing ControlType = "ping"
	// ControlSnapshot asks for the latest snapshot without waiting for the
	// next broadcast
	ControlSnapshot ControlType = "snapshot"
)

var (
	ErrMessageTooLarge = errors.New("message too large")
	ErrMalformed       = errors.New("invalid JSON format")
	ErrUnknownControl  = errors.New("unsupported message type")
	ErrRateLimited     = errors.New("rate limit exceeded")
)

// ControlMessage is what a viewer may send
type ControlMessage struct {
	Type ControlType `json:"type"`
}

// ControlValidator parses viewer control messages and limits how often each
// viewer may send them
type ControlValidator struct {
	limiter *RateLimiter
}

// NewControlValidator allows MaxMessagesPerMin messages per viewer
func NewControlValidator() *ControlValidator {
	return &ControlValidator{limiter: NewRateLimiter(MaxMessagesPerMin, time.Minute)}
}

// Parse checks size, rate and format of data sent by viewerID. Rejected
// messages still count against the rate.
func (v *ControlValidator) Parse(data []byte, viewerID string) (ControlMessage, error) {
	var msg ControlMessage
	if len(data) > MaxMessageSize {
		return msg, fmt.Errorf("%w: %d bytes (max %d)", ErrMessageTooLarge, len(data), MaxMessageSize)
	}
	if !v.limiter.Allow(viewerID) {
		return msg, fmt.Errorf("%w: max %d messages per minute", ErrRateLimited, MaxMessagesPerMin)
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, ErrMalformed
	}
	switch msg.Type {
	case ControlPing, ControlSnapshot:
		return msg, nil
	default:
		return msg, fmt.Errorf("%w %q", ErrUnknownControl, msg.Type)
	}
}

// Forget drops the rate state of a disconnected viewer
func (v *ControlValidator) Forget(viewerID string) {
	v.limiter.Forget(viewerID)
}

// Close stops the limiter's cleanup goroutine
func (v *ControlValidator) Close() {
	v.limiter.Close()
}
