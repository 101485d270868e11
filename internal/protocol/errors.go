package protocol

import "errors"

// Decode and lookup failures. All are plain status conditions: the feed
// core never panics on malformed input.
var (
	// ErrUnknownMessageType means the decoder met a type tag it does not
	// recognize. Processing of the current packet stops; already applied
	// messages are not rolled back.
	ErrUnknownMessageType = errors.New("unknown message type")

	// ErrTruncatedPacket means fewer bytes remain than the next message
	// requires. Expected whenever a logical message spans two reads; the
	// caller buffers the tail and waits for more data.
	ErrTruncatedPacket = errors.New("truncated packet")

	// ErrProtocolNotFound is returned by Lookup for an unregistered name.
	ErrProtocolNotFound = errors.New("protocol not found")
)

// Status is the numeric result code of a packet-processing call, kept
// compatible with the wire handler's external contract: zero is success,
// negative values map to the error taxonomy.
type Status int

const (
	StatusOK                 Status = 0
	StatusUnknownMessageType Status = -1
	StatusTruncatedPacket    Status = -2
	StatusUnknown            Status = -3
)

// statusText is the process-wide immutable description table. It is
// initialized once and never mutated.
var statusText = map[Status]string{
	StatusOK:                 "ok",
	StatusUnknownMessageType: "unknown message type",
	StatusTruncatedPacket:    "truncated packet",
	StatusUnknown:            "unknown error",
}

// String returns a human-readable description of the status. It is a pure
// lookup with no side effects; unrecognized codes report as unknown.
func (s Status) String() string {
	if text, ok := statusText[s]; ok {
		return text
	}
	return statusText[StatusUnknown]
}

// StatusOf maps an error returned by the feed core to its status code.
// A nil error is StatusOK; anything outside the decode taxonomy is
// StatusUnknown.
func StatusOf(err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, ErrUnknownMessageType):
		return StatusUnknownMessageType
	case errors.Is(err, ErrTruncatedPacket):
		return StatusTruncatedPacket
	default:
		return StatusUnknown
	}
}
