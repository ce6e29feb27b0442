package activity

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	nextCursorPrefix     = "next_"
	previousCursorPrefix = "prev_"
)

// ErrInvalidCursor indicates a pagination token that cannot be parsed back
// into a seek position. Callers must treat it as a client error.
var ErrInvalidCursor = errors.New("activity: invalid cursor")

// SeekPosition is the boundary key of a pagination window: the creation
// timestamp of the boundary record plus its id to break timestamp ties.
type SeekPosition struct {
	CreatedAtMicros int64  `json:"created_at_us"`
	ID              string `json:"id"`
}

// DecodedCursor carries at most one seek bound recovered from an opaque
// cursor string.
type DecodedCursor struct {
	Next     *SeekPosition
	Previous *SeekPosition
}

func encodePosition(position SeekPosition) string {
	payload, err := json.Marshal(position)
	if err != nil {
		// SeekPosition marshalling cannot fail; keep the cursor empty if it ever does.
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(payload)
}

// EncodeNextCursor encodes the boundary of the page that follows position.
func EncodeNextCursor(position SeekPosition) string {
	return nextCursorPrefix + encodePosition(position)
}

// EncodePreviousCursor encodes the boundary of the page that precedes position.
func EncodePreviousCursor(position SeekPosition) string {
	return previousCursorPrefix + encodePosition(position)
}

// DecodeCursor parses an opaque cursor string. An empty cursor decodes to the
// start of the sequence (both bounds nil).
func DecodeCursor(raw string) (DecodedCursor, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return DecodedCursor{}, nil
	}

	var encoded string
	var forward bool
	switch {
	case strings.HasPrefix(trimmed, nextCursorPrefix):
		encoded = strings.TrimPrefix(trimmed, nextCursorPrefix)
		forward = true
	case strings.HasPrefix(trimmed, previousCursorPrefix):
		encoded = strings.TrimPrefix(trimmed, previousCursorPrefix)
	default:
		return DecodedCursor{}, fmt.Errorf("%w: unrecognized prefix", ErrInvalidCursor)
	}

	payload, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return DecodedCursor{}, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}

	var position SeekPosition
	if err := json.Unmarshal(payload, &position); err != nil {
		return DecodedCursor{}, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	if position.ID == "" || position.CreatedAtMicros <= 0 {
		return DecodedCursor{}, fmt.Errorf("%w: incomplete position", ErrInvalidCursor)
	}

	if forward {
		return DecodedCursor{Next: &position}, nil
	}
	return DecodedCursor{Previous: &position}, nil
}
