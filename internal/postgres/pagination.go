package postgres

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrInvalidCursor = errors.New("invalid cursor")

// Cursor is a keyset position over (created_at, id), used by both the room
// listing and the chat history. Encoded opaquely so clients cannot
// meaningfully edit it.
type Cursor struct {
	At time.Time
	ID string
}

func EncodeCursor(c Cursor) (string, error) {
	if c.ID == "" {
		return "", fmt.Errorf("encode cursor: empty id")
	}
	raw := c.At.UTC().Format(time.RFC3339Nano) + "|" + c.ID
	return base64.RawURLEncoding.EncodeToString([]byte(raw)), nil
}

func DecodeCursor(s string) (*Cursor, error) {
	if s == "" {
		return nil, nil
	}
	data, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: decode base64: %v", ErrInvalidCursor, err)
	}
	ts, id, ok := strings.Cut(string(data), "|")
	if !ok || id == "" {
		return nil, fmt.Errorf("%w: malformed position", ErrInvalidCursor)
	}
	at, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, fmt.Errorf("%w: bad timestamp: %v", ErrInvalidCursor, err)
	}
	return &Cursor{At: at, ID: id}, nil
}
