package negotiation

import (
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidCursor = errors.New("invalid cursor")

// Cursor is a position in the (updated_at desc, id desc) listing order.
type Cursor struct {
	UpdatedAt time.Time
	ID        uuid.UUID
}

// CursorFor returns the cursor positioned after n.
func CursorFor(n *Negotiation) Cursor {
	return Cursor{UpdatedAt: n.UpdatedAt, ID: n.ID}
}

// Encode returns an opaque token.
func (c Cursor) Encode() string {
	raw := strconv.FormatInt(c.UpdatedAt.UnixNano(), 10) + "|" + c.ID.String()
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a token produced by Encode.
func DecodeCursor(token string) (*Cursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 {
		return nil, ErrInvalidCursor
	}
	nanos, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	id, err := uuid.Parse(parts[1])
	if err != nil {
		return nil, ErrInvalidCursor
	}
	return &Cursor{UpdatedAt: time.Unix(0, nanos).UTC(), ID: id}, nil
}
