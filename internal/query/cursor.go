// Package query turns listing options into keyset-paginated gorm queries.
package query

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/marketplace/internal/apperr"
)

// Cursor is the decoded position of the last row of a page.
//
// Wire form: "<RFC3339Nano createdAt>_<id>", followed by
// "_<base64url(JSON values)>" when the ordering has keys besides createdAt and id.
type Cursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
	Values    []float64
}

var errBadCursor = apperr.New(apperr.ErrValidation, "invalid cursor")

// EncodeCursor renders c in wire form.
func EncodeCursor(c Cursor) string {
	s := c.CreatedAt.UTC().Format(time.RFC3339Nano) + "_" + c.ID.String()
	if len(c.Values) > 0 {
		raw, _ := json.Marshal(c.Values)
		s += "_" + base64.RawURLEncoding.EncodeToString(raw)
	}
	return s
}

// DecodeCursor parses the wire form produced by EncodeCursor.
func DecodeCursor(s string) (Cursor, error) {
	parts := strings.SplitN(s, "_", 3)
	if len(parts) < 2 {
		return Cursor{}, errBadCursor
	}

	createdAt, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return Cursor{}, errBadCursor
	}
	id, err := uuid.Parse(parts[1])
	if err != nil {
		return Cursor{}, errBadCursor
	}

	c := Cursor{CreatedAt: createdAt.UTC(), ID: id}
	if len(parts) == 3 {
		raw, err := base64.RawURLEncoding.DecodeString(parts[2])
		if err != nil {
			return Cursor{}, errBadCursor
		}
		if err := json.Unmarshal(raw, &c.Values); err != nil {
			return Cursor{}, errBadCursor
		}
	}
	return c, nil
}
