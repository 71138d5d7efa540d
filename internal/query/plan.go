package query

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/marketplace/internal/apperr"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Limit accepts a page size as a JSON number or a numeric string.
type Limit int

func (l *Limit) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*l = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return apperr.New(apperr.ErrValidation, "limit must be an integer")
	}
	*l = Limit(n)
	return nil
}

func (l Limit) resolve() (int, error) {
	switch {
	case l < 0:
		return 0, apperr.New(apperr.ErrValidation, "limit must not be negative")
	case l == 0:
		return DefaultLimit, nil
	case l > MaxLimit:
		return MaxLimit, nil
	}
	return int(l), nil
}

// SortKey is one column of the ordering.
type SortKey struct {
	Column string
	Desc   bool
}

func (k SortKey) String() string {
	if k.Desc {
		return k.Column + " DESC"
	}
	return k.Column + " ASC"
}

type condition struct {
	query string
	args  []interface{}
}

// Plan is a compiled listing query.
type Plan struct {
	Table  string
	Keys   []SortKey
	Limit  int
	Random bool

	conds  []condition
	cursor *Cursor
}

func (p *Plan) where(query string, args ...interface{}) {
	p.conds = append(p.conds, condition{query: query, args: args})
}

func (p *Plan) col(name string) string {
	return p.Table + "." + name
}

// ValueColumns lists the sort columns besides created_at and id, in order.
func (p Plan) ValueColumns() []string {
	cols := make([]string, 0, len(p.Keys))
	for _, k := range p.Keys {
		if k.Column == p.col("created_at") || k.Column == p.col("id") {
			continue
		}
		cols = append(cols, k.Column)
	}
	return cols
}

func (p *Plan) setCursor(raw string) error {
	if raw == "" || p.Random {
		return nil
	}
	c, err := DecodeCursor(raw)
	if err != nil {
		return err
	}
	if len(c.Values) != len(p.ValueColumns()) {
		return errBadCursor
	}
	p.cursor = &c
	return nil
}

// keyset builds k1 ▷ v1 OR (k1 = v1 AND k2 ▷ v2) OR ... over the full ordering.
func (p Plan) keyset() (string, []interface{}) {
	values := make([]interface{}, 0, len(p.Keys))
	vi := 0
	for _, k := range p.Keys {
		switch k.Column {
		case p.col("created_at"):
			values = append(values, p.cursor.CreatedAt)
		case p.col("id"):
			values = append(values, p.cursor.ID)
		default:
			values = append(values, p.cursor.Values[vi])
			vi++
		}
	}

	var (
		ors  []string
		args []interface{}
	)
	for i, k := range p.Keys {
		ands := make([]string, 0, i+1)
		for j := 0; j < i; j++ {
			ands = append(ands, p.Keys[j].Column+" = ?")
			args = append(args, values[j])
		}
		op := " > ?"
		if k.Desc {
			op = " < ?"
		}
		ands = append(ands, k.Column+op)
		args = append(args, values[i])
		ors = append(ors, "("+strings.Join(ands, " AND ")+")")
	}
	return "(" + strings.Join(ors, " OR ") + ")", args
}

// Apply scopes db to the plan, fetching one row past the page to detect more.
func (p Plan) Apply(db *gorm.DB) *gorm.DB {
	q := db.Table(p.Table)
	for _, c := range p.conds {
		q = q.Where(c.query, c.args...)
	}

	if p.Random {
		return q.Order("RANDOM()").Limit(p.Limit + 1)
	}

	if p.cursor != nil {
		expr, args := p.keyset()
		q = q.Where(expr, args...)
	}
	for _, k := range p.Keys {
		q = q.Order(k.String())
	}
	return q.Limit(p.Limit + 1)
}

// KeyFunc extracts the ordering values of a row.
type KeyFunc[T any] func(row T) (createdAt time.Time, id uuid.UUID, values map[string]float64)

// Page is one slice of a listing.
type Page[T any] struct {
	Items      []T
	NextCursor *string
}

// Paginate runs plan against db. NextCursor addresses the last returned row
// and is nil when the listing is exhausted.
func Paginate[T any](db *gorm.DB, plan Plan, key KeyFunc[T], preload ...string) (Page[T], error) {
	q := plan.Apply(db)
	for _, assoc := range preload {
		q = q.Preload(assoc)
	}

	var rows []T
	if err := q.Find(&rows).Error; err != nil {
		return Page[T]{}, err
	}

	if len(rows) <= plan.Limit {
		return Page[T]{Items: rows}, nil
	}

	rows = rows[:plan.Limit]
	createdAt, id, values := key(rows[len(rows)-1])
	c := Cursor{CreatedAt: createdAt, ID: id}
	for _, col := range plan.ValueColumns() {
		c.Values = append(c.Values, values[col])
	}
	next := EncodeCursor(c)
	return Page[T]{Items: rows, NextCursor: &next}, nil
}

// likePattern lower-cases s and escapes LIKE wildcards for use with ESCAPE '\'.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.ToLower(s)) + "%"
}

func parseID(raw, field string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperr.New(apperr.ErrValidation, field+" must be a valid id")
	}
	return id, nil
}

// ParseOptions decodes the JSON "options" query parameter into dst.
func ParseOptions(raw string, dst interface{}) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		var ae *apperr.Error
		if errors.As(err, &ae) {
			return ae
		}
		return apperr.Wrap(apperr.ErrValidation, err, "options must be valid JSON")
	}
	return nil
}
