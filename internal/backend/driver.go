package backend

import (
	"context"
	"encoding/json"
	"errors"

	"grocerysync/internal/core/models"
)

var (
	ErrNotFound     = errors.New("object not found")
	ErrUnauthorized = errors.New("unauthorized")
)

// Credential is the session every call runs under. It is passed explicitly, never held globally.
type Credential struct {
	Token  string
	UserID string
}

// Criteria selects objects of one class. Conditions are equality matches on top level fields;
// Exists requires a field to be present (true) or missing (false). Limit 0 means the driver default.
type Criteria struct {
	Conditions map[string]interface{}
	Exists     map[string]bool
	Limit      int
}

func Where(field string, value interface{}) Criteria {
	return Criteria{}.And(field, value)
}

func (c Criteria) And(field string, value interface{}) Criteria {
	conditions := make(map[string]interface{}, len(c.Conditions)+1)
	for k, v := range c.Conditions {
		conditions[k] = v
	}
	conditions[field] = value
	c.Conditions = conditions
	return c
}

func (c Criteria) Without(field string) Criteria {
	return c.withExists(field, false)
}

func (c Criteria) With(field string) Criteria {
	return c.withExists(field, true)
}

func (c Criteria) withExists(field string, present bool) Criteria {
	exists := make(map[string]bool, len(c.Exists)+1)
	for k, v := range c.Exists {
		exists[k] = v
	}
	exists[field] = present
	c.Exists = exists
	return c
}

// Record is a raw stored object. Data holds the full JSON body including objectId and timestamps.
type Record struct {
	ID   string
	Data json.RawMessage
}

// Cursor walks every object matching a search. Next returns false on exhaustion or error;
// Err tells the two apart.
type Cursor interface {
	Next(ctx context.Context) bool
	Record() Record
	Err() error
	Close() error
}

// Unset in an update body removes the field from the stored object.
type Unset struct{}

type Driver interface {
	LogIn(ctx context.Context, username, password string) (Credential, error)
	Search(ctx context.Context, class string, criteria Criteria, cred Credential) ([]Record, error)
	SearchAll(ctx context.Context, class string, criteria Criteria, cred Credential) Cursor
	Read(ctx context.Context, class, id string, cred Credential) (Record, error)
	Create(ctx context.Context, class string, data map[string]interface{}, acl models.ACL, cred Credential) (string, error)
	Update(ctx context.Context, class, id string, data map[string]interface{}, cred Credential) error
	Delete(ctx context.Context, class, id string, cred Credential) error
}

// Registrar is implemented by drivers that own their user table.
type Registrar interface {
	SignUp(ctx context.Context, username, password string) (string, error)
}

// SliceCursor serves already fetched records. Drivers that page in memory return it.
type SliceCursor struct {
	records []Record
	pos     int
	err     error
}

func NewSliceCursor(records []Record, err error) *SliceCursor {
	return &SliceCursor{records: records, pos: -1, err: err}
}

func (c *SliceCursor) Next(ctx context.Context) bool {
	if c.err != nil {
		return false
	}
	if err := ctx.Err(); err != nil {
		c.err = err
		return false
	}
	c.pos++
	return c.pos < len(c.records)
}

func (c *SliceCursor) Record() Record {
	return c.records[c.pos]
}

func (c *SliceCursor) Err() error {
	return c.err
}

func (c *SliceCursor) Close() error {
	return nil
}

// PageFunc fetches the page after the given objectId ("" for the first page).
type PageFunc func(ctx context.Context, after string) ([]Record, error)

// PagedCursor drains a keyset paginated source ordered by objectId.
type PagedCursor struct {
	fetch PageFunc
	page  []Record
	pos   int
	last  string
	done  bool
	err   error
}

func NewPagedCursor(fetch PageFunc) *PagedCursor {
	return &PagedCursor{fetch: fetch}
}

func (c *PagedCursor) Next(ctx context.Context) bool {
	if c.err != nil {
		return false
	}
	if c.pos+1 < len(c.page) {
		c.pos++
		return true
	}
	if c.done {
		return false
	}

	page, err := c.fetch(ctx, c.last)
	if err != nil {
		c.err = err
		return false
	}
	if len(page) == 0 {
		c.done = true
		return false
	}
	c.page = page
	c.pos = 0
	c.last = page[len(page)-1].ID
	return true
}

func (c *PagedCursor) Record() Record {
	return c.page[c.pos]
}

func (c *PagedCursor) Err() error {
	return c.err
}

func (c *PagedCursor) Close() error {
	c.done = true
	return nil
}
