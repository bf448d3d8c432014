package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Object is anything stored in the backend under a generated objectId.
type Object interface {
	GetObjectID() string
}

// Base carries the fields the backend assigns. They are stripped before every write.
type Base struct {
	ObjectID  string     `json:"objectId,omitempty"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

func (b Base) GetObjectID() string {
	return b.ObjectID
}

// UpdatedAtOrZero is used for ordering candidates; records never read back have no timestamp.
func (b Base) UpdatedAtOrZero() time.Time {
	if b.UpdatedAt == nil {
		return time.Time{}
	}
	return *b.UpdatedAt
}

// ReservedKeys are owned by the backend and never sent in a create or update body.
var ReservedKeys = []string{"objectId", "createdAt", "updatedAt", "ACL"}

const dateLayout = "2006-01-02T15:04:05.000Z"

// Date is encoded the way Parse Server stores dates: {"__type":"Date","iso":"..."}.
// Plain RFC3339 strings are accepted on decode.
type Date struct {
	time.Time
}

func NewDate(t time.Time) *Date {
	return &Date{Time: t}
}

type dateJSON struct {
	Type string `json:"__type"`
	ISO  string `json:"iso"`
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(dateJSON{Type: "Date", ISO: d.UTC().Format(dateLayout)})
}

func (d *Date) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if raw == "null" {
		return nil
	}

	var iso string
	if strings.HasPrefix(raw, "{") {
		var dj dateJSON
		if err := json.Unmarshal(b, &dj); err != nil {
			return err
		}
		if dj.Type != "" && dj.Type != "Date" {
			return fmt.Errorf("unexpected __type %q for date", dj.Type)
		}
		iso = dj.ISO
	} else if err := json.Unmarshal(b, &iso); err != nil {
		return err
	}

	t, err := time.Parse(time.RFC3339Nano, iso)
	if err != nil {
		return fmt.Errorf("parse date %q: %w", iso, err)
	}
	d.Time = t.UTC()
	return nil
}

// Equal compares two optional dates; both nil counts as equal.
func (d *Date) Equal(o *Date) bool {
	if d == nil || o == nil {
		return d == nil && o == nil
	}
	return d.Time.Equal(o.Time)
}

type Permission struct {
	Read  bool `json:"read,omitempty"`
	Write bool `json:"write,omitempty"`
}

// ACL maps a user objectId (or "*") to its permissions.
type ACL map[string]Permission

// NewUserACL grants read and write to a single user and nobody else.
func NewUserACL(userID string) ACL {
	return ACL{userID: {Read: true, Write: true}}
}
