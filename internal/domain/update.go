package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Patch is one optional field of a partial update. A field that was never
// set is left untouched; a set field overwrites the stored value, and for
// pointer types a set nil clears the column.
type Patch[T any] struct {
	Set   bool
	Null  bool // explicit JSON null
	Value T
}

// Set returns a patch that assigns v
func Set[T any](v T) Patch[T] {
	return Patch[T]{Set: true, Value: v}
}

// UnmarshalJSON marks the field as set, including an explicit null
func (p *Patch[T]) UnmarshalJSON(b []byte) error {
	p.Set = true
	if string(bytes.TrimSpace(b)) == "null" {
		var zero T
		p.Null, p.Value = true, zero
		return nil
	}
	return json.Unmarshal(b, &p.Value)
}

// MarshalJSON writes the value, or null when unset
func (p Patch[T]) MarshalJSON() ([]byte, error) {
	if !p.Set {
		return []byte("null"), nil
	}
	return json.Marshal(p.Value)
}

// ClientUpdate is a partial update of a client. id, client_id and
// created_at cannot be changed; updated_at is always refreshed.
type ClientUpdate struct {
	FirstName     Patch[string]   `json:"first_name"`
	LastName      Patch[string]   `json:"last_name"`
	Email         Patch[*string]  `json:"email"`
	Phone         Patch[*string]  `json:"phone"`
	DateOfBirth   Patch[*Date]    `json:"date_of_birth"`
	Gender        Patch[*string]  `json:"gender"`
	Occupation    Patch[*string]  `json:"occupation"`
	AvatarURL     Patch[*string]  `json:"avatar_url"`
	AddressLine1  Patch[*string]  `json:"address_line1"`
	AddressLine2  Patch[*string]  `json:"address_line2"`
	City          Patch[*string]  `json:"city"`
	State         Patch[*string]  `json:"state"`
	PostalCode    Patch[*string]  `json:"postal_code"`
	Country       Patch[string]   `json:"country"`
	Status        Patch[Status]   `json:"status"`
	Labels        Patch[[]string] `json:"labels"`
	Notes         Patch[*string]  `json:"notes"`
	Alerts        Patch[*string]  `json:"alerts"`
	LastVisit     Patch[*Date]    `json:"last_visit"`
	TotalVisits   Patch[int]      `json:"total_visits"`
	LifetimeValue Patch[float64]  `json:"lifetime_value"`
}

// Column is a single assignment produced from an update
type Column struct {
	Name  string
	Value any
}

// Columns returns the set fields in a stable order
func (u *ClientUpdate) Columns() []Column {
	var cols []Column
	add := func(set bool, name string, v any) {
		if set {
			cols = append(cols, Column{Name: name, Value: v})
		}
	}
	add(u.FirstName.Set, "first_name", u.FirstName.Value)
	add(u.LastName.Set, "last_name", u.LastName.Value)
	add(u.Email.Set, "email", u.Email.Value)
	add(u.Phone.Set, "phone", u.Phone.Value)
	add(u.DateOfBirth.Set, "date_of_birth", u.DateOfBirth.Value)
	add(u.Gender.Set, "gender", u.Gender.Value)
	add(u.Occupation.Set, "occupation", u.Occupation.Value)
	add(u.AvatarURL.Set, "avatar_url", u.AvatarURL.Value)
	add(u.AddressLine1.Set, "address_line1", u.AddressLine1.Value)
	add(u.AddressLine2.Set, "address_line2", u.AddressLine2.Value)
	add(u.City.Set, "city", u.City.Value)
	add(u.State.Set, "state", u.State.Value)
	add(u.PostalCode.Set, "postal_code", u.PostalCode.Value)
	add(u.Country.Set, "country", u.Country.Value)
	add(u.Status.Set, "status", u.Status.Value)
	add(u.Labels.Set, "labels", u.Labels.Value)
	add(u.Notes.Set, "notes", u.Notes.Value)
	add(u.Alerts.Set, "alerts", u.Alerts.Value)
	add(u.LastVisit.Set, "last_visit", u.LastVisit.Value)
	add(u.TotalVisits.Set, "total_visits", u.TotalVisits.Value)
	add(u.LifetimeValue.Set, "lifetime_value", u.LifetimeValue.Value)
	return cols
}

// Validate rejects assignments the store would refuse
func (u *ClientUpdate) Validate() error {
	for _, f := range []struct {
		name string
		null bool
	}{
		{"first_name", u.FirstName.Null},
		{"last_name", u.LastName.Null},
		{"country", u.Country.Null},
		{"status", u.Status.Null},
		{"total_visits", u.TotalVisits.Null},
		{"lifetime_value", u.LifetimeValue.Null},
	} {
		if f.null {
			return fmt.Errorf("%w: %s cannot be null", ErrInvalidInput, f.name)
		}
	}
	if u.FirstName.Set && strings.TrimSpace(u.FirstName.Value) == "" {
		return fmt.Errorf("%w: first_name cannot be empty", ErrInvalidInput)
	}
	if u.LastName.Set && strings.TrimSpace(u.LastName.Value) == "" {
		return fmt.Errorf("%w: last_name cannot be empty", ErrInvalidInput)
	}
	if u.Country.Set && strings.TrimSpace(u.Country.Value) == "" {
		return fmt.Errorf("%w: country cannot be empty", ErrInvalidInput)
	}
	if u.Status.Set && !u.Status.Value.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidInput, u.Status.Value)
	}
	if u.TotalVisits.Set && u.TotalVisits.Value < 0 {
		return fmt.Errorf("%w: total_visits must be non-negative", ErrInvalidInput)
	}
	if u.LifetimeValue.Set && u.LifetimeValue.Value < 0 {
		return fmt.Errorf("%w: lifetime_value must be non-negative", ErrInvalidInput)
	}
	return nil
}

// Apply merges the set fields into c. Used by in-memory stores.
func (u *ClientUpdate) Apply(c *Client) {
	if u.FirstName.Set {
		c.FirstName = u.FirstName.Value
	}
	if u.LastName.Set {
		c.LastName = u.LastName.Value
	}
	if u.Email.Set {
		c.Email = u.Email.Value
	}
	if u.Phone.Set {
		c.Phone = u.Phone.Value
	}
	if u.DateOfBirth.Set {
		c.DateOfBirth = u.DateOfBirth.Value
	}
	if u.Gender.Set {
		c.Gender = u.Gender.Value
	}
	if u.Occupation.Set {
		c.Occupation = u.Occupation.Value
	}
	if u.AvatarURL.Set {
		c.AvatarURL = u.AvatarURL.Value
	}
	if u.AddressLine1.Set {
		c.AddressLine1 = u.AddressLine1.Value
	}
	if u.AddressLine2.Set {
		c.AddressLine2 = u.AddressLine2.Value
	}
	if u.City.Set {
		c.City = u.City.Value
	}
	if u.State.Set {
		c.State = u.State.Value
	}
	if u.PostalCode.Set {
		c.PostalCode = u.PostalCode.Value
	}
	if u.Country.Set {
		c.Country = u.Country.Value
	}
	if u.Status.Set {
		c.Status = u.Status.Value
	}
	if u.Labels.Set {
		c.Labels = u.Labels.Value
		if c.Labels == nil {
			c.Labels = []string{}
		}
	}
	if u.Notes.Set {
		c.Notes = u.Notes.Value
	}
	if u.Alerts.Set {
		c.Alerts = u.Alerts.Value
	}
	if u.LastVisit.Set {
		c.LastVisit = u.LastVisit.Value
	}
	if u.TotalVisits.Set {
		c.TotalVisits = u.TotalVisits.Value
	}
	if u.LifetimeValue.Set {
		c.LifetimeValue = u.LifetimeValue.Value
	}
}
