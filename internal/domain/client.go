package domain

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle state of a client record
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusArchived Status = "archived"
)

// AllStatuses lists every persisted status value
var AllStatuses = []Status{StatusActive, StatusInactive, StatusArchived}

// Valid reports whether s is one of the persisted status values
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusArchived:
		return true
	}
	return false
}

// ParseStatus validates and normalizes a status string
func ParseStatus(v string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(v)))
	if !s.Valid() {
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalidInput, v)
	}
	return s, nil
}

// DefaultCountry is stored when a client is created without a country
const DefaultCountry = "US"

// Client represents a client of the practice
type Client struct {
	ID            string    `json:"id"`
	ClientID      *int64    `json:"client_id,omitempty"`
	FirstName     string    `json:"first_name"`
	LastName      string    `json:"last_name"`
	Email         *string   `json:"email,omitempty"`
	Phone         *string   `json:"phone,omitempty"`
	DateOfBirth   *Date     `json:"date_of_birth,omitempty"`
	Gender        *string   `json:"gender,omitempty"`
	Occupation    *string   `json:"occupation,omitempty"`
	AvatarURL     *string   `json:"avatar_url,omitempty"`
	AddressLine1  *string   `json:"address_line1,omitempty"`
	AddressLine2  *string   `json:"address_line2,omitempty"`
	City          *string   `json:"city,omitempty"`
	State         *string   `json:"state,omitempty"`
	PostalCode    *string   `json:"postal_code,omitempty"`
	Country       string    `json:"country"`
	Status        Status    `json:"status"`
	Labels        []string  `json:"labels"`
	Notes         *string   `json:"notes,omitempty"`
	Alerts        *string   `json:"alerts,omitempty"`
	LastVisit     *Date     `json:"last_visit,omitempty"`
	TotalVisits   int       `json:"total_visits"`
	LifetimeValue float64   `json:"lifetime_value"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// FullName returns "first last"
func (c *Client) FullName() string {
	return c.FirstName + " " + c.LastName
}

// NewClient carries the fields accepted on creation. Zero values for
// Status, Country, Labels, TotalVisits and LifetimeValue get defaults.
type NewClient struct {
	FirstName     string   `json:"first_name"`
	LastName      string   `json:"last_name"`
	Email         *string  `json:"email,omitempty"`
	Phone         *string  `json:"phone,omitempty"`
	DateOfBirth   *Date    `json:"date_of_birth,omitempty"`
	Gender        *string  `json:"gender,omitempty"`
	Occupation    *string  `json:"occupation,omitempty"`
	AvatarURL     *string  `json:"avatar_url,omitempty"`
	AddressLine1  *string  `json:"address_line1,omitempty"`
	AddressLine2  *string  `json:"address_line2,omitempty"`
	City          *string  `json:"city,omitempty"`
	State         *string  `json:"state,omitempty"`
	PostalCode    *string  `json:"postal_code,omitempty"`
	Country       string   `json:"country,omitempty"`
	Status        Status   `json:"status,omitempty"`
	Labels        []string `json:"labels,omitempty"`
	Notes         *string  `json:"notes,omitempty"`
	Alerts        *string  `json:"alerts,omitempty"`
	LastVisit     *Date    `json:"last_visit,omitempty"`
	TotalVisits   *int     `json:"total_visits,omitempty"`
	LifetimeValue *float64 `json:"lifetime_value,omitempty"`
}

// ApplyDefaults fills the creation defaults in place
func (n *NewClient) ApplyDefaults() {
	if n.Labels == nil {
		n.Labels = []string{}
	}
	if n.TotalVisits == nil {
		zero := 0
		n.TotalVisits = &zero
	}
	if n.LifetimeValue == nil {
		zero := 0.0
		n.LifetimeValue = &zero
	}
	if n.Status == "" {
		n.Status = StatusActive
	}
	if n.Country == "" {
		n.Country = DefaultCountry
	}
}

// Validate rejects values the store would never persist
func (n *NewClient) Validate() error {
	if strings.TrimSpace(n.FirstName) == "" || strings.TrimSpace(n.LastName) == "" {
		return fmt.Errorf("%w: first_name and last_name are required", ErrInvalidInput)
	}
	if n.Status != "" && !n.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidInput, n.Status)
	}
	if n.TotalVisits != nil && *n.TotalVisits < 0 {
		return fmt.Errorf("%w: total_visits must be non-negative", ErrInvalidInput)
	}
	if n.LifetimeValue != nil && *n.LifetimeValue < 0 {
		return fmt.Errorf("%w: lifetime_value must be non-negative", ErrInvalidInput)
	}
	return nil
}

// ListFilter narrows a list query. Field order matches the JSON used for
// cache keys, so it must stay stable.
type ListFilter struct {
	Search string   `json:"search,omitempty"`
	Status Status   `json:"status,omitempty"`
	Labels []string `json:"labels,omitempty"`
	Limit  int      `json:"limit,omitempty"`
	Offset int      `json:"offset,omitempty"`
}

// Stats aggregates clients by status
type Stats struct {
	Total    int `json:"total"`
	Active   int `json:"active"`
	Inactive int `json:"inactive"`
	Archived int `json:"archived"`
}

// Add counts one client with the given status
func (s *Stats) Add(status Status, n int) {
	switch status {
	case StatusActive:
		s.Active += n
	case StatusInactive:
		s.Inactive += n
	case StatusArchived:
		s.Archived += n
	default:
		return
	}
	s.Total += n
}

// ClientRepository defines data access for clients
type ClientRepository interface {
	List(ctx context.Context, filter ListFilter) ([]*Client, error)
	Get(ctx context.Context, id string) (*Client, error)
	Search(ctx context.Context, query string, limit int) ([]*Client, error)
	Create(ctx context.Context, c NewClient) (*Client, error)
	Update(ctx context.Context, id string, u ClientUpdate, now time.Time) (*Client, error)
	Delete(ctx context.Context, id string) error
	CountByStatus(ctx context.Context) (*Stats, error)
	ListStatuses(ctx context.Context) ([]Status, error)
	Ping(ctx context.Context) error
}

// Date is a calendar date without a time component ("2006-01-02")
type Date struct {
	time.Time
}

const dateLayout = "2006-01-02"

// NewDate truncates t to its calendar date in UTC
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses "2006-01-02" or an RFC3339 timestamp
func ParseDate(s string) (Date, error) {
	if t, err := time.Parse(dateLayout, s); err == nil {
		return Date{Time: t}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return Date{}, fmt.Errorf("%w: invalid date %q", ErrInvalidInput, s)
	}
	return NewDate(t.Year(), t.Month(), t.Day()), nil
}

func (d Date) String() string {
	return d.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Scan implements sql.Scanner
func (d *Date) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		*d = NewDate(v.Year(), v.Month(), v.Day())
		return nil
	case []byte:
		return d.parseInto(string(v))
	case string:
		return d.parseInto(v)
	}
	return fmt.Errorf("cannot scan %T into Date", src)
}

func (d *Date) parseInto(s string) error {
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Value implements driver.Valuer
func (d Date) Value() (driver.Value, error) {
	return d.String(), nil
}
