package clientlist

import (
	"cmp"
	"strings"
	"time"

	"github.com/andrsadr/koravi/internal/domain"
)

// Column identifies a sortable column of the client table
type Column string

const (
	ColumnName          Column = "client_name"
	ColumnEmail         Column = "email"
	ColumnStatus        Column = "status"
	ColumnClientID      Column = "client_id"
	ColumnTotalVisits   Column = "total_visits"
	ColumnLifetimeValue Column = "lifetime_value"
	ColumnLastVisit     Column = "last_visit"
)

// Columns lists every sortable column
var Columns = []Column{
	ColumnName, ColumnEmail, ColumnStatus, ColumnClientID,
	ColumnTotalVisits, ColumnLifetimeValue, ColumnLastVisit,
}

// ParseColumn resolves a column name
func ParseColumn(s string) (Column, bool) {
	for _, c := range Columns {
		if string(c) == s {
			return c, true
		}
	}
	return "", false
}

// Direction of a sort
type Direction int

const (
	Unsorted Direction = iota
	Ascending
	Descending
)

func (d Direction) String() string {
	switch d {
	case Ascending:
		return "asc"
	case Descending:
		return "desc"
	default:
		return ""
	}
}

// ParseDirection accepts "asc" and "desc"; anything else is Unsorted
func ParseDirection(s string) Direction {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "asc":
		return Ascending
	case "desc":
		return Descending
	default:
		return Unsorted
	}
}

// Sort is the active sort key
type Sort struct {
	Column    Column
	Direction Direction
}

// Active reports whether rows are sorted at all
func (s Sort) Active() bool {
	return s.Column != "" && s.Direction != Unsorted
}

// Toggle cycles col through ascending, descending and unsorted. Selecting
// another column starts it at ascending.
func (s Sort) Toggle(col Column) Sort {
	if s.Column != col {
		return Sort{Column: col, Direction: Ascending}
	}
	switch s.Direction {
	case Ascending:
		return Sort{Column: col, Direction: Descending}
	case Descending:
		return Sort{}
	default:
		return Sort{Column: col, Direction: Ascending}
	}
}

func (s Sort) less(a, b *domain.Client) bool {
	c := compareBy(s.Column, a, b)
	if s.Direction == Descending {
		return c > 0
	}
	return c < 0
}

func compareBy(col Column, a, b *domain.Client) int {
	switch col {
	case ColumnName:
		return strings.Compare(strings.ToLower(a.FullName()), strings.ToLower(b.FullName()))
	case ColumnEmail:
		return strings.Compare(lowerOrEmpty(a.Email), lowerOrEmpty(b.Email))
	case ColumnStatus:
		return strings.Compare(string(a.Status), string(b.Status))
	case ColumnClientID:
		return cmp.Compare(DisplayNumber(a), DisplayNumber(b))
	case ColumnTotalVisits:
		return cmp.Compare(a.TotalVisits, b.TotalVisits)
	case ColumnLifetimeValue:
		return cmp.Compare(a.LifetimeValue, b.LifetimeValue)
	case ColumnLastVisit:
		return lastVisit(a).Compare(lastVisit(b))
	default:
		return 0
	}
}

// DisplayNumber is the client's display number. Rows without one get a
// stable number derived from the first group of their id.
func DisplayNumber(c *domain.Client) int64 {
	if c.ClientID != nil && *c.ClientID != 0 {
		return *c.ClientID
	}
	prefix, _, _ := strings.Cut(c.ID, "-")
	var sum int64
	for _, r := range prefix {
		sum += int64(r)
	}
	return sum % 10000
}

func lowerOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return strings.ToLower(*s)
}

func lastVisit(c *domain.Client) time.Time {
	if c.LastVisit == nil {
		return time.Time{}
	}
	return c.LastVisit.Time
}
