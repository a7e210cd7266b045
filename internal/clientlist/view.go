// Package clientlist derives the rendered client table from a loaded
// collection and the user's filter, search and sort state.
package clientlist

import (
	"slices"
	"sort"
	"strings"

	"github.com/andrsadr/koravi/internal/domain"
)

// MinQueryLength is the shortest trimmed query that filters rows
const MinQueryLength = 2

// View is the filter, search and sort state of the client table
type View struct {
	Query    string
	Statuses map[domain.Status]bool
	Labels   map[string]bool
	Sort     Sort
}

// NewView returns the initial state: every status shown, no label
// restriction, no query and no sort.
func NewView() View {
	v := View{
		Statuses: make(map[domain.Status]bool, len(domain.AllStatuses)),
		Labels:   map[string]bool{},
	}
	for _, st := range domain.AllStatuses {
		v.Statuses[st] = true
	}
	return v
}

// SetStatuses replaces the active status set
func (v *View) SetStatuses(statuses ...domain.Status) {
	v.Statuses = make(map[domain.Status]bool, len(statuses))
	for _, st := range statuses {
		if st.Valid() {
			v.Statuses[st] = true
		}
	}
}

// ToggleStatus adds or removes one status from the active set
func (v *View) ToggleStatus(st domain.Status) {
	if v.Statuses == nil {
		v.Statuses = map[domain.Status]bool{}
	}
	if v.Statuses[st] {
		delete(v.Statuses, st)
		return
	}
	v.Statuses[st] = true
}

// SetLabels replaces the active label set
func (v *View) SetLabels(labels ...string) {
	v.Labels = make(map[string]bool, len(labels))
	for _, l := range labels {
		if l = strings.TrimSpace(l); l != "" {
			v.Labels[l] = true
		}
	}
}

// ToggleLabel adds or removes one label from the active set
func (v *View) ToggleLabel(label string) {
	if v.Labels == nil {
		v.Labels = map[string]bool{}
	}
	if v.Labels[label] {
		delete(v.Labels, label)
		return
	}
	v.Labels[label] = true
}

// ToggleSort advances the sort state of col
func (v *View) ToggleSort(col Column) {
	v.Sort = v.Sort.Toggle(col)
}

// Searching reports whether the query is long enough to filter rows
func (v View) Searching() bool {
	return len([]rune(strings.TrimSpace(v.Query))) >= MinQueryLength
}

// Derive computes the visible rows. The input slice is never reordered and
// the same inputs always produce the same output.
func Derive(clients []*domain.Client, v View) []*domain.Client {
	restrictStatus := false
	for _, st := range domain.AllStatuses {
		if !v.Statuses[st] {
			restrictStatus = true
			break
		}
	}
	query := ""
	if v.Searching() {
		query = strings.ToLower(strings.TrimSpace(v.Query))
	}

	out := make([]*domain.Client, 0, len(clients))
	for _, c := range clients {
		if c == nil {
			continue
		}
		if restrictStatus && !v.Statuses[c.Status] {
			continue
		}
		if len(v.Labels) > 0 && !hasAnyLabel(c, v.Labels) {
			continue
		}
		if query != "" && !matchesQuery(c, query) {
			continue
		}
		out = append(out, c)
	}

	if v.Sort.Active() {
		sort.SliceStable(out, func(i, j int) bool {
			return v.Sort.less(out[i], out[j])
		})
	}
	return out
}

// AvailableLabels lists every label present in clients, sorted and
// without duplicates.
func AvailableLabels(clients []*domain.Client) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, c := range clients {
		if c == nil {
			continue
		}
		for _, l := range c.Labels {
			if l == "" || seen[l] {
				continue
			}
			seen[l] = true
			out = append(out, l)
		}
	}
	slices.Sort(out)
	return out
}

func hasAnyLabel(c *domain.Client, labels map[string]bool) bool {
	for _, l := range c.Labels {
		if labels[l] {
			return true
		}
	}
	return false
}

// matchesQuery expects q already lowercased
func matchesQuery(c *domain.Client, q string) bool {
	fields := []string{c.FirstName, c.LastName}
	if c.Email != nil {
		fields = append(fields, *c.Email)
	}
	if c.Phone != nil {
		fields = append(fields, *c.Phone)
	}
	fields = append(fields, c.Labels...)

	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), q) {
			return true
		}
	}
	return false
}
