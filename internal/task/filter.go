package task

import (
	"fmt"
	"strings"
)

// Filters narrow the task list. The zero value is equivalent to
// DefaultFilters.
type Filters struct {
	Status   Status
	Priority Priority
	Search   string
}

func DefaultFilters() Filters {
	return Filters{Status: StatusAll, Priority: PriorityAll}
}

// Normalize maps empty values to "all" and trims the search text.
func (f Filters) Normalize() Filters {
	if f.Status == "" {
		f.Status = StatusAll
	}
	if f.Priority == "" {
		f.Priority = PriorityAll
	}
	f.Search = strings.TrimSpace(f.Search)
	return f
}

func (f Filters) Validate() error {
	f = f.Normalize()
	if f.Status != StatusAll && !f.Status.Valid() {
		return &ValidationError{Field: "status", Message: fmt.Sprintf("unknown status filter %q", f.Status)}
	}
	if f.Priority != PriorityAll && !f.Priority.Valid() {
		return &ValidationError{Field: "priority", Message: fmt.Sprintf("unknown priority filter %q", f.Priority)}
	}
	return nil
}

func (f Filters) IsDefault() bool {
	return f.Normalize() == DefaultFilters()
}

// Matches reports whether t passes the status, priority and search filters.
// Search is a case-insensitive substring match on title, description or
// any tag.
func Matches(t Task, f Filters) bool {
	f = f.Normalize()
	if f.Status != StatusAll && t.Status != f.Status {
		return false
	}
	if f.Priority != PriorityAll && t.Priority != f.Priority {
		return false
	}
	if f.Search == "" {
		return true
	}
	term := strings.ToLower(f.Search)
	if strings.Contains(strings.ToLower(t.Title), term) || strings.Contains(strings.ToLower(t.Description), term) {
		return true
	}
	for _, tag := range t.Tags {
		if strings.Contains(strings.ToLower(tag), term) {
			return true
		}
	}
	return false
}

// Apply returns the tasks matching f in their original order.
func Apply(tasks []Task, f Filters) []Task {
	out := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if Matches(t, f) {
			out = append(out, t)
		}
	}
	return out
}

// Counts holds the number of tasks per status.
type Counts map[Status]int

// CountByStatus counts tasks per status. Every status is present, zero
// when no task has it.
func CountByStatus(tasks []Task) Counts {
	c := Counts{}
	for _, s := range Statuses() {
		c[s] = 0
	}
	for _, t := range tasks {
		c[t.Status]++
	}
	return c
}

func (c Counts) Total() int {
	n := 0
	for _, v := range c {
		n += v
	}
	return n
}
