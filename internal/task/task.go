// Package task holds the task domain: the Task type, draft input, tag
// editing, client-side filtering and the repository over the record store.
package task

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in-progress"
	StatusDone       Status = "done"
	// StatusAll is only meaningful as a filter value.
	StatusAll Status = "all"
)

// Statuses lists the task statuses in display order.
func Statuses() []Status {
	return []Status{StatusTodo, StatusInProgress, StatusDone}
}

func (s Status) Valid() bool {
	return slices.Contains(Statuses(), s)
}

// Label is the display form, e.g. "In-Progress".
func (s Status) Label() string {
	return cases.Title(language.English).String(string(s))
}

func ParseStatus(v string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(v)))
	if s.Valid() {
		return s, nil
	}
	return "", &ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", v)}
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
	PriorityAll    Priority = "all"
)

func Priorities() []Priority {
	return []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}
}

func (p Priority) Valid() bool {
	return slices.Contains(Priorities(), p)
}

func (p Priority) Label() string {
	return cases.Title(language.English).String(string(p))
}

func ParsePriority(v string) (Priority, error) {
	p := Priority(strings.ToLower(strings.TrimSpace(v)))
	if p.Valid() {
		return p, nil
	}
	return "", &ValidationError{Field: "priority", Message: fmt.Sprintf("unknown priority %q", v)}
}

// Task is a stored task. ID and CreatedAt never change after creation.
type Task struct {
	ID          string     `json:"id" yaml:"id" validate:"required"`
	Title       string     `json:"title" yaml:"title" validate:"required"`
	Description string     `json:"description" yaml:"description"`
	Status      Status     `json:"status" yaml:"status" validate:"required,oneof=todo in-progress done"`
	Priority    Priority   `json:"priority" yaml:"priority" validate:"required,oneof=low medium high urgent"`
	DueDate     *time.Time `json:"dueDate,omitempty" yaml:"dueDate,omitempty"`
	Tags        []string   `json:"tags" yaml:"tags" validate:"dive,required"`
	Owner       string     `json:"owner,omitempty" yaml:"owner,omitempty"`
	CreatedAt   time.Time  `json:"createdAt" yaml:"createdAt" validate:"required"`
}

// Input returns the updatable fields of t as a draft.
func (t Task) Input() Input {
	in := Input{
		Title:       t.Title,
		Description: t.Description,
		Status:      t.Status,
		Priority:    t.Priority,
		Tags:        slices.Clone(t.Tags),
	}
	if in.Tags == nil {
		in.Tags = []string{}
	}
	if t.DueDate != nil {
		d := *t.DueDate
		in.DueDate = &d
	}
	return in
}

func (t Task) Clone() Task {
	out := t
	out.Tags = slices.Clone(t.Tags)
	if t.DueDate != nil {
		d := *t.DueDate
		out.DueDate = &d
	}
	return out
}

// Input is the updatable part of a task, used for create, update and the
// edit form.
type Input struct {
	Title       string `validate:"required"`
	Description string
	Status      Status   `validate:"required,oneof=todo in-progress done"`
	Priority    Priority `validate:"required,oneof=low medium high urgent"`
	DueDate     *time.Time
	Tags        []string `validate:"dive,required"`
}

// NewInput returns an empty draft with the default status and priority.
func NewInput() Input {
	return Input{
		Status:   StatusTodo,
		Priority: PriorityMedium,
		Tags:     []string{},
	}
}

func (in Input) withDefaults() Input {
	if in.Status == "" {
		in.Status = StatusTodo
	}
	if in.Priority == "" {
		in.Priority = PriorityMedium
	}
	in.Tags = normalizeTags(in.Tags)
	return in
}

func (in Input) Clone() Input {
	out := in
	out.Tags = slices.Clone(in.Tags)
	if in.DueDate != nil {
		d := *in.DueDate
		out.DueDate = &d
	}
	return out
}

// Validate reports the first invalid field as a *ValidationError.
func (in Input) Validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return &ValidationError{Field: "title", Message: "Task title is required"}
	}
	return validateStruct(in)
}

// AddTag appends raw, trimmed, to tags. ok is false and tags are returned
// unchanged when the trimmed tag is empty or already present.
func AddTag(tags []string, raw string) (out []string, ok bool) {
	tag := strings.TrimSpace(raw)
	if tag == "" || slices.Contains(tags, tag) {
		return tags, false
	}
	return append(slices.Clone(tags), tag), true
}

// RemoveTag deletes the first exact match of tag.
func RemoveTag(tags []string, tag string) []string {
	i := slices.Index(tags, tag)
	if i < 0 {
		return tags
	}
	return slices.Delete(slices.Clone(tags), i, i+1)
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		out, _ = AddTag(out, t)
	}
	return out
}
