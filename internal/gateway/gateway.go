// Package gateway describes the record store TaskFlow persists to: generic
// create, fetch, update and delete over named collections, with field
// projection, filter predicates and sort order.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrConflict          = errors.New("record conflicts with an existing record")
	ErrUnknownCollection = errors.New("unknown collection")
	ErrUnknownField      = errors.New("unknown field")
	ErrInvalidQuery      = errors.New("invalid query")
)

// Operator compares a field with the condition values.
type Operator string

const (
	ExactMatch Operator = "ExactMatch"
	// Contains is a case-insensitive substring match.
	Contains Operator = "Contains"
)

// GroupOperator joins the sub groups of a Group.
type GroupOperator string

const (
	Or  GroupOperator = "OR"
	And GroupOperator = "AND"
)

type SortType string

const (
	Asc  SortType = "ASC"
	Desc SortType = "DESC"
)

// Condition matches a record when FieldName satisfies Operator against any
// of Values.
type Condition struct {
	FieldName string
	Operator  Operator
	Values    []any
}

// SubGroup is a set of conditions that must all hold.
type SubGroup struct {
	Conditions []Condition
}

type Group struct {
	Operator  GroupOperator
	SubGroups []SubGroup
}

type Order struct {
	FieldName string
	SortType  SortType
}

// Query selects records of one collection. Where conditions and groups are
// combined with AND. An empty Fields list projects every schema field.
type Query struct {
	Fields      []string
	Where       []Condition
	WhereGroups []Group
	OrderBy     []Order
}

// Record is a single row keyed by schema field name. Values are string,
// bool or time.Time; optional fields that are unset are absent or nil.
type Record map[string]any

func (r Record) ID() string {
	return r.String(FieldID)
}

func (r Record) String(name string) string {
	switch v := r[name].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return ""
	}
}

func (r Record) Bool(name string) bool {
	v, _ := r[name].(bool)
	return v
}

// Time returns the value of a Time or Date field and whether it was set.
func (r Record) Time(name string) (time.Time, bool) {
	switch v := r[name].(type) {
	case time.Time:
		return v, !v.IsZero()
	case *time.Time:
		if v == nil {
			return time.Time{}, false
		}
		return *v, !v.IsZero()
	default:
		return time.Time{}, false
	}
}

// Gateway is the record store client shared by every repository.
type Gateway interface {
	Fetch(ctx context.Context, collection string, q Query) ([]Record, error)
	GetByID(ctx context.Context, collection, id string) (Record, error)
	// Create stores records and returns them as persisted, ids included.
	Create(ctx context.Context, collection string, records []Record) ([]Record, error)
	// Update applies the fields present in each record to the record with
	// the same Id. Fields absent from a record are left unchanged.
	Update(ctx context.Context, collection string, records []Record) ([]Record, error)
	// Delete reports whether every id was removed.
	Delete(ctx context.Context, collection string, ids []string) (bool, error)
}

// RemoteError wraps any failure of a gateway call made on behalf of a
// repository operation.
type RemoteError struct {
	Op         string
	Collection string
	Err        error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Collection, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}
