package storage

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"taskflow/internal/gateway"
)

const likeEscape = "!"

// dialect holds what differs in the generated SQL between drivers.
type dialect struct {
	// lower folds text to lower case for Contains. It must agree with
	// strings.ToLower on non-ASCII letters.
	lower string
}

func dialectFor(driver string) dialect {
	if driver == DriverSQLite {
		return dialect{lower: sqliteLowerFunc}
	}
	return dialect{lower: "LOWER"}
}

// buildSelect renders q as a SELECT with '?' placeholders. The returned
// fields are the projected schema fields in column order.
func buildSelect(d dialect, sc gateway.Schema, q gateway.Query) (string, []any, []gateway.Field, error) {
	fields, err := projection(sc, q.Fields)
	if err != nil {
		return "", nil, nil, err
	}

	var (
		sb    strings.Builder
		args  []any
		where []string
	)
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(columns(fields), ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(sc.Collection)

	for _, c := range q.Where {
		clause, cargs, err := d.conditionSQL(sc, c)
		if err != nil {
			return "", nil, nil, err
		}
		where = append(where, clause)
		args = append(args, cargs...)
	}
	for _, g := range q.WhereGroups {
		clause, gargs, err := d.groupSQL(sc, g)
		if err != nil {
			return "", nil, nil, err
		}
		if clause == "" {
			continue
		}
		where = append(where, clause)
		args = append(args, gargs...)
	}
	if len(where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(where, " AND "))
	}

	if len(q.OrderBy) > 0 {
		orders := make([]string, 0, len(q.OrderBy))
		for _, o := range q.OrderBy {
			f, ok := sc.Field(o.FieldName)
			if !ok {
				return "", nil, nil, fmt.Errorf("%w: order by %s", gateway.ErrUnknownField, o.FieldName)
			}
			dir := "ASC"
			switch strings.ToUpper(string(o.SortType)) {
			case "", string(gateway.Asc):
			case string(gateway.Desc):
				dir = "DESC"
			default:
				return "", nil, nil, fmt.Errorf("%w: sort type %q", gateway.ErrInvalidQuery, o.SortType)
			}
			orders = append(orders, f.Column+" "+dir)
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(orders, ", "))
	}
	sb.WriteString(";")
	return sb.String(), args, fields, nil
}

func projection(sc gateway.Schema, names []string) ([]gateway.Field, error) {
	if len(names) == 0 {
		return sc.Fields, nil
	}
	id, _ := sc.Field(gateway.FieldID)
	fields := []gateway.Field{id}
	for _, n := range names {
		if n == gateway.FieldID {
			continue
		}
		f, ok := sc.Field(n)
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s", gateway.ErrUnknownField, sc.Collection, n)
		}
		fields = append(fields, f)
	}
	return fields, nil
}

func (d dialect) conditionSQL(sc gateway.Schema, c gateway.Condition) (string, []any, error) {
	f, ok := sc.Field(c.FieldName)
	if !ok {
		return "", nil, fmt.Errorf("%w: %s.%s", gateway.ErrUnknownField, sc.Collection, c.FieldName)
	}
	if len(c.Values) == 0 {
		return "", nil, fmt.Errorf("%w: condition on %s has no values", gateway.ErrInvalidQuery, c.FieldName)
	}

	switch c.Operator {
	case gateway.ExactMatch:
		vals := make([]any, 0, len(c.Values))
		for _, v := range c.Values {
			enc, err := encodeValue(f, v)
			if err != nil {
				return "", nil, err
			}
			vals = append(vals, enc)
		}
		if len(vals) == 1 {
			return f.Column + " = ?", vals, nil
		}
		clause, args, err := sqlx.In(f.Column+" IN (?)", vals)
		return clause, args, err
	case gateway.Contains:
		parts := make([]string, 0, len(c.Values))
		args := make([]any, 0, len(c.Values))
		for _, v := range c.Values {
			s, ok := v.(string)
			if !ok {
				return "", nil, fmt.Errorf("%w: Contains on %s needs text values", gateway.ErrInvalidQuery, c.FieldName)
			}
			parts = append(parts, fmt.Sprintf("%s(%s) LIKE ? ESCAPE '%s'", d.lower, f.Column, likeEscape))
			args = append(args, "%"+escapeLike(strings.ToLower(s))+"%")
		}
		return "(" + strings.Join(parts, " OR ") + ")", args, nil
	default:
		return "", nil, fmt.Errorf("%w: operator %q", gateway.ErrInvalidQuery, c.Operator)
	}
}

func (d dialect) groupSQL(sc gateway.Schema, g gateway.Group) (string, []any, error) {
	joiner := " OR "
	switch strings.ToUpper(string(g.Operator)) {
	case "", string(gateway.Or):
	case string(gateway.And):
		joiner = " AND "
	default:
		return "", nil, fmt.Errorf("%w: group operator %q", gateway.ErrInvalidQuery, g.Operator)
	}

	var (
		parts []string
		args  []any
	)
	for _, sub := range g.SubGroups {
		var conds []string
		for _, c := range sub.Conditions {
			clause, cargs, err := d.conditionSQL(sc, c)
			if err != nil {
				return "", nil, err
			}
			conds = append(conds, clause)
			args = append(args, cargs...)
		}
		if len(conds) > 0 {
			parts = append(parts, "("+strings.Join(conds, " AND ")+")")
		}
	}
	if len(parts) == 0 {
		return "", nil, nil
	}
	return "(" + strings.Join(parts, joiner) + ")", args, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(likeEscape, likeEscape+likeEscape, "%", likeEscape+"%", "_", likeEscape+"_")
	return r.Replace(s)
}

func columns(fields []gateway.Field) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = f.Column
	}
	return out
}

func scanRecord(rows *sqlx.Rows, fields []gateway.Field) (gateway.Record, error) {
	raw := map[string]any{}
	if err := rows.MapScan(raw); err != nil {
		return nil, err
	}
	lowered := make(map[string]any, len(raw))
	for k, v := range raw {
		lowered[strings.ToLower(k)] = v
	}

	rec := gateway.Record{}
	for _, f := range fields {
		v, ok := lowered[f.Column]
		if !ok {
			continue
		}
		dec, err := decodeValue(f, v)
		if err != nil {
			return nil, err
		}
		if dec != nil {
			rec[f.Name] = dec
		}
	}
	return rec, nil
}

// encodeRecord converts rec into column names and driver values. On create
// every required field other than Id must be present.
func encodeRecord(sc gateway.Schema, rec gateway.Record, create bool) ([]string, []any, error) {
	var (
		cols []string
		args []any
	)
	for name := range rec {
		if _, ok := sc.Field(name); !ok {
			return nil, nil, fmt.Errorf("%w: %s.%s", gateway.ErrUnknownField, sc.Collection, name)
		}
	}
	for _, f := range sc.Fields {
		if f.Name == gateway.FieldID {
			continue
		}
		v, ok := rec[f.Name]
		if !ok {
			if create && f.Required {
				return nil, nil, fmt.Errorf("%w: %s.%s is required", gateway.ErrInvalidQuery, sc.Collection, f.Name)
			}
			continue
		}
		enc, err := encodeValue(f, v)
		if err != nil {
			return nil, nil, err
		}
		cols = append(cols, f.Column)
		args = append(args, enc)
	}
	return cols, args, nil
}
