package storage

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"taskflow/internal/gateway"
)

// timeLayout is fixed width so text ordering matches chronological order.
const (
	timeLayout = "2006-01-02T15:04:05.000000000Z"
	dateLayout = "2006-01-02"
)

func encodeValue(f gateway.Field, v any) (any, error) {
	if v == nil {
		if f.Type == gateway.Bool {
			return int64(0), nil
		}
		return nil, nil
	}
	switch f.Type {
	case gateway.Text:
		switch t := v.(type) {
		case string:
			return t, nil
		case fmt.Stringer:
			return t.String(), nil
		}
	case gateway.Bool:
		if b, ok := v.(bool); ok {
			if b {
				return int64(1), nil
			}
			return int64(0), nil
		}
	case gateway.Time:
		t, ok, err := toTime(v, time.RFC3339Nano)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		if ok {
			if t.IsZero() {
				return nil, nil
			}
			return t.UTC().Format(timeLayout), nil
		}
	case gateway.Date:
		t, ok, err := toTime(v, dateLayout)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		if ok {
			if t.IsZero() {
				return nil, nil
			}
			return t.Format(dateLayout), nil
		}
	}
	return nil, fmt.Errorf("field %s: cannot store %T as %s", f.Name, v, f.Type)
}

func toTime(v any, layout string) (time.Time, bool, error) {
	switch t := v.(type) {
	case time.Time:
		return t, true, nil
	case *time.Time:
		if t == nil {
			return time.Time{}, true, nil
		}
		return *t, true, nil
	case string:
		if strings.TrimSpace(t) == "" {
			return time.Time{}, true, nil
		}
		parsed, err := time.Parse(layout, strings.TrimSpace(t))
		if err != nil {
			return time.Time{}, true, err
		}
		return parsed, true, nil
	default:
		return time.Time{}, false, nil
	}
}

func decodeValue(f gateway.Field, raw any) (any, error) {
	if raw == nil {
		if f.Type == gateway.Bool {
			return false, nil
		}
		return nil, nil
	}
	switch f.Type {
	case gateway.Bool:
		switch v := raw.(type) {
		case bool:
			return v, nil
		case int64:
			return v != 0, nil
		case int32:
			return v != 0, nil
		case int:
			return v != 0, nil
		}
		n, err := strconv.ParseInt(asString(raw), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		return n != 0, nil
	case gateway.Time:
		if t, ok := raw.(time.Time); ok {
			return t.UTC(), nil
		}
		s := asString(raw)
		if s == "" {
			return nil, nil
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		return t.UTC(), nil
	case gateway.Date:
		if t, ok := raw.(time.Time); ok {
			return t, nil
		}
		s := asString(raw)
		if s == "" {
			return nil, nil
		}
		t, err := time.Parse(dateLayout, s)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		return t, nil
	default:
		return asString(raw), nil
	}
}

func asString(raw any) string {
	switch v := raw.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}
