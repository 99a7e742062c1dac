package control

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Optional wraps fn so that blank input is valid and carries no structured
// value. Optional fields left empty by the user skip validation entirely.
func Optional[S any](fn ValidateFunc[string, S]) ValidateFunc[string, S] {
	return func(x string) Result[string, S] {
		if strings.TrimSpace(x) == "" {
			return Result[string, S]{Simplified: "", HasSimplified: true}
		}
		return fn(x)
	}
}

// ToString coerces scalar values to a string. nil becomes the empty string;
// lists and maps cannot be coerced.
func ToString(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		return x, nil
	case bool:
		return strconv.FormatBool(x), nil
	case int:
		return strconv.Itoa(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case uint64:
		return strconv.FormatUint(x, 10), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 && x.Nanosecond() == 0 {
			return x.Format(time.DateOnly), nil
		}
		return x.Format(time.RFC3339), nil
	case fmt.Stringer:
		return x.String(), nil
	}
	return "", fmt.Errorf("expected a string, got %T", v)
}

// ToStringList coerces a list of scalars, a single scalar, or nil to a list
// of strings.
func ToStringList(v any) ([]string, error) {
	switch x := v.(type) {
	case nil:
		return []string{}, nil
	case []string:
		return append([]string{}, x...), nil
	case []any:
		out := make([]string, 0, len(x))
		for i, el := range x {
			s, err := ToString(el)
			if err != nil {
				return nil, fmt.Errorf("list element %d: %w", i, err)
			}
			out = append(out, s)
		}
		return out, nil
	}
	s, err := ToString(v)
	if err != nil {
		return nil, err
	}
	return []string{s}, nil
}
