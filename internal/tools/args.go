package tools

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// argReader pulls typed values out of model-supplied arguments and collects
// every shape violation instead of stopping at the first one.
type argReader struct {
	args map[string]any
	errs []string
}

func newArgReader(args map[string]any) *argReader {
	if args == nil {
		args = map[string]any{}
	}
	return &argReader{args: args}
}

func (r *argReader) fail(format string, a ...any) {
	r.errs = append(r.errs, fmt.Sprintf(format, a...))
}

func (r *argReader) err() error {
	if len(r.errs) == 0 {
		return nil
	}
	return fmt.Errorf("%s", strings.Join(r.errs, "; "))
}

func (r *argReader) str(key string, required bool) string {
	v, ok := r.args[key]
	if !ok || v == nil {
		if required {
			r.fail("%s is required", key)
		}
		return ""
	}
	switch s := v.(type) {
	case string:
		s = strings.TrimSpace(s)
		if s == "" && required {
			r.fail("%s must not be empty", key)
		}
		return s
	case float64, bool:
		return fmt.Sprint(s)
	default:
		r.fail("%s must be a string", key)
		return ""
	}
}

func (r *argReader) strDefault(key, def string) string {
	if s := r.str(key, false); s != "" {
		return s
	}
	return def
}

func (r *argReader) strList(key string) []string {
	v, ok := r.args[key]
	if !ok || v == nil {
		return nil
	}
	switch list := v.(type) {
	case []any:
		out := make([]string, 0, len(list))
		for i, el := range list {
			s, ok := el.(string)
			if !ok {
				r.fail("%s[%d] must be a string", key, i)
				continue
			}
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return list
	case string:
		if s := strings.TrimSpace(list); s != "" {
			return []string{s}
		}
		return nil
	default:
		r.fail("%s must be a list of strings", key)
		return nil
	}
}

func (r *argReader) integer(key string, def int) int {
	v, ok := r.args[key]
	if !ok || v == nil {
		return def
	}
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			r.fail("%s must be a finite number", key)
			return def
		}
		return int(math.Round(n))
	case int:
		return n
	case int64:
		return int(n)
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return def
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			r.fail("%s must be a number, got %q", key, n)
			return def
		}
		return int(math.Round(f))
	default:
		r.fail("%s must be a number", key)
		return def
	}
}
