package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
)

// ErrNoJSONObject means the model output held no parseable {...} span.
var ErrNoJSONObject = errors.New("no valid JSON object in model output")

var reDeadline = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// ExtractJSONObject finds the JSON object in free-form model output.
// The greedy span (first '{' to last '}') is tried first, then the
// brace-balanced span starting at the first '{'. Only a JSON object counts.
func ExtractJSONObject(output string) ([]byte, error) {
	start := strings.Index(output, "{")
	end := strings.LastIndex(output, "}")
	if start < 0 || end <= start {
		return nil, ErrNoJSONObject
	}

	candidates := []string{output[start : end+1]}
	if balanced, ok := balancedSpan(output[start:]); ok && balanced != candidates[0] {
		candidates = append(candidates, balanced)
	}
	for _, c := range candidates {
		var obj map[string]any
		if err := json.Unmarshal([]byte(c), &obj); err == nil {
			return []byte(c), nil
		}
	}
	return nil, ErrNoJSONObject
}

// balancedSpan returns the prefix of s (which starts with '{') up to the
// matching closing brace, skipping braces inside JSON strings.
func balancedSpan(s string) (string, bool) {
	depth := 0
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[:i+1], true
			}
		}
	}
	return "", false
}

// NormalizeNoticeJSON
// - Removes unknown keys
// - Fills missing keys with "", null or false
// - Coerces numeric strings to numbers and "true"/"false" to booleans
// - Clears a deadline that is not a real YYYY-MM-DD date
func NormalizeNoticeJSON(raw []byte, logger *slog.Logger) ([]byte, []string, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, fmt.Errorf("normalize: decode: %w", err)
	}

	changed := make([]string, 0, 8)
	known := map[string]struct{}{}

	for _, k := range StringFieldKeys {
		known[k] = struct{}{}
		switch t := m[k].(type) {
		case string:
			m[k] = strings.TrimSpace(t)
		case nil:
			m[k] = ""
			changed = append(changed, k+"(empty)")
		case float64:
			m[k] = strconv.FormatFloat(t, 'f', -1, 64)
			changed = append(changed, k+"(number)")
		case bool:
			m[k] = strconv.FormatBool(t)
			changed = append(changed, k+"(bool)")
		default:
			m[k] = ""
			changed = append(changed, k+"(type)")
		}
	}

	for _, k := range NumberFieldKeys {
		known[k] = struct{}{}
		switch t := m[k].(type) {
		case float64:
			if t < 0 {
				m[k] = nil
				changed = append(changed, k+"(negative)")
			}
		case nil:
			m[k] = nil
		case string:
			s := strings.TrimSpace(t)
			if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 {
				m[k] = f
				changed = append(changed, k+"(string)")
			} else {
				m[k] = nil
				if s != "" && !strings.EqualFold(s, "null") {
					changed = append(changed, k+"(unparsable)")
				}
			}
		default:
			m[k] = nil
			changed = append(changed, k+"(type)")
		}
	}

	for _, k := range BoolFieldKeys {
		known[k] = struct{}{}
		switch t := m[k].(type) {
		case bool:
		case string:
			b, err := strconv.ParseBool(strings.ToLower(strings.TrimSpace(t)))
			m[k] = err == nil && b
			changed = append(changed, k+"(string)")
		default:
			m[k] = false
			if t != nil {
				changed = append(changed, k+"(type)")
			}
		}
	}

	if d, _ := m["deadline"].(string); d != "" && !validDate(d) {
		m["deadline"] = ""
		changed = append(changed, "deadline(format)")
	}
	if e, _ := m["contact_email"].(string); e != "" {
		m["contact_email"] = strings.ToLower(e)
	}

	for k := range maps.Clone(m) {
		if _, ok := known[k]; !ok {
			delete(m, k)
			changed = append(changed, k+"(unknown)")
		}
	}

	out, err := json.Marshal(m)
	if err != nil {
		return nil, changed, fmt.Errorf("normalize: encode: %w", err)
	}
	if len(changed) > 0 {
		slices.Sort(changed)
		logger.Warn("llm.extract.normalize", "changed", changed)
	}
	return out, changed, nil
}

func validDate(s string) bool {
	if !reDeadline.MatchString(s) {
		return false
	}
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}
