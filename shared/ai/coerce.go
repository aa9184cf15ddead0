package ai

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// normalizePayload coerces the loosely typed values models tend to emit
// (7.5 for an int, "100" for a number, "true" for a bool) into the types
// RevivalStrategy expects. Values that cannot be coerced are dropped so the
// field decodes to its zero value. Unknown keys are left alone.
func normalizePayload(payload json.RawMessage) (json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, err
	}

	coerceField(obj, "predictedViews", toFloat)
	coerceField(obj, "predictedEngagement", toFloat)

	if md, ok := obj["originalVideoMetadata"].(map[string]any); ok {
		coerceField(md, "title", toString)
		coerceField(md, "publishDate", toString)
		coerceField(md, "currentViews", toInt)
	} else {
		delete(obj, "originalVideoMetadata")
	}

	if plan, ok := obj["revivalPlan"].(map[string]any); ok {
		coerceField(plan, "title", toString)
		coerceField(plan, "description", toString)
		coerceField(plan, "scriptOutline", toString)
	} else {
		delete(obj, "revivalPlan")
	}

	if segments, ok := obj["segments"].([]any); ok {
		for i, v := range segments {
			seg, ok := v.(map[string]any)
			if !ok {
				// Keep the slot so affectedSegmentIndices still line up.
				segments[i] = map[string]any{}
				continue
			}
			coerceField(seg, "startTime", toString)
			coerceField(seg, "endTime", toString)
			coerceField(seg, "summary", toString)
			coerceField(seg, "subjects", toStrings)
			coerceField(seg, "needsUpdate", toBool)
		}
	} else {
		delete(obj, "segments")
	}

	if items, ok := obj["outdatedItems"].([]any); ok {
		kept := items[:0]
		for _, v := range items {
			item, ok := v.(map[string]any)
			if !ok {
				continue
			}
			coerceField(item, "subject", toString)
			coerceField(item, "oldTool", toString)
			coerceField(item, "newTool", toString)
			coerceField(item, "reason", toString)
			coerceField(item, "impactScore", toInt)
			coerceField(item, "affectedSegmentIndices", toInts)
			kept = append(kept, item)
		}
		obj["outdatedItems"] = kept
	} else {
		delete(obj, "outdatedItems")
	}

	return json.Marshal(obj)
}

func coerceField(obj map[string]any, key string, coerce func(any) (any, bool)) {
	v, ok := obj[key]
	if !ok {
		return
	}
	if out, ok := coerce(v); ok {
		obj[key] = out
	} else {
		delete(obj, key)
	}
}

func toFloat(v any) (any, bool) {
	var f float64
	switch x := v.(type) {
	case json.Number:
		n, err := x.Float64()
		if err != nil {
			return nil, false
		}
		f = n
	case string:
		n, ok := parseLooseNumber(x)
		if !ok {
			return nil, false
		}
		f = n
	default:
		return nil, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, false
	}
	return f, true
}

// toInt truncates toward zero.
func toInt(v any) (any, bool) {
	if n, ok := v.(json.Number); ok {
		if i, err := n.Int64(); err == nil {
			return i, true
		}
	}
	f, ok := toFloat(v)
	if !ok {
		return nil, false
	}
	t := math.Trunc(f.(float64))
	if math.Abs(t) >= 1<<63 {
		return nil, false
	}
	return int64(t), true
}

func toBool(v any) (any, bool) {
	switch x := v.(type) {
	case bool:
		return x, true
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return nil, false
		}
		return f != 0, true
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true", "yes", "y", "1":
			return true, true
		case "false", "no", "n", "0":
			return false, true
		}
	}
	return nil, false
}

func toString(v any) (any, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case json.Number:
		return x.String(), true
	case bool:
		return strconv.FormatBool(x), true
	}
	return nil, false
}

// toStrings accepts a list or a single value.
func toStrings(v any) (any, bool) {
	list, ok := v.([]any)
	if !ok {
		s, ok := toString(v)
		if !ok {
			return nil, false
		}
		return []string{s.(string)}, true
	}
	out := make([]string, 0, len(list))
	for _, e := range list {
		if s, ok := toString(e); ok {
			out = append(out, s.(string))
		}
	}
	return out, true
}

// toInts accepts a list or a single index; entries that are not numbers are
// skipped.
func toInts(v any) (any, bool) {
	list, ok := v.([]any)
	if !ok {
		list = []any{v}
	}
	out := make([]int64, 0, len(list))
	for _, e := range list {
		if n, ok := toInt(e); ok {
			out = append(out, n.(int64))
		}
	}
	return out, true
}

// parseLooseNumber reads "1,200", "1.2e6", "50%" and "1.2M" style strings.
func parseLooseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	s = strings.TrimSuffix(s, "%")
	if s == "" {
		return 0, false
	}

	mult := 1.0
	switch s[len(s)-1] {
	case 'k', 'K':
		mult = 1e3
	case 'm', 'M':
		mult = 1e6
	case 'b', 'B':
		mult = 1e9
	}
	if mult != 1 {
		s = s[:len(s)-1]
	}

	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return f * mult, true
}
