package ai

import "strings"

// sanitizeJSON repairs the most common model mistake in JSON output:
// unescaped double quotes inside single-line string values. It works line by
// line, so it only helps pretty-printed payloads.
func sanitizeJSON(jsonStr string) string {
	lines := strings.Split(jsonStr, "\n")
	sanitized := make([]string, 0, len(lines))

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		sanitized = append(sanitized, escapeInnerQuotes(line))
	}

	return strings.Join(sanitized, "\n")
}

// escapeInnerQuotes rewrites `"key": "a "b" c",` as `"key": "a \"b\" c",`.
// Lines without a `"key": "value"` shape come back untouched.
func escapeInnerQuotes(line string) string {
	colonIdx := strings.Index(line, `":`)
	if colonIdx == -1 || !strings.HasPrefix(line, `"`) {
		return line
	}

	key := line[:colonIdx+2]
	value := strings.TrimSpace(line[colonIdx+2:])
	if !strings.HasPrefix(value, `"`) {
		return line
	}

	lastQuote := strings.LastIndex(value, `"`)
	if lastQuote <= 0 {
		return line
	}

	content := value[1:lastQuote]
	content = strings.ReplaceAll(content, `\"`, `"`)
	content = strings.ReplaceAll(content, `"`, `\"`)

	return key + ` "` + content + `"` + value[lastQuote+1:]
}
