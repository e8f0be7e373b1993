package rules

import "strings"

// ExpandTemplate replaces every "{{key}}" occurrence in s with
// labels[key]; keys not present in labels are left literal (spec
// §4.2.5).
func ExpandTemplate(s string, labels map[string]string) string {
	var b strings.Builder
	for {
		start := strings.Index(s, "{{")
		if start == -1 {
			b.WriteString(s)
			break
		}
		end := strings.Index(s[start:], "}}")
		if end == -1 {
			b.WriteString(s)
			break
		}
		end += start

		b.WriteString(s[:start])
		key := strings.TrimSpace(s[start+2 : end])
		if v, ok := labels[key]; ok {
			b.WriteString(v)
		} else {
			b.WriteString(s[start : end+2])
		}
		s = s[end+2:]
	}
	return b.String()
}
