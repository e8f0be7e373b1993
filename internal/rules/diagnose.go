package rules

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/PaesslerAG/jsonpath"
)

// diagnoseMalformedExpression makes a best-effort second pass over a
// rule expression that failed ParseExpr, pulling out whatever "stable"
// values are present in the raw JSON so the WARN log line can name them
// (SPEC_FULL §4.2.6). This never feeds back into evaluation — the rule
// is still fully skipped for the tick regardless of what this finds.
func diagnoseMalformedExpression(raw string) string {
	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return "unparseable JSON"
	}

	found, err := jsonpath.Get("$..stable", doc)
	if err != nil {
		return "no stable references found"
	}

	names := map[string]bool{}
	switch v := found.(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				names[s] = true
			}
		}
	case string:
		names[v] = true
	}
	if len(names) == 0 {
		return "no stable references found"
	}

	list := make([]string, 0, len(names))
	for n := range names {
		list = append(list, n)
	}
	sort.Strings(list)
	return fmt.Sprintf("references stable(s) %v", list)
}
