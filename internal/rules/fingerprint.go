package rules

import (
	"sort"
	"strings"
)

// Fingerprint computes the stable, permutation-invariant identity of one
// alarm instance (spec §4.3): "alertname=" + alert_name + "," + the
// label set sorted by key and joined as "k=v" pairs, stable under
// insertion order of the input map.
func Fingerprint(alertName string, labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+labels[k])
	}

	return "alertname=" + alertName + "," + strings.Join(pairs, ",")
}
