// Package rules implements the Rule Engine (spec §4.2, §4.3): expression
// parsing, query synthesis against the TS Store, fingerprinting, and the
// per-fingerprint alarm state machine.
package rules

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/clustermon/clustermon/internal/apierr"
)

// Kind discriminates the four expression node shapes (spec §4.2.1).
type Kind int

const (
	KindMetric Kind = iota
	KindTag
	KindAnd
	KindOr
)

var metricOperators = map[string]bool{">": true, "<": true, ">=": true, "<=": true, "==": true, "!=": true}
var tagOperators = map[string]bool{"==": true, "!=": true}

// Expr is a parsed, validated expression tree node.
type Expr struct {
	Kind      Kind
	Stable    string
	Metric    string
	Tag       string
	Operator  string
	Threshold float64
	Value     string
	Children  []Expr
}

// rawExpr mirrors the JSON shape a rule's expression is authored in; the
// discriminant is inferred from which fields are present rather than a
// dedicated type tag, matching spec §4.2.1's literal grammar.
type rawExpr struct {
	Stable    string            `json:"stable"`
	Metric    string            `json:"metric"`
	Tag       string            `json:"tag"`
	Operator  string            `json:"operator"`
	Threshold *float64          `json:"threshold"`
	Value     *string           `json:"value"`
	And       []json.RawMessage `json:"and"`
	Or        []json.RawMessage `json:"or"`
}

// ParseExpr parses and validates a rule's raw JSON expression, rejecting
// mixed stables anywhere in the tree (spec §4.2.1).
func ParseExpr(raw string) (Expr, error) {
	expr, stable, err := parseNode(json.RawMessage(raw))
	if err != nil {
		return Expr{}, err
	}
	_ = stable
	return expr, nil
}

func parseNode(raw json.RawMessage) (Expr, string, error) {
	var r rawExpr
	if err := json.Unmarshal(raw, &r); err != nil {
		return Expr{}, "", apierr.Wrap(apierr.CodeRuleParse, "invalid expression json", err)
	}

	switch {
	case len(r.And) > 0:
		return parseComposite(KindAnd, r.And)
	case len(r.Or) > 0:
		return parseComposite(KindOr, r.Or)
	case r.Metric != "":
		if !metricOperators[r.Operator] {
			return Expr{}, "", apierr.New(apierr.CodeRuleParse, fmt.Sprintf("invalid metric operator %q", r.Operator))
		}
		if r.Threshold == nil {
			return Expr{}, "", apierr.New(apierr.CodeRuleParse, "metric condition missing threshold")
		}
		if r.Stable == "" {
			return Expr{}, "", apierr.New(apierr.CodeRuleParse, "metric condition missing stable")
		}
		return Expr{
			Kind: KindMetric, Stable: r.Stable, Metric: r.Metric,
			Operator: r.Operator, Threshold: *r.Threshold,
		}, r.Stable, nil
	case r.Tag != "":
		if !tagOperators[r.Operator] {
			return Expr{}, "", apierr.New(apierr.CodeRuleParse, fmt.Sprintf("invalid tag operator %q", r.Operator))
		}
		if r.Value == nil {
			return Expr{}, "", apierr.New(apierr.CodeRuleParse, "tag condition missing value")
		}
		if r.Stable == "" {
			return Expr{}, "", apierr.New(apierr.CodeRuleParse, "tag condition missing stable")
		}
		return Expr{
			Kind: KindTag, Stable: r.Stable, Tag: r.Tag,
			Operator: r.Operator, Value: *r.Value,
		}, r.Stable, nil
	default:
		return Expr{}, "", apierr.New(apierr.CodeRuleParse, "expression node matches no known shape")
	}
}

func parseComposite(kind Kind, rawChildren []json.RawMessage) (Expr, string, error) {
	if len(rawChildren) == 0 {
		return Expr{}, "", apierr.New(apierr.CodeRuleParse, "and/or requires at least one child")
	}
	children := make([]Expr, 0, len(rawChildren))
	stable := ""
	for _, rc := range rawChildren {
		child, childStable, err := parseNode(rc)
		if err != nil {
			return Expr{}, "", err
		}
		if stable == "" {
			stable = childStable
		} else if childStable != "" && childStable != stable {
			return Expr{}, "", apierr.New(apierr.CodeRuleParse,
				fmt.Sprintf("mixed stables in one rule: %q and %q", stable, childStable))
		}
		children = append(children, child)
	}
	return Expr{Kind: kind, Stable: stable, Children: children}, stable, nil
}

// TagKeys returns every distinct tag key referenced anywhere in the tree,
// sorted for deterministic SQL generation (spec §4.2.2 "GROUP BY includes
// ... every tag key referenced").
func (e Expr) TagKeys() []string {
	set := map[string]bool{}
	collectTagKeys(e, set)
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func collectTagKeys(e Expr, set map[string]bool) {
	switch e.Kind {
	case KindTag:
		set[e.Tag] = true
	case KindAnd, KindOr:
		for _, c := range e.Children {
			collectTagKeys(c, set)
		}
	}
}

// MetricNames returns every distinct metric column referenced anywhere in
// the tree, sorted for deterministic SQL generation.
func (e Expr) MetricNames() []string {
	set := map[string]bool{}
	collectMetricNames(e, set)
	names := make([]string, 0, len(set))
	for n := range set {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func collectMetricNames(e Expr, set map[string]bool) {
	switch e.Kind {
	case KindMetric:
		set[e.Metric] = true
	case KindAnd, KindOr:
		for _, c := range e.Children {
			collectMetricNames(c, set)
		}
	}
}

// ToSQL renders the WHERE-clause fragment for this node (spec §4.2.2):
// metric leaves become "M op threshold", tag leaves become "tag op
// 'value'", and/or combine as SQL conjunction/disjunction with
// parentheses.
func (e Expr) ToSQL() string {
	switch e.Kind {
	case KindMetric:
		return fmt.Sprintf("%s %s %s", e.Metric, e.Operator, formatThreshold(e.Threshold))
	case KindTag:
		return fmt.Sprintf("%s %s '%s'", e.Tag, e.Operator, escapeSQLString(e.Value))
	case KindAnd:
		return "(" + joinChildren(e.Children, " AND ") + ")"
	case KindOr:
		return "(" + joinChildren(e.Children, " OR ") + ")"
	default:
		return "1=1"
	}
}

func joinChildren(children []Expr, sep string) string {
	parts := make([]string, len(children))
	for i, c := range children {
		parts[i] = c.ToSQL()
	}
	return strings.Join(parts, sep)
}

func formatThreshold(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// escapeSQLString guards against a tag value containing a single quote
// breaking out of the literal; values come from rule definitions stored
// by operators, not untrusted end users, but this costs nothing.
func escapeSQLString(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
