package rules

import "testing"

func TestParseExpr_MetricLeaf(t *testing.T) {
	expr, err := ParseExpr(`{"stable":"cpu","metric":"usage_percent","operator":">","threshold":80}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if expr.Kind != KindMetric || expr.Stable != "cpu" || expr.Operator != ">" || expr.Threshold != 80 {
		t.Fatalf("unexpected parse result: %+v", expr)
	}
	if got := expr.ToSQL(); got != "usage_percent > 80" {
		t.Fatalf("unexpected SQL: %q", got)
	}
}

func TestParseExpr_TagLeaf(t *testing.T) {
	expr, err := ParseExpr(`{"stable":"disk","tag":"device","operator":"==","value":"sda1"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := expr.ToSQL(); got != "device == 'sda1'" {
		t.Fatalf("unexpected SQL: %q", got)
	}
}

func TestParseExpr_CompositeAnd(t *testing.T) {
	raw := `{"and":[
		{"stable":"cpu","metric":"usage_percent","operator":">","threshold":80},
		{"stable":"cpu","tag":"host_ip","operator":"==","value":"10.0.0.1"}
	]}`
	expr, err := ParseExpr(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if expr.Kind != KindAnd || len(expr.Children) != 2 {
		t.Fatalf("unexpected parse result: %+v", expr)
	}
	want := "(usage_percent > 80 AND host_ip == '10.0.0.1')"
	if got := expr.ToSQL(); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestParseExpr_MixedStableRejected(t *testing.T) {
	raw := `{"and":[
		{"stable":"cpu","metric":"usage_percent","operator":">","threshold":80},
		{"stable":"memory","metric":"usage_percent","operator":">","threshold":90}
	]}`
	if _, err := ParseExpr(raw); err == nil {
		t.Fatalf("expected mixed-stable rejection")
	}
}

func TestParseExpr_InvalidOperatorRejected(t *testing.T) {
	if _, err := ParseExpr(`{"stable":"cpu","metric":"usage_percent","operator":"~=","threshold":1}`); err == nil {
		t.Fatalf("expected invalid operator rejection")
	}
	if _, err := ParseExpr(`{"stable":"cpu","tag":"host_ip","operator":">","value":"x"}`); err == nil {
		t.Fatalf("expected invalid tag operator rejection")
	}
}

func TestExpr_TagKeysAndMetricNames(t *testing.T) {
	raw := `{"and":[
		{"stable":"cpu","metric":"usage_percent","operator":">","threshold":80},
		{"stable":"cpu","tag":"host_ip","operator":"==","value":"10.0.0.1"},
		{"stable":"cpu","tag":"region","operator":"==","value":"us"}
	]}`
	expr, err := ParseExpr(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tags := expr.TagKeys()
	if len(tags) != 2 || tags[0] != "host_ip" || tags[1] != "region" {
		t.Fatalf("unexpected tag keys: %v", tags)
	}
	metrics := expr.MetricNames()
	if len(metrics) != 1 || metrics[0] != "usage_percent" {
		t.Fatalf("unexpected metric names: %v", metrics)
	}
}
