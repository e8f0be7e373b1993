package rules

import "testing"

func TestExpandTemplate_KnownAndUnknownKeys(t *testing.T) {
	labels := map[string]string{"host_ip": "10.0.0.1", "value": "95"}
	got := ExpandTemplate("node {{host_ip}} over {{unknown}} threshold: {{value}}%", labels)
	want := "node 10.0.0.1 over {{unknown}} threshold: 95%"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestExpandTemplate_NoPlaceholders(t *testing.T) {
	got := ExpandTemplate("static text", map[string]string{})
	if got != "static text" {
		t.Fatalf("expected unchanged string, got %q", got)
	}
}
