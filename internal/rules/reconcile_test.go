package rules

import (
	"context"
	"testing"
	"time"

	"github.com/clustermon/clustermon/internal/model"
)

type recordingPublisher struct {
	events []model.AlarmEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, ev model.AlarmEvent) {
	p.events = append(p.events, ev)
}

func newTestEngine(pub Publisher) *Engine {
	return &Engine{
		publisher: pub,
		instances: make(map[string]*model.AlarmInstance),
		stopCh:    make(chan struct{}),
	}
}

func testRule(alertName string, forDuration time.Duration) compiledRule {
	return compiledRule{
		rule: model.AlarmRule{
			AlertName: alertName, Severity: "critical", AlertType: "resource",
			Summary: "{{alertname}} on {{host_ip}}",
		},
		forDuration: forDuration,
	}
}

func TestReconcile_ZeroForDurationFiresImmediately(t *testing.T) {
	pub := &recordingPublisher{}
	e := newTestEngine(pub)
	rule := testRule("HighCPU", 0)

	cur := map[string]activeRow{
		Fingerprint("HighCPU", map[string]string{"host_ip": "10.0.0.1"}): {
			labels: map[string]string{"host_ip": "10.0.0.1"}, value: 95,
		},
	}
	e.reconcile(context.Background(), rule, cur)

	if len(pub.events) != 1 || pub.events[0].Status != model.StatusFiring {
		t.Fatalf("expected one firing event, got %+v", pub.events)
	}
}

func TestReconcile_PendingThenGoneDropsSilently(t *testing.T) {
	pub := &recordingPublisher{}
	e := newTestEngine(pub)
	rule := testRule("HighCPU", time.Minute)

	fp := Fingerprint("HighCPU", map[string]string{"host_ip": "10.0.0.1"})
	cur := map[string]activeRow{fp: {labels: map[string]string{"host_ip": "10.0.0.1"}, value: 95}}
	e.reconcile(context.Background(), rule, cur)
	if len(pub.events) != 0 {
		t.Fatalf("expected no event on first PENDING tick, got %+v", pub.events)
	}

	e.reconcile(context.Background(), rule, map[string]activeRow{})
	if len(pub.events) != 0 {
		t.Fatalf("expected no event when a PENDING instance disappears, got %+v", pub.events)
	}
	if len(e.instances) != 0 {
		t.Fatalf("expected instance removed, got %d remaining", len(e.instances))
	}
}

func TestReconcile_FiringThenResolved(t *testing.T) {
	pub := &recordingPublisher{}
	e := newTestEngine(pub)
	rule := testRule("HighCPU", 0)

	fp := Fingerprint("HighCPU", map[string]string{"host_ip": "10.0.0.1"})
	cur := map[string]activeRow{fp: {labels: map[string]string{"host_ip": "10.0.0.1"}, value: 95}}
	e.reconcile(context.Background(), rule, cur)
	if len(pub.events) != 1 || pub.events[0].Status != model.StatusFiring {
		t.Fatalf("expected firing event, got %+v", pub.events)
	}

	firingStartsAt := pub.events[0].StartsAt

	e.reconcile(context.Background(), rule, map[string]activeRow{})
	if len(pub.events) != 2 || pub.events[1].Status != model.StatusResolved {
		t.Fatalf("expected resolved event, got %+v", pub.events)
	}
	if !pub.events[1].StartsAt.Equal(firingStartsAt) {
		t.Fatalf("resolved event StartsAt = %v, want original firing StartsAt %v", pub.events[1].StartsAt, firingStartsAt)
	}
	if pub.events[1].EndsAt == nil || pub.events[1].StartsAt.Equal(*pub.events[1].EndsAt) {
		t.Fatalf("resolved event StartsAt must not collapse into EndsAt, got starts=%v ends=%v", pub.events[1].StartsAt, pub.events[1].EndsAt)
	}
	if len(e.instances) != 0 {
		t.Fatalf("expected instance removed after resolve, got %d", len(e.instances))
	}
}

func TestReconcile_InjectedLabelsAndTemplateExpansion(t *testing.T) {
	pub := &recordingPublisher{}
	e := newTestEngine(pub)
	rule := testRule("HighCPU", 0)

	fp := Fingerprint("HighCPU", map[string]string{"host_ip": "10.0.0.1"})
	cur := map[string]activeRow{fp: {labels: map[string]string{"host_ip": "10.0.0.1"}, value: 95}}
	e.reconcile(context.Background(), rule, cur)

	ev := pub.events[0]
	if ev.Labels["alertname"] != "HighCPU" || ev.Labels["severity"] != "critical" {
		t.Fatalf("expected injected labels, got %+v", ev.Labels)
	}
	if ev.Annotations["summary"] != "HighCPU on 10.0.0.1" {
		t.Fatalf("expected expanded template, got %q", ev.Annotations["summary"])
	}
}
