package rules

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/clustermon/clustermon/internal/model"
)

// reconcile runs the state-machine algorithm for one rule's tick result
// against the instance map (spec §4.3 "Reconciliation algorithm per rule
// r each tick").
func (e *Engine) reconcile(ctx context.Context, cr compiledRule, cur map[string]activeRow) {
	now := time.Now()
	prefix := "alertname=" + cr.rule.AlertName + ","

	e.instMu.Lock()
	defer e.instMu.Unlock()

	for fp, row := range cur {
		inst, ok := e.instances[fp]
		if !ok {
			inst = &model.AlarmInstance{
				Fingerprint:    fp,
				AlertName:      cr.rule.AlertName,
				State:          model.StatePending,
				StateChangedAt: now,
				PendingStartAt: now,
				Labels:         row.labels,
				Value:          row.value,
			}
			e.instances[fp] = inst
		} else {
			inst.Labels = row.labels
			inst.Value = row.value
		}

		if inst.State == model.StatePending && now.Sub(inst.PendingStartAt) >= cr.forDuration {
			inst.State = model.StateFiring
			inst.StateChangedAt = now
			e.publishEvent(ctx, cr, inst, model.StatusFiring, inst.PendingStartAt, nil)
		}
	}

	for fp, inst := range e.instances {
		if !strings.HasPrefix(fp, prefix) {
			continue
		}
		if _, stillActive := cur[fp]; stillActive {
			continue
		}

		switch inst.State {
		case model.StateFiring:
			inst.State = model.StateResolved
			inst.StateChangedAt = now
			endsAt := now
			e.publishEvent(ctx, cr, inst, model.StatusResolved, inst.PendingStartAt, &endsAt)
			delete(e.instances, fp)
		case model.StatePending:
			delete(e.instances, fp)
		}
	}
}

// publishEvent injects alertname/severity/alert_type/value, expands
// summary/description templates, and hands the resulting AlarmEvent to
// the Event Bus (spec §4.3 "Every emitted event also carries injected
// labels").
func (e *Engine) publishEvent(ctx context.Context, cr compiledRule, inst *model.AlarmInstance, status model.EventStatus, startsAt time.Time, endsAt *time.Time) {
	labels := make(map[string]string, len(inst.Labels)+4)
	for k, v := range inst.Labels {
		labels[k] = v
	}
	labels["alertname"] = cr.rule.AlertName
	labels["severity"] = cr.rule.Severity
	labels["alert_type"] = cr.rule.AlertType
	labels["value"] = strconv.FormatFloat(inst.Value, 'f', -1, 64)

	annotations := map[string]string{
		"summary":     ExpandTemplate(cr.rule.Summary, labels),
		"description": ExpandTemplate(cr.rule.Description, labels),
	}

	ev := model.AlarmEvent{
		Fingerprint:  inst.Fingerprint,
		Status:       status,
		Labels:       labels,
		Annotations:  annotations,
		StartsAt:     startsAt,
		EndsAt:       endsAt,
		GeneratorURL: "",
	}
	e.publisher.Publish(ctx, ev)
}

// CurrentInstances returns a snapshot copy of every live instance
// (spec §4.3 "get_current_alarm_instances()").
func (e *Engine) CurrentInstances() []*model.AlarmInstance {
	e.instMu.Lock()
	defer e.instMu.Unlock()
	out := make([]*model.AlarmInstance, 0, len(e.instances))
	for _, inst := range e.instances {
		out = append(out, inst.Clone())
	}
	return out
}
