package rules

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/clustermon/clustermon/internal/metrics"
	"github.com/clustermon/clustermon/internal/model"
	"github.com/clustermon/clustermon/internal/rulestore"
	"github.com/clustermon/clustermon/internal/tsdb"
	"github.com/clustermon/clustermon/pkg/logger"
)

// Publisher is anything that accepts emitted AlarmEvents; satisfied by
// the Event Bus (spec §4.2 "Emit resulting alarm events onto the Event
// Bus"). Kept as a narrow interface so this package doesn't import the
// bus's transport concerns.
type Publisher interface {
	Publish(ctx context.Context, ev model.AlarmEvent)
}

// compiledRule pairs a stored rule with its parsed expression, so a
// parse failure is paid once per reload rather than once per tick.
type compiledRule struct {
	rule        model.AlarmRule
	expr        Expr
	forDuration time.Duration
}

// Engine runs the periodic evaluation loop (spec §4.2) and owns the
// per-fingerprint instance map (spec §4.3).
type Engine struct {
	ruleStore *rulestore.Store
	tsStore   *tsdb.Store
	publisher Publisher
	log       *logger.Logger
	interval  time.Duration
	metrics   *metrics.Metrics

	rulesMu sync.RWMutex
	rules   []compiledRule

	instMu    sync.Mutex
	instances map[string]*model.AlarmInstance

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New constructs an Engine. interval defaults to 30s if zero or
// negative (spec §4.2 "evaluation_interval (default 30 s)").
func New(ruleStore *rulestore.Store, tsStore *tsdb.Store, publisher Publisher, interval time.Duration, log *logger.Logger) *Engine {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Engine{
		ruleStore: ruleStore,
		tsStore:   tsStore,
		publisher: publisher,
		log:       log,
		interval:  interval,
		instances: make(map[string]*model.AlarmInstance),
		stopCh:    make(chan struct{}),
	}
}

// WithMetrics attaches a metrics sink for tick-duration observations.
func (e *Engine) WithMetrics(m *metrics.Metrics) *Engine {
	e.metrics = m
	return e
}

// Start launches the periodic evaluation loop.
func (e *Engine) Start(ctx context.Context) {
	e.wg.Add(1)
	go e.run(ctx)
}

// Stop ends the evaluation loop and waits for it to exit.
func (e *Engine) Stop() {
	close(e.stopCh)
	e.wg.Wait()
}

func (e *Engine) run(ctx context.Context) {
	defer e.wg.Done()
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

// tick runs one full evaluation pass (spec §4.2 "Each tick").
func (e *Engine) tick(ctx context.Context) {
	start := time.Now()
	if e.metrics != nil {
		defer func() { e.metrics.RecordRuleTick(time.Since(start)) }()
	}

	e.reload(ctx)

	e.rulesMu.RLock()
	rules := make([]compiledRule, len(e.rules))
	copy(rules, e.rules)
	e.rulesMu.RUnlock()

	for _, cr := range rules {
		cur, err := e.activeSet(ctx, cr)
		if err != nil {
			e.log.WithField("rule", cr.rule.AlertName).WithField("error", err).Warn("rule evaluation failed")
			continue
		}
		e.reconcile(ctx, cr, cur)
	}
}

// reload replaces the in-memory rule list wholesale under a write-lock
// (spec §4.2 step 1); parse errors on individual rules are logged and
// that rule is skipped.
func (e *Engine) reload(ctx context.Context) {
	enabled, err := e.ruleStore.ListEnabled(ctx)
	if err != nil {
		e.log.WithField("error", err).Warn("rule reload failed")
		return
	}

	compiled := make([]compiledRule, 0, len(enabled))
	for _, r := range enabled {
		expr, err := ParseExpr(r.Expression)
		if err != nil {
			e.log.WithField("rule", r.AlertName).WithField("error", err).
				WithField("diagnosis", diagnoseMalformedExpression(r.Expression)).
				Warn("rule parse failed, skipping")
			continue
		}
		compiled = append(compiled, compiledRule{
			rule:        r,
			expr:        expr,
			forDuration: ParseDuration(r.ForDuration),
		})
	}

	e.rulesMu.Lock()
	e.rules = compiled
	e.rulesMu.Unlock()
}

// activeRow is one currently-matching entity for a rule, keyed by its
// fingerprint.
type activeRow struct {
	labels map[string]string
	value  float64
}

// activeSet synthesizes and runs the query for one rule, returning the
// set of currently-matching fingerprints (spec §4.2.2, §4.2.3).
func (e *Engine) activeSet(ctx context.Context, cr compiledRule) (map[string]activeRow, error) {
	query, args := synthesize(cr)
	rows, err := e.tsStore.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	tagKeys := cr.expr.TagKeys()
	metricNames := cr.expr.MetricNames()
	primaryMetric := ""
	if len(metricNames) > 0 {
		primaryMetric = metricNames[0]
	}

	out := make(map[string]activeRow, len(rows))
	for _, row := range rows {
		labels := map[string]string{"host_ip": asString(row["host_ip"])}
		for _, k := range tagKeys {
			labels[k] = asString(row[k])
		}
		fp := Fingerprint(cr.rule.AlertName, labels)
		out[fp] = activeRow{labels: labels, value: asFloat(row[primaryMetric])}
	}
	return out, nil
}

// synthesize builds the SELECT/WHERE/GROUP BY statement for one rule
// (spec §4.2.2).
func synthesize(cr compiledRule) (string, []any) {
	tagKeys := cr.expr.TagKeys()
	metricNames := cr.expr.MetricNames()

	selectCols := make([]string, 0, len(metricNames)+len(tagKeys)+2)
	for _, m := range metricNames {
		selectCols = append(selectCols, fmt.Sprintf("LAST(%s) AS %s", m, m))
	}
	selectCols = append(selectCols, "host_ip", "ts")
	for _, k := range tagKeys {
		if k == "host_ip" {
			continue
		}
		selectCols = append(selectCols, k)
	}

	where := cr.expr.ToSQL() + " AND ts > now - 10s"

	groupBy := []string{"host_ip"}
	for _, k := range tagKeys {
		if k != "host_ip" {
			groupBy = append(groupBy, k)
		}
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s GROUP BY %s",
		strings.Join(selectCols, ", "), cr.expr.Stable, where, strings.Join(groupBy, ", "))
	return query, nil
}
