package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clustermon/clustermon/internal/eventstore"
	"github.com/clustermon/clustermon/internal/metrics"
	"github.com/clustermon/clustermon/internal/registry"
	"github.com/clustermon/clustermon/internal/rulestore"
	"github.com/clustermon/clustermon/internal/tsdb"
	"github.com/clustermon/clustermon/pkg/logger"
)

// Deps bundles the components the HTTP layer dispatches to. The
// WebSocket listener is deliberately not part of this router — spec §6
// runs it as "a separate listener" on its own port.
type Deps struct {
	TSStore   *tsdb.Store
	Registry  *registry.Registry
	RuleStore *rulestore.Store
	Events    *eventstore.Store
	Log       *logger.Logger
	Metrics   *metrics.Metrics
}

// metricsMiddleware records request count/duration per route template;
// mux.CurrentRoute keeps the path label low-cardinality.
func metricsMiddleware(m *metrics.Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m == nil {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			path := r.URL.Path
			if route := mux.CurrentRoute(r); route != nil {
				if tmpl, err := route.GetPathTemplate(); err == nil {
					path = tmpl
				}
			}
			m.RecordHTTPRequest(r.Method, path, http.StatusText(rec.status), time.Since(start))
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// NewRouter wires every route onto a gorilla/mux router, one
// handler-factory function per route (handlerFunc(deps...) http.HandlerFunc
// closures).
func NewRouter(deps Deps) *mux.Router {
	r := mux.NewRouter()
	r.Use(metricsMiddleware(deps.Metrics))

	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	r.HandleFunc("/heartbeat", heartbeatHandler(deps.Registry)).Methods("POST")
	r.HandleFunc("/resource", resourceHandler(deps.TSStore)).Methods("POST")

	r.HandleFunc("/node", nodeHandler(deps.Registry)).Methods("GET")
	r.HandleFunc("/node/metrics", nodeMetricsHandler(deps.TSStore, deps.Registry)).Methods("GET")
	r.HandleFunc("/node/historical-metrics", historicalMetricsHandler(deps.TSStore)).Methods("GET")
	r.HandleFunc("/node/historical-bmc", historicalBMCHandler(deps.TSStore)).Methods("GET")

	r.HandleFunc("/alarm/rules", createRuleHandler(deps.RuleStore)).Methods("POST")
	r.HandleFunc("/alarm/rules", listRulesHandler(deps.RuleStore)).Methods("GET")
	r.HandleFunc("/alarm/rules/{id}", getRuleHandler(deps.RuleStore)).Methods("GET")
	r.HandleFunc("/alarm/rules/{id}/update", updateRuleHandler(deps.RuleStore)).Methods("POST")
	r.HandleFunc("/alarm/rules/{id}/delete", deleteRuleHandler(deps.RuleStore)).Methods("POST")

	r.HandleFunc("/alarm/events", listEventsHandler(deps.Events)).Methods("GET")
	r.HandleFunc("/alarm/events/count", countEventsHandler(deps.Events)).Methods("GET")

	return r
}
