package httpapi

import (
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/clustermon/clustermon/internal/apierr"
	"github.com/clustermon/clustermon/internal/model"
	"github.com/clustermon/clustermon/internal/paginate"
	"github.com/clustermon/clustermon/internal/registry"
	"github.com/clustermon/clustermon/internal/tsdb"
)

// historicalMetricsDefaultRange and historicalBMCDefaultRange preserve
// the two distinct defaults spec §6 calls out explicitly ("Invalid →
// default 1h... historical-metrics: 10m, historical-bmc: 1h").
const (
	historicalMetricsDefaultRange = 10 * time.Minute
	historicalBMCDefaultRange     = 1 * time.Hour
)

// nodeHandler implements GET /node[?host_ip=] (spec §6 "delegate to Node
// Registry").
func nodeHandler(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hostIP := r.URL.Query().Get("host_ip")
		if hostIP == "" {
			writeSuccess(w, http.StatusOK, reg.SnapshotAll())
			return
		}
		node, ok := reg.Get(hostIP)
		if !ok {
			writeError(w, apierr.New(apierr.CodeNotFound, "node "+hostIP+" not found"))
			return
		}
		writeSuccess(w, http.StatusOK, node)
	}
}

// nodeMetricsHandler implements GET /node/metrics?page=&page_size=
// (spec §6): the latest sample per known node, paginated over the set
// of host IPs the Node Registry currently knows about.
func nodeMetricsHandler(store *tsdb.Store, reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page := queryInt(r, "page", 1)
		pageSize := queryInt(r, "page_size", paginate.DefaultPageSize)
		page, pageSize = paginate.Clamp(page, pageSize)

		hostIPs := reg.HostIPs()
		sort.Strings(hostIPs)
		total := len(hostIPs)

		start := (page - 1) * pageSize
		if start > total {
			start = total
		}
		end := start + pageSize
		if end > total {
			end = total
		}

		items := make([]model.NodeResourceSample, 0, end-start)
		for _, hostIP := range hostIPs[start:end] {
			sample, err := store.Latest(r.Context(), hostIP)
			if err != nil {
				writeError(w, err)
				return
			}
			items = append(items, sample)
		}

		p := paginate.New(items, page, pageSize, total)
		w.Header().Set("X-Page", strconv.Itoa(p.Page))
		w.Header().Set("X-Page-Size", strconv.Itoa(p.PageSize))
		w.Header().Set("X-Total-Count", strconv.Itoa(p.Total))
		w.Header().Set("X-Total-Pages", strconv.Itoa(p.TotalPages))
		w.Header().Set("X-Has-Next", strconv.FormatBool(p.HasNext))
		w.Header().Set("X-Has-Prev", strconv.FormatBool(p.HasPrev))

		writeSuccess(w, http.StatusOK, p)
	}
}

// historicalMetricsHandler implements GET
// /node/historical-metrics?host_ip=&time_range=&metrics= (spec §6).
func historicalMetricsHandler(store *tsdb.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hostIP := r.URL.Query().Get("host_ip")
		if hostIP == "" {
			writeErrorMessage(w, http.StatusBadRequest, "host_ip is required")
			return
		}
		span := parseTimeRange(r.URL.Query().Get("time_range"), historicalMetricsDefaultRange)
		families := queryList(r, "metrics")

		result, err := store.Range(r.Context(), hostIP, span, families)
		if err != nil {
			writeError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, result)
	}
}

// historicalBMCHandler implements GET
// /node/historical-bmc?box_id=&time_range=&metrics= (spec §6).
func historicalBMCHandler(store *tsdb.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		boxIDStr := r.URL.Query().Get("box_id")
		boxID, err := strconv.Atoi(boxIDStr)
		if boxIDStr == "" || err != nil {
			writeErrorMessage(w, http.StatusBadRequest, "box_id is required")
			return
		}
		span := parseTimeRange(r.URL.Query().Get("time_range"), historicalBMCDefaultRange)
		families := queryList(r, "metrics")

		result, err := store.RangeBMC(r.Context(), boxID, span, families)
		if err != nil {
			writeError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, result)
	}
}
