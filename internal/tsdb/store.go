package tsdb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/taosdata/driver-go/v3/taosSql"

	"github.com/clustermon/clustermon/internal/apierr"
	"github.com/clustermon/clustermon/internal/model"
	"github.com/clustermon/clustermon/internal/pool"
	"github.com/clustermon/clustermon/pkg/config"
	"github.com/clustermon/clustermon/pkg/logger"
)

// Store is the TS Store (spec §4.4). It bootstraps the configured
// database and every family's super-table at Open, then serves inserts
// and range/latest queries through the Pool Substrate.
type Store struct {
	db    *sql.DB
	pool  *pool.Pool[*sql.Conn]
	log   *logger.Logger
	cache *cache // optional Redis read-through cache in front of Latest
}

// Open connects to the TDengine backing store, creates the configured
// database and every family's super-table, and starts the pool
// substrate. redisAddr may be empty, which disables the Latest() cache
// (SPEC_FULL §4.4.1).
func Open(ctx context.Context, tdengineHost, database string, cfg config.PoolConfig, redisAddr string, log *logger.Logger) (*Store, error) {
	dsn := fmt.Sprintf("root:taosdata@tcp(%s:6030)/", tdengineHost)
	db, err := sql.Open("taosSql", dsn)
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeConfig, "open ts store", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, apierr.Wrap(apierr.CodeTransientBackend, "ping ts store", err)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database)); err != nil {
		return nil, apierr.Wrap(apierr.CodeQuery, "create database", err)
	}
	if _, err := db.ExecContext(ctx, "USE "+database); err != nil {
		return nil, apierr.Wrap(apierr.CodeQuery, "select database", err)
	}
	for _, fam := range Families {
		if _, err := db.ExecContext(ctx, fam.CreateStableSQL()); err != nil {
			return nil, apierr.Wrap(apierr.CodeQuery, "create stable "+fam.Name, err)
		}
	}

	query := cfg.HealthCheckQuery
	if query == "" {
		query = "SELECT SERVER_VERSION()"
	}
	p := pool.New[*sql.Conn]("ts_store", cfg, func(ctx context.Context) (*sql.Conn, error) {
		return db.Conn(ctx)
	}, log).WithProber(func(ctx context.Context, conn *sql.Conn) error {
		_, err := conn.ExecContext(ctx, query)
		return err
	})
	if err := p.Start(ctx); err != nil {
		return nil, err
	}

	var c *cache
	if redisAddr != "" {
		c = newCache(redisAddr, 2*time.Second)
	}

	return &Store{db: db, pool: p, log: log, cache: c}, nil
}

// Close shuts down the pool and the underlying *sql.DB.
func (s *Store) Close(ctx context.Context) error {
	if s.cache != nil {
		s.cache.Close()
	}
	if err := s.pool.Shutdown(ctx); err != nil {
		return err
	}
	return s.db.Close()
}

// Stats exposes the underlying pool's counters.
func (s *Store) Stats() pool.Stats { return s.pool.Stats() }

func (s *Store) insert(ctx context.Context, conn *sql.Conn, fam MetricFamily, tagValues []string, ts time.Time, fieldValues []any) error {
	child := fam.ChildTableName(tagValues...)
	args := make([]any, 0, len(tagValues)+1+len(fieldValues))
	for _, t := range tagValues {
		args = append(args, t)
	}
	args = append(args, ts)
	args = append(args, fieldValues...)
	_, err := conn.ExecContext(ctx, fam.InsertSQL(child), args...)
	return err
}

// Insert persists a ResourceSnapshot for a host (spec §4.4 "Insert
// contract"). Implementations SHOULD batch round-trips where feasible;
// here each family writes within one acquired connection, and a failure
// on one row is logged and does not abort the rest of the batch.
func (s *Store) Insert(ctx context.Context, hostIP string, snap model.ResourceSnapshot) error {
	return pool.WithConn(ctx, s.pool, func(conn *sql.Conn) error {
		now := time.Now()

		if snap.CPU != nil {
			c := *snap.CPU
			ts := tsOrNow(c.Ts, now)
			if err := s.insert(ctx, conn, Families["cpu"], []string{hostIP}, ts, []any{
				c.UsagePercent, c.LoadAvg1m, c.LoadAvg5m, c.LoadAvg15m, c.CoreCount, c.CoreAllocated,
				c.Temperature, c.Voltage, c.Current, c.Power,
			}); err != nil {
				s.log.WithField("family", "cpu").WithField("host_ip", hostIP).WithField("error", err).Warn("insert failed")
			}
		}
		if snap.Memory != nil {
			m := *snap.Memory
			ts := tsOrNow(m.Ts, now)
			if err := s.insert(ctx, conn, Families["memory"], []string{hostIP}, ts, []any{
				m.Total, m.Used, m.Free, m.UsagePercent,
			}); err != nil {
				s.log.WithField("family", "memory").WithField("host_ip", hostIP).WithField("error", err).Warn("insert failed")
			}
		}
		for _, d := range snap.Disks {
			ts := tsOrNow(d.Ts, now)
			if err := s.insert(ctx, conn, Families["disk"], []string{hostIP, d.Device, d.MountPoint}, ts, []any{
				d.Total, d.Used, d.Free, d.UsagePercent,
			}); err != nil {
				s.log.WithField("family", "disk").WithField("host_ip", hostIP).WithField("error", err).Warn("insert failed")
			}
		}
		for _, n := range snap.Networks {
			ts := tsOrNow(n.Ts, now)
			if err := s.insert(ctx, conn, Families["network"], []string{hostIP, n.Interface}, ts, []any{
				n.RxBytes, n.TxBytes, n.RxPackets, n.TxPackets, n.RxErrors, n.TxErrors, n.RxRate, n.TxRate,
			}); err != nil {
				s.log.WithField("family", "network").WithField("host_ip", hostIP).WithField("error", err).Warn("insert failed")
			}
		}
		for _, g := range snap.GPUs {
			ts := tsOrNow(g.Ts, now)
			if err := s.insert(ctx, conn, Families["gpu"], []string{hostIP, fmt.Sprint(g.GPUIndex), g.GPUName}, ts, []any{
				g.ComputeUsage, g.MemUsage, g.MemUsed, g.MemTotal, g.Temperature, g.Power,
			}); err != nil {
				s.log.WithField("family", "gpu").WithField("host_ip", hostIP).WithField("error", err).Warn("insert failed")
			}
		}
		for _, c := range snap.Containers {
			ts := tsOrNow(c.Ts, now)
			if err := s.insert(ctx, conn, Families["container"], []string{hostIP, c.ContainerID}, ts, []any{
				c.Name, c.CPUPercent, c.MemUsage, c.MemLimit,
			}); err != nil {
				s.log.WithField("family", "container").WithField("host_ip", hostIP).WithField("error", err).Warn("insert failed")
			}
		}
		for _, se := range snap.Sensors {
			ts := tsOrNow(se.Ts, now)
			if err := s.insert(ctx, conn, Families["sensor"], []string{hostIP, se.Name}, ts, []any{se.Value}); err != nil {
				s.log.WithField("family", "sensor").WithField("host_ip", hostIP).WithField("error", err).Warn("insert failed")
			}
		}
		return nil
	})
}

// InsertBMCFan persists one bmc_fan_super row (spec §4.5 fan-out).
func (s *Store) InsertBMCFan(ctx context.Context, ts time.Time, sample model.FanSample) error {
	return pool.WithConn(ctx, s.pool, func(conn *sql.Conn) error {
		return s.insert(ctx, conn, Families["bmc_fan_super"],
			[]string{fmt.Sprint(sample.BoxID), fmt.Sprint(sample.FanSeq)}, ts,
			[]any{sample.Speed, sample.AlarmType, sample.WorkMode})
	})
}

// InsertBMCSensor persists one bmc_sensor_super row (spec §4.5 fan-out).
func (s *Store) InsertBMCSensor(ctx context.Context, ts time.Time, sample model.BMCSensorSample) error {
	return pool.WithConn(ctx, s.pool, func(conn *sql.Conn) error {
		return s.insert(ctx, conn, Families["bmc_sensor_super"],
			[]string{
				fmt.Sprint(sample.BoxID), fmt.Sprint(sample.SlotID), fmt.Sprint(sample.SensorSeq),
				sample.SensorName, fmt.Sprint(sample.SensorType), sample.HostIP,
			}, ts, []any{sample.Value, sample.AlarmType})
	})
}

func tsOrNow(ts, now time.Time) time.Time {
	if ts.IsZero() {
		return now
	}
	return ts
}

// queryLastRow runs the native LAST_ROW() window function for a family
// filtered by tags, resolving the open question in spec §9 (LAST plus
// GROUP BY semantics) in favor of pushing the "most recent row" intent
// down to the backend's own last-row primitive rather than filtering
// in-process.
func (s *Store) queryLastRow(ctx context.Context, conn *sql.Conn, fam MetricFamily, tagFilter map[string]string) (map[string]any, bool, error) {
	where, args := tagWhere(tagFilter)
	query := fmt.Sprintf("SELECT LAST_ROW(*) FROM %s%s", fam.Name, where)
	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, false, apierr.Wrap(apierr.CodeQuery, "query last row "+fam.Name, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, false, apierr.Wrap(apierr.CodeQuery, "columns "+fam.Name, err)
	}
	if !rows.Next() {
		return nil, false, nil
	}
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, false, apierr.Wrap(apierr.CodeQuery, "scan "+fam.Name, err)
	}
	out := make(map[string]any, len(cols))
	for i, c := range cols {
		out[strings.TrimSuffix(strings.TrimPrefix(c, "last_row("), ")")] = vals[i]
	}
	return out, true, nil
}

// queryRange returns rows for a family within now-span, filtered by
// tags, ordered non-decreasing by ts (spec §8 "range returns rows in
// non-decreasing ts").
func (s *Store) queryRange(ctx context.Context, conn *sql.Conn, fam MetricFamily, tagFilter map[string]string, span time.Duration) ([]map[string]any, error) {
	where, args := tagWhere(tagFilter)
	freshness := "ts > now - " + tdengineDuration(span)
	if where == "" {
		where = " WHERE " + freshness
	} else {
		where += " AND " + freshness
	}
	query := fmt.Sprintf("SELECT * FROM %s%s ORDER BY ts ASC", fam.Name, where)
	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeQuery, "query range "+fam.Name, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeQuery, "columns "+fam.Name, err)
	}

	var out []map[string]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, apierr.Wrap(apierr.CodeQuery, "scan "+fam.Name, err)
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			row[c] = vals[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Query runs an arbitrary synthesized statement against the TS Store and
// returns its rows as generic maps (spec §4.2.2, "synthesize a query
// against TS Store"). Used by the Rule Engine, which builds its own
// SELECT/WHERE/GROUP BY from a rule's parsed expression tree.
func (s *Store) Query(ctx context.Context, sqlStr string, args ...any) ([]map[string]any, error) {
	var out []map[string]any
	err := pool.WithConn(ctx, s.pool, func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, sqlStr, args...)
		if err != nil {
			return apierr.Wrap(apierr.CodeQuery, "rule query", err)
		}
		defer rows.Close()

		cols, err := rows.Columns()
		if err != nil {
			return apierr.Wrap(apierr.CodeQuery, "rule query columns", err)
		}
		for rows.Next() {
			vals := make([]any, len(cols))
			ptrs := make([]any, len(cols))
			for i := range vals {
				ptrs[i] = &vals[i]
			}
			if err := rows.Scan(ptrs...); err != nil {
				return apierr.Wrap(apierr.CodeQuery, "rule query scan", err)
			}
			row := make(map[string]any, len(cols))
			for i, c := range cols {
				row[c] = vals[i]
			}
			out = append(out, row)
		}
		return rows.Err()
	})
	return out, err
}

func tagWhere(tagFilter map[string]string) (string, []any) {
	if len(tagFilter) == 0 {
		return "", nil
	}
	var clauses []string
	var args []any
	for k, v := range tagFilter {
		clauses = append(clauses, k+" = ?")
		args = append(args, v)
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// tdengineDuration renders a Go duration as a TDengine interval literal
// (e.g. "1h", "90s"); TDengine accepts a bare integer + unit suffix.
func tdengineDuration(d time.Duration) string {
	if d <= 0 {
		d = time.Hour
	}
	switch {
	case d%(24*time.Hour) == 0:
		return fmt.Sprintf("%dd", d/(24*time.Hour))
	case d%time.Hour == 0:
		return fmt.Sprintf("%dh", d/time.Hour)
	case d%time.Minute == 0:
		return fmt.Sprintf("%dm", d/time.Minute)
	default:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
}
