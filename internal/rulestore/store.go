// Package rulestore implements the Rule Store (spec §4.7): CRUD and
// pagination of alarm rule definitions over the relational backing store.
package rulestore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/clustermon/clustermon/internal/apierr"
	"github.com/clustermon/clustermon/internal/dbmigrate"
	"github.com/clustermon/clustermon/internal/model"
	"github.com/clustermon/clustermon/internal/paginate"
	"github.com/clustermon/clustermon/internal/pool"
	"github.com/clustermon/clustermon/pkg/config"
	"github.com/clustermon/clustermon/pkg/logger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const migrationsTable = "schema_migrations_alarm_rules"

// Store is the Rule Store (spec §4.7 "Rule Store"). It opens its own
// *sqlx.DB (database/sql already pools physical connections) and leases
// single reserved connections from it through the Pool Substrate, so the
// store's acquire/release/stats behavior is uniform with every other
// backing-store client.
type Store struct {
	db   *sqlx.DB
	pool *pool.Pool[*sqlx.Conn]
	log  *logger.Logger
}

// Open connects to the relational backing store, applies any pending
// alarm_rules schema migrations, and starts the pool substrate in front
// of it.
func Open(ctx context.Context, dsn string, cfg config.PoolConfig, log *logger.Logger) (*Store, error) {
	db, err := sqlx.Open("mysql", dsn)
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeConfig, "open rule store", err)
	}
	db.SetMaxOpenConns(cfg.MaxConnections + 2) // headroom above the substrate's own cap
	if err := db.PingContext(ctx); err != nil {
		return nil, apierr.Wrap(apierr.CodeTransientBackend, "ping rule store", err)
	}
	if err := dbmigrate.Apply(db.DB, migrationsFS, "migrations", migrationsTable); err != nil {
		return nil, err
	}
	return newWithDB(ctx, db, cfg, log)
}

// OpenWithDB wires a Store around an already-open *sqlx.DB, skipping the
// dial and migration run in Open. Exported for other packages' tests
// that need a Store backed by sqlmock (the HTTP API's rule-route tests,
// in particular).
func OpenWithDB(ctx context.Context, db *sqlx.DB, cfg config.PoolConfig, log *logger.Logger) (*Store, error) {
	return newWithDB(ctx, db, cfg, log)
}

// newWithDB wires the pool substrate around an already-opened *sqlx.DB.
// Split out of Open so tests can hand it a sqlmock-backed DB without a
// real MySQL driver registration or schema round-trip.
func newWithDB(ctx context.Context, db *sqlx.DB, cfg config.PoolConfig, log *logger.Logger) (*Store, error) {
	query := cfg.HealthCheckQuery
	if query == "" {
		query = "SELECT 1"
	}
	p := pool.New[*sqlx.Conn]("rule_store", cfg, func(ctx context.Context) (*sqlx.Conn, error) {
		return db.Connx(ctx)
	}, log).WithProber(func(ctx context.Context, conn *sqlx.Conn) error {
		_, err := conn.ExecContext(ctx, query)
		return err
	})
	if err := p.Start(ctx); err != nil {
		return nil, err
	}
	return &Store{db: db, pool: p, log: log}, nil
}

// Close shuts down the pool and the underlying *sqlx.DB.
func (s *Store) Close(ctx context.Context) error {
	if err := s.pool.Shutdown(ctx); err != nil {
		return err
	}
	return s.db.Close()
}

// Stats exposes the underlying pool's counters for metrics/diagnostics.
func (s *Store) Stats() pool.Stats { return s.pool.Stats() }

// Create inserts a new rule, assigning an id and timestamps.
func (s *Store) Create(ctx context.Context, r model.AlarmRule) (model.AlarmRule, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now

	err := pool.WithConn(ctx, s.pool, func(conn *sqlx.Conn) error {
		_, err := conn.ExecContext(ctx, `
			INSERT INTO alarm_rules
				(id, alert_name, expression, for_duration, severity, summary, description, alert_type, enabled, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, r.ID, r.AlertName, r.Expression, r.ForDuration, r.Severity, r.Summary, r.Description, r.AlertType, r.Enabled, r.CreatedAt, r.UpdatedAt)
		return err
	})
	if err != nil {
		return model.AlarmRule{}, apierr.Wrap(apierr.CodeQuery, "create rule", err)
	}
	return r, nil
}

// Get fetches a rule by id.
func (s *Store) Get(ctx context.Context, id string) (model.AlarmRule, error) {
	var r model.AlarmRule
	err := pool.WithConn(ctx, s.pool, func(conn *sqlx.Conn) error {
		return conn.GetContext(ctx, &r, `SELECT * FROM alarm_rules WHERE id = ?`, id)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return model.AlarmRule{}, apierr.New(apierr.CodeNotFound, fmt.Sprintf("rule %s not found", id))
	}
	if err != nil {
		return model.AlarmRule{}, apierr.Wrap(apierr.CodeQuery, "get rule", err)
	}
	return r, nil
}

// Update replaces the mutable fields of an existing rule.
func (s *Store) Update(ctx context.Context, r model.AlarmRule) (model.AlarmRule, error) {
	existing, err := s.Get(ctx, r.ID)
	if err != nil {
		return model.AlarmRule{}, err
	}
	r.CreatedAt = existing.CreatedAt
	r.UpdatedAt = time.Now().UTC()

	err = pool.WithConn(ctx, s.pool, func(conn *sqlx.Conn) error {
		_, err := conn.ExecContext(ctx, `
			UPDATE alarm_rules SET
				alert_name = ?, expression = ?, for_duration = ?, severity = ?,
				summary = ?, description = ?, alert_type = ?, enabled = ?, updated_at = ?
			WHERE id = ?
		`, r.AlertName, r.Expression, r.ForDuration, r.Severity, r.Summary, r.Description, r.AlertType, r.Enabled, r.UpdatedAt, r.ID)
		return err
	})
	if err != nil {
		return model.AlarmRule{}, apierr.Wrap(apierr.CodeQuery, "update rule", err)
	}
	return r, nil
}

// Delete removes a rule by id.
func (s *Store) Delete(ctx context.Context, id string) error {
	err := pool.WithConn(ctx, s.pool, func(conn *sqlx.Conn) error {
		result, err := conn.ExecContext(ctx, `DELETE FROM alarm_rules WHERE id = ?`, id)
		if err != nil {
			return err
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return apierr.New(apierr.CodeNotFound, fmt.Sprintf("rule %s not found", id))
		}
		return nil
	})
	return err
}

// ListAll returns every rule, ordered by alert_name.
func (s *Store) ListAll(ctx context.Context) ([]model.AlarmRule, error) {
	var rules []model.AlarmRule
	err := pool.WithConn(ctx, s.pool, func(conn *sqlx.Conn) error {
		return conn.SelectContext(ctx, &rules, `SELECT * FROM alarm_rules ORDER BY alert_name`)
	})
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeQuery, "list all rules", err)
	}
	return rules, nil
}

// ListEnabled returns every enabled rule, ordered by alert_name — the set
// the Rule Engine reloads every evaluation tick.
func (s *Store) ListEnabled(ctx context.Context) ([]model.AlarmRule, error) {
	var rules []model.AlarmRule
	err := pool.WithConn(ctx, s.pool, func(conn *sqlx.Conn) error {
		return conn.SelectContext(ctx, &rules, `SELECT * FROM alarm_rules WHERE enabled = TRUE ORDER BY alert_name`)
	})
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeQuery, "list enabled rules", err)
	}
	return rules, nil
}

// ListPaginated returns a page of rules, optionally filtered to enabled
// rules only (spec §4.7 pagination clamping).
func (s *Store) ListPaginated(ctx context.Context, page, pageSize int, enabledOnly bool) (paginate.Page[model.AlarmRule], error) {
	page, pageSize = paginate.Clamp(page, pageSize)

	where := ""
	if enabledOnly {
		where = " WHERE enabled = TRUE"
	}

	var total int
	var rules []model.AlarmRule
	err := pool.WithConn(ctx, s.pool, func(conn *sqlx.Conn) error {
		if err := conn.GetContext(ctx, &total, `SELECT COUNT(*) FROM alarm_rules`+where); err != nil {
			return err
		}
		offset := (page - 1) * pageSize
		return conn.SelectContext(ctx, &rules,
			`SELECT * FROM alarm_rules`+where+` ORDER BY alert_name LIMIT ? OFFSET ?`, pageSize, offset)
	})
	if err != nil {
		return paginate.Page[model.AlarmRule]{}, apierr.Wrap(apierr.CodeQuery, "list paginated rules", err)
	}

	return paginate.New(rules, page, pageSize, total), nil
}
