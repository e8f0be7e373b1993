// Package eventstore implements the Event Store (spec §4.7): append of
// firing events and mutation of matching open events to resolved, plus
// paginated and filtered reads.
package eventstore

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
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

const migrationsTable = "schema_migrations_alarm_events"

// Store is the Event Store (spec §4.7 "Event Store").
type Store struct {
	db   *sqlx.DB
	pool *pool.Pool[*sqlx.Conn]
	log  *logger.Logger
}

// Open connects to the relational backing store and applies any pending
// alarm_events schema migrations.
func Open(ctx context.Context, dsn string, cfg config.PoolConfig, log *logger.Logger) (*Store, error) {
	db, err := sqlx.Open("mysql", dsn)
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeConfig, "open event store", err)
	}
	db.SetMaxOpenConns(cfg.MaxConnections + 2)
	if err := db.PingContext(ctx); err != nil {
		return nil, apierr.Wrap(apierr.CodeTransientBackend, "ping event store", err)
	}
	if err := dbmigrate.Apply(db.DB, migrationsFS, "migrations", migrationsTable); err != nil {
		return nil, err
	}
	return newWithDB(ctx, db, cfg, log)
}

// OpenWithDB wires a Store around an already-open *sqlx.DB, skipping the
// dial and migration run in Open. Exported for other packages' tests
// that need a Store backed by sqlmock (the Event Bus's fan-out tests, in
// particular).
func OpenWithDB(ctx context.Context, db *sqlx.DB, cfg config.PoolConfig, log *logger.Logger) (*Store, error) {
	return newWithDB(ctx, db, cfg, log)
}

func newWithDB(ctx context.Context, db *sqlx.DB, cfg config.PoolConfig, log *logger.Logger) (*Store, error) {
	query := cfg.HealthCheckQuery
	if query == "" {
		query = "SELECT 1"
	}
	p := pool.New[*sqlx.Conn]("event_store", cfg, func(ctx context.Context) (*sqlx.Conn, error) {
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

// Stats exposes the underlying pool's counters.
func (s *Store) Stats() pool.Stats { return s.pool.Stats() }

// Process implements spec §4.7's process(event): inserts a new open row
// on a firing event, or resolves the matching open row on a resolved
// event. Resolving with no matching open row is a ConsistencyError,
// logged at ERROR and returned so the caller (the Event Bus) can keep
// going per the propagation policy (spec §7).
func (s *Store) Process(ctx context.Context, ev model.AlarmEvent) error {
	labelsJSON, err := json.Marshal(ev.Labels)
	if err != nil {
		return apierr.Wrap(apierr.CodeInvalidInput, "marshal labels", err)
	}
	annotationsJSON, err := json.Marshal(ev.Annotations)
	if err != nil {
		return apierr.Wrap(apierr.CodeInvalidInput, "marshal annotations", err)
	}

	switch ev.Status {
	case model.StatusFiring:
		now := time.Now().UTC()
		return pool.WithConn(ctx, s.pool, func(conn *sqlx.Conn) error {
			_, err := conn.ExecContext(ctx, `
				INSERT INTO alarm_events
					(fingerprint, status, labels_json, annotations_json, starts_at, ends_at, generator_url, created_at, updated_at)
				VALUES (?, 'firing', ?, ?, ?, NULL, ?, ?, ?)
			`, ev.Fingerprint, labelsJSON, annotationsJSON, ev.StartsAt, ev.GeneratorURL, now, now)
			if err != nil {
				return apierr.Wrap(apierr.CodeQuery, "insert firing event", err)
			}
			return nil
		})

	case model.StatusResolved:
		return pool.WithConn(ctx, s.pool, func(conn *sqlx.Conn) error {
			result, err := conn.ExecContext(ctx, `
				UPDATE alarm_events
				SET status = 'resolved', ends_at = ?, updated_at = ?
				WHERE fingerprint = ? AND status = 'firing' AND ends_at IS NULL
			`, ev.EndsAt, time.Now().UTC(), ev.Fingerprint)
			if err != nil {
				return apierr.Wrap(apierr.CodeQuery, "resolve event", err)
			}
			n, _ := result.RowsAffected()
			if n == 0 {
				s.log.WithField("fingerprint", ev.Fingerprint).Error("resolve with no matching open event")
				return apierr.New(apierr.CodeConsistency, fmt.Sprintf("no open event for fingerprint %s", ev.Fingerprint))
			}
			return nil
		})

	default:
		return apierr.New(apierr.CodeInvalidInput, fmt.Sprintf("unknown event status %q", ev.Status))
	}
}

func (s *Store) scanRow(ctx context.Context, dest *model.PersistedAlarmEvent, query string, args ...any) error {
	return pool.WithConn(ctx, s.pool, func(conn *sqlx.Conn) error {
		return conn.GetContext(ctx, dest, query, args...)
	})
}

func (s *Store) selectRows(ctx context.Context, dest *[]model.PersistedAlarmEvent, query string, args ...any) error {
	return pool.WithConn(ctx, s.pool, func(conn *sqlx.Conn) error {
		return conn.SelectContext(ctx, dest, query, args...)
	})
}

// ListActive returns every row with status=firing and ends_at IS NULL.
func (s *Store) ListActive(ctx context.Context) ([]model.PersistedAlarmEvent, error) {
	var rows []model.PersistedAlarmEvent
	if err := s.selectRows(ctx, &rows, `SELECT * FROM alarm_events WHERE status = 'firing' AND ends_at IS NULL ORDER BY starts_at DESC`); err != nil {
		return nil, apierr.Wrap(apierr.CodeQuery, "list active events", err)
	}
	return rows, nil
}

// ListByFingerprint returns every row for a fingerprint, newest first.
func (s *Store) ListByFingerprint(ctx context.Context, fingerprint string) ([]model.PersistedAlarmEvent, error) {
	var rows []model.PersistedAlarmEvent
	if err := s.selectRows(ctx, &rows, `SELECT * FROM alarm_events WHERE fingerprint = ? ORDER BY created_at DESC`, fingerprint); err != nil {
		return nil, apierr.Wrap(apierr.CodeQuery, "list events by fingerprint", err)
	}
	return rows, nil
}

// ListRecent returns the most recent `limit` rows across all fingerprints.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]model.PersistedAlarmEvent, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []model.PersistedAlarmEvent
	if err := s.selectRows(ctx, &rows, `SELECT * FROM alarm_events ORDER BY created_at DESC LIMIT ?`, limit); err != nil {
		return nil, apierr.Wrap(apierr.CodeQuery, "list recent events", err)
	}
	return rows, nil
}

// GetByID fetches a single event row.
func (s *Store) GetByID(ctx context.Context, id int64) (model.PersistedAlarmEvent, error) {
	var row model.PersistedAlarmEvent
	err := s.scanRow(ctx, &row, `SELECT * FROM alarm_events WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.PersistedAlarmEvent{}, apierr.New(apierr.CodeNotFound, fmt.Sprintf("event %d not found", id))
	}
	if err != nil {
		return model.PersistedAlarmEvent{}, apierr.Wrap(apierr.CodeQuery, "get event", err)
	}
	return row, nil
}

// ListPaginated returns a page of events, optionally filtered by status.
func (s *Store) ListPaginated(ctx context.Context, page, pageSize int, statusFilter string) (paginate.Page[model.PersistedAlarmEvent], error) {
	page, pageSize = paginate.Clamp(page, pageSize)

	where := ""
	args := []any{}
	if statusFilter != "" {
		where = " WHERE status = ?"
		args = append(args, statusFilter)
	}

	var total int
	var rows []model.PersistedAlarmEvent
	err := pool.WithConn(ctx, s.pool, func(conn *sqlx.Conn) error {
		if err := conn.GetContext(ctx, &total, `SELECT COUNT(*) FROM alarm_events`+where, args...); err != nil {
			return err
		}
		offset := (page - 1) * pageSize
		listArgs := append(append([]any{}, args...), pageSize, offset)
		return conn.SelectContext(ctx, &rows,
			`SELECT * FROM alarm_events`+where+` ORDER BY created_at DESC LIMIT ? OFFSET ?`, listArgs...)
	})
	if err != nil {
		return paginate.Page[model.PersistedAlarmEvent]{}, apierr.Wrap(apierr.CodeQuery, "list paginated events", err)
	}

	return paginate.New(rows, page, pageSize, total), nil
}

// CountActive returns the number of currently-open (firing) events.
func (s *Store) CountActive(ctx context.Context) (int, error) {
	var n int
	err := pool.WithConn(ctx, s.pool, func(conn *sqlx.Conn) error {
		return conn.GetContext(ctx, &n, `SELECT COUNT(*) FROM alarm_events WHERE status = 'firing' AND ends_at IS NULL`)
	})
	if err != nil {
		return 0, apierr.Wrap(apierr.CodeQuery, "count active events", err)
	}
	return n, nil
}

// CountTotal returns the total number of event rows, optionally filtered
// by status.
func (s *Store) CountTotal(ctx context.Context, statusFilter string) (int, error) {
	where := ""
	args := []any{}
	if statusFilter != "" {
		where = " WHERE status = ?"
		args = append(args, statusFilter)
	}
	var n int
	err := pool.WithConn(ctx, s.pool, func(conn *sqlx.Conn) error {
		return conn.GetContext(ctx, &n, `SELECT COUNT(*) FROM alarm_events`+where, args...)
	})
	if err != nil {
		return 0, apierr.Wrap(apierr.CodeQuery, "count total events", err)
	}
	return n, nil
}
