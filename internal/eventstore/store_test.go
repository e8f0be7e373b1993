package eventstore

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/clustermon/clustermon/internal/apierr"
	"github.com/clustermon/clustermon/internal/model"
	"github.com/clustermon/clustermon/pkg/config"
	"github.com/clustermon/clustermon/pkg/logger"
)

func testPoolConfig() config.PoolConfig {
	return config.PoolConfig{
		MaxConnections:      1,
		ConnectionTimeout:   time.Second,
		AcquireTimeout:      time.Second,
		IdleTimeout:         time.Hour,
		MaxLifetime:         time.Hour,
		HealthCheckInterval: time.Hour,
		AutoReconnect:       true,
	}
}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store, err := newWithDB(context.Background(), sqlx.NewDb(db, "mysql"), testPoolConfig(), logger.NewDefault("eventstore-test"))
	if err != nil {
		t.Fatalf("newWithDB: %v", err)
	}
	t.Cleanup(func() { store.Close(context.Background()) })
	return store, mock
}

func TestStore_ProcessFiringInserts(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO alarm_events").WillReturnResult(sqlmock.NewResult(1, 1))

	ev := model.AlarmEvent{
		Fingerprint: "alertname=HighCPU,host_ip=10.0.0.1",
		Status:      model.StatusFiring,
		Labels:      map[string]string{"alertname": "HighCPU", "host_ip": "10.0.0.1"},
		Annotations: map[string]string{"summary": "cpu hot"},
		StartsAt:    time.Now(),
	}
	if err := store.Process(context.Background(), ev); err != nil {
		t.Fatalf("Process firing: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestStore_ProcessResolvedWithNoOpenRowIsConsistencyError(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("UPDATE alarm_events").WillReturnResult(sqlmock.NewResult(0, 0))

	now := time.Now()
	ev := model.AlarmEvent{
		Fingerprint: "alertname=HighCPU,host_ip=10.0.0.1",
		Status:      model.StatusResolved,
		EndsAt:      &now,
	}
	err := store.Process(context.Background(), ev)
	if err == nil {
		t.Fatalf("expected ConsistencyError")
	}
	var apiErr *apierr.Error
	if !asApierr(err, &apiErr) || apiErr.Code != apierr.CodeConsistency {
		t.Fatalf("expected CONSISTENCY_ERROR, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestStore_ProcessResolvedUpdatesOpenRow(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("UPDATE alarm_events").WillReturnResult(sqlmock.NewResult(0, 1))

	now := time.Now()
	ev := model.AlarmEvent{
		Fingerprint: "alertname=HighCPU,host_ip=10.0.0.1",
		Status:      model.StatusResolved,
		EndsAt:      &now,
	}
	if err := store.Process(context.Background(), ev); err != nil {
		t.Fatalf("Process resolved: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func asApierr(err error, target **apierr.Error) bool {
	e, ok := err.(*apierr.Error)
	if ok {
		*target = e
	}
	return ok
}
