package rulestore

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/clustermon/clustermon/internal/model"
	"github.com/clustermon/clustermon/internal/paginate"
	"github.com/clustermon/clustermon/pkg/config"
	"github.com/clustermon/clustermon/pkg/logger"
)

func testPoolConfig() config.PoolConfig {
	return config.PoolConfig{
		MinConnections:      0,
		MaxConnections:      1,
		InitialConnections:  0,
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

	sqlxDB := sqlx.NewDb(db, "mysql")
	store, err := newWithDB(context.Background(), sqlxDB, testPoolConfig(), logger.NewDefault("rulestore-test"))
	if err != nil {
		t.Fatalf("newWithDB: %v", err)
	}
	t.Cleanup(func() { store.Close(context.Background()) })
	return store, mock
}

func TestStore_CreateInsertsRow(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO alarm_rules").WillReturnResult(sqlmock.NewResult(1, 1))

	rule := model.AlarmRule{
		AlertName:   "HighCPU",
		Expression:  `{"stable":"cpu","metric":"usage_percent","operator":">","threshold":80}`,
		ForDuration: "2s",
		Severity:    "warning",
		AlertType:   "resource",
		Enabled:     true,
	}
	created, err := store.Create(context.Background(), rule)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID == "" {
		t.Fatalf("expected an assigned id")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestStore_DeleteNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("DELETE FROM alarm_rules").WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Delete(context.Background(), "missing-id")
	if err == nil {
		t.Fatalf("expected not-found error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPaginationClampUsedByListPaginated(t *testing.T) {
	cases := []struct {
		page, pageSize   int
		wantPg, wantSize int
	}{
		{0, 0, 1, 20},
		{-1, -5, 1, 20},
		{2, 5000, 2, 1000},
		{3, 50, 3, 50},
	}
	for _, c := range cases {
		gotPage, gotSize := paginate.Clamp(c.page, c.pageSize)
		if gotPage != c.wantPg || gotSize != c.wantSize {
			t.Fatalf("Clamp(%d,%d) = (%d,%d), want (%d,%d)", c.page, c.pageSize, gotPage, gotSize, c.wantPg, c.wantSize)
		}
	}
}

func TestPageMetadataComputation(t *testing.T) {
	p := paginate.New([]int{1, 2, 3}, 2, 10, 25)
	if p.TotalPages != 3 {
		t.Fatalf("expected 3 total pages, got %d", p.TotalPages)
	}
	if !p.HasNext || !p.HasPrev {
		t.Fatalf("expected has_next and has_prev true on middle page")
	}

	last := paginate.New([]int{1}, 3, 10, 25)
	if last.HasNext {
		t.Fatalf("expected has_next false on last page")
	}
}
