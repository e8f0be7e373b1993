package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/clustermon/clustermon/internal/eventstore"
	"github.com/clustermon/clustermon/pkg/logger"
)

func newMockEventStore(t *testing.T) (*eventstore.Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store, err := eventstore.OpenWithDB(context.Background(), sqlx.NewDb(db, "mysql"), testPoolConfig(), logger.NewDefault("httpapi-events-test"))
	if err != nil {
		t.Fatalf("OpenWithDB: %v", err)
	}
	t.Cleanup(func() { store.Close(context.Background()) })
	return store, mock
}

var eventColumns = []string{
	"id", "fingerprint", "status", "labels_json", "annotations_json",
	"starts_at", "ends_at", "generator_url", "created_at", "updated_at",
}

func TestListEventsHandler_LimitWithoutStatusUsesListRecent(t *testing.T) {
	store, mock := newMockEventStore(t)
	mock.ExpectQuery("SELECT \\* FROM alarm_events ORDER BY created_at DESC LIMIT ?").
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows(eventColumns))

	req := httptest.NewRequest(http.MethodGet, "/alarm/events?limit=5", nil)
	rec := httptest.NewRecorder()

	listEventsHandler(store)(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestListEventsHandler_LimitWithStatusUsesListPaginated(t *testing.T) {
	store, mock := newMockEventStore(t)
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM alarm_events WHERE status = ?").
		WithArgs("firing").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery("SELECT \\* FROM alarm_events WHERE status = ?").
		WithArgs("firing", 5, 0).
		WillReturnRows(sqlmock.NewRows(eventColumns))

	req := httptest.NewRequest(http.MethodGet, "/alarm/events?limit=5&status=firing", nil)
	rec := httptest.NewRecorder()

	listEventsHandler(store)(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestListEventsHandler_DefaultPagination(t *testing.T) {
	store, mock := newMockEventStore(t)
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM alarm_events").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery("SELECT \\* FROM alarm_events").
		WillReturnRows(sqlmock.NewRows(eventColumns))

	req := httptest.NewRequest(http.MethodGet, "/alarm/events", nil)
	rec := httptest.NewRecorder()

	listEventsHandler(store)(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestCountEventsHandler(t *testing.T) {
	store, mock := newMockEventStore(t)
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM alarm_events").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	req := httptest.NewRequest(http.MethodGet, "/alarm/events/count", nil)
	rec := httptest.NewRecorder()

	countEventsHandler(store)(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec.Body.Bytes())
	data, ok := env["data"].(map[string]any)
	if !ok {
		t.Fatalf("data field = %v", env["data"])
	}
	if data["count"].(float64) != 3 {
		t.Fatalf("count = %v", data["count"])
	}
}
