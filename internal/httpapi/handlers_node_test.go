package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/clustermon/clustermon/internal/model"
	"github.com/clustermon/clustermon/internal/registry"
)

func TestNodeHandler_ListAll(t *testing.T) {
	reg := registry.New()
	reg.UpsertHeartbeat(model.BoxInfo{HostIP: "10.0.0.1", Hostname: "node-1"})
	reg.UpsertHeartbeat(model.BoxInfo{HostIP: "10.0.0.2", Hostname: "node-2"})

	req := httptest.NewRequest(http.MethodGet, "/node", nil)
	rec := httptest.NewRecorder()

	nodeHandler(reg)(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec.Body.Bytes())
	nodes, ok := env["data"].([]any)
	if !ok || len(nodes) != 2 {
		t.Fatalf("data field = %v", env["data"])
	}
}

func TestNodeHandler_SingleHost(t *testing.T) {
	reg := registry.New()
	reg.UpsertHeartbeat(model.BoxInfo{HostIP: "10.0.0.1", Hostname: "node-1"})

	req := httptest.NewRequest(http.MethodGet, "/node?host_ip=10.0.0.1", nil)
	rec := httptest.NewRecorder()

	nodeHandler(reg)(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec.Body.Bytes())
	data, ok := env["data"].(map[string]any)
	if !ok || data["hostname"] != "node-1" {
		t.Fatalf("data field = %v", env["data"])
	}
}

func TestNodeHandler_UnknownHostIsNotFound(t *testing.T) {
	reg := registry.New()

	req := httptest.NewRequest(http.MethodGet, "/node?host_ip=10.0.0.9", nil)
	rec := httptest.NewRecorder()

	nodeHandler(reg)(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}
