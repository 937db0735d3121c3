package adminapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/heptiolabs/healthcheck"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/schemaforge/schemaforge/internal/classify"
	"github.com/schemaforge/schemaforge/internal/metadata"
	"github.com/schemaforge/schemaforge/internal/orchestrator"
	"github.com/schemaforge/schemaforge/internal/record"
	"github.com/schemaforge/schemaforge/internal/router"
	"github.com/schemaforge/schemaforge/internal/wal"
)

type fakeRelational struct{}

func (fakeRelational) EnsureTable(context.Context, string, map[string]classify.PlacementDecision) error {
	return nil
}
func (fakeRelational) InsertBatch(context.Context, string, []record.Record, []string, string) error {
	return nil
}

type fakeDocument struct{}

func (fakeDocument) EnsureIndexes(context.Context, string, string) error { return nil }
func (fakeDocument) InsertBatch(context.Context, string, []record.Record, string) error {
	return nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()

	w, err := wal.Open(dir, nil)
	require.NoError(t, err)
	meta, err := metadata.New(dir, zap.NewNop().Sugar())
	require.NoError(t, err)

	rt := router.New(fakeRelational{}, fakeDocument{}, "records")
	orch, err := orchestrator.New(context.Background(), orchestrator.Config{BufferSize: 100}, orchestrator.Deps{
		WAL: w, Meta: meta, Router: rt, Log: zap.NewNop().Sugar(), Thresholds: classify.DefaultThresholds(),
	})
	require.NoError(t, err)

	return New(orch, healthcheck.NewHandler(), zap.NewNop().Sugar())
}

func TestServer_StatusReturnsOK(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_IngestThenStatusReflectsBuffer(t *testing.T) {
	s := newTestServer(t)

	body := strings.NewReader(`{"name":"alice"}`)
	req := httptest.NewRequest(http.MethodPost, "/ingest", body)
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	req2 := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec2 := httptest.NewRecorder()
	s.engine.ServeHTTP(rec2, req2)
	assert.Contains(t, rec2.Body.String(), `"buffer_size":1`)
}

func TestServer_IngestRejectsInvalidJSON(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/ingest", strings.NewReader("not json"))
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_HealthzServed(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
