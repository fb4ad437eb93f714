package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabrica3d/fabrica/internal/genimage"
	"github.com/fabrica3d/fabrica/internal/kv"
	"github.com/fabrica3d/fabrica/internal/models"
	"github.com/fabrica3d/fabrica/internal/panels"
	"github.com/fabrica3d/fabrica/internal/pipeline"
	"github.com/fabrica3d/fabrica/internal/recon"
	"github.com/fabrica3d/fabrica/internal/state"
)

type stubGenerator struct {
	images []string
	// block, when non-nil, is closed by the test to release Generate.
	block chan struct{}
}

func (s *stubGenerator) Generate(context.Context, genimage.Request) ([]string, error) {
	if s.block != nil {
		<-s.block
	}
	return s.images, nil
}

type stubReconstructor struct{}

func (stubReconstructor) Reconstruct(_ context.Context, images []string, _ recon.ProgressFunc) (*models.ReconstructionArtifacts, error) {
	return &models.ReconstructionArtifacts{MeshFile: "mesh.glb"}, nil
}

type stubHealth struct{ err error }

func (s stubHealth) HealthCheck(context.Context) error { return s.err }

type testEnv struct {
	server   *httptest.Server
	store    kv.Store
	panelSvc *panels.Service
	gen      *stubGenerator
	apiKey   string
}

func newTestEnv(t *testing.T, apiKey string) *testEnv {
	t.Helper()
	store := kv.NewMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gen := &stubGenerator{images: []string{"img-1", "img-2", "img-3"}}

	orch := pipeline.NewOrchestrator(
		state.NewProductStore(store, 0),
		state.NewStatusStore(store, 0),
		gen,
		stubReconstructor{},
		logger,
	)
	panelSvc := panels.NewService(state.NewPackagingStore(store, 0), gen, logger)

	router := NewRouter(store, orch, panelSvc, stubHealth{}, stubHealth{}, apiKey, logger)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testEnv{server: srv, store: store, panelSvc: panelSvc, gen: gen, apiKey: apiKey}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dest any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dest))
}

func TestProductCreateFlow(t *testing.T) {
	env := newTestEnv(t, "")

	resp := env.do(t, http.MethodPost, "/product/create", map[string]any{"prompt": "a blue speaker"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var ack models.StatusProjection
	decodeBody(t, resp, &ack)
	assert.Equal(t, models.PhasePending, ack.Phase)

	require.Eventually(t, func() bool {
		resp := env.do(t, http.MethodGet, "/product/status", nil)
		var status models.StatusProjection
		decodeBody(t, resp, &status)
		return status.Phase == models.PhaseComplete
	}, 2*time.Second, 10*time.Millisecond)

	resp = env.do(t, http.MethodGet, "/product", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sess models.ProductSession
	decodeBody(t, resp, &sess)
	assert.Len(t, sess.Images, 3)
	assert.Len(t, sess.Iterations, 1)
	assert.Equal(t, "mesh.glb", sess.Reconstruction.MeshFile)
}

func TestProductCreateConflictWhileBusy(t *testing.T) {
	env := newTestEnv(t, "")
	env.gen.block = make(chan struct{})

	resp := env.do(t, http.MethodPost, "/product/create", map[string]any{"prompt": "first"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, http.MethodPost, "/product/create", map[string]any{"prompt": "second"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	close(env.gen.block)
	require.Eventually(t, func() bool {
		resp := env.do(t, http.MethodGet, "/product/status", nil)
		var status models.StatusProjection
		decodeBody(t, resp, &status)
		return status.Phase == models.PhaseComplete
	}, 2*time.Second, 10*time.Millisecond)
}

func TestProductBadRequests(t *testing.T) {
	env := newTestEnv(t, "")

	resp := env.do(t, http.MethodPost, "/product/create", map[string]any{"prompt": ""})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, http.MethodPost, "/product/create", map[string]any{"prompt": "p", "image_count": 99})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	// Edit with no base product.
	resp = env.do(t, http.MethodPost, "/product/edit", map[string]any{"prompt": "make it red"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	// Rewind with an empty iteration log.
	resp = env.do(t, http.MethodPost, "/product/rewind", map[string]any{"iteration_index": 0})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	// Unknown fields are rejected.
	resp = env.do(t, http.MethodPost, "/product/create", map[string]any{"prompt": "p", "bogus": true})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestProductRecoverEndpoint(t *testing.T) {
	env := newTestEnv(t, "")

	resp := env.do(t, http.MethodPost, "/product/recover", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var report pipeline.RecoveryReport
	decodeBody(t, resp, &report)
	assert.False(t, report.Recovered)

	// Orphan the session, then recover it.
	sessions := state.NewProductStore(env.store, 0)
	sess, err := sessions.Load(context.Background())
	require.NoError(t, err)
	sess.InProgress = true
	require.NoError(t, sessions.Save(context.Background(), sess))

	resp = env.do(t, http.MethodPost, "/product/recover", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &report)
	assert.True(t, report.Recovered)
}

func TestPackagingGeneratePanelAck(t *testing.T) {
	env := newTestEnv(t, "")

	resp := env.do(t, http.MethodPost, "/packaging/panels/generate", map[string]any{
		"panel_id":           "front",
		"prompt":             "sunflower branding",
		"package_type":       "box",
		"panel_dimensions":   map[string]any{"width": 100, "height": 150},
		"package_dimensions": map[string]any{"width": 100, "height": 150, "depth": 100},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var ack map[string]any
	decodeBody(t, resp, &ack)
	assert.Equal(t, "generating", ack["status"])
	assert.Equal(t, "front", ack["panel_id"])

	env.panelSvc.WaitIdle()

	resp = env.do(t, http.MethodGet, "/packaging/panels/front/texture", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var texture models.PanelTexture
	decodeBody(t, resp, &texture)
	assert.Equal(t, "img-1", texture.TextureURL)
}

func TestPackagingTextureLookupStatuses(t *testing.T) {
	env := newTestEnv(t, "")

	resp := env.do(t, http.MethodGet, "/packaging/panels/front/texture", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	// Mark the panel as generating: the endpoint answers 202.
	packaging := state.NewPackagingStore(env.store, 0)
	sess, err := packaging.Load(context.Background())
	require.NoError(t, err)
	sess.InProgress = true
	sess.GeneratingPanel = "front"
	require.NoError(t, packaging.Save(context.Background(), sess))

	resp = env.do(t, http.MethodGet, "/packaging/panels/front/texture", nil)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp.Body.Close()
}

func TestPackagingDimensionEndpoints(t *testing.T) {
	env := newTestEnv(t, "")

	resp := env.do(t, http.MethodPost, "/packaging/update-dimensions", map[string]any{
		"package_type": "cylinder",
		"dimensions":   map[string]any{"width": 90, "height": 200, "depth": 90},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var updated map[string]any
	decodeBody(t, resp, &updated)
	assert.Equal(t, "cylinder", updated["package_type"])

	resp = env.do(t, http.MethodPost, "/packaging/update-dimensions", map[string]any{
		"package_type": "box",
		"dimensions":   map[string]any{"width": 0, "height": 0, "depth": 0},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, http.MethodPost, "/packaging/reset-current-shape", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var reset map[string]any
	decodeBody(t, resp, &reset)
	assert.Equal(t, "cylinder", reset["package_type"])
}

func TestBearerAuth(t *testing.T) {
	env := newTestEnv(t, "secret")

	// Health stays open.
	resp, err := http.Get(env.server.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Authenticated routes reject missing and wrong tokens.
	resp, err = http.Get(env.server.URL + "/product/status")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	req, err := http.NewRequest(http.MethodGet, env.server.URL+"/product/status", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer wrong")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	// The right token passes.
	resp = env.do(t, http.MethodGet, "/product/status", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestHealthDegraded(t *testing.T) {
	store := kv.NewMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gen := &stubGenerator{}
	orch := pipeline.NewOrchestrator(
		state.NewProductStore(store, 0),
		state.NewStatusStore(store, 0),
		gen,
		stubReconstructor{},
		logger,
	)
	panelSvc := panels.NewService(state.NewPackagingStore(store, 0), gen, logger)

	router := NewRouter(store, orch, panelSvc,
		stubHealth{err: fmt.Errorf("image api unreachable")}, stubHealth{}, "", logger)
	srv := httptest.NewServer(router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var health map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	resp.Body.Close()
	assert.Equal(t, "degraded", health["status"])
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, "secret")

	req, err := http.NewRequest(http.MethodOptions, env.server.URL+"/product/create", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
