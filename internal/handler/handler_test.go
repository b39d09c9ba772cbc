package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"suburbiq/internal/conversation"
	"suburbiq/internal/model"
	"suburbiq/internal/observability"
	"suburbiq/internal/plan"
	"suburbiq/internal/repository"
	"suburbiq/internal/repository/repotest"
	"suburbiq/internal/schema"
	"suburbiq/internal/service"
	"suburbiq/internal/store"
	"suburbiq/internal/yield"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := repotest.New(t).
		Price("Ballarat", "VIC", "Ballarat", 2023, "house", nil, 550000).
		Rent("Ballarat", "VIC", "Ballarat", 2023, "house", nil, 550).
		Price("Sebastopol", "VIC", "Ballarat", 2023, "house", nil, 450000)

	registry := schema.Default()
	logger := zap.NewNop()
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	data := db.Service()
	contexts := store.NewMemoryContextStore(0)
	normalizer := plan.NewNormalizer(registry)

	averager := yield.NewStateAverager(store.NewMemoryAverageCache(0), service.LoadStateAverage(data), logger, metrics)
	engine := service.NewEngine(data, averager, registry, logger)
	assistant := service.NewAssistant(service.AssistantDeps{
		Contexts:    contexts,
		Classifier:  conversation.NewHeuristicClassifier(registry),
		Flow:        conversation.NewFlow(contexts, registry, 0.5, logger, metrics),
		Planner:     service.NewHeuristicPlanner(registry),
		Normalizer:  normalizer,
		Directory:   repository.NewSuburbDirectory(data),
		Nearby:      repository.NewLGANearby(data),
		Engine:      engine,
		NearbyLimit: 2,
		Logger:      logger,
		Metrics:     metrics,
	})

	return NewRouter(RouterConfig{
		Build:    BuildInfo{Version: "test"},
		Gatherer: reg,
		Chat:     NewChatHandler(assistant, logger),
		Execute:  NewExecuteHandler(normalizer, registry, engine),
		Sessions: NewSessionHandler(contexts),
		Logger:   logger,
	})
}

func do(router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestChat(t *testing.T) {
	router := newTestRouter(t)

	w := do(router, http.MethodPost, "/api/v1/chat", gin.H{"message": "What's the yield in Ballarat?"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp model.TurnResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, model.KindAnswer, resp.Kind)
	_, err := uuid.Parse(resp.SessionID)
	assert.NoError(t, err)
	require.NotNil(t, resp.Result)
	require.NotNil(t, resp.Result.LatestYield)
	require.NotNil(t, resp.Result.LatestYield.House)
	assert.Equal(t, 5.2, *resp.Result.LatestYield.House)

	// the session context is now readable and resettable
	w = do(router, http.MethodGet, "/api/v1/sessions/"+resp.SessionID+"/context", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got struct {
		Context model.UserContext `json:"context"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "Ballarat", got.Context.Suburb)
	assert.Equal(t, []string{"Sebastopol"}, got.Context.NearbySuburbs)

	w = do(router, http.MethodDelete, "/api/v1/sessions/"+resp.SessionID+"/context", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(router, http.MethodGet, "/api/v1/sessions/"+resp.SessionID+"/context", nil)
	got.Context = model.UserContext{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Empty(t, got.Context.Suburb)
}

func TestChatValidation(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		name string
		body any
		want string
	}{
		{"missing message", gin.H{}, "Message must satisfy required"},
		{"bad session", gin.H{"message": "hi", "session_id": "abc"}, "SessionID must satisfy uuid"},
		{"bad role", gin.H{"message": "hi", "history": []gin.H{{"role": "system", "content": "x"}}}, "Role must satisfy oneof"},
		{"blank message", gin.H{"message": "   "}, "message is empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(router, http.MethodPost, "/api/v1/chat", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), tt.want)
		})
	}
}

func TestChatStream(t *testing.T) {
	router := newTestRouter(t)

	w := do(router, http.MethodPost, "/api/v1/chat/stream", gin.H{"message": "yield in Ballarat"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/event-stream")

	body := w.Body.String()
	order := []string{"event: start", "event: classified", "event: planned", "event: result", "event: done"}
	last := -1
	for _, ev := range order {
		idx := strings.Index(body, ev)
		require.Greater(t, idx, last, "event %q out of order in %s", ev, body)
		last = idx
	}
}

func TestExecute(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		name     string
		body     any
		wantCode int
	}{
		{"valid plan", gin.H{"plan": gin.H{"actions": []string{"yield_latest"}, "suburb": "Ballarat", "state": "vic"}}, http.StatusOK},
		{"missing suburb", gin.H{"plan": gin.H{"actions": []string{"yield_latest"}}}, http.StatusUnprocessableEntity},
		{"unknown actions", gin.H{"plan": gin.H{"actions": []string{"drop_tables"}, "suburb": "Ballarat"}}, http.StatusBadRequest},
		{"no plan", gin.H{}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(router, http.MethodPost, "/api/v1/execute", tt.body)
			assert.Equal(t, tt.wantCode, w.Code, w.Body.String())
		})
	}

	w := do(router, http.MethodPost, "/api/v1/execute", tests[0].body)
	var bundle model.ResultBundle
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &bundle))
	assert.Equal(t, "VIC", bundle.State)
	require.NotNil(t, bundle.LatestYield)
	assert.NotNil(t, bundle.LatestYield.House)
}

func TestOperationalEndpoints(t *testing.T) {
	router := newTestRouter(t)

	w := do(router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")

	w = do(router, http.MethodGet, "/version", nil)
	assert.Contains(t, w.Body.String(), `"version":"test"`)

	do(router, http.MethodPost, "/api/v1/chat", gin.H{"message": "hello"})
	w = do(router, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `suburbiq_conversation_turns_total{kind="greeting"} 1`)

	w = do(router, http.MethodGet, "/api/v1/sessions/not-a-uuid/context", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(router, http.MethodGet, "/nowhere", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
