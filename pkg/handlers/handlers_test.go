package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/arnavshah/referee-scheduler-api/pkg/assignment"
	"github.com/arnavshah/referee-scheduler-api/pkg/auth"
	"github.com/arnavshah/referee-scheduler-api/pkg/database"
	"github.com/arnavshah/referee-scheduler-api/pkg/metrics"
	"github.com/arnavshah/referee-scheduler-api/pkg/models"
	"github.com/arnavshah/referee-scheduler-api/pkg/patterns"
	"github.com/arnavshah/referee-scheduler-api/pkg/tasks"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("handlers-test-secret")

type testServer struct {
	t      *testing.T
	router *gin.Engine
	runner *tasks.LocalRunner
	token  string

	game     *models.Game
	referee  *models.Referee
	other    *models.Referee
	position *models.Position
	second   *models.Position
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "handlers.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	repo := database.NewRepository(db)
	ctx := context.Background()

	level := &models.Level{Name: "Junior", WagePerGame: decimal.NewFromInt(40), AllowedDivisions: []models.Division{"U13"}}
	require.NoError(t, repo.SaveLevel(ctx, level))
	s := &testServer{t: t}
	s.position = &models.Position{Name: "Referee"}
	require.NoError(t, repo.SavePosition(ctx, s.position))
	s.second = &models.Position{Name: "Assistant"}
	require.NoError(t, repo.SavePosition(ctx, s.second))
	s.referee = &models.Referee{Name: "Ana", Email: "ana@example.com", Level: level, Available: true}
	require.NoError(t, repo.SaveReferee(ctx, s.referee))
	s.other = &models.Referee{Name: "Ben", Email: "ben@example.com", Level: level, Available: true}
	require.NoError(t, repo.SaveReferee(ctx, s.other))
	s.game = &models.Game{
		StartsAt:   time.Date(2025, 5, 10, 10, 0, 0, 0, time.UTC),
		Location:   "North Field",
		Level:      "U13",
		PayRate:    decimal.NewFromInt(30),
		RefsNeeded: 2,
	}
	require.NoError(t, repo.SaveGame(ctx, s.game))

	m := metrics.New()
	engine := assignment.New(repo, assignment.WithMetrics(m))
	reg := tasks.NewRegistry()
	s.runner = tasks.NewLocalRunner(reg)
	analyzer := patterns.New(repo, repo, engine, patterns.WithRunner(s.runner), patterns.WithMetrics(m))
	analyzer.Register(reg)

	s.router = NewRouter(&Handler{
		Engine:   engine,
		Analyzer: analyzer,
		Runner:   s.runner,
		Metrics:  m,
		Secret:   secret,
		Log:      zerolog.Nop(),
	})
	s.token, err = auth.CreateToken(secret, "admin-1", "Admin", time.Hour)
	require.NoError(t, err)
	return s
}

func (s *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	return s.doWithToken(method, path, body, "Bearer "+s.token)
}

func (s *testServer) doWithToken(method, path string, body any, authorization string) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	body := decode(t, w)
	envelope, ok := body["error"].(map[string]any)
	require.True(t, ok, w.Body.String())
	return envelope["code"].(string)
}

func TestIndex(t *testing.T) {
	s := newTestServer(t)
	w := s.doWithToken(http.MethodGet, "/", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, Version, decode(t, w)["version"])
}

func TestAuthMiddleware(t *testing.T) {
	s := newTestServer(t)

	w := s.doWithToken(http.MethodGet, "/api/patterns", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "unauthorized", errorCode(t, w))

	w = s.doWithToken(http.MethodGet, "/api/patterns", nil, "Bearer nope")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	forged, err := auth.CreateToken([]byte("other"), "admin-1", "", time.Hour)
	require.NoError(t, err)
	w = s.doWithToken(http.MethodGet, "/api/patterns", nil, "Bearer "+forged)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateAssignment(t *testing.T) {
	s := newTestServer(t)
	body := gin.H{"game_id": s.game.ID, "user_id": s.referee.ID, "position_id": s.position.ID}

	w := s.do(http.MethodPost, "/api/assignments", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	res := decode(t, w)
	created := res["assignment"].(map[string]any)
	assert.Equal(t, "admin-1", created["assigned_by"])
	assert.Equal(t, "pending", created["status"])

	w = s.do(http.MethodPost, "/api/assignments", body)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "conflict", errorCode(t, w))
}

func TestCreateAssignment_Errors(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPost, "/api/assignments", gin.H{"game_id": s.game.ID})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation_error", errorCode(t, w))

	w = s.do(http.MethodPost, "/api/assignments", gin.H{"game_id": "missing", "user_id": s.referee.ID, "position_id": s.position.ID})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", errorCode(t, w))
}

func TestCheckAssignment(t *testing.T) {
	s := newTestServer(t)
	body := gin.H{"game_id": s.game.ID, "user_id": s.referee.ID, "position_id": s.position.ID}

	w := s.do(http.MethodPost, "/api/assignments/check", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, decode(t, w)["valid"])

	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/assignments", body).Code)

	w = s.do(http.MethodPost, "/api/assignments/check", body)
	require.Equal(t, http.StatusOK, w.Code)
	res := decode(t, w)
	assert.Equal(t, false, res["valid"])
	assert.NotEmpty(t, res["blocking"])
}

func TestBulkCreate(t *testing.T) {
	s := newTestServer(t)
	path := "/api/games/" + s.game.ID + "/assignments/bulk"

	w := s.do(http.MethodPost, path, gin.H{"assignments": []gin.H{
		{"user_id": s.referee.ID, "position_id": s.position.ID},
		{"user_id": s.other.ID, "position_id": s.position.ID},
	}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	summary := decode(t, w)["summary"].(map[string]any)
	assert.Equal(t, float64(1), summary["successful"])
	assert.Equal(t, float64(1), summary["failed"])
	assert.Equal(t, true, summary["partialSuccess"])

	w = s.do(http.MethodPost, path, gin.H{"assignments": []gin.H{
		{"user_id": s.other.ID, "position_id": s.position.ID},
	}})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = s.do(http.MethodPost, path, gin.H{"assignments": []gin.H{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBulkUpdateAndRemove(t *testing.T) {
	s := newTestServer(t)
	w := s.do(http.MethodPost, "/api/assignments", gin.H{"game_id": s.game.ID, "user_id": s.referee.ID, "position_id": s.position.ID})
	require.Equal(t, http.StatusCreated, w.Code)
	id := decode(t, w)["assignment"].(map[string]any)["id"].(string)

	w = s.do(http.MethodPatch, "/api/assignments/status", gin.H{"updates": []gin.H{
		{"assignment_id": id, "status": "accepted"},
		{"assignment_id": "missing", "status": "accepted"},
	}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	summary := decode(t, w)["summary"].(map[string]any)
	assert.Equal(t, float64(1), summary["successfulUpdates"])
	assert.Equal(t, true, summary["partialSuccess"])

	w = s.do(http.MethodPatch, "/api/assignments/status", gin.H{"updates": []gin.H{
		{"assignment_id": id, "status": "bogus"},
	}})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = s.do(http.MethodPost, "/api/assignments/bulk-delete", gin.H{"assignment_ids": []string{id, "missing"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode(t, w)
	assert.Equal(t, float64(1), res["deletedCount"])
	assert.Equal(t, []any{s.game.ID}, res["affectedGames"])
}

func TestAvailableReferees(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/api/games/"+s.game.ID+"/available-referees", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	summary := decode(t, w)["summary"].(map[string]any)
	assert.Equal(t, float64(2), summary["total"])

	w = s.do(http.MethodGet, "/api/games/missing/available-referees", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListPatterns(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/api/patterns?min_frequency=2&location=North%20Field", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(0), decode(t, w)["count"])

	w = s.do(http.MethodGet, "/api/patterns?min_frequency=lots", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodGet, "/api/patterns?min_success_rate=120", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodGet, "/api/patterns?start_date=2025-01-01&end_date=2025-06-30", nil)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(http.MethodGet, "/api/patterns?start_date=2025-06-30&end_date=2025-06-30", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodGet, "/api/patterns?start_date=30/06/2025", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestApplyPattern_Unknown(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPost, "/api/patterns/missing/apply", gin.H{"game_ids": []string{s.game.ID}})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodPost, "/api/patterns/missing/apply", gin.H{"game_ids": []string{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRefreshAndTaskStatus(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPost, "/api/patterns/refresh", nil)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	res := decode(t, w)
	assert.Equal(t, patterns.TaskRefresh, res["kind"])
	id := res["task_id"].(string)
	s.runner.Wait()

	w = s.do(http.MethodGet, "/api/tasks/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, string(tasks.StateSucceeded), decode(t, w)["state"])

	w = s.do(http.MethodGet, "/api/tasks/unknown", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMetricsRoute(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/assignments",
		gin.H{"game_id": s.game.ID, "user_id": s.referee.ID, "position_id": s.position.ID}).Code)

	w := s.doWithToken(http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "referee_scheduler_assignments_created_total 1")
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusOK, bulkStatus(0, 0))
	assert.Equal(t, http.StatusOK, bulkStatus(1, 3))
	assert.Equal(t, http.StatusUnprocessableEntity, bulkStatus(0, 1))
}
