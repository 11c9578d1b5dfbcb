package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pcba_station/pkg/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T) (*Server, *CommandService, *History, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pcba_test.txt")
	commands := NewCommandService(path)
	history := NewHistory(10)
	return NewServer(commands, history, nil), commands, history, path
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func readShared(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestStartTestWritesSharedFile(t *testing.T) {
	s, commands, _, path := newTestServer(t)

	w := do(t, s, http.MethodPost, "/api/v1/start-test", `{"serial":"NL20231203001"}`)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	body := decode(t, w)
	assert.Equal(t, "TEST NL20231203001", body["line"])
	assert.Equal(t, "TEST NL20231203001\n", readShared(t, path))

	id, _ := body["submission_id"].(string)
	sub, ok := commands.GetSubmission(id)
	require.True(t, ok)
	assert.Equal(t, SubmissionPending, sub.Status)
	assert.Equal(t, "test", sub.Kind)
}

func TestStartTestRequiresSerial(t *testing.T) {
	s, _, _, path := newTestServer(t)

	w := do(t, s, http.MethodPost, "/api/v1/start-test", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestStartTestRejectsWhitespaceInSerial(t *testing.T) {
	s, commands, _, path := newTestServer(t)

	for _, serial := range []string{"A B", " A", "A\tB"} {
		body, _ := json.Marshal(map[string]string{"serial": serial})
		w := do(t, s, http.MethodPost, "/api/v1/start-test", string(body))
		assert.Equal(t, http.StatusBadRequest, w.Code, "serial %q", serial)
	}

	assert.Empty(t, commands.ListSubmissions())
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestSearchWritesSharedFile(t *testing.T) {
	s, _, _, path := newTestServer(t)

	w := do(t, s, http.MethodPost, "/api/v1/search", "")
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "SEARCH\n", readShared(t, path))
}

func TestCommandRejectsInvalidLines(t *testing.T) {
	s, _, _, _ := newTestServer(t)

	for _, line := range []string{"   ", "TEST", "A\nB"} {
		body, _ := json.Marshal(map[string]string{"line": line})
		w := do(t, s, http.MethodPost, "/api/v1/command", string(body))
		assert.Equal(t, http.StatusBadRequest, w.Code, "line %q", line)
	}
}

func TestCommandLegacyLine(t *testing.T) {
	s, _, _, path := newTestServer(t)

	w := do(t, s, http.MethodPost, "/api/v1/command", `{"line":"  NL20231203001 "}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "NL20231203001\n", readShared(t, path))
}

func TestSubmitConflictsWithPendingCommand(t *testing.T) {
	s, _, _, path := newTestServer(t)

	require.Equal(t, http.StatusAccepted, do(t, s, http.MethodPost, "/api/v1/search", "").Code)
	w := do(t, s, http.MethodPost, "/api/v1/start-test", `{"serial":"X"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "SEARCH\n", readShared(t, path))

	// 监看器取走命令后可以再次提交
	require.NoError(t, os.Truncate(path, 0))
	w = do(t, s, http.MethodPost, "/api/v1/start-test", `{"serial":"X"}`)
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestMarkDispatched(t *testing.T) {
	s, commands, _, path := newTestServer(t)

	require.Equal(t, http.StatusAccepted, do(t, s, http.MethodPost, "/api/v1/start-test", `{"serial":"A"}`).Code)
	commands.MarkDispatched(models.Command{Kind: models.CommandTest, Serial: "B"})

	subs := commands.ListSubmissions()
	require.Len(t, subs, 1)
	assert.Equal(t, SubmissionPending, subs[0].Status)

	commands.MarkDispatched(models.Command{Kind: models.CommandTest, Serial: "A"})
	subs = commands.ListSubmissions()
	assert.Equal(t, SubmissionDispatched, subs[0].Status)
	assert.NotNil(t, subs[0].DispatchedAt)

	require.NoError(t, os.Truncate(path, 0))
	w := do(t, s, http.MethodGet, "/api/v1/submissions", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["total"])

	w = do(t, s, http.MethodGet, "/api/v1/submission/"+subs[0].ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, SubmissionDispatched, decode(t, w)["status"])

	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/api/v1/submission/missing", "").Code)
}

func TestCleanupSubmissions(t *testing.T) {
	_, commands, _, _ := newTestServer(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	commands.now = func() time.Time { return base }

	_, err := commands.Submit("SEARCH")
	require.NoError(t, err)
	commands.MarkDispatched(models.Command{Kind: models.CommandSearch})

	commands.now = func() time.Time { return base.Add(2 * time.Hour) }
	assert.Equal(t, 1, commands.CleanupSubmissions(time.Hour))
	assert.Empty(t, commands.ListSubmissions())
}

func TestResultsFilterBySerial(t *testing.T) {
	s, _, history, _ := newTestServer(t)

	history.Observe(&models.StageResult{Serial: "A", Stage: models.StageWifi, Status: models.StatusTesting})
	history.Observe(&models.StageResult{Serial: "B", Stage: models.StageWifi, Status: models.StatusTesting})
	history.Observe(&models.StageResult{Serial: "A", Stage: models.StageWifi, Status: models.StatusPass})

	w := do(t, s, http.MethodGet, "/api/v1/results?serial=A", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.EqualValues(t, 2, body["total"])

	results := body["results"].([]interface{})
	last := results[1].(map[string]interface{})
	assert.Equal(t, "pass", last["status"])

	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/v1/results?limit=x", "").Code)
}

func TestHistoryRingBuffer(t *testing.T) {
	h := NewHistory(3)
	for i, serial := range []string{"A", "B", "C", "D"} {
		h.Observe(&models.StageResult{Serial: serial, Timestamp: time.Unix(int64(i), 0).UTC().Format(models.TimestampLayout)})
	}

	assert.Equal(t, 3, h.Len())
	recent := h.Recent("", 0)
	require.Len(t, recent, 3)
	assert.Equal(t, "B", recent[0].Serial)
	assert.Equal(t, "D", recent[2].Serial)

	limited := h.Recent("", 1)
	require.Len(t, limited, 1)
	assert.Equal(t, "D", limited[0].Serial)
}

func TestStagesAndHealth(t *testing.T) {
	s, _, _, _ := newTestServer(t)

	w := do(t, s, http.MethodGet, "/api/v1/stages", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["stages"], 5)

	w = do(t, s, http.MethodGet, "/api/v1/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "healthy", body["status"])
	assert.EqualValues(t, 0, body["total_submissions"])
}

func TestMetricsRoute(t *testing.T) {
	s, _, _, _ := newTestServer(t)

	w := do(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
}
