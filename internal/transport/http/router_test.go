package httptransport_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ErlanBelekov/offboarding-scheduler/internal/domain"
	"github.com/ErlanBelekov/offboarding-scheduler/internal/infrastructure/sqlite"
	httptransport "github.com/ErlanBelekov/offboarding-scheduler/internal/transport/http"
	"github.com/ErlanBelekov/offboarding-scheduler/internal/transport/http/handler"
	"github.com/ErlanBelekov/offboarding-scheduler/internal/usecase"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const testKey = "router-test-secret-that-is-32-chars"

func init() {
	gin.SetMode(gin.TestMode)
}

// stepsExecutor reports every planned step as done without calling anything.
type stepsExecutor struct{}

func (stepsExecutor) Run(_ context.Context, a *domain.ScheduledAction) ([]domain.StepResult, error) {
	return []domain.StepResult{
		{Action: "Disable Account", Status: domain.StepSuccess, Message: "Account disabled"},
	}, nil
}

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()
	db, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "router.sqlite"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	uc := usecase.NewScheduledActionUsecase(sqlite.NewScheduledActionRepository(db), stepsExecutor{}, logger)
	return httptransport.NewRouter(logger, handler.NewScheduledActionHandler(uc, logger), []byte(testKey))
}

func bearer(t *testing.T, tenant, owner string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": owner,
		"tid": tenant,
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testKey))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return "Bearer " + s
}

func call(t *testing.T, r *gin.Engine, auth, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRouter_RequiresAuth(t *testing.T) {
	r := newRouter(t)
	for _, path := range []string{"/scheduled", "/templates"} {
		if w := call(t, r, "", http.MethodGet, path, ""); w.Code != http.StatusUnauthorized {
			t.Errorf("GET %s = %d, want 401", path, w.Code)
		}
	}
}

func TestRouter_ScheduleExecuteLifecycle(t *testing.T) {
	r := newRouter(t)
	owner := bearer(t, "tenant-1", "owner-1")

	w := call(t, r, owner, http.MethodPost, "/scheduled", `{
		"user_id": "u-1", "user_display_name": "Ada Lovelace", "user_email": "ada@example.com",
		"scheduled_date": "2026-03-15", "scheduled_time": "17:00", "timezone": "America/New_York",
		"template": "standard"
	}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d: %s", w.Code, w.Body.String())
	}
	var created struct {
		ID          string    `json:"id"`
		ScheduledAt time.Time `json:"scheduled_at"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}
	if want := time.Date(2026, 3, 15, 21, 0, 0, 0, time.UTC); !created.ScheduledAt.Equal(want) {
		t.Errorf("scheduled_at = %v, want %v", created.ScheduledAt, want)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}

	// Another owner in the same tenant does not see it.
	other := bearer(t, "tenant-1", "owner-2")
	if w := call(t, r, other, http.MethodGet, "/scheduled/"+created.ID, ""); w.Code != http.StatusNotFound {
		t.Errorf("other owner get = %d, want 404", w.Code)
	}

	w = call(t, r, owner, http.MethodPost, "/scheduled/"+created.ID+"/execute", "")
	if w.Code != http.StatusOK {
		t.Fatalf("execute = %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"status":"completed"`) {
		t.Errorf("execute body = %s", w.Body.String())
	}

	if w := call(t, r, owner, http.MethodPost, "/scheduled/"+created.ID+"/execute", ""); w.Code != http.StatusConflict {
		t.Errorf("second execute = %d, want 409", w.Code)
	}
	if w := call(t, r, owner, http.MethodPut, "/scheduled/"+created.ID, `{"scheduled_time":"09:00"}`); w.Code != http.StatusConflict {
		t.Errorf("update after run = %d, want 409", w.Code)
	}
	if w := call(t, r, owner, http.MethodDelete, "/scheduled/"+created.ID, ""); w.Code != http.StatusNoContent {
		t.Errorf("delete = %d, want 204", w.Code)
	}
	if w := call(t, r, owner, http.MethodGet, "/scheduled/"+created.ID, ""); w.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", w.Code)
	}
}

func TestRouter_InvalidStatusFilter(t *testing.T) {
	r := newRouter(t)
	w := call(t, r, bearer(t, "tenant-1", "owner-1"), http.MethodGet, "/scheduled?status=done", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}
