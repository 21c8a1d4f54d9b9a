package directory

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ErlanBelekov/offboarding-scheduler/internal/domain"
)

// fakeGraph records requests and answers from a path -> handler table.
type fakeGraph struct {
	mu       sync.Mutex
	requests []string
	routes   map[string]func(w http.ResponseWriter, r *http.Request)
}

func (f *fakeGraph) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := r.Method + " " + r.URL.Path
	f.mu.Lock()
	f.requests = append(f.requests, key)
	f.mu.Unlock()

	if h, ok := f.routes[key]; ok {
		h(w, r)
		return
	}
	graphError(w, http.StatusNotFound, "Request_ResourceNotFound", "Resource '"+r.URL.Path+"' does not exist.")
}

func graphError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]string{"code": code, "message": msg}})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestGraph(t *testing.T, routes map[string]func(w http.ResponseWriter, r *http.Request)) (*GraphDirectory, *fakeGraph) {
	t.Helper()
	fake := &fakeGraph{routes: routes}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return newGraphDirectory(srv.Client(), srv.URL+"/v1.0/"), fake
}

func TestLookupUser_Found(t *testing.T) {
	g, _ := newTestGraph(t, map[string]func(http.ResponseWriter, *http.Request){
		"GET /v1.0/users/u1": func(w http.ResponseWriter, r *http.Request) {
			if !strings.Contains(r.URL.RawQuery, "select") {
				t.Errorf("expected $select in query, got %q", r.URL.RawQuery)
			}
			writeJSON(w, map[string]any{"id": "u1", "displayName": "Ada", "mail": "ada@example.com", "accountEnabled": true})
		},
	})

	u, err := g.LookupUser(context.Background(), "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.DisplayName != "Ada" || !u.AccountEnabled {
		t.Errorf("unexpected user: %+v", u)
	}
}

func TestLookupUser_MissingIsSubjectNotFound(t *testing.T) {
	g, _ := newTestGraph(t, nil)

	_, err := g.LookupUser(context.Background(), "gone")
	if !errors.Is(err, domain.ErrSubjectNotFound) {
		t.Fatalf("expected ErrSubjectNotFound, got %v", err)
	}
}

func TestDisableAccount_PatchesAccountEnabled(t *testing.T) {
	var got map[string]any
	g, _ := newTestGraph(t, map[string]func(http.ResponseWriter, *http.Request){
		"PATCH /v1.0/users/u1": func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(body, &got)
			w.WriteHeader(http.StatusNoContent)
		},
	})

	if err := g.DisableAccount(context.Background(), "u1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v, ok := got["accountEnabled"]; !ok || v != false {
		t.Errorf("expected accountEnabled=false, got %v", got)
	}
}

func TestRevokeSessions_SurfacesUpstreamMessageVerbatim(t *testing.T) {
	const msg = "Insufficient privileges to complete the operation."
	g, _ := newTestGraph(t, map[string]func(http.ResponseWriter, *http.Request){
		"POST /v1.0/users/u1/revokeSignInSessions": func(w http.ResponseWriter, _ *http.Request) {
			graphError(w, http.StatusForbidden, "Authorization_RequestDenied", msg)
		},
	})

	err := g.RevokeSessions(context.Background(), "u1")
	if err == nil {
		t.Fatal("expected error")
	}
	if err.Error() != msg {
		t.Errorf("message = %q, want %q", err.Error(), msg)
	}
	var gerr *GraphError
	if !errors.As(err, &gerr) || gerr.StatusCode != http.StatusForbidden {
		t.Errorf("expected GraphError with 403, got %#v", err)
	}
}

func TestRemoveFromAllGroups_FollowsPagingAndReportsFailures(t *testing.T) {
	var srvURL string
	g, fake := newTestGraph(t, map[string]func(http.ResponseWriter, *http.Request){
		"GET /v1.0/users/u1/memberOf/microsoft.graph.group": func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("page") == "2" {
				writeJSON(w, map[string]any{"value": []map[string]string{{"id": "g3", "displayName": "All Staff"}}})
				return
			}
			writeJSON(w, map[string]any{
				"value":           []map[string]string{{"id": "g1", "displayName": "Eng"}, {"id": "g2", "displayName": "Sales"}},
				"@odata.nextLink": srvURL + "/v1.0/users/u1/memberOf/microsoft.graph.group?page=2",
			})
		},
		"DELETE /v1.0/groups/g1/members/u1/$ref": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		},
		"DELETE /v1.0/groups/g2/members/u1/$ref": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		},
		"DELETE /v1.0/groups/g3/members/u1/$ref": func(w http.ResponseWriter, _ *http.Request) {
			graphError(w, http.StatusBadRequest, "Request_BadRequest", "Cannot update a dynamic group.")
		},
	})
	srvURL = strings.TrimSuffix(g.baseURL, "/v1.0")

	removed, err := g.RemoveFromAllGroups(context.Background(), "u1")
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}
	if err == nil || !strings.Contains(err.Error(), "All Staff: Cannot update a dynamic group.") {
		t.Errorf("expected dynamic group failure, got %v", err)
	}

	deletes := 0
	for _, req := range fake.requests {
		if strings.HasPrefix(req, "DELETE ") {
			deletes++
		}
	}
	if deletes != 3 {
		t.Errorf("expected every group to be attempted, got %d deletes", deletes)
	}
}

func TestRemoveDevices_DeletesOwnedDevices(t *testing.T) {
	g, _ := newTestGraph(t, map[string]func(http.ResponseWriter, *http.Request){
		"GET /v1.0/users/u1/ownedDevices/microsoft.graph.device": func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, map[string]any{"value": []map[string]string{{"id": "d1"}, {"id": "d2"}}})
		},
		"DELETE /v1.0/devices/d1": func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) },
		"DELETE /v1.0/devices/d2": func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) },
	})

	removed, err := g.RemoveDevices(context.Background(), "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}
}

func TestNewGraphDirectory_TokenRefreshOutlivesStartupContext(t *testing.T) {
	var tokens atomic.Int32
	fake := &fakeGraph{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	fake.routes = map[string]func(http.ResponseWriter, *http.Request){
		"POST /token": func(w http.ResponseWriter, r *http.Request) {
			tokens.Add(1)
			writeJSON(w, map[string]any{"access_token": "tok", "token_type": "Bearer", "expires_in": 3600})
		},
		"GET /v1.0/users/u1": func(w http.ResponseWriter, r *http.Request) {
			if got := r.Header.Get("Authorization"); got != "Bearer tok" {
				t.Errorf("Authorization = %q", got)
			}
			writeJSON(w, map[string]any{"id": "u1", "displayName": "Ada"})
		},
	}

	// The binaries pass their signal context, which is cancelled on SIGTERM
	// while claimed runs are still finishing.
	ctx, cancel := context.WithCancel(context.Background())
	g := NewGraphDirectory(ctx, GraphConfig{
		ClientID:     "app",
		ClientSecret: "secret",
		BaseURL:      srv.URL + "/v1.0",
		TokenURL:     srv.URL + "/token",
	})
	cancel()

	if _, err := g.LookupUser(context.Background(), "u1"); err != nil {
		t.Fatalf("lookup after shutdown signal: %v", err)
	}
	if n := tokens.Load(); n != 1 {
		t.Errorf("token requests = %d, want 1", n)
	}
}
