package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"example.com/tripboard/internal/auth"
	"example.com/tripboard/internal/catalog"
	"example.com/tripboard/internal/group"
	"example.com/tripboard/internal/live"
	"example.com/tripboard/internal/planner"
	"example.com/tripboard/internal/store"
)

func newTestMux(t *testing.T) *http.ServeMux {
	t.Helper()

	mem := store.NewMemory(nil)
	queries := live.NewManager(mem)
	mem.SetSink(queries)

	handler := NewHandler(
		catalog.NewService(mem, queries),
		planner.NewService(mem, queries),
		group.NewService(mem),
	)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	return mux
}

func authed(req *http.Request, uid, name string, scopes ...string) *http.Request {
	scopeSet := make(map[string]struct{}, len(scopes))
	for _, s := range scopes {
		scopeSet[s] = struct{}{}
	}
	claims := &auth.Claims{
		Subject:     uid,
		DisplayName: name,
		Scopes:      scopeSet,
		ExpiresAt:   time.Now().Add(time.Hour),
	}
	return req.WithContext(auth.WithClaims(req.Context(), claims))
}

func TestCreateActivityPersists(t *testing.T) {
	mux := newTestMux(t)

	body := `{"name":"Marché de Gwangjang","category":"Food","googleQuery":"Gwangjang Market Seoul","rating":"4.5","averagePriceKrw":""}`
	req := authed(httptest.NewRequest(http.MethodPost, "/v1/activities", strings.NewReader(body)),
		"uid-1", "Camille", auth.ScopeTripWrite)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rr.Code, rr.Body.String())
	}

	var created map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if created["id"] == "" {
		t.Fatal("expected generated id")
	}

	listRR := httptest.NewRecorder()
	mux.ServeHTTP(listRR, httptest.NewRequest(http.MethodGet, "/v1/activities", nil))
	if listRR.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", listRR.Code)
	}

	var list struct {
		Items []map[string]any `json:"items"`
	}
	if err := json.Unmarshal(listRR.Body.Bytes(), &list); err != nil {
		t.Fatalf("failed to decode list: %v", err)
	}
	if len(list.Items) != 1 {
		t.Fatalf("expected 1 item got %d", len(list.Items))
	}
	item := list.Items[0]
	if item["mapsLink"] != "Gwangjang Market Seoul" {
		t.Fatalf("expected maps link fallback to the place query, got %v", item["mapsLink"])
	}
	if item["rating"] != 4.5 {
		t.Fatalf("expected rating 4.5 got %v", item["rating"])
	}
	if item["averagePriceKrw"] != nil {
		t.Fatalf("expected empty price to stay null, got %v", item["averagePriceKrw"])
	}
	if item["createBy"] != "uid-1" || item["createByName"] != "Camille" {
		t.Fatalf("unexpected ownership stamp: %v / %v", item["createBy"], item["createByName"])
	}
}

func TestCreateActivityRequiresToken(t *testing.T) {
	mux := newTestMux(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/activities", strings.NewReader(`{"name":"Palais","category":"Culture"}`))
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rr.Code)
	}
}

func TestCreateActivityRequiresWriteScope(t *testing.T) {
	mux := newTestMux(t)

	req := authed(httptest.NewRequest(http.MethodPost, "/v1/activities", strings.NewReader(`{"name":"Palais","category":"Culture"}`)),
		"uid-1", "Camille", auth.ScopeTripRead)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", rr.Code)
	}
}

func TestCreateActivityValidationMessage(t *testing.T) {
	mux := newTestMux(t)

	req := authed(httptest.NewRequest(http.MethodPost, "/v1/activities", strings.NewReader(`{"name":"x","category":"Culture"}`)),
		"uid-1", "Camille", auth.ScopeTripWrite)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d: %s", rr.Code, rr.Body.String())
	}

	var resp map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["type"] != "validation_failed" {
		t.Fatalf("unexpected error type %q", resp["type"])
	}
	if !strings.Contains(resp["detail"], "Le nom est requis") {
		t.Fatalf("expected a user-facing French message, got %q", resp["detail"])
	}
}

func TestListActivitiesFiltersByOwner(t *testing.T) {
	mux := newTestMux(t)

	createActivity(t, mux, "uid-1", "Camille", "Palais Gyeongbokgung")
	createActivity(t, mux, "uid-2", "Théo", "Marché de Gwangjang")

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/activities?owner=uid-1", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}

	var list struct {
		Items []map[string]any `json:"items"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
		t.Fatalf("failed to decode list: %v", err)
	}
	if len(list.Items) != 1 || list.Items[0]["name"] != "Palais Gyeongbokgung" {
		t.Fatalf("unexpected owner filter result: %+v", list.Items)
	}

	emptyRR := httptest.NewRecorder()
	mux.ServeHTTP(emptyRR, httptest.NewRequest(http.MethodGet, "/v1/activities?owner=", nil))
	if emptyRR.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", emptyRR.Code)
	}
	if err := json.Unmarshal(emptyRR.Body.Bytes(), &list); err != nil {
		t.Fatalf("failed to decode list: %v", err)
	}
	if len(list.Items) != 0 {
		t.Fatalf("expected empty list for absent owner, got %d items", len(list.Items))
	}
}

func TestToggleFavoriteRoundTrip(t *testing.T) {
	mux := newTestMux(t)

	id := createActivity(t, mux, "uid-1", "Camille", "Palais Gyeongbokgung")

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, authed(httptest.NewRequest(http.MethodPost, "/v1/activities/"+id+"/favorite", nil),
		"uid-2", "Théo", auth.ScopeTripWrite))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204 got %d: %s", rr.Code, rr.Body.String())
	}

	favRR := httptest.NewRecorder()
	mux.ServeHTTP(favRR, httptest.NewRequest(http.MethodGet, "/v1/activities?favorited=uid-2", nil))

	var list struct {
		Items []map[string]any `json:"items"`
	}
	if err := json.Unmarshal(favRR.Body.Bytes(), &list); err != nil {
		t.Fatalf("failed to decode list: %v", err)
	}
	if len(list.Items) != 1 {
		t.Fatalf("expected 1 favorited item got %d", len(list.Items))
	}
}

func TestToggleFavoriteOffRemovesEntry(t *testing.T) {
	mux := newTestMux(t)

	id := createActivity(t, mux, "uid-1", "Camille", "Palais Gyeongbokgung")

	toggle := func() {
		// Request contexts end with the request, tearing down the catalog
		// subscription behind the toggle's membership cache.
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, authed(httptest.NewRequest(http.MethodPost, "/v1/activities/"+id+"/favorite", nil).WithContext(ctx),
			"uid-2", "Théo", auth.ScopeTripWrite))
		if rr.Code != http.StatusNoContent {
			t.Fatalf("expected 204 got %d: %s", rr.Code, rr.Body.String())
		}
	}

	favorited := func() int {
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/activities?favorited=uid-2", nil))
		var list struct {
			Items []map[string]any `json:"items"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
			t.Fatalf("failed to decode list: %v", err)
		}
		return len(list.Items)
	}

	toggle()
	if favorited() != 1 {
		t.Fatal("expected the first toggle to favorite the activity")
	}

	// A toggle racing a not-yet-refreshed cache may re-add, which the
	// idempotent set ops absorb; once the cache catches up a toggle must
	// remove the entry.
	deadline := time.Now().Add(2 * time.Second)
	for {
		toggle()
		if favorited() == 0 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("toggle on an existing favorite must remove it")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestPlanningMoveRejectsImpossibleDate(t *testing.T) {
	mux := newTestMux(t)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, authed(httptest.NewRequest(http.MethodPost, "/v1/planning", strings.NewReader(`{"title":"Palais","when":"2026-03-05"}`)),
		"uid-1", "Camille", auth.ScopeTripWrite))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rr.Code, rr.Body.String())
	}
	var created map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	moveRR := httptest.NewRecorder()
	mux.ServeHTTP(moveRR, authed(httptest.NewRequest(http.MethodPost, "/v1/planning/"+created["id"]+"/move", strings.NewReader(`{"date":"2024-13-40"}`)),
		"uid-1", "Camille", auth.ScopeTripWrite))
	if moveRR.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", moveRR.Code)
	}

	listRR := httptest.NewRecorder()
	mux.ServeHTTP(listRR, httptest.NewRequest(http.MethodGet, "/v1/planning?date=2026-03-05", nil))
	var list struct {
		Items []map[string]any `json:"items"`
	}
	if err := json.Unmarshal(listRR.Body.Bytes(), &list); err != nil {
		t.Fatalf("failed to decode list: %v", err)
	}
	if len(list.Items) != 1 {
		t.Fatalf("item should not have moved, got %d items on the original date", len(list.Items))
	}
}

func TestMembershipUpsert(t *testing.T) {
	mux := newTestMux(t)

	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, authed(httptest.NewRequest(http.MethodPost, "/v1/membership", nil),
			"uid-1", "Camille", auth.ScopeTripWrite))
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
		}

		var g struct {
			Name    string                    `json:"name"`
			Members map[string]map[string]any `json:"members"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &g); err != nil {
			t.Fatalf("failed to decode group: %v", err)
		}
		if g.Name != group.DefaultGroupName {
			t.Fatalf("unexpected group name %q", g.Name)
		}
		if len(g.Members) != 1 {
			t.Fatalf("expected a single member entry, got %d", len(g.Members))
		}
	}
}

func TestStreamActivitiesSendsInitialSnapshot(t *testing.T) {
	mux := newTestMux(t)
	createActivity(t, mux, "uid-1", "Camille", "Palais Gyeongbokgung")

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/v1/activities/stream", nil).WithContext(ctx)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if ct := rr.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "data: ") || !strings.Contains(body, "Palais Gyeongbokgung") {
		t.Fatalf("expected an SSE frame with the catalog snapshot, got %q", body)
	}
}

func TestNullableNumberDecoding(t *testing.T) {
	cases := []struct {
		in      string
		want    *float64
		wantErr bool
	}{
		{in: `null`, want: nil},
		{in: `""`, want: nil},
		{in: `"  "`, want: nil},
		{in: `4.5`, want: ptr(4.5)},
		{in: `"4.5"`, want: ptr(4.5)},
		{in: `"abc"`, wantErr: true},
	}

	for _, tc := range cases {
		var n NullableNumber
		err := json.Unmarshal([]byte(tc.in), &n)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%s: expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: unexpected error %v", tc.in, err)
		}
		switch {
		case tc.want == nil && n.Value != nil:
			t.Fatalf("%s: expected nil got %v", tc.in, *n.Value)
		case tc.want != nil && (n.Value == nil || *n.Value != *tc.want):
			t.Fatalf("%s: expected %v got %v", tc.in, *tc.want, n.Value)
		}
	}
}

func createActivity(t *testing.T, mux *http.ServeMux, uid, name, activityName string) string {
	t.Helper()

	body := `{"name":"` + activityName + `","category":"Culture"}`
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, authed(httptest.NewRequest(http.MethodPost, "/v1/activities", strings.NewReader(body)),
		uid, name, auth.ScopeTripWrite))
	if rr.Code != http.StatusCreated {
		t.Fatalf("create failed: %d %s", rr.Code, rr.Body.String())
	}

	var created map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return created["id"]
}

func ptr(f float64) *float64 { return &f }
