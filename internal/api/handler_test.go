package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"nodue/internal/attendance"
	"nodue/internal/recognizer"
	"nodue/internal/store"
)

type fakeExtractor struct {
	slots []attendance.SlotInput
	err   error
}

func (f fakeExtractor) Extract(context.Context, io.Reader, string) ([]attendance.SlotInput, error) {
	return f.slots, f.err
}

type sentCollections struct {
	mu   sync.Mutex
	sent []attendance.Collection
}

func (r *sentCollections) Changed(_ context.Context, c attendance.Collection, _ attendance.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, c)
	return nil
}

func (r *sentCollections) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

type testEnv struct {
	router *gin.Engine
	svc    *attendance.Service
	local  *store.Local
	synced *sentCollections
}

func newTestEnv(t *testing.T, rec Extractor, accounts AccountStore, remote Puller) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	local, err := store.OpenLocal(filepath.Join(t.TempDir(), "nodue.db"))
	if err != nil {
		t.Fatalf("OpenLocal: %v", err)
	}
	t.Cleanup(func() { local.Close() })

	synced := &sentCollections{}
	svc := attendance.NewService(local, synced)
	if err := svc.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	tokens := TokenConfig{Issuer: "nodue-test", SigningKey: "k", AccessTTL: time.Minute, RefreshTTL: time.Hour}
	ah := NewAccountHandler(svc, local, accounts, remote, tokens)

	r := gin.New()
	RegisterRoutes(r, NewHandler(svc, rec, ah))
	return &testEnv{router: r, svc: svc, local: local, synced: synced}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return e.serve(t, req)
}

func (e *testEnv) serve(t *testing.T, req *http.Request) (int, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	var out map[string]any
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode %s: %v", w.Body.String(), err)
		}
	}
	return w.Code, out
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestProfileLifecycle(t *testing.T) {
	env := newTestEnv(t, nil, nil, nil)

	if code, body := env.do(t, http.MethodGet, "/v1/profile", nil); code != http.StatusNotFound || errorCode(body) != string(CodeNotFound) {
		t.Fatalf("missing profile: %d %v", code, body)
	}
	if code, _ := env.do(t, http.MethodPost, "/v1/profile", map[string]any{"name": "Asha"}); code != http.StatusBadRequest {
		t.Fatalf("incomplete profile accepted: %d", code)
	}
	code, body := env.do(t, http.MethodPost, "/v1/profile", map[string]any{"name": "Asha", "institution_name": "IIT", "semester": "4"})
	if code != http.StatusCreated {
		t.Fatalf("create: %d %v", code, body)
	}
	if goal := body["profile"].(map[string]any)["attendance_goal"]; goal != float64(75) {
		t.Fatalf("default goal = %v", goal)
	}

	code, body = env.do(t, http.MethodPut, "/v1/profile/goal", map[string]any{"attendance_goal": 120})
	if code != http.StatusOK || body["profile"].(map[string]any)["attendance_goal"] != float64(100) {
		t.Fatalf("goal not clamped: %d %v", code, body)
	}

	code, body = env.do(t, http.MethodPost, "/v1/profile/advanced-mode", nil)
	if code != http.StatusOK || body["profile"].(map[string]any)["use_advanced_mode"] != true {
		t.Fatalf("toggle: %d %v", code, body)
	}
	code, body = env.do(t, http.MethodPost, "/v1/profile/advanced-mode", map[string]any{"enabled": true})
	if code != http.StatusOK || body["profile"].(map[string]any)["use_advanced_mode"] != true {
		t.Fatalf("explicit set: %d %v", code, body)
	}
}

func TestMarkDayAndDashboard(t *testing.T) {
	env := newTestEnv(t, nil, nil, nil)
	env.do(t, http.MethodPost, "/v1/profile", map[string]any{"name": "Asha", "institution_name": "IIT", "semester": "4"})

	code, body := env.do(t, http.MethodPost, "/v1/days/2024-03-04", map[string]any{"status": "present"})
	if code != http.StatusOK || body["outcome"] != "inserted" {
		t.Fatalf("mark: %d %v", code, body)
	}
	env.do(t, http.MethodPost, "/v1/days/2024-03-05", map[string]any{"status": "ABSENT"})

	code, body = env.do(t, http.MethodPost, "/v1/days/2024-03-04", map[string]any{"status": "PRESENT"})
	if code != http.StatusOK || body["outcome"] != "removed" {
		t.Fatalf("toggle off: %d %v", code, body)
	}

	tests := map[string]struct {
		path   string
		status string
		code   int
	}{
		"future":     {"/v1/days/2999-01-01", "PRESENT", http.StatusBadRequest},
		"bad date":   {"/v1/days/04-03-2024", "PRESENT", http.StatusBadRequest},
		"bad status": {"/v1/days/2024-03-04", "LATE", http.StatusBadRequest},
	}
	for name, tc := range tests {
		if code, _ := env.do(t, http.MethodPost, tc.path, map[string]any{"status": tc.status}); code != tc.code {
			t.Fatalf("%s: %d want %d", name, code, tc.code)
		}
	}

	code, body = env.do(t, http.MethodGet, "/v1/dashboard", nil)
	if code != http.StatusOK {
		t.Fatalf("dashboard: %d %v", code, body)
	}
	stats := body["stats"].(map[string]any)
	if stats["working_days"] != float64(1) || stats["absent"] != float64(1) {
		t.Fatalf("stats: %v", stats)
	}
	forecast := stats["forecast"].(map[string]any)
	if forecast["kind"] != "needs_attendance" || forecast["sessions"] != float64(3) {
		t.Fatalf("forecast: %v", forecast)
	}
}

func TestTimetableAndSchedule(t *testing.T) {
	env := newTestEnv(t, nil, nil, nil)

	code, body := env.do(t, http.MethodPost, "/v1/timetable", map[string]any{"subject_name": "Math", "day": 1, "start_time": "09:00", "end_time": "10:00"})
	if code != http.StatusCreated {
		t.Fatalf("add slot: %d %v", code, body)
	}
	slotID := body["slot"].(map[string]any)["id"].(string)

	if code, body := env.do(t, http.MethodPost, "/v1/timetable", map[string]any{"subject_name": "Math", "day": 9, "start_time": "09:00", "end_time": "10:00"}); code != http.StatusBadRequest {
		t.Fatalf("invalid slot accepted: %d %v", code, body)
	}

	code, body = env.do(t, http.MethodPost, "/v1/subjects", map[string]any{"date": "2024-03-04", "subject_name": "Math", "status": "ABSENT", "slot_id": slotID})
	if code != http.StatusOK || body["outcome"] != "inserted" {
		t.Fatalf("mark subject: %d %v", code, body)
	}

	code, body = env.do(t, http.MethodGet, "/v1/schedule/2024-03-04", nil)
	if code != http.StatusOK {
		t.Fatalf("schedule: %d %v", code, body)
	}
	items := body["items"].([]any)
	if len(items) != 1 || items[0].(map[string]any)["status"] != "ABSENT" {
		t.Fatalf("schedule items: %v", items)
	}

	if code, _ := env.do(t, http.MethodDelete, "/v1/timetable/nope", nil); code != http.StatusNotFound {
		t.Fatalf("delete missing slot: %d", code)
	}
	if code, _ := env.do(t, http.MethodDelete, "/v1/timetable/"+slotID, nil); code != http.StatusOK {
		t.Fatalf("delete slot: %d", code)
	}
	_, body = env.do(t, http.MethodGet, "/v1/subjects?date=2024-03-04", nil)
	if len(body["items"].([]any)) != 1 {
		t.Fatalf("marks of a deleted slot should be kept: %v", body)
	}
}

func TestImportTimetableJSON(t *testing.T) {
	env := newTestEnv(t, nil, nil, nil)

	bad := map[string]any{"slots": []map[string]any{
		{"subject_name": "Math", "day": 1, "start_time": "09:00", "end_time": "10:00"},
		{"subject_name": "", "day": 1, "start_time": "11:00", "end_time": "12:00"},
	}}
	if code, _ := env.do(t, http.MethodPost, "/v1/timetable/import", bad); code != http.StatusBadRequest {
		t.Fatalf("bad import: %d", code)
	}
	if got := env.svc.Timetable(); len(got) != 0 {
		t.Fatalf("partial import: %v", got)
	}

	good := map[string]any{"slots": []map[string]any{
		{"subject_name": "Math", "day": 1, "start_time": "09:00", "end_time": "10:00"},
		{"subject_name": "Physics", "day": 2, "start_time": "11:00", "end_time": "12:00"},
	}}
	code, body := env.do(t, http.MethodPost, "/v1/timetable/import", good)
	if code != http.StatusCreated || len(body["items"].([]any)) != 2 {
		t.Fatalf("import: %d %v", code, body)
	}
}

func multipartImage(t *testing.T) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("image", "week.png")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	part.Write([]byte("png-bytes"))
	mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/v1/timetable/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestImportTimetableImage(t *testing.T) {
	rec := fakeExtractor{slots: []attendance.SlotInput{{SubjectName: "Math", Day: 1, StartTime: "09:00", EndTime: "10:00"}}}
	env := newTestEnv(t, rec, nil, nil)
	code, body := env.serve(t, multipartImage(t))
	if code != http.StatusCreated || len(body["items"].([]any)) != 1 {
		t.Fatalf("image import: %d %v", code, body)
	}

	tests := map[string]struct {
		rec  Extractor
		code int
	}{
		"disabled":  {nil, http.StatusServiceUnavailable},
		"skip mode": {fakeExtractor{err: recognizer.ErrDisabled}, http.StatusServiceUnavailable},
		"empty":     {fakeExtractor{err: recognizer.ErrEmptyExtraction}, http.StatusBadRequest},
		"upstream":  {fakeExtractor{err: errors.New("boom")}, http.StatusServiceUnavailable},
	}
	for name, tc := range tests {
		env := newTestEnv(t, tc.rec, nil, nil)
		if code, body := env.serve(t, multipartImage(t)); code != tc.code {
			t.Fatalf("%s: %d want %d (%v)", name, code, tc.code, body)
		}
	}
}

func TestReset(t *testing.T) {
	env := newTestEnv(t, nil, nil, nil)
	env.do(t, http.MethodPost, "/v1/profile", map[string]any{"name": "Asha", "institution_name": "IIT", "semester": "4"})
	if code, _ := env.do(t, http.MethodPost, "/v1/reset", nil); code != http.StatusOK {
		t.Fatalf("reset: %d", code)
	}
	if code, _ := env.do(t, http.MethodGet, "/v1/profile", nil); code != http.StatusNotFound {
		t.Fatalf("profile survived reset: %d", code)
	}
}

func TestAuthDisabledWithoutRemote(t *testing.T) {
	env := newTestEnv(t, nil, nil, nil)
	for _, path := range []string{"/v1/auth/signup", "/v1/auth/signin", "/v1/auth/refresh", "/v1/sync"} {
		code, body := env.do(t, http.MethodPost, path, map[string]any{})
		if code != http.StatusServiceUnavailable || errorCode(body) != string(CodeUnavailable) {
			t.Fatalf("%s: %d %v", path, code, body)
		}
	}
	if code, _ := env.do(t, http.MethodPost, "/v1/auth/signout", nil); code != http.StatusOK {
		t.Fatalf("signout should work locally: %d", code)
	}
}
