package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/starford/ansuz/internal/diary"
	"github.com/starford/ansuz/internal/locator"
	"github.com/starford/ansuz/internal/media/mediatest"
	"github.com/starford/ansuz/internal/player"
	"github.com/starford/ansuz/internal/recorder"
	"github.com/starford/ansuz/internal/testutil"
)

type testEnv struct {
	router   http.Handler
	svc      *diary.Service
	rec      *recorder.Controller
	pl       *player.Controller
	capture  *mediatest.CaptureEngine
	playback *mediatest.PlaybackEngine
	meta     *mediatest.Extractor
	dir      string
}

// newEnv wires the router to fake media engines, a temp audio dir and a temp
// SQLite store. An empty token disables auth.
func newEnv(t *testing.T, token string) *testEnv {
	t.Helper()
	return newEnvWithSSE(t, token, nil)
}

func newEnvWithSSE(t *testing.T, token string, sseHandler http.Handler) *testEnv {
	t.Helper()

	dir, fs := testutil.TestAudioDir(t)
	db := testutil.TestDB(t)
	meta := mediatest.NewExtractor()
	locs := locator.NewResolver(fs, nil)
	svc := diary.NewService(db, fs, locs, meta)

	capture := &mediatest.CaptureEngine{}
	rec := recorder.New(capture, fs, recorder.WithSampleInterval(5*time.Millisecond))
	t.Cleanup(rec.Close)

	playback := mediatest.NewPlaybackEngine()
	pl := player.New(playback, locs, player.WithProgressInterval(10*time.Millisecond))
	t.Cleanup(pl.Close)

	router := NewRouter(Deps{
		Diary:    svc,
		Recorder: rec,
		Player:   pl,
		Files:    fs,
		Location: time.UTC,
	}, token != "", token, sseHandler)

	return &testEnv{
		router: router, svc: svc, rec: rec, pl: pl,
		capture: capture, playback: playback, meta: meta, dir: dir,
	}
}

func (e *testEnv) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return v
}

func writeClip(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte("clip"), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestRecordSaveFlow(t *testing.T) {
	env := newEnv(t, "")

	w := env.do(t, http.MethodPost, "/recording/start", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("start = %d, body = %s", w.Code, w.Body.String())
	}
	if got := decode[RecordingResponse](t, w); got.State != "recording" {
		t.Errorf("state = %q, want recording", got.State)
	}

	w = env.do(t, http.MethodPost, "/recording/stop", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("stop = %d, body = %s", w.Code, w.Body.String())
	}
	stopped := decode[RecordingResponse](t, w)
	if stopped.State != "finished" || stopped.FilePath == "" {
		t.Fatalf("after stop = %+v", stopped)
	}
	env.meta.Set(stopped.FilePath, 4200)

	w = env.do(t, http.MethodPost, "/records", CreateRecordRequest{Title: "  Morning walk "})
	if w.Code != http.StatusCreated {
		t.Fatalf("save = %d, body = %s", w.Code, w.Body.String())
	}
	rec := decode[AudioRecord](t, w)
	if rec.Title != "Morning walk" || rec.Duration != 4200 {
		t.Errorf("saved = %+v", rec)
	}
	if rec.FilePath != locator.FromPath(stopped.FilePath) {
		t.Errorf("file_path = %q, want file locator for %q", rec.FilePath, stopped.FilePath)
	}

	w = env.do(t, http.MethodGet, "/recording", nil)
	if got := decode[RecordingResponse](t, w); got.State != "idle" {
		t.Errorf("state after save = %q, want idle", got.State)
	}
	if _, err := os.Stat(stopped.FilePath); err != nil {
		t.Errorf("saved file should remain: %v", err)
	}
}

func TestSaveWithoutRecording(t *testing.T) {
	env := newEnv(t, "")
	w := env.do(t, http.MethodPost, "/records", CreateRecordRequest{Title: "x"})
	if w.Code != http.StatusConflict {
		t.Errorf("save without recording = %d, want 409", w.Code)
	}
}

func TestCreateRecordRejectsBadBody(t *testing.T) {
	env := newEnv(t, "")
	for _, body := range []string{`{"titel":"x"}`, `not json`} {
		req := httptest.NewRequest(http.MethodPost, "/records", strings.NewReader(body))
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("body %q = %d, want 400", body, w.Code)
		}
	}
}

func TestSaveEmptyTitle(t *testing.T) {
	env := newEnv(t, "")
	env.do(t, http.MethodPost, "/recording/start", nil)
	env.do(t, http.MethodPost, "/recording/stop", nil)

	w := env.do(t, http.MethodPost, "/records", CreateRecordRequest{Title: "   "})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("empty title = %d, want 400", w.Code)
	}
	// The finished recording is still waiting for a title.
	w = env.do(t, http.MethodGet, "/recording", nil)
	if got := decode[RecordingResponse](t, w); got.State != "finished" {
		t.Errorf("state = %q, want finished", got.State)
	}
}

func TestRecordingConflicts(t *testing.T) {
	env := newEnv(t, "")

	if w := env.do(t, http.MethodPost, "/recording/stop", nil); w.Code != http.StatusConflict {
		t.Errorf("stop when idle = %d, want 409", w.Code)
	}
	env.do(t, http.MethodPost, "/recording/start", nil)
	if w := env.do(t, http.MethodPost, "/recording/start", nil); w.Code != http.StatusConflict {
		t.Errorf("second start = %d, want 409", w.Code)
	}
}

func TestRecordingStartFailure(t *testing.T) {
	env := newEnv(t, "")
	env.capture.FailAt(mediatest.StagePrepare)

	w := env.do(t, http.MethodPost, "/recording/start", nil)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("failed start = %d, want 500", w.Code)
	}
	entries, _ := os.ReadDir(env.dir)
	if len(entries) != 0 {
		t.Errorf("audio dir should be empty after failed start, got %d entries", len(entries))
	}
}

func TestCancelRecording(t *testing.T) {
	env := newEnv(t, "")
	env.do(t, http.MethodPost, "/recording/start", nil)
	w := env.do(t, http.MethodPost, "/recording/stop", nil)
	stopped := decode[RecordingResponse](t, w)

	w = env.do(t, http.MethodPost, "/recording/cancel", nil)
	if got := decode[RecordingResponse](t, w); got.State != "idle" {
		t.Errorf("state after cancel = %q", got.State)
	}
	if _, err := os.Stat(stopped.FilePath); !os.IsNotExist(err) {
		t.Errorf("cancelled file should be gone, stat err = %v", err)
	}
}

func TestImportAndList(t *testing.T) {
	env := newEnv(t, "")
	ext := t.TempDir()
	p := writeClip(t, ext, "memo.mp3")
	env.meta.Set(p, 1500)

	w := env.do(t, http.MethodPost, "/records", CreateRecordRequest{FilePath: p})
	if w.Code != http.StatusCreated {
		t.Fatalf("import = %d, body = %s", w.Code, w.Body.String())
	}
	rec := decode[AudioRecord](t, w)
	if rec.Title != "memo" || rec.FilePath != p {
		t.Errorf("imported = %+v", rec)
	}

	w = env.do(t, http.MethodGet, "/records", nil)
	list := decode[RecordListResponse](t, w)
	if list.Total != 1 || len(list.Records) != 1 {
		t.Fatalf("list = %+v", list)
	}

	w = env.do(t, http.MethodGet, "/records/"+strconv.FormatInt(rec.ID, 10), nil)
	if w.Code != http.StatusOK {
		t.Errorf("get = %d", w.Code)
	}
}

func TestImportMissingFile(t *testing.T) {
	env := newEnv(t, "")
	w := env.do(t, http.MethodPost, "/records", CreateRecordRequest{FilePath: filepath.Join(t.TempDir(), "ghost.mp3")})
	if w.Code != http.StatusNotFound {
		t.Errorf("import missing = %d, want 404", w.Code)
	}
	w = env.do(t, http.MethodPost, "/records", CreateRecordRequest{FilePath: "relative.mp3"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("import relative = %d, want 400", w.Code)
	}
}

func TestListEmpty(t *testing.T) {
	env := newEnv(t, "")
	w := env.do(t, http.MethodGet, "/records", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d", w.Code)
	}
	var resp map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if recs, ok := resp["records"].([]any); !ok || len(recs) != 0 {
		t.Errorf("records = %v, want empty array", resp["records"])
	}
}

func TestRenameAndDelete(t *testing.T) {
	env := newEnv(t, "")
	rec, err := env.svc.Import(context.Background(), writeClip(t, t.TempDir(), "a.wav"), "old")
	if err != nil {
		t.Fatal(err)
	}
	path := "/records/" + strconv.FormatInt(rec.ID, 10)

	w := env.do(t, http.MethodPatch, path, RenameRecordRequest{Title: "new"})
	if w.Code != http.StatusOK {
		t.Fatalf("rename = %d, body = %s", w.Code, w.Body.String())
	}
	renamed := decode[AudioRecord](t, w)
	if renamed.Title != "new" || renamed.Timestamp != rec.Timestamp {
		t.Errorf("renamed = %+v", renamed)
	}

	if w := env.do(t, http.MethodPatch, path, RenameRecordRequest{Title: ""}); w.Code != http.StatusBadRequest {
		t.Errorf("rename empty = %d, want 400", w.Code)
	}

	if w := env.do(t, http.MethodDelete, path, nil); w.Code != http.StatusNoContent {
		t.Errorf("delete = %d, want 204", w.Code)
	}
	if w := env.do(t, http.MethodGet, path, nil); w.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", w.Code)
	}
	if w := env.do(t, http.MethodDelete, path, nil); w.Code != http.StatusNotFound {
		t.Errorf("second delete = %d, want 404", w.Code)
	}
}

func TestInvalidRecordID(t *testing.T) {
	env := newEnv(t, "")
	for _, target := range []string{"/records/abc", "/records/0", "/records/-3"} {
		if w := env.do(t, http.MethodGet, target, nil); w.Code != http.StatusBadRequest {
			t.Errorf("GET %s = %d, want 400", target, w.Code)
		}
	}
}

func TestTimelineEndpoint(t *testing.T) {
	env := newEnv(t, "")
	ctx := context.Background()
	ext := t.TempDir()
	day1 := time.Date(2024, 4, 9, 8, 0, 0, 0, time.UTC).UnixMilli()
	day2 := time.Date(2024, 4, 10, 8, 0, 0, 0, time.UTC).UnixMilli()
	if _, err := env.svc.Save(ctx, "first", writeClip(t, ext, "1.mp3"), day1); err != nil {
		t.Fatal(err)
	}
	if _, err := env.svc.Save(ctx, "second", writeClip(t, ext, "2.mp3"), day2); err != nil {
		t.Fatal(err)
	}

	w := env.do(t, http.MethodGet, "/timeline", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("timeline = %d", w.Code)
	}
	items := decode[TimelineResponse](t, w).Items
	if len(items) != 4 {
		t.Fatalf("items = %d, want 4", len(items))
	}
	if items[0].Type != "header" || items[0].Title != "Wednesday, April 10, 2024" {
		t.Errorf("items[0] = %+v", items[0])
	}
	if items[1].Type != "audio" || items[1].Record == nil || items[1].Record.Title != "second" || items[1].Clock != "08:00" {
		t.Errorf("items[1] = %+v", items[1])
	}

	w = env.do(t, http.MethodGet, "/timeline?tz=Asia/Tokyo", nil)
	items = decode[TimelineResponse](t, w).Items
	if items[1].Clock != "17:00" {
		t.Errorf("tokyo clock = %q, want 17:00", items[1].Clock)
	}

	if w := env.do(t, http.MethodGet, "/timeline?tz=Nowhere/Land", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad tz = %d, want 400", w.Code)
	}
}

func TestPlaybackEndpoints(t *testing.T) {
	env := newEnv(t, "")
	clip := writeClip(t, t.TempDir(), "song.mp3")
	env.playback.SetDuration(clip, 9000)
	rec, err := env.svc.Import(context.Background(), clip, "song")
	if err != nil {
		t.Fatal(err)
	}
	toggle := "/playback/" + strconv.FormatInt(rec.ID, 10) + "/toggle"

	if w := env.do(t, http.MethodPost, toggle, nil); w.Code != http.StatusOK {
		t.Fatalf("toggle = %d, body = %s", w.Code, w.Body.String())
	}
	testutil.Eventually(t, 2*time.Second, 5*time.Millisecond, func() bool {
		s := env.pl.State()
		return s.IsPlaying && s.IsCurrent(rec.ID) && s.TotalDuration == 9000
	}, "player should start the record")

	w := env.do(t, http.MethodPost, "/playback/seek", map[string]int{"position_ms": 3000})
	if w.Code != http.StatusOK {
		t.Fatalf("seek = %d", w.Code)
	}
	testutil.Eventually(t, time.Second, 5*time.Millisecond, func() bool {
		return env.pl.State().CurrentPosition == 3000
	}, "position should follow the seek")
	if w := env.do(t, http.MethodPost, "/playback/seek", map[string]int{"position_ms": -1}); w.Code != http.StatusBadRequest {
		t.Errorf("negative seek = %d, want 400", w.Code)
	}

	w = env.do(t, http.MethodPost, "/playback/pause", nil)
	if got := decode[PlaybackState](t, w); got.IsPlaying {
		t.Error("still playing after pause")
	}

	w = env.do(t, http.MethodPost, "/playback/release", nil)
	if got := decode[PlaybackState](t, w); got.CurrentRecordID != nil {
		t.Errorf("record still loaded after release: %+v", got)
	}

	if w := env.do(t, http.MethodPost, "/playback/999/toggle", nil); w.Code != http.StatusNotFound {
		t.Errorf("toggle unknown = %d, want 404", w.Code)
	}
}

func TestDeleteReleasesCurrentPlayback(t *testing.T) {
	env := newEnv(t, "")
	clip := writeClip(t, t.TempDir(), "gone.mp3")
	env.playback.SetDuration(clip, 1000)
	rec, err := env.svc.Import(context.Background(), clip, "")
	if err != nil {
		t.Fatal(err)
	}
	env.do(t, http.MethodPost, "/playback/"+strconv.FormatInt(rec.ID, 10)+"/toggle", nil)
	testutil.Eventually(t, 2*time.Second, 5*time.Millisecond, func() bool {
		return env.pl.State().IsCurrent(rec.ID)
	}, "player should load the record")

	env.do(t, http.MethodDelete, "/records/"+strconv.FormatInt(rec.ID, 10), nil)
	if s := env.pl.State(); s.CurrentRecordID != nil {
		t.Errorf("playback state after delete = %+v", s)
	}
	if !env.playback.Last().Released() {
		t.Error("session not released")
	}
}

func TestUploadAndServe(t *testing.T) {
	env := newEnv(t, "")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "Voice Memo.m4a")
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte("fake-aac"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/uploads", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("upload = %d, body = %s", w.Code, w.Body.String())
	}
	up := decode[UploadResponse](t, w)
	if up.Record.Title != "Voice Memo" || up.Size != int64(len("fake-aac")) {
		t.Errorf("upload = %+v", up)
	}

	w = env.do(t, http.MethodGet, up.URL[len("/api"):], nil)
	if w.Code != http.StatusOK || w.Body.String() != "fake-aac" {
		t.Errorf("serve = %d %q", w.Code, w.Body.String())
	}

	// Deleting an uploaded record removes its app-owned file.
	env.do(t, http.MethodDelete, "/records/"+strconv.FormatInt(up.Record.ID, 10), nil)
	if w := env.do(t, http.MethodGet, up.URL[len("/api"):], nil); w.Code != http.StatusNotFound {
		t.Errorf("serve after delete = %d, want 404", w.Code)
	}
}

func TestUploadRejectsNonAudio(t *testing.T) {
	env := newEnv(t, "")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("file", "notes.txt")
	fw.Write([]byte("text"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/uploads", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("upload txt = %d, want 400", w.Code)
	}
}

func TestServeFileTraversal(t *testing.T) {
	env := newEnv(t, "")
	if w := env.do(t, http.MethodGet, "/audio/..%2Fsecret", nil); w.Code != http.StatusBadRequest && w.Code != http.StatusNotFound {
		t.Errorf("traversal = %d", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/audio/missing.m4a", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing = %d, want 404", w.Code)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	env := newEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/records", nil)
	req.Header.Set("Authorization", "Bearer secret123")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("authed list = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	env := newEnv(t, "secret123")
	if w := env.do(t, http.MethodGet, "/records", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	env := newEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/records", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestSSEEvents_AuthProtected(t *testing.T) {
	sse := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	env := newEnvWithSSE(t, "secret", sse)

	if w := env.do(t, http.MethodGet, "/events", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("SSE with token = %d, want 200", w.Code)
	}
}
