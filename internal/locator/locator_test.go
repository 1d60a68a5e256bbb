package locator

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/ansuz/internal/storage"
)

func testResolver(t *testing.T) (*Resolver, *storage.FS) {
	t.Helper()
	fs, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return NewResolver(fs, nil), fs
}

func TestClassify(t *testing.T) {
	cases := []struct {
		loc  string
		want Kind
	}{
		{"file:///data/audio_1.m4a", KindFile},
		{"/home/me/clip.mp3", KindPath},
		{"https://example.com/a.m4a", KindRemote},
		{"http://example.com/a.m4a", KindRemote},
		{"content://media/external/audio/1", KindUnknown},
		{"relative.m4a", KindUnknown},
	}
	for _, tc := range cases {
		if got := Classify(tc.loc); got != tc.want {
			t.Errorf("Classify(%q) = %v, want %v", tc.loc, got, tc.want)
		}
	}
}

func TestFromPathRoundTrip(t *testing.T) {
	p := filepath.Join(t.TempDir(), "audio_42.m4a")
	loc := FromPath(p)
	if Classify(loc) != KindFile {
		t.Fatalf("FromPath(%q) = %q is not a file locator", p, loc)
	}
	got, ok := LocalPath(loc)
	if !ok || got != p {
		t.Fatalf("LocalPath = %q, %v; want %q", got, ok, p)
	}
}

func TestExt(t *testing.T) {
	if got := Ext("https://example.com/clips/a.MP3?sig=1"); got != ".mp3" {
		t.Errorf("remote ext = %q", got)
	}
	if got := Ext("file:///x/audio_1.m4a"); got != ".m4a" {
		t.Errorf("file ext = %q", got)
	}
}

func TestIsAppOwned(t *testing.T) {
	r, fs := testResolver(t)
	inside := filepath.Join(fs.Root(), "audio_1.m4a")
	outside := filepath.Join(t.TempDir(), "clip.m4a")

	if !r.IsAppOwned(FromPath(inside)) {
		t.Error("file:// inside audio dir should be app-owned")
	}
	if r.IsAppOwned(inside) {
		t.Error("plain path is an external reference, not app-owned")
	}
	if r.IsAppOwned(FromPath(outside)) {
		t.Error("file:// outside audio dir must not be app-owned")
	}
	if r.IsAppOwned("https://example.com/a.m4a") {
		t.Error("remote locator must not be app-owned")
	}
}

func TestDirectLocalFile(t *testing.T) {
	r, _ := testResolver(t)
	p := filepath.Join(t.TempDir(), "clip.m4a")
	if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := r.Direct(context.Background(), p)
	if err != nil || got != p {
		t.Fatalf("Direct = %q, %v", got, err)
	}

	if _, err := r.Direct(context.Background(), filepath.Join(t.TempDir(), "missing.m4a")); err == nil {
		t.Fatal("expected error for missing file")
	}
	if _, err := r.Direct(context.Background(), "content://x"); err == nil {
		t.Fatal("expected error for unsupported locator")
	}
}

func TestDirectRemoteRequiresRanges(t *testing.T) {
	ranged := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Accept-Ranges", "bytes")
		w.WriteHeader(http.StatusOK)
	}))
	defer ranged.Close()
	plain := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer plain.Close()

	r, _ := testResolver(t)
	if _, err := r.Direct(context.Background(), ranged.URL+"/a.m4a"); err != nil {
		t.Errorf("ranged server: %v", err)
	}
	if _, err := r.Direct(context.Background(), plain.URL+"/a.m4a"); err == nil {
		t.Error("expected error for server without range support")
	}
}

func TestCopyToLocal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "remote-audio")
	}))
	defer srv.Close()

	r, fs := testResolver(t)
	p, err := r.CopyToLocal(context.Background(), srv.URL+"/clip.mp3")
	if err != nil {
		t.Fatalf("CopyToLocal: %v", err)
	}
	if !fs.Owns(p) || filepath.Ext(p) != ".mp3" {
		t.Errorf("copied to %q", p)
	}
	data, _ := os.ReadFile(p)
	if string(data) != "remote-audio" {
		t.Errorf("content = %q", data)
	}
}

func TestCopyToLocalDefaultsExtension(t *testing.T) {
	r, _ := testResolver(t)
	src := filepath.Join(t.TempDir(), "noext")
	if err := os.WriteFile(src, []byte("abc"), 0o644); err != nil {
		t.Fatal(err)
	}
	p, err := r.CopyToLocal(context.Background(), src)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Ext(p) != storage.DefaultExt {
		t.Errorf("ext = %q", filepath.Ext(p))
	}
}
