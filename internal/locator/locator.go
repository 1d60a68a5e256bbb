// Package locator interprets the opaque file locators stored on records.
//
// Three forms exist:
//   - file:///abs/path      a file the application wrote itself (app-owned
//     when it lies inside the audio directory)
//   - /abs/path             an external file the user pointed us at
//   - http(s)://host/path   a remote clip
package locator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/starford/ansuz/internal/storage"
)

// Kind classifies a locator.
type Kind int

const (
	KindUnknown Kind = iota
	KindFile
	KindPath
	KindRemote
)

// ErrUnsupported is returned for locators that cannot be resolved.
var ErrUnsupported = errors.New("unsupported locator")

// FromPath returns the file:// locator for an absolute path.
func FromPath(p string) string {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(p)}
	return u.String()
}

// Classify reports the kind of loc.
func Classify(loc string) Kind {
	switch {
	case strings.HasPrefix(loc, "file://"):
		return KindFile
	case strings.HasPrefix(loc, "http://"), strings.HasPrefix(loc, "https://"):
		return KindRemote
	case filepath.IsAbs(loc):
		return KindPath
	default:
		return KindUnknown
	}
}

// LocalPath returns the file system path behind a file:// or plain path
// locator.
func LocalPath(loc string) (string, bool) {
	switch Classify(loc) {
	case KindFile:
		u, err := url.Parse(loc)
		if err != nil || u.Path == "" {
			return "", false
		}
		return filepath.FromSlash(u.Path), true
	case KindPath:
		return filepath.Clean(loc), true
	}
	return "", false
}

// Ext returns the lower-cased extension of the locator's last path element.
func Ext(loc string) string {
	if Classify(loc) == KindRemote {
		if u, err := url.Parse(loc); err == nil {
			return strings.ToLower(path.Ext(u.Path))
		}
	}
	return strings.ToLower(filepath.Ext(loc))
}

// Resolver turns locators into playable sources.
type Resolver struct {
	store  storage.Provider
	client *http.Client
}

// NewResolver creates a resolver that treats files inside store as app-owned.
// A nil client uses http.DefaultClient.
func NewResolver(store storage.Provider, client *http.Client) *Resolver {
	if client == nil {
		client = http.DefaultClient
	}
	return &Resolver{store: store, client: client}
}

// IsAppOwned reports whether loc names a file the application created and
// therefore may delete. Only file:// locators inside the audio directory
// qualify; external paths and URLs never do.
func (r *Resolver) IsAppOwned(loc string) bool {
	if Classify(loc) != KindFile {
		return false
	}
	p, ok := LocalPath(loc)
	return ok && r.store.Owns(p)
}

// Direct returns a source the playback engine can stream from without
// copying: a readable local path, or a remote URL whose server supports
// range requests.
func (r *Resolver) Direct(ctx context.Context, loc string) (string, error) {
	switch Classify(loc) {
	case KindFile, KindPath:
		p, ok := LocalPath(loc)
		if !ok {
			return "", fmt.Errorf("locator: %w: %s", ErrUnsupported, loc)
		}
		f, err := os.Open(p)
		if err != nil {
			return "", fmt.Errorf("locator: open %s: %w", p, err)
		}
		_ = f.Close()
		return p, nil

	case KindRemote:
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, loc, nil)
		if err != nil {
			return "", fmt.Errorf("locator: build request: %w", err)
		}
		resp, err := r.client.Do(req)
		if err != nil {
			return "", fmt.Errorf("locator: head %s: %w", loc, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("locator: head %s: status %d", loc, resp.StatusCode)
		}
		if resp.Header.Get("Accept-Ranges") != "bytes" {
			return "", fmt.Errorf("locator: %s is not seekable", loc)
		}
		return loc, nil
	}
	return "", fmt.Errorf("locator: %w: %s", ErrUnsupported, loc)
}

// Open returns a reader over the bytes behind loc.
func (r *Resolver) Open(ctx context.Context, loc string) (io.ReadCloser, error) {
	switch Classify(loc) {
	case KindFile, KindPath:
		p, _ := LocalPath(loc)
		f, err := os.Open(p)
		if err != nil {
			return nil, fmt.Errorf("locator: open %s: %w", p, err)
		}
		return f, nil

	case KindRemote:
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, loc, nil)
		if err != nil {
			return nil, fmt.Errorf("locator: build request: %w", err)
		}
		resp, err := r.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("locator: get %s: %w", loc, err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("locator: get %s: status %d", loc, resp.StatusCode)
		}
		return resp.Body, nil
	}
	return nil, fmt.Errorf("locator: %w: %s", ErrUnsupported, loc)
}

// CopyToLocal copies the bytes behind loc into a new app-private file and
// returns its path.
func (r *Resolver) CopyToLocal(ctx context.Context, loc string) (string, error) {
	src, err := r.Open(ctx, loc)
	if err != nil {
		return "", err
	}
	defer src.Close()

	ext := Ext(loc)
	if ext == "" {
		ext = storage.DefaultExt
	}
	dst, err := r.store.Save(src, ext)
	if err != nil {
		return "", fmt.Errorf("locator: copy %s: %w", loc, err)
	}
	return dst, nil
}
