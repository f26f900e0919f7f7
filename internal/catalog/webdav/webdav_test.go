package webdav

import (
	"context"
	"errors"
	nethttp "net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/studio-b12/gowebdav"
	xwebdav "golang.org/x/net/webdav"

	"github.com/rescale/brocoli/internal/catalog"
	"github.com/rescale/brocoli/internal/form"
	"github.com/rescale/brocoli/internal/http"
)

var modTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// server serves dir under /dav/ and requires user "alice" / "secret".
// The first fail503 requests are answered with 503.
func server(t *testing.T, dir string, fail503 ...int32) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	dav := &xwebdav.Handler{
		Prefix:     "/dav",
		FileSystem: xwebdav.Dir(dir),
		LockSystem: xwebdav.NewMemLS(),
	}
	var requests atomic.Int32
	srv := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		n := requests.Add(1)
		if len(fail503) > 0 && n <= fail503[0] {
			nethttp.Error(w, "busy", nethttp.StatusServiceUnavailable)
			return
		}
		if user, pass, ok := r.BasicAuth(); !ok || user != "alice" || pass != "secret" {
			w.Header().Set("WWW-Authenticate", `Basic realm="dav"`)
			nethttp.Error(w, "unauthorized", nethttp.StatusUnauthorized)
			return
		}
		dav.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &requests
}

func setup(t *testing.T) (*Catalog, string) {
	t.Helper()
	remote := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(remote, "home", "proj", "deep"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(remote, "home", "empty"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(remote, "home", "readme.txt"), []byte("hello"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(remote, "home", "proj", "a b.txt"), []byte("aaa"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(remote, "home", "proj", "deep", ".hidden"), []byte("h"), 0o644))
	require.NoError(t, os.Chtimes(filepath.Join(remote, "home", "readme.txt"), modTime, modTime))

	srv, _ := server(t, remote)
	client, err := NewClient(srv.URL+"/dav/", "alice", "secret", http.NewRetryClient(srv.Client(), http.RetryConfig{MaxRetries: 1}, nil))
	require.NoError(t, err)
	return New(client, "home"), remote
}

func TestStat(t *testing.T) {
	c, _ := setup(t)
	ctx := context.Background()

	e, err := c.Stat(ctx, "readme.txt")
	require.NoError(t, err)
	assert.False(t, e.IsDir)
	assert.Equal(t, int64(5), e.Size)
	assert.True(t, modTime.Equal(e.ModTime))

	e, err = c.Stat(ctx, "proj")
	require.NoError(t, err)
	assert.True(t, e.IsDir)

	e, err = c.Stat(ctx, "/")
	require.NoError(t, err)
	assert.True(t, e.IsDir)

	_, err = c.Stat(ctx, "nope")
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestListDirectory(t *testing.T) {
	c, _ := setup(t)
	ctx := context.Background()

	names, err := c.ListDirectory(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"empty", "proj", "readme.txt"}, names)

	names, err = c.ListDirectory(ctx, "proj")
	require.NoError(t, err)
	assert.Equal(t, []string{"a b.txt", "deep"}, names)

	_, err = c.ListDirectory(ctx, "readme.txt")
	assert.ErrorIs(t, err, catalog.ErrNotADirectory)

	_, err = c.ListDirectory(ctx, "nope")
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestIsDirectoryAndJoin(t *testing.T) {
	c, _ := setup(t)
	ctx := context.Background()

	for p, want := range map[string]bool{"proj": true, "proj/deep": true, "readme.txt": false, "nope": false} {
		got, err := c.IsDirectory(ctx, p)
		require.NoError(t, err, p)
		assert.Equal(t, want, got, p)
	}
	assert.Equal(t, "proj/deep", c.Join("proj", "deep"))
}

func TestDownload(t *testing.T) {
	c, _ := setup(t)
	ctx := context.Background()
	dest := t.TempDir()

	progress, err := catalog.Collect(c.DownloadFiles(ctx, []string{"readme.txt", "proj/a b.txt"}, dest))
	require.NoError(t, err)
	assert.Equal(t, []catalog.Progress{{Done: 1, Total: 2}, {Done: 2, Total: 2}}, progress)

	data, err := os.ReadFile(filepath.Join(dest, "a b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "aaa", string(data))
	info, err := os.Stat(filepath.Join(dest, "readme.txt"))
	require.NoError(t, err)
	assert.True(t, modTime.Equal(info.ModTime()))

	_, err = catalog.Drain(c.DownloadFiles(ctx, []string{"proj"}, dest))
	assert.ErrorContains(t, err, "is a directory")

	stale := filepath.Join(dest, "proj", "stale.txt")
	require.NoError(t, os.MkdirAll(filepath.Dir(stale), 0o755))
	require.NoError(t, os.WriteFile(stale, nil, 0o644))

	_, err = catalog.Drain(c.DownloadDirectories(ctx, []string{"proj"}, dest))
	require.NoError(t, err)
	assert.NoFileExists(t, stale)
	assert.FileExists(t, filepath.Join(dest, "proj", "deep", ".hidden"))

	_, err = catalog.Drain(c.DownloadDirectories(ctx, []string{"readme.txt"}, dest))
	assert.ErrorIs(t, err, catalog.ErrNotADirectory)
}

func TestUpload(t *testing.T) {
	c, remote := setup(t)
	ctx := context.Background()

	local := t.TempDir()
	tree := filepath.Join(local, "tree")
	require.NoError(t, os.MkdirAll(filepath.Join(tree, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(tree, "sub", "x.bin"), []byte("xyz"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(tree, ".dot"), []byte("."), 0o644))
	single := filepath.Join(local, "single.txt")
	require.NoError(t, os.WriteFile(single, []byte("one"), 0o644))
	empty := filepath.Join(local, "empty.txt")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))

	_, err := catalog.Drain(c.UploadFiles(ctx, []string{single, empty}, "proj"))
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(remote, "home", "proj", "single.txt"))
	require.NoError(t, err)
	assert.Equal(t, "one", string(data))
	assert.FileExists(t, filepath.Join(remote, "home", "proj", "empty.txt"))

	_, err = catalog.Drain(c.UploadFiles(ctx, []string{single}, "readme.txt"))
	assert.ErrorIs(t, err, catalog.ErrNotADirectory)

	// existing remote tree is replaced
	require.NoError(t, os.MkdirAll(filepath.Join(remote, "home", "tree"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(remote, "home", "tree", "old"), nil, 0o644))

	_, err = catalog.Drain(c.UploadDirectories(ctx, []string{tree}, ""))
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(remote, "home", "tree", "old"))
	assert.FileExists(t, filepath.Join(remote, "home", "tree", ".dot"))
	data, err = os.ReadFile(filepath.Join(remote, "home", "tree", "sub", "x.bin"))
	require.NoError(t, err)
	assert.Equal(t, "xyz", string(data))
}

func TestDeleteAndMakeDirectory(t *testing.T) {
	c, remote := setup(t)
	ctx := context.Background()

	require.NoError(t, c.MakeDirectory(ctx, "new"))
	assert.DirExists(t, filepath.Join(remote, "home", "new"))
	assert.ErrorIs(t, c.MakeDirectory(ctx, "new"), catalog.ErrAlreadyExists)
	assert.ErrorIs(t, c.MakeDirectory(ctx, "readme.txt"), catalog.ErrAlreadyExists)
	assert.ErrorIs(t, c.MakeDirectory(ctx, "missing/child"), catalog.ErrNotFound)
	assert.ErrorIs(t, c.MakeDirectory(ctx, ""), catalog.ErrAlreadyExists)

	_, err := catalog.Drain(c.DeleteFiles(ctx, []string{"proj"}))
	assert.ErrorContains(t, err, "is a directory")
	_, err = catalog.Drain(c.DeleteFiles(ctx, []string{"nope"}))
	assert.ErrorIs(t, err, catalog.ErrNotFound)

	n, err := catalog.Drain(c.DeleteFiles(ctx, []string{"readme.txt"}))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoFileExists(t, filepath.Join(remote, "home", "readme.txt"))

	_, err = catalog.Drain(c.DeleteDirectories(ctx, []string{"proj", "empty"}))
	require.NoError(t, err)
	assert.NoDirExists(t, filepath.Join(remote, "home", "proj"))
	assert.NoDirExists(t, filepath.Join(remote, "home", "empty"))

	_, err = catalog.Drain(c.DeleteDirectories(ctx, []string{"/"}))
	assert.ErrorContains(t, err, "catalog root")
}

func TestEmptyInputsSendNothing(t *testing.T) {
	remote := t.TempDir()
	srv, requests := server(t, remote)
	client, err := NewClient(srv.URL+"/dav", "alice", "secret", http.NewRetryClient(srv.Client(), http.DefaultRetryConfig(), nil))
	require.NoError(t, err)
	c := New(client, "")
	ctx := context.Background()

	for _, seq := range []catalog.Seq{
		c.DownloadFiles(ctx, nil, t.TempDir()),
		c.DownloadDirectories(ctx, nil, t.TempDir()),
		c.UploadFiles(ctx, nil, ""),
		c.UploadDirectories(ctx, nil, ""),
		c.DeleteFiles(ctx, nil),
		c.DeleteDirectories(ctx, nil),
	} {
		n, err := catalog.Drain(seq)
		require.NoError(t, err)
		assert.Zero(t, n)
	}
	assert.Zero(t, requests.Load())
}

func TestWrongPassword(t *testing.T) {
	remote := t.TempDir()
	srv, _ := server(t, remote)
	client, err := NewClient(srv.URL+"/dav", "alice", "wrong", http.NewRetryClient(srv.Client(), http.DefaultRetryConfig(), nil))
	require.NoError(t, err)

	_, err = New(client, "").Stat(context.Background(), "")
	require.Error(t, err)
	assert.True(t, http.IsCredentialError(err), err.Error())
	assert.False(t, catalog.IsNotFound(err))
}

func TestServerErrorsAreRetried(t *testing.T) {
	remote := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(remote, "f.txt"), []byte("x"), 0o644))
	srv, requests := server(t, remote, 2)
	client, err := NewClient(srv.URL+"/dav", "alice", "secret", http.NewRetryClient(srv.Client(), http.RetryConfig{MaxRetries: 3}, nil))
	require.NoError(t, err)

	e, err := New(client, "").Stat(context.Background(), "f.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(1), e.Size)
	assert.Greater(t, requests.Load(), int32(2))
}

func TestClassify(t *testing.T) {
	assert.NoError(t, classify(nil))
	for code, notFound := range map[int]bool{404: true, 409: true, 403: false, 500: false} {
		err := classify(&os.PathError{Op: "Stat", Path: "/x", Err: gowebdav.StatusError{Status: code}})
		assert.Equal(t, notFound, catalog.IsNotFound(err), code)
		assert.Equal(t, code, statusCode(err), code)
	}
	plain := errors.New("dial tcp: connection refused")
	assert.Same(t, plain, classify(plain))
	assert.Zero(t, statusCode(plain))
}

func TestNewClientRejectsURL(t *testing.T) {
	_, err := NewClient("ftp://example.org/", "", "", nil)
	assert.Error(t, err)
}

func TestOpen(t *testing.T) {
	_, err := Open(context.Background(), "", form.Values{FieldURL: ""})
	assert.ErrorIs(t, err, catalog.ErrMissingSetting)

	fs := ConfigFields()
	require.NoError(t, fs.Load(form.Values{FieldURL: "https://dav.example.org/remote.php/dav", FieldUser: "alice"}))
	vals, err := fs.Values()
	require.NoError(t, err)
	c, err := Open(context.Background(), "files", vals)
	require.NoError(t, err)
	assert.Equal(t, []string{FieldURL, FieldUser, catalog.KeyStoreSecret, FieldPassword}, c.ConfigFields().Names())
}
