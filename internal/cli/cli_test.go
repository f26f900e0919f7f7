package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rescale/brocoli/internal/catalog"
	"github.com/rescale/brocoli/internal/catalog/local"
	"github.com/rescale/brocoli/internal/config"
)

func useLocalRegistry(t *testing.T) {
	t.Helper()
	reg := catalog.NewRegistry()
	require.NoError(t, reg.Register(local.Type()))
	old := registry
	registry = reg
	t.Cleanup(func() { registry = old })
}

// run executes the CLI against the profile at cfgPath and returns stdout.
func run(t *testing.T, cfgPath string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	AddCommands(root)
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(""))
	root.SetArgs(append([]string{"--config", cfgPath}, args...))
	err := root.ExecuteContext(context.Background())
	finish()
	return out.String(), err
}

func TestCommandsRegistered(t *testing.T) {
	root := NewRootCmd()
	AddCommands(root)

	for _, name := range []string{"ls", "stat", "mkdir", "rm", "get", "put", "sync", "types", "connections"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
		assert.NotEmpty(t, cmd.Short, name)
	}
	for _, flag := range []string{"config", "connection", "verbose", "quiet", "log-file"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(flag), flag)
	}
}

func TestConnectionsLifecycle(t *testing.T) {
	useLocalRegistry(t)
	cfgPath := filepath.Join(t.TempDir(), "brocoli.ini")
	root := t.TempDir()

	_, err := run(t, cfgPath, "connections", "add", "scratch", "--type", "os", "--root", root, "--default")
	require.NoError(t, err)

	out, err := run(t, cfgPath, "connections", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "default")
	assert.Regexp(t, `scratch\s+os\s+\*\s+`+regexpQuote(root), out)

	_, err = run(t, cfgPath, "connections", "add", "scratch", "--type", "os")
	assert.ErrorIs(t, err, config.ErrDuplicateConnection)

	_, err = run(t, cfgPath, "connections", "edit", "scratch", "--name", "work")
	require.NoError(t, err)

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"default", "work"}, cfg.Names())
	assert.Equal(t, "work", cfg.DefaultConnection)

	_, err = run(t, cfgPath, "connections", "default", "default")
	require.NoError(t, err)
	_, err = run(t, cfgPath, "connections", "remove", "default")
	require.NoError(t, err)

	cfg, err = config.Load(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"work"}, cfg.Names())
	assert.Equal(t, "work", cfg.DefaultConnection)

	_, err = run(t, cfgPath, "connections", "edit", "work", "--set", "nope=1")
	assert.Error(t, err)
}

func regexpQuote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `.`, `\.`)
	return r.Replace(s)
}

func TestFileCommands(t *testing.T) {
	useLocalRegistry(t)
	cfgPath := filepath.Join(t.TempDir(), "brocoli.ini")
	root := t.TempDir()
	_, err := run(t, cfgPath, "connections", "add", "here", "--type", "os", "--root", root, "--default")
	require.NoError(t, err)

	_, err = run(t, cfgPath, "mkdir", "-p", "a/b")
	require.NoError(t, err)
	_, err = run(t, cfgPath, "mkdir", "a")
	assert.ErrorIs(t, err, catalog.ErrAlreadyExists)

	src := filepath.Join(t.TempDir(), "report.txt")
	require.NoError(t, os.WriteFile(src, []byte("hello"), 0644))
	_, err = run(t, cfgPath, "put", src, "a/b")
	require.NoError(t, err)

	out, err := run(t, cfgPath, "ls", "a/b")
	require.NoError(t, err)
	assert.Equal(t, "report.txt\n", out)

	out, err = run(t, cfgPath, "ls", "-l", "a")
	require.NoError(t, err)
	assert.Contains(t, out, "b/")

	out, err = run(t, cfgPath, "stat", "a/b/report.txt")
	require.NoError(t, err)
	assert.Contains(t, out, "Type:     file")
	assert.Contains(t, out, "Size:     5 (5 B)")

	dest := t.TempDir()
	_, err = run(t, cfgPath, "get", "a/b/report.txt", dest)
	require.NoError(t, err)
	got, err := os.ReadFile(filepath.Join(dest, "report.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))

	_, err = run(t, cfgPath, "get", "-r", "a", dest)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dest, "a", "b", "report.txt"))

	_, err = run(t, cfgPath, "rm", "a/b/report.txt")
	require.NoError(t, err)
	_, err = run(t, cfgPath, "stat", "a/b/report.txt")
	assert.True(t, catalog.IsNotFound(err))

	_, err = run(t, cfgPath, "rm", "-r", "a")
	require.NoError(t, err)
	assert.NoDirExists(t, filepath.Join(root, "a"))
}

func TestUnknownConnection(t *testing.T) {
	useLocalRegistry(t)
	cfgPath := filepath.Join(t.TempDir(), "brocoli.ini")
	_, err := run(t, cfgPath, "--connection", "missing", "ls")
	assert.ErrorIs(t, err, config.ErrUnknownConnection)
}

func TestSyncFlagValidation(t *testing.T) {
	useLocalRegistry(t)
	cfgPath := filepath.Join(t.TempDir(), "brocoli.ini")
	_, err := run(t, cfgPath, "sync", "a", "b")
	assert.ErrorContains(t, err, "--download or --upload")
	_, err = run(t, cfgPath, "sync", "--upload", "--download", "a", "b")
	assert.Error(t, err)
	_, err = run(t, cfgPath, "sync", "--upload", "-j", "0", "a", "b")
	assert.ErrorContains(t, err, "--parallel")
}

func TestSyncSameBaseNameLastWins(t *testing.T) {
	useLocalRegistry(t)
	cfgPath := filepath.Join(t.TempDir(), "brocoli.ini")
	root := t.TempDir()
	_, err := run(t, cfgPath, "connections", "add", "here", "--type", "os", "--root", root, "--default")
	require.NoError(t, err)

	for _, dir := range []string{"a", "b", "c"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, dir, "x"), 0755))
		require.NoError(t, os.WriteFile(filepath.Join(root, dir, "x", dir+".txt"), []byte(dir), 0644))
	}

	for range 5 {
		dest := t.TempDir()
		_, err = run(t, cfgPath, "sync", "--download", "-q", "-j", "3", "a/x", "b/x", "c/x", dest)
		require.NoError(t, err)

		entries, err := os.ReadDir(filepath.Join(dest, "x"))
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "c.txt", entries[0].Name())
	}
}

func TestOrderByBaseName(t *testing.T) {
	wait, release := orderByBaseName([]string{"a/x", "y", `b\x`, "c/x/", "/"})
	require.Len(t, wait, 5)
	assert.Nil(t, wait[0])
	assert.Nil(t, wait[1])
	assert.Nil(t, wait[4])

	select {
	case <-wait[2]:
		t.Fatal("b\\x started before a/x finished")
	default:
	}
	close(release[0])
	<-wait[2]

	select {
	case <-wait[3]:
		t.Fatal("c/x/ started before b\\x finished")
	default:
	}
	close(release[2])
	<-wait[3]
}

func TestTypesCommand(t *testing.T) {
	useLocalRegistry(t)
	out, err := run(t, filepath.Join(t.TempDir(), "brocoli.ini"), "types")
	require.NoError(t, err)
	assert.Equal(t, "os - Local filesystem\n  (no fields)\n", out)
}

func TestProxyCommand(t *testing.T) {
	useLocalRegistry(t)
	cfgPath := filepath.Join(t.TempDir(), "brocoli.ini")

	out, err := run(t, cfgPath, "connections", "proxy")
	require.NoError(t, err)
	assert.Equal(t, "Mode:     no-proxy\n", out)

	_, err = run(t, cfgPath, "connections", "proxy", "--mode", "basic")
	assert.ErrorContains(t, err, "requires a host")

	_, err = run(t, cfgPath, "connections", "proxy", "--mode", "basic", "--host", "proxy.local", "--port", "3128", "--user", "bob", "--password", "pw")
	require.NoError(t, err)

	out, err = run(t, cfgPath, "connections", "proxy")
	require.NoError(t, err)
	assert.Contains(t, out, "Host:     proxy.local")
	assert.Contains(t, out, "Password: yes")

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "pw", cfg.Proxy.Password)
}

func TestAncestors(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"a", []string{"a"}},
		{"a/b/c", []string{"a", "a/b", "a/b/c"}},
		{"a/b/", []string{"a", "a/b"}},
		{"/x/y", []string{"/x", "/x/y"}},
		{"", nil},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ancestors(tt.in), tt.in)
	}
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.5 KB", formatBytes(1536))
	assert.Equal(t, "2.0 MB", formatBytes(2*1024*1024))
}

func TestRunParallel(t *testing.T) {
	var inFlight, peak atomic.Int32
	failed := runParallel(context.Background(), []string{"a", "b", "c", "d", "e"}, 2, func(i int, item string) error {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		if item == "c" {
			return errors.New("boom")
		}
		return nil
	})
	assert.Equal(t, 1, failed)
	assert.LessOrEqual(t, peak.Load(), int32(2))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// With a cancelled context some items may still start; none succeed here.
	failed = runParallel(ctx, []string{"a", "b"}, 1, func(int, string) error { return ctx.Err() })
	assert.Equal(t, 2, failed)
}

func TestWithHint(t *testing.T) {
	assert.NoError(t, withHint(nil))

	plain := errors.New("400 bad request")
	assert.Same(t, plain, withHint(plain))

	denied := &catalog.PathError{Op: "list", Path: "bucket/a", Err: errors.New("AccessDenied: 403 Forbidden")}
	err := withHint(denied)
	assert.ErrorIs(t, err, denied)
	assert.ErrorContains(t, err, "connections edit")
}

func TestUploadLabel(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), make([]byte, 1024), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b.txt"), make([]byte, 512), 0644))

	assert.Equal(t, "uploading directories (2 files, 1.5 KB)", uploadLabel([]string{dir}))
	assert.Equal(t, "uploading directories", uploadLabel([]string{filepath.Join(dir, "missing")}))
}

func TestSecretPromptWithoutInput(t *testing.T) {
	root := NewRootCmd()
	root.SetIn(strings.NewReader(""))
	root.SetErr(&bytes.Buffer{})

	_, err := secretPrompt(root)("vault", "password:")
	assert.ErrorIs(t, err, catalog.ErrMissingSetting)

	root.SetIn(strings.NewReader("s3cret\n"))
	got, err := secretPrompt(root)("vault", "password:")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", got)
}
