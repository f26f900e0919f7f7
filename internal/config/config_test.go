package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rescale/brocoli/internal/catalog"
	"github.com/rescale/brocoli/internal/catalog/local"
	"github.com/rescale/brocoli/internal/form"
	"github.com/rescale/brocoli/internal/http"
)

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.ini"))
	require.NoError(t, err)
	assert.True(t, cfg.Equal(Default()))

	conn, err := cfg.Connection("")
	require.NoError(t, err)
	assert.Equal(t, "default", conn.Name)
	assert.Equal(t, "os", conn.CatalogType)
	assert.Equal(t, os.TempDir(), conn.RootPath)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "brocoli.ini")
	cfg := &Config{
		DefaultConnection: "bucket",
		Proxy: http.ProxyConfig{
			Mode:     http.ProxyBasic,
			Host:     "proxy.local",
			Port:     3128,
			User:     "bob",
			Password: "hunter2",
			NoProxy:  "localhost,10.0.0.0/8",
		},
		Connections: []Connection{
			{Name: "scratch", CatalogType: "os", RootPath: "/scratch", Params: form.Values{}},
			{Name: "bucket", CatalogType: "s3", RootPath: "data", Params: form.Values{
				"bucket": "results",
				"region": "eu-west-1",
			}},
		},
	}
	require.NoError(t, Save(cfg, path))

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	}
	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "hunter2")
	assert.Contains(t, string(raw), "[connection:bucket]")
	assert.Regexp(t, `(?m)^proxy_no_proxy\s*=\s*localhost,10\.0\.0\.0/8$`, string(raw))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Equal(loaded), "got %+v", loaded)
	assert.Equal(t, []string{"scratch", "bucket"}, loaded.Names())
}

func TestLoadIgnoresUnrelatedSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "brocoli.ini")
	content := strings.Join([]string{
		"[SETTINGS]",
		"default_connection = home",
		"",
		"[something-else]",
		"catalog_type = os",
		"",
		"[connection:home]",
		"catalog_type = os",
		"root_path = /home/alice",
		"extra = kept",
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"home"}, cfg.Names())
	assert.Equal(t, http.ProxyNone, cfg.Proxy.Mode)

	conn, err := cfg.Connection("home")
	require.NoError(t, err)
	assert.Equal(t, "/home/alice", conn.RootPath)
	assert.Equal(t, form.Values{"extra": "kept"}, conn.Params)
}

func TestLoadNoProxyWrittenByOlderVersions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "brocoli.ini")
	require.NoError(t, os.WriteFile(path, []byte("[SETTINGS]\nproxy_mode = basic\nproxy_host = proxy.local\nno_proxy = .internal\n"), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ".internal", cfg.Proxy.NoProxy)

	require.NoError(t, Save(cfg, path))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "proxy_no_proxy")
	assert.NotRegexp(t, `(?m)^no_proxy`, string(raw))
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	missingType := filepath.Join(dir, "missing-type.ini")
	require.NoError(t, os.WriteFile(missingType, []byte("[connection:x]\nroot_path = /\n"), 0600))
	_, err := Load(missingType)
	assert.ErrorContains(t, err, "catalog_type")

	badProxy := filepath.Join(dir, "bad-proxy.ini")
	require.NoError(t, os.WriteFile(badProxy, []byte("[SETTINGS]\nproxy_mode = basic\nproxy_password = plain\n"), 0600))
	_, err = Load(badProxy)
	assert.ErrorContains(t, err, "proxy_password")
}

func TestConnectionLookup(t *testing.T) {
	cfg := Default()
	_, err := cfg.Connection("nope")
	assert.ErrorIs(t, err, ErrUnknownConnection)
	assert.True(t, cfg.Has("default"))
	assert.False(t, cfg.Has("nope"))
}

func TestCloneIsIndependent(t *testing.T) {
	cfg := Default()
	cfg.Connections[0].Params["k"] = "v"

	clone := cfg.Clone()
	require.True(t, clone.Equal(cfg))

	clone.Connections[0].Params["k"] = "changed"
	clone.DefaultConnection = "other"
	assert.Equal(t, "v", cfg.Connections[0].Params["k"])
	assert.Equal(t, "default", cfg.DefaultConnection)
	assert.False(t, clone.Equal(cfg))
}

func TestValidateName(t *testing.T) {
	assert.NoError(t, ValidateName("my bucket"))
	for _, bad := range []string{"", "  ", "a]b", "a\nb"} {
		assert.ErrorIs(t, ValidateName(bad), ErrInvalidName, bad)
	}
	cfg := &Config{Connections: []Connection{{Name: "x]y", CatalogType: "os"}}}
	assert.ErrorIs(t, Save(cfg, filepath.Join(t.TempDir(), "c.ini")), ErrInvalidName)
}

type captured struct {
	root   string
	values form.Values
}

func secretRegistry(t *testing.T, got *captured) *catalog.Registry {
	t.Helper()
	reg := catalog.NewRegistry()
	require.NoError(t, reg.Register(local.Type()))
	require.NoError(t, reg.Register(catalog.Type{
		Name: "vault",
		Fields: func() *form.Fields {
			return catalog.AddSecret(form.NewFields().Add("user", form.NewText("user", "")), "password", "password")
		},
		Open: func(ctx context.Context, root string, values form.Values) (catalog.Catalog, error) {
			got.root = root
			got.values = values
			return local.New(root), nil
		},
	}))
	return reg
}

func TestOpenStoredSecret(t *testing.T) {
	var got captured
	reg := secretRegistry(t, &got)

	fs, err := Fields(reg, Connection{Name: "v", CatalogType: "vault"})
	require.NoError(t, err)
	require.NoError(t, fs.Load(form.Values{"user": "alice"}))
	pw, _ := fs.Get("password")
	pw.(*form.PasswordField).Set("s3cret")

	params, err := fs.Values()
	require.NoError(t, err)
	conn := Connection{Name: "v", CatalogType: "vault", RootPath: "/r", Params: params}
	prompt := func(string, string) (string, error) {
		t.Fatal("stored secrets must not be prompted for")
		return "", nil
	}
	_, err = Open(context.Background(), reg, conn, prompt)
	require.NoError(t, err)
	assert.Equal(t, "/r", got.root)
	assert.Equal(t, conn.Params["password"], got.values["password"])
}

func TestOpenPromptsForUnstoredSecret(t *testing.T) {
	var got captured
	reg := secretRegistry(t, &got)

	conn := Connection{Name: "v", CatalogType: "vault", RootPath: "/r", Params: form.Values{
		"user":         "alice",
		"store_secret": "false",
	}}
	var asked []string
	prompt := func(connection, label string) (string, error) {
		asked = append(asked, connection+":"+label)
		return "typed", nil
	}
	_, err := Open(context.Background(), reg, conn, prompt)
	require.NoError(t, err)
	assert.Equal(t, []string{"v:password"}, asked)

	fs, err := Fields(reg, Connection{Name: "v", CatalogType: "vault", Params: got.values})
	require.NoError(t, err)
	assert.Equal(t, "typed", fs.Secret("password"))
}

func TestOpenPromptError(t *testing.T) {
	var got captured
	reg := secretRegistry(t, &got)
	conn := Connection{Name: "v", CatalogType: "vault", Params: form.Values{"store_secret": "false"}}

	boom := errors.New("cancelled")
	_, err := Open(context.Background(), reg, conn, func(string, string) (string, error) { return "", boom })
	assert.ErrorIs(t, err, boom)
}

func TestOpenUnknownType(t *testing.T) {
	reg := catalog.NewRegistry()
	_, err := Open(context.Background(), reg, Connection{Name: "x", CatalogType: "ftp"}, nil)
	assert.ErrorIs(t, err, catalog.ErrUnknownType)
}

func fakeHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	return home
}

func TestDefaultPathHonoursEnv(t *testing.T) {
	fakeHome(t)
	t.Setenv(EnvConfig, "/etc/brocoli.ini")
	assert.Equal(t, "/etc/brocoli.ini", DefaultPath())

	t.Setenv(EnvConfig, "")
	assert.Equal(t, "brocoli.ini", filepath.Base(DefaultPath()))
}

func TestDefaultPathFallsBackToLegacyProfile(t *testing.T) {
	home := fakeHome(t)
	t.Setenv(EnvConfig, "")
	current := filepath.Join(ConfigDir(), "brocoli.ini")
	legacy := filepath.Join(home, ".brocoli.ini")

	assert.Equal(t, current, DefaultPath())

	require.NoError(t, os.WriteFile(legacy, []byte("[connection:old]\ncatalog_type = os\nroot_path = /data\n"), 0600))
	assert.Equal(t, legacy, DefaultPath())
	cfg, err := Load(DefaultPath())
	require.NoError(t, err)
	assert.Equal(t, []string{"old"}, cfg.Names())

	require.NoError(t, Save(Default(), current))
	assert.Equal(t, current, DefaultPath())
}

func TestOpenRetiredType(t *testing.T) {
	reg := catalog.NewRegistry()
	_, err := Open(context.Background(), reg, Connection{Name: "grid", CatalogType: "irods3"}, nil)
	assert.ErrorIs(t, err, catalog.ErrUnknownType)
	assert.ErrorContains(t, err, "connection grid")
	assert.ErrorContains(t, err, "iRODS 3")
}
