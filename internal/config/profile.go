package config

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"

	encryption "github.com/rescale/brocoli/internal/crypto"
	"github.com/rescale/brocoli/internal/form"
	"github.com/rescale/brocoli/internal/http"
)

// Profile file layout:
//
//	[SETTINGS]
//	default_connection = default
//	proxy_mode = no-proxy
//
//	[connection:default]
//	catalog_type = os
//	root_path = /tmp
//	<catalog specific fields>
const (
	settingsSection   = "SETTINGS"
	connectionPrefix  = "connection:"
	keyDefault        = "default_connection"
	keyCatalogType    = "catalog_type"
	keyRootPath       = "root_path"
	keyProxyMode      = "proxy_mode"
	keyProxyHost      = "proxy_host"
	keyProxyPort      = "proxy_port"
	keyProxyUser      = "proxy_user"
	keyProxyPassword  = "proxy_password"
	keyNoProxy        = "proxy_no_proxy"
	keyLegacyNoProxy  = "no_proxy"
	defaultConnection = "default"
)

var (
	ErrUnknownConnection   = errors.New("no such connection")
	ErrDuplicateConnection = errors.New("connection already exists")
	ErrInvalidName         = errors.New("invalid connection name")
)

// Connection is one [connection:<name>] section.
type Connection struct {
	Name        string
	CatalogType string
	RootPath    string
	// Params holds the serialized catalog fields, secrets obscured.
	Params form.Values
}

// Clone returns an independent copy.
func (c Connection) Clone() Connection {
	c.Params = c.Params.Clone()
	return c
}

// Equal reports whether both connections serialize identically.
func (c Connection) Equal(o Connection) bool {
	return c.Name == o.Name &&
		c.CatalogType == o.CatalogType &&
		c.RootPath == o.RootPath &&
		maps.Equal(c.Params, o.Params)
}

// Config is the whole profile file.
type Config struct {
	DefaultConnection string
	// Proxy applies to every remote connection. Password is held in clear
	// text here and obscured on disk.
	Proxy       http.ProxyConfig
	Connections []Connection
}

// Default returns the profile used when no file exists: one local
// connection rooted at the system temp directory.
func Default() *Config {
	return &Config{
		DefaultConnection: defaultConnection,
		Proxy:             http.ProxyConfig{Mode: http.ProxyNone},
		Connections: []Connection{{
			Name:        defaultConnection,
			CatalogType: "os",
			RootPath:    os.TempDir(),
			Params:      form.Values{},
		}},
	}
}

// ValidateName rejects names that cannot be a section suffix.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" || strings.ContainsAny(name, "[]\n\r") {
		return fmt.Errorf("%q: %w", name, ErrInvalidName)
	}
	return nil
}

// Connection returns the named connection; "" selects the default one.
func (c *Config) Connection(name string) (Connection, error) {
	if name == "" {
		name = c.DefaultConnection
	}
	i := c.index(name)
	if i < 0 {
		return Connection{}, fmt.Errorf("%q: %w", name, ErrUnknownConnection)
	}
	return c.Connections[i], nil
}

func (c *Config) index(name string) int {
	return slices.IndexFunc(c.Connections, func(conn Connection) bool { return conn.Name == name })
}

// Has reports whether a connection called name exists.
func (c *Config) Has(name string) bool { return c.index(name) >= 0 }

// Names returns connection names in file order.
func (c *Config) Names() []string {
	names := make([]string, len(c.Connections))
	for i, conn := range c.Connections {
		names[i] = conn.Name
	}
	return names
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	out := *c
	out.Connections = make([]Connection, len(c.Connections))
	for i, conn := range c.Connections {
		out.Connections[i] = conn.Clone()
	}
	return &out
}

// Equal reports whether saving c and o would produce the same file.
func (c *Config) Equal(o *Config) bool {
	return c.DefaultConnection == o.DefaultConnection &&
		c.Proxy == o.Proxy &&
		slices.EqualFunc(c.Connections, o.Connections, Connection.Equal)
}

// Load reads the profile at path. A missing file yields Default().
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}

	iniFile, err := ini.LoadSources(ini.LoadOptions{IgnoreInlineComment: true}, path)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}

	cfg := &Config{}
	settings := iniFile.Section(settingsSection)
	cfg.DefaultConnection = settings.Key(keyDefault).String()
	if cfg.Proxy, err = loadProxy(settings); err != nil {
		return nil, err
	}

	for _, section := range iniFile.Sections() {
		name, ok := strings.CutPrefix(section.Name(), connectionPrefix)
		if !ok {
			continue
		}
		conn := Connection{
			Name:        name,
			CatalogType: section.Key(keyCatalogType).String(),
			RootPath:    section.Key(keyRootPath).String(),
			Params:      form.Values{},
		}
		if conn.CatalogType == "" {
			return nil, fmt.Errorf("failed to load profile: section %q has no %s", section.Name(), keyCatalogType)
		}
		for _, key := range section.Keys() {
			switch key.Name() {
			case keyCatalogType, keyRootPath:
			default:
				conn.Params[key.Name()] = key.Value()
			}
		}
		cfg.Connections = append(cfg.Connections, conn)
	}
	return cfg, nil
}

func loadProxy(s *ini.Section) (http.ProxyConfig, error) {
	p := http.ProxyConfig{
		Mode:    s.Key(keyProxyMode).MustString(http.ProxyNone),
		Host:    s.Key(keyProxyHost).String(),
		Port:    s.Key(keyProxyPort).MustInt(0),
		User:    s.Key(keyProxyUser).String(),
		NoProxy: s.Key(keyNoProxy).String(),
	}
	if p.NoProxy == "" {
		p.NoProxy = s.Key(keyLegacyNoProxy).String()
	}
	if enc := s.Key(keyProxyPassword).String(); enc != "" {
		pw, err := encryption.FieldCodec().Decode(enc)
		if err != nil {
			return p, fmt.Errorf("failed to load profile: %s: %w", keyProxyPassword, err)
		}
		p.Password = pw
	}
	return p, nil
}

// Save writes cfg to path through a temporary file, readable by the owner
// only.
func Save(cfg *Config, path string) error {
	if path == "" {
		path = DefaultPath()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	iniFile := ini.Empty()

	settings, err := iniFile.NewSection(settingsSection)
	if err != nil {
		return fmt.Errorf("failed to create settings section: %w", err)
	}
	settings.Key(keyDefault).SetValue(cfg.DefaultConnection)
	if err := saveProxy(settings, cfg.Proxy); err != nil {
		return err
	}

	for _, conn := range cfg.Connections {
		if err := ValidateName(conn.Name); err != nil {
			return err
		}
		section, err := iniFile.NewSection(connectionPrefix + conn.Name)
		if err != nil {
			return fmt.Errorf("failed to create section for %s: %w", conn.Name, err)
		}
		section.Key(keyCatalogType).SetValue(conn.CatalogType)
		section.Key(keyRootPath).SetValue(conn.RootPath)
		for _, k := range slices.Sorted(maps.Keys(conn.Params)) {
			if k == keyCatalogType || k == keyRootPath {
				continue
			}
			section.Key(k).SetValue(conn.Params[k])
		}
	}

	tmpPath := path + ".tmp"
	if err := iniFile.SaveTo(tmpPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	if runtime.GOOS != "windows" {
		if err := os.Chmod(tmpPath, 0600); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("failed to set config permissions: %w", err)
		}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

func saveProxy(s *ini.Section, p http.ProxyConfig) error {
	mode := p.Mode
	if mode == "" {
		mode = http.ProxyNone
	}
	s.Key(keyProxyMode).SetValue(mode)
	if mode == http.ProxyNone {
		return nil
	}
	s.Key(keyProxyHost).SetValue(p.Host)
	if p.Port != 0 {
		s.Key(keyProxyPort).SetValue(strconv.Itoa(p.Port))
	}
	if p.User != "" {
		s.Key(keyProxyUser).SetValue(p.User)
	}
	if p.Password != "" {
		enc, err := encryption.FieldCodec().Encode(p.Password)
		if err != nil {
			return fmt.Errorf("failed to obscure proxy password: %w", err)
		}
		s.Key(keyProxyPassword).SetValue(enc)
	}
	if p.NoProxy != "" {
		s.Key(keyNoProxy).SetValue(p.NoProxy)
	}
	return nil
}
