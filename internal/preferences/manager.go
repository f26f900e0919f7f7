package preferences

import (
	"fmt"
	"slices"

	"github.com/rescale/brocoli/internal/catalog"
	"github.com/rescale/brocoli/internal/config"
	"github.com/rescale/brocoli/internal/events"
	"github.com/rescale/brocoli/internal/http"
)

// Row is one line of the connection list.
type Row struct {
	Name        string
	CatalogType string
	RootPath    string
	Default     bool
}

// Manager holds the edited profile next to the snapshot it was loaded from.
type Manager struct {
	path  string
	reg   *catalog.Registry
	bus   *events.EventBus
	cfg   *config.Config
	saved *config.Config
}

// Open loads the profile at path. bus may be nil.
func Open(path string, reg *catalog.Registry, bus *events.EventBus) (*Manager, error) {
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return &Manager{path: path, reg: reg, bus: bus, cfg: cfg, saved: cfg.Clone()}, nil
}

// Config returns a copy of the edited profile.
func (m *Manager) Config() *config.Config { return m.cfg.Clone() }

// Rows lists connections in profile order.
func (m *Manager) Rows() []Row {
	rows := make([]Row, len(m.cfg.Connections))
	for i, c := range m.cfg.Connections {
		rows[i] = Row{
			Name:        c.Name,
			CatalogType: c.CatalogType,
			RootPath:    c.RootPath,
			Default:     c.Name == m.cfg.DefaultConnection,
		}
	}
	return rows
}

// NewDraft starts a new connection for Add.
func (m *Manager) NewDraft() (*Draft, error) { return NewDraft(m.reg) }

// EditDraft loads name for Edit.
func (m *Manager) EditDraft(name string) (*Draft, error) { return EditDraft(m.reg, m.cfg, name) }

// Add appends the drafted connection.
func (m *Manager) Add(d *Draft) error {
	conn, isDefault, err := d.Result()
	if err != nil {
		return err
	}
	if m.cfg.Has(conn.Name) {
		return fmt.Errorf("%q: %w", conn.Name, config.ErrDuplicateConnection)
	}
	m.cfg.Connections = append(m.cfg.Connections, conn)
	if isDefault {
		m.cfg.DefaultConnection = conn.Name
	}
	return nil
}

// Edit replaces oldName with the drafted connection, keeping its position.
func (m *Manager) Edit(oldName string, d *Draft) error {
	i := m.index(oldName)
	if i < 0 {
		return fmt.Errorf("%q: %w", oldName, config.ErrUnknownConnection)
	}
	conn, isDefault, err := d.Result()
	if err != nil {
		return err
	}
	if conn.Name != oldName && m.cfg.Has(conn.Name) {
		return fmt.Errorf("%q: %w", conn.Name, config.ErrDuplicateConnection)
	}
	m.cfg.Connections[i] = conn

	switch {
	case isDefault:
		m.cfg.DefaultConnection = conn.Name
	case m.cfg.DefaultConnection == oldName:
		m.cfg.DefaultConnection = m.firstExcept(conn.Name)
	}
	return nil
}

// Remove deletes name. Removing the default connection makes the first
// remaining one the default.
func (m *Manager) Remove(name string) error {
	i := m.index(name)
	if i < 0 {
		return fmt.Errorf("%q: %w", name, config.ErrUnknownConnection)
	}
	m.cfg.Connections = slices.Delete(m.cfg.Connections, i, i+1)
	if m.cfg.DefaultConnection == name {
		m.cfg.DefaultConnection = m.firstExcept("")
	}
	return nil
}

// SetDefault makes name the default connection.
func (m *Manager) SetDefault(name string) error {
	if !m.cfg.Has(name) {
		return fmt.Errorf("%q: %w", name, config.ErrUnknownConnection)
	}
	m.cfg.DefaultConnection = name
	return nil
}

// SetProxy replaces the proxy settings shared by all connections.
func (m *Manager) SetProxy(p http.ProxyConfig) error {
	if err := p.Validate(); err != nil {
		return err
	}
	m.cfg.Proxy = p
	return nil
}

// Dirty reports unsaved changes.
func (m *Manager) Dirty() bool { return !m.cfg.Equal(m.saved) }

// Apply writes the profile if it changed and announces it on the bus.
func (m *Manager) Apply() (bool, error) {
	if !m.Dirty() {
		return false, nil
	}
	if err := config.Save(m.cfg, m.path); err != nil {
		return false, err
	}
	m.saved = m.cfg.Clone()
	m.bus.PublishConfigChanged(m.path, m.cfg.DefaultConnection, m.cfg.Names())
	return true, nil
}

// Cancel drops every change since the last Apply.
func (m *Manager) Cancel() { m.cfg = m.saved.Clone() }

func (m *Manager) index(name string) int {
	return slices.IndexFunc(m.cfg.Connections, func(c config.Connection) bool { return c.Name == name })
}

func (m *Manager) firstExcept(name string) string {
	for _, c := range m.cfg.Connections {
		if c.Name != name {
			return c.Name
		}
	}
	return ""
}
