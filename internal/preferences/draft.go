// Package preferences edits the connection profile the way a preferences
// dialog does: changes accumulate in memory and are written on Apply.
package preferences

import (
	"fmt"
	"os"

	"github.com/rescale/brocoli/internal/catalog"
	"github.com/rescale/brocoli/internal/config"
	"github.com/rescale/brocoli/internal/form"
)

// NewConnectionName is the name proposed for a fresh connection.
const NewConnectionName = "new-connection"

// Draft is a connection being created or edited.
type Draft struct {
	reg       *catalog.Registry
	name      string
	typ       catalog.Type
	root      string
	isDefault bool
	fields    *form.Fields
	// entered holds every value set so far, serialized, so that switching
	// catalog types back and forth does not lose them.
	entered form.Values
}

// NewDraft starts a connection of the first registered type rooted at the
// temp directory.
func NewDraft(reg *catalog.Registry) (*Draft, error) {
	names := reg.Names()
	if len(names) == 0 {
		return nil, fmt.Errorf("no catalog types registered: %w", catalog.ErrUnknownType)
	}
	d := &Draft{reg: reg, name: NewConnectionName, root: os.TempDir(), entered: form.Values{}}
	if err := d.SetCatalogType(names[0]); err != nil {
		return nil, err
	}
	return d, nil
}

// EditDraft loads the named connection of cfg.
func EditDraft(reg *catalog.Registry, cfg *config.Config, name string) (*Draft, error) {
	conn, err := cfg.Connection(name)
	if err != nil {
		return nil, err
	}
	d := &Draft{
		reg:       reg,
		name:      conn.Name,
		root:      conn.RootPath,
		isDefault: conn.Name == cfg.DefaultConnection,
		entered:   conn.Params.Clone(),
	}
	if err := d.SetCatalogType(conn.CatalogType); err != nil {
		return nil, err
	}
	return d, nil
}

// SetCatalogType switches the backend type, re-applying every value entered so
// far that the new type also declares.
func (d *Draft) SetCatalogType(name string) error {
	t, err := d.reg.Lookup(name)
	if err != nil {
		return err
	}
	fields := t.Fields()
	for _, k := range fields.Names() {
		v, ok := d.entered[k]
		if !ok {
			continue
		}
		f, _ := fields.Get(k)
		// A value that does not fit the new type's field keeps the default.
		_ = f.FromString(v)
	}
	d.typ = t
	d.fields = fields
	return nil
}

// Set assigns a catalog field. Password fields take clear text.
func (d *Draft) Set(field, value string) error {
	f, ok := d.fields.Get(field)
	if !ok {
		return fmt.Errorf("%s has no field %q", d.typ.Name, field)
	}
	if p, ok := f.(*form.PasswordField); ok {
		p.Set(value)
		enc, err := p.Encoded()
		if err != nil {
			p.Set("")
			return fmt.Errorf("%s: %w", field, err)
		}
		d.entered[field] = enc
		return nil
	}
	if err := f.FromString(value); err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	d.entered[field] = f.String()
	return nil
}

func (d *Draft) SetName(name string)  { d.name = name }
func (d *Draft) SetRoot(root string)  { d.root = root }
func (d *Draft) SetDefault(def bool)  { d.isDefault = def }
func (d *Draft) Name() string         { return d.name }
func (d *Draft) CatalogType() string  { return d.typ.Name }
func (d *Draft) Root() string         { return d.root }
func (d *Draft) IsDefault() bool      { return d.isDefault }
func (d *Draft) Fields() *form.Fields { return d.fields }

// Result returns the connection to store and whether it becomes the default.
// Secrets the user chose not to store are dropped.
func (d *Draft) Result() (config.Connection, bool, error) {
	if err := config.ValidateName(d.name); err != nil {
		return config.Connection{}, false, err
	}
	for _, name := range catalog.SecretFields(d.fields) {
		if !d.fields.Active(name) {
			f, _ := d.fields.Get(name)
			f.(*form.PasswordField).Set("")
		}
	}
	params, err := d.fields.Values()
	if err != nil {
		return config.Connection{}, false, err
	}
	return config.Connection{
		Name:        d.name,
		CatalogType: d.typ.Name,
		RootPath:    d.root,
		Params:      params,
	}, d.isDefault, nil
}
