package config

import (
	"context"
	"fmt"

	"github.com/rescale/brocoli/internal/catalog"
	"github.com/rescale/brocoli/internal/form"
	"github.com/rescale/brocoli/internal/logging"
)

// Prompt asks the user for a secret that is not stored in the profile.
type Prompt func(connection, label string) (string, error)

// Fields returns the field set of conn's catalog type holding its params.
func Fields(reg *catalog.Registry, conn Connection) (*form.Fields, error) {
	t, err := reg.Lookup(conn.CatalogType)
	if err != nil {
		return nil, fmt.Errorf("connection %s: %w", conn.Name, err)
	}
	fs, err := catalog.LoadFields(t, conn.Params)
	if err != nil {
		return nil, fmt.Errorf("connection %s: %w", conn.Name, err)
	}
	return fs, nil
}

// Open instantiates the catalog described by conn. Secrets the user chose not
// to store are requested through prompt; a nil prompt leaves them empty.
func Open(ctx context.Context, reg *catalog.Registry, conn Connection, prompt Prompt) (catalog.Catalog, error) {
	fs, err := Fields(reg, conn)
	if err != nil {
		return nil, err
	}

	if fs.Active(catalog.KeyStoreSecret) && !fs.Bool(catalog.KeyStoreSecret) && prompt != nil {
		for _, name := range catalog.SecretFields(fs) {
			f, _ := fs.Get(name)
			secret, err := prompt(conn.Name, f.Label())
			if err != nil {
				return nil, fmt.Errorf("connection %s: %w", conn.Name, err)
			}
			f.(*form.PasswordField).Set(secret)
		}
	}

	logging.FromContext(ctx).Debug().
		Str("connection", conn.Name).
		Str("type", conn.CatalogType).
		Str("root", conn.RootPath).
		Msg("Opening catalog")

	values, err := fs.Values()
	if err != nil {
		return nil, fmt.Errorf("connection %s: %w", conn.Name, err)
	}
	return reg.Open(ctx, conn.CatalogType, conn.RootPath, values)
}
