package catalog

import (
	"fmt"
	"slices"

	encryption "github.com/rescale/brocoli/internal/crypto"
	"github.com/rescale/brocoli/internal/form"
)

// KeyStoreSecret is the boolean field deciding whether a backend secret is
// persisted in the profile file or asked for on every connection.
const KeyStoreSecret = "store_secret"

const secretTag = "secret"

// AddSecret appends the store_secret toggle and a password field called name.
// The password is obscured at rest and only active while store_secret is set.
// Extra tags let another boolean disable both fields.
func AddSecret(fs *form.Fields, name, label string, tags ...string) *form.Fields {
	return fs.
		Add(KeyStoreSecret, form.NewBoolean("store secret in profile", true, form.BoolOptions{
			Tags:    tags,
			Enables: []string{secretTag},
		})).
		Add(name, form.NewPassword(label, encryption.FieldCodec(), form.Options{
			Tags: append([]string{secretTag}, tags...),
		}))
}

// SecretFields returns the password fields that AddSecret declared.
func SecretFields(fs *form.Fields) []string {
	var names []string
	for _, name := range fs.Names() {
		f, _ := fs.Get(name)
		if _, ok := f.(*form.PasswordField); ok && slices.Contains(f.Tags(), secretTag) {
			names = append(names, name)
		}
	}
	return names
}

// LoadFields returns a fresh field set of t holding values.
func LoadFields(t Type, values form.Values) (*form.Fields, error) {
	fs := t.Fields()
	if err := fs.Load(values); err != nil {
		return nil, fmt.Errorf("%s settings: %w", t.Name, err)
	}
	return fs, nil
}

// Require checks that every named field has a non-empty value.
func Require(fs *form.Fields, names ...string) error {
	for _, name := range names {
		if fs.Secret(name) == "" {
			return fmt.Errorf("%s: %w", name, ErrMissingSetting)
		}
	}
	return nil
}
