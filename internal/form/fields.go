package form

import (
	"fmt"
	"slices"
	"strconv"
)

// Values is the serialized form of a set of fields, keyed by field name.
type Values map[string]string

// String returns the raw value for key.
func (v Values) String(key string) string { return v[key] }

// Bool parses key with ParseBool. Missing keys are false.
func (v Values) Bool(key string) (bool, error) {
	return ParseBool(v[key])
}

// Int parses key as an integer, returning def when the key is missing or empty.
func (v Values) Int(key string, def int) (int, error) {
	s, ok := v[key]
	if !ok || s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s=%q: %w", key, s, ErrInvalidInteger)
	}
	return n, nil
}

// Clone returns an independent copy.
func (v Values) Clone() Values {
	out := make(Values, len(v))
	for k, s := range v {
		out[k] = s
	}
	return out
}

// Fields is an ordered mapping of field name to field.
type Fields struct {
	names  []string
	fields map[string]Field
}

// NewFields returns an empty field set.
func NewFields() *Fields {
	return &Fields{fields: make(map[string]Field)}
}

// Add appends a field. Adding an existing name replaces the field in place.
func (fs *Fields) Add(name string, f Field) *Fields {
	if _, ok := fs.fields[name]; !ok {
		fs.names = append(fs.names, name)
	}
	fs.fields[name] = f
	return fs
}

// Get returns the field registered under name.
func (fs *Fields) Get(name string) (Field, bool) {
	if fs == nil {
		return nil, false
	}
	f, ok := fs.fields[name]
	return f, ok
}

// Names returns field names in declaration order.
func (fs *Fields) Names() []string {
	if fs == nil {
		return nil
	}
	return slices.Clone(fs.names)
}

// Len returns the number of fields.
func (fs *Fields) Len() int {
	if fs == nil {
		return 0
	}
	return len(fs.names)
}

// Load assigns every known key of vals to its field. Unknown keys are ignored
// so that connection-level settings can share the same map.
func (fs *Fields) Load(vals Values) error {
	for _, name := range fs.Names() {
		s, ok := vals[name]
		if !ok {
			continue
		}
		if err := fs.fields[name].FromString(s); err != nil {
			return fmt.Errorf("field %s: %w", name, err)
		}
	}
	return nil
}

// Values serializes every field. It fails if a secret cannot be encoded.
func (fs *Fields) Values() (Values, error) {
	out := make(Values, fs.Len())
	for _, name := range fs.Names() {
		f := fs.fields[name]
		if p, ok := f.(*PasswordField); ok {
			enc, err := p.Encoded()
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", name, err)
			}
			out[name] = enc
			continue
		}
		out[name] = f.String()
	}
	return out, nil
}

// Active reports whether the named field currently takes part in the form.
// A field is inactive when a set boolean disables one of its tags, or when a
// boolean that enables one of its tags is unset.
func (fs *Fields) Active(name string) bool {
	f, ok := fs.Get(name)
	if !ok {
		return false
	}
	for _, other := range fs.Names() {
		b, ok := fs.fields[other].(*BooleanField)
		if !ok || other == name {
			continue
		}
		for _, tag := range f.Tags() {
			if b.Bool() && slices.Contains(b.Disables(), tag) {
				return false
			}
			if !b.Bool() && slices.Contains(b.Enables(), tag) {
				return false
			}
		}
	}
	return true
}

// String returns the serialized value of name, or "" if there is no such field.
func (fs *Fields) String(name string) string {
	f, ok := fs.Get(name)
	if !ok {
		return ""
	}
	return f.String()
}

// Secret returns the clear-text value of a password field.
func (fs *Fields) Secret(name string) string {
	if f, ok := fs.Get(name); ok {
		if p, ok := f.(*PasswordField); ok {
			return p.Secret()
		}
		return f.String()
	}
	return ""
}

// Bool returns the value of a boolean field; false for any other field.
func (fs *Fields) Bool(name string) bool {
	if f, ok := fs.Get(name); ok {
		if b, ok := f.(*BooleanField); ok {
			return b.Bool()
		}
	}
	return false
}

// Int returns the value of an integer field; 0 for any other field.
func (fs *Fields) Int(name string) int {
	if f, ok := fs.Get(name); ok {
		if n, ok := f.(*IntegerField); ok {
			return n.Int()
		}
	}
	return 0
}
