// Package form describes the typed connection parameters a catalog backend needs.
// Fields carry a string serialization so they can be persisted in the profile
// store and rendered by any front end (CLI prompts today).
package form

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// Kind identifies how a field should be rendered and parsed.
type Kind int

const (
	KindText Kind = iota
	KindPassword
	KindInteger
	KindBoolean
	KindChoice
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindPassword:
		return "password"
	case KindInteger:
		return "integer"
	case KindBoolean:
		return "boolean"
	case KindChoice:
		return "choice"
	default:
		return "unknown"
	}
}

// Validation errors
var (
	ErrInvalidInteger  = errors.New("not an integer")
	ErrInvalidBoolean  = errors.New("not a boolean")
	ErrInvalidHostname = errors.New("not a valid hostname")
	ErrInvalidChoice   = errors.New("not one of the allowed values")
)

// Field is a single typed configuration value.
type Field interface {
	// Label is the human readable prompt.
	Label() string
	Kind() Kind
	// String serializes the current value.
	String() string
	// FromString validates s and makes it the current value.
	FromString(s string) error
	// Validate reports whether s would be accepted by FromString.
	Validate(s string) error
	// Tags group fields so that boolean fields can toggle them.
	Tags() []string
}

// Options are shared by every field type.
type Options struct {
	Tags []string
}

type base struct {
	label string
	tags  []string
}

func (b *base) Label() string  { return b.label }
func (b *base) Tags() []string { return b.tags }

// TextField holds free-form text.
type TextField struct {
	base
	value    string
	validate func(string) error
}

// NewText creates a text field with a default value.
func NewText(label, def string, opts ...Options) *TextField {
	return &TextField{base: newBase(label, opts), value: def}
}

func (f *TextField) Kind() Kind     { return KindText }
func (f *TextField) String() string { return f.value }

func (f *TextField) Validate(s string) error {
	if f.validate != nil {
		return f.validate(s)
	}
	return nil
}

func (f *TextField) FromString(s string) error {
	if err := f.Validate(s); err != nil {
		return err
	}
	f.value = s
	return nil
}

var hostnameRe = regexp.MustCompile(`^([_\-\w]+(\.)?)*$`)

// NewHostname creates a text field accepting host names and dotted addresses.
func NewHostname(label, def string, opts ...Options) *TextField {
	f := NewText(label, def, opts...)
	f.validate = func(s string) error {
		if !hostnameRe.MatchString(s) {
			return fmt.Errorf("%q: %w", s, ErrInvalidHostname)
		}
		return nil
	}
	return f
}

// PasswordField stores a secret. The serialized form is produced by Encode,
// so secrets are never written to the profile store in clear text.
type PasswordField struct {
	base
	value  string
	encode func(string) (string, error)
	decode func(string) (string, error)
}

// Codec converts a secret to and from its stored representation.
type Codec struct {
	Encode func(string) (string, error)
	Decode func(string) (string, error)
}

// NewPassword creates a password field. A zero Codec stores the value as is.
func NewPassword(label string, codec Codec, opts ...Options) *PasswordField {
	f := &PasswordField{base: newBase(label, opts), encode: codec.Encode, decode: codec.Decode}
	if f.encode == nil {
		f.encode = identity
	}
	if f.decode == nil {
		f.decode = identity
	}
	return f
}

func identity(s string) (string, error) { return s, nil }

func (f *PasswordField) Kind() Kind              { return KindPassword }
func (f *PasswordField) Validate(s string) error { return nil }

// Encoded returns the stored representation of the secret.
func (f *PasswordField) Encoded() (string, error) {
	if f.value == "" {
		return "", nil
	}
	enc, err := f.encode(f.value)
	if err != nil {
		return "", fmt.Errorf("encode secret: %w", err)
	}
	return enc, nil
}

// String returns the encoded secret for display, or "" if encoding fails.
// Use Encoded or Fields.Values to persist it.
func (f *PasswordField) String() string {
	enc, _ := f.Encoded()
	return enc
}

// FromString decodes a stored secret.
func (f *PasswordField) FromString(s string) error {
	if s == "" {
		f.value = ""
		return nil
	}
	dec, err := f.decode(s)
	if err != nil {
		return fmt.Errorf("decode secret: %w", err)
	}
	f.value = dec
	return nil
}

// Set assigns a clear-text secret (as typed by the user).
func (f *PasswordField) Set(secret string) { f.value = secret }

// Secret returns the clear-text secret.
func (f *PasswordField) Secret() string { return f.value }

// IntegerField holds a base-10 integer.
type IntegerField struct {
	base
	value int
}

func NewInteger(label string, def int, opts ...Options) *IntegerField {
	return &IntegerField{base: newBase(label, opts), value: def}
}

func (f *IntegerField) Kind() Kind     { return KindInteger }
func (f *IntegerField) String() string { return strconv.Itoa(f.value) }
func (f *IntegerField) Int() int       { return f.value }

func (f *IntegerField) Validate(s string) error {
	if _, err := strconv.Atoi(strings.TrimSpace(s)); err != nil {
		return fmt.Errorf("%q: %w", s, ErrInvalidInteger)
	}
	return nil
}

func (f *IntegerField) FromString(s string) error {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("%q: %w", s, ErrInvalidInteger)
	}
	f.value = v
	return nil
}

// BooleanField holds a flag. Fields tagged with one of Enables are active only
// while the flag is set; fields tagged with one of Disables only while it is not.
type BooleanField struct {
	base
	value    bool
	enables  []string
	disables []string
}

// BoolOptions configures the tags a boolean field toggles.
type BoolOptions struct {
	Tags     []string
	Enables  []string
	Disables []string
}

func NewBoolean(label string, def bool, opts ...BoolOptions) *BooleanField {
	f := &BooleanField{value: def}
	f.label = label
	for _, o := range opts {
		f.tags = append(f.tags, o.Tags...)
		f.enables = append(f.enables, o.Enables...)
		f.disables = append(f.disables, o.Disables...)
	}
	return f
}

func (f *BooleanField) Kind() Kind         { return KindBoolean }
func (f *BooleanField) String() string     { return strconv.FormatBool(f.value) }
func (f *BooleanField) Bool() bool         { return f.value }
func (f *BooleanField) Enables() []string  { return f.enables }
func (f *BooleanField) Disables() []string { return f.disables }

func (f *BooleanField) Validate(s string) error {
	_, err := ParseBool(s)
	return err
}

func (f *BooleanField) FromString(s string) error {
	v, err := ParseBool(s)
	if err != nil {
		return err
	}
	f.value = v
	return nil
}

// ParseBool accepts the spellings found in hand-edited INI files.
func ParseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "yes", "on", "true":
		return true, nil
	case "0", "no", "off", "false", "":
		return false, nil
	}
	return false, fmt.Errorf("%q: %w", s, ErrInvalidBoolean)
}

// ChoiceField holds one value out of a fixed list.
type ChoiceField struct {
	base
	choices []string
	value   string
}

// NewChoice creates a choice field. An empty default selects the first choice.
func NewChoice(label string, choices []string, def string, opts ...Options) *ChoiceField {
	if def == "" && len(choices) > 0 {
		def = choices[0]
	}
	return &ChoiceField{base: newBase(label, opts), choices: choices, value: def}
}

func (f *ChoiceField) Kind() Kind        { return KindChoice }
func (f *ChoiceField) String() string    { return f.value }
func (f *ChoiceField) Choices() []string { return f.choices }

func (f *ChoiceField) Validate(s string) error {
	if !slices.Contains(f.choices, s) {
		return fmt.Errorf("%q (want one of %s): %w", s, strings.Join(f.choices, ", "), ErrInvalidChoice)
	}
	return nil
}

func (f *ChoiceField) FromString(s string) error {
	if err := f.Validate(s); err != nil {
		return err
	}
	f.value = s
	return nil
}

func newBase(label string, opts []Options) base {
	b := base{label: label}
	for _, o := range opts {
		b.tags = append(b.tags, o.Tags...)
	}
	return b
}
