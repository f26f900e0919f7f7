package catalog

import (
	"errors"
	"io/fs"
	"os"
	"strings"
)

// Classified catalog errors. Backends wrap them in *PathError so that both the
// classification and the underlying cause stay reachable through errors.Is/As.
var (
	ErrNotFound       = errors.New("no such file or directory")
	ErrNotADirectory  = errors.New("not a directory")
	ErrAlreadyExists  = errors.New("already exists")
	ErrUnknownType    = errors.New("unknown catalog type")
	ErrDuplicateType  = errors.New("catalog type already registered")
	ErrMissingSetting = errors.New("missing connection setting")
)

// PathError records the operation and path that failed.
type PathError struct {
	Op   string
	Path string
	Kind error // one of the sentinels above, or nil for unclassified I/O failures
	Err  error // underlying cause, may be nil
}

func (e *PathError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteString(" ")
	b.WriteString(e.Path)
	b.WriteString(": ")
	switch {
	case e.Err != nil:
		b.WriteString(e.Err.Error())
	case e.Kind != nil:
		b.WriteString(e.Kind.Error())
	default:
		b.WriteString("unknown error")
	}
	return b.String()
}

func (e *PathError) Unwrap() []error {
	var errs []error
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// NewError builds a classified error with no separate cause.
func NewError(op, path string, kind error) error {
	return &PathError{Op: op, Path: path, Kind: kind}
}

// WrapError classifies err, mapping io/fs sentinels onto catalog ones.
// It returns nil for a nil err.
func WrapError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PathError
	if errors.As(err, &pe) && pe.Kind != nil {
		return err
	}
	var kind error
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, fs.ErrNotExist):
		kind = ErrNotFound
	case errors.Is(err, ErrAlreadyExists), errors.Is(err, fs.ErrExist):
		kind = ErrAlreadyExists
	case errors.Is(err, ErrNotADirectory):
		kind = ErrNotADirectory
	}
	return &PathError{Op: op, Path: path, Kind: kind, Err: err}
}

// IsNotFound reports whether err is classified as ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// RequireLocalDir checks that dir is an existing local directory. Remote
// backends call it before writing a download.
func RequireLocalDir(op, dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return WrapError(op, dir, err)
	}
	if !info.IsDir() {
		return NewError(op, dir, ErrNotADirectory)
	}
	return nil
}
