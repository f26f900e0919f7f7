package catalog

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rescale/brocoli/internal/form"
)

func TestEachYieldsOneUnitPerItem(t *testing.T) {
	var seen []string
	seq := Each(context.Background(), []string{"a", "b", "c"}, func(_ context.Context, item string) error {
		seen = append(seen, item)
		return nil
	})

	assert.Empty(t, seen, "no work before the sequence is consumed")

	units, err := Collect(seq)
	require.NoError(t, err)
	assert.Equal(t, []Progress{{1, 3}, {2, 3}, {3, 3}}, units)
	assert.Equal(t, []string{"a", "b", "c"}, seen)
}

func TestEachEmptyInput(t *testing.T) {
	calls := 0
	units, err := Collect(Each(context.Background(), nil, func(context.Context, string) error {
		calls++
		return nil
	}))
	require.NoError(t, err)
	assert.Empty(t, units)
	assert.Zero(t, calls)
}

func TestEachStopsOnFirstError(t *testing.T) {
	boom := errors.New("boom")
	var seen []string
	seq := Each(context.Background(), []string{"a", "b", "c"}, func(_ context.Context, item string) error {
		seen = append(seen, item)
		if item == "b" {
			return boom
		}
		return nil
	})

	done, err := Drain(seq)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, done)
	assert.Equal(t, []string{"a", "b"}, seen, "items after the failure are not processed")
}

func TestEachCallerStopsEarly(t *testing.T) {
	var seen []string
	seq := Each(context.Background(), []string{"a", "b", "c"}, func(_ context.Context, item string) error {
		seen = append(seen, item)
		return nil
	})
	for p, err := range seq {
		require.NoError(t, err)
		if p.Done == 1 {
			break
		}
	}
	assert.Equal(t, []string{"a"}, seen)
}

func TestEachRestartsFromTheStart(t *testing.T) {
	calls := 0
	seq := Each(context.Background(), []string{"a", "b"}, func(context.Context, string) error {
		calls++
		return nil
	})
	_, err := Drain(seq)
	require.NoError(t, err)
	_, err = Drain(seq)
	require.NoError(t, err)
	assert.Equal(t, 4, calls)
}

func TestEachHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	seq := Each(ctx, []string{"a", "b", "c"}, func(_ context.Context, item string) error {
		if item == "a" {
			cancel()
		}
		return nil
	})
	done, err := Drain(seq)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, done)
}

func TestFail(t *testing.T) {
	boom := errors.New("boom")
	units, err := Collect(Fail(boom))
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, units)
}

func TestProgressFraction(t *testing.T) {
	assert.Equal(t, 0.5, Progress{Done: 1, Total: 2}.Fraction())
	assert.Equal(t, 1.0, Progress{}.Fraction())
}

func TestWrapErrorClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind error
	}{
		{"not exist", &fs.PathError{Op: "open", Path: "/x", Err: fs.ErrNotExist}, ErrNotFound},
		{"exist", fmt.Errorf("mkdir: %w", os.ErrExist), ErrAlreadyExists},
		{"not dir", ErrNotADirectory, ErrNotADirectory},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := WrapError("op", "/x", tt.err)
			assert.ErrorIs(t, err, tt.kind)
			assert.ErrorIs(t, err, tt.err, "cause stays reachable")
		})
	}

	plain := errors.New("disk on fire")
	err := WrapError("copy", "/x", plain)
	assert.ErrorIs(t, err, plain)
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, "copy /x: disk on fire", err.Error())

	assert.NoError(t, WrapError("op", "/x", nil))

	classified := NewError("stat", "/y", ErrNotFound)
	assert.Same(t, classified, WrapError("again", "/y", classified))
	assert.Equal(t, "stat /y: no such file or directory", classified.Error())
	assert.True(t, IsNotFound(classified))
}

type stubCatalog struct{ Catalog }

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	opened := ""
	require.NoError(t, reg.Register(Type{
		Name: "stub",
		Open: func(_ context.Context, root string, _ form.Values) (Catalog, error) {
			opened = root
			return stubCatalog{}, nil
		},
	}))
	require.NoError(t, reg.Register(Type{
		Name:   "broken",
		Fields: func() *form.Fields { return form.NewFields().Add("host", form.NewText("host:", "")) },
		Open: func(context.Context, string, form.Values) (Catalog, error) {
			return nil, errors.New("no route")
		},
	}))

	err := reg.Register(Type{Name: "stub", Open: func(context.Context, string, form.Values) (Catalog, error) { return nil, nil }})
	assert.ErrorIs(t, err, ErrDuplicateType)
	assert.Error(t, reg.Register(Type{Name: "noopener"}))

	assert.Equal(t, []string{"broken", "stub"}, reg.Names())

	typ, err := reg.Lookup("stub")
	require.NoError(t, err)
	assert.Equal(t, 0, typ.Fields().Len(), "missing Fields defaults to an empty set")

	typ, err = reg.Lookup("broken")
	require.NoError(t, err)
	assert.Equal(t, []string{"host"}, typ.Fields().Names())

	_, err = reg.Lookup("irods")
	assert.ErrorIs(t, err, ErrUnknownType)

	_, err = reg.Lookup("irods3")
	assert.ErrorIs(t, err, ErrUnknownType)
	assert.ErrorContains(t, err, "iRODS 3")
	assert.ErrorContains(t, err, "no longer supported")

	cat, err := reg.Open(context.Background(), "stub", "/data", nil)
	require.NoError(t, err)
	assert.NotNil(t, cat)
	assert.Equal(t, "/data", opened)

	_, err = reg.Open(context.Background(), "broken", "/", nil)
	assert.ErrorContains(t, err, "open broken catalog: no route")
}
