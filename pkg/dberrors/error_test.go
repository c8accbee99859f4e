package dberrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewCapturesCategoryAndCode(t *testing.T) {
	err := New(ErrCategoryData, "BAD_HEADER", "corrupt page header")
	require.Equal(t, ErrCategoryData, err.Category)
	require.Contains(t, err.Error(), "BAD_HEADER")
	require.Contains(t, err.Error(), "corrupt page header")
}

func TestWrapPreservesCauseForErrorsIs(t *testing.T) {
	cause := errors.New("disk exploded")
	wrapped := Wrap(cause, "IO_FAILED", "ReadPage", "buffer")

	require.ErrorIs(t, wrapped, cause)
	require.Equal(t, "ReadPage", wrapped.Operation)
	require.Equal(t, "buffer", wrapped.Component)
}

func TestWrapOnAlreadyWrappedErrorKeepsFirstOperation(t *testing.T) {
	inner := New(ErrCategorySystem, "X", "boom")
	inner.Operation = "first"

	got := Wrap(inner, "Y", "second", "component")
	require.Equal(t, "first", got.Operation, "Wrap must not override an operation already set")
}

func TestWrapNilReturnsNil(t *testing.T) {
	require.Nil(t, Wrap(nil, "X", "op", "component"))
}
