package viewmodel

import "errors"

var (
	// ErrNoParent is returned by mutations that need a parent when none is set.
	ErrNoParent = errors.New("viewmodel: no parent selected")

	// ErrClosed is returned by mutations after Close.
	ErrClosed = errors.New("viewmodel: model closed")
)
