package extract

import (
	"errors"

	"github.com/dhcgn/archive-extract/container"
)

var (
	ErrNotFound             = container.ErrNotFound
	ErrUnsupportedContainer = container.ErrUnsupported

	// ErrMissingRequiredOutput is returned before any output is written when
	// a directory the container kind needs was not supplied.
	ErrMissingRequiredOutput = errors.New("missing required output directory")
	// ErrRecordWrite wraps a failure to write a single artifact. It is
	// logged and never returned from Extract.
	ErrRecordWrite             = errors.New("record write failed")
	ErrExternalToolUnavailable = errors.New("external converter unavailable")
	ErrExternalToolFailure     = errors.New("external converter failed")
	ErrStreamRead              = errors.New("stream read failed")
	ErrNoParser                = errors.New("no in-process pst parser configured")
)
