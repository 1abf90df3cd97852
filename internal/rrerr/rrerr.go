// Package rrerr defines the error taxonomy shared by the container codec, the
// backing store, and the session manager.
//
// Every failure that crosses a package boundary is an [*Error] carrying a
// [Kind], the operation, the offending path or key, and the underlying cause.
// Callers branch on the kind with [errors.Is] against the sentinel errors:
//
//	if errors.Is(err, rrerr.ErrNoActiveSession) { ... }
//
// The cause stays reachable too, so errors.Is(err, fs.ErrNotExist) keeps
// working for filesystem failures.
package rrerr

import (
	"errors"
	"strings"
)

// Kind classifies a failure.
type Kind uint8

const (
	// KindUnknown is the zero Kind. It is never produced by this module.
	KindUnknown Kind = iota
	KindNoActiveSession
	KindUnsupportedFormat
	KindArchiveCorrupt
	KindFilesystem
	KindStore
	KindInvalidRecordEncoding
	KindValidation
	KindContainerBusy
)

// Sentinel errors, one per Kind.
var (
	ErrNoActiveSession       = errors.New("no document open")
	ErrUnsupportedFormat     = errors.New("unsupported format")
	ErrArchiveCorrupt        = errors.New("archive corrupt")
	ErrFilesystem            = errors.New("filesystem failure")
	ErrStore                 = errors.New("store failure")
	ErrInvalidRecordEncoding = errors.New("invalid record encoding")
	ErrValidation            = errors.New("validation failed")
	ErrContainerBusy         = errors.New("container is open in another process")
)

var kindSentinels = [...]error{
	KindUnknown:               nil,
	KindNoActiveSession:       ErrNoActiveSession,
	KindUnsupportedFormat:     ErrUnsupportedFormat,
	KindArchiveCorrupt:        ErrArchiveCorrupt,
	KindFilesystem:            ErrFilesystem,
	KindStore:                 ErrStore,
	KindInvalidRecordEncoding: ErrInvalidRecordEncoding,
	KindValidation:            ErrValidation,
	KindContainerBusy:         ErrContainerBusy,
}

// String returns the sentinel message for k.
func (k Kind) String() string {
	if int(k) >= len(kindSentinels) || kindSentinels[k] == nil {
		return "unknown"
	}

	return kindSentinels[k].Error()
}

// Sentinel returns the sentinel error for k, or nil for KindUnknown.
func (k Kind) Sentinel() error {
	if int(k) >= len(kindSentinels) {
		return nil
	}

	return kindSentinels[k]
}

// Error is the structured error returned by all public APIs of this module.
//
// It formats as "<op> <path>: <kind>: <cause>", e.g.
//
//	decode /home/me/paper.rr: archive corrupt: entry "../x" escapes working directory
type Error struct {
	Kind Kind

	// Op is the failing operation ("open", "encode", "create annotation", ...).
	Op string

	// Path is the offending file path, or the record key/id for store errors.
	Path string

	// Err is the underlying cause. May be nil when the kind says it all.
	Err error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}

	var b strings.Builder

	if e.Op != "" {
		b.WriteString(e.Op)
	}

	if e.Path != "" {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}

		b.WriteString(e.Path)
	}

	if b.Len() > 0 {
		b.WriteString(": ")
	}

	b.WriteString(e.Kind.String())

	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}

	return b.String()
}

// Unwrap exposes both the kind sentinel and the cause to [errors.Is]/[errors.As].
func (e *Error) Unwrap() []error {
	if e == nil {
		return nil
	}

	errs := make([]error, 0, 2)

	if s := e.Kind.Sentinel(); s != nil {
		errs = append(errs, s)
	}

	if e.Err != nil {
		errs = append(errs, e.Err)
	}

	return errs
}

// New returns an *Error. If err is already an *Error it is returned unchanged,
// so the innermost (most specific) classification wins.
func New(kind Kind, op, path string, err error) error {
	var existing *Error
	if err != nil && errors.As(err, &existing) {
		return err
	}

	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// KindOf returns the Kind of the outermost *Error in err's chain, or
// KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	return KindUnknown
}
