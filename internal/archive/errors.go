package archive

import (
	"errors"
	"fmt"
)

var (
	// ErrDestExists is returned when the destination exists and force is unset.
	ErrDestExists = errors.New("destination already exists")
	// ErrMultiSourceNeedsADRDSSU is returned when several MVS sources are
	// packed without an ADRDSSU container.
	ErrMultiSourceNeedsADRDSSU = errors.New("more than one MVS source requires use_adrdssu")
	// ErrIncludeExclude is returned when include and exclude are both given.
	ErrIncludeExclude = errors.New("include and exclude are mutually exclusive")
	// ErrBadZip is returned when a destination or source is not a zip archive.
	ErrBadZip = errors.New("not a valid zip archive")
)

// Failure is a fatal run error carrying the payload reported to the caller.
type Failure struct {
	Msg       string
	RC        int
	Stdout    string
	Stderr    string
	DestState State
	Err       error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %v", f.Msg, f.Err)
	}
	return f.Msg
}

func (f *Failure) Unwrap() error { return f.Err }

func failf(err error, format string, args ...any) *Failure {
	return &Failure{Msg: fmt.Sprintf(format, args...), Err: err}
}
