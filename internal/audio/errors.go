package audio

import (
	"errors"
	"fmt"
)

// Error definitions for the audio package.
var (
	// ErrNotFound indicates a source path that does not exist.
	ErrNotFound = errors.New("audio source not found")

	// ErrInvalidInput indicates an audio source the codec cannot accept.
	ErrInvalidInput = errors.New("invalid audio input")

	// ErrEncoding indicates an I/O failure while producing encoded output.
	ErrEncoding = errors.New("audio encoding failed")

	// ErrDecoding indicates a malformed or unreadable byte stream.
	ErrDecoding = errors.New("audio decoding failed")
)

// UnsupportedFormatError is returned for encode formats outside the
// supported set. Optional-capability degradation (lossy encoder missing)
// never produces this error; it is reserved for formats the codec does not
// know at all.
type UnsupportedFormatError struct {
	Format    string
	Supported []Format
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported audio format %q, supported: %v", e.Format, e.Supported)
}
