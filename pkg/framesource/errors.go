package framesource

import (
	"errors"
	"fmt"
)

var (
	// ErrTrackNotFound is returned by Prepare when the container has no
	// video track.
	ErrTrackNotFound = errors.New("framesource: no video track")

	// ErrAlreadyPrepared is returned by a second Prepare.
	ErrAlreadyPrepared = errors.New("framesource: already prepared")

	// ErrNotPrepared is returned by control operations before Prepare.
	ErrNotPrepared = errors.New("framesource: not prepared")

	// ErrReleased is returned by every operation after Destroy.
	ErrReleased = errors.New("framesource: released")

	// ErrDecoder matches every *DecoderError.
	ErrDecoder = errors.New("framesource: decoder failed")
)

// DecoderError is the terminal error of a source whose decoder failed,
// either asynchronously or on a buffer operation issued by the pump.
type DecoderError struct {
	Op  string
	Err error
}

func (e *DecoderError) Error() string {
	return fmt.Sprintf("framesource: decoder failed: %s: %v", e.Op, e.Err)
}

func (e *DecoderError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrDecoder) true for any DecoderError.
func (e *DecoderError) Is(target error) bool { return target == ErrDecoder }
