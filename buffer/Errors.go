package buffer

import "errors"

// BufferError implements errors unique to a sample buffer.
type BufferError struct {
	Op  string
	Err error
}

// Error satisfies the error interface
func (e *BufferError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

var errEmptyBuffer error = errors.New("buffer empty")

var errInsufficientSamples = errors.New("fewer stored samples than requested")

// IsInsufficientSamples returns whether or not an error reports that
// the buffer holds fewer samples than a batch requires.
func IsInsufficientSamples(err error) bool {
	if bufErr, ok := err.(*BufferError); ok {
		err = bufErr.Err
	}
	return err == errInsufficientSamples
}

// IsEmptyBuffer returns whether or not an error reports that a sample
// buffer is empty.
func IsEmptyBuffer(err error) bool {
	if bufErr, ok := err.(*BufferError); ok {
		err = bufErr.Err
	}
	return err == errEmptyBuffer
}
