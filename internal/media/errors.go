package media

import (
	"errors"
	"fmt"
)

// ErrNoRecorder is returned by Recorder.Record when no capture command is configured.
var ErrNoRecorder = errors.New("no capture command configured")

// IOError reports a failure to read a content reference or write its local copy.
type IOError struct {
	Op  string // "open", "read", "create", "write"
	Ref string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("materialize %s %s: %v", e.Op, e.Ref, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}
