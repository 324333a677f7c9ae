package upload

import "fmt"

// Result is the single terminal outcome of an upload. It is one of
// Success, HTTPFailure or TransportFailure.
type Result interface {
	isResult()
	fmt.Stringer
}

// Success carries the sentence the server interpreted from the video.
type Success struct {
	Sentence string
}

// HTTPFailure means a response arrived but was not usable: a non-2xx status,
// an undecodable body, or a body without a sentence.
type HTTPFailure struct {
	StatusCode        int
	StatusDescription string
}

// TransportFailure means no response was obtained at all.
type TransportFailure struct {
	Reason string
}

func (Success) isResult()          {}
func (HTTPFailure) isResult()      {}
func (TransportFailure) isResult() {}

func (s Success) String() string { return fmt.Sprintf("success: %q", s.Sentence) }

func (f HTTPFailure) String() string {
	return fmt.Sprintf("http failure (%d): %s", f.StatusCode, f.StatusDescription)
}

func (f TransportFailure) String() string { return "transport failure: " + f.Reason }
