// Package speech accumulates speech-to-text results into a transcript.
package speech

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
)

var ErrAlreadyListening = errors.New("speech session is already listening")

// Result is one recognition result. Interim results are provisional and
// are replaced by the next result; final results are committed.
type Result struct {
	Text  string
	Final bool
}

// Recognizer is a speech-to-text engine. Callbacks may arrive on any
// goroutine, including after Stop returns. A recognizer that runs out of
// input reports io.EOF, which ends listening without an error.
type Recognizer interface {
	Start(ctx context.Context, onResult func(Result), onErr func(error)) error
	Stop() error
}

// Transcript is the state reported to the session's observer.
type Transcript struct {
	Text      string
	Listening bool
	Err       error
}

// Session wraps a Recognizer and builds the working transcript. Results
// and errors from a previous Start are discarded.
type Session struct {
	rec      Recognizer
	onChange func(Transcript)

	mu        sync.Mutex
	gen       uint64
	listening bool
	committed string
	interim   string
	err       error
}

// NewSession returns a session reporting every change to onChange, which
// may be nil.
func NewSession(rec Recognizer, onChange func(Transcript)) *Session {
	return &Session{rec: rec, onChange: onChange}
}

// Start clears the previous error and begins listening. The transcript is
// kept so several utterances can be dictated in a row.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.listening {
		s.mu.Unlock()
		return ErrAlreadyListening
	}
	s.gen++
	gen := s.gen
	s.listening = true
	s.err = nil
	s.mu.Unlock()
	s.notify()

	err := s.rec.Start(ctx,
		func(r Result) { s.handleResult(gen, r) },
		func(err error) { s.handleError(gen, err) },
	)
	if err != nil {
		s.mu.Lock()
		if s.gen == gen {
			s.listening = false
			s.err = err
		}
		s.mu.Unlock()
		s.notify()
		return err
	}
	return nil
}

// Stop ends listening. Late callbacks from the recognizer are ignored.
func (s *Session) Stop() error {
	s.mu.Lock()
	if !s.listening {
		s.mu.Unlock()
		return nil
	}
	s.gen++
	s.listening = false
	s.interim = ""
	s.mu.Unlock()
	s.notify()

	return s.rec.Stop()
}

// Reset drops the transcript and the last error.
func (s *Session) Reset() {
	s.mu.Lock()
	s.committed, s.interim, s.err = "", "", nil
	s.mu.Unlock()
	s.notify()
}

func (s *Session) Transcript() Transcript {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcriptLocked()
}

func (s *Session) handleResult(gen uint64, r Result) {
	text := strings.TrimSpace(r.Text)
	if text == "" {
		return
	}

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	if r.Final {
		s.committed = join(s.committed, text)
		s.interim = ""
	} else {
		s.interim = text
	}
	s.mu.Unlock()
	s.notify()
}

func (s *Session) handleError(gen uint64, err error) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.gen++
	s.listening = false
	s.interim = ""
	if !errors.Is(err, io.EOF) {
		s.err = err
	}
	s.mu.Unlock()
	s.notify()
}

func (s *Session) transcriptLocked() Transcript {
	return Transcript{
		Text:      join(s.committed, s.interim),
		Listening: s.listening,
		Err:       s.err,
	}
}

func (s *Session) notify() {
	if s.onChange == nil {
		return
	}
	s.mu.Lock()
	t := s.transcriptLocked()
	s.mu.Unlock()
	s.onChange(t)
}

func join(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + " " + b
	}
}
