package speech

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
)

// InterimPrefix marks a line as an interim result.
const InterimPrefix = "~"

// LineRecognizer turns lines read from r, typically the stdout of an
// external speech-to-text process, into results. Lines starting with
// InterimPrefix are interim; every other non-empty line is final.
//
// The end of input is reported to onErr as io.EOF unless Stop came first.
// If r is an io.Closer, Stop closes it to unblock a pending read.
type LineRecognizer struct {
	r io.Reader

	mu      sync.Mutex
	started bool
	stopped bool
	stopCh  chan struct{}
}

func NewLineRecognizer(r io.Reader) *LineRecognizer {
	return &LineRecognizer{r: r, stopCh: make(chan struct{})}
}

// Start may only be called once; a LineRecognizer consumes its reader.
func (l *LineRecognizer) Start(ctx context.Context, onResult func(Result), onErr func(error)) error {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return errors.New("line recognizer already started")
	}
	l.started = true
	l.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			_ = l.Stop()
		case <-l.stopCh:
		}
	}()

	go func() {
		sc := bufio.NewScanner(l.r)
		for sc.Scan() {
			if l.isStopped() {
				return
			}
			line := strings.TrimSpace(sc.Text())
			if line == "" {
				continue
			}
			if strings.HasPrefix(line, InterimPrefix) {
				onResult(Result{Text: strings.TrimPrefix(line, InterimPrefix)})
				continue
			}
			onResult(Result{Text: line, Final: true})
		}
		if l.isStopped() {
			return
		}
		if err := sc.Err(); err != nil {
			onErr(err)
			return
		}
		onErr(io.EOF)
	}()
	return nil
}

func (l *LineRecognizer) Stop() error {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return nil
	}
	l.stopped = true
	close(l.stopCh)
	l.mu.Unlock()

	if c, ok := l.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (l *LineRecognizer) isStopped() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stopped
}
