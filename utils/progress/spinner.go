// Package progress provides the terminal spinner shown while the pipeline
// waits on LLM calls.
package progress

import (
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/term"
)

// Spinner renders an animated progress indicator on stderr. It disables
// itself automatically when stderr is not a terminal.
type Spinner struct {
	chars    []string
	index    int
	message  string
	stop     chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	started  bool
	stopped  bool
	disabled bool
}

// NewSpinner creates a spinner ready to start.
func NewSpinner() *Spinner {
	return &Spinner{
		chars:    []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
		stop:     make(chan struct{}),
		disabled: !term.IsTerminal(int(os.Stderr.Fd())),
	}
}

// Disable prevents the spinner from producing any output.
func (s *Spinner) Disable() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disabled = true
}

// Start begins the animation with the given message.
func (s *Spinner) Start(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.disabled {
		s.message = message
		return
	}
	s.message = message
	s.started = true

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				fmt.Fprint(os.Stderr, "\r\033[K")
				return
			case <-ticker.C:
				s.mu.Lock()
				frame := s.chars[s.index%len(s.chars)]
				s.index++
				msg := s.message
				s.mu.Unlock()
				fmt.Fprintf(os.Stderr, "\r%s %s", frame, msg)
			}
		}
	}()
}

// Update changes the message without restarting the animation.
func (s *Spinner) Update(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.message = message
}

// Stop ends the animation and clears the line.
func (s *Spinner) Stop() {
	s.mu.Lock()
	if s.stopped || !s.started {
		s.stopped = true
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	close(s.stop)
	s.wg.Wait()
}
