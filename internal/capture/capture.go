// Package capture provides non-blocking output capture for child processes
// and the pattern assertions the scenario suite is built on.
//
// A Capture drains a process's combined stdout/stderr into an append-only,
// mutex-guarded transcript. Readers always see a consistent snapshot; the
// transcript is never truncated while the process runs. Two query
// primitives are offered: a non-blocking "has this already appeared" check
// and a bounded poll-with-timeout wait.
package capture

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// DefaultWaitTimeout bounds a WaitForOutput call when no explicit timeout
// is configured. Every wait must fail, not hang, on expiry.
const DefaultWaitTimeout = 10 * time.Second

// DefaultPollQuantum is the sleep between transcript re-checks.
const DefaultPollQuantum = 100 * time.Millisecond

// Capture collects a child process's combined output into an append-only
// transcript.
type Capture struct {
	mu    sync.RWMutex
	lines []string

	reader *io.PipeReader
	writer *io.PipeWriter
	wg     sync.WaitGroup

	closeOnce sync.Once
}

// New creates a Capture and starts draining its writer side.
func New() *Capture {
	c := &Capture{}
	c.reader, c.writer = io.Pipe()

	c.wg.Add(1)
	go c.drain()

	return c
}

// Writer returns the io.Writer to attach to the child's stdout and stderr.
// Both may share it; the pipe serializes writes.
func (c *Capture) Writer() io.Writer {
	return c.writer
}

// drain appends complete lines to the transcript until the writer closes.
func (c *Capture) drain() {
	defer c.wg.Done()

	scanner := bufio.NewScanner(c.reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		c.mu.Lock()
		c.lines = append(c.lines, line)
		c.mu.Unlock()
	}
}

// Close stops the capture and waits for the drain goroutine. The transcript
// collected so far stays readable. Safe to call more than once.
func (c *Capture) Close() {
	c.closeOnce.Do(func() {
		c.writer.Close()
		c.wg.Wait()
	})
}

// Lines returns a snapshot of the transcript lines collected so far.
func (c *Capture) Lines() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snapshot := make([]string, len(c.lines))
	copy(snapshot, c.lines)
	return snapshot
}

// Transcript returns the transcript as a single string. Every completed
// line carries its trailing newline so patterns that include one match
// byte-for-byte.
func (c *Capture) Transcript() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.lines) == 0 {
		return ""
	}
	return strings.Join(c.lines, "\n") + "\n"
}

// CheckForOutput reports whether pattern has already occurred anywhere in
// the transcript collected so far. The match is a literal substring over
// the full transcript, never a regexp. Non-blocking.
func (c *Capture) CheckForOutput(pattern string) bool {
	return strings.Contains(c.Transcript(), pattern)
}

// countOccurrences returns how many times pattern occurs in the transcript.
func (c *Capture) countOccurrences(pattern string) int {
	return strings.Count(c.Transcript(), pattern)
}

// WaitOptions tunes a WaitForOutput call.
type WaitOptions struct {
	// IgnorePresent makes a match that already existed before the call
	// satisfy the wait immediately. When false, only an occurrence
	// appended after the call counts, so residue from an earlier
	// scenario cannot produce a false positive.
	IgnorePresent bool
	// Timeout bounds the wait; zero means DefaultWaitTimeout.
	Timeout time.Duration
	// Quantum is the sleep between re-checks; zero means
	// DefaultPollQuantum.
	Quantum time.Duration
}

// WaitForOutput blocks until pattern appears in the transcript or the
// timeout elapses, in which case it returns an error carrying the
// transcript tail. The wait is a cooperative poll loop: snapshot, sleep a
// quantum, re-check.
func (c *Capture) WaitForOutput(ctx context.Context, pattern string, opts WaitOptions) error {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}
	quantum := opts.Quantum
	if quantum <= 0 {
		quantum = DefaultPollQuantum
	}

	baseline := 0
	if opts.IgnorePresent {
		if c.CheckForOutput(pattern) {
			return nil
		}
	} else {
		baseline = c.countOccurrences(pattern)
	}

	deadline := time.Now().Add(timeout)
	for {
		if c.countOccurrences(pattern) > baseline {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timed out after %v waiting for output %q; transcript tail:\n%s",
				timeout, pattern, c.tail(20))
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for output %q canceled: %w", pattern, ctx.Err())
		case <-time.After(quantum):
		}
	}
}

// tail returns the last n transcript lines joined for error messages.
func (c *Capture) tail(n int) string {
	lines := c.Lines()
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
