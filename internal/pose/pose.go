// Package pose provides sleep-posture labels from an external classifier.
//
// The camera pipeline runs out of process; this package only consumes the
// label it prints. Latest keeps the most recent label so the monitor loop
// never waits on a frame grab.
package pose

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/sleep-monitor/internal/logic"
)

// Labels reported by the classifier.
const (
	Supine    = "Supine (Face Up)"
	Prone     = "Prone (Face Down)"
	LeftSide  = "Left Side"
	RightSide = "Right Side"
	Unknown   = logic.LabelUnknown
)

// ErrNoPerson is returned when the classifier saw no one in frame.
var ErrNoPerson = errors.New("no person detected")

// Source reads one posture label.
type Source interface {
	Read(ctx context.Context) (string, error)
}

// Normalize maps classifier output to a known label. Unrecognized or empty
// output becomes Unknown with an error.
func Normalize(out string) (string, error) {
	s := strings.TrimSpace(out)
	switch s {
	case Supine, Prone, LeftSide, RightSide:
		return s, nil
	case "", Unknown, "No Pose":
		return Unknown, ErrNoPerson
	}
	if strings.EqualFold(s, "no person detected") {
		return Unknown, ErrNoPerson
	}
	return Unknown, fmt.Errorf("unrecognized label %q", s)
}

// Command runs an external classifier once per Read and takes the first
// line of its stdout as the label.
type Command struct {
	Name string
	Args []string
}

// NewCommand creates a Command from argv.
func NewCommand(argv []string) (*Command, error) {
	if len(argv) == 0 {
		return nil, errors.New("pose command: empty argv")
	}
	return &Command{Name: argv[0], Args: argv[1:]}, nil
}

// Read implements Source. The process is killed when ctx is done.
func (c *Command) Read(ctx context.Context) (string, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return Unknown, fmt.Errorf("run %s: %w", c.Name, err)
	}
	line, _, _ := strings.Cut(stdout.String(), "\n")
	return Normalize(line)
}

// Stream starts the classifier once and feeds every line it prints into l
// until the process exits or ctx is done.
func (c *Command) Stream(ctx context.Context, l *Latest) error {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("pipe %s: %w", c.Name, err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", c.Name, err)
	}
	scanErr := l.ScanLabels(bufio.NewScanner(stdout))
	waitErr := cmd.Wait()
	if ctx.Err() != nil {
		return nil
	}
	if scanErr != nil {
		return fmt.Errorf("read %s: %w", c.Name, scanErr)
	}
	if waitErr != nil {
		return fmt.Errorf("run %s: %w", c.Name, waitErr)
	}
	return nil
}

// ReadBounded reads src but gives up after timeout, returning Unknown. A
// panicking source is reported as an error.
func ReadBounded(ctx context.Context, src Source, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		label string
		err   error
	}
	ch := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- outcome{Unknown, fmt.Errorf("panic: %v", r)}
			}
		}()
		label, err := src.Read(ctx)
		ch <- outcome{label, err}
	}()

	select {
	case o := <-ch:
		if o.err != nil || o.label == "" {
			return Unknown, o.err
		}
		return o.label, nil
	case <-ctx.Done():
		return Unknown, fmt.Errorf("pose read: %w", ctx.Err())
	}
}

// DefaultMaxAge is how long a label stays valid after it was produced.
const DefaultMaxAge = 5 * time.Second

// Latest holds the most recent label and reports Unknown once it is older
// than MaxAge.
type Latest struct {
	mu     sync.Mutex
	label  string
	at     time.Time
	maxAge time.Duration
	now    func() time.Time
}

// NewLatest creates an empty holder. now may be nil for time.Now.
func NewLatest(maxAge time.Duration, now func() time.Time) *Latest {
	if now == nil {
		now = time.Now
	}
	return &Latest{label: Unknown, maxAge: maxAge, now: now}
}

// Update stores a label produced now.
func (l *Latest) Update(label string) {
	l.mu.Lock()
	l.label = label
	l.at = l.now()
	l.mu.Unlock()
}

// Read implements Source. It never blocks.
func (l *Latest) Read(context.Context) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.at.IsZero() || l.now().Sub(l.at) > l.maxAge {
		return Unknown, errors.New("pose label stale")
	}
	return l.label, nil
}

// Poll runs src every interval and feeds Latest until ctx is done. Each run
// is bounded by timeout. Failures store Unknown so stale labels age out fast.
func (l *Latest) Poll(ctx context.Context, src Source, interval, timeout time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		rctx, cancel := context.WithTimeout(ctx, timeout)
		label, err := src.Read(rctx)
		cancel()
		if err != nil && !errors.Is(err, ErrNoPerson) {
			logger.Debug("pose read failed", zap.Error(err))
		}
		l.Update(label)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Follow keeps a streaming classifier running until ctx is done, restarting
// it after restart whenever it exits.
func (l *Latest) Follow(ctx context.Context, c *Command, restart time.Duration, logger *zap.Logger) {
	for {
		if err := c.Stream(ctx, l); err != nil {
			logger.Warn("pose classifier exited", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(restart):
		}
	}
}

// ScanLabels reads newline-separated labels from a classifier stream into
// Latest until the stream ends.
func (l *Latest) ScanLabels(sc *bufio.Scanner) error {
	for sc.Scan() {
		label, _ := Normalize(sc.Text())
		l.Update(label)
	}
	return sc.Err()
}
