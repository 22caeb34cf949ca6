package pose

import (
	"bufio"
	"context"
	"errors"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"Left Side\n", LeftSide, false},
		{" Supine (Face Up) ", Supine, false},
		{"Prone (Face Down)", Prone, false},
		{"Right Side", RightSide, false},
		{"", Unknown, true},
		{"No person detected", Unknown, true},
		{"Unknown", Unknown, true},
		{"Handstand", Unknown, true},
	}

	for _, tt := range tests {
		got, err := Normalize(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.wantErr, err != nil, tt.in)
	}
}

func TestNewCommandEmpty(t *testing.T) {
	_, err := NewCommand(nil)
	assert.Error(t, err)
}

func TestCommandRead(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	c, err := NewCommand([]string{"sh", "-c", "echo 'Left Side'; echo ignored"})
	require.NoError(t, err)

	label, err := c.Read(context.Background())

	require.NoError(t, err)
	assert.Equal(t, LeftSide, label)
}

func TestCommandReadKilledOnTimeout(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	c, err := NewCommand([]string{"sleep", "5"})
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	label, err := c.Read(ctx)

	assert.Error(t, err)
	assert.Equal(t, Unknown, label)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestLatestStaleness(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewLatest(5*time.Second, func() time.Time { return now })

	label, err := l.Read(context.Background())
	assert.Error(t, err, "empty holder is stale")
	assert.Equal(t, Unknown, label)

	l.Update(RightSide)
	now = now.Add(5 * time.Second)
	label, err = l.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RightSide, label)

	now = now.Add(time.Millisecond)
	label, err = l.Read(context.Background())
	assert.Error(t, err)
	assert.Equal(t, Unknown, label)
}

func TestLatestPoll(t *testing.T) {
	l := NewLatest(time.Minute, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Poll(ctx, NewFake(Prone), 5*time.Millisecond, time.Second, zap.NewNop())
		close(done)
	}()

	require.Eventually(t, func() bool {
		label, err := l.Read(context.Background())
		return err == nil && label == Prone
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestLatestPollFailureStoresUnknown(t *testing.T) {
	l := NewLatest(time.Minute, nil)
	l.Update(LeftSide)
	f := NewFake(LeftSide)
	f.Err = errors.New("camera busy")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	l.Poll(ctx, f, time.Hour, time.Second, zap.NewNop())

	label, err := l.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Unknown, label)
}

func TestLatestScanLabels(t *testing.T) {
	l := NewLatest(time.Minute, nil)
	sc := bufio.NewScanner(strings.NewReader("Left Side\nRight Side\n"))

	require.NoError(t, l.ScanLabels(sc))

	label, err := l.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RightSide, label)
}

func TestCommandStream(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	c, err := NewCommand([]string{"sh", "-c", "echo 'Left Side'; echo 'Prone (Face Down)'"})
	require.NoError(t, err)
	l := NewLatest(time.Minute, nil)

	require.NoError(t, c.Stream(context.Background(), l))

	label, err := l.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Prone, label)
}

func TestCommandStreamExitStatus(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	c, err := NewCommand([]string{"sh", "-c", "echo 'Left Side'; exit 3"})
	require.NoError(t, err)
	l := NewLatest(time.Minute, nil)

	err = c.Stream(context.Background(), l)

	assert.Error(t, err)
	label, _ := l.Read(context.Background())
	assert.Equal(t, LeftSide, label)
}

func TestLatestFollowUntilCancel(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	c, err := NewCommand([]string{"sh", "-c", "echo 'Right Side'; exec sleep 5"})
	require.NoError(t, err)
	l := NewLatest(time.Minute, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Follow(ctx, c, time.Millisecond, zap.NewNop())
		close(done)
	}()

	require.Eventually(t, func() bool {
		label, err := l.Read(context.Background())
		return err == nil && label == RightSide
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Follow did not stop after cancel")
	}
}

func TestFakeRepeatsLast(t *testing.T) {
	f := NewFake(LeftSide, RightSide)
	ctx := context.Background()
	for _, want := range []string{LeftSide, RightSide, RightSide} {
		got, err := f.Read(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestReadBounded(t *testing.T) {
	label, err := ReadBounded(context.Background(), NewFake(Supine), time.Second)
	require.NoError(t, err)
	assert.Equal(t, Supine, label)

	slow := NewFake(Supine)
	slow.Delay = time.Second
	start := time.Now()
	label, err = ReadBounded(context.Background(), slow, 20*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, Unknown, label)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

type panicSource struct{}

func (panicSource) Read(context.Context) (string, error) { panic("camera unplugged") }

func TestReadBoundedRecoversPanic(t *testing.T) {
	label, err := ReadBounded(context.Background(), panicSource{}, time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "camera unplugged")
	assert.Equal(t, Unknown, label)
}
