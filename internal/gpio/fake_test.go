package gpio

import (
	"errors"
	"testing"
)

func TestFakeWriterRecordsValues(t *testing.T) {
	f := NewFakeWriter()

	for _, v := range []int{1, 0, 1, 1, 0} {
		if err := f.SetValue(v); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if len(f.Values) != 5 {
		t.Fatalf("expected 5 values, got %d", len(f.Values))
	}
	if f.Level() != 0 {
		t.Errorf("expected level 0, got %d", f.Level())
	}
	if f.Pulses() != 2 {
		t.Errorf("expected 2 pulses, got %d", f.Pulses())
	}
}

func TestFakeWriterEmptyLevel(t *testing.T) {
	f := NewFakeWriter()
	if f.Level() != 0 {
		t.Errorf("expected level 0, got %d", f.Level())
	}
}

func TestFakeWriterError(t *testing.T) {
	f := NewFakeWriter()
	f.SetError = errors.New("simulated error")

	err := f.SetValue(1)
	if err == nil {
		t.Fatal("expected error to be returned")
	}
	if err.Error() != "simulated error" {
		t.Errorf("unexpected error: %v", err)
	}
	if len(f.Values) != 0 {
		t.Errorf("failed write should not be recorded")
	}
}

func TestFakeWriterCloseAndReset(t *testing.T) {
	f := NewFakeWriter()
	f.SetValue(1)

	if err := f.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !f.Closed {
		t.Error("should be closed after Close()")
	}

	f.Reset()
	if f.Closed || len(f.Values) != 0 {
		t.Error("reset should clear state")
	}
}
