package audio

import (
	"bytes"
	"testing"
)

func sequence(start, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(start + i)
	}
	return out
}

func TestRingBufferEmptySnapshot(t *testing.T) {
	rb := NewRingBuffer(16)
	if got := rb.Snapshot(); got != nil {
		t.Fatalf("expected nil snapshot, got %v", got)
	}
}

func TestRingBufferPartialFill(t *testing.T) {
	rb := NewRingBuffer(16)
	rb.Write(sequence(0, 5))
	rb.Write(sequence(5, 4))

	got := rb.Snapshot()
	if !bytes.Equal(got, sequence(0, 9)) {
		t.Fatalf("expected first 9 bytes in order, got %v", got)
	}
}

func TestRingBufferExactFill(t *testing.T) {
	rb := NewRingBuffer(8)
	rb.Write(sequence(0, 8))

	got := rb.Snapshot()
	if !bytes.Equal(got, sequence(0, 8)) {
		t.Fatalf("expected all bytes, got %v", got)
	}
}

func TestRingBufferOverflowKeepsNewest(t *testing.T) {
	tests := []struct {
		name   string
		chunks []int
	}{
		{"small chunks", []int{3, 3, 3, 3, 3, 3, 3}},
		{"one large write", []int{50}},
		{"mixed", []int{7, 1, 12, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			const capacity = 10
			rb := NewRingBuffer(capacity)

			total := 0
			for _, n := range tt.chunks {
				rb.Write(sequence(total, n))
				total += n
			}

			got := rb.Snapshot()
			want := sequence(total-capacity, capacity)
			if len(got) != capacity {
				t.Fatalf("expected %d bytes, got %d", capacity, len(got))
			}
			if !bytes.Equal(got, want) {
				t.Fatalf("expected %v, got %v", want, got)
			}
		})
	}
}

func TestRingBufferReset(t *testing.T) {
	rb := NewRingBuffer(4)
	rb.Write(sequence(0, 9))
	rb.Reset()

	if got := rb.Snapshot(); got != nil {
		t.Fatalf("expected nil after reset, got %v", got)
	}
	if rb.Cap() != 4 {
		t.Fatalf("capacity changed to %d", rb.Cap())
	}

	rb.Write([]byte{42})
	if got := rb.Snapshot(); !bytes.Equal(got, []byte{42}) {
		t.Fatalf("expected [42], got %v", got)
	}
}

func TestRingBufferSnapshotIsCopy(t *testing.T) {
	rb := NewRingBuffer(4)
	rb.Write([]byte{1, 2})
	snap := rb.Snapshot()
	snap[0] = 9

	if got := rb.Snapshot(); got[0] != 1 {
		t.Fatal("snapshot should not alias ring storage")
	}
}
