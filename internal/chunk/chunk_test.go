package chunk

import (
	"context"
	"math/rand"
	"strings"
	"testing"
	"time"
)

func TestTextEmptyInputYieldsNil(t *testing.T) {
	if got := Text("", 30, 80); got != nil {
		t.Errorf("expected nil for empty input, got %v", got)
	}
}

func TestTextReconstructsOriginal(t *testing.T) {
	text := "The quick brown fox jumps over the lazy dog while the sun sets slowly behind the rolling hills and a cool breeze begins to stir the tall grass near the old stone wall."
	rng := rand.New(rand.NewSource(42))
	chunks := textWithRand(text, 30, 80, rng)

	if len(chunks) == 0 {
		t.Fatal("expected at least one chunk")
	}

	reconstructed := strings.Join(chunks, " ")
	// Collapse whitespace runs on both sides before comparing: the
	// contract only guarantees inter-chunk whitespace may be reduced by
	// one, not preserved exactly.
	normalize := func(s string) string {
		return strings.Join(strings.Fields(s), " ")
	}
	if normalize(reconstructed) != normalize(text) {
		t.Errorf("reconstruction mismatch:\n got: %q\nwant: %q", normalize(reconstructed), normalize(text))
	}
}

func TestTextChunksHaveNoLeadingWhitespace(t *testing.T) {
	text := "alpha beta gamma delta epsilon zeta eta theta iota kappa lambda mu nu xi omicron pi rho sigma tau upsilon phi chi psi omega"
	rng := rand.New(rand.NewSource(7))
	for _, c := range textWithRand(text, 30, 80, rng) {
		if c == "" {
			t.Fatal("chunks must not be empty")
		}
		if unicodeIsSpaceByte(c[0]) {
			t.Errorf("chunk has leading whitespace: %q", c)
		}
	}
}

func unicodeIsSpaceByte(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

func TestTextSingleShortWordIsOneChunk(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	chunks := textWithRand("hi", 30, 80, rng)
	if len(chunks) != 1 || chunks[0] != "hi" {
		t.Errorf("expected single chunk [hi], got %v", chunks)
	}
}

func TestTextDefaultsAppliedOnInvalidBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	text := strings.Repeat("word ", 40)
	chunks := textWithRand(text, 0, -5, rng)
	if len(chunks) == 0 {
		t.Fatal("expected chunks with defaulted bounds")
	}
}

func TestStreamEmitsAllChunksInOrder(t *testing.T) {
	chunks := []string{"a", "b", "c"}
	ctx := context.Background()
	var got []string
	for c := range Stream(ctx, chunks, 0) {
		got = append(got, c)
	}
	if len(got) != len(chunks) {
		t.Fatalf("got %d chunks, want %d", len(got), len(chunks))
	}
	for i, c := range chunks {
		if got[i] != c {
			t.Errorf("chunk %d = %q, want %q", i, got[i], c)
		}
	}
}

func TestStreamHonorsCancellation(t *testing.T) {
	chunks := []string{"a", "b", "c", "d", "e"}
	ctx, cancel := context.WithCancel(context.Background())

	out := Stream(ctx, chunks, 20*time.Millisecond)
	first := <-out
	if first != "a" {
		t.Fatalf("first chunk = %q, want a", first)
	}
	cancel()

	// After cancellation, the channel must still close (not leak).
	deadline := time.After(500 * time.Millisecond)
	for {
		select {
		case _, ok := <-out:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("stream did not close after cancellation")
		}
	}
}
