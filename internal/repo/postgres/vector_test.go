package postgres

import (
	"testing"
)

func TestVectorRoundTrip(t *testing.T) {
	in := []float32{0.25, -1.5, 0, 3.14159, 1e-7}
	blob := encodeVector(in)
	if len(blob) != 4*len(in) {
		t.Fatalf("blob len = %d, want %d", len(blob), 4*len(in))
	}
	out, err := decodeVector(blob)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("len = %d, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("out[%d] = %v, want %v", i, out[i], in[i])
		}
	}
}

func TestVectorEmpty(t *testing.T) {
	if blob := encodeVector(nil); blob != nil {
		t.Fatalf("expected nil blob for empty vector, got %v", blob)
	}
	vec, err := decodeVector(nil)
	if err != nil || vec != nil {
		t.Fatalf("decode nil = %v, %v; want nil, nil", vec, err)
	}
}

func TestVectorBadLength(t *testing.T) {
	if _, err := decodeVector([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for truncated blob")
	}
}
