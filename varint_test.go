package hashseq

import "testing"

func TestVarint_RoundTrip(t *testing.T) {
	cases := []uint64{0, 1, 127, 128, 300, 1 << 20, 1<<63 - 1, ^uint64(0)}
	for _, v := range cases {
		buf := appendVarint(nil, v)
		got, n, err := readVarint(buf)
		if err != nil {
			t.Fatalf("readVarint(%d) error: %v", v, err)
		}
		if got != v {
			t.Fatalf("round-trip mismatch: put %d got %d", v, got)
		}
		if n != len(buf) {
			t.Fatalf("expected consumed length %d to equal buffer length %d", n, len(buf))
		}
	}
}

func TestVarint_SingleByteForSmallValues(t *testing.T) {
	buf := appendVarint(nil, 5)
	if len(buf) != 1 || buf[0] != 5 {
		t.Fatalf("expected a single byte for small values, got %v", buf)
	}
}

func TestVarint_UnexpectedEOF(t *testing.T) {
	buf := []byte{0x80, 0x80} // continuation bits set, input ends early
	if _, _, err := readVarint(buf); err != ErrUnexpectedEOF {
		t.Fatalf("expected ErrUnexpectedEOF, got %v", err)
	}
}

func TestVarint_ExceedsMaxLength(t *testing.T) {
	buf := make([]byte, maxVarintLen+1)
	for i := range buf {
		buf[i] = 0x80 // every byte keeps continuing, never terminates
	}
	if _, _, err := readVarint(buf); err != ErrInvalidVarint {
		t.Fatalf("expected ErrInvalidVarint, got %v", err)
	}
}

func TestVarint_ConsumesOnlyItsOwnBytes(t *testing.T) {
	buf := appendVarint(nil, 300)
	buf = append(buf, 0xFF, 0xFF) // trailing garbage belonging to the next field
	_, n, err := readVarint(buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 300 to encode in 2 bytes, consumed %d", n)
	}
}
