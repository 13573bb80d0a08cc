package protocol

import "testing"

func TestEncodeDecodeUvarint(t *testing.T) {
	tests := []struct {
		name  string
		value uint64
		bytes int // expected encoded length
	}{
		{"zero", 0, 1},
		{"one", 1, 1},
		{"max_1byte", 127, 1},
		{"min_2byte", 128, 2},
		{"max_2byte", 16383, 2},
		{"min_3byte", 16384, 3},
		{"medium", 1000000, 3},
		{"max_4byte", 1<<28 - 1, 4},
		{"max_5byte", 1<<35 - 1, 5},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			buf := make([]byte, MaxVarintLen)
			n := EncodeUvarint(buf, tc.value)

			if n != tc.bytes {
				t.Errorf("EncodeUvarint(%d) = %d bytes, want %d", tc.value, n, tc.bytes)
			}

			decoded, read := DecodeUvarint(buf[:n])
			if read != n {
				t.Errorf("DecodeUvarint read %d bytes, want %d", read, n)
			}
			if decoded != tc.value {
				t.Errorf("DecodeUvarint = %d, want %d", decoded, tc.value)
			}
		})
	}
}

func TestDecodeUvarintTruncated(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
	}{
		{"empty", nil},
		{"single_continuation", []byte{0x80}},
		{"all_continuations", []byte{0xFF, 0xFF, 0xFF}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, n := DecodeUvarint(tc.buf)
			if n != -1 {
				t.Errorf("DecodeUvarint(%v) = %d, want -1 (incomplete)", tc.buf, n)
			}
		})
	}
}

func TestDecodeUvarintOverflow(t *testing.T) {
	// Six continuation bytes push the shift past 35 bits.
	buf := []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x01}
	_, n := DecodeUvarint(buf)
	if n != -2 {
		t.Errorf("DecodeUvarint = %d, want -2 (overflow)", n)
	}
}

func TestUvarintLen(t *testing.T) {
	values := []uint64{0, 1, 127, 128, 16383, 16384, 1<<28 - 1, 1<<35 - 1}
	for _, v := range values {
		buf := make([]byte, MaxVarintLen)
		n := EncodeUvarint(buf, v)
		if got := UvarintLen(v); got != n {
			t.Errorf("UvarintLen(%d) = %d, want %d", v, got, n)
		}
	}
}
