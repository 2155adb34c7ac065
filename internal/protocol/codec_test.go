package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"golang.org/x/crypto/chacha20poly1305"
)

func makeTestData(size int, seed byte) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i%251) ^ seed
	}
	return data
}

// TestEncryptDecryptRoundTrip verifies that Decrypt inverts Encrypt for a
// range of payload sizes around the 16-byte padding boundary.
func TestEncryptDecryptRoundTrip(t *testing.T) {
	sizes := []int{0, 1, 5, 15, 16, 17, 31, 32, 33, 64, 1400, 32 * 1024}

	for _, size := range sizes {
		payload := makeTestData(size, byte(size))

		wire := Encrypt(payload)
		if len(wire) != WireLength(NonceSize, size) {
			t.Errorf("size %d: wire length %d, want %d", size, len(wire), WireLength(NonceSize, size))
		}

		got, err := Decrypt(wire)
		if err != nil {
			t.Fatalf("size %d: Decrypt failed: %v", size, err)
		}
		if !bytes.Equal(got, payload) {
			t.Errorf("size %d: payload mismatch", size)
		}
	}
}

// TestEncryptFreshNonce verifies that the same payload encrypts to distinct
// frames which both open to the same payload.
func TestEncryptFreshNonce(t *testing.T) {
	payload := []byte("Brw=0,32\x00")

	a := Encrypt(payload)
	b := Encrypt(payload)
	if bytes.Equal(a, b) {
		t.Fatal("two encryptions produced identical frames")
	}

	for _, wire := range [][]byte{a, b} {
		got, err := Decrypt(wire)
		if err != nil {
			t.Fatalf("Decrypt failed: %v", err)
		}
		if !bytes.Equal(got, payload) {
			t.Errorf("got %q, want %q", got, payload)
		}
	}
}

// TestOpenRejectsBitFlips flips every bit of a frame in turn; each variant
// must be rejected with a codec error.
func TestOpenRejectsBitFlips(t *testing.T) {
	wire := Encrypt([]byte{0x7f, 0x01, 0x00, 0x00, 0x07})

	for i := range wire {
		for bit := 0; bit < 8; bit++ {
			mutated := append([]byte(nil), wire...)
			mutated[i] ^= 1 << bit

			_, err := Open(mutated)
			if err == nil {
				t.Fatalf("byte %d bit %d: flipped frame accepted", i, bit)
			}
			if !errors.Is(err, ErrAuthentication) && !errors.Is(err, ErrMalformed) {
				t.Fatalf("byte %d bit %d: unexpected error %v", i, bit, err)
			}
		}
	}
}

// TestOpenTagMismatch verifies that touching only the ciphertext or the tag
// is reported as an authentication failure.
func TestOpenTagMismatch(t *testing.T) {
	wire := Encrypt([]byte("hello world"))

	testCases := []struct {
		name   string
		offset int
	}{
		{"nonce", 0},
		{"ciphertext", 16},
		{"tag", len(wire) - 1},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mutated := append([]byte(nil), wire...)
			mutated[tc.offset] ^= 0x80
			if _, err := Open(mutated); !errors.Is(err, ErrAuthentication) {
				t.Errorf("got %v, want ErrAuthentication", err)
			}
		})
	}
}

// TestOpenMalformed verifies structural checks on the trailer.
func TestOpenMalformed(t *testing.T) {
	// The last four nonce bytes are zero so that a shortened nonce length
	// still leaves zero padding behind it.
	nonce := append(makeTestData(8, 0x33), 0, 0, 0, 0)
	valid, err := Seal(nonce, []byte("abc"))
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}

	withLengths := func(nonceLen, dataLen uint64) []byte {
		w := append([]byte(nil), valid...)
		off := len(w) - TrailerSize
		binary.LittleEndian.PutUint64(w[off:], nonceLen)
		binary.LittleEndian.PutUint64(w[off+8:], dataLen)
		return w
	}

	testCases := []struct {
		name string
		wire []byte
	}{
		{"empty", nil},
		{"one block short", make([]byte, blockAlign+TrailerSize-1)},
		{"nonce longer than region", withLengths(17, 3)},
		{"data longer than region", withLengths(NonceSize, 17)},
		{"data length overflow", withLengths(NonceSize, 1<<40)},
		{"nonce of unsupported size", withLengths(8, 3)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Open(tc.wire)
			if !errors.Is(err, ErrMalformed) {
				t.Errorf("got %v, want ErrMalformed", err)
			}
		})
	}
}

// TestWireLength checks the frame size formula.
func TestWireLength(t *testing.T) {
	testCases := []struct {
		nonce, payload, want int
	}{
		{12, 0, 16 + 0 + 32},
		{12, 1, 16 + 16 + 32},
		{12, 16, 16 + 16 + 32},
		{12, 17, 16 + 32 + 32},
		{16, 100, 16 + 112 + 32},
	}

	for _, tc := range testCases {
		if got := WireLength(tc.nonce, tc.payload); got != tc.want {
			t.Errorf("WireLength(%d, %d) = %d, want %d", tc.nonce, tc.payload, got, tc.want)
		}
	}
}

// TestSealKeystreamOffset cross-checks the payload encryption against the
// RFC 8439 AEAD, which also starts its payload keystream at block 1.
func TestSealKeystreamOffset(t *testing.T) {
	nonce := makeTestData(NonceSize, 0x5a)
	payload := makeTestData(100, 0x11)

	wire, err := Seal(nonce, payload)
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}

	aead, err := chacha20poly1305.New(SharedKey[:])
	if err != nil {
		t.Fatalf("chacha20poly1305.New: %v", err)
	}
	reference := aead.Seal(nil, nonce, payload, nonce)

	got := wire[roundUp16(NonceSize) : roundUp16(NonceSize)+len(payload)]
	if !bytes.Equal(got, reference[:len(payload)]) {
		t.Error("ciphertext does not match keystream block 1")
	}

	// The tag key differs from the RFC construction.
	if bytes.Equal(wire[len(wire)-TagSize:], reference[len(payload):]) {
		t.Error("tag unexpectedly matches the RFC 8439 tag")
	}

	if !bytes.Equal(wire[:NonceSize], nonce) {
		t.Error("nonce not stored at the start of the frame")
	}
}

// TestSealRejectsNonceSize verifies that only 12-byte nonces are accepted.
func TestSealRejectsNonceSize(t *testing.T) {
	for _, n := range []int{0, 8, 16, 24} {
		if _, err := Seal(make([]byte, n), []byte("x")); !errors.Is(err, ErrMalformed) {
			t.Errorf("nonce size %d: got %v, want ErrMalformed", n, err)
		}
	}
}

// TestOpenReturnsNonce verifies that Open reports the nonce the frame was
// sealed with.
func TestOpenReturnsNonce(t *testing.T) {
	nonce := makeTestData(NonceSize, 0x42)
	wire, err := Seal(nonce, []byte("payload"))
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}

	pkt, err := Open(wire)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if !bytes.Equal(pkt.Nonce, nonce) {
		t.Errorf("nonce %x, want %x", pkt.Nonce, nonce)
	}
	if string(pkt.Payload) != "payload" {
		t.Errorf("payload %q", pkt.Payload)
	}
}
