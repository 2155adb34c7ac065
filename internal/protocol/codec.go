package protocol

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/poly1305"
)

var (
	// ErrMalformed reports a frame whose trailer cannot be parsed.
	ErrMalformed = errors.New("malformed frame")
	// ErrAuthentication reports a frame whose tag does not verify.
	ErrAuthentication = errors.New("invalid signature")
)

// Encrypt seals payload under a fresh random nonce and returns the frame.
func Encrypt(payload []byte) []byte {
	nonce := make([]byte, NonceSize)
	rand.Read(nonce)

	wire, err := Seal(nonce, payload)
	if err != nil {
		// Only reachable with a nonce of the wrong size.
		panic(err)
	}
	return wire
}

// Decrypt opens a frame and returns its plaintext.
func Decrypt(wire []byte) ([]byte, error) {
	pkt, err := Open(wire)
	if err != nil {
		return nil, err
	}
	return pkt.Payload, nil
}

// Seal builds the frame for payload under the given nonce.
func Seal(nonce, payload []byte) ([]byte, error) {
	polyKey, stream, err := keystream(nonce)
	if err != nil {
		return nil, err
	}

	wire := make([]byte, WireLength(len(nonce), len(payload)))
	copy(wire, nonce)

	dataOff := roundUp16(len(nonce))
	stream.XORKeyStream(wire[dataOff:dataOff+len(payload)], payload)

	lenOff := dataOff + roundUp16(len(payload))
	binary.LittleEndian.PutUint64(wire[lenOff:], uint64(len(nonce)))
	binary.LittleEndian.PutUint64(wire[lenOff+8:], uint64(len(payload)))

	// The zero-padded body is exactly the MAC input.
	body := wire[:lenOff+lengthsSize]
	var tag [TagSize]byte
	poly1305.Sum(&tag, body, &polyKey)
	copy(wire[len(body):], tag[:])

	return wire, nil
}

// Open verifies a frame and decrypts it.
func Open(wire []byte) (*Packet, error) {
	if len(wire) < blockAlign+TrailerSize {
		return nil, fmt.Errorf("%w: %d bytes, need at least %d", ErrMalformed, len(wire), blockAlign+TrailerSize)
	}

	body := wire[:len(wire)-TagSize]
	var tag [TagSize]byte
	copy(tag[:], wire[len(body):])

	lengths := body[len(body)-lengthsSize:]
	nonceLen := binary.LittleEndian.Uint64(lengths[:8])
	dataLen := binary.LittleEndian.Uint64(lengths[8:])

	nonceRegion := body[:blockAlign]
	dataRegion := body[blockAlign : len(body)-lengthsSize]

	if nonceLen > blockAlign {
		return nil, fmt.Errorf("%w: nonce length %d exceeds %d", ErrMalformed, nonceLen, blockAlign)
	}
	if dataLen > uint64(len(dataRegion)) || roundUp16(int(dataLen)) != len(dataRegion) {
		return nil, fmt.Errorf("%w: data length %d does not fit %d byte region", ErrMalformed, dataLen, len(dataRegion))
	}

	// Padding is not covered by the declared lengths, so it must be zero
	// for the tag to speak for the whole frame.
	if !allZero(nonceRegion[nonceLen:]) || !allZero(dataRegion[dataLen:]) {
		return nil, fmt.Errorf("%w: non-zero padding", ErrAuthentication)
	}

	nonce := nonceRegion[:nonceLen]
	polyKey, stream, err := keystream(nonce)
	if err != nil {
		return nil, err
	}
	if !poly1305.Verify(&tag, body, &polyKey) {
		return nil, ErrAuthentication
	}

	payload := make([]byte, dataLen)
	stream.XORKeyStream(payload, dataRegion[:dataLen])

	return &Packet{
		Nonce:   append([]byte(nil), nonce...),
		Payload: payload,
	}, nil
}

// keystream derives the one-time Poly1305 key for nonce and returns a
// cipher positioned at the payload block.
func keystream(nonce []byte) ([32]byte, *chacha20.Cipher, error) {
	var polyKey [32]byte

	if len(nonce) != NonceSize {
		return polyKey, nil, fmt.Errorf("%w: nonce length %d, want %d", ErrMalformed, len(nonce), NonceSize)
	}

	c, err := chacha20.NewUnauthenticatedCipher(SharedKey[:], nonce)
	if err != nil {
		return polyKey, nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	c.XORKeyStream(polyKey[:], SharedKey[:])

	stream, err := chacha20.NewUnauthenticatedCipher(SharedKey[:], nonce)
	if err != nil {
		return polyKey, nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	stream.SetCounter(payloadCounter)

	return polyKey, stream, nil
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
