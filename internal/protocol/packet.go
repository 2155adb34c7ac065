// Package protocol implements the authenticated frame format spoken by the
// game client, the game servers and the master server.
//
// Every UDP datagram of the protocol is a frame:
//
//	pad16(nonce) || pad16(ciphertext) || len(nonce):u64LE || len(ciphertext):u64LE || tag:16
//
// The ciphertext is ChaCha20 keyed with SharedKey and the nonce, starting at
// keystream block 1. The tag is Poly1305 over everything before it, keyed
// with the first 32 keystream bytes XOR-ed into SharedKey.
package protocol

// Frame layout constants.
const (
	KeySize     = 32
	NonceSize   = 12
	TagSize     = 16
	lengthsSize = 8 + 8
	blockAlign  = 16

	// TrailerSize is the length fields plus the tag.
	TrailerSize = lengthsSize + TagSize

	// payloadCounter is the keystream block the payload is encrypted from,
	// i.e. byte offset KeySize + 32.
	payloadCounter = (KeySize + 32) / 64
)

// SharedKey is the secret compiled into every client and server.
var SharedKey = [KeySize]byte{
	0x02, 0x04, 0x06, 0x08, 0x0a, 0x0c, 0x0e, 0x10,
	0x12, 0x14, 0x16, 0x18, 0x1a, 0x1c, 0x1e, 0x20,
	0x22, 0x24, 0x26, 0x28, 0x2a, 0x2c, 0x2e, 0x30,
	0x32, 0x34, 0x36, 0x38, 0x3a, 0x3c, 0x3e, 0x40,
}

// Packet is an opened frame.
type Packet struct {
	Nonce   []byte // as carried on the wire, without padding
	Payload []byte // plaintext
}

// WireLength returns the size of the frame carrying a payload of payloadLen
// bytes sealed with a nonce of nonceLen bytes.
func WireLength(nonceLen, payloadLen int) int {
	return roundUp16(nonceLen) + roundUp16(payloadLen) + TrailerSize
}

func roundUp16(n int) int {
	return (n + blockAlign - 1) &^ (blockAlign - 1)
}
