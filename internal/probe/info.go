// Package probe queries individual game servers for their live status.
package probe

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"
)

// Field widths of the server info reply.
const (
	nameWidth = 0x20
	modeWidth = 0x10
	mapWidth  = 0x20
)

var (
	infoRequest = []byte{0x7f, 0x01, 0x00, 0x00, 0x07}
	infoMagic   = []byte{0xba, 0xce}
)

var (
	ErrBadMagic      = errors.New("invalid response")
	ErrShortResponse = errors.New("truncated response")
	ErrLeftoverData  = errors.New("leftover data")
)

// Flags is the server status byte.
type Flags uint8

func (f Flags) Dedicated() bool    { return f&0b01 != 0 }
func (f Flags) ForceVehicle() bool { return f&0b10 != 0 }

// Reserved returns the six bits with no known meaning.
func (f Flags) Reserved() uint8 { return uint8(f) >> 2 }

// String renders the flags as "F" (force vehicle) and "D" (dedicated),
// blank when unset.
func (f Flags) String() string {
	fv, ded := " ", " "
	if f.ForceVehicle() {
		fv = "F"
	}
	if f.Dedicated() {
		ded = "D"
	}
	return fv + ded
}

// ServerInfo is a parsed server info reply.
type ServerInfo struct {
	Addr       *net.UDPAddr
	RTT        time.Duration
	Version    string
	Port       uint16
	MaxPlayers uint16
	CurPlayers uint16
	Flags      Flags
	Name       string
	Mode       string
	Map        string
}

// infoLayout is the reply after the magic, in wire order.
type infoLayout struct {
	Major, Minor uint8
	Port         uint16
	MaxPlayers   uint16
	CurPlayers   uint16
	Flags        uint8
	Name         [nameWidth]byte
	Mode         [modeWidth]byte
	Map          [mapWidth]byte
	Pad          uint8
}

// ParseServerInfo decodes a decrypted server info reply received from addr
// after rtt. The reply must match the fixed layout exactly.
func ParseServerInfo(data []byte, addr *net.UDPAddr, rtt time.Duration) (*ServerInfo, error) {
	if !bytes.HasPrefix(data, infoMagic) {
		return nil, ErrBadMagic
	}

	r := bytes.NewReader(data[len(infoMagic):])
	var raw infoLayout
	if err := binary.Read(r, binary.LittleEndian, &raw); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: %d bytes", ErrShortResponse, len(data))
		}
		return nil, err
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrLeftoverData, r.Len())
	}

	return &ServerInfo{
		Addr:       addr,
		RTT:        rtt,
		Version:    fmt.Sprintf("%d.%d", raw.Major, raw.Minor),
		Port:       raw.Port,
		MaxPlayers: raw.MaxPlayers,
		CurPlayers: raw.CurPlayers,
		Flags:      Flags(raw.Flags),
		Name:       nullString(raw.Name[:]),
		Mode:       nullString(raw.Mode[:]),
		Map:        nullString(raw.Map[:]),
	}, nil
}

// nullString returns b up to its first NUL, or all of b without one.
func nullString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return strings.ToValidUTF8(string(b), "\uFFFD")
}

// Entry is the outcome of probing one address: Info is set for a live
// server, Reason for a dead one.
type Entry struct {
	Addr   *net.UDPAddr
	Info   *ServerInfo
	Reason string
}

// Alive reports whether the probe succeeded.
func (e Entry) Alive() bool { return e.Info != nil }

func (e Entry) String() string {
	if !e.Alive() {
		return fmt.Sprintf("[%s] (error: %s)", e.Addr, e.Reason)
	}
	s := e.Info
	return fmt.Sprintf("[%s] %s (%s %d/%d Players on %s) version %s [%s] RTT: %v",
		s.Addr, s.Name, s.Mode, s.CurPlayers, s.MaxPlayers, s.Map, s.Version, s.Flags, s.RTT)
}
