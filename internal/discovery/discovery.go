// Package discovery talks to the master server: it enumerates the game
// servers the master knows about and can send raw master commands.
package discovery

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/1ureka/scrapnet/internal/protocol"
	"github.com/1ureka/scrapnet/internal/util"
)

const (
	// DefaultTimeout bounds each master request.
	DefaultTimeout = 5 * time.Second

	windowSize  = 32
	windowCount = 256 / windowSize
	recordSize  = 6
	maxDatagram = 32 * 1024
)

// listMarker prefixes a browse response that carries server records.
var listMarker = []byte("\x00\x00\x00\x00}")

// ErrTimeout is returned when the master does not answer in time.
var ErrTimeout = errors.New("master request timed out")

// Result is the outcome of a full browse sweep.
type Result struct {
	Servers []*net.UDPAddr
	RTT     time.Duration // average over all requests of the sweep
}

// Client is a UDP socket connected to one master server.
type Client struct {
	conn    *net.UDPConn
	timeout time.Duration
	buf     []byte
}

// Dial connects a new client to the master at addr. A zero timeout selects
// DefaultTimeout.
func Dial(addr *net.UDPAddr, timeout time.Duration) (*Client, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to master %s: %w", addr, err)
	}
	return &Client{
		conn:    conn,
		timeout: timeout,
		buf:     make([]byte, maxDatagram),
	}, nil
}

// Close releases the socket.
func (c *Client) Close() error {
	return c.conn.Close()
}

// RemoteAddr returns the master address.
func (c *Client) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Query dials addr, runs one browse sweep and closes the socket.
func Query(ctx context.Context, addr *net.UDPAddr, timeout time.Duration) (*Result, error) {
	c, err := Dial(addr, timeout)
	if err != nil {
		return nil, err
	}
	defer c.Close()
	return c.ListServers(ctx)
}

// ListServers sends the eight "Brw=<start>,<end>" requests covering
// [0,256) and collects every server record. Any failed request fails the
// whole sweep.
func (c *Client) ListServers(ctx context.Context) (*Result, error) {
	res := &Result{}
	var total time.Duration

	for n := 0; n < windowCount; n++ {
		cmd := fmt.Sprintf("Brw=%d,%d", n*windowSize, (n+1)*windowSize)

		data, rtt, err := c.roundTrip(ctx, command(cmd))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", cmd, err)
		}
		total += rtt

		servers, ok := ParseServerList(data)
		if !ok {
			util.LogDebug("master reply to %s carries no server list (%d bytes)", cmd, len(data))
			continue
		}
		res.Servers = append(res.Servers, servers...)
	}

	res.RTT = total / windowCount
	return res, nil
}

// Command sends a raw NUL-terminated command to the master and returns the
// decrypted reply.
func (c *Client) Command(ctx context.Context, cmd string) ([]byte, error) {
	data, _, err := c.roundTrip(ctx, command(cmd))
	return data, err
}

// ParseServerList decodes a browse response. ok is false when data does not
// start with the list marker. Parsing stops at the first all-zero or
// incomplete record.
func ParseServerList(data []byte) (servers []*net.UDPAddr, ok bool) {
	if !bytes.HasPrefix(data, listMarker) {
		return nil, false
	}

	rest := data[len(listMarker):]
	for len(rest) >= recordSize {
		rec := rest[:recordSize]
		rest = rest[recordSize:]

		if isZero(rec) {
			break
		}
		servers = append(servers, &net.UDPAddr{
			IP:   net.IPv4(rec[0], rec[1], rec[2], rec[3]),
			Port: int(binary.LittleEndian.Uint16(rec[4:])),
		})
	}
	return servers, true
}

// roundTrip sends one encrypted request and waits for one reply.
func (c *Client) roundTrip(ctx context.Context, payload []byte) ([]byte, time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return nil, 0, err
	}

	start := time.Now()
	if _, err := c.conn.Write(protocol.Encrypt(payload)); err != nil {
		return nil, 0, fmt.Errorf("send failed: %w", err)
	}

	n, err := c.conn.Read(c.buf)
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return nil, 0, ErrTimeout
		}
		return nil, 0, fmt.Errorf("receive failed: %w", err)
	}
	rtt := time.Since(start)

	data, err := protocol.Decrypt(c.buf[:n])
	if err != nil {
		return nil, 0, fmt.Errorf("failed to decode reply: %w", err)
	}
	return data, rtt, nil
}

func command(cmd string) []byte {
	return append([]byte(cmd), 0)
}

func isZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
