package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/1ureka/scrapnet/internal/protocol"
	"github.com/1ureka/scrapnet/internal/util"
)

const (
	// DefaultTimeout bounds the wait for a server info reply.
	DefaultTimeout = 5 * time.Second

	maxDatagram = 32 * 1024
)

// ErrTimeout is returned when the server does not answer in time.
var ErrTimeout = errors.New("server info request timed out")

// Query sends one server info request to addr and parses the reply. A zero
// timeout selects DefaultTimeout.
func Query(ctx context.Context, addr *net.UDPAddr, timeout time.Duration) (*ServerInfo, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}

	// Unblock the read on cancellation.
	stop := context.AfterFunc(ctx, func() { conn.SetReadDeadline(time.Now()) })
	defer stop()

	start := time.Now()
	if _, err := conn.Write(protocol.Encrypt(infoRequest)); err != nil {
		return nil, fmt.Errorf("send failed: %w", err)
	}

	buf := make([]byte, maxDatagram)
	n, err := conn.Read(buf)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("receive failed: %w", err)
	}
	rtt := time.Since(start)

	data, err := protocol.Decrypt(buf[:n])
	if err != nil {
		return nil, fmt.Errorf("failed to decode reply: %w", err)
	}

	info, err := ParseServerInfo(data, addr, rtt)
	if err != nil {
		return nil, err
	}
	if int(info.Port) != addr.Port {
		util.LogWarning("port differs for %s: %d", addr, info.Port)
	}
	return info, nil
}

// Probe is Query folded into an Entry: failures become a dead entry
// carrying the error text.
func Probe(ctx context.Context, addr *net.UDPAddr, timeout time.Duration) Entry {
	info, err := Query(ctx, addr, timeout)
	if err != nil {
		util.LogDebug("probe %s failed: %v", addr, err)
		return Entry{Addr: addr, Reason: err.Error()}
	}
	return Entry{Addr: addr, Info: info}
}

// ProbeAll probes every address with at most parallel requests in flight.
// Entries are returned in the order of addrs; one failure never affects the
// others.
func ProbeAll(ctx context.Context, addrs []*net.UDPAddr, timeout time.Duration, parallel int) []Entry {
	entries := make([]Entry, len(addrs))

	var g errgroup.Group
	if parallel > 0 {
		g.SetLimit(parallel)
	}
	for i, addr := range addrs {
		g.Go(func() error {
			entries[i] = Probe(ctx, addr, timeout)
			return nil
		})
	}
	g.Wait()

	return entries
}
