// Package relay runs the man-in-the-middle session between a game client and
// a game server. Every datagram is decrypted, inspected, optionally fuzzed
// and re-encrypted with a fresh nonce before it is forwarded.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/1ureka/scrapnet/internal/console"
	"github.com/1ureka/scrapnet/internal/fuzz"
	"github.com/1ureka/scrapnet/internal/protocol"
	"github.com/1ureka/scrapnet/internal/util"
)

const maxDatagram = 32 * 1024

// ErrNoClient is reported when a packet is injected toward the client before
// any client has sent one.
var ErrNoClient = errors.New("no client address")

// errExit ends the loop on the exit command.
var errExit = errors.New("exit")

// Options configures a Session.
type Options struct {
	Local      *net.UDPAddr // address the client connects to
	Remote     *net.UDPAddr // game server
	LogFile    string       // packet log path, empty for none
	LogMaxSize int          // packet log rotation size in MB
	Dump       util.Dumper  // packet view, IndentHexdump when nil
	Output     io.Writer    // packet view destination, stdout when nil
	Fuzz       *fuzz.Controller
}

// Session is one relay between a client and a server. All of its state is
// owned by the goroutine running Run.
type Session struct {
	local  *net.UDPConn
	remote *net.UDPConn
	client *net.UDPAddr

	traffic  Traffic
	rule     *fuzz.Rule
	fuzzer   *fuzz.Controller
	printLog bool
	log      *packetLog
	dump     util.Dumper
	out      io.Writer
}

// New binds the local socket and connects the remote one.
func New(opts Options) (*Session, error) {
	local, err := net.ListenUDP("udp", opts.Local)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", opts.Local, err)
	}
	remote, err := net.DialUDP("udp", nil, opts.Remote)
	if err != nil {
		local.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", opts.Remote, err)
	}

	s := &Session{
		local:  local,
		remote: remote,
		fuzzer: opts.Fuzz,
		dump:   opts.Dump,
		out:    opts.Output,
	}
	if s.fuzzer == nil {
		s.fuzzer = fuzz.NewController(nil)
	}
	if s.dump == nil {
		s.dump = util.IndentHexdump
	}
	if s.out == nil {
		s.out = os.Stdout
	}
	if opts.LogFile != "" {
		s.log = openPacketLog(opts.LogFile, opts.LogMaxSize)
	}
	return s, nil
}

// LocalAddr returns the bound client-facing address.
func (s *Session) LocalAddr() *net.UDPAddr { return s.local.LocalAddr().(*net.UDPAddr) }

// RemoteAddr returns the game server address.
func (s *Session) RemoteAddr() *net.UDPAddr { return s.remote.RemoteAddr().(*net.UDPAddr) }

// datagram is one read from a socket, or the error that ended reading.
type datagram struct {
	addr *net.UDPAddr
	data []byte
	err  error
}

// Run relays until the exit command, lines is closed, ctx is done, or an
// unrecoverable socket or decode error occurs. The sockets and the packet
// log are closed before it returns, so a Session runs once.
func (s *Session) Run(ctx context.Context, lines <-chan console.Line) error {
	done := make(chan struct{})
	fromClient := make(chan datagram)
	fromServer := make(chan datagram)
	go s.pump(s.local, fromClient, done)
	go s.pump(s.remote, fromServer, done)

	util.LogInfo("Proxy listening on %s, relaying to %s", s.LocalAddr(), s.RemoteAddr())

	err := s.loop(ctx, lines, fromClient, fromServer)
	if errors.Is(err, errExit) {
		err = nil
	}
	close(done)
	return errors.Join(err, s.close())
}

func (s *Session) loop(ctx context.Context, lines <-chan console.Line, fromClient, fromServer <-chan datagram) error {
	for {
		select {
		case <-ctx.Done():
			return nil

		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := s.handleLine(line); err != nil {
				return err
			}

		case d := <-fromClient:
			if d.err != nil {
				return fmt.Errorf("local socket: %w", d.err)
			}
			if err := s.handleClient(d.addr, d.data); err != nil {
				return err
			}

		case d := <-fromServer:
			if d.err != nil {
				return fmt.Errorf("remote socket: %w", d.err)
			}
			if err := s.handleServer(d.addr, d.data); err != nil {
				return err
			}
		}
	}
}

// pump reads datagrams from conn into ch until the socket is closed.
func (s *Session) pump(conn *net.UDPConn, ch chan<- datagram, done <-chan struct{}) {
	buf := make([]byte, maxDatagram)
	for {
		n, addr, err := conn.ReadFromUDP(buf)

		var d datagram
		if err != nil {
			d.err = err
		} else {
			d.addr = addr
			d.data = make([]byte, n)
			copy(d.data, buf[:n])
		}

		select {
		case ch <- d:
		case <-done:
			return
		}
		if err != nil {
			return
		}
	}
}

// ---------------------------------------------------------------------------
// Packet handling
// ---------------------------------------------------------------------------

// handleClient relays one packet from the client to the server. The first
// sender becomes the session's client.
func (s *Session) handleClient(addr *net.UDPAddr, wire []byte) error {
	if s.client == nil {
		s.client = addr
		util.LogInfo("client %s connected", addr)
	}

	data, err := protocol.Decrypt(wire)
	if err != nil {
		return fmt.Errorf("packet from %s: %w", addr, err)
	}
	if err := s.inspect(&s.traffic.Client, arrowUp, addr, data, 0, "OUT: "); err != nil {
		return err
	}

	if s.fuzzer.Apply(s.rule, fuzz.Server, data) {
		util.Stats.AddFuzzed()
		util.LogDebug("fuzzed packet from %s", addr)
	}
	if _, err := s.remote.Write(protocol.Encrypt(data)); err != nil {
		return fmt.Errorf("forward to server: %w", err)
	}
	util.Stats.AddUp(len(data))
	return nil
}

// handleServer relays one packet from the server to the client, or only
// inspects it while no client is known.
func (s *Session) handleServer(addr *net.UDPAddr, wire []byte) error {
	data, err := protocol.Decrypt(wire)
	if err != nil {
		return fmt.Errorf("packet from %s: %w", addr, err)
	}
	if err := s.inspect(&s.traffic.Server, arrowDown, addr, data, 5, "IN: "); err != nil {
		return err
	}

	if s.client == nil {
		util.LogDebug("no client yet, not forwarding %d bytes from %s", len(data), addr)
		return nil
	}

	if s.fuzzer.Apply(s.rule, fuzz.Client, data) {
		util.Stats.AddFuzzed()
		util.LogDebug("fuzzed packet from %s", addr)
	}
	if _, err := s.local.WriteToUDP(protocol.Encrypt(data), s.client); err != nil {
		return fmt.Errorf("forward to client: %w", err)
	}
	util.Stats.AddDown(len(data))
	return nil
}

// inspect records data in h, prints it when logging is on and appends it to
// the packet log.
func (s *Session) inspect(h *Histogram, arrow byte, addr *net.UDPAddr, data []byte, indent int, label string) error {
	h.Record(data)
	if s.printLog {
		fmt.Fprintln(s.out, s.dump(data, indent, label+addr.String()))
	}
	if s.log != nil {
		if err := s.log.write(arrow, addr, data); err != nil {
			return fmt.Errorf("packet log: %w", err)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Console commands
// ---------------------------------------------------------------------------

// handleLine executes one console line. Only the exit command returns an
// error; everything else is reported on line.Out.
func (s *Session) handleLine(line console.Line) error {
	out := line.Out
	if out == nil {
		out = s.out
	}

	cmd, err := console.Parse(line.Text)
	if err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return nil
	}

	switch c := cmd.(type) {
	case nil:
	case console.SetLog:
		s.printLog = c.On
	case console.ShowState:
		fmt.Fprintf(out, "Client: %s\n", s.traffic.Client.At(c.Offset))
		fmt.Fprintf(out, "Server: %s\n", s.traffic.Server.At(c.Offset))
	case console.Inject:
		if err := s.inject(c.Toward, c.Data); err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
		}
	case console.SetFuzz:
		rule := c.Rule
		s.rule = &rule
		util.LogInfo("fuzzing %s", rule)
	case console.ClearFuzz:
		if s.rule != nil {
			util.LogInfo("fuzzing off")
		}
		s.rule = nil
	case console.Exit:
		return errExit
	}
	return nil
}

// inject encrypts data and sends it toward one endpoint.
func (s *Session) inject(toward fuzz.Direction, data []byte) error {
	wire := protocol.Encrypt(data)

	var err error
	switch toward {
	case fuzz.Client:
		if s.client == nil {
			return ErrNoClient
		}
		_, err = s.local.WriteToUDP(wire, s.client)
	case fuzz.Server:
		_, err = s.remote.Write(wire)
	default:
		return fmt.Errorf("cannot inject toward %s", toward)
	}
	if err != nil {
		return fmt.Errorf("inject toward %s: %w", toward, err)
	}

	util.Stats.AddInjected()
	return nil
}

func (s *Session) close() error {
	errs := []error{s.local.Close(), s.remote.Close()}
	if s.log != nil {
		errs = append(errs, s.log.Close())
	}
	return errors.Join(errs...)
}
