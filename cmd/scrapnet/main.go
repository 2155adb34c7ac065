// Scrapnet CLI entry point.
//
// This tool discovers running game servers through the master server, probes
// each of them for its status and relays the encrypted UDP traffic between a
// local game client and a chosen server, decrypting every packet for
// inspection, logging, injection and fuzzing from an operator console.
//
// Invoked without a server address it queries the master server and shows a
// server picker; with one it relays to that server right away.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"

	"github.com/pterm/pterm"

	"github.com/1ureka/scrapnet/internal/config"
	"github.com/1ureka/scrapnet/internal/console"
	"github.com/1ureka/scrapnet/internal/discovery"
	"github.com/1ureka/scrapnet/internal/probe"
	"github.com/1ureka/scrapnet/internal/relay"
	"github.com/1ureka/scrapnet/internal/resolve"
	"github.com/1ureka/scrapnet/internal/util"
)

var version = "dev"

const masterShellOption = "Drop into master server command shell"

func main() {
	// Root context, cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// CLI flags. Only flags given explicitly override the config file.
	configPath := flag.String("config", "", "Path of a TOML config file")
	list := flag.Bool("list", false, "Only list servers without starting the relay")
	addr := flag.String("addr", "", "Local address to bind the relay to (default 127.0.0.1:28086)")
	master := flag.String("master", "", "Master server to query for running games")
	logFile := flag.String("logfile", "", "Path of file to log decrypted packets to")
	logMaxSize := flag.Int("logMaxSize", 0, "Rotate the packet log after this many megabytes")
	dnsServer := flag.String("dns", "", "DNS server (host:port) used to resolve the master server")
	wsConsole := flag.String("wsConsole", "", "Serve a WebSocket console on this address")
	wsPin := flag.String("wsPin", "", "PIN for the WebSocket console (random when empty)")
	hexII := flag.Bool("hexii", false, "Show packets in HexII notation")
	stats := flag.Bool("stats", false, "Log relay traffic statistics every 10 seconds")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: scrapnet [flags] [server]\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *debugMode {
		util.EnableDebug()
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			util.LogError("%v", err)
			os.Exit(1)
		}
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.LocalAddr = *addr
		case "master":
			cfg.Master = *master
		case "logfile":
			cfg.LogFile = *logFile
		case "logMaxSize":
			cfg.LogMaxSize = *logMaxSize
		case "dns":
			cfg.DNSServer = *dnsServer
		case "wsConsole":
			cfg.WSConsole = *wsConsole
		case "wsPin":
			cfg.WSPin = *wsPin
		case "hexii":
			cfg.HexII = *hexII
		case "stats":
			cfg.Stats = *stats
		}
	})
	if err := cfg.Validate(); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}
	if flag.NArg() > 1 {
		flag.Usage()
		os.Exit(2)
	}

	pterm.Info.Println(fmt.Sprintf("Scrapnet v%s", version))
	pterm.Println()

	var err error
	switch server := flag.Arg(0); {
	case server != "" && *list:
		err = runProbe(ctx, cfg, server)
	case server != "":
		err = runDirect(ctx, cfg, server)
	default:
		err = runDiscovery(ctx, cfg, *list)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		util.LogError("%v", err)
		os.Exit(1)
	}
}

// ---------------------------------------------------------------------------
// Run modes
// ---------------------------------------------------------------------------

// runProbe prints the status of a single server.
func runProbe(ctx context.Context, cfg config.Config, server string) error {
	addr, err := resolve.UDPAddr(ctx, server, cfg.DNSServer)
	if err != nil {
		return err
	}
	pterm.Println(probe.Probe(ctx, addr, cfg.Timeout.Duration).String())
	return nil
}

// runDirect relays to the given server without asking the master.
func runDirect(ctx context.Context, cfg config.Config, server string) error {
	addr, err := resolve.UDPAddr(ctx, server, cfg.DNSServer)
	if err != nil {
		return err
	}
	return runRelay(ctx, cfg, addr)
}

// runDiscovery lists the servers known to the master. Unless listOnly is
// set, the operator picks one to relay to; a dead pick prints its reason and
// the list is fetched again.
func runDiscovery(ctx context.Context, cfg config.Config, listOnly bool) error {
	masterAddr, err := resolve.UDPAddr(ctx, cfg.Master, cfg.DNSServer)
	if err != nil {
		return err
	}

	for {
		res, err := discovery.Query(ctx, masterAddr, cfg.Timeout.Duration)
		if err != nil {
			return fmt.Errorf("failed to query master %s: %w", cfg.Master, err)
		}
		pterm.Println(fmt.Sprintf("Master RTT: %v", res.RTT))

		entries := probe.ProbeAll(ctx, res.Servers, cfg.Timeout.Duration, cfg.Parallel)
		if listOnly {
			for _, e := range entries {
				pterm.Println(e.String())
			}
			return nil
		}

		choice, shell := pickServer(entries)
		switch {
		case shell:
			return runMasterShell(ctx, cfg, masterAddr)
		case !choice.Alive():
			util.LogError("%s returned an error: %s", choice.Addr, choice.Reason)
		default:
			return runRelay(ctx, cfg, choice.Info.Addr)
		}
	}
}

// pickServer shows the interactive picker. shell is true when the operator
// chose the master shell instead of a server.
func pickServer(entries []probe.Entry) (choice probe.Entry, shell bool) {
	options := make([]string, 0, len(entries)+1)
	byOption := make(map[string]probe.Entry, len(entries))
	for _, e := range entries {
		s := e.String()
		if _, dup := byOption[s]; dup {
			continue
		}
		byOption[s] = e
		options = append(options, s)
	}
	options = append(options, masterShellOption)

	selected, err := pterm.DefaultInteractiveSelect.
		WithOptions(options).
		WithDefaultText("Select server").
		WithMaxHeight(15).
		Show()
	pterm.Println()

	if err != nil || selected == masterShellOption {
		return probe.Entry{}, true
	}
	return byOption[selected], false
}

// runRelay runs one relay session with the terminal console, plus the
// WebSocket console when configured.
func runRelay(ctx context.Context, cfg config.Config, server *net.UDPAddr) error {
	local, err := net.ResolveUDPAddr("udp", cfg.LocalAddr)
	if err != nil {
		return err
	}

	term, err := console.NewTerminal(fmt.Sprintf("%s> ", server))
	if err != nil {
		return err
	}
	defer term.Close()

	util.SetOutput(term.Stdout())
	defer util.SetOutput(os.Stdout)

	dump := util.IndentHexdump
	if cfg.HexII {
		dump = util.IndentHexII
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan console.Line)

	if cfg.WSConsole != "" {
		pin := cfg.WSPin
		if pin == "" {
			pin = console.GeneratePIN(6)
		}
		wsAddr, err := console.NewRemote(pin, lines).Start(ctx, cfg.WSConsole)
		if err != nil {
			return err
		}
		util.LogInfo("remote console at ws://%s/console?pin=%s", wsAddr, pin)
	}

	session, err := relay.New(relay.Options{
		Local:      local,
		Remote:     server,
		LogFile:    cfg.LogFile,
		LogMaxSize: cfg.LogMaxSize,
		Dump:       dump,
		Output:     term.Stdout(),
	})
	if err != nil {
		return err
	}

	if cfg.Stats {
		util.StartStatsReporter(ctx)
	}

	// The session ends with the terminal.
	go func() {
		defer cancel()
		if err := term.Feed(ctx, lines); err != nil {
			util.LogDebug("console: %v", err)
		}
	}()

	if err := session.Run(ctx, lines); err != nil {
		return err
	}
	util.LogInfo("relay to %s closed", server)
	return nil
}

// runMasterShell sends every console line to the master server as a raw
// command and prints the reply.
func runMasterShell(ctx context.Context, cfg config.Config, masterAddr *net.UDPAddr) error {
	client, err := discovery.Dial(masterAddr, cfg.Timeout.Duration)
	if err != nil {
		return err
	}
	defer client.Close()

	term, err := console.NewTerminal(fmt.Sprintf("%s> ", cfg.Master))
	if err != nil {
		return err
	}
	defer term.Close()

	lines := make(chan console.Line)
	go func() {
		defer close(lines)
		if err := term.Feed(ctx, lines); err != nil {
			util.LogDebug("console: %v", err)
		}
	}()

	for line := range lines {
		cmd := strings.TrimSpace(line.Text)
		fmt.Fprintf(line.Out, "[CMD] %s\n", cmd)
		data, err := client.Command(ctx, cmd)
		if err != nil {
			fmt.Fprintf(line.Out, "Error: %v\n", err)
			continue
		}
		fmt.Fprintln(line.Out, util.IndentHexdump(data, 0, fmt.Sprintf("%d bytes", len(data))))
	}
	return nil
}
