package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// ──────────────────────────────────────────────────────────────────────────────
// Global stats singleton
// ──────────────────────────────────────────────────────────────────────────────

// Stats is the process-wide relay traffic counter.
var Stats = &stats{}

type stats struct {
	PacketsUp   atomic.Int64 // packets relayed client → server
	PacketsDown atomic.Int64 // packets relayed server → client
	BytesUp     atomic.Int64 // plaintext bytes relayed client → server
	BytesDown   atomic.Int64 // plaintext bytes relayed server → client
	Injected    atomic.Int64 // packets sent from the console
	Fuzzed      atomic.Int64 // packets mutated by the fuzz rule
}

func (s *stats) AddUp(n int) {
	s.PacketsUp.Add(1)
	s.BytesUp.Add(int64(n))
}

func (s *stats) AddDown(n int) {
	s.PacketsDown.Add(1)
	s.BytesDown.Add(int64(n))
}

func (s *stats) AddInjected() { s.Injected.Add(1) }
func (s *stats) AddFuzzed()   { s.Fuzzed.Add(1) }

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

// StartStatsReporter launches a goroutine that logs relay statistics
// every 10 seconds. It stops when ctx is cancelled.
func StartStatsReporter(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()

		var prevUp, prevDown, prevPktUp, prevPktDown, prevFuzzed int64
		for {
			select {
			case <-ticker.C:
				up := Stats.BytesUp.Load()
				down := Stats.BytesDown.Load()
				pktUp := Stats.PacketsUp.Load()
				pktDown := Stats.PacketsDown.Load()
				fuzzed := Stats.Fuzzed.Load()

				upS := float64(up-prevUp) / 10.0
				downS := float64(down-prevDown) / 10.0

				if pktUp != prevPktUp || pktDown != prevPktDown {
					pterm.DefaultLogger.Info(formatStats(upS, downS, pktUp-prevPktUp, pktDown-prevPktDown, fuzzed-prevFuzzed))
				}

				prevUp = up
				prevDown = down
				prevPktUp = pktUp
				prevPktDown = pktDown
				prevFuzzed = fuzzed

			case <-ctx.Done():
				return
			}
		}
	}()
}

// byteUnits defines the units for formatting byte counts in a human-readable way.
var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// formatBytes formats a byte count into a human-readable string with fixed width (exactly 8 chars)
// for example: "99.0   B", " 1.5 KiB", " 0.1 MiB", "98.9 GiB", etc.
func formatBytes(b float64) string {
	unitIdx := 0

	// to prevent "100.0 KiB", which is 9 chars
	for b > 99 && unitIdx < 5 {
		b /= 1024
		unitIdx++
	}

	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}

// formatStats returns a formatted string of the current stats for display in the logger.
func formatStats(upS, downS float64, pktUp, pktDown, fuzzed int64) string {
	return fmt.Sprintf("Up: %s/s | Down: %s/s | Pkts: %3d↑ %3d↓ | Fuzzed: %d",
		formatBytes(upS),
		formatBytes(downS),
		pktUp,
		pktDown,
		fuzzed,
	)
}
