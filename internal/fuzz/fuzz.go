// Package fuzz decides whether a relayed packet gets corrupted.
package fuzz

import (
	"fmt"
	"math/rand/v2"
)

// Direction names the endpoint a packet is relayed toward.
type Direction int

const (
	Client Direction = iota // toward the game client
	Server                  // toward the game server
	Both                    // rule target only: either way
)

func (d Direction) String() string {
	switch d {
	case Client:
		return "client"
	case Server:
		return "server"
	case Both:
		return "both"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// ParseDirection maps "client", "server" and "both" to a Direction.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "client":
		return Client, nil
	case "server":
		return Server, nil
	case "both":
		return Both, nil
	}
	return 0, fmt.Errorf("unknown direction %q", s)
}

// Rule corrupts bytes [Start, End) of packets relayed toward Direction with
// probability Num/Den.
type Rule struct {
	Direction Direction
	Start     int
	End       int
	Num       uint32
	Den       uint32
}

// Validate rejects rules no packet could satisfy consistently.
func (r Rule) Validate() error {
	if r.Start < 0 || r.End < 0 {
		return fmt.Errorf("fuzz range must not be negative")
	}
	if r.Start > r.End {
		return fmt.Errorf("fuzz start>end")
	}
	if r.Den == 0 {
		return fmt.Errorf("fuzz chance denominator must not be zero")
	}
	if r.Num > r.Den {
		return fmt.Errorf("fuzz chance %d/%d exceeds 1", r.Num, r.Den)
	}
	return nil
}

// Applies reports whether the rule targets packets relayed toward dir.
func (r Rule) Applies(dir Direction) bool {
	return r.Direction == Both || r.Direction == dir
}

func (r Rule) String() string {
	return fmt.Sprintf("%s [%d,%d) %d/%d", r.Direction, r.Start, r.End, r.Num, r.Den)
}

// Controller draws the randomness for fuzz decisions. It keeps no state
// besides its random source.
type Controller struct {
	rng *rand.Rand
}

// NewController returns a Controller drawing from src. A nil src uses a
// randomly seeded generator.
func NewController(src rand.Source) *Controller {
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return &Controller{rng: rand.New(src)}
}

// Apply mutates data in place when rule is set, targets dir and its single
// Bernoulli draw succeeds. The range is clamped to the packet. It reports
// whether the draw succeeded.
func (c *Controller) Apply(rule *Rule, dir Direction, data []byte) bool {
	if rule == nil || !rule.Applies(dir) {
		return false
	}
	if c.rng.Uint32N(rule.Den) >= rule.Num {
		return false
	}

	start := min(rule.Start, len(data))
	end := min(rule.End, len(data))
	for i := start; i < end; i++ {
		data[i] = byte(c.rng.Uint32())
	}
	return true
}
