// Package console parses operator commands and delivers console lines from
// the local terminal or a remote WebSocket operator to the relay.
package console

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/1ureka/scrapnet/internal/fuzz"
)

// ErrUnknownCommand is returned for lines matching no command form.
var ErrUnknownCommand = errors.New("unknown command")

// Line is one operator input line. Out receives the command's output.
type Line struct {
	Text string
	Out  io.Writer
}

// Command is a parsed console line.
type Command interface {
	command()
}

// SetLog turns the packet hex view on or off.
type SetLog struct{ On bool }

// ShowState prints both histograms at Offset.
type ShowState struct{ Offset int }

// Inject sends Data, encrypted, toward one endpoint.
type Inject struct {
	Toward fuzz.Direction
	Data   []byte
}

// SetFuzz replaces the active fuzz rule.
type SetFuzz struct{ Rule fuzz.Rule }

// ClearFuzz removes the active fuzz rule.
type ClearFuzz struct{}

// Exit ends the relay session.
type Exit struct{}

func (SetLog) command()    {}
func (ShowState) command() {}
func (Inject) command()    {}
func (SetFuzz) command()   {}
func (ClearFuzz) command() {}
func (Exit) command()      {}

// Parse parses one console line. A blank line yields a nil Command and a
// nil error.
//
// Grammar:
//
//	log on|off
//	state <offset>
//	client <hex>...
//	server <hex>...
//	fuzz client|server|both <start> <end> <num> <den>
//	fuzz off
//	exit
func Parse(line string) (Command, error) {
	words := strings.Fields(line)
	if len(words) == 0 {
		return nil, nil
	}

	switch words[0] {
	case "log":
		if len(words) == 2 {
			switch words[1] {
			case "on":
				return SetLog{On: true}, nil
			case "off":
				return SetLog{On: false}, nil
			}
		}

	case "state":
		if len(words) == 2 {
			offset, err := strconv.Atoi(words[1])
			if err != nil || offset < 0 {
				return nil, fmt.Errorf("invalid offset %q", words[1])
			}
			return ShowState{Offset: offset}, nil
		}

	case "client", "server":
		return parseInject(words)

	case "fuzz":
		if len(words) == 2 && words[1] == "off" {
			return ClearFuzz{}, nil
		}
		if len(words) == 6 {
			return parseFuzz(words[1:])
		}

	case "exit":
		if len(words) == 1 {
			return Exit{}, nil
		}
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, strings.TrimSpace(line))
}

// parseInject concatenates the hex arguments after the direction word.
func parseInject(words []string) (Command, error) {
	toward := fuzz.Client
	if words[0] == "server" {
		toward = fuzz.Server
	}

	var data []byte
	for _, arg := range words[1:] {
		b, err := hex.DecodeString(arg)
		if err != nil {
			return nil, fmt.Errorf("invalid hex %q: %w", arg, err)
		}
		data = append(data, b...)
	}
	return Inject{Toward: toward, Data: data}, nil
}

func parseFuzz(args []string) (Command, error) {
	dir, err := fuzz.ParseDirection(args[0])
	if err != nil {
		return nil, err
	}

	var bounds [2]int
	for i, s := range args[1:3] {
		if bounds[i], err = strconv.Atoi(s); err != nil {
			return nil, fmt.Errorf("invalid fuzz offset %q", s)
		}
	}

	var chance [2]uint32
	for i, s := range args[3:5] {
		v, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid fuzz chance %q", s)
		}
		chance[i] = uint32(v)
	}

	rule := fuzz.Rule{
		Direction: dir,
		Start:     bounds[0],
		End:       bounds[1],
		Num:       chance[0],
		Den:       chance[1],
	}
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	return SetFuzz{Rule: rule}, nil
}
