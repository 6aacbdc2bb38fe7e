// Package cli parses parley's command line.
package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type Command string

const (
	CommandChat    Command = "chat"
	CommandToggle  Command = "toggle"
	CommandStop    Command = "stop"
	CommandCancel  Command = "cancel"
	CommandSay     Command = "say"
	CommandStatus  Command = "status"
	CommandLog     Command = "log"
	CommandPlay    Command = "play"
	CommandClear   Command = "clear"
	CommandDevices Command = "devices"
	CommandDoctor  Command = "doctor"
	CommandVersion Command = "version"
	CommandHelp    Command = "help"
)

// arity describes how many positional arguments a command accepts.
type arity int

const (
	arityNone arity = iota
	arityText
	arityIndex
)

var validCommands = map[Command]arity{
	CommandChat:    arityNone,
	CommandToggle:  arityNone,
	CommandStop:    arityNone,
	CommandCancel:  arityNone,
	CommandSay:     arityText,
	CommandStatus:  arityNone,
	CommandLog:     arityNone,
	CommandPlay:    arityIndex,
	CommandClear:   arityNone,
	CommandDevices: arityNone,
	CommandDoctor:  arityNone,
	CommandVersion: arityNone,
	CommandHelp:    arityNone,
}

// Parsed is the result of one command-line parse.
type Parsed struct {
	Command    Command
	ConfigPath string
	ShowHelp   bool
	Text       string
	Index      int
}

// Parse reads `[--config PATH] <command> [args]`. Flags must precede the command.
func Parse(args []string) (Parsed, error) {
	parsed := Parsed{Command: CommandHelp, ShowHelp: true}

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch arg {
		case "-h", "--help":
			parsed.ShowHelp = true
			parsed.Command = CommandHelp
		case "--version":
			parsed.ShowHelp = false
			parsed.Command = CommandVersion
		case "--config":
			i++
			if i >= len(args) {
				return Parsed{}, errors.New("--config requires a path")
			}
			parsed.ConfigPath = args[i]
		default:
			if strings.HasPrefix(arg, "-") {
				return Parsed{}, fmt.Errorf("unknown flag: %s", arg)
			}

			cmd := Command(arg)
			kind, ok := validCommands[cmd]
			if !ok {
				return Parsed{}, fmt.Errorf("unknown command: %s", arg)
			}
			parsed.Command = cmd
			parsed.ShowHelp = cmd == CommandHelp

			if err := parsed.bindArgs(kind, args[i+1:]); err != nil {
				return Parsed{}, err
			}
			return parsed, nil
		}
	}

	return parsed, nil
}

func (p *Parsed) bindArgs(kind arity, rest []string) error {
	switch kind {
	case arityText:
		text := strings.TrimSpace(strings.Join(rest, " "))
		if text == "" {
			return fmt.Errorf("%s requires text", p.Command)
		}
		p.Text = text
	case arityIndex:
		if len(rest) != 1 {
			return fmt.Errorf("%s requires exactly one message number", p.Command)
		}
		index, err := strconv.Atoi(rest[0])
		if err != nil || index < 1 {
			return fmt.Errorf("invalid message number %q", rest[0])
		}
		p.Index = index
	default:
		if len(rest) > 0 {
			return fmt.Errorf("unexpected arguments after command %q", p.Command)
		}
	}
	return nil
}

// HelpText renders usage for binaryName.
func HelpText(binaryName string) string {
	return fmt.Sprintf(`Usage:
  %[1]s [--config PATH] <command> [args]

Commands:
  chat        Start the conversation owner and an interactive prompt
  toggle      Start a voice turn, or stop and send it when already recording
  stop        Stop recording and send the voice turn
  cancel      Cancel the turn in progress
  say TEXT    Send a text turn
  status      Print the conversation state
  log         Print the conversation transcript
  play N      Replay the audio of message N
  clear       Clear the conversation
  devices     List available input devices
  doctor      Run configuration, audio, and API checks
  version     Print version information
  help        Show this help

Flags:
  --config PATH   Config file path (default: $XDG_CONFIG_HOME/parley/config.jsonc)
  -h, --help      Show help
  --version       Show version
`, binaryName)
}
