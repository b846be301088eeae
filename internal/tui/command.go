package tui

import (
	"fmt"
	"strings"
)

// CommandName identifies a prompt command.
type CommandName string

const (
	CmdQuit   CommandName = "quit"
	CmdSearch CommandName = "search"
	CmdOpen   CommandName = "open"
	CmdReload CommandName = "reload"
	CmdHelp   CommandName = "help"
)

var commandAliases = map[string]CommandName{
	"q":      CmdQuit,
	"quit":   CmdQuit,
	"s":      CmdSearch,
	"search": CmdSearch,
	"o":      CmdOpen,
	"open":   CmdOpen,
	"r":      CmdReload,
	"reload": CmdReload,
	"h":      CmdHelp,
	"help":   CmdHelp,
}

// Command is a parsed prompt command.
type Command struct {
	Name CommandName
	Args string
}

// ParseCommand parses a command line typed after ':'.
func ParseCommand(input string) (Command, error) {
	input = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(input), ":"))
	if input == "" {
		return Command{}, fmt.Errorf("empty command")
	}
	word, args, _ := strings.Cut(input, " ")
	name, ok := commandAliases[strings.ToLower(word)]
	if !ok {
		return Command{}, fmt.Errorf("unknown command %q", word)
	}
	cmd := Command{Name: name, Args: strings.TrimSpace(args)}
	if (name == CmdSearch || name == CmdOpen) && cmd.Args == "" {
		return Command{}, fmt.Errorf(":%s needs an argument", name)
	}
	return cmd, nil
}
