// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
)

func newReplCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "start an interactive shell for issuing mappings/capture commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRepl()
		},
	}
}

var replCompleter = readline.NewPrefixCompleter(
	readline.PcItem("mappings"),
	readline.PcItem("capture"),
	readline.PcItem("help"),
	readline.PcItem("quit"),
)

func runRepl() error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:       "mcsnapctl> ",
		HistoryFile:  historyFilePath(),
		AutoComplete: replCompleter,
	})
	if err != nil {
		return fmt.Errorf("mcsnapctl: starting readline: %w", err)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("mcsnapctl: reading input: %w", err)
		}

		if err := dispatch(strings.TrimSpace(line)); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}
}

func historyFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return home + "/.mcsnapctl_history"
}

func dispatch(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	switch fields[0] {
	case "quit", "exit":
		os.Exit(0)
		return nil

	case "help":
		fmt.Println("commands: mappings <pid>, capture <pid> <start-hex> <size>, quit")
		return nil

	case "mappings":
		if len(fields) != 2 {
			return fmt.Errorf("usage: mappings <pid>")
		}
		proc, err := attach(fields[1])
		if err != nil {
			return err
		}
		printMappings(proc)
		return nil

	case "capture":
		if len(fields) != 4 {
			return fmt.Errorf("usage: capture <pid> <start-hex> <size>")
		}
		proc, err := attach(fields[1])
		if err != nil {
			return err
		}
		start, err := strconv.ParseUint(strings.TrimPrefix(fields[2], "0x"), 16, 64)
		if err != nil {
			return fmt.Errorf("invalid start address %q: %w", fields[2], err)
		}
		size, err := strconv.ParseUint(fields[3], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid size %q: %w", fields[3], err)
		}
		return runCapture(proc, start, size)

	default:
		return fmt.Errorf("unknown command %q; try 'help'", fields[0])
	}
}
