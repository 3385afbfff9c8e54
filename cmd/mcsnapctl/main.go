// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The mcsnapctl tool is a command-line and interactive-shell front end
// for exercising the checkpoint/restore core against a live process:
// attaching, listing its memory map, capturing a snapshot, and
// printing the resulting content hash (the per-storage-kind byte
// breakdown appears only in the debug log, with -v). It is a
// development and debugging aid, not the exploration algorithm itself
// — that remains an external collaborator (see the checkpoint package
// doc comment).
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var verbose bool

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "mcsnapctl",
		Short:         "Inspect a live process's memory through the mcsnapshot checkpoint core",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				logrus.SetLevel(logrus.DebugLevel)
			} else {
				logrus.SetLevel(logrus.WarnLevel)
			}
		},
	}
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(newMappingsCmd())
	cmd.AddCommand(newCaptureCmd())
	cmd.AddCommand(newReplCmd())
	return cmd
}
