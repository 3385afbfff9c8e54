// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"golang.org/x/mcsnapshot/addrspace"
	"golang.org/x/mcsnapshot/checkpoint"
	"golang.org/x/mcsnapshot/snapshot"
)

func newMappingsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mappings <pid>",
		Short: "print the virtual memory mappings of a live process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			proc, err := attach(args[0])
			if err != nil {
				return err
			}
			printMappings(proc)
			return nil
		},
	}
}

func printMappings(proc *addrspace.LiveProcess) {
	t := tabwriter.NewWriter(os.Stdout, 0, 0, 1, ' ', tabwriter.AlignRight)
	fmt.Fprintf(t, "min\tmax\tperm\tpath\t\n")
	for _, m := range proc.Mappings() {
		fmt.Fprintf(t, "%s\t%s\t%s\t%s\t\n", m.Min, m.Max, m.Perm, m.Path)
	}
	t.Flush()
}

func newCaptureCmd() *cobra.Command {
	var dataStart, dataSize uint64
	cmd := &cobra.Command{
		Use:   "capture <pid>",
		Short: "capture a snapshot of one data region and print its state number, region count and hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			proc, err := attach(args[0])
			if err != nil {
				return err
			}
			if dataSize == 0 {
				return fmt.Errorf("mcsnapctl: --size must be nonzero")
			}
			return runCapture(proc, dataStart, dataSize)
		},
	}
	cmd.Flags().Uint64Var(&dataStart, "start", 0, "start address of the region to capture (hex, e.g. 0x400000)")
	cmd.Flags().Uint64Var(&dataSize, "size", 0, "size in bytes of the region to capture")
	return cmd
}

func runCapture(proc *addrspace.LiveProcess, start, size uint64) error {
	engine := checkpoint.NewEngine(16, checkpoint.NoSoftDirty())
	target := &snapshot.Target{
		Space:          proc,
		LiveProcessIDs: func() []int { return nil },
		DataSegments: func() []snapshot.DataSegment {
			return []snapshot.DataSegment{{
				Start:     addrspace.Address(start),
				Permanent: addrspace.Address(start),
				Size:      int64(size),
			}}
		},
		HeapRange: func() (addrspace.Address, addrspace.Address, uint64) { return 0, 0, 0 },
		Stacks:    func() []*snapshot.StackSnapshot { return nil },
		OpenFiles: func() ([]*snapshot.OpenFileDescription, error) { return nil, nil },
	}

	snap, err := engine.Capture(target, proc, nil)
	if err != nil {
		return fmt.Errorf("mcsnapctl: capture failed: %w", err)
	}

	t := tabwriter.NewWriter(os.Stdout, 0, 0, 1, ' ', 0)
	fmt.Fprintf(t, "num_state\t%d\n", snap.NumState)
	fmt.Fprintf(t, "regions\t%d\n", len(snap.Regions))
	fmt.Fprintf(t, "hash\t%#x\n", snap.Hash)
	t.Flush()
	return nil
}

func attach(pidArg string) (*addrspace.LiveProcess, error) {
	pid, err := strconv.Atoi(pidArg)
	if err != nil {
		return nil, fmt.Errorf("mcsnapctl: invalid pid %q: %w", pidArg, err)
	}
	proc, err := addrspace.NewLiveProcess(pid, 8)
	if err != nil {
		return nil, fmt.Errorf("mcsnapctl: attaching to pid %d: %w", pid, err)
	}
	return proc, nil
}
