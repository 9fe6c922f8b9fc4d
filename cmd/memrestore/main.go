//go:build windows

package main

import (
	"flag"
	"fmt"
	"os"

	"procsnap/debugapi"
	"procsnap/debugapi/winapi"
	"procsnap/snapfile"
	"procsnap/system"
)

func main() {
	pidFlag := flag.Int("pid", 0, "Process ID to restore into (default: the snapshot's PID)")
	inputFlag := flag.String("input", "", "Snapshot file to restore")
	mappedFlag := flag.Bool("mapped", false, "Also restore content of file-backed regions")
	lenientFlag := flag.Bool("lenient", false, "Skip regions that fail instead of aborting")
	flag.Parse()

	if *inputFlag == "" {
		fmt.Println("Error: --input is required")
		flag.Usage()
		os.Exit(1)
	}

	snap, err := snapfile.Load(*inputFlag)
	if err != nil {
		fmt.Printf("Error reading snapshot file: %v\n", err)
		os.Exit(1)
	}

	pid := snap.PID
	if *pidFlag != 0 {
		pid = debugapi.ProcessID(*pidFlag)
	}

	sys := system.New(winapi.New())
	defer sys.Clear()

	proc, err := sys.GetProcess(pid)
	if err != nil {
		fmt.Printf("Error attaching to process %d: %v\n", pid, err)
		os.Exit(1)
	}

	opts := system.RestoreOptions{
		RestoreMappedFiles: *mappedFlag,
		ContinueOnError:    *lenientFlag,
	}
	if err := proc.RestoreMemorySnapshot(snap, opts); err != nil {
		fmt.Printf("Error restoring snapshot: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Restored %d regions into process %d\n", len(snap.Regions), pid)
}
