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
	pidFlag := flag.Int("pid", 0, "Process ID to snapshot")
	outputFlag := flag.String("output", "", "Output snapshot file")
	minFlag := flag.Uint64("min", 0, "Lowest address to capture")
	maxFlag := flag.Uint64("max", 0, "Highest address to capture (0 = end of user space)")
	suspendFlag := flag.Bool("suspend", true, "Suspend the process while capturing")
	flag.Parse()

	if *pidFlag == 0 {
		fmt.Println("Error: --pid is required")
		flag.Usage()
		os.Exit(1)
	}
	if *outputFlag == "" {
		fmt.Println("Error: --output is required")
		flag.Usage()
		os.Exit(1)
	}

	sys := system.New(winapi.New())
	defer sys.Clear()

	proc, err := sys.GetProcess(debugapi.ProcessID(*pidFlag))
	if err != nil {
		fmt.Printf("Error attaching to process %d: %v\n", *pidFlag, err)
		os.Exit(1)
	}

	if *suspendFlag {
		if err := proc.Suspend(); err != nil {
			fmt.Printf("Error suspending process: %v\n", err)
			os.Exit(1)
		}
		defer func() {
			if err := proc.Resume(); err != nil {
				fmt.Printf("Error resuming process: %v\n", err)
			}
		}()
	}

	snap, err := proc.TakeMemorySnapshot(debugapi.Address(*minFlag), debugapi.Address(*maxFlag))
	if err != nil {
		fmt.Printf("Error taking snapshot: %v\n", err)
		os.Exit(1)
	}

	if err := snapfile.Save(*outputFlag, snap); err != nil {
		fmt.Printf("Error writing snapshot file: %v\n", err)
		os.Exit(1)
	}

	var bytes uint64
	for _, r := range snap.Regions {
		bytes += uint64(len(r.Content))
	}
	fmt.Printf("Captured %d regions (%d content bytes) to %s\n", len(snap.Regions), bytes, *outputFlag)
}
