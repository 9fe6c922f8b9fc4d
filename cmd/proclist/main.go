//go:build windows

package main

import (
	"flag"
	"fmt"

	"procsnap/debugapi/winapi"
	"procsnap/system"
)

func main() {
	nameFlag := flag.String("name", "", "Only show processes whose filename matches")
	threadsFlag := flag.Bool("threads", false, "Also list threads per process")
	modulesFlag := flag.Bool("modules", false, "Also list modules per process")
	flag.Parse()

	sys := system.New(winapi.New())
	defer sys.Clear()

	if !sys.Scan() {
		fmt.Println("Warning: scan is incomplete, some processes may be missing details")
	}

	procs := sys.Processes()
	if *nameFlag != "" {
		procs = sys.FindProcessesByFilename(*nameFlag)
	}

	for _, p := range procs {
		fmt.Printf("%6d  %s\n", p.PID(), p.Filename())
		if *threadsFlag {
			for _, t := range p.Threads() {
				fmt.Printf("        thread %d\n", t.TID())
			}
		}
		if *modulesFlag {
			for _, m := range p.Modules() {
				fmt.Printf("        module %s size=%d %s\n", m.Base(), m.Size(), m.Path())
			}
		}
	}
	fmt.Printf("%d processes\n", len(procs))
}
