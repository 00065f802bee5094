// Command shmdump runs a scenario script against the shared-memory
// subsystem and prints the resulting per-process usage report. It is
// a debugging aid, not a kernel: the "processes" it creates are plain
// Go values in one address space, backed by real mmap'd frames, so
// the same physical-page identity the syscalls establish is directly
// observable from the command line.
package main

import (
	"fmt"
	"log"
	"os"

	"tinyos/integration"
)

func usage(me string) {
	fmt.Printf("%s <scenario-script>\n\nRun a shared-memory scenario script and print usage reports.\n", me)
	os.Exit(1)
}

func main() {
	if len(os.Args) != 2 {
		usage(os.Args[0])
	}

	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		log.Fatal(err)
	}

	r, err := integration.NewRunner(256)
	if err != nil {
		log.Fatal(err)
	}
	defer r.Close()

	if err := r.Run(string(data)); err != nil {
		log.Fatal(err)
	}

	for _, rep := range r.Reports {
		fmt.Print(rep)
	}
}
