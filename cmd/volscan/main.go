package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	os.Exit(run())
}

func run() int {
	root := &cobra.Command{
		Use:     "volscan",
		Short:   "Scan a volume and report where space is going",
		Version: version + " (" + commit + ")",
	}

	root.AddCommand(newScanCmd())

	if err := root.Execute(); err != nil {
		return 1
	}
	return 0
}
