package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ivoronin/volscan/internal/coordinator"
	"github.com/ivoronin/volscan/internal/progress"
	"github.com/ivoronin/volscan/internal/types"
)

// scanOptions holds CLI flags for the scan command.
type scanOptions struct {
	workers        int
	topN           int
	forceDirectory bool
	noProgress     bool
	jsonOutput     bool
}

// newScanCmd creates the scan subcommand.
func newScanCmd() *cobra.Command {
	opts := &scanOptions{
		topN: 20,
	}

	cmd := &cobra.Command{
		Use:   "scan <path>",
		Short: "Scan a volume and report drive stats, largest files, and space by extension",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runScan(args[0], opts)
		},
	}

	cmd.Flags().IntVarP(&opts.workers, "workers", "w", 0, "Concurrent directory reads for the fallback scanner (0 = auto)")
	cmd.Flags().IntVarP(&opts.topN, "top-n", "n", opts.topN, "Number of largest files to report")
	cmd.Flags().BoolVar(&opts.forceDirectory, "force-directory", false, "Skip the MFT fast path and always walk directories")
	cmd.Flags().BoolVar(&opts.noProgress, "no-progress", false, "Disable progress output")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Emit the result as JSON instead of a formatted report")

	return cmd
}

// runScan wires the Coordinator to a terminal progress bar and prints
// the final ScanResult, either as a formatted report or as JSON.
func runScan(volumeRoot string, opts *scanOptions) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bar := progress.New(!opts.noProgress && !opts.jsonOutput)

	co := coordinator.New(coordinator.Options{
		ForceDirectory: opts.forceDirectory,
		Workers:        opts.workers,
		TopN:           opts.topN,
	})

	result, err := co.Scan(ctx, volumeRoot, func(p types.ScanProgress) {
		bar.Update(p)
	})
	if err != nil {
		return fmt.Errorf("scan %s: %w", volumeRoot, err)
	}

	bar.Finish(summaryLine{result})

	if opts.jsonOutput {
		return printJSON(result)
	}
	printReport(result)
	return nil
}

// summaryLine renders the one-line message printed when the progress
// bar finishes.
type summaryLine struct {
	result types.ScanResult
}

func (s summaryLine) String() string {
	var files int
	var walk func(n *types.TreeNode)
	walk = func(n *types.TreeNode) {
		if !n.IsDir {
			files++
			return
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	if s.result.Root != nil {
		walk(s.result.Root)
	}
	return fmt.Sprintf("scanned %d files, %s total", files, humanize.Bytes(uint64(rootSize(s.result.Root))))
}

func rootSize(root *types.TreeNode) int64 {
	if root == nil {
		return 0
	}
	return root.SizeBytes
}

func printJSON(result types.ScanResult) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func printReport(result types.ScanResult) {
	fmt.Printf("Drive: %s\n", result.Drive.LetterOrLabel)
	if result.Drive.TotalBytes > 0 {
		fmt.Printf("  %s used of %s (%s free)\n",
			humanize.Bytes(uint64(result.Drive.UsedBytes)),
			humanize.Bytes(uint64(result.Drive.TotalBytes)),
			humanize.Bytes(uint64(result.Drive.FreeBytes)))
	}

	if result.Incomplete {
		fmt.Println("  warning: scan completed with unresolved tree linkage; results may be partial")
	}

	fmt.Println()
	fmt.Println("Largest files:")
	for _, item := range result.TopFiles {
		fmt.Printf("  %10s  %s\n", humanize.Bytes(uint64(item.SizeBytes)), item.FullPath)
	}

	fmt.Println()
	fmt.Println("By extension:")
	for _, g := range result.ByExtension {
		fmt.Printf("  %10s  .%-10s %d files\n", humanize.Bytes(uint64(g.TotalSize)), g.Extension, g.FileCount)
	}
}
