package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"sizif/pkg/checkpoint"
	"sizif/pkg/logger"
)

// statusCmd shows the local snapshot state without touching the network
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the local checkpoint state",
	Long: `Show the status file contents for the configured version tag:
the current checkpoint, its recorded metrics and the rotation history.`,
	Run: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		fatal("failed to load configuration", err)
	}

	store, err := checkpoint.New(cfg, logger.GetLogger())
	if err != nil {
		fatal("failed to open checkpoint store", err)
	}

	fmt.Printf("Status file:   %s\n", store.StatePath())
	fmt.Printf("Rotation:      ")
	if store.RotateNumber() < 1 {
		fmt.Println("keep all")
	} else {
		fmt.Printf("keep %d\n", store.RotateNumber())
	}

	current := store.CurrentCheckpoint()
	if current == "" {
		fmt.Println("Current:       (none)")
		return
	}
	fmt.Printf("Current:       %s\n", current)

	params := store.CurrentParams()
	if len(params) > 0 {
		keys := make([]string, 0, len(params))
		for k := range params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("  %-12s %v\n", k, params[k])
		}
	}

	cps := store.Checkpoints()
	fmt.Printf("History (%d):\n", len(cps))
	for _, cp := range cps {
		fmt.Printf("  %s\n", cp)
	}
}
