package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"sizif/pkg/logger"
	"sizif/pkg/mirror"
)

// pullCmd bootstraps local state from the remote mirror
var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Recover local state from the remote mirror",
	Long: `Connect to the FTP mirror and bring the local folder up to date:
download the remote status file and, if the current checkpoint it points
at is missing locally, the checkpoint itself. Run this on a fresh
machine before resuming training.`,
	Run: runPull,
}

func init() {
	rootCmd.AddCommand(pullCmd)
}

func runPull(cmd *cobra.Command, args []string) {
	cfg, err := loadRemoteConfig()
	if err != nil {
		fatal("failed to load configuration", err)
	}

	m, err := mirror.New(cfg, logger.GetLogger())
	if err != nil {
		fatal("bootstrap failed", err)
	}
	defer m.Close()

	current := m.CurrentCheckpoint()
	if current == "" {
		fmt.Println("No remote state for this version tag, starting fresh")
		return
	}
	fmt.Printf("Recovered state, current checkpoint: %s\n", current)
}
