package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"sizif/pkg/checkpoint"
	"sizif/pkg/logger"
	"sizif/pkg/mirror"
)

var (
	rotateKeep   int
	rotateRemote bool
)

// rotateCmd trims old checkpoints by hand
var rotateCmd = &cobra.Command{
	Use:   "rotate",
	Short: "Trim old checkpoints",
	Long: `Remove the oldest checkpoints, keeping the configured number of
recent ones. With --keep the configured count is overridden for this
run. With --remote the evicted files are also deleted from the FTP
mirror.`,
	Run: runRotate,
}

func init() {
	rotateCmd.Flags().IntVar(&rotateKeep, "keep", 0, "override the number of checkpoints to keep")
	rotateCmd.Flags().BoolVar(&rotateRemote, "remote", false, "also delete evicted files from the mirror")
	rootCmd.AddCommand(rotateCmd)
}

func runRotate(cmd *cobra.Command, args []string) {
	if rotateRemote {
		cfg, err := loadRemoteConfig()
		if err != nil {
			fatal("failed to load configuration", err)
		}
		m, err := mirror.New(cfg, logger.GetLogger())
		if err != nil {
			fatal("bootstrap failed", err)
		}
		defer m.Close()
		report(m.Rotate(rotateKeep))
		return
	}

	cfg, err := loadConfig()
	if err != nil {
		fatal("failed to load configuration", err)
	}
	store, err := checkpoint.New(cfg, logger.GetLogger())
	if err != nil {
		fatal("failed to open checkpoint store", err)
	}
	report(store.Rotate(rotateKeep))
}

func report(rotated bool) {
	if rotated {
		fmt.Println("Old checkpoints removed")
	} else {
		fmt.Println("Nothing to rotate")
	}
}
