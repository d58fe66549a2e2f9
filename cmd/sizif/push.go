package main

import (
	"context"
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"sizif/pkg/logger"
	"sizif/pkg/mirror"
	"sizif/pkg/transfer"
)

// pushCmd re-mirrors local state to the remote folder
var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Upload local state to the remote mirror",
	Long: `Upload the status file and the current checkpoint to the FTP
mirror. Transfers resume from where a previous interrupted push left off.`,
	Run: runPush,
}

func init() {
	rootCmd.AddCommand(pushCmd)
}

func runPush(cmd *cobra.Command, args []string) {
	cfg, err := loadRemoteConfig()
	if err != nil {
		fatal("failed to load configuration", err)
	}

	m, err := mirror.New(cfg, logger.GetLogger())
	if err != nil {
		fatal("bootstrap failed", err)
	}
	defer m.Close()

	if err := m.Push(context.Background(), uploadProgress("pushing checkpoint")); err != nil {
		fatal("push failed", err)
	}
	fmt.Println("Push complete")
}

// uploadProgress renders transfer progress as a byte-count bar, created
// lazily once the total is known
func uploadProgress(desc string) transfer.Progress {
	var bar *progressbar.ProgressBar
	return func(transferred, total int64) {
		if bar == nil {
			bar = progressbar.DefaultBytes(total, desc)
		}
		_ = bar.Set64(transferred)
	}
}
