package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"sizif/pkg/auth"
	"sizif/pkg/config"
	"sizif/pkg/logger"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile   string
	logLevel     string
	modelVersion string
	fileTemplate string
	localFolder  string
	rotateNumber int
	ftpHost      string
	ftpPort      int
	ftpLogin     string
	ftpPassword  string
	remoteFolder string
	dieOnErrors  bool
	workers      int
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "sizif",
	Short: "Model snapshot lifecycle manager with FTP mirroring",
	Long: `Sizif manages model training snapshots: it keeps a rotated set of
recent checkpoints in a local folder and mirrors every snapshot and the
status file to an FTP server.

Features:
  - Local checkpoint rotation with a configurable retention count
  - Resumable uploads and downloads surviving connection drops
  - Crash recovery: a fresh machine bootstraps from the remote replica
  - Background transfer workers that never block the training loop
  - Secure credential storage using system keychain`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is .sizif.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&modelVersion, "model-version", "", "version tag for this snapshot set")
	rootCmd.PersistentFlags().StringVar(&fileTemplate, "file-template", "", "checkpoint filename template")
	rootCmd.PersistentFlags().StringVar(&localFolder, "folder", "", "local checkpoint folder")
	rootCmd.PersistentFlags().IntVar(&rotateNumber, "rotate-number", -1, "checkpoints to keep, 0 keeps all")
	rootCmd.PersistentFlags().StringVar(&ftpHost, "host", "", "FTP server host")
	rootCmd.PersistentFlags().IntVar(&ftpPort, "port", 0, "FTP server port")
	rootCmd.PersistentFlags().StringVar(&ftpLogin, "login", "", "FTP login")
	rootCmd.PersistentFlags().StringVar(&ftpPassword, "password", "", "FTP password (prefer 'sizif auth login')")
	rootCmd.PersistentFlags().StringVar(&remoteFolder, "remote-folder", "", "remote mirror folder")
	rootCmd.PersistentFlags().BoolVar(&dieOnErrors, "die-on-transport-errors", false, "fail hard on remote errors")
	rootCmd.PersistentFlags().IntVar(&workers, "workers", 0, "background transfer workers")

	rootCmd.SetVersionTemplate(`sizif {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// loadConfig assembles configuration from flags, environment and files,
// fills missing FTP credentials from the credential manager, and
// initializes logging.
func loadConfig() (*config.Config, error) {
	flags := make(map[string]interface{})
	if modelVersion != "" {
		flags["version"] = modelVersion
	}
	if fileTemplate != "" {
		flags["file-template"] = fileTemplate
	}
	if localFolder != "" {
		flags["folder"] = localFolder
	}
	if rotateNumber >= 0 {
		flags["rotate-number"] = rotateNumber
	}
	if ftpHost != "" {
		flags["host"] = ftpHost
	}
	if ftpPort > 0 {
		flags["port"] = ftpPort
	}
	if ftpLogin != "" {
		flags["login"] = ftpLogin
	}
	if ftpPassword != "" {
		flags["password"] = ftpPassword
	}
	if remoteFolder != "" {
		flags["remote-folder"] = remoteFolder
	}
	if dieOnErrors {
		flags["die-on-transport-errors"] = true
	}
	if workers > 0 {
		flags["workers"] = workers
	}
	if logLevel != "" {
		flags["log-level"] = logLevel
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return nil, err
	}

	if cfg.FTP.Password == "" && cfg.FTP.Host != "" {
		if manager, err := auth.NewManager(); err == nil {
			if account, err := manager.Retrieve(cfg.FTP.Host); err == nil {
				if cfg.FTP.Login == "" {
					cfg.FTP.Login = account.Login
				}
				cfg.FTP.Password = account.Password
			}
		}
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return cfg, nil
}

// loadRemoteConfig is loadConfig plus validation of the FTP surface
func loadRemoteConfig() (*config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateRemote(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fatal(msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
	os.Exit(1)
}
