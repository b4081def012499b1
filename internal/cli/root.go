package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/kmassidik/engagement/internal/common/config"
	"github.com/kmassidik/engagement/internal/common/logger"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "engagement",
	Short: "Visitor engagement rating and warehouse utilities",
	Long: `engagement turns raw web-analytics session events into per-visitor
engagement ratings and ships a few warehouse chores alongside:

  rate      - recompute the user rating table and print a report
  tables    - enumerate, preview and optionally export every table
  reload    - replace a table with the contents of a CSV
  serve     - expose ratings over HTTP
  worker    - run ratings requested over Kafka
  token     - issue a JWT for the run endpoint`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

var rootFlags struct {
	envFile string
}

// Set by loadConfig before any subcommand runs
var (
	cfg *config.Config
	log *logger.Logger
)

func init() {
	rootCmd.PersistentFlags().StringVar(&rootFlags.envFile, "env-file", ".env", "Path to a .env file with connection settings")
}

// Execute runs the root command and exits non-zero on failure. SIGINT and
// SIGTERM cancel the command's context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command, args []string) error {
	if err := godotenv.Load(rootFlags.envFile); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to read %s: %w", rootFlags.envFile, err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "No %s file found, using system environment variables\n", rootFlags.envFile)
	}

	loaded, err := config.Load(cmd.Name())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg = loaded

	logger.Configure(cfg.Log.Level, cfg.Log.Format)
	log = logger.New("engagement-" + cmd.Name())
	return nil
}
