package cli

import (
	"fmt"

	"github.com/kmassidik/engagement/internal/common/config"
	"github.com/kmassidik/engagement/internal/common/db"
	"github.com/kmassidik/engagement/internal/reload"
	"github.com/spf13/cobra"
)

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Replace the drop-off mapping table with a CSV",
	Long: `Drop and recreate the drop-off mapping table, then bulk-copy every row of
the CSV into it. The whole reload is one transaction, so a bad row leaves the
previous table in place.`,
	Args: cobra.NoArgs,
	RunE: runReload,
}

var reloadFlags struct {
	csvPath string
	table   string
}

func init() {
	reloadCmd.Flags().StringVar(&reloadFlags.csvPath, "csv", "", "CSV file to load (overrides RELOAD_CSV_PATH)")
	reloadCmd.Flags().StringVar(&reloadFlags.table, "table", "", "Table to replace (overrides RELOAD_TABLE_NAME)")

	rootCmd.AddCommand(reloadCmd)
}

func runReload(cmd *cobra.Command, args []string) error {
	path := cfg.Reload.CSVPath
	if reloadFlags.csvPath != "" {
		path = reloadFlags.csvPath
	}
	table := cfg.Reload.TableName
	if reloadFlags.table != "" {
		table = reloadFlags.table
	}
	if !config.IsIdentifier(table) {
		return fmt.Errorf("%q is not a valid table name", table)
	}

	database, err := db.Connect(cfg.Database, log)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer database.Close()

	n, err := reload.NewLoader(database, log).ReloadFile(cmd.Context(), path, reload.EntryDropoffMapping(table))
	if err != nil {
		return fmt.Errorf("reload failed: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Table '%s' reloaded with %d rows\n", table, n)
	return nil
}
