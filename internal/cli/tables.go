package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/kmassidik/engagement/internal/common/db"
	"github.com/kmassidik/engagement/internal/tables"
	"github.com/spf13/cobra"
)

var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "Enumerate and preview every table in the database",
	Long: `List every base table in the public schema, print its columns, row
count and a short preview, and load its rows into memory. Small tables are
loaded in full, large ones partially. The loaded tables can then be exported
to one CSV per table.`,
	Args: cobra.NoArgs,
	RunE: runTables,
}

var tablesFlags struct {
	export    bool
	noExport  bool
	exportDir string
}

func init() {
	tablesCmd.Flags().BoolVar(&tablesFlags.export, "export", false, "Export loaded tables to CSV without asking")
	tablesCmd.Flags().BoolVar(&tablesFlags.noExport, "no-export", false, "Skip the CSV export without asking")
	tablesCmd.Flags().StringVar(&tablesFlags.exportDir, "export-dir", "", "Directory for exported CSVs (overrides LOADER_EXPORT_DIR)")
	tablesCmd.MarkFlagsMutuallyExclusive("export", "no-export")

	rootCmd.AddCommand(tablesCmd)
}

func runTables(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	database, err := db.Connect(cfg.Database, log)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer func() {
		database.Close()
		fmt.Fprintln(out, "\nDatabase connection closed.")
	}()

	loader := tables.NewLoader(tables.NewInspector(database.DB), cfg.Loader, log)
	loaded, err := loader.Run(ctx, out)
	if err != nil {
		return fmt.Errorf("failed to analyze tables: %w", err)
	}
	if len(loaded) == 0 {
		return nil
	}

	export := tablesFlags.export
	if !tablesFlags.export && !tablesFlags.noExport {
		export = confirm(cmd.InOrStdin(), out, "\nWould you like to export all tables to CSV files?")
	}
	if !export {
		return nil
	}

	dir := cfg.Loader.ExportDir
	if tablesFlags.exportDir != "" {
		dir = tablesFlags.exportDir
	}
	paths, err := tables.ExportCSV(dir, loaded)
	if err != nil {
		return fmt.Errorf("failed to export tables: %w", err)
	}
	for _, path := range paths {
		fmt.Fprintf(out, "Exported %s\n", path)
	}
	fmt.Fprintf(out, "All tables exported to '%s' directory\n", dir)
	return nil
}

// confirm asks a y/n question; anything other than y or yes is no
func confirm(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s (y/n): ", question)
	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && answer == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
