package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/pb33f/logtracker/sink"
	"github.com/spf13/cobra"
)

var (
	archivePath      string
	archiveExportDir string
)

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Inspect captures stored in a SQLite archive",
}

var archiveListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived captures, newest first",
	Args:  cobra.NoArgs,
	RunE:  runArchiveList,
}

var archiveExportCmd = &cobra.Command{
	Use:   "export <capture-id>",
	Short: "Write an archived capture back out as report files",
	Args:  cobra.ExactArgs(1),
	Example: `  logtracker archive export 3f0c2a0e-... -o reports/
  logtracker archive export 3f0c2a0e-... --archive captures.db`,
	RunE: runArchiveExport,
}

func init() {
	rootCmd.AddCommand(archiveCmd)
	archiveCmd.AddCommand(archiveListCmd, archiveExportCmd)

	archiveCmd.PersistentFlags().StringVar(&archivePath, "archive", "", "SQLite archive path (overrides output.archive)")
	archiveExportCmd.Flags().StringVarP(&archiveExportDir, "output", "o", ".", "Directory to write the reports to")
}

func openConfiguredArchive() (*sink.Archive, error) {
	path := cfg.Output.Archive
	if archivePath != "" {
		path = archivePath
	}
	if path == "" {
		return nil, fmt.Errorf("no archive configured: pass --archive or set output.archive")
	}
	if err := ValidateFile(path); err != nil {
		return nil, err
	}
	return sink.OpenArchive(path)
}

func runArchiveList(cmd *cobra.Command, args []string) error {
	archive, err := openConfiguredArchive()
	if err != nil {
		return err
	}
	defer archive.Close()

	captures, err := archive.List(cmd.Context())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSESSION\tCREATED\tENTRIES\tCONSOLE\tDIGEST")
	for _, c := range captures {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
			c.ID, c.SessionID, c.CreatedAt.UTC().Format(time.RFC3339), c.Entries, c.ConsoleLines, c.Digest)
	}
	return w.Flush()
}

func runArchiveExport(cmd *cobra.Command, args []string) error {
	archive, err := openConfiguredArchive()
	if err != nil {
		return err
	}
	defer archive.Close()

	c, err := archive.Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if err := os.MkdirAll(archiveExportDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	paths := sink.FileNames(archiveExportDir, c.SessionID, c.CreatedAt)
	if err := os.WriteFile(paths.HAR, c.HAR, 0o644); err != nil {
		return fmt.Errorf("failed to write network report: %w", err)
	}
	if err := os.WriteFile(paths.Console, c.Console, 0o644); err != nil {
		return fmt.Errorf("failed to write console report: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s\n%s\n", filepath.Clean(paths.HAR), filepath.Clean(paths.Console))
	return nil
}
