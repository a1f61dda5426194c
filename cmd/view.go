package cmd

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/pb33f/logtracker/tui"
	"github.com/spf13/cobra"
)

var viewCmd = &cobra.Command{
	Use:   "view <har-file>",
	Short: "Browse a network report in the terminal UI",
	Long: `Open a HAR network report in an interactive terminal viewer. Entries are
listed in capture order; Enter shows the request and response side by side,
'/' filters by text or 're:<regex>', and 'f' narrows to failed requests.`,
	Args: cobra.ExactArgs(1),
	Example: `  logtracker view reports/network.SESSION-1.20240501T100000.000Z.har
  logtracker view capture.har -v`,
	RunE: runView,
}

func init() {
	rootCmd.AddCommand(viewCmd)
}

func runView(cmd *cobra.Command, args []string) error {
	harFile := args[0]
	if err := ValidateFile(harFile); err != nil {
		return err
	}
	GetLogger().Debug("launching terminal UI", "har_file", harFile)

	p := tea.NewProgram(tui.NewCaptureViewModel(harFile), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}
	return nil
}
