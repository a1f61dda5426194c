package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/pb33f/logtracker/replay"
	"github.com/spf13/cobra"
)

var (
	replayOutputDir string
	replayArchive   string
	replayThreshold int
	replayNoFiles   bool
)

var replayCmd = &cobra.Command{
	Use:   "replay <stream.jsonl | ->",
	Short: "Build reports from a recorded CDP event stream",
	Long: `Replay reads a JSON lines file of CDP messages, one message per line as
produced by a protocol recorder or 'logtracker generate', and runs them
through the capture engine. Messages without a sessionId belong to the
'default' session. Network.getResponseBody results in the stream answer the
engine's body fetches. A session ends at Target.detachedFromTarget or at the
end of the stream; each ending session writes its HAR and console reports.`,
	Args: cobra.ExactArgs(1),
	Example: `  logtracker replay session.jsonl
  logtracker replay session.jsonl -o reports/ --archive captures.db
  cat session.jsonl | logtracker replay - --threshold 0`,
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)

	replayCmd.Flags().StringVarP(&replayOutputDir, "output", "o", "", "Report directory (overrides output.dir)")
	replayCmd.Flags().StringVar(&replayArchive, "archive", "", "SQLite archive path (overrides output.archive)")
	replayCmd.Flags().IntVar(&replayThreshold, "threshold", -1, "Lowest exported status (overrides report.status_threshold)")
	replayCmd.Flags().BoolVar(&replayNoFiles, "no-files", false, "Skip writing report files; only archive")
}

func runReplay(cmd *cobra.Command, args []string) error {
	logger := GetLogger()

	c := *cfg
	if replayOutputDir != "" {
		c.Output.Dir = replayOutputDir
	}
	if replayNoFiles {
		c.Output.Dir = ""
	}
	if replayArchive != "" {
		c.Output.Archive = replayArchive
	}
	if replayThreshold >= 0 {
		c.Report.StatusThreshold = replayThreshold
	}

	var in io.Reader = os.Stdin
	if args[0] != "-" {
		if err := ValidateFile(args[0]); err != nil {
			return err
		}
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open stream: %w", err)
		}
		defer f.Close()
		in = f
	}

	bodies := replay.NewBodies()
	p, err := newPipeline(&c, bodies, logger)
	if err != nil {
		return err
	}
	defer p.Close()

	results, stats, err := replay.NewDriver(p.tracker, bodies, logger).Run(cmd.Context(), in)

	out := cmd.OutOrStdout()
	for _, r := range results {
		fmt.Fprintf(out, "%s: %d entries, %d console lines, %d problems\n",
			r.SessionID, len(r.HAR.Log.Entries), r.Messages, len(r.Problems))
	}
	logger.Info("replay finished",
		"lines", stats.Lines,
		"events", stats.Events,
		"bodies", stats.Bodies,
		"skipped", stats.Skipped,
		"malformed", stats.Malformed,
		"sessions", stats.SessionsRun)

	engineStats := p.tracker.Engine().Stats()
	logger.Debug("engine stats",
		"accepted", engineStats.EventsAccepted,
		"unsupported", engineStats.UnsupportedEvents,
		"body_fetch_failures", engineStats.BodyFetchFailures,
		"stale_completions", engineStats.StaleCompletions)

	return err
}
