package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/pb33f/logtracker/cdpgen"
	"github.com/spf13/cobra"
)

var (
	genRequests   int
	genConsole    int
	genSessions   int
	genOutputFile string
	genSeed       int64
	genDictPath   string
	genMaxDepth   int
	genMaxNodes   int
	genDropResp   float64
	genDropBody   float64
	genOutOfOrder float64
	genBase64     float64
	genShowTotals bool
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a synthetic CDP event stream",
	Long: `Generate a reproducible JSON lines stream of CDP messages for testing the
capture pipeline: console entries, requests, responses and
Network.getResponseBody results, interleaved across sessions. Rates inject
the awkward cases a live browser produces: responses that never arrive,
bodies that cannot be fetched and responses delivered before their request.`,
	Example: `  logtracker generate -n 100 -o session.jsonl
  logtracker generate -n 50 --sessions 3 --drop-body 0.2 --seed 42
  logtracker generate -n 20 --out-of-order 0.1 | logtracker replay -`,
	Args: cobra.NoArgs,
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)

	d := cdpgen.DefaultGenerateOptions
	generateCmd.Flags().IntVarP(&genRequests, "requests", "n", d.RequestCount, "Requests per session")
	generateCmd.Flags().IntVar(&genConsole, "console", d.ConsoleCount, "Console messages per session")
	generateCmd.Flags().IntVar(&genSessions, "sessions", d.Sessions, "Number of interleaved sessions")
	generateCmd.Flags().StringVarP(&genOutputFile, "output", "o", "", "Output file (default: stdout)")
	generateCmd.Flags().Int64VarP(&genSeed, "seed", "s", 0, "Random seed for reproducibility (0 = use current time)")
	generateCmd.Flags().StringVarP(&genDictPath, "dict", "d", d.DictionaryPath, "Dictionary file path")
	generateCmd.Flags().IntVar(&genMaxDepth, "max-depth", d.MaxJSONDepth, "Maximum JSON body nesting depth")
	generateCmd.Flags().IntVar(&genMaxNodes, "max-nodes", d.MaxJSONNodes, "Maximum JSON nodes per level")
	generateCmd.Flags().Float64Var(&genDropResp, "drop-response", 0, "Share of requests without a response")
	generateCmd.Flags().Float64Var(&genDropBody, "drop-body", 0, "Share of responses whose body never arrives")
	generateCmd.Flags().Float64Var(&genOutOfOrder, "out-of-order", 0, "Share of responses sent before their request")
	generateCmd.Flags().Float64Var(&genBase64, "base64", 0, "Share of bodies sent base64 encoded")
	generateCmd.Flags().BoolVar(&genShowTotals, "show-totals", true, "Print per-session totals to stderr")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	for name, rate := range map[string]float64{
		"drop-response": genDropResp, "drop-body": genDropBody,
		"out-of-order": genOutOfOrder, "base64": genBase64,
	} {
		if rate < 0 || rate > 1 {
			return fmt.Errorf("--%s must be between 0 and 1, got %v", name, rate)
		}
	}

	opts := cdpgen.GenerateOptions{
		RequestCount:     genRequests,
		ConsoleCount:     genConsole,
		Sessions:         genSessions,
		Seed:             genSeed,
		DropResponseRate: genDropResp,
		DropBodyRate:     genDropBody,
		OutOfOrderRate:   genOutOfOrder,
		Base64Rate:       genBase64,
		DictionaryPath:   genDictPath,
		MaxJSONDepth:     genMaxDepth,
		MaxJSONNodes:     genMaxNodes,
	}

	start := time.Now()
	var (
		stream *cdpgen.Stream
		err    error
	)
	if genOutputFile != "" {
		stream, err = cdpgen.GenerateToFile(genOutputFile, opts)
	} else {
		stream, err = cdpgen.Generate(opts)
		if err == nil {
			_, err = stream.WriteTo(cmd.OutOrStdout())
		}
	}
	if err != nil {
		return fmt.Errorf("failed to generate stream: %w", err)
	}

	GetLogger().Debug("stream generated",
		"messages", len(stream.Messages),
		"sessions", len(stream.Sessions),
		"took", time.Since(start))

	if genShowTotals {
		for _, session := range stream.Sessions {
			t := stream.Totals[session]
			fmt.Fprintf(os.Stderr, "%s: %d requests, %d responses, %d bodies, %d console, %d exported\n",
				session, t.Requests, t.Responses, t.Bodies, t.Console, t.Exported)
		}
		if genOutputFile != "" {
			fmt.Fprintf(os.Stderr, "✓ wrote %d messages to %s\n", len(stream.Messages), genOutputFile)
		}
	}
	return nil
}
