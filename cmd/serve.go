package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pb33f/logtracker/server"
	"github.com/spf13/cobra"
)

var (
	serveAddr      string
	serveOutputDir string
	serveArchive   string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Accept live CDP events over HTTP",
	Long: `Start an HTTP intake for a debugger bridge. The bridge opens a session
with POST /sessions/{id}, forwards each protocol event to
POST /sessions/{id}/events, answers body fetches through
POST /sessions/{id}/bodies/{requestId}, and ends the session with
DELETE /sessions/{id}, which writes the reports and returns a summary.

On SIGINT or SIGTERM every live session is ended so no capture is lost.`,
	Args: cobra.NoArgs,
	Example: `  logtracker serve
  logtracker serve --addr 127.0.0.1:9300 -o reports/
  logtracker serve --archive captures.db -v`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveAddr, "addr", "a", "", "Listen address (overrides server.addr)")
	serveCmd.Flags().StringVarP(&serveOutputDir, "output", "o", "", "Report directory (overrides output.dir)")
	serveCmd.Flags().StringVar(&serveArchive, "archive", "", "SQLite archive path (overrides output.archive)")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := GetLogger()

	c := *cfg
	if serveAddr != "" {
		c.Server.Addr = serveAddr
	}
	if serveOutputDir != "" {
		c.Output.Dir = serveOutputDir
	}
	if serveArchive != "" {
		c.Output.Archive = serveArchive
	}

	mailbox := server.NewMailbox()
	p, err := newPipeline(&c, mailbox, logger)
	if err != nil {
		return err
	}
	defer p.Close()

	srv := server.New(c.Server.Addr, p.tracker, mailbox, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case sig := <-sigChan:
		logger.Info("shutting down", "signal", sig.String())
	}

	// live sessions drain concurrently, so one drain timeout covers them all
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second+c.Capture.DrainTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
