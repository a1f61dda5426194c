package cmd

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/pb33f/logtracker/capture"
	"github.com/pb33f/logtracker/config"
	"github.com/pb33f/logtracker/motor"
	"github.com/pb33f/logtracker/recording"
	"github.com/pb33f/logtracker/report"
	"github.com/pb33f/logtracker/sink"
)

// pipeline is everything between decoded events and the sinks, shared by
// the replay and serve commands.
type pipeline struct {
	tracker *capture.Tracker
	archive *sink.Archive
}

func (p *pipeline) Close() error {
	if p.archive == nil {
		return nil
	}
	return p.archive.Close()
}

func newBuilder(c *config.Config, logger *slog.Logger) *report.Builder {
	opts := report.DefaultOptions()
	opts.Policy = report.Policy{
		StatusThreshold: c.Report.StatusThreshold,
		RequireBody:     c.Report.RequireBody,
	}
	opts.CreatorName = c.Report.CreatorName
	opts.CreatorVersion = c.Report.CreatorVersion
	opts.Logger = logger
	return report.NewBuilder(opts)
}

func newPipeline(c *config.Config, fetcher motor.BodyFetcher, logger *slog.Logger) (*pipeline, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	p := &pipeline{}
	var sinks []capture.Sink
	if c.Output.Dir != "" {
		sinks = append(sinks, sink.NewDir(c.Output.Dir, logger))
	}
	if c.Output.Archive != "" {
		archive, err := sink.OpenArchive(c.Output.Archive)
		if err != nil {
			return nil, fmt.Errorf("failed to open archive: %w", err)
		}
		p.archive = archive
		sinks = append(sinks, archive)
	}
	if len(sinks) == 0 {
		return nil, errors.New("no output configured: set an output directory or an archive")
	}

	engine := motor.NewEngine(motor.NewStore(), fetcher, logger)
	p.tracker = capture.NewTracker(engine, newBuilder(c, logger),
		recording.NewController(recording.NopRecorder{}, logger),
		capture.Options{
			DrainTimeout: c.Capture.DrainTimeout,
			Sinks:        sinks,
			Logger:       logger,
		})
	return p, nil
}
