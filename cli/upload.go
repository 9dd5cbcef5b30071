package cli

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/docker/go-units"
	"github.com/urfave/cli/v2"

	"github.com/domo-pitchfork/go-pitchfork/config"
	"github.com/domo-pitchfork/go-pitchfork/source"
	"github.com/domo-pitchfork/go-pitchfork/streams"
)

const defaultBatchRows = 500

func (a *App) uploadCommand() *cli.Command {
	return &cli.Command{
		Name:      "upload",
		Usage:     "Upload CSV inputs to a stream in a single execution",
		ArgsUsage: "LOCATION...",
		Flags: []cli.Flag{
			streamIDFlag,
			&cli.StringFlag{
				Name:  "buffer-size",
				Usage: "Size of the upload buffer, e.g. 256KB (overrides DOMO_STREAM_BUFFER_SIZE)",
			},
			&cli.IntFlag{
				Name:  "batch-rows",
				Usage: "Number of rows handed to the uploader at once",
				Value: defaultBatchRows,
			},
			&cli.BoolFlag{
				Name:  "header",
				Usage: "Skip the first row of every input",
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Number of concurrent uploaders (0 = based on CPU count)",
			},
		},
		Action: a.uploadAction,
	}
}

func (a *App) uploadAction(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.Exit("at least one input location is required", 1)
	}
	batchRows := c.Int("batch-rows")
	if batchRows <= 0 {
		return cli.Exit("--batch-rows must be positive", 1)
	}

	s, err := a.newSession(c)
	if err != nil {
		return err
	}

	bufferSize := s.config.BufferSize
	if c.IsSet("buffer-size") {
		if bufferSize, err = config.ParseByteSize(c.String("buffer-size")); err != nil {
			return fmt.Errorf("--buffer-size: %w", err)
		}
	}

	locations, err := source.Expand(c.Args().Slice())
	if err != nil {
		return err
	}

	client, err := streams.NewClient[[]string](s.api, streams.Config{
		StreamID:   c.Int64(streamIDFlag.Name),
		BufferSize: int(bufferSize),
		Logger:     a.logger,
	})
	if err != nil {
		return err
	}

	a.logger.Infof("Uploading %d input(s) to stream %d (buffer: %s)", len(locations), c.Int64(streamIDFlag.Name), bufferSize)
	start := time.Now()

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	batches := make(chan [][]string)
	readErr := make(chan error, 1)
	go func() {
		defer close(batches)
		err := a.readBatches(ctx, s.opener, locations, c.Bool("header"), batchRows, batches)
		if err != nil {
			cancel()
		}
		readErr <- err
	}()

	execution, runErr := streams.Run(ctx, client, batches, streams.RunOptions{Concurrency: c.Int("workers")})
	if err := <-readErr; err != nil {
		runErr = err
	}

	if _, active := client.ExecutionID(); active {
		a.logger.Warnf("Upload failed, aborting execution")
		if _, err := client.Abort(context.Background()); err != nil {
			a.logger.Errorf("Failed to abort execution: %s", err)
		}
		return runErr
	}
	if runErr != nil && execution.ID == 0 {
		return runErr
	}

	stats := client.Stats()
	a.logger.Donef("Execution %d committed in %s", execution.ID, time.Since(start).Round(time.Millisecond))
	a.logger.Printf("Parts: %d, uploaded: %s, average part upload: %s",
		stats.PartsUploaded(), units.BytesSize(float64(stats.BytesUploaded())), stats.Average().Round(time.Millisecond))
	a.logger.Debugf("Access token refreshes: %d", s.tokens.RefreshCount())

	if runErr != nil {
		return fmt.Errorf("some rows were not uploaded: %w", runErr)
	}
	return nil
}

// readBatches sends the CSV records of every location in batches of at most
// batchRows rows.
func (a *App) readBatches(ctx context.Context, opener *source.Opener, locations []string, header bool, batchRows int, batches chan<- [][]string) error {
	send := func(batch [][]string) error {
		select {
		case batches <- batch:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	for _, location := range locations {
		rows, err := a.readLocation(ctx, opener, location, header, batchRows, send)
		if err != nil {
			return fmt.Errorf("%s: %w", location, err)
		}
		a.logger.Debugf("Read %d row(s) from %s", rows, location)
	}
	return nil
}

func (a *App) readLocation(ctx context.Context, opener *source.Opener, location string, header bool, batchRows int, send func([][]string) error) (int, error) {
	r, err := opener.Open(ctx, location)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := r.Close(); err != nil {
			a.logger.Warnf("Failed to close %s: %s", location, err)
		}
	}()

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	var (
		rows  int
		batch = make([][]string, 0, batchRows)
	)
	for first := true; ; first = false {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return rows, fmt.Errorf("read csv: %w", err)
		}
		if first && header {
			continue
		}

		batch = append(batch, record)
		rows++
		if len(batch) == batchRows {
			if err := send(batch); err != nil {
				return rows, err
			}
			batch = make([][]string, 0, batchRows)
		}
	}

	if len(batch) > 0 {
		if err := send(batch); err != nil {
			return rows, err
		}
	}
	return rows, nil
}
