package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/polyfetch/internal/batch"
	"github.com/tanq16/polyfetch/internal/exec"
	"github.com/tanq16/polyfetch/internal/jobs"
	"github.com/tanq16/polyfetch/internal/output"
	"github.com/tanq16/polyfetch/internal/poly"
	"github.com/tanq16/polyfetch/internal/sink"
	"github.com/tanq16/polyfetch/internal/utils"
	"golang.org/x/sync/errgroup"
)

var ErrJobsFailed = errors.New("one or more jobs failed")

// DefaultFilesDir receives files jobs that name no output path.
const DefaultFilesDir = "downloads"

type Config struct {
	Workers          int
	HTTPClientConfig utils.HTTPClientConfig
	APIBaseURL       string
	APIKey           string
	FetchTimeout     time.Duration
	BatchTimeout     time.Duration
	S3Profile        string
	Output           io.Writer // defaults to stdout
}

// OpenSink is swapped in tests.
var OpenSink = sink.Open

// Run executes jobs with at most cfg.Workers running at once. Every job runs
// to completion; the returned error reports whether any of them failed.
func Run(ctx context.Context, jobList []jobs.Job, cfg Config) error {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	outputMgr := output.NewManager(cfg.Output)
	outputMgr.StartDisplay()
	defer outputMgr.StopDisplay()

	client := utils.NewPolyHTTPClient(cfg.HTTPClientConfig)
	polyClient := poly.NewClient(cfg.APIBaseURL, cfg.APIKey, client)
	r := &runner{cfg: cfg, client: client, poly: polyClient, out: outputMgr}

	var g errgroup.Group
	g.SetLimit(cfg.Workers)
	for _, job := range jobList {
		g.Go(func() error {
			return r.process(ctx, job)
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("%w: %d of %d", ErrJobsFailed, outputMgr.Failures(), len(jobList))
	}
	return nil
}

type runner struct {
	cfg    Config
	client utils.HTTPDoer
	poly   *poly.Client
	out    *output.Manager
}

func (r *runner) process(ctx context.Context, job jobs.Job) error {
	funcID := r.out.RegisterFunction(job.Label())
	logger := log.With().Str("op", "scheduler/process").Str("job", job.ID).Logger()

	r.out.SetStatus(funcID, "resolving")
	r.out.SetMessage(funcID, fmt.Sprintf("Resolving %s", job.Label()))
	files, outputPath, err := r.resolve(ctx, job)
	if err != nil {
		logger.Error().Err(err).Msg("resolve failed")
		r.out.ReportError(funcID, err)
		return err
	}

	r.out.SetStatus(funcID, "downloading")
	r.out.SetMessage(funcID, fmt.Sprintf("Downloading %d files for %s", len(files), job.Label()))
	coordinator, err := r.download(ctx, files)
	if err != nil {
		logger.Error().Err(err).Msg("download failed")
		r.out.ReportError(funcID, err)
		return err
	}

	r.out.SetStatus(funcID, "saving")
	dest, err := OpenSink(ctx, outputPath, r.cfg.S3Profile)
	if err != nil {
		r.out.ReportError(funcID, err)
		return err
	}
	var total uint64
	for i := 0; i < coordinator.EntryCount(); i++ {
		entry := coordinator.Entry(i)
		if err := dest.Write(ctx, entry.Name, entry.Contents); err != nil {
			err = fmt.Errorf("error saving %s: %w", entry.Name, err)
			logger.Error().Err(err).Msg("save failed")
			r.out.ReportError(funcID, err)
			return err
		}
		total += uint64(len(entry.Contents))
		r.out.AddStreamLine(funcID, fmt.Sprintf("%s %s", entry.Name, output.FormatBytes(uint64(len(entry.Contents)))))
	}
	if closer, ok := dest.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			logger.Warn().Err(err).Msg("sink cleanup failed")
		}
	}
	logger.Info().Msgf("Saved %d files to %s", coordinator.EntryCount(), dest.Location())
	r.out.Complete(funcID, fmt.Sprintf("Saved %d files (%s) to %s", coordinator.EntryCount(), output.FormatBytes(total), dest.Location()))
	return nil
}

// resolve turns a job into the files to fetch and the destination to use.
func (r *runner) resolve(ctx context.Context, job jobs.Job) ([]jobs.File, string, error) {
	switch job.Kind {
	case jobs.KindFiles:
		return job.Files, OutputPathOrDefault(job.OutputPath, DefaultFilesDir), nil
	case jobs.KindAsset:
		assetID, err := poly.ParseAssetID(job.Link)
		if err != nil {
			return nil, "", err
		}
		asset, err := r.poly.GetAsset(ctx, assetID)
		if err != nil {
			return nil, "", fmt.Errorf("error fetching asset %s: %w", assetID, err)
		}
		formatType := job.Format
		if formatType == "" {
			formatType = poly.DefaultFormat
		}
		format, err := asset.Format(formatType)
		if err != nil {
			return nil, "", err
		}
		var files []jobs.File
		for _, d := range r.poly.ResolveFiles(format) {
			files = append(files, jobs.File{Name: d.Name, Link: d.URL})
		}
		name := asset.DisplayName
		if name == "" {
			name = assetID
		}
		return files, OutputPathOrDefault(job.OutputPath, utils.SanitizeFileName(name)), nil
	default:
		return nil, "", fmt.Errorf("unknown job type: %s", job.Kind)
	}
}

// download runs one batch on its own loop and waits for it to finish.
func (r *runner) download(ctx context.Context, files []jobs.File) (*batch.Coordinator, error) {
	coordinator := batch.New(batch.Options{
		Client:       r.client,
		FetchTimeout: r.cfg.FetchTimeout,
		BatchTimeout: r.cfg.BatchTimeout,
	})
	for _, f := range files {
		if err := coordinator.Add(f.Name, f.Link); err != nil {
			return nil, err
		}
	}
	loop := exec.NewLoop()
	defer loop.Close()

	done := make(chan struct{})
	err := coordinator.Start(ctx, loop, batch.ListenerFunc(func(*batch.Coordinator) {
		close(done)
	}))
	if err != nil {
		return nil, err
	}
	<-done
	if coordinator.IsError() {
		return nil, coordinator.Err()
	}
	return coordinator, nil
}

// OutputPathOrDefault keeps explicit destinations and renews generated local
// ones that already exist.
func OutputPathOrDefault(explicit, fallback string) string {
	if explicit != "" {
		return explicit
	}
	if _, err := os.Stat(fallback); err == nil {
		return utils.RenewOutputPath(filepath.Clean(fallback))
	}
	return fallback
}
