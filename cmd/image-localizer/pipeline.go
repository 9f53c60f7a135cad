package main

import (
	"context"
	"fmt"
	"io"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"

	"github.com/fpang/image-localizer/internal/archive"
	"github.com/fpang/image-localizer/internal/batch"
	"github.com/fpang/image-localizer/internal/cli"
	"github.com/fpang/image-localizer/internal/config"
	"github.com/fpang/image-localizer/internal/delivery"
	"github.com/fpang/image-localizer/internal/filehandler"
	"github.com/fpang/image-localizer/internal/localize"
	"github.com/fpang/image-localizer/internal/logging"
)

// pipeline is one CLI invocation: scan, submit, report, archive, deliver.
type pipeline struct {
	cfg *config.Config
	dir string
	// files, when set, replaces the directory scan.
	files    []string
	maxDepth int
	limit    int
	services cli.Services
	// uploaders overrides the config-derived destinations in tests.
	uploaders []delivery.Uploader
	stdout    io.Writer
	stderr    io.Writer
	initStart time.Time
}

func (p *pipeline) run(ctx context.Context) error {
	paths := p.files
	if len(paths) == 0 {
		var err error
		paths, err = filehandler.ScanDirectory(p.dir, filehandler.ScanOptions{MaxDepth: p.maxDepth, Limit: p.limit})
		if err != nil {
			return err
		}
	}
	if len(paths) == 0 {
		log.Warn().Str("path", p.dir).Msg("No supported images found")
		return nil
	}
	inputs, err := filehandler.LoadImageInputs(paths)
	if err != nil {
		return err
	}
	if dim := p.cfg.Run.MaxInputDimension; dim > 0 {
		downscaleInputs(inputs, dim)
	}

	uploaders := p.uploaders
	if uploaders == nil {
		if uploaders, err = p.buildUploaders(ctx); err != nil {
			return err
		}
	}
	// Destinations are checked before any API budget is spent.
	for _, u := range uploaders {
		if err := u.Verify(ctx); err != nil {
			return fmt.Errorf("%s: %w", u.Destination(), err)
		}
	}

	p.logStartup(uploaders, len(inputs))

	params := p.cfg.RunParameters()
	exec := localize.NewExecutor(p.services.Analysis, p.services.Generation)
	progress := cli.NewProgress(p.stderr, len(inputs))
	result, err := batch.Submit(ctx, inputs, params, exec, batch.WithOnOutcome(progress.Update))
	progress.Finish()
	if err != nil {
		return err
	}

	fmt.Fprintln(p.stdout, cli.RenderResults(result))
	fmt.Fprintln(p.stdout, cli.Summary(result))

	successes := result.Succeeded()
	if len(successes) == 0 {
		return errNoSuccess
	}

	var arc *archive.Archive
	if p.cfg.Archive.Enabled {
		built, err := p.writeArchive(successes)
		if err != nil {
			return err
		}
		arc = &built
	}

	for _, u := range uploaders {
		if err := p.deliver(ctx, u, successes, arc); err != nil {
			return err
		}
	}
	return nil
}

func (p *pipeline) writeArchive(successes []batch.JobOutcome) (archive.Archive, error) {
	compression, err := archive.ParseCompression(p.cfg.Archive.Compression)
	if err != nil {
		return archive.Archive{}, err
	}
	b := archive.NewBuilder()
	if p.cfg.Archive.Name != "" {
		b.Name = p.cfg.Archive.Name
	}
	b.Prefix = p.cfg.Archive.Prefix
	b.Compression = compression

	arc, itemErrs, err := b.Build(successes)
	if err != nil {
		return archive.Archive{}, fmt.Errorf("build archive: %w", err)
	}
	for _, ie := range itemErrs {
		fmt.Fprintf(p.stderr, "skipped in archive: %v\n", &ie)
	}
	if arc.Len() == 0 {
		log.Warn().Msg("Archive has no entries; not written")
		return arc, nil
	}

	dir := p.cfg.Archive.OutputDir
	if dir == "" {
		dir = "."
	}
	path, err := arc.WriteFile(dir)
	if err != nil {
		return archive.Archive{}, err
	}
	fmt.Fprintf(p.stdout, "Archive: %s (%d images)\n", path, arc.Len())
	return arc, nil
}

func (p *pipeline) deliver(ctx context.Context, u delivery.Uploader, successes []batch.JobOutcome, arc *archive.Archive) error {
	report, err := delivery.UploadAll(ctx, u, p.cfg.Archive.Prefix, successes)
	if err != nil {
		return err
	}
	for _, ie := range report.Errors {
		fmt.Fprintf(p.stderr, "upload failed: %v\n", &ie)
	}
	fmt.Fprintf(p.stdout, "Uploaded %d/%d images to %s\n", len(report.Uploaded), len(successes), report.Destination)

	if arc != nil && arc.Len() > 0 {
		location, err := u.Upload(ctx, arc.Name, "application/zip", arc.Data)
		if err != nil {
			log.Error().Err(err).Str("destination", u.Destination()).Msg("Archive upload failed")
			return nil
		}
		fmt.Fprintf(p.stdout, "Archive uploaded: %s\n", location)
	}
	return nil
}

func (p *pipeline) buildUploaders(ctx context.Context) ([]delivery.Uploader, error) {
	var uploaders []delivery.Uploader
	if p.cfg.DriveEnabled() {
		d, err := delivery.NewDriveUploader(ctx, p.cfg.Drive.CredentialsFile, p.cfg.Drive.FolderURL)
		if err != nil {
			return nil, err
		}
		uploaders = append(uploaders, d)
	}
	if p.cfg.S3Enabled() {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
		uploaders = append(uploaders, delivery.NewS3Uploader(s3.NewFromConfig(awsCfg), p.cfg.S3.Bucket, p.cfg.S3.Prefix))
	}
	return uploaders, nil
}

// downscaleInputs shrinks oversize inputs in place. A failure keeps the
// original bytes; the job itself decides whether the payload is usable.
func downscaleInputs(inputs []batch.ImageInput, maxDimension int) {
	for i := range inputs {
		out, resized, err := filehandler.Downscale(inputs[i].Data, inputs[i].MIMEType, maxDimension)
		if err != nil {
			log.Warn().Err(err).Str("file", inputs[i].Name).Msg("Downscale failed, sending original")
			continue
		}
		if resized {
			log.Debug().Str("file", inputs[i].Name).Int("from_bytes", len(inputs[i].Data)).Int("to_bytes", len(out)).Msg("Input downscaled")
			inputs[i].Data = out
		}
	}
}

func (p *pipeline) logStartup(uploaders []delivery.Uploader, images int) {
	sl := logging.NewStartupLogger("image-localizer").
		CommitHash(commitHash).
		BuildTime(buildTime).
		Feature("archive", p.cfg.Archive.Enabled).
		Feature("drive", p.cfg.DriveEnabled()).
		Feature("s3", p.cfg.S3Enabled()).
		Config("provider", p.cfg.Provider).
		Config("language", p.cfg.Run.Language).
		Config("aspectRatio", p.cfg.Run.AspectRatio).
		Config("maxWorkers", fmt.Sprint(p.cfg.Run.MaxWorkers)).
		Config("maxRetries", fmt.Sprint(p.cfg.Run.MaxRetries)).
		Config("requestTimeout", p.cfg.RequestTimeout().String()).
		Config("maxConns", fmt.Sprint(p.cfg.MaxConns())).
		Config("images", fmt.Sprint(images))
	for i, u := range uploaders {
		sl.Destination(fmt.Sprintf("upload%d", i+1), u.Destination())
	}
	if !p.initStart.IsZero() {
		sl.InitDuration(time.Since(p.initStart))
	}
	sl.Log()
}
