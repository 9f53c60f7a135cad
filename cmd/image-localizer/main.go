package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/image-localizer/internal/cli"
	"github.com/fpang/image-localizer/internal/config"
	"github.com/fpang/image-localizer/internal/logging"
)

// Set by -ldflags at build time.
var (
	commitHash = "dev"
	buildTime  = "unknown"
)

// CLI flags
var (
	directoryFlag   string
	configFlag      string
	providerFlag    string
	languageFlag    string
	instructionFlag string
	aspectFlag      string
	workersFlag     int
	retriesFlag     int
	timeoutFlag     int
	maxDepthFlag    int
	limitFlag       int
	driveFlag       string
	s3BucketFlag    string
	outputFlag      string
	noArchiveFlag   bool
)

// errNoSuccess makes the process exit non-zero when every job failed.
var errNoSuccess = errors.New("no image was localized")

var rootCmd = &cobra.Command{
	Use:   "image-localizer [files...]",
	Short: "Batch localization of marketing images",
	Long: `image-localizer rewrites the overlay text of every image in a directory into
a target language, optionally adapting the composition to a new aspect ratio.

Each image goes through three AI calls: overlay analysis, aspect analysis
(only when --aspect is set) and image generation. Images are processed
concurrently; one failing image never affects the others. Successful images
are collected into a ZIP archive and can be uploaded to Google Drive or S3.

Examples:
  image-localizer -d ./banners --language Japanese
  image-localizer --language Korean hero.png promo.jpg
  image-localizer -d ./banners --language German --aspect "4:5 - Instagram Feed"
  image-localizer -d ./banners --language French --workers 3 --drive-folder https://drive.google.com/drive/folders/<id>
  image-localizer check
  image-localizer config init`,
	SilenceUsage: true,
	RunE:         runMain,
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&configFlag, "config", "", "Path to config file (default ~/.config/image-localizer/config.toml)")
	f.StringVar(&providerFlag, "provider", "", "AI provider: openrouter or gemini")

	rf := rootCmd.Flags()
	rf.StringVarP(&directoryFlag, "directory", "d", "", "Directory containing images to localize")
	rf.StringVarP(&languageFlag, "language", "l", "", "Target language for overlay text")
	rf.StringVar(&instructionFlag, "instructions", "", "Extra instructions appended to the localization prompt")
	rf.StringVarP(&aspectFlag, "aspect", "a", "", `Target aspect ratio, e.g. "4:5" or "9:16 - Reels" (empty keeps the original)`)
	rf.IntVarP(&workersFlag, "workers", "w", 0, "Maximum concurrent jobs")
	rf.IntVar(&retriesFlag, "retries", 0, "Attempts per API call")
	rf.IntVar(&timeoutFlag, "timeout", 0, "Per-attempt timeout in seconds")
	rf.IntVar(&maxDepthFlag, "max-depth", 0, "Maximum recursion depth (0 = unlimited)")
	rf.IntVar(&limitFlag, "limit", 0, "Maximum images to process (0 = unlimited)")
	rf.StringVar(&driveFlag, "drive-folder", "", "Google Drive folder URL or ID to upload results to")
	rf.StringVar(&s3BucketFlag, "s3-bucket", "", "S3 bucket to upload results to")
	rf.StringVarP(&outputFlag, "output", "o", "", "Directory the ZIP archive is written to")
	rf.BoolVar(&noArchiveFlag, "no-archive", false, "Skip writing the ZIP archive")

	rootCmd.AddCommand(checkCmd, configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// flagEnv maps a command-line flag onto the environment variable the config
// layer reads, so flags override file and environment values alike.
type flagEnv struct {
	flag  string
	env   string
	value func() string
}

var flagEnvs = []flagEnv{
	{"provider", "LOCALIZER_PROVIDER", func() string { return providerFlag }},
	{"language", "LOCALIZER_LANGUAGE", func() string { return languageFlag }},
	{"instructions", "LOCALIZER_EXTRA_INSTRUCTIONS", func() string { return instructionFlag }},
	{"aspect", "LOCALIZER_ASPECT_RATIO", func() string { return aspectFlag }},
	{"workers", "LOCALIZER_MAX_WORKERS", func() string { return strconv.Itoa(workersFlag) }},
	{"retries", "LOCALIZER_MAX_RETRIES", func() string { return strconv.Itoa(retriesFlag) }},
	{"timeout", "LOCALIZER_REQUEST_TIMEOUT", func() string { return strconv.Itoa(timeoutFlag) }},
	{"drive-folder", "LOCALIZER_DRIVE_FOLDER", func() string { return driveFlag }},
	{"s3-bucket", "LOCALIZER_S3_BUCKET", func() string { return s3BucketFlag }},
	{"output", "LOCALIZER_OUTPUT_DIR", func() string { return outputFlag }},
}

func exportFlags(cmd *cobra.Command) error {
	for _, fe := range flagEnvs {
		f := cmd.Flags().Lookup(fe.flag)
		if f == nil || !f.Changed {
			continue
		}
		if err := os.Setenv(fe.env, fe.value()); err != nil {
			return fmt.Errorf("export --%s: %w", fe.flag, err)
		}
	}
	return nil
}

// loadConfig exports changed flags, then loads and validates the config.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if err := exportFlags(cmd); err != nil {
		return nil, err
	}
	cfg, path, exists, err := config.Load(configFlag)
	if err != nil {
		return nil, fmt.Errorf("configuration: %w", err)
	}
	if cfg.Logging.Level != "" {
		logging.SetLevel(cfg.Logging.Level)
	}
	log.Debug().Str("path", path).Bool("exists", exists).Msg("Configuration loaded")
	if noArchiveFlag {
		cfg.Archive.Enabled = false
	}
	return cfg, nil
}

func runMain(cmd *cobra.Command, args []string) error {
	initStart := time.Now()
	logging.Init()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	var dirPath string
	if len(args) == 0 {
		dirPath = directoryFlag
		if dirPath == "" {
			dirPath = cli.PromptForDirectory()
		}
		dirPath = cli.ValidateAndResolveDirectory(dirPath)
	}

	services, err := cli.NewServices(ctx, cfg)
	if err != nil {
		return err
	}

	p := &pipeline{
		cfg:       cfg,
		dir:       dirPath,
		files:     args,
		maxDepth:  maxDepthFlag,
		limit:     limitFlag,
		services:  services,
		stdout:    os.Stdout,
		stderr:    os.Stderr,
		initStart: initStart,
	}
	return p.run(ctx)
}
