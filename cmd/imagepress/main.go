package main

import (
	"context"
	"fmt"
	"image"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"imagepress/internal/compression"
	"imagepress/internal/config"
	"imagepress/internal/encoder"
	"imagepress/internal/logger"
	"imagepress/internal/processor"
	"imagepress/internal/similarity"
	"imagepress/internal/statistics"
	"imagepress/internal/web"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile          string
	outputDir        string
	targetMB         float64
	format           string
	quality          int
	minQuality       int
	mode             string
	chroma           int
	progressive      bool
	noOptimize       bool
	withSSIM         bool
	overwrite        bool
	skipExisting     bool
	preserveMetadata bool
	preset           string
	verbose          bool
	quiet            bool
	port             int
)

// rootCmd is the base command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "imagepress [files or directories]",
	Short: "Compress images to a quality level or size target",
	Long: `ImagePress compresses images with an adaptive quality search.

Features:
- JPEG, WebP, AVIF and PNG output
- Binary search to hit a file size target with a quality floor
- Quick mode with automatic format selection
- Crop, resize and padding before compression
- Optional SSIM scoring against the original
- Metadata preservation via exiftool
- Batch processing with skip and overwrite rules`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCompress(args)
	},
}

// formatsCmd lists the encoders usable on this platform.
var formatsCmd = &cobra.Command{
	Use:   "formats",
	Short: "List available output formats",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFormats()
	},
}

// compareCmd encodes one image in every format at the same quality.
var compareCmd = &cobra.Command{
	Use:   "compare <file>",
	Short: "Compare output formats at the same quality level",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCompare(args[0])
	},
}

// inspectCmd shows header and EXIF details of a source image.
var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Show image dimensions, format and capture time",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInspect(args[0])
	},
}

// serveCmd starts the web control surface.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start web interface server",
	Long: `Starts a web server exposing the compression pipeline over HTTP.
Batch progress is streamed to connected WebSocket clients.

Access the API at http://localhost:<port> (default: 8080)`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "suppress non-error output")

	rootCmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory (default from config)")
	rootCmd.Flags().Float64Var(&targetMB, "target-mb", 0, "target file size in MB (0 = encode at quality)")
	rootCmd.Flags().StringVarP(&format, "format", "f", "", "output format: JPEG, WEBP, AVIF, PNG or AUTO")
	rootCmd.Flags().IntVarP(&quality, "quality", "q", 0, "quality 1-100")
	rootCmd.Flags().IntVar(&minQuality, "min-quality", 0, "quality floor for size targeting")
	rootCmd.Flags().StringVarP(&mode, "mode", "m", "", "compression mode: quick or advanced")
	rootCmd.Flags().IntVar(&chroma, "chroma", 2, "chroma subsampling: 0=4:4:4, 1=4:2:2, 2=4:2:0")
	rootCmd.Flags().BoolVar(&progressive, "progressive", false, "progressive JPEG encoding")
	rootCmd.Flags().BoolVar(&noOptimize, "no-optimize", false, "skip the lossless JPEG optimization pass")
	rootCmd.Flags().BoolVar(&withSSIM, "ssim", false, "score outputs against the original")
	rootCmd.Flags().BoolVar(&overwrite, "overwrite", false, "overwrite existing output files")
	rootCmd.Flags().BoolVar(&skipExisting, "skip-existing", false, "skip files whose output already exists")
	rootCmd.Flags().BoolVar(&preserveMetadata, "preserve-metadata", false, "copy EXIF/XMP metadata onto outputs")
	rootCmd.Flags().StringVar(&preset, "preset", "", "load compression settings from a named preset")

	compareCmd.Flags().IntVarP(&quality, "quality", "q", 85, "quality level for the comparison")
	serveCmd.Flags().IntVar(&port, "port", 8080, "port to run web server on")

	rootCmd.AddCommand(formatsCmd)
	rootCmd.AddCommand(compareCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(serveCmd)
}

// initConfig loads configuration file and environment variables.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.imagepress")
		viper.AddConfigPath("/etc/imagepress")
	}

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// runCompress queues each input and processes the batch.
func runCompress(args []string) error {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := setupLogger(cfg)
	reg := encoder.NewRegistry()
	stats := statistics.NewStatistics()

	var cmp similarity.Comparator
	if withSSIM || cfg.Compression.CalculateSimilarity {
		cmp = similarity.NewSSIM()
	}

	var meta *processor.MetadataCopier
	if preserveMetadata || cfg.Metadata.Preserve {
		meta = processor.NewMetadataCopier()
		if !meta.Available() {
			log.Warn("exiftool not found, metadata will not be preserved")
		}
	}

	task, err := buildTaskTemplate(cfg)
	if err != nil {
		return err
	}

	files, err := collectInputs(cfg, args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no image files found in the given paths")
	}

	proc := processor.NewProcessor(reg, cmp, meta, log, stats)
	for _, path := range files {
		t := task
		t.Path = path
		if err := proc.Add(t); err != nil {
			return fmt.Errorf("invalid task for %s: %w", path, err)
		}
	}

	dir := outputDir
	if dir == "" {
		dir = cfg.OutputDirectory
	}

	var progress processor.ProgressFunc
	if cfg.Batch.ShowProgress && !quiet {
		progress = func(current, total int, message string) {
			fmt.Printf("[%d/%d] %s\n", current, total, message)
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	report, err := proc.ProcessBatch(ctx, dir, progress, overwrite || cfg.Batch.Overwrite, skipExisting || cfg.Batch.SkipExisting)
	stats.Finalize()
	if err != nil && err != context.Canceled {
		return fmt.Errorf("batch processing failed: %w", err)
	}

	if !quiet {
		fmt.Println("\n" + stats.GetSummary())
		if len(report.Failed) > 0 {
			fmt.Println("\n" + stats.GetErrorSummary())
		}
	}

	if len(report.Failed) > 0 {
		return fmt.Errorf("%d of %d tasks failed", len(report.Failed), proc.QueueSize())
	}
	return nil
}

// runFormats prints the encoder capability table.
func runFormats() error {
	reg := encoder.NewRegistry()

	fmt.Println("Available formats:")
	for _, name := range reg.AvailableFormats() {
		enc, err := reg.Get(name)
		if err != nil {
			continue
		}
		min, max := enc.QualityRange()
		fmt.Printf("  %-5s %-7s quality %d-%d  alpha=%v\n",
			enc.FormatName(), enc.Extension(), min, max, enc.SupportsAlpha())
	}
	return nil
}

// runCompare encodes the file in every suitable format at one quality.
func runCompare(path string) error {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	img, err := loadImage(path)
	if err != nil {
		return err
	}

	reg := encoder.NewRegistry()
	advisor := compression.NewAdvisor(reg, cfg.Compression.MinQuality)

	rows := advisor.Comparison(img, quality)
	if len(rows) == 0 {
		return fmt.Errorf("no format could encode %s", path)
	}

	fmt.Printf("Format comparison at quality %d:\n", quality)
	for _, row := range rows {
		fmt.Printf("  %-5s %8.2f MB  %s\n", row.Format, row.SizeMB, row.Description)
	}
	return nil
}

// runInspect prints header and EXIF details for a file.
func runInspect(path string) error {
	info, err := processor.Inspect(path)
	if err != nil {
		return err
	}

	fmt.Printf("File:       %s\n", info.Path)
	fmt.Printf("Format:     %s\n", info.Format)
	fmt.Printf("Dimensions: %dx%d\n", info.Width, info.Height)
	fmt.Printf("Size:       %.2f MB\n", float64(info.SizeBytes)/(1024*1024))
	fmt.Printf("Alpha:      %v\n", info.HasAlpha)
	if info.CapturedAt != nil {
		fmt.Printf("Captured:   %s\n", info.CapturedAt.Format("2006-01-02 15:04:05"))
	} else {
		fmt.Println("Captured:   unknown")
	}
	return nil
}

// runServe starts the web server and handles graceful shutdown.
func runServe() error {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "CONFIG LOAD ERROR: %v\n", err)
		cfg = config.DefaultConfig()
	}

	log := setupLogger(cfg)
	reg := encoder.NewRegistry()

	var cmp similarity.Comparator
	if cfg.Compression.CalculateSimilarity {
		cmp = similarity.NewSSIM()
	}
	var meta *processor.MetadataCopier
	if cfg.Metadata.Preserve {
		meta = processor.NewMetadataCopier()
	}

	server := web.NewServer(cfg, log, reg, cmp, meta)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := server.Start(port); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	fmt.Printf("ImagePress web interface started on http://localhost:%d\n", port)
	fmt.Println("Press Ctrl+C to stop the server")

	<-sigChan
	fmt.Println("\nShutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	fmt.Println("Server stopped gracefully")
	return nil
}

// buildTaskTemplate merges config defaults, an optional preset and CLI
// flags, in that order of precedence.
func buildTaskTemplate(cfg *config.Config) (processor.Task, error) {
	sc := cfg.StrategyConfig()

	if preset != "" {
		loaded, err := cfg.LoadPreset(preset)
		if err != nil {
			return processor.Task{}, fmt.Errorf("failed to load preset %q: %w", preset, err)
		}
		sc = loaded
	}

	task := processor.Task{
		Mode:                cfg.Compression.Mode,
		Format:              sc.Format,
		Quality:             sc.Quality,
		MinQuality:          sc.MinQuality,
		TargetSizeMB:        sc.TargetMB,
		Chroma:              sc.Chroma,
		Progressive:         sc.Progressive,
		Optimize:            sc.Optimize,
		CalculateSimilarity: sc.CalculateSSIM,
		PreserveMetadata:    preserveMetadata || cfg.Metadata.Preserve,
	}

	if mode != "" {
		task.Mode = mode
	}
	if format != "" {
		task.Format = format
	}
	if quality != 0 {
		task.Quality = quality
	}
	if minQuality != 0 {
		task.MinQuality = minQuality
	}
	if targetMB != 0 {
		task.TargetSizeMB = targetMB
	}
	task.Chroma = chroma
	if progressive {
		task.Progressive = true
	}
	if noOptimize {
		task.Optimize = false
	}
	if withSSIM {
		task.CalculateSimilarity = true
	}

	return task, nil
}

// collectInputs expands files and directories into a flat list of
// image paths.
func collectInputs(cfg *config.Config, args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("input not found: %s", arg)
		}

		if !info.IsDir() {
			files = append(files, arg)
			continue
		}

		err = filepath.Walk(arg, func(path string, fi os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if fi.IsDir() {
				return nil
			}
			if cfg.IsImageExtension(strings.ToLower(filepath.Ext(path))) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", arg, err)
		}
	}
	return files, nil
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()
	return ctx, cancel
}

// setupLogger configures and returns a logger.
func setupLogger(cfg *config.Config) *logrus.Logger {
	loggerCfg := logger.LoggerConfig{
		Level:      cfg.Logging.Level,
		FilePath:   cfg.Logging.FilePath,
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAge,
		Compress:   cfg.Logging.Compress,
		Console:    !quiet,
	}

	if verbose {
		loggerCfg.Level = "debug"
	}
	if quiet {
		loggerCfg.Level = "error"
	}

	log, err := logger.NewLogger(loggerCfg)
	if err != nil {
		log = logrus.New()
		log.SetLevel(logrus.InfoLevel)
	}

	return log
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return img, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
