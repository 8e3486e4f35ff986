package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"

	"wallpaper-scraper/pkg/config"
	"wallpaper-scraper/pkg/download"
	"wallpaper-scraper/pkg/fetch"
	"wallpaper-scraper/pkg/models"
	"wallpaper-scraper/pkg/orchestrate"
	"wallpaper-scraper/pkg/pipeline"
	"wallpaper-scraper/pkg/render"
	"wallpaper-scraper/pkg/report"
	"wallpaper-scraper/pkg/resolve"
	"wallpaper-scraper/pkg/watch"
)

const version = "1.0.0"

// Exit codes
const (
	exitOK          = 0
	exitError       = 1
	exitInterrupted = 130
)

func main() {
	args := os.Args[1:]
	if len(args) == 0 || strings.HasPrefix(args[0], "-") || strings.Contains(args[0], "://") {
		os.Exit(runDownload(args))
	}

	switch args[0] {
	case "download":
		os.Exit(runDownload(args[1:]))
	case "watch":
		os.Exit(runWatch(args[1:]))
	case "validate":
		os.Exit(runValidate(args[1:]))
	case "version":
		fmt.Printf("wallpaper-scraper %s\n", version)
	case "-h", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", args[0])
		printUsageTo(os.Stderr)
		os.Exit(exitError)
	}
}

func printUsage() {
	printUsageTo(os.Stdout)
}

// printUsageTo writes usage information to the provided writer.
func printUsageTo(w io.Writer) {
	fmt.Fprintln(w, `wallpaper-scraper - WallpaperCave downloader

Usage:
  wallpaper-scraper [download] [options] [URL]
  wallpaper-scraper <command> [options]

Commands:
  download    Download a category, album or single wallpaper (default)
  watch       Re-run a download on a schedule, fetching only new wallpapers
  validate    Validate configuration file
  version     Show version info

Run 'wallpaper-scraper <command> -h' for command-specific help.`)
}

// runOptions holds the flags shared by download and watch
type runOptions struct {
	configFile  string
	url         string
	outDir      string
	concurrency int
	logLevel    string
	reportFile  string
	noColor     bool
	noProgress  bool
}

func (o *runOptions) register(fs *flag.FlagSet) {
	fs.StringVar(&o.configFile, "config", "config.yaml", "Path to config file (optional)")
	fs.StringVar(&o.url, "url", "", "WallpaperCave URL (category, album or /w/wp... page)")
	fs.StringVar(&o.outDir, "out", "", "Destination directory (default from config or "+config.DefaultOutputDir+")")
	fs.IntVar(&o.concurrency, "concurrency", 0, fmt.Sprintf("Downloads in flight per album (default %d)", config.DefaultConcurrency))
	fs.StringVar(&o.logLevel, "loglevel", "warn", "Log level (debug, info, warn, error)")
	fs.StringVar(&o.reportFile, "report", "", "Write a YAML run report to this path")
	fs.BoolVar(&o.noColor, "no-color", false, "Disable colored output")
	fs.BoolVar(&o.noProgress, "no-progress", false, "Disable progress bars")
}

// runDownload handles the download subcommand
func runDownload(args []string) int {
	fs := flag.NewFlagSet("download", flag.ExitOnError)
	var opts runOptions
	opts.register(fs)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: wallpaper-scraper download [options] [URL]\n\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  wallpaper-scraper https://wallpapercave.com/categories/anime-manga\n")
		fmt.Fprintf(os.Stderr, "  wallpaper-scraper download -out ./walls https://wallpapercave.com/naruto-wallpapers\n")
		fmt.Fprintf(os.Stderr, "  wallpaper-scraper download -url https://wallpapercave.com/w/wp2544005\n")
	}
	if err := fs.Parse(args); err != nil {
		return exitError
	}
	if opts.url == "" && fs.NArg() > 0 {
		opts.url = fs.Arg(0)
	}

	color.NoColor = color.NoColor || opts.noColor
	printer := report.NewPrinter(nil)
	code := executeDownload(&opts, printer, os.Stdin)
	printer.Finished()
	return code
}

func executeDownload(opts *runOptions, printer *report.Printer, stdin io.Reader) int {
	log := setupLogger(opts.logLevel)
	appCfg, err := loadAndValidateConfig(opts, log)
	if err != nil {
		printer.CriticalError(err)
		return exitError
	}

	target, isDefault := chooseTarget(opts.url, appCfg.DefaultURL, stdin, printer.Writer(), isInteractive())
	printer.Target(target, isDefault)

	ctx, stop := signalContext(log, printer)
	defer stop()

	a, err := newApp(ctx, appCfg, opts, printer, log)
	if err != nil {
		printer.CriticalError(err)
		return exitError
	}

	_, err = a.runOnce(ctx, target)
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, context.Canceled):
		printer.Interrupted()
		return exitInterrupted
	default:
		printer.CriticalError(err)
		return exitError
	}
}

// runWatch handles the watch subcommand
func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	var opts runOptions
	opts.register(fs)
	interval := fs.String("interval", "24h", "Re-run interval (e.g., 30m, 1h, 24h, 7d)")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: wallpaper-scraper watch [options] [URL]\n\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  wallpaper-scraper watch -interval 12h https://wallpapercave.com/categories/anime-manga\n")
	}
	if err := fs.Parse(args); err != nil {
		return exitError
	}
	if opts.url == "" && fs.NArg() > 0 {
		opts.url = fs.Arg(0)
	}
	// Progress bars would interleave with the scheduler's log lines.
	opts.noProgress = true

	color.NoColor = color.NoColor || opts.noColor
	printer := report.NewPrinter(nil)
	code := executeWatch(&opts, *interval, printer)
	printer.Finished()
	return code
}

func executeWatch(opts *runOptions, intervalStr string, printer *report.Printer) int {
	if opts.logLevel == "warn" {
		opts.logLevel = "info"
	}
	log := setupLogger(opts.logLevel)

	interval, err := watch.ParseInterval(intervalStr)
	if err != nil {
		printer.CriticalError(err)
		return exitError
	}
	appCfg, err := loadAndValidateConfig(opts, log)
	if err != nil {
		printer.CriticalError(err)
		return exitError
	}

	target := orchestrate.NormalizeURL(opts.url)
	if target == "" {
		target = appCfg.DefaultURL
	}
	if orchestrate.Classify(target) == models.TargetGeneric {
		printer.Guidance(target)
		return exitError
	}
	printer.Target(target, opts.url == "")

	ctx, stop := signalContext(log, printer)
	defer stop()

	a, err := newApp(ctx, appCfg, opts, printer, log)
	if err != nil {
		printer.CriticalError(err)
		return exitError
	}

	scheduler := watch.NewScheduler(func(ctx context.Context, runNumber int) (models.RunReport, error) {
		return a.runOnce(ctx, target)
	}, interval, log.WithField("component", "watch"))

	if err := scheduler.Run(ctx); err != nil {
		printer.CriticalError(err)
		return exitError
	}
	status := scheduler.GetStatus()
	log.WithFields(logrus.Fields{
		"runs":       status.Runs,
		"downloaded": status.Cumulative.Downloaded,
		"skipped":    status.Cumulative.Skipped,
		"failed":     status.Cumulative.Failed,
	}).Info("Watch mode stopped")
	if ctx.Err() != nil {
		printer.Interrupted()
		return exitInterrupted
	}
	return exitOK
}

// runValidate handles the validate subcommand
func runValidate(args []string) int {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: wallpaper-scraper validate [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return exitError
	}
	return doValidate(*configFile, os.Stdout, os.Stderr)
}

// doValidate performs validation and writes output to provided writers.
// Returns exit code (0 = success, 1 = error).
func doValidate(configPath string, stdout, stderr io.Writer) int {
	appCfg, found, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
	if !found {
		fmt.Fprintf(stderr, "Error: config file '%s' not found\n", configPath)
		return exitError
	}

	warnings, err := appCfg.Validate()
	for _, w := range warnings {
		fmt.Fprintf(stdout, "WARN: %s\n", w)
	}
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return exitError
	}

	fmt.Fprintf(stdout, "OK: output_dir=%s concurrency=%d max_requests_per_host=%d host_limits=%d\n",
		appCfg.OutputDir, appCfg.Concurrency, appCfg.MaxRequestsPerHost, len(appCfg.HostLimits))
	fmt.Fprintln(stdout, "\nConfiguration valid.")
	return exitOK
}

// setupLogger creates a configured logrus.Logger with the given log level.
// Logs go to stderr so they never mix with the summary on stdout.
func setupLogger(logLevelStr string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"})
	log.SetLevel(logrus.WarnLevel)

	level, err := logrus.ParseLevel(logLevelStr)
	if err != nil {
		log.Warnf("Invalid log level '%s', using default 'warn'. Error: %v", logLevelStr, err)
	} else {
		log.SetLevel(level)
		log.Debugf("Setting log level to: %s", level.String())
	}
	return log
}

// loadAndValidateConfig loads the optional config file, applies CLI
// overrides, validates, and logs warnings.
func loadAndValidateConfig(opts *runOptions, log *logrus.Logger) (*config.AppConfig, error) {
	appCfg, found, err := config.Load(opts.configFile)
	if err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	if found {
		log.Infof("Loaded configuration from %s", opts.configFile)
	} else {
		log.Debugf("No config file at %s, using defaults", opts.configFile)
	}

	if opts.outDir != "" {
		appCfg.OutputDir = opts.outDir
	}
	if opts.concurrency != 0 {
		appCfg.Concurrency = opts.concurrency
	}
	if opts.reportFile != "" {
		appCfg.ReportFile = opts.reportFile
	}

	warnings, err := appCfg.Validate()
	for _, w := range warnings {
		log.Warn(w)
	}
	if err != nil {
		return nil, err
	}
	logAppConfig(appCfg, log)
	return appCfg, nil
}

// logAppConfig logs the effective configuration
func logAppConfig(appCfg *config.AppConfig, log *logrus.Logger) {
	log.Infof("Config: OutputDir:%s, Concurrency:%d, MaxReqPerHost:%d, HostLimits:%v, Delay:%v, Robots:%t",
		appCfg.OutputDir, appCfg.Concurrency, appCfg.MaxRequestsPerHost, appCfg.HostLimits,
		appCfg.DefaultDelayPerHost, appCfg.RespectRobots)
	log.Infof("Config Render: Headless:%t, Navigation:%v, Idle:%v, ScrollSettle:%v, MaxScrolls:%d",
		appCfg.Render.IsHeadless(), appCfg.Render.NavigationTimeout, appCfg.Render.IdleTimeout,
		appCfg.Render.ScrollSettle, appCfg.Render.MaxScrollIterations)
	log.Infof("Config HTTP Client: Timeout:%v, MaxIdle:%d, MaxIdlePerHost:%d, MaxRedirects:%d, Challenge:%t",
		appCfg.HTTPClientSettings.Timeout, appCfg.HTTPClientSettings.MaxIdleConns,
		appCfg.HTTPClientSettings.MaxIdleConnsPerHost, appCfg.HTTPClientSettings.MaxRedirects,
		appCfg.Challenge.IsEnabled())
}

// chooseTarget picks the URL to process: the explicit value, else a prompt
// answer when interactive, else defaultURL. It reports whether the default was used.
func chooseTarget(explicit, defaultURL string, stdin io.Reader, out io.Writer, interactive bool) (string, bool) {
	if u := orchestrate.NormalizeURL(explicit); u != "" {
		return u, false
	}
	if interactive {
		fmt.Fprintln(out, strings.Repeat("-", 50))
		fmt.Fprint(out, "Enter a WallpaperCave URL (or press Enter for default):\n> ")
		line, _ := bufio.NewReader(stdin).ReadString('\n')
		if u := orchestrate.NormalizeURL(line); u != "" {
			return u, false
		}
	}
	return orchestrate.NormalizeURL(defaultURL), true
}

func isInteractive() bool {
	fd := os.Stdin.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// forcedShutdownGrace bounds how long a cancelled run may take to unwind.
const forcedShutdownGrace = 30 * time.Second

// osExit is replaced in tests.
var osExit = os.Exit

// signalContext returns a context cancelled on SIGINT/SIGTERM. A second
// signal, or a stalled shutdown, forces exit.
func signalContext(log *logrus.Logger, printer *report.Printer) (context.Context, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	done := make(chan struct{})
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("PANIC in signal handler: %v", r)
			}
		}()
		select {
		case sig := <-sigChan:
			log.Warnf("Received signal: %v. Initiating graceful shutdown...", sig)
			cancel()
		case <-done:
			return
		}
		awaitForcedExit(sigChan, done, forcedShutdownGrace, printer, log)
	}()

	var once sync.Once
	return ctx, func() {
		once.Do(func() {
			signal.Stop(sigChan)
			close(done)
			cancel()
		})
	}
}

// awaitForcedExit ends the process when a second signal arrives or the
// shutdown outlasts grace. The closing lines are printed before exiting.
// It returns without exiting once done is closed.
func awaitForcedExit(sigChan <-chan os.Signal, done <-chan struct{}, grace time.Duration, printer *report.Printer, log *logrus.Logger) {
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case sig := <-sigChan:
		log.Warnf("Received second signal: %v. Forcing exit.", sig)
	case <-timer.C:
		log.Warn("Graceful shutdown period exceeded after signal. Forcing exit.")
	case <-done:
		return
	}
	printer.Interrupted()
	printer.Finished()
	osExit(exitInterrupted)
}

// app holds the components shared by every run of one process
type app struct {
	cfg         *config.AppConfig
	renderer    *render.Renderer
	coordinator *pipeline.Coordinator
	printer     *report.Printer
	log         *logrus.Logger
}

// newApp wires the fetch, render, resolve, download and pipeline components.
func newApp(ctx context.Context, appCfg *config.AppConfig, opts *runOptions, printer *report.Printer, log *logrus.Logger) (*app, error) {
	log.Info("Initializing components...")
	component := func(name string) *logrus.Entry { return log.WithField("component", name) }

	if err := os.MkdirAll(appCfg.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("create output directory '%s': %w", appCfg.OutputDir, err)
	}

	// --- HTTP Fetching Components ---
	jar, err := fetch.NewCookieJar()
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	httpClient := fetch.NewClient(appCfg.HTTPClientSettings, appCfg.UserAgent, jar, component("http"))
	fetcher := fetch.NewFetcher(httpClient, appCfg, component("fetch"))
	if appCfg.DefaultDelayPerHost > 0 {
		fetcher.SetPacer(fetch.NewRequestPacer(appCfg.DefaultDelayPerHost, component("pacer")))
	}

	// --- Browser Components ---
	browser := render.NewChromeBrowser(appCfg.Render, appCfg.UserAgent, component("browser"))
	if appCfg.Challenge.IsEnabled() {
		solver, err := render.NewChallengeSolver(browser, appCfg.Challenge, component("challenge"))
		if err != nil {
			return nil, err
		}
		fetcher.SetChallengeSolver(solver)
	}
	renderer := render.NewRenderer(browser, appCfg.Render, component("render"))

	// --- Pipeline ---
	resolver := resolve.NewResolver(fetcher, appCfg.Resolve, component("resolve"))
	if appCfg.RespectRobots {
		resolver.SetRobotsChecker(fetch.NewRobotsHandler(fetcher, appCfg.UserAgent, component("robots")))
	}
	executor := download.NewExecutor(fetcher, appCfg, component("download"))

	coordinator := pipeline.NewCoordinator(resolver, executor, appCfg.Concurrency, component("pipeline"))
	if appCfg.HostCapsEnabled() {
		hosts := fetch.NewHostSemaphorePool(appCfg.MaxRequestsPerHost, appCfg.HostLimits, component("hostsem"))
		go hosts.RunEviction(ctx, time.Minute)
		coordinator.SetHostLimiter(hosts)
	}
	coordinator.SetProgress(report.ProgressFactory(printer.Writer(), !opts.noProgress))

	return &app{
		cfg:         appCfg,
		renderer:    renderer,
		coordinator: coordinator,
		printer:     printer,
		log:         log,
	}, nil
}

// runOnce performs one complete run against target and prints its summary.
func (a *app) runOnce(ctx context.Context, target string) (models.RunReport, error) {
	runID := uuid.NewString()
	runLog := a.log.WithFields(logrus.Fields{"component": "orchestrate", "run_id": runID})

	orch := orchestrate.NewOrchestrator(a.renderer, a.coordinator, orchestrate.Options{
		OutputDir: a.cfg.OutputDir,
		RunID:     runID,
		Observer:  a.printer,
	}, runLog)

	runReport, err := orch.Run(ctx, target)
	a.printer.Summary(runReport, a.cfg.ManualPerImage)

	if a.cfg.ReportFile != "" {
		if writeErr := report.WriteYAML(a.cfg.ReportFile, runReport); writeErr != nil {
			runLog.Errorf("Failed to write run report: %v", writeErr)
		} else {
			runLog.Infof("Run report saved to %s", a.cfg.ReportFile)
		}
	}
	return runReport, err
}
