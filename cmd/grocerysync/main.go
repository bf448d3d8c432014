package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"grocerysync/config"
	"grocerysync/internal/jobs"
	"grocerysync/metrics"
	"grocerysync/pkg/logger"
)

const (
	exitOK    = 0
	exitFatal = 1
	exitUsage = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stderr)
	stop()
	os.Exit(code)
}

// commonFlags are accepted by every job and override the config file and environment.
type commonFlags struct {
	configPath     string
	applicationID  string
	javaScriptKey  string
	masterKey      string
	parseServerURL string
	backend        string
	metricsAddr    string
	chunkSize      int
}

func (c *commonFlags) bind(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", os.Getenv("GROCERYSYNC_CONFIG"), "YAML config file")
	fs.StringVar(&c.applicationID, "applicationId", "", "Parse application id")
	fs.StringVar(&c.javaScriptKey, "javaScriptKey", "", "Parse javascript key")
	fs.StringVar(&c.masterKey, "masterKey", "", "Parse master key; setting it sends the key on every request")
	fs.StringVar(&c.parseServerURL, "parseServerUrl", "", "Parse server URL")
	fs.StringVar(&c.backend, "backend", "", "backend driver: parse, postgres or memory")
	fs.StringVar(&c.metricsAddr, "metricsAddr", "", "serve /metrics on this address while the job runs")
	fs.IntVar(&c.chunkSize, "chunkSize", 0, "rows processed concurrently per chunk")
}

func (c *commonFlags) apply(cfg *config.AppConfig) {
	p := &cfg.Backend.Parse
	if c.applicationID != "" {
		p.ApplicationID = c.applicationID
	}
	if c.javaScriptKey != "" {
		p.JavaScriptKey = c.javaScriptKey
	}
	if c.masterKey != "" {
		p.MasterKey = c.masterKey
		p.UseMasterKey = true
	}
	if c.parseServerURL != "" {
		p.ServerURL = c.parseServerURL
	}
	if c.backend != "" {
		cfg.Backend.Driver = c.backend
	}
	if c.metricsAddr != "" {
		cfg.Metrics.Addr = c.metricsAddr
	}
	if c.chunkSize != 0 {
		cfg.Sync.ChunkSize = c.chunkSize
	}
}

func run(ctx context.Context, args []string, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		usage(stderr)
		return exitUsage
	}
	job, ok := jobs.All()[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "unknown job %q\n\n", args[0])
		usage(stderr)
		return exitUsage
	}

	fs := flag.NewFlagSet(job.Name(), flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "usage: grocerysync %s [flags]\n\n%s\n\nflags:\n", job.Name(), job.Description())
		fs.PrintDefaults()
	}
	var common commonFlags
	common.bind(fs)
	job.Bind(fs)
	if err := fs.Parse(args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	cfg, err := config.LoadConfig(common.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return exitFatal
	}
	common.apply(cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return exitUsage
	}

	baseLog, err := logger.NewLogger(cfg.Logging.Mode, cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(stderr, "logger: %v\n", err)
		return exitFatal
	}
	defer baseLog.Sync()
	log := baseLog.With("job", job.Name())

	env, closeEnv, err := wire(ctx, cfg, log)
	if err != nil {
		log.Error("startup failed", "error", err)
		return exitFatal
	}
	defer closeEnv()

	metricsCtx, stopMetrics := context.WithCancel(ctx)
	defer stopMetrics()
	metrics.Serve(metricsCtx, cfg.Metrics.Addr, log)

	started := time.Now()
	log.Info("job started", "backend", cfg.Backend.Driver, "chunkSize", cfg.Sync.ChunkSize)
	summary, err := job.Run(ctx, env)
	if err != nil {
		log.Error("job failed", "error", err, "elapsed", time.Since(started).String())
		if errors.Is(err, jobs.ErrUsage) {
			return exitUsage
		}
		return exitFatal
	}
	log.Info("job finished", "summary", summary.String(), "elapsed", time.Since(started).String())
	return exitOK
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: grocerysync <job> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "jobs:")
	all := jobs.All()
	for _, name := range jobs.Names() {
		fmt.Fprintf(w, "  %-38s %s\n", name, all[name].Description())
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "run 'grocerysync <job> -h' for the job's flags")
}
