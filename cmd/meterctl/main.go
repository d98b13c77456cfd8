package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/benmeehan/meterctl/internal/service_registry"
	"github.com/benmeehan/meterctl/internal/utils"
	"github.com/benmeehan/meterctl/pkg/credstore"
	"github.com/benmeehan/meterctl/pkg/encryption"
	"github.com/benmeehan/meterctl/pkg/file"
	"github.com/benmeehan/meterctl/pkg/httpclient"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

// usageError marks errors caused by bad command line input.
type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

// app carries everything a command needs.
type app struct {
	config   *utils.Config
	logger   zerolog.Logger
	registry *service_registry.ServiceRegistry
	pipeline *service_registry.Pipeline
	store    credstore.CredentialStore
	metrics  *prometheus.Registry
	stdin    io.Reader
	stdout   io.Writer
	stderr   io.Writer
}

type command struct {
	summary string
	run     func(ctx context.Context, a *app, args []string) error
}

var commands = map[string]command{
	"login":         {"sign in and store the credential pair", runLogin},
	"logout":        {"revoke and forget the stored credential pair", runLogout},
	"status":        {"show the stored session", runStatus},
	"get":           {"GET a backend path and print the body", runGet},
	"meters":        {"list, show, register or update smart meters", runMeters},
	"policies":      {"list or create data-sharing policies", runPolicies},
	"contracts":     {"list purchased contracts", runContracts},
	"purchase":      {"purchase a policy", runPurchase},
	"measurements":  {"print the measurements of a smart meter", runMeasurements},
	"watch":         {"poll the configured smart meters until interrupted", runWatch},
	"export-config": {"build and deliver a device configuration document", runExportConfig},
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	global := pflag.NewFlagSet("meterctl", pflag.ContinueOnError)
	global.SetInterspersed(false)
	global.SetOutput(stderr)
	configPath := global.StringP("config", "c", "configs/config.yaml", "path to the configuration file")
	global.Usage = func() { printUsage(stderr, global) }

	if err := global.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if global.NArg() == 0 {
		printUsage(stderr, global)
		return exitUsage
	}

	name, cmdArgs := global.Arg(0), global.Args()[1:]
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n", name)
		printUsage(stderr, global)
		return exitUsage
	}

	a, err := newApp(*configPath, stdin, stdout, stderr)
	if err != nil {
		fmt.Fprintln(stderr, "meterctl:", err)
		return exitError
	}
	defer a.registry.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.run(ctx, a, cmdArgs); err != nil {
		var usage *usageError
		if errors.As(err, &usage) {
			fmt.Fprintf(stderr, "meterctl %s: %s\n", name, err)
			return exitUsage
		}
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintf(stderr, "meterctl %s: %s\n", name, err)
		return exitError
	}
	return exitOK
}

func newApp(configPath string, stdin io.Reader, stdout, stderr io.Writer) (*app, error) {
	fileClient := file.NewFileService()

	config, err := utils.LoadConfig(configPath, fileClient)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	level, err := zerolog.ParseLevel(config.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", config.Log.Level, err)
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: stderr}).Level(level).With().Timestamp().Logger()

	encryptionManager := encryption.NewEncryptionManager(fileClient)
	if err := encryptionManager.InitializeOrCreate(config.Security.AESKeyFile); err != nil {
		return nil, err
	}
	store := credstore.NewFileStore(config.Security.CredentialsFile, fileClient, encryptionManager)

	var trusted []byte
	if config.API.CACertificate != "" {
		if trusted, err = fileClient.ReadFileRaw(config.API.CACertificate); err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}
	}

	var metrics *prometheus.Registry
	var transportMetrics *httpclient.TransportMetrics
	if config.Metrics.Enabled {
		metrics = prometheus.NewRegistry()
		if transportMetrics, err = httpclient.NewTransportMetrics(metrics); err != nil {
			return nil, err
		}
	}

	transport := httpclient.NewHTTPClient(httpclient.ClientConfig{
		TrustedCerts: trusted,
		SSLInsecure:  config.API.SSLInsecure,
		Timeout:      config.API.Timeout,
		Metrics:      transportMetrics,
	})

	navigator := NewConsoleNavigator(stderr, config.API.SignInRoute)
	registry := service_registry.NewServiceRegistry(fileClient, store, navigator, transport, metrics, logger)

	pipeline, err := registry.InitializePipeline(config)
	if err != nil {
		return nil, err
	}

	return &app{
		config:   config,
		logger:   logger,
		registry: registry,
		pipeline: pipeline,
		store:    store,
		metrics:  metrics,
		stdin:    stdin,
		stdout:   stdout,
		stderr:   stderr,
	}, nil
}

func printUsage(w io.Writer, global *pflag.FlagSet) {
	fmt.Fprintln(w, "Usage: meterctl [--config path] <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-14s %s\n", name, commands[name].summary)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Global flags:")
	global.PrintDefaults()
}

// serveMetrics exposes reg on listen until ctx is done.
func serveMetrics(ctx context.Context, listen string, handler http.Handler, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{Addr: listen, Handler: mux}

	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()

	logger.Info().Str("listen", listen).Msg("Serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("Metrics server failed")
	}
}
