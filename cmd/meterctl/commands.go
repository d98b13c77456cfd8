package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"golang.org/x/crypto/ssh/terminal"

	"github.com/benmeehan/meterctl/internal/models"
	"github.com/benmeehan/meterctl/internal/services"
	"github.com/benmeehan/meterctl/pkg/jwt"
)

func newFlagSet(a *app, name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(a.stderr)
	return fs
}

func parseFlags(fs *pflag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return err
		}
		return &usageError{msg: err.Error()}
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// readSecret returns the first line of r without the line ending. A terminal
// is read with echo disabled and the line break is written to prompt.
func readSecret(r io.Reader, prompt io.Writer) (string, error) {
	if f, ok := r.(*os.File); ok && terminal.IsTerminal(int(f.Fd())) {
		secret, err := terminal.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", err
		}
		return string(secret), nil
	}

	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func runLogin(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "login")
	username := fs.StringP("username", "u", "", "account name")
	password := fs.StringP("password", "p", "", "password, read from stdin when omitted")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *username == "" {
		return usagef("--username is required")
	}
	if *password == "" {
		fmt.Fprint(a.stderr, "Password: ")
		secret, err := readSecret(a.stdin, a.stderr)
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		*password = secret
	}

	if _, err := a.pipeline.Auth.Login(ctx, *username, *password); err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, "Signed in.")
	return nil
}

func runLogout(ctx context.Context, a *app, args []string) error {
	if err := parseFlags(newFlagSet(a, "logout"), args); err != nil {
		return err
	}
	if err := a.pipeline.Auth.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, "Signed out.")
	return nil
}

// sessionStatus is printed by the status command.
type sessionStatus struct {
	SignedIn  bool       `json:"signedIn"`
	Subject   string     `json:"subject,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	Expired   bool       `json:"expired"`
}

func runStatus(_ context.Context, a *app, args []string) error {
	if err := parseFlags(newFlagSet(a, "status"), args); err != nil {
		return err
	}

	pair, err := a.store.Get()
	if err != nil {
		return err
	}
	status := sessionStatus{SignedIn: pair.Complete()}
	if status.SignedIn {
		claims, err := jwt.Inspect(pair.AccessToken)
		switch {
		case errors.Is(err, jwt.ErrOpaqueToken):
			// Expiry unknown.
		case err != nil:
			a.logger.Warn().Err(err).Msg("Failed to inspect access token")
		default:
			status.Subject = claims.Subject
			if claims.HasExpiry() {
				expiresAt := claims.ExpiresAt
				status.ExpiresAt = &expiresAt
				status.Expired = claims.Expired(time.Now())
			}
		}
	}
	return printJSON(a.stdout, status)
}

func runGet(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "get")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return usagef("expected exactly one path")
	}

	body, err := services.NewResourceService(a.pipeline.Client, a.logger).Get(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	if json.Valid(body) {
		return printJSON(a.stdout, body)
	}
	_, err = a.stdout.Write(body)
	return err
}

func runMeters(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "meters")
	id := fs.String("id", "", "show or update this smart meter")
	register := fs.Bool("register", false, "register a new smart meter")
	name := fs.String("name", "", "name of the new smart meter")
	serial := fs.String("serial", "", "serial number of the new smart meter")
	location := fs.String("location", "", "location of the new smart meter")
	metadata := fs.String("metadata", "", "JSON metadata to store on the smart meter")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	resources := services.NewResourceService(a.pipeline.Client, a.logger)
	switch {
	case *register:
		if *name == "" {
			return usagef("--name is required with --register")
		}
		registration := models.SmartMeterRegistration{Name: *name, Serial: *serial, Location: *location}
		if *metadata != "" {
			registration.Metadata = json.RawMessage(*metadata)
		}
		meter, err := resources.RegisterSmartMeter(ctx, registration)
		if err != nil {
			return err
		}
		return printJSON(a.stdout, meter)
	case *id != "" && *metadata != "":
		meter, err := resources.UpdateSmartMeterMetadata(ctx, *id, json.RawMessage(*metadata))
		if err != nil {
			return err
		}
		return printJSON(a.stdout, meter)
	case *id != "":
		meter, err := resources.GetSmartMeter(ctx, *id)
		if err != nil {
			return err
		}
		return printJSON(a.stdout, meter)
	default:
		meters, err := resources.ListSmartMeters(ctx)
		if err != nil {
			return err
		}
		return printJSON(a.stdout, meters)
	}
}

func runPolicies(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "policies")
	meter := fs.String("meter", "", "only policies of this smart meter")
	create := fs.Bool("create", false, "create a policy for --meter")
	name := fs.String("name", "", "name of the new policy")
	price := fs.Float64("price", 0, "price of the new policy")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	resources := services.NewResourceService(a.pipeline.Client, a.logger)
	if *create {
		if *meter == "" || *name == "" {
			return usagef("--meter and --name are required with --create")
		}
		policy, err := resources.CreatePolicy(ctx, models.Policy{SmartMeterID: *meter, Name: *name, Price: *price})
		if err != nil {
			return err
		}
		return printJSON(a.stdout, policy)
	}

	policies, err := resources.ListPolicies(ctx, *meter)
	if err != nil {
		return err
	}
	return printJSON(a.stdout, policies)
}

func runContracts(ctx context.Context, a *app, args []string) error {
	if err := parseFlags(newFlagSet(a, "contracts"), args); err != nil {
		return err
	}
	contracts, err := services.NewResourceService(a.pipeline.Client, a.logger).ListContracts(ctx)
	if err != nil {
		return err
	}
	return printJSON(a.stdout, contracts)
}

func runPurchase(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "purchase")
	policy := fs.String("policy", "", "policy to purchase")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *policy == "" {
		return usagef("--policy is required")
	}
	contract, err := services.NewResourceService(a.pipeline.Client, a.logger).PurchasePolicy(ctx, *policy)
	if err != nil {
		return err
	}
	return printJSON(a.stdout, contract)
}

func parseTime(flag, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, usagef("--%s: expected RFC 3339 time, got %q", flag, value)
	}
	return t, nil
}

func runMeasurements(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "measurements")
	meter := fs.String("meter", "", "smart meter id")
	fromFlag := fs.String("from", "", "start of the range (RFC 3339)")
	toFlag := fs.String("to", "", "end of the range (RFC 3339)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *meter == "" {
		return usagef("--meter is required")
	}
	from, err := parseTime("from", *fromFlag)
	if err != nil {
		return err
	}
	to, err := parseTime("to", *toFlag)
	if err != nil {
		return err
	}

	series, err := services.NewResourceService(a.pipeline.Client, a.logger).Measurements(ctx, *meter, from, to)
	if err != nil {
		return err
	}
	return printJSON(a.stdout, series)
}

func runWatch(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "watch")
	meters := fs.StringSlice("meter", nil, "smart meter to poll, repeatable; defaults to poller.smart_meters")
	interval := fs.Duration("interval", 0, "poll interval; defaults to poller.interval")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if len(*meters) > 0 {
		a.config.Poller.SmartMeters = *meters
	}
	if *interval > 0 {
		a.config.Poller.Interval = *interval
	}
	if len(a.config.Poller.SmartMeters) == 0 {
		return usagef("no smart meters to watch: pass --meter or set poller.smart_meters")
	}

	resources := services.NewResourceService(a.pipeline.Client, a.logger)
	if err := a.registry.RegisterServices(a.config, resources, a.stdout); err != nil {
		return err
	}

	if a.metrics != nil {
		metricsCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go serveMetrics(metricsCtx, a.config.Metrics.Listen, promhttp.HandlerFor(a.metrics, promhttp.HandlerOpts{}), a.logger)
	}

	if err := a.registry.StartServices(); err != nil {
		return err
	}

	done := a.registry.Finished()

	select {
	case <-ctx.Done():
		a.logger.Info().Msg("Shutting down gracefully...")
	case <-done:
	}

	stopErr := a.registry.StopServices()
	if done != nil {
		select {
		case <-done:
			if ctx.Err() == nil {
				return errors.New("watch stopped: session ended")
			}
		default:
		}
	}
	return stopErr
}

func runExportConfig(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "export-config")
	device := fs.String("device", "", "device id")
	ssid := fs.String("ssid", "", "Wi-Fi SSID")
	password := fs.String("password", "", "Wi-Fi password, read from stdin when omitted")
	sinks := fs.StringSlice("sink", nil, "delivery sink (file, s3, mqtt), repeatable; defaults to device_config.sinks")
	output := fs.StringP("output", "o", "", "directory for the file sink; defaults to device_config.output_dir")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *device == "" {
		return usagef("--device is required")
	}
	if *password == "" && *ssid != "" {
		fmt.Fprint(a.stderr, "Wi-Fi password: ")
		secret, err := readSecret(a.stdin, a.stderr)
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		*password = secret
	}
	if err := services.ValidateWiFiInput(*ssid, *password); err != nil {
		return &usageError{msg: err.Error()}
	}
	if len(*sinks) > 0 {
		a.config.DeviceConfig.Sinks = *sinks
	}
	if *output != "" {
		a.config.DeviceConfig.OutputDir = *output
	}
	if err := a.config.Validate(); err != nil {
		return &usageError{msg: err.Error()}
	}

	artifactSinks, err := a.registry.InitializeSinks(ctx, a.config)
	if err != nil {
		return err
	}

	svc := services.NewDeviceConfigService(a.pipeline.Client, artifactSinks, a.config.DeviceConfig.FileName, a.logger)
	artifacts, err := svc.Export(ctx, *device, *ssid, *password)
	if err != nil {
		return err
	}
	return printJSON(a.stdout, artifacts)
}
