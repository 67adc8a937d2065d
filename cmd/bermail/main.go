// Package main is the entry point for the bermail notification CLI.
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/shineum/bermail/internal/config"
	"github.com/shineum/bermail/internal/notify"
	"github.com/shineum/bermail/internal/provider"
	"github.com/shineum/bermail/internal/provider/ses"
	"github.com/shineum/bermail/internal/provider/smtprelay"
	"github.com/shineum/bermail/internal/provider/stdout"
	"github.com/shineum/bermail/internal/smtp"
	"github.com/shineum/bermail/internal/templates"
	smtptls "github.com/shineum/bermail/internal/tls"
)

// Event names accepted by -event.
const (
	eventBooking    = "booking"
	eventJobLive    = "job-live"
	eventStatus     = "status"
	eventDigest     = "digest"
	eventOnboarding = "onboarding"
)

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file (optional)")
	event := flag.String("event", "", "notification to send: booking, job-live, status, digest or onboarding")
	payloadPath := flag.String("payload", "", "path to the YAML or JSON event payload")
	flag.Parse()

	// A missing .env file is fine; the environment may already be set.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Error("failed to load .env file", "error", err)
		os.Exit(1)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.Logging.Level, cfg.Logging.Format)

	if *payloadPath == "" {
		slog.Error("-payload is required")
		os.Exit(1)
	}
	payload, err := os.ReadFile(*payloadPath)
	if err != nil {
		slog.Error("failed to read payload", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	prov, err := selectProvider(ctx, cfg)
	if err != nil {
		slog.Error("failed to set up provider", "error", err)
		os.Exit(1)
	}

	renderer, err := templates.New(templates.Site{Name: cfg.Site.Name, BaseURL: cfg.Site.BaseURL})
	if err != nil {
		slog.Error("failed to load templates", "error", err)
		os.Exit(1)
	}

	notifier := notify.New(notify.Config{
		Provider: prov,
		Renderer: renderer,
		From:     cfg.From(),
		SiteName: cfg.Site.Name,
		Logger:   slog.Default(),
	})

	slog.Info("sending notification", "event", *event, "provider", prov.Name())

	report, err := run(ctx, notifier, *event, payload)
	if err != nil {
		slog.Error("notification failed", "event", *event, "error", err)
		os.Exit(1)
	}

	slog.Info("bermail finished",
		"run_id", report.RunID,
		"attempted", report.Attempted,
		"sent", report.Sent,
		"failed", len(report.Failures),
	)
}

// run decodes the payload for event and runs the matching workflow. Only
// payload problems and a failed onboarding invite are errors; the courtesy
// workflows report their failures in the Report.
func run(ctx context.Context, n *notify.Notifier, event string, payload []byte) (notify.Report, error) {
	switch event {
	case eventBooking:
		var ev notify.BookingAccepted
		if err := decodePayload(payload, &ev); err != nil {
			return notify.Report{}, err
		}
		return n.BookingAccepted(ctx, ev), nil

	case eventJobLive:
		var ev notify.JobLive
		if err := decodePayload(payload, &ev); err != nil {
			return notify.Report{}, err
		}
		return n.JobLive(ctx, ev), nil

	case eventStatus:
		var ev notify.StatusChanged
		if err := decodePayload(payload, &ev); err != nil {
			return notify.Report{}, err
		}
		return n.StatusChanged(ctx, ev), nil

	case eventDigest:
		var ev notify.Digest
		if err := decodePayload(payload, &ev); err != nil {
			return notify.Report{}, err
		}
		return n.Digest(ctx, ev), nil

	case eventOnboarding:
		var ev notify.OnboardingInvite
		if err := decodePayload(payload, &ev); err != nil {
			return notify.Report{}, err
		}
		return n.Onboarding(ctx, ev)

	case "":
		return notify.Report{}, errors.New("-event is required")

	default:
		return notify.Report{}, fmt.Errorf("unknown event %q", event)
	}
}

// decodePayload strictly decodes a YAML or JSON document into v.
func decodePayload(payload []byte, v any) error {
	dec := yaml.NewDecoder(bytes.NewReader(payload))
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("payload is empty")
		}
		return fmt.Errorf("failed to parse payload: %w", err)
	}
	return nil
}

// loadConfig loads configuration from the specified path (YAML + env override)
// or from environment variables only if no path is given.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// setupLogger configures the global slog logger with the given level and
// output format.
func setupLogger(level, format string) {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// selectProvider builds the delivery backend named by cfg.Provider.
func selectProvider(ctx context.Context, cfg *config.Config) (provider.Provider, error) {
	switch cfg.Provider {
	case config.ProviderSMTP:
		mode, err := smtp.ParseTLSMode(cfg.SMTP.TLSMode)
		if err != nil {
			return nil, err
		}
		tlsConfig, err := smtptls.ClientConfig(cfg.SMTP.Host, cfg.SMTP.CAFile)
		if err != nil {
			return nil, err
		}
		slog.Info("using SMTP relay provider",
			"host", cfg.SMTP.Host,
			"port", cfg.SMTP.Port,
			"tls_mode", string(mode),
		)
		return smtprelay.New(smtprelay.Config{
			SMTP: smtp.Config{
				Host:      cfg.SMTP.Host,
				Port:      cfg.SMTP.Port,
				LocalName: cfg.SMTP.LocalName,
				Timeout:   cfg.SMTP.Timeout,
				TLSMode:   mode,
				TLSConfig: tlsConfig,
				Logger:    slog.Default(),
			},
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
		}), nil

	case config.ProviderSES:
		slog.Info("using AWS SES provider",
			"region", cfg.SES.Region,
			"sender", cfg.SES.Sender,
		)
		p, err := ses.New(ctx, ses.SESProviderConfig{
			Region:          cfg.SES.Region,
			AccessKeyID:     cfg.SES.AccessKeyID,
			SecretAccessKey: cfg.SES.SecretAccessKey,
			Sender:          cfg.SES.Sender,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create SES provider: %w", err)
		}
		return p, nil

	case config.ProviderStdout:
		slog.Info("using stdout provider")
		return stdout.New(), nil

	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}
