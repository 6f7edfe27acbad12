// Command iothub-authd authenticates a single IoT device against an Azure
// IoT Hub over AMQP CBS and keeps its SAS token refreshed until stopped.
//
// Device key can be provided via:
//   - -devicekey flag (least secure, visible in process list)
//   - IOTHUB_DEVICE_KEY environment variable (recommended)
//
// Logs go to stderr by default; -logfile redirects them to a
// size-rotated file instead.
//
// Usage:
//
//	iothub-authd -hub myhub.azure-devices.net -device thermostat-42
//
// Examples:
//
//	export IOTHUB_DEVICE_KEY='base64key=='
//	iothub-authd -hub myhub.azure-devices.net -device thermostat-42
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/iotcore/amqp-cbs-auth/auth"
	"github.com/iotcore/amqp-cbs-auth/cbs"
	"github.com/iotcore/amqp-cbs-auth/internal/obslog"
	"github.com/iotcore/amqp-cbs-auth/transport/amqpcbs"
)

func main() {
	hub := flag.String("hub", "", "IoT Hub hostname, e.g. myhub.azure-devices.net")
	deviceID := flag.String("device", "", "Device ID")
	deviceKey := flag.String("devicekey", "", "Device key (use IOTHUB_DEVICE_KEY env var instead)")
	sasToken := flag.String("sastoken", "", "Caller-supplied SAS token (mutually exclusive with -devicekey)")
	lifetime := flag.Duration("lifetime", auth.DefaultSASTokenLifetime, "SAS token lifetime")
	refresh := flag.Duration("refresh", auth.DefaultSASTokenRefreshTime, "SAS token refresh threshold")
	cbsTimeout := flag.Duration("cbs-timeout", auth.DefaultCBSRequestTimeout, "CBS request timeout")
	tickInterval := flag.Duration("tick", 2*time.Second, "DoWork poll interval")
	breakerThreshold := flag.Int("breaker-threshold", 5, "Dispatch circuit breaker failure threshold (0 to disable)")
	breakerTimeout := flag.Duration("breaker-timeout", cbs.DefaultResetTimeout, "Circuit breaker reset timeout")
	logLevel := flag.String("loglevel", "info", "Log level: debug, info, warn, error")
	logFile := flag.String("logfile", "", "Write logs to this file instead of stderr, rotating when it grows past -logfile-maxsize")
	logFileMaxSize := flag.Int64("logfile-maxsize", 10*1024*1024, "Rotate -logfile after it reaches this many bytes")
	logFileMaxBackups := flag.Int("logfile-maxbackups", 5, "Number of rotated -logfile generations to keep")
	flag.Parse()

	level, err := parseLevel(*logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var logSink io.Writer = os.Stderr
	if *logFile != "" {
		rotating, err := obslog.NewRotatingFile(*logFile, *logFileMaxSize, *logFileMaxBackups)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening -logfile: %v\n", err)
			os.Exit(1)
		}
		defer rotating.Close()
		logSink = rotating
	}
	handler := obslog.NewRedactingHandler(slog.NewTextHandler(logSink, &slog.HandlerOptions{Level: level}))
	logger := slog.New(handler)

	if *hub == "" || *deviceID == "" {
		fmt.Fprintln(os.Stderr, "Error: -hub and -device are required")
		flag.Usage()
		os.Exit(1)
	}

	key := *deviceKey
	if key == "" {
		key = os.Getenv("IOTHUB_DEVICE_KEY")
	}
	if key == "" && *sasToken == "" {
		fmt.Fprintln(os.Stderr, "Error: one of -devicekey, IOTHUB_DEVICE_KEY, or -sastoken is required")
		os.Exit(1)
	}

	cfg := auth.Config{
		DeviceID:            *deviceID,
		HostFQDN:            *hub,
		DeviceKey:           key,
		DeviceSASToken:      *sasToken,
		SASTokenLifetime:    *lifetime,
		SASTokenRefreshTime: *refresh,
		CBSRequestTimeout:   *cbsTimeout,
		Logger:              logger,
	}

	authenticator, err := auth.Create(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating authenticator: %v\n", err)
		os.Exit(1)
	}

	breakerPolicy := cbs.BreakerPolicy{
		Enabled:          *breakerThreshold > 0,
		FailureThreshold: *breakerThreshold,
		ResetTimeout:     *breakerTimeout,
		OnStateChange: func(from, to cbs.CircuitState) {
			logger.Warn("dispatch circuit breaker state change", "from", from.String(), "to", to.String())
		},
	}
	breaker := cbs.NewCircuitBreaker(breakerPolicy, nil)

	addr := fmt.Sprintf("amqps://%s", *hub)
	client := amqpcbs.NewClient(addr)
	bridge := cbs.NewBridge(client, breaker, logger)

	err = authenticator.Start(bridge, func(_ any, old, new auth.Status) {
		logger.Info("status changed", "device_id", *deviceID, "old", old.String(), "new", new.String())
	}, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error starting authenticator: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(*tickInterval)
	defer ticker.Stop()

	logger.Info("authenticator started", "device_id", *deviceID, "host_fqdn", *hub)

runLoop:
	for {
		select {
		case <-ctx.Done():
			break runLoop
		case <-ticker.C:
			if err := authenticator.DoWork(ctx); err != nil {
				logger.Warn("do_work error", "error", err)
			}
		}
	}

	logger.Info("shutting down, stopping authenticator")
	done := make(chan struct{})
	err = authenticator.Stop(func(result cbs.Result, _ any) {
		logger.Info("stop completed", "result", result.String())
		close(done)
	}, nil)
	if err != nil {
		logger.Warn("stop error", "error", err)
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for {
		select {
		case <-done:
			return
		case <-shutdownCtx.Done():
			logger.Warn("timed out waiting for stop to complete")
			return
		case <-time.After(200 * time.Millisecond):
			if err := authenticator.DoWork(shutdownCtx); err != nil {
				logger.Warn("do_work error during shutdown", "error", err)
			}
		}
	}
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level %q: valid values are debug, info, warn, error", s)
	}
}
