package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/okian/pulse/internal/testevents"
	"github.com/okian/pulse/pkg/logger"
)

// Default configuration constants.
const (
	defaultNumEvents = 200
	defaultInterval  = 250 * time.Millisecond
	defaultTimeout   = 5 * time.Second
)

func main() {
	var (
		baseURL  = flag.String("url", "http://localhost:9080", "Base URL of the service")
		entities = flag.String("entities", strings.Join(testevents.DefaultEntities(), ","), "Comma separated entity ids")
		interval = flag.Duration("interval", defaultInterval, "Delay between events")
		events   = flag.Int("events", defaultNumEvents, "Number of events to post; 0 posts until interrupted")
		timeout  = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		logFile  = flag.String("log", "", "Log file for test output (default: test_log_TIMESTAMP.log)")
		verbose  = flag.Bool("verbose", false, "Enable verbose logging")
		help     = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		testevents.ShowHelp()
		return
	}

	if err := testevents.SetupLogging(*logFile); err != nil {
		_, _ = os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	if *verbose {
		_ = logger.SetLevelString("debug")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pub := testevents.NewHTTPPublisher(*baseURL, *timeout)
	if err := pub.CheckHealth(ctx); err != nil {
		logger.Get().Error(ctx, "service health check failed", logger.Error(err))
		stop()
		os.Exit(1)
	}

	stats := testevents.Run(ctx, pub, testevents.Config{
		Entities: strings.Split(*entities, ","),
		Interval: *interval,
		Count:    *events,
	})
	if stats.EventsRejected > 0 {
		stop()
		os.Exit(1)
	}
}
