package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/okian/aggregator/internal/publisher"
	"github.com/okian/aggregator/pkg/logger"
)

var (
	app = kingpin.New("publisher", "Publishes generated events with duplicates to the aggregator and verifies its counters.")

	baseURL = app.Flag(
		"url",
		"Base URL of the aggregator",
	).Default("http://localhost:8080").Envar("AGGREGATOR_URL").String()

	events = app.Flag(
		"events",
		"Events per cycle, duplicates included",
	).Default("1000").Envar("TOTAL_EVENTS").Int()

	duplicateRate = app.Flag(
		"duplicate-rate",
		"Share of events that reuse an earlier event_id",
	).Default("0.2").Envar("DUPLICATE_RATE").Float64()

	batchSize = app.Flag(
		"batch-size",
		"Events per POST /publish",
	).Default("100").Envar("BATCH_SIZE").Int()

	workers = app.Flag(
		"workers",
		"Concurrent senders",
	).Default("4").Envar("WORKERS").Int()

	topic = app.Flag(
		"topic",
		"Topic of the generated events",
	).Default("demo").Envar("TOPIC").String()

	source = app.Flag(
		"source",
		"Source of the generated events",
	).Default("publisher").Envar("SOURCE").String()

	timeout = app.Flag(
		"timeout",
		"Per request timeout",
	).Default("10s").Envar("REQUEST_TIMEOUT").Duration()

	retries = app.Flag(
		"retries",
		"Retries per request on transport errors and 5xx",
	).Default("3").Envar("REQUEST_RETRIES").Int()

	drainTimeout = app.Flag(
		"drain-timeout",
		"How long to wait for the aggregator to settle after a cycle",
	).Default("30s").Envar("DRAIN_TIMEOUT").Duration()

	mode = app.Flag(
		"mode",
		"one-shot or continuous",
	).Default(publisher.ModeOneShot).Envar("MODE").Enum(publisher.ModeOneShot, publisher.ModeContinuous)

	interval = app.Flag(
		"interval",
		"Pause between continuous cycles",
	).Default("5s").Envar("INTERVAL").Duration()

	verify = app.Flag(
		"verify",
		"Check counter deltas after each cycle",
	).Default("true").Envar("VERIFY").Bool()

	logLevel = app.Flag(
		"log-level",
		"debug, info, warn or error",
	).Default("info").Envar("LOG_LEVEL").String()
)

func main() {
	kingpin.MustParse(app.Parse(os.Args[1:]))

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	_ = logger.SetLevelString(*logLevel)

	log := logger.Get().Named("publisher")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := publisher.Config{
		BaseURL:       *baseURL,
		Events:        *events,
		DuplicateRate: *duplicateRate,
		BatchSize:     *batchSize,
		Workers:       *workers,
		Topic:         *topic,
		Source:        *source,
		Timeout:       *timeout,
		Retries:       *retries,
		DrainTimeout:  *drainTimeout,
		Mode:          *mode,
		Interval:      *interval,
		Verify:        *verify,
	}

	if err := publisher.Run(ctx, cfg); err != nil {
		log.Error(ctx, "publisher failed", logger.Error(err))
		stop()
		os.Exit(1)
	}
}
