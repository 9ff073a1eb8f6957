package main

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
	"github.com/norasector/rxscope/pkg/dsp/viz"
	"github.com/norasector/rxscope/pkg/rxscope"
	"github.com/norasector/rxscope/pkg/rxscope/config"
	"github.com/norasector/rxscope/pkg/rxscope/device"
	"github.com/norasector/rxscope/pkg/rxscope/device/file"
	hackrfDevice "github.com/norasector/rxscope/pkg/rxscope/device/hackrf"
	"github.com/norasector/rxscope/pkg/rxscope/device/rtlsdr"
	"github.com/norasector/rxscope/pkg/rxscope/device/sim"
	"github.com/norasector/rxscope/pkg/rxscope/transmit"
	"github.com/norasector/rxscope/pkg/util"
	"github.com/samuel/go-hackrf/hackrf"
	"golang.org/x/sync/errgroup"
)

// hackrfLib initialises libhackrf on first use so runs without a HackRF
// do not need the library to find one.
type hackrfLib struct {
	once        sync.Once
	err         error
	initialized bool
}

func (h *hackrfLib) open(args device.Args) (device.Device, error) {
	h.once.Do(func() {
		log.Info().Str("device", "hackrf").Msg("initializing library...")
		h.err = hackrf.Init()
		h.initialized = h.err == nil
	})
	if h.err != nil {
		return nil, h.err
	}
	return hackrfDevice.Open(args)
}

func (h *hackrfLib) exit() {
	if h.initialized {
		hackrf.Exit()
	}
}

func setupLogging(opts *config.Config) {
	var out io.Writer = zerolog.ConsoleWriter{Out: os.Stderr}
	if opts.LogFile != "" {
		out = zerolog.MultiLevelWriter(out, &lumberjack.Logger{
			Filename:   opts.LogFile,
			MaxSize:    50,
			MaxBackups: 3,
			MaxAge:     28,
		})
	}
	level := zerolog.InfoLevel
	if opts.LogLevel != "" {
		if l, err := zerolog.ParseLevel(opts.LogLevel); err == nil {
			level = l
		} else {
			log.Warn().Str("level", opts.LogLevel).Msg("unknown log level, using info")
		}
	}
	log.Logger = log.Output(out).Level(level)
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.InfoLevel)
	configFile := flag.String("config", "rxscope.yaml", "YAML config file")
	mode := flag.String("mode", "", "rx (scope) or tx (transmit); overrides the config file")

	flag.Parse()

	opts, err := config.Load(*configFile, config.WithMode(*mode))
	if err != nil {
		log.Fatal().Err(err).Msg("error loading config")
	}
	setupLogging(opts)

	lib := &hackrfLib{}
	defer lib.exit()
	drivers := device.Drivers{
		"hackrf": lib.open,
		"rtlsdr": rtlsdr.Open,
		"file":   file.Open,
		"sim":    sim.Open,
	}

	runID := uuid.NewString()
	var writeAPI api.WriteAPI = &util.MockWriteAPI{}
	if opts.InfluxDB.Host != "" {
		client := influxdb2.NewClient(opts.InfluxDB.Host, opts.InfluxDB.Token)
		defer client.Close()
		writeAPI = client.WriteAPI(opts.InfluxDB.Organization, opts.InfluxDB.Bucket)
		defer writeAPI.Flush()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	eg, ctx := errgroup.WithContext(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	eg.Go(func() error {
		select {
		case sig := <-sigChan:
			log.Info().Str("signal", sig.String()).Msg("stopping...")
			cancel()
		case <-ctx.Done():
		}
		return nil
	})

	switch opts.Mode {
	case config.ModeTX:
		tx, err := transmit.NewTransmitter(drivers, opts.TransmitDevice(), opts.TransmitOptions(),
			transmit.WithLogger(log.Logger),
			transmit.WithInfluxDB(writeAPI, runID))
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create transmitter")
		}
		eg.Go(func() error {
			defer cancel()
			_, err := tx.Run(ctx)
			return err
		})

	default:
		set, err := rxscope.NewChannelSet(drivers, opts.DeviceConfigs())
		if err != nil {
			log.Fatal().Err(err).Msg("invalid channel set")
		}
		lifecycle := rxscope.NewLifecycle(set,
			rxscope.WithClockDegrade(opts.DegradeOnClockError),
			rxscope.WithLifecycleLogger(log.Logger))

		figure := viz.NewFigure()
		vizServer := viz.NewServer(opts.VizServer.Port, opts.UpdateInterval(), figure).WithLogger(log.Logger)

		scope, err := rxscope.NewScope(lifecycle, opts.ScopeOptions(),
			rxscope.WithSurface(figure),
			rxscope.WithInfluxDB(writeAPI),
			rxscope.WithRunID(runID),
			rxscope.WithLogger(log.Logger))
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create scope")
		}

		eg.Go(func() error {
			return vizServer.Run(ctx)
		})
		eg.Go(func() error {
			defer cancel()
			return scope.Run(ctx)
		})
	}

	if err := eg.Wait(); err != nil && err != context.Canceled {
		log.Fatal().Err(err).Msg("exited program")
	}
	log.Info().Str("run_id", runID).Msg("stopped")
}
