package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cepro/plantcontroller/command"
	"github.com/cepro/plantcontroller/config"
	"github.com/cepro/plantcontroller/dispatch"
	"github.com/cepro/plantcontroller/emulator"
	"github.com/cepro/plantcontroller/endpoint"
	"github.com/cepro/plantcontroller/fluxclient"
	"github.com/cepro/plantcontroller/poster"
	"github.com/cepro/plantcontroller/recorder"
	"github.com/cepro/plantcontroller/repository"
	"github.com/cepro/plantcontroller/sampler"
	"github.com/cepro/plantcontroller/schedule"
	"github.com/cepro/plantcontroller/state"
	"github.com/cepro/plantcontroller/telemetry"
)

func main() {

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)

	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	slog.Info("Starting plant controller...", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if password := os.Getenv("FLUX_PASSWORD"); password != "" {
		cfg.Flux.Password = password
	}

	store := state.New()

	flux := fluxclient.New(&http.Client{Timeout: 10 * time.Second}, cfg.Flux.BaseURL, cfg.Flux.Username, cfg.Flux.Password)

	resolver := schedule.NewResolver(cfg.Schedule.StalenessWindow.Std())

	rec, err := recorder.New(cfg.Recorder.Dir)
	if err != nil {
		slog.Error("Failed to create telemetry recorder", "error", err)
		os.Exit(1)
	}

	repo, err := repository.New(cfg.Repository.Path)
	if err != nil {
		slog.Error("Failed to open command repository", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup

	// one emulator, one local endpoint, one remote endpoint and one dispatch loop
	// per plant
	selectors := map[telemetry.PlantID]*endpoint.Selector{}
	assets := map[telemetry.PlantID]string{}
	series := map[telemetry.PlantID]map[string]string{}
	for plant, plantCfg := range cfg.Plants {
		plant := plant

		emu, err := emulator.New(emulator.Config{
			Plant:        plant,
			Host:         plantCfg.Local.Host,
			Points:       plantCfg.Local.Descriptors(),
			CapacityKwh:  plantCfg.CapacityKwh,
			InitialSocPu: plantCfg.InitialSocPu,
			PLimitKw:     plantCfg.PLimitKw,
			QLimitKvar:   plantCfg.QLimitKvar,
			PoiVoltageKv: plantCfg.PoiVoltageKv,
		})
		if err != nil {
			slog.Error("Failed to create plant emulator", "plant", plant, "error", err)
			os.Exit(1)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := emu.Run(ctx, cfg.Timing.EmulationPeriod.Std()); err != nil {
				slog.Error("Plant emulator stopped", "plant", plant, "error", err)
			}
		}()

		local := endpoint.NewClient(plantCfg.Local.Host, plantCfg.Local.Descriptors())
		remote := endpoint.NewRemoteClient(plantCfg.Remote.Host, plantCfg.Remote.Descriptors())
		selectors[plant] = endpoint.NewSelector(store, plant, local, remote)

		assets[plant] = plantCfg.FluxAssetID
		series[plant] = plantCfg.SeriesIDs

		loop := dispatch.NewLoop(plant, store, resolver, selectors[plant])
		wg.Add(1)
		go func() {
			defer wg.Done()
			loop.Run(ctx, cfg.Timing.DispatchPeriod.Std())
		}()
	}

	samp := sampler.New(store, selectors, rec, cfg.Compression, cfg.Timing.SamplePeriod.Std())
	wg.Add(1)
	go func() {
		defer wg.Done()
		samp.Run(ctx, cfg.Timing.SamplePeriod.Std())
	}()

	controller := command.NewController(store, selectors, resolver, samp, command.SafeStopParams{
		DecayThresholdKw: cfg.SafeStop.DecayThresholdKw,
		Timeout:          cfg.SafeStop.Timeout.Std(),
		PollPeriod:       cfg.Timing.SafeStopPollPeriod.Std(),
	}, cfg.Commands.ObservedStaleAfter.Std(), cfg.Commands.QueueDepth, repo)
	wg.Add(1)
	go func() {
		defer wg.Done()
		controller.Engine().Run(ctx)
	}()

	settings := command.NewSettings(store, resolver, flux, cfg.Commands.QueueDepth, repo)
	wg.Add(1)
	go func() {
		defer wg.Done()
		settings.Engine().Run(ctx)
	}()

	observer := command.NewObserver(store, selectors)
	wg.Add(1)
	go func() {
		defer wg.Done()
		observer.Run(ctx, cfg.Timing.ObservedPollPeriod.Std())
	}()

	puller := schedule.NewPuller(flux, resolver, assets)
	wg.Add(1)
	go func() {
		defer wg.Done()
		puller.Run(ctx, cfg.Timing.SchedulePullPeriod.Std())
	}()

	post := poster.New(store, flux, cfg.Posting, series)
	wg.Add(1)
	go func() {
		defer wg.Done()
		post.Run(ctx, cfg.Timing.PostPeriod.Std())
	}()

	// wait for an interrupt or termination signal before exiting
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)
	<-signalChan

	slog.Info("Shutting down...")

	// cancel all workers and wait for them to finish their current tick; the
	// sampler closes any open recording sessions on its way out
	cancel()
	wg.Wait()

	slog.Info("Exiting")
}
