// Package emulator simulates the physical response of one battery plant and serves
// it over a local Modbus TCP endpoint. The emulator owns the authoritative
// state of charge: no other component writes it, and the only way to interact with
// an emulated plant is through its endpoint.
package emulator

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/cepro/plantcontroller/pointmap"
	"github.com/cepro/plantcontroller/telemetry"
	"github.com/simonvetter/modbus"
)

// Config holds the physical parameters of one emulated plant.
type Config struct {
	Plant        telemetry.PlantID
	Host         string
	Points       map[string]pointmap.Descriptor
	CapacityKwh  float64
	InitialSocPu float64
	PLimitKw     float64
	QLimitKvar   float64
	PoiVoltageKv float64
}

// Emulator hosts the local modbus server for one plant and applies the boundary
// limiting algorithm every tick.
type Emulator struct {
	config Config
	bank   *registerBank
	server *modbus.ModbusServer
	socKwh float64

	limiting bool // latch for transition-edge-only limit logging

	logger *slog.Logger
}

// New creates the emulator and its modbus server. The server is not started until Run.
func New(config Config) (*Emulator, error) {
	bank := newRegisterBank(config.Points)

	server, err := modbus.NewServer(&modbus.ServerConfiguration{
		URL:        fmt.Sprintf("tcp://%s", config.Host),
		Timeout:    30 * time.Second,
		MaxClients: 5,
	}, bank)
	if err != nil {
		return nil, fmt.Errorf("create modbus server: %w", err)
	}

	return &Emulator{
		config: config,
		bank:   bank,
		server: server,
		socKwh: config.InitialSocPu * config.CapacityKwh,
		logger: slog.Default().With("plant", config.Plant, "host", config.Host),
	}, nil
}

// Run starts the modbus server and loops until the context is cancelled, applying
// the physical model every period.
func (e *Emulator) Run(ctx context.Context, period time.Duration) error {
	if err := e.server.Start(); err != nil {
		return fmt.Errorf("start modbus server: %w", err)
	}
	defer e.server.Stop()

	// publish the initial state so reads before the first tick see sane values
	if err := e.bank.setAll(map[string]float64{
		telemetry.PointSoc:  e.socKwh / e.config.CapacityKwh,
		telemetry.PointPoiV: e.config.PoiVoltageKv,
	}); err != nil {
		return fmt.Errorf("seed register bank: %w", err)
	}

	e.logger.Info("Started plant emulator", "capacity_kwh", e.config.CapacityKwh, "initial_soc_kwh", e.socKwh)

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			e.tick(period.Hours())
		}
	}
}

// tick applies one simulation step of dtHours. Any failure skips the whole tick:
// the SoC is never partially applied.
func (e *Emulator) tick(dtHours float64) {
	enable, err := e.bank.get(telemetry.PointEnable)
	if err != nil {
		e.logger.Error("Failed to read enable flag, skipping emulation tick", "error", err)
		return
	}

	if enable < 0.5 {
		// disabled: the inverters produce nothing and the SoC holds
		err := e.bank.setAll(map[string]float64{
			telemetry.PointPActual: 0,
			telemetry.PointQActual: 0,
			telemetry.PointSoc:     e.socKwh / e.config.CapacityKwh,
			telemetry.PointPoiP:    0,
			telemetry.PointPoiQ:    0,
			telemetry.PointPoiV:    e.config.PoiVoltageKv,
		})
		if err != nil {
			e.logger.Error("Failed to write disabled state, skipping emulation tick", "error", err)
		}
		return
	}

	pSetpoint, err := e.bank.get(telemetry.PointPSetpoint)
	if err != nil {
		e.logger.Error("Failed to read P setpoint, skipping emulation tick", "error", err)
		return
	}
	qSetpoint, err := e.bank.get(telemetry.PointQSetpoint)
	if err != nil {
		e.logger.Error("Failed to read Q setpoint, skipping emulation tick", "error", err)
		return
	}

	// hard inverter limits apply before any SoC consideration
	pRequested := clamp(pSetpoint, -e.config.PLimitKw, e.config.PLimitKw)
	limitedQ := clamp(qSetpoint, -e.config.QLimitKvar, e.config.QLimitKvar)

	limitedP, limited := LimitPower(pRequested, e.socKwh, e.config.CapacityKwh, dtHours)

	// clamp absorbs floating-point drift at the boundaries
	newSoc := clamp(e.socKwh-limitedP*dtHours, 0, e.config.CapacityKwh)

	err = e.bank.setAll(map[string]float64{
		telemetry.PointPActual: limitedP,
		telemetry.PointQActual: limitedQ,
		telemetry.PointSoc:     newSoc / e.config.CapacityKwh,
		telemetry.PointPoiP:    limitedP, // no loss model: POI mirrors the terminals
		telemetry.PointPoiQ:    limitedQ,
		telemetry.PointPoiV:    e.config.PoiVoltageKv,
	})
	if err != nil {
		e.logger.Error("Failed to write tick results, skipping emulation tick", "error", err)
		return
	}

	e.socKwh = newSoc

	if limited && !e.limiting {
		e.logger.Warn("SoC boundary limiting active",
			"requested_kw", pRequested, "limited_kw", limitedP, "soc_kwh", e.socKwh)
	} else if !limited && e.limiting {
		e.logger.Info("SoC boundary limiting cleared", "soc_kwh", e.socKwh)
	}
	e.limiting = limited
}

// LimitPower returns the active power of minimum absolute deviation from the request
// that keeps the projected SoC within [0, capacity] over the tick. Positive power
// discharges, negative power charges. The second return reports whether the request
// had to be reduced.
func LimitPower(requestKw, socKwh, capacityKwh, dtHours float64) (float64, bool) {
	projected := socKwh - requestKw*dtHours
	switch {
	case projected > capacityKwh:
		// the smallest-magnitude reduction in charging that holds SoC at the ceiling
		return math.Max(requestKw, (socKwh-capacityKwh)/dtHours), true
	case projected < 0:
		// the smallest-magnitude reduction in discharging that holds SoC at the floor
		return math.Min(requestKw, socKwh/dtHours), true
	}
	return requestKw, false
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
