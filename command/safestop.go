package command

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/cepro/plantcontroller/telemetry"
)

// SafeStopResult reports how a safe-stop sequence went. The plant's enable flag is
// written zero regardless, so DisableOK false means the plant may still be running.
type SafeStopResult struct {
	ThresholdReached bool
	DisableOK        bool
}

// runSafeStop brings one plant to a verified standstill: close the dispatch gate,
// zero the setpoints, wait for the measured power to decay below the threshold and
// then disable. On timeout the plant is force-disabled anyway, with a warning.
func (c *Controller) runSafeStop(ctx context.Context, plant telemetry.PlantID) SafeStopResult {
	logger := slog.Default().With("plant", plant)

	c.store.SetDispatchGate(plant, false)

	ep := c.selectors[plant].Active()
	if err := ep.WritePoint(telemetry.PointPSetpoint, 0); err != nil {
		logger.Error("Failed to zero P setpoint during safe-stop", "error", err)
	}
	if err := ep.WritePoint(telemetry.PointQSetpoint, 0); err != nil {
		logger.Error("Failed to zero Q setpoint during safe-stop", "error", err)
	}

	result := SafeStopResult{}
	deadline := time.Now().Add(c.safeStop.Timeout)

	for {
		values, err := ep.ReadPoints(telemetry.PointPActual, telemetry.PointQActual)
		if err != nil {
			logger.Error("Failed to read measured power during safe-stop", "error", err)
		} else if math.Abs(values[telemetry.PointPActual]) < c.safeStop.DecayThresholdKw &&
			math.Abs(values[telemetry.PointQActual]) < c.safeStop.DecayThresholdKw {
			result.ThresholdReached = true
			break
		}

		if time.Now().After(deadline) {
			logger.Warn("Safe-stop decay wait timed out, force-disabling",
				"threshold_kw", c.safeStop.DecayThresholdKw, "timeout", c.safeStop.Timeout)
			break
		}

		select {
		case <-ctx.Done():
			logger.Warn("Safe-stop interrupted by shutdown, force-disabling")
		case <-time.After(c.safeStop.PollPeriod):
			continue
		}
		break
	}

	if err := ep.WritePoint(telemetry.PointEnable, 0); err != nil {
		logger.Error("Failed to disable plant after safe-stop", "error", err)
	} else {
		result.DisableOK = true
	}

	logger.Info("Safe-stop finished",
		"threshold_reached", result.ThresholdReached, "disable_ok", result.DisableOK)

	return result
}
