package config

import (
	"strings"
	"testing"
	"time"

	"github.com/cepro/plantcontroller/pointmap"
	"github.com/cepro/plantcontroller/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfig = `
plants:
  a:
    capacity_kwh: 444
    initial_soc_pu: 0.5
    p_limit_kw: 340
    q_limit_kvar: 170
    poi_voltage_kv: 11.0
    flux_asset_id: asset-a
    series_ids:
      p_actual: series-pa-1
      soc: series-soc-1
    local:
      host: "localhost:15020"
      points: &points
        p_setpoint: {addr: 0, type: int16, scale: 0.1, byte_order: big, word_order: high_first}
        q_setpoint: {addr: 1, type: int16, scale: 0.1, byte_order: big, word_order: high_first}
        enable: {addr: 2, type: uint16, scale: 1, byte_order: big, word_order: high_first}
        p_actual: {addr: 3, type: int16, scale: 0.1, byte_order: big, word_order: high_first}
        q_actual: {addr: 4, type: int16, scale: 0.1, byte_order: big, word_order: high_first}
        soc: {addr: 5, type: uint16, scale: 0.0001, byte_order: big, word_order: high_first}
        poi_p: {addr: 6, type: int16, scale: 0.1, byte_order: big, word_order: high_first}
        poi_q: {addr: 7, type: int16, scale: 0.1, byte_order: big, word_order: high_first}
        poi_v: {addr: 8, type: uint16, scale: 0.01, byte_order: big, word_order: high_first}
    remote:
      host: "10.20.0.5:502"
      points: *points
  b:
    capacity_kwh: 222
    initial_soc_pu: 0.4
    p_limit_kw: 170
    q_limit_kvar: 85
    poi_voltage_kv: 11.0
    flux_asset_id: asset-b
    series_ids: {}
    local:
      host: "localhost:15021"
      points: *points
    remote:
      host: "10.20.0.6:502"
      points: *points
timing:
  dispatch_period: 1s
  emulation_period: 1s
  sample_period: 5s
  post_period: 30s
  observed_poll_period: 2s
  safe_stop_poll_period: 500ms
  schedule_pull_period: 5m
schedule:
  staleness_window: 15m
safe_stop:
  decay_threshold_kw: 1.0
  timeout: 30s
compression:
  max_kept_gap: 6m
  tolerances:
    p_setpoint_kw: 1.0
    p_actual_kw: 1.0
    q_setpoint_kvar: 1.0
    q_actual_kvar: 1.0
    soc_pu: 0.001
    poi_p_kw: 1.0
    poi_q_kvar: 1.0
    poi_v_kv: 0.05
posting:
  queue_max: 256
  backoff_initial: 5s
  backoff_max: 10m
commands:
  queue_depth: 16
  observed_stale_after: 10s
flux:
  base_url: "https://flux.example.com/api"
  username: controller
  password: secret
recorder:
  dir: ./telemetry_data
repository:
  path: ./commands.sqlite
`

func TestParseValidConfig(t *testing.T) {
	cfg, err := Parse([]byte(validConfig))
	require.NoError(t, err)

	plantA := cfg.Plants[telemetry.PlantA]
	require.NotNil(t, plantA)
	assert.Equal(t, 444.0, plantA.CapacityKwh)
	assert.Equal(t, "asset-a", plantA.FluxAssetID)

	descs := plantA.Local.Descriptors()
	require.Contains(t, descs, telemetry.PointPSetpoint)
	assert.Equal(t, pointmap.Int16, descs[telemetry.PointPSetpoint].Type)
	assert.Equal(t, 0.1, descs[telemetry.PointPSetpoint].Scale)
	assert.Equal(t, pointmap.BigEndian, descs[telemetry.PointPSetpoint].Byte)

	assert.Equal(t, 5*time.Second, cfg.Timing.SamplePeriod.Std())
	assert.Equal(t, 15*time.Minute, cfg.Schedule.StalenessWindow.Std())
	assert.Equal(t, 500*time.Millisecond, cfg.Timing.SafeStopPollPeriod.Std())
}

func TestParseRejectsMissingByteOrder(t *testing.T) {
	mangled := strings.Replace(validConfig,
		"enable: {addr: 2, type: uint16, scale: 1, byte_order: big, word_order: high_first}",
		"enable: {addr: 2, type: uint16, scale: 1, word_order: high_first}",
		1)

	_, err := Parse([]byte(mangled))
	require.Error(t, err)
	var cfgErr *Error
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, err.Error(), "enable")
}

func TestParseRejectsMissingPlant(t *testing.T) {
	idx := strings.Index(validConfig, "  b:")
	end := strings.Index(validConfig, "timing:")
	mangled := validConfig[:idx] + validConfig[end:]

	_, err := Parse([]byte(mangled))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "plants")
}

func TestParseRejectsBadDuration(t *testing.T) {
	mangled := strings.Replace(validConfig, "sample_period: 5s", "sample_period: fast", 1)

	_, err := Parse([]byte(mangled))
	require.Error(t, err)
}

func TestParseRejectsMissingPoint(t *testing.T) {
	mangled := strings.Replace(validConfig,
		"        soc: {addr: 5, type: uint16, scale: 0.0001, byte_order: big, word_order: high_first}\n",
		"", 1)

	_, err := Parse([]byte(mangled))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "soc")
}
