package config

import (
	"github.com/cepro/plantcontroller/pointmap"
	"github.com/cepro/plantcontroller/telemetry"
)

// validate checks the whole structure and builds the typed point descriptors.
func (c *Config) validate() error {
	if len(c.Plants) != len(telemetry.AllPlants()) {
		return errorf("expected exactly %d plants, got %d", len(telemetry.AllPlants()), len(c.Plants))
	}
	for _, id := range telemetry.AllPlants() {
		plant, ok := c.Plants[id]
		if !ok {
			return errorf("plant %q is missing", id)
		}
		if err := plant.validate(id); err != nil {
			return err
		}
	}

	if err := c.Timing.validate(); err != nil {
		return err
	}
	if c.Schedule.StalenessWindow <= 0 {
		return errorf("schedule.staleness_window must be positive")
	}
	if c.SafeStop.DecayThresholdKw <= 0 {
		return errorf("safe_stop.decay_threshold_kw must be positive")
	}
	if c.SafeStop.Timeout <= 0 {
		return errorf("safe_stop.timeout must be positive")
	}
	if c.Compression.MaxKeptGap <= 0 {
		return errorf("compression.max_kept_gap must be positive")
	}
	if c.Posting.QueueMax <= 0 {
		return errorf("posting.queue_max must be positive")
	}
	if c.Posting.BackoffInitial <= 0 || c.Posting.BackoffMax < c.Posting.BackoffInitial {
		return errorf("posting backoff bounds must satisfy 0 < initial <= max")
	}
	if c.Commands.QueueDepth <= 0 {
		return errorf("commands.queue_depth must be positive")
	}
	if c.Commands.ObservedStaleAfter <= 0 {
		return errorf("commands.observed_stale_after must be positive")
	}
	if c.Flux.BaseURL == "" {
		return errorf("flux.base_url is required")
	}
	if c.Recorder.Dir == "" {
		return errorf("recorder.dir is required")
	}
	if c.Repository.Path == "" {
		return errorf("repository.path is required")
	}

	return nil
}

func (t *TimingConfig) validate() error {
	periods := map[string]Duration{
		"timing.dispatch_period":       t.DispatchPeriod,
		"timing.emulation_period":      t.EmulationPeriod,
		"timing.sample_period":         t.SamplePeriod,
		"timing.post_period":           t.PostPeriod,
		"timing.observed_poll_period":  t.ObservedPollPeriod,
		"timing.safe_stop_poll_period": t.SafeStopPollPeriod,
		"timing.schedule_pull_period":  t.SchedulePullPeriod,
	}
	for name, period := range periods {
		if period <= 0 {
			return errorf("%s must be positive", name)
		}
	}
	return nil
}

func (p *PlantConfig) validate(id telemetry.PlantID) error {
	if p.CapacityKwh <= 0 {
		return errorf("plant %s: capacity_kwh must be positive", id)
	}
	if p.InitialSocPu < 0 || p.InitialSocPu > 1 {
		return errorf("plant %s: initial_soc_pu must be within [0, 1]", id)
	}
	if p.PLimitKw <= 0 {
		return errorf("plant %s: p_limit_kw must be positive", id)
	}
	if p.QLimitKvar <= 0 {
		return errorf("plant %s: q_limit_kvar must be positive", id)
	}
	if p.PoiVoltageKv <= 0 {
		return errorf("plant %s: poi_voltage_kv must be positive", id)
	}
	if err := p.Local.validate(id, "local"); err != nil {
		return err
	}
	if err := p.Remote.validate(id, "remote"); err != nil {
		return err
	}
	return nil
}

func (e *EndpointConfig) validate(id telemetry.PlantID, name string) error {
	if e.Host == "" {
		return errorf("plant %s: %s endpoint host is required", id, name)
	}

	e.descriptors = make(map[string]pointmap.Descriptor, len(e.Points))
	for pointName, pc := range e.Points {
		desc, err := pc.descriptor()
		if err != nil {
			return errorf("plant %s: %s endpoint point %q: %v", id, name, pointName, err)
		}
		e.descriptors[pointName] = desc
	}

	for _, required := range telemetry.RequiredPoints() {
		if _, ok := e.descriptors[required]; !ok {
			return errorf("plant %s: %s endpoint is missing point %q", id, name, required)
		}
	}
	return nil
}

// descriptor converts the raw point configuration into a typed descriptor. Missing
// byte/word orientation is rejected here, at load time; the codec never defaults it.
func (p PointConfig) descriptor() (pointmap.Descriptor, error) {
	dataType, err := pointmap.ParseDataType(p.Type)
	if err != nil {
		return pointmap.Descriptor{}, err
	}
	if p.Scale <= 0 {
		return pointmap.Descriptor{}, errorf("scale must be positive")
	}
	byteOrder, err := pointmap.ParseByteOrder(p.ByteOrder)
	if err != nil {
		return pointmap.Descriptor{}, err
	}
	wordOrder, err := pointmap.ParseWordOrder(p.WordOrder)
	if err != nil {
		return pointmap.Descriptor{}, err
	}
	return pointmap.Descriptor{
		Addr:  p.Addr,
		Type:  dataType,
		Scale: p.Scale,
		Byte:  byteOrder,
		Word:  wordOrder,
	}, nil
}
