package sampler

import (
	"math"
	"time"

	"github.com/cepro/plantcontroller/config"
	"github.com/cepro/plantcontroller/telemetry"
)

// Compressor applies loss-bounded compression to one recording session's sample
// stream. Both the tolerance check and the gap check are anchored to the last kept
// sample, not the most recent raw one, so slow drift cannot creep out of tolerance
// across many small steps without triggering a keep.
type Compressor struct {
	tolerances config.TolerancesConfig
	maxGap     time.Duration

	lastKept telemetry.Sample
	haveKept bool

	candidate     telemetry.Sample
	haveCandidate bool
}

// NewCompressor creates a compressor with the given bounds.
func NewCompressor(cfg config.CompressionConfig) *Compressor {
	return &Compressor{
		tolerances: cfg.Tolerances,
		maxGap:     cfg.MaxKeptGap.Std(),
	}
}

// Offer presents the next sample. It returns true when the sample must be persisted;
// the caller then calls Commit once the row is durably written. A suppressed sample is
// retained as the tail candidate so the final sample of a session is never lost.
func (c *Compressor) Offer(sample telemetry.Sample) bool {
	if c.haveKept &&
		c.withinTolerance(sample) &&
		sample.Time.Sub(c.lastKept.Time) < c.maxGap {
		c.candidate = sample
		c.haveCandidate = true
		return false
	}
	return true
}

// Commit makes the sample the new kept reference. It must only be called once the
// row has reached disk: suppression is never anchored to a sample that was lost.
func (c *Compressor) Commit(sample telemetry.Sample) {
	c.lastKept = sample
	c.haveKept = true
	c.haveCandidate = false
}

// Flush surrenders the pending tail candidate, if any. Called at session end so the
// last sample is persisted unconditionally.
func (c *Compressor) Flush() (telemetry.Sample, bool) {
	if !c.haveCandidate {
		return telemetry.Sample{}, false
	}
	candidate := c.candidate
	c.haveCandidate = false
	return candidate, true
}

func (c *Compressor) withinTolerance(sample telemetry.Sample) bool {
	return within(sample.PSetpointKw, c.lastKept.PSetpointKw, c.tolerances.PSetpointKw) &&
		within(sample.PActualKw, c.lastKept.PActualKw, c.tolerances.PActualKw) &&
		within(sample.QSetpointKvar, c.lastKept.QSetpointKvar, c.tolerances.QSetpointKvar) &&
		within(sample.QActualKvar, c.lastKept.QActualKvar, c.tolerances.QActualKvar) &&
		within(sample.SocPu, c.lastKept.SocPu, c.tolerances.SocPu) &&
		within(sample.PoiPKw, c.lastKept.PoiPKw, c.tolerances.PoiPKw) &&
		within(sample.PoiQKvar, c.lastKept.PoiQKvar, c.tolerances.PoiQKvar) &&
		within(sample.PoiVKv, c.lastKept.PoiVKv, c.tolerances.PoiVKv)
}

func within(value, reference, tolerance float64) bool {
	return math.Abs(value-reference) <= tolerance
}
