// Package endpoint provides access to a plant's named modbus points through the
// register codec. Two client implementations exist: one for the locally emulated
// plants and one for the remote hardware.
package endpoint

import (
	"fmt"

	"github.com/cepro/plantcontroller/state"
	"github.com/cepro/plantcontroller/telemetry"
)

// Endpoint reads and writes named points on one plant's modbus device. All values
// are in engineering units; the fixed-point register representation is hidden behind
// the point map.
type Endpoint interface {
	ReadPoint(name string) (float64, error)
	ReadPoints(names ...string) (map[string]float64, error)
	WritePoint(name string, value float64) error
	Host() string
	Close() error
}

// TransportError wraps a modbus connect/read/write failure. The failed tick is
// skipped and the next tick retries from scratch.
type TransportError struct {
	Op   string
	Host string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s %s: %v", e.Op, e.Host, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Selector yields the endpoint matching the active transport mode for one plant.
type Selector struct {
	plant  telemetry.PlantID
	store  *state.Store
	local  Endpoint
	remote Endpoint
}

// NewSelector binds a plant's local and remote endpoints to the runtime store's
// transport mode.
func NewSelector(store *state.Store, plant telemetry.PlantID, local, remote Endpoint) *Selector {
	return &Selector{
		plant:  plant,
		store:  store,
		local:  local,
		remote: remote,
	}
}

// Active returns the endpoint for the currently active transport mode.
func (s *Selector) Active() Endpoint {
	if s.store.TransportMode() == telemetry.TransportRemote {
		return s.remote
	}
	return s.local
}

// Plant returns the plant this selector is bound to.
func (s *Selector) Plant() telemetry.PlantID {
	return s.plant
}
