package emulator

import (
	"fmt"
	"sync"

	"github.com/cepro/plantcontroller/pointmap"
	"github.com/simonvetter/modbus"
)

// registerBank is the emulated plant's holding register space. It serves modbus
// requests from the local endpoint clients and is read/written natively by the
// emulation tick. Only holding registers are supported.
type registerBank struct {
	mu     sync.RWMutex
	regs   []uint16
	points map[string]pointmap.Descriptor
}

func newRegisterBank(points map[string]pointmap.Descriptor) *registerBank {
	size := uint32(128)
	for _, desc := range points {
		end := uint32(desc.Addr) + uint32(desc.Type.Words())
		if end > size {
			size = end
		}
	}
	return &registerBank{
		regs:   make([]uint16, size),
		points: points,
	}
}

// HandleHoldingRegisters implements modbus.RequestHandler.
func (b *registerBank) HandleHoldingRegisters(req *modbus.HoldingRegistersRequest) ([]uint16, error) {
	end := int(req.Addr) + int(req.Quantity)
	if end > len(b.regs) {
		return nil, modbus.ErrIllegalDataAddress
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if req.IsWrite {
		copy(b.regs[req.Addr:end], req.Args)
		return nil, nil
	}

	res := make([]uint16, req.Quantity)
	copy(res, b.regs[req.Addr:end])
	return res, nil
}

// HandleCoils implements modbus.RequestHandler.
func (b *registerBank) HandleCoils(req *modbus.CoilsRequest) ([]bool, error) {
	return nil, modbus.ErrIllegalFunction
}

// HandleDiscreteInputs implements modbus.RequestHandler.
func (b *registerBank) HandleDiscreteInputs(req *modbus.DiscreteInputsRequest) ([]bool, error) {
	return nil, modbus.ErrIllegalFunction
}

// HandleInputRegisters implements modbus.RequestHandler.
func (b *registerBank) HandleInputRegisters(req *modbus.InputRegistersRequest) ([]uint16, error) {
	return nil, modbus.ErrIllegalFunction
}

// get reads one named point from the bank and decodes it to an engineering value.
func (b *registerBank) get(name string) (float64, error) {
	desc, ok := b.points[name]
	if !ok {
		return 0, fmt.Errorf("unknown point %q", name)
	}

	words := make([]uint16, desc.Type.Words())
	b.mu.RLock()
	copy(words, b.regs[desc.Addr:int(desc.Addr)+len(words)])
	b.mu.RUnlock()

	return pointmap.Decode(desc, words)
}

// setAll encodes every value first and only then applies the writes, so a codec
// failure never leaves the bank partially updated.
func (b *registerBank) setAll(values map[string]float64) error {
	type pending struct {
		addr  uint16
		words []uint16
	}
	writes := make([]pending, 0, len(values))
	for name, value := range values {
		desc, ok := b.points[name]
		if !ok {
			return fmt.Errorf("unknown point %q", name)
		}
		words, err := pointmap.Encode(desc, value)
		if err != nil {
			return fmt.Errorf("encode point %q: %w", name, err)
		}
		writes = append(writes, pending{addr: desc.Addr, words: words})
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, w := range writes {
		copy(b.regs[w.addr:int(w.addr)+len(w.words)], w.words)
	}
	return nil
}
