package endpoint

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/cepro/plantcontroller/pointmap"
	"github.com/cepro/plantcontroller/telemetry"
	"github.com/simonvetter/modbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// staticRegisters serves a small fixed holding-register space.
type staticRegisters struct {
	mu   sync.Mutex
	regs [16]uint16
}

func (s *staticRegisters) HandleHoldingRegisters(req *modbus.HoldingRegistersRequest) ([]uint16, error) {
	end := int(req.Addr) + int(req.Quantity)
	if end > len(s.regs) {
		return nil, modbus.ErrIllegalDataAddress
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if req.IsWrite {
		copy(s.regs[req.Addr:end], req.Args)
		return nil, nil
	}

	res := make([]uint16, req.Quantity)
	copy(res, s.regs[req.Addr:end])
	return res, nil
}

func (s *staticRegisters) HandleCoils(req *modbus.CoilsRequest) ([]bool, error) {
	return nil, modbus.ErrIllegalFunction
}

func (s *staticRegisters) HandleDiscreteInputs(req *modbus.DiscreteInputsRequest) ([]bool, error) {
	return nil, modbus.ErrIllegalFunction
}

func (s *staticRegisters) HandleInputRegisters(req *modbus.InputRegistersRequest) ([]uint16, error) {
	return nil, modbus.ErrIllegalFunction
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func startTestServer(t *testing.T) string {
	t.Helper()
	host := freeAddr(t)
	server, err := modbus.NewServer(&modbus.ServerConfiguration{
		URL:        "tcp://" + host,
		Timeout:    5 * time.Second,
		MaxClients: 5,
	}, &staticRegisters{})
	require.NoError(t, err)
	require.NoError(t, server.Start())
	t.Cleanup(func() { server.Stop() })
	return host
}

func testPoints() map[string]pointmap.Descriptor {
	return map[string]pointmap.Descriptor{
		telemetry.PointPSetpoint: {Addr: 0, Type: pointmap.Int16, Scale: 0.1, Byte: pointmap.BigEndian, Word: pointmap.HighWordFirst},
		telemetry.PointPActual:   {Addr: 1, Type: pointmap.Int16, Scale: 0.1, Byte: pointmap.BigEndian, Word: pointmap.HighWordFirst},
	}
}

func TestClientRoundTrip(t *testing.T) {
	host := startTestServer(t)
	client := NewClient(host, testPoints())
	defer client.Close()

	require.NoError(t, client.WritePoint(telemetry.PointPSetpoint, 123.4))
	got, err := client.ReadPoint(telemetry.PointPSetpoint)
	require.NoError(t, err)
	assert.InDelta(t, 123.4, got, 0.05)
}

// One client is shared by the dispatch, sampling, observation and command workers, so
// concurrent reads and writes must not race on its connection state.
func TestClientConcurrentAccess(t *testing.T) {
	host := startTestServer(t)
	client := NewClient(host, testPoints())
	defer client.Close()

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				if _, err := client.ReadPoint(telemetry.PointPActual); err != nil {
					t.Errorf("concurrent read: %v", err)
					return
				}
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 25; i++ {
			if err := client.WritePoint(telemetry.PointPSetpoint, float64(i)); err != nil {
				t.Errorf("concurrent write: %v", err)
				return
			}
		}
	}()
	wg.Wait()
}

func TestRemoteClientConcurrentAccess(t *testing.T) {
	host := startTestServer(t)
	client := NewRemoteClient(host, testPoints())
	defer client.Close()

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				if _, err := client.ReadPoint(telemetry.PointPActual); err != nil {
					t.Errorf("concurrent read: %v", err)
					return
				}
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 25; i++ {
			if err := client.WritePoint(telemetry.PointPSetpoint, float64(i)); err != nil {
				t.Errorf("concurrent write: %v", err)
				return
			}
		}
	}()
	wg.Wait()
}

func TestUnknownPointIsRejected(t *testing.T) {
	client := NewClient("localhost:1502", testPoints())
	_, err := client.ReadPoint("no_such_point")
	assert.Error(t, err)
}
