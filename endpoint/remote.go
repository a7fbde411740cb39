package endpoint

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cepro/plantcontroller/pointmap"
	"github.com/grid-x/modbus"
)

// RemoteClient provides an interface onto the real plant hardware.
//
// Like Client, one RemoteClient is shared by several worker goroutines, so the
// connection state and every read/write are serialized behind mu.
type RemoteClient struct {
	host   string
	points map[string]pointmap.Descriptor

	mu              sync.Mutex
	handler         *modbus.TCPClientHandler
	subClient       modbus.Client
	shouldReconnect bool
	logger          *slog.Logger
}

// NewRemoteClient creates a client for the hardware at host with the given point map.
// The connection is established lazily on the first read or write, so the controller
// can start while the hardware is unreachable.
func NewRemoteClient(host string, points map[string]pointmap.Descriptor) *RemoteClient {
	handler := modbus.NewTCPClientHandler(host)
	handler.Timeout = 5 * time.Second
	handler.SlaveID = 1

	return &RemoteClient{
		host:            host,
		points:          points,
		handler:         handler,
		shouldReconnect: true,
		logger:          slog.Default().With("host", host),
	}
}

func (c *RemoteClient) reconnectIfNecessary() error {
	if !c.shouldReconnect {
		return nil
	}

	c.handler.Close()
	if err := c.handler.Connect(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	c.subClient = modbus.NewClient(c.handler)
	c.shouldReconnect = false

	c.logger.Info("Connected remote modbus client")

	return nil
}

func (c *RemoteClient) descriptor(name string) (pointmap.Descriptor, error) {
	desc, ok := c.points[name]
	if !ok {
		return pointmap.Descriptor{}, fmt.Errorf("unknown point %q", name)
	}
	return desc, nil
}

// ReadPoint reads one named point and returns its engineering value.
func (c *RemoteClient) ReadPoint(name string) (float64, error) {
	desc, err := c.descriptor(name)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.reconnectIfNecessary(); err != nil {
		return 0, &TransportError{Op: "connect", Host: c.host, Err: err}
	}

	raw, err := c.subClient.ReadHoldingRegisters(desc.Addr, desc.Type.Words())
	if err != nil {
		c.shouldReconnect = true
		return 0, &TransportError{Op: "read", Host: c.host, Err: fmt.Errorf("point %q: %w", name, err)}
	}

	// the underlying library returns bytes; registers are big-endian on the wire
	words := make([]uint16, len(raw)/2)
	for i := range words {
		words[i] = binary.BigEndian.Uint16(raw[i*2:])
	}

	return pointmap.Decode(desc, words)
}

// ReadPoints reads the named points and returns their engineering values keyed by name.
func (c *RemoteClient) ReadPoints(names ...string) (map[string]float64, error) {
	vals := make(map[string]float64, len(names))
	for _, name := range names {
		val, err := c.ReadPoint(name)
		if err != nil {
			return nil, err
		}
		vals[name] = val
	}
	return vals, nil
}

// WritePoint encodes the engineering value and writes it to the named point.
func (c *RemoteClient) WritePoint(name string, value float64) error {
	desc, err := c.descriptor(name)
	if err != nil {
		return err
	}

	words, err := pointmap.Encode(desc, value)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.reconnectIfNecessary(); err != nil {
		return &TransportError{Op: "connect", Host: c.host, Err: err}
	}

	raw := make([]byte, len(words)*2)
	for i, w := range words {
		binary.BigEndian.PutUint16(raw[i*2:], w)
	}

	_, err = c.subClient.WriteMultipleRegisters(desc.Addr, uint16(len(words)), raw)
	if err != nil {
		c.shouldReconnect = true
		return &TransportError{Op: "write", Host: c.host, Err: fmt.Errorf("point %q: %w", name, err)}
	}

	return nil
}

// Host returns the device address this client talks to.
func (c *RemoteClient) Host() string {
	return c.host
}

// Close closes the underlying connection.
func (c *RemoteClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.shouldReconnect = true
	return c.handler.Close()
}
