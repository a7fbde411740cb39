package endpoint

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cepro/plantcontroller/pointmap"
	"github.com/simonvetter/modbus"
)

// Client provides an interface onto the locally emulated plant devices.
// It hides the underlying open source modbus library and maps named points to their
// assigned registers.
//
// One Client is shared by the dispatch, sampling, observation and command workers, so
// the connection state and every read/write are serialized behind mu.
type Client struct {
	host   string
	points map[string]pointmap.Descriptor

	mu              sync.Mutex
	subClient       *modbus.ModbusClient // the raw client of the underlying modbus library we are using
	shouldReconnect bool                 // when true, the subClient is 'dirty' and will be re-created next time a read or write call is made
	logger          *slog.Logger
}

// NewClient creates a client for the device at host with the given point map.
// The connection is established lazily on the first read or write.
func NewClient(host string, points map[string]pointmap.Descriptor) *Client {
	return &Client{
		host:            host,
		points:          points,
		shouldReconnect: true,
		logger:          slog.Default().With("host", host),
	}
}

// createSubClient creates the open-source modbus library client with sensible defaults and connects to the host.
func (c *Client) createSubClient() error {
	subClient, err := modbus.NewClient(&modbus.ClientConfiguration{
		URL:     fmt.Sprintf("tcp://%s", c.host),
		Timeout: 2 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("create modbus client: %w", err)
	}

	err = subClient.Open()
	if err != nil {
		return fmt.Errorf("open modbus client: %w", err)
	}

	c.subClient = subClient

	return nil
}

// setShouldReconnect is called when there has been an error with the modbus connection that should trigger a re-connect.
func (c *Client) setShouldReconnect() {
	c.shouldReconnect = true
}

// reconnectIfNecessary will close the old connection and reconnect if there have been problems with the connection.
func (c *Client) reconnectIfNecessary() error {
	if !c.shouldReconnect {
		return nil
	}

	// Ignore errors from Close() as we will continue with the reconnect anyway and start a new connection.
	if c.subClient != nil {
		c.subClient.Close()
	}

	err := c.createSubClient()
	if err != nil {
		return err
	}

	c.shouldReconnect = false

	c.logger.Info("Connected modbus client")

	return nil
}

func (c *Client) descriptor(name string) (pointmap.Descriptor, error) {
	desc, ok := c.points[name]
	if !ok {
		return pointmap.Descriptor{}, fmt.Errorf("unknown point %q", name)
	}
	return desc, nil
}

// ReadPoint reads one named point and returns its engineering value.
func (c *Client) ReadPoint(name string) (float64, error) {
	desc, err := c.descriptor(name)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.reconnectIfNecessary(); err != nil {
		return 0, &TransportError{Op: "connect", Host: c.host, Err: err}
	}

	words, err := c.subClient.ReadRegisters(desc.Addr, desc.Type.Words(), modbus.HOLDING_REGISTER)
	if err != nil {
		c.setShouldReconnect()
		return 0, &TransportError{Op: "read", Host: c.host, Err: fmt.Errorf("point %q: %w", name, err)}
	}

	return pointmap.Decode(desc, words)
}

// ReadPoints reads the named points and returns their engineering values keyed by name.
func (c *Client) ReadPoints(names ...string) (map[string]float64, error) {
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
func (c *Client) WritePoint(name string, value float64) error {
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

	err = c.subClient.WriteRegisters(desc.Addr, words)
	if err != nil {
		c.setShouldReconnect()
		return &TransportError{Op: "write", Host: c.host, Err: fmt.Errorf("point %q: %w", name, err)}
	}

	return nil
}

// Host returns the device address this client talks to.
func (c *Client) Host() string {
	return c.host
}

// Close closes the underlying connection, if open.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.subClient == nil {
		return nil
	}
	c.shouldReconnect = true
	return c.subClient.Close()
}
