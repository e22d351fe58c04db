package session

import (
	"fmt"
	"net"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Opener hands out the established stream a session runs over.
// transport.Transport satisfies it.
type Opener interface {
	Open() (net.Conn, error)
}

// Handler receives session events. Methods are called from paho and client
// goroutines and must not block.
type Handler interface {
	OnConnected()
	OnDisconnected(err error)
	OnStateChanged(state State)
	OnErrorChanged(code ErrorCode)
	OnProbeResponse(probeID string)
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Client is an MQTT session over a stream obtained from a bound Opener.
//
// Every Connect builds a fresh paho client; events from an earlier session
// are dropped, so State always describes the latest one. paho never dials
// or reconnects on its own.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	opts   Options
	logger Logger

	mu        sync.Mutex
	host      string
	port      int
	clientID  string
	keepAlive time.Duration
	opener    Opener
	handler   Handler

	mqtt    pahomqtt.Client
	gen     uint64
	state   State
	errCode ErrorCode
}

// New creates a disconnected session client.
func New(opts Options) *Client {
	return &Client{
		opts:      opts.withDefaults(),
		logger:    noopLogger{},
		keepAlive: defaultKeepAlive,
		state:     StateDisconnected,
	}
}

// SetLogger sets a logger for session diagnostics.
func (c *Client) SetLogger(logger Logger) {
	c.logger = logger
}

// SetEndpoint sets the broker host and port.
func (c *Client) SetEndpoint(host string, port int) {
	c.mu.Lock()
	c.host, c.port = host, port
	c.mu.Unlock()
}

// SetIdentity sets the MQTT client identifier.
func (c *Client) SetIdentity(clientID string) {
	c.mu.Lock()
	c.clientID = clientID
	c.mu.Unlock()
}

// SetKeepAlive sets the MQTT keep-alive interval used from the next Connect.
func (c *Client) SetKeepAlive(d time.Duration) {
	c.mu.Lock()
	c.keepAlive = d
	c.mu.Unlock()
}

// BindTransport sets where the session gets its stream from.
func (c *Client) BindTransport(opener Opener) {
	c.mu.Lock()
	c.opener = opener
	c.mu.Unlock()
}

// SetHandler sets the receiver of session events.
func (c *Client) SetHandler(h Handler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

// State returns the current session state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Error returns the last session error code.
func (c *Client) Error() ErrorCode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errCode
}

// Connect starts a session over the bound transport and returns without
// waiting for CONNACK. The outcome arrives through the Handler. A session
// that is still connecting is abandoned in favour of the new one.
func (c *Client) Connect() error {
	c.mu.Lock()
	if c.opener == nil {
		c.mu.Unlock()
		return ErrNoTransport
	}
	if c.host == "" || c.clientID == "" {
		c.mu.Unlock()
		return ErrNoEndpoint
	}
	if c.state == StateConnected {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}

	stale := c.mqtt
	c.gen++
	gen := c.gen

	opts := buildClientOptions(c.opts, c.host, c.port, c.clientID, c.keepAlive, c.opener)
	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect(gen)
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleLost(gen, err)
	})

	client := pahomqtt.NewClient(opts)
	c.mqtt = client
	c.mu.Unlock()

	if stale != nil {
		stale.Disconnect(0)
	}

	c.setState(gen, StateConnecting)
	token := client.Connect()
	go c.awaitConnect(gen, token)

	return nil
}

// Disconnect closes the session. OnDisconnected is reported if a session
// was open.
func (c *Client) Disconnect() {
	c.mu.Lock()
	client := c.mqtt
	c.mqtt = nil
	c.gen++
	prev := c.state
	c.state = StateDisconnected
	h := c.handler
	c.mu.Unlock()

	if client != nil {
		client.Disconnect(c.opts.DisconnectQuiesce)
	}

	if prev == StateDisconnected || h == nil {
		return
	}
	h.OnStateChanged(StateDisconnected)
	if prev == StateConnected {
		h.OnDisconnected(nil)
	}
}

// awaitConnect reports a failed session attempt.
func (c *Client) awaitConnect(gen uint64, token pahomqtt.Token) {
	if !token.WaitTimeout(c.opts.ConnectTimeout + time.Second) {
		c.handleFailed(gen, ErrorTransportInvalid, ErrConnectTimeout)
		return
	}
	if err := token.Error(); err != nil {
		code := ErrorTransportInvalid
		if ct, ok := token.(*pahomqtt.ConnectToken); ok {
			if rc := codeFromReturn(ct.ReturnCode()); rc != ErrorNone {
				code = rc
			}
		}
		c.handleFailed(gen, code, err)
	}
}

func (c *Client) handleConnect(gen uint64) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.state = StateConnected
	errChanged := c.errCode != ErrorNone
	c.errCode = ErrorNone
	h := c.handler
	c.mu.Unlock()

	if h == nil {
		return
	}
	if errChanged {
		h.OnErrorChanged(ErrorNone)
	}
	h.OnStateChanged(StateConnected)
	h.OnConnected()
}

func (c *Client) handleFailed(gen uint64, code ErrorCode, err error) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	client := c.mqtt
	c.mqtt = nil
	c.state = StateDisconnected
	c.errCode = code
	h := c.handler
	c.mu.Unlock()

	c.logger.Debug("session attempt failed", "code", code.String(), "error", err)
	if client != nil {
		client.Disconnect(0)
	}
	if h != nil {
		h.OnErrorChanged(code)
		h.OnStateChanged(StateDisconnected)
	}
}

func (c *Client) handleLost(gen uint64, err error) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.mqtt = nil
	c.state = StateDisconnected
	c.errCode = ErrorTransportInvalid
	h := c.handler
	c.mu.Unlock()

	c.logger.Debug("session lost", "error", err)
	if h != nil {
		h.OnErrorChanged(ErrorTransportInvalid)
		h.OnStateChanged(StateDisconnected)
		h.OnDisconnected(fmt.Errorf("session lost: %w", err))
	}
}

func (c *Client) setState(gen uint64, state State) {
	c.mu.Lock()
	if c.gen != gen || c.state == state {
		c.mu.Unlock()
		return
	}
	c.state = state
	h := c.handler
	c.mu.Unlock()

	if h != nil {
		h.OnStateChanged(state)
	}
}
