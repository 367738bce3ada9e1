package lidnet

import (
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// IncomingMessageType enables or disables non-data events released to
// the application. Bits combine with bitwise OR.
type IncomingMessageType uint32

const (
	TypeDataMessages IncomingMessageType = 1 << iota
	TypeStatusChanged
	TypeDiscoveryEvent
	TypeDiscoveryResponseEvent
	TypeNatIntroductionSuccess
	TypeWarningMessage
	TypeConnectionApproval
	TypeUnconnectedData

	TypeAll = TypeDataMessages | TypeStatusChanged | TypeDiscoveryEvent |
		TypeDiscoveryResponseEvent | TypeNatIntroductionSuccess |
		TypeWarningMessage | TypeConnectionApproval | TypeUnconnectedData
)

func (m IncomingMessageType) enabled(t IncomingMessageType) bool { return m&t != 0 }

// Configuration holds every tuning parameter a Peer reads at Start() and
// treats as immutable thereafter. Validate does not fill in zero-value
// fields; DefaultConfiguration returns a populated starting point.
type Configuration struct {
	// AppIdentifier must match between both peers of a handshake or the
	// connection is refused with ReasonAppIdentMismatch.
	AppIdentifier string

	// LocalAddress is the address to bind; empty binds all interfaces.
	LocalAddress string
	// Port to bind; 0 asks the OS for an ephemeral port.
	Port int
	// BroadcastAddress used by SendDiscoveryRequest's broadcast form.
	BroadcastAddress string
	// DualStack requests a dual-stack IPv6 socket when LocalAddress is
	// an IPv6 address or empty.
	DualStack bool

	MaximumConnections int

	ReceiveBufferSize              int
	SendBufferSize                 int
	DefaultOutgoingMessageCapacity int

	PingInterval      time.Duration
	ConnectionTimeout time.Duration

	ResendHandshakeInterval  time.Duration
	MaximumHandshakeAttempts int

	AutoFlushSendQueue bool

	MaximumTransmissionUnit int
	AutoExpandMTU           bool
	ExpandMTUFailAttempts   int
	ExpandMTUFrequency      time.Duration

	// SimulatedLoss is the probability, in [0,1), that an outbound
	// datagram is silently dropped. Debug-only.
	SimulatedLoss             float64
	SimulatedMinimumLatency   time.Duration
	SimulatedRandomLatency    time.Duration
	SimulatedDuplicatesChance float64

	EnabledMessageTypes IncomingMessageType

	// Logger receives structured log output.
	// Defaults to a discard logger when nil.
	Logger *logrus.Logger
}

// DefaultConfiguration returns a Configuration with reasonable defaults
// for every field and AppIdentifier set to appIdentifier.
func DefaultConfiguration(appIdentifier string) *Configuration {
	return &Configuration{
		AppIdentifier: appIdentifier,

		MaximumConnections: 32,

		ReceiveBufferSize:              131072,
		SendBufferSize:                 131072,
		DefaultOutgoingMessageCapacity: 16,

		PingInterval:      4 * time.Second,
		ConnectionTimeout: 25 * time.Second,

		ResendHandshakeInterval:  3 * time.Second,
		MaximumHandshakeAttempts: 5,

		AutoFlushSendQueue: true,

		MaximumTransmissionUnit: 512,
		AutoExpandMTU:           false,
		ExpandMTUFailAttempts:   5,
		ExpandMTUFrequency:      2 * time.Second,

		EnabledMessageTypes: TypeDataMessages | TypeStatusChanged | TypeWarningMessage,
	}
}

func (c *Configuration) logger() *logrus.Logger {
	if c.Logger == nil {
		return newDiscardLogger()
	}
	return c.Logger
}

// Validate checks the configuration for internal consistency. NewPeer
// calls this and returns any error to its own caller.
func (c *Configuration) Validate() error {
	if c.AppIdentifier == "" {
		return errors.New("lidnet: Configuration.AppIdentifier must not be empty")
	}
	if c.MaximumConnections <= 0 {
		return errors.New("lidnet: Configuration.MaximumConnections must be positive")
	}
	if c.MaximumTransmissionUnit < minimumMTU {
		return errors.Errorf("lidnet: Configuration.MaximumTransmissionUnit must be >= %d", minimumMTU)
	}
	if c.PingInterval <= 0 || c.ConnectionTimeout <= 0 {
		return errors.New("lidnet: PingInterval and ConnectionTimeout must be positive")
	}
	if c.ConnectionTimeout <= c.PingInterval {
		return errors.New("lidnet: ConnectionTimeout must be greater than PingInterval")
	}
	if c.MaximumHandshakeAttempts <= 0 {
		return errors.New("lidnet: MaximumHandshakeAttempts must be positive")
	}
	return nil
}
