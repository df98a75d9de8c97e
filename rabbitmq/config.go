package rabbitmq

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rabbitmq/amqp091-go"
)

// ExchangeType represents a type of exchange.
type ExchangeType string

const (
	// ExchangeTypeDirect represents a direct exchange
	// this is where a message is posted to bound queues where the routing key matches exactly.
	ExchangeTypeDirect ExchangeType = "direct"
	// ExchangeTypeFanout represents a fanout exchange
	// this is where the routing key is ignored and all bound queues receive a copy of the message.
	ExchangeTypeFanout ExchangeType = "fanout"
	// ExchangeTypeTopic represents a topic exchange
	// this extends on top of a direct exchange by allowing the routing key to be pattern based rather
	// than having to match exactly.
	ExchangeTypeTopic ExchangeType = "topic"
	// ExchangeTypeHeaders represents a headers exchange
	// this is where one or more headers are used to route the message
	ExchangeTypeHeaders ExchangeType = "headers"
)

// valid reports whether t is one of the known exchange types.
func (t ExchangeType) valid() bool {
	switch t {
	case ExchangeTypeDirect, ExchangeTypeFanout, ExchangeTypeTopic, ExchangeTypeHeaders:
		return true
	}
	return false
}

// supported login methods.
const (
	LoginMethodAMQPlain = "AMQPLAIN"
	LoginMethodPlain    = "PLAIN"
)

const (
	defaultHost        = "localhost"
	defaultPort        = 5672
	defaultUsername    = "guest"
	defaultPassword    = "guest"
	defaultVhost       = "/"
	defaultLoginMethod = LoginMethodAMQPlain

	// defaultDialTimeout matches the amqp091 default when no timeout is configured.
	defaultDialTimeout = 30 * time.Second

	// prefetchCount the amount of unacknowledged messages the broker hands to a consumer at once.
	prefetchCount = 1
)

// ClientConfig holds the broker connection parameters.
type ClientConfig struct {
	Host     string `envconfig:"HOST" default:"localhost"`
	Port     int    `envconfig:"PORT" default:"5672"`
	Username string `envconfig:"USERNAME" default:"guest"`
	Password string `envconfig:"PASSWORD" default:"guest"`
	Vhost    string `envconfig:"VHOST" default:"/"`
	// Insist is accepted for compatibility only. AMQP 0-9-1 deprecates it and it is never sent.
	Insist      bool   `envconfig:"INSIST"`
	LoginMethod string `envconfig:"LOGIN_METHOD" default:"AMQPLAIN"`
}

// ExchangeConfig describes the exchange the queue is bound to.
// the queue is bound using its own name as the routing key.
type ExchangeConfig struct {
	Name       string       `envconfig:"NAME"`
	Type       ExchangeType `envconfig:"TYPE" default:"direct"`
	Passive    bool         `envconfig:"PASSIVE"`
	Durable    bool         `envconfig:"DURABLE"`
	AutoDelete bool         `envconfig:"AUTO_DELETE"`
}

// Config is the full configuration of a queue. It is copied on construction and never
// modified afterwards.
//
// Zero values fall back to the defaults documented on DefaultConfig.
type Config struct {
	// DefaultTimeout is used as the connection handshake timeout and as the wait
	// applied by WaitAndTake and WaitAndReserve when the caller passes jobqueue.DefaultWait.
	// zero means waits block until a message arrives or the context is done.
	DefaultTimeout time.Duration `envconfig:"DEFAULT_TIMEOUT"`

	Client ClientConfig `envconfig:"CLIENT"`

	// queue declaration flags.
	Passive    bool `envconfig:"PASSIVE"`
	Durable    bool `envconfig:"DURABLE"`
	Exclusive  bool `envconfig:"EXCLUSIVE"`
	AutoDelete bool `envconfig:"AUTO_DELETE"`

	// Arguments are broker specific queue arguments passed through verbatim, i.e. x-message-ttl.
	Arguments amqp091.Table `ignored:"true"`

	// Exchange when set is declared and the queue is bound to it.
	Exchange *ExchangeConfig `envconfig:"EXCHANGE"`
}

// DefaultConfig returns the configuration used when nothing is overridden:
// localhost:5672, guest/guest, vhost "/", AMQPLAIN, no timeout, all queue flags off
// and no exchange (messages are published through the default exchange).
func DefaultConfig() Config {
	return Config{
		Client: ClientConfig{
			Host:        defaultHost,
			Port:        defaultPort,
			Username:    defaultUsername,
			Password:    defaultPassword,
			Vhost:       defaultVhost,
			LoginMethod: defaultLoginMethod,
		},
	}
}

// ConfigFromEnv loads a Config from environment variables using prefix,
// i.e. with the prefix JOBQUEUE the host is read from JOBQUEUE_CLIENT_HOST
// and the exchange name from JOBQUEUE_EXCHANGE_NAME.
func ConfigFromEnv(prefix string) (Config, error) {
	var c Config
	if err := envconfig.Process(prefix, &c); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	// envconfig always allocates nested pointers.
	if c.Exchange != nil && c.Exchange.Name == "" {
		c.Exchange = nil
	}

	return c.withDefaults(), nil
}

// withDefaults returns a copy of c where zero values are replaced with defaults.
func (c Config) withDefaults() Config {
	d := DefaultConfig().Client
	if c.Client.Host == "" {
		c.Client.Host = d.Host
	}
	if c.Client.Port == 0 {
		c.Client.Port = d.Port
	}
	if c.Client.Username == "" {
		c.Client.Username = d.Username
	}
	if c.Client.Password == "" {
		c.Client.Password = d.Password
	}
	if c.Client.Vhost == "" {
		c.Client.Vhost = d.Vhost
	}
	if c.Client.LoginMethod == "" {
		c.Client.LoginMethod = d.LoginMethod
	}

	if c.Exchange != nil {
		ex := *c.Exchange
		if ex.Type == "" {
			ex.Type = ExchangeTypeDirect
		}
		c.Exchange = &ex
	}

	if c.Arguments != nil {
		args := make(amqp091.Table, len(c.Arguments))
		for k, v := range c.Arguments {
			args[k] = v
		}
		c.Arguments = args
	}

	return c
}

// Validate checks the configuration after defaults have been applied.
func (c Config) Validate() error {
	c = c.withDefaults()

	if c.DefaultTimeout < 0 {
		return fmt.Errorf("%w: default timeout must not be negative", ErrInvalidConfig)
	}
	if c.Client.Port < 1 || c.Client.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, c.Client.Port)
	}

	switch c.Client.LoginMethod {
	case LoginMethodAMQPlain, LoginMethodPlain:
	default:
		return fmt.Errorf("%w: unsupported login method %q", ErrInvalidConfig, c.Client.LoginMethod)
	}

	if c.Exchange != nil {
		if c.Exchange.Name == "" {
			return fmt.Errorf("%w: exchange name is required", ErrInvalidConfig)
		}
		if !c.Exchange.Type.valid() {
			return fmt.Errorf("%w: unsupported exchange type %q", ErrInvalidConfig, c.Exchange.Type)
		}
	}

	return nil
}

// addr returns the broker url, credentials and vhost are passed separately.
func (c Config) addr() string {
	return "amqp://" + net.JoinHostPort(c.Client.Host, strconv.Itoa(c.Client.Port))
}

// exchangeName the exchange to publish to, empty for the default exchange.
func (c Config) exchangeName() string {
	if c.Exchange == nil {
		return ""
	}
	return c.Exchange.Name
}

// authentication returns the SASL mechanism for the configured login method.
func (c Config) authentication() amqp091.Authentication {
	if c.Client.LoginMethod == LoginMethodPlain {
		return &amqp091.PlainAuth{Username: c.Client.Username, Password: c.Client.Password}
	}
	return &amqp091.AMQPlainAuth{Username: c.Client.Username, Password: c.Client.Password}
}

// amqpConfig builds the amqp091 configuration used to dial the broker.
// the dial honours ctx and DefaultTimeout bounds both the dial and the handshake.
func (c Config) amqpConfig(ctx context.Context, connectionName string) amqp091.Config {
	timeout := c.DefaultTimeout
	if timeout == 0 {
		timeout = defaultDialTimeout
	}

	props := amqp091.NewConnectionProperties()
	if connectionName != "" {
		props.SetClientConnectionName(connectionName)
	}

	return amqp091.Config{
		SASL:       []amqp091.Authentication{c.authentication()},
		Vhost:      c.Client.Vhost,
		Locale:     "en_US",
		Properties: props,
		Dial:       contextDialer(ctx, timeout),
	}
}

// contextDialer behaves like amqp091.DefaultDial while also honouring ctx.
// amqp091 clears the deadline once the handshake has completed.
func contextDialer(ctx context.Context, timeout time.Duration) func(network, addr string) (net.Conn, error) {
	return func(network, addr string) (net.Conn, error) {
		d := net.Dialer{Timeout: timeout}
		conn, err := d.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}

		if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
			_ = conn.Close()
			return nil, err
		}

		return conn, nil
	}
}
