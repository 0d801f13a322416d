// Package config loads server and client settings from the environment.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/ledzpl/tchat/pkg/frame"
	"github.com/ledzpl/tchat/pkg/protocol"
)

// ErrInvalidAddr reports a HOST:PORT argument that cannot be parsed.
var ErrInvalidAddr = errors.New("invalid HOST:PORT address")

const fallbackHost = "127.0.0.1"

var validate = validator.New(validator.WithRequiredStructEnabled())

// Server is the chat server configuration.
type Server struct {
	Host            string        `env:"HOST"`
	Port            int           `env:"PORT,default=8080" validate:"min=1,max=65535"`
	Header          int           `env:"HEADER,default=64" validate:"min=1,max=1024"`
	Format          string        `env:"FORMAT,default=utf-8" validate:"required"`
	Disconnect      string        `env:"CLIENT_DISCONNECT_MESSAGE,default=!quit" validate:"required"`
	UsernameExists  string        `env:"USERNAME_EXISTS_MESSAGE,default=Username exists" validate:"required"`
	Proceed         string        `env:"PROCEED_MESSAGE,default=Proceed" validate:"required"`
	Empty           string        `env:"EMPTY_MESSAGE,default=Empty" validate:"required"`
	Error           string        `env:"ERROR_MESSAGE,default=Error encountered" validate:"required"`
	LogLevel        string        `env:"LOG_LEVEL,default=INFO" validate:"oneof=DEBUG INFO WARN ERROR"`
	AcceptTimeout   time.Duration `env:"ACCEPT_TIMEOUT,default=250ms" validate:"gt=0"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT,default=5s" validate:"gte=0"`
	MaxMessageBytes int           `env:"MAX_MESSAGE_BYTES,default=1048576" validate:"min=1"`
}

// LoadServer reads the server configuration from the environment, after
// loading an optional .env file from the working directory. An empty HOST
// resolves to this machine's address.
func LoadServer() (Server, error) {
	_ = godotenv.Load()

	var cfg Server
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Server{}, fmt.Errorf("config: %w", err)
	}
	if cfg.Host == "" {
		cfg.Host = LocalAddress()
	}
	if err := cfg.Validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

// Validate checks field ranges and that the sentinels are distinct.
func (c Server) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := c.Sentinels().Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Addr returns the bind address.
func (c Server) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// SetAddr overrides Host and Port from a HOST:PORT argument.
func (c *Server) SetAddr(addr string) error {
	host, port, err := ParseAddr(addr)
	if err != nil {
		return err
	}
	c.Host, c.Port = host, port
	return nil
}

// Sentinels returns the configured protocol sentinels.
func (c Server) Sentinels() protocol.Sentinels {
	return protocol.Sentinels{
		Disconnect:     c.Disconnect,
		UsernameExists: c.UsernameExists,
		Proceed:        c.Proceed,
		Empty:          c.Empty,
		Error:          c.Error,
	}
}

// Codec returns the frame codec for the configured header width and format.
func (c Server) Codec() (*frame.Codec, error) {
	return frame.NewCodec(c.Header, c.Format, frame.WithMaxSize(c.MaxMessageBytes))
}

// Client is the chat client configuration.
type Client struct {
	Host            string `envconfig:"HOST"`
	Port            int    `envconfig:"PORT" default:"8080"`
	Header          int    `envconfig:"HEADER" default:"64"`
	Format          string `envconfig:"FORMAT" default:"utf-8"`
	Disconnect      string `envconfig:"CLIENT_DISCONNECT_MESSAGE" default:"!quit"`
	UsernameExists  string `envconfig:"USERNAME_EXISTS_MESSAGE" default:"Username exists"`
	Proceed         string `envconfig:"PROCEED_MESSAGE" default:"Proceed"`
	Empty           string `envconfig:"EMPTY_MESSAGE" default:"Empty"`
	Error           string `envconfig:"ERROR_MESSAGE" default:"Error encountered"`
	LogLevel        string `envconfig:"LOG_LEVEL" default:"WARN"`
	MaxMessageBytes int    `envconfig:"MAX_MESSAGE_BYTES" default:"1048576"`
	// COLOURS enables colored message headers in the console.
	Colours bool `envconfig:"COLOURS" default:"true"`
}

// LoadClient reads the client configuration from the environment.
func LoadClient() (Client, error) {
	var cfg Client
	if err := envconfig.Process("", &cfg); err != nil {
		return Client{}, fmt.Errorf("config: %w", err)
	}
	if cfg.Host == "" {
		cfg.Host = LocalAddress()
	}
	if cfg.MaxMessageBytes < 1 {
		return Client{}, fmt.Errorf("config: MAX_MESSAGE_BYTES must be positive, got %d", cfg.MaxMessageBytes)
	}
	if err := cfg.Sentinels().Validate(); err != nil {
		return Client{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Addr returns the server address to dial.
func (c Client) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// SetAddr overrides Host and Port from a HOST:PORT argument.
func (c *Client) SetAddr(addr string) error {
	host, port, err := ParseAddr(addr)
	if err != nil {
		return err
	}
	c.Host, c.Port = host, port
	return nil
}

// Sentinels returns the configured protocol sentinels.
func (c Client) Sentinels() protocol.Sentinels {
	return protocol.Sentinels{
		Disconnect:     c.Disconnect,
		UsernameExists: c.UsernameExists,
		Proceed:        c.Proceed,
		Empty:          c.Empty,
		Error:          c.Error,
	}
}

// Codec returns the frame codec for the configured header width, format and
// message size limit.
func (c Client) Codec() (*frame.Codec, error) {
	return frame.NewCodec(c.Header, c.Format, frame.WithMaxSize(c.MaxMessageBytes))
}

// ParseAddr splits a HOST:PORT argument. Both parts are required.
func ParseAddr(addr string) (string, int, error) {
	host, portText, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrInvalidAddr, err)
	}
	if host == "" {
		return "", 0, fmt.Errorf("%w: missing host in %q", ErrInvalidAddr, addr)
	}
	port, err := strconv.Atoi(portText)
	if err != nil || port < 1 || port > 65535 {
		return "", 0, fmt.Errorf("%w: bad port %q", ErrInvalidAddr, portText)
	}
	return host, port, nil
}

// LocalAddress returns the first IPv4 address this machine's hostname
// resolves to, or 127.0.0.1.
func LocalAddress() string {
	name, err := os.Hostname()
	if err != nil {
		return fallbackHost
	}
	ips, err := net.LookupIP(name)
	if err != nil {
		return fallbackHost
	}
	for _, ip := range ips {
		if v4 := ip.To4(); v4 != nil {
			return v4.String()
		}
	}
	return fallbackHost
}
