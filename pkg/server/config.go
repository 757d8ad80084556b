package server

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultEndpointPath is the fixed path of the subscription endpoint.
const DefaultEndpointPath = "/subscription"

// Config holds configuration for the HTTP/WebSocket server and its
// connections.
type Config struct {
	// Address is the address to listen on (e.g., ":8080" or "localhost:3000").
	// Default: ":8080".
	Address string

	// EndpointPath is where clients open the subscription channel.
	// Default: "/subscription".
	EndpointPath string

	// ReadBufferSize is the WebSocket read buffer size.
	// Default: 4096.
	ReadBufferSize int

	// WriteBufferSize is the WebSocket write buffer size.
	// Default: 4096.
	WriteBufferSize int

	// CheckOrigin is called to validate the request origin.
	// Default: SameOriginCheck.
	CheckOrigin func(r *http.Request) bool

	// IdleTimeout closes a connection that receives nothing for this long.
	// Zero means connections never time out, which is the default: a model
	// can be observed for hours without the client sending anything.
	IdleTimeout time.Duration

	// WriteTimeout is the maximum time to wait when sending a message.
	// Default: 10 seconds.
	WriteTimeout time.Duration

	// MaxMessageSize is the maximum size of an incoming message.
	// Default: 1MB.
	MaxMessageSize int64

	// MaxConnections is the maximum number of concurrent connections.
	// 0 means no limit.
	MaxConnections int

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	// Default: 30 seconds.
	ShutdownTimeout time.Duration

	// ReadHeaderTimeout bounds reading request headers on the HTTP server.
	// Default: 10 seconds.
	ReadHeaderTimeout time.Duration

	// TrustedProxies lists proxy IPs or CIDRs whose Forwarded and
	// X-Forwarded-For headers are believed when recording client addresses.
	TrustedProxies []string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Address:           ":8080",
		EndpointPath:      DefaultEndpointPath,
		ReadBufferSize:    4096,
		WriteBufferSize:   4096,
		CheckOrigin:       SameOriginCheck,
		IdleTimeout:       0,
		WriteTimeout:      10 * time.Second,
		MaxMessageSize:    1 << 20,
		MaxConnections:    0,
		ShutdownTimeout:   30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// SameOriginCheck accepts requests without an Origin header and requests
// whose Origin host equals the request host.
func SameOriginCheck(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if r.Host == "" {
		return false
	}
	return originURL.Host == r.Host
}

// AllowOrigins returns an origin check accepting the listed origins in
// addition to same-origin requests. A "*" entry accepts every origin.
func AllowOrigins(origins ...string) func(r *http.Request) bool {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		allowed[strings.TrimRight(strings.ToLower(o), "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		if SameOriginCheck(r) {
			return true
		}
		_, ok := allowed[strings.TrimRight(strings.ToLower(r.Header.Get("Origin")), "/")]
		return ok
	}
}

// Clone returns a copy of the Config.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	clone.TrustedProxies = append([]string(nil), c.TrustedProxies...)
	return &clone
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	if !strings.HasPrefix(c.EndpointPath, "/") {
		errs = append(errs, fmt.Errorf("endpoint path %q must start with /", c.EndpointPath))
	}
	if c.IdleTimeout < 0 {
		errs = append(errs, errors.New("idle timeout must not be negative"))
	}
	if c.WriteTimeout < 0 {
		errs = append(errs, errors.New("write timeout must not be negative"))
	}
	if c.ShutdownTimeout < 0 {
		errs = append(errs, errors.New("shutdown timeout must not be negative"))
	}
	if c.MaxConnections < 0 {
		errs = append(errs, errors.New("max connections must not be negative"))
	}
	if c.MaxMessageSize < 0 {
		errs = append(errs, errors.New("max message size must not be negative"))
	}
	if _, err := parseProxies(c.TrustedProxies); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("server: invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// withDefaults fills unset fields from DefaultConfig.
func (c *Config) withDefaults() *Config {
	if c == nil {
		return DefaultConfig()
	}
	out := c.Clone()
	defaults := DefaultConfig()
	if out.Address == "" {
		out.Address = defaults.Address
	}
	if out.EndpointPath == "" {
		out.EndpointPath = defaults.EndpointPath
	}
	if out.ReadBufferSize == 0 {
		out.ReadBufferSize = defaults.ReadBufferSize
	}
	if out.WriteBufferSize == 0 {
		out.WriteBufferSize = defaults.WriteBufferSize
	}
	if out.CheckOrigin == nil {
		out.CheckOrigin = defaults.CheckOrigin
	}
	if out.WriteTimeout == 0 {
		out.WriteTimeout = defaults.WriteTimeout
	}
	if out.MaxMessageSize == 0 {
		out.MaxMessageSize = defaults.MaxMessageSize
	}
	if out.ShutdownTimeout == 0 {
		out.ShutdownTimeout = defaults.ShutdownTimeout
	}
	if out.ReadHeaderTimeout == 0 {
		out.ReadHeaderTimeout = defaults.ReadHeaderTimeout
	}
	return out
}

// WithAddress sets the server address and returns the config for chaining.
func (c *Config) WithAddress(addr string) *Config {
	c.Address = addr
	return c
}

// WithEndpointPath sets the subscription path and returns the config for chaining.
func (c *Config) WithEndpointPath(path string) *Config {
	c.EndpointPath = path
	return c
}

// WithIdleTimeout sets the idle timeout and returns the config for chaining.
func (c *Config) WithIdleTimeout(d time.Duration) *Config {
	c.IdleTimeout = d
	return c
}

// WithMaxConnections sets the connection limit and returns the config for chaining.
func (c *Config) WithMaxConnections(max int) *Config {
	c.MaxConnections = max
	return c
}

// WithCheckOrigin sets the origin check and returns the config for chaining.
func (c *Config) WithCheckOrigin(fn func(r *http.Request) bool) *Config {
	c.CheckOrigin = fn
	return c
}

// WithTrustedProxies sets the trusted proxies and returns the config for chaining.
func (c *Config) WithTrustedProxies(entries ...string) *Config {
	c.TrustedProxies = entries
	return c
}
