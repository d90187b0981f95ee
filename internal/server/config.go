package server

import (
	"net"
	"strconv"
	"time"
)

const (
	// DefaultReadHeaderTimeout bounds the time to read request headers.
	DefaultReadHeaderTimeout = 10 * time.Second

	// DefaultIdleTimeout bounds the time a keep-alive connection is
	// kept open between requests.
	DefaultIdleTimeout = 120 * time.Second
)

type HttpConfig struct {
	Host string `conf:"host"`
	Port int    `conf:"port"`
	H2c  bool   `conf:"h2c"`
}

// Address returns the address to listen on.
func (c HttpConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
