package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// Default configuration values
const (
	DefaultPort      = "3000"
	DefaultServerURL = "ws://localhost:3000/ws"
	DefaultSTUN      = "stun:stun.l.google.com:19302"
)

// Server holds the signaling server configuration.
type Server struct {
	Port string
}

// ServerOptions carries CLI flag overrides for the server.
type ServerOptions struct {
	Port string
}

// LoadServer resolves server configuration with the following priority:
// 1. CLI flags (passed via ServerOptions)
// 2. Environment variables
// 3. Defaults
func LoadServer(opts ServerOptions) (*Server, error) {
	port := firstNonEmpty(opts.Port, os.Getenv("PORT"), DefaultPort)

	n, err := strconv.Atoi(port)
	if err != nil || n < 1 || n > 65535 {
		return nil, fmt.Errorf("invalid port %q", port)
	}

	return &Server{Port: port}, nil
}

// Addr returns the listen address.
func (c *Server) Addr() string {
	return ":" + c.Port
}

// Peer holds the configuration of a roulette client.
type Peer struct {
	// ServerURL is the signaling WebSocket endpoint.
	ServerURL string

	STUNServer string

	// Name is the display name announced to the server.
	Name string
}

// PeerOptions carries CLI flag overrides for a client.
type PeerOptions struct {
	ServerURL  string
	STUNServer string
	Name       string
}

// LoadPeer resolves client configuration: CLI flag > env > default.
func LoadPeer(opts PeerOptions) (*Peer, error) {
	serverURL := firstNonEmpty(opts.ServerURL, os.Getenv("ROULETTE_SERVER"), DefaultServerURL)
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server url %q: %w", serverURL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("server url %q must use ws or wss", serverURL)
	}

	stun := firstNonEmpty(opts.STUNServer, os.Getenv("STUN_SERVER"), DefaultSTUN)

	name := strings.TrimSpace(firstNonEmpty(opts.Name, os.Getenv("ROULETTE_NAME")))
	if name == "" {
		return nil, fmt.Errorf("a display name is required (--name or ROULETTE_NAME)")
	}

	return &Peer{
		ServerURL:  serverURL,
		STUNServer: stun,
		Name:       name,
	}, nil
}

// GetICEServers returns the ICE server URLs.
func (c *Peer) GetICEServers() []string {
	if c.STUNServer == "" {
		return nil
	}
	return []string{c.STUNServer}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
