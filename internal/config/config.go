package config

import (
	"encoding/base64"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/pion/stun/v3"
	"github.com/pion/webrtc/v4"
)

const DefaultPersistTimeout = 5 * time.Second

var storeDrivers = []string{"postgres", "mongo", "sqlite", "memory"}

type Config struct {
	ServerAddr     string
	StoreDriver    string
	DatabaseDSN    string
	SigningKey     []byte
	AllowedOrigins []string
	RequireAuth    bool
	ICEServers     []webrtc.ICEServer
	PersistTimeout time.Duration
}

// Params are the raw, unvalidated settings collected from flags and the
// environment.
type Params struct {
	ServerAddr     string
	StoreDriver    string
	DatabaseDSN    string
	SigningKey     string
	AllowedOrigins []string
	RequireAuth    bool
	ICEServerURLs  []string
	TURNUsername   string
	TURNCredential string
	PersistTimeout time.Duration
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(base64Secret)
	if err != nil {
		return nil, err
	}
	if len(key) == 0 {
		return nil, fmt.Errorf("signing secret is empty")
	}
	return key, nil
}

func NewConfig(p Params) (*Config, error) {
	if p.ServerAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if !slices.Contains(storeDrivers, p.StoreDriver) {
		return nil, fmt.Errorf("unsupported store driver %q, expected one of %s", p.StoreDriver, strings.Join(storeDrivers, ", "))
	}
	if p.DatabaseDSN == "" && p.StoreDriver != "memory" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	if p.SigningKey == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}

	signingKey, err := decodeSigningSecret(p.SigningKey)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	iceServers, err := buildICEServers(p.ICEServerURLs, p.TURNUsername, p.TURNCredential)
	if err != nil {
		return nil, fmt.Errorf("ice servers: %w", err)
	}

	persistTimeout := p.PersistTimeout
	if persistTimeout <= 0 {
		persistTimeout = DefaultPersistTimeout
	}

	return &Config{
		ServerAddr:     p.ServerAddr,
		StoreDriver:    p.StoreDriver,
		DatabaseDSN:    p.DatabaseDSN,
		SigningKey:     signingKey,
		AllowedOrigins: p.AllowedOrigins,
		RequireAuth:    p.RequireAuth,
		ICEServers:     iceServers,
		PersistTimeout: persistTimeout,
	}, nil
}

// buildICEServers groups STUN urls into one server and TURN urls, which carry
// credentials, into another.
func buildICEServers(urls []string, username, credential string) ([]webrtc.ICEServer, error) {
	var stunURLs, turnURLs []string
	for _, raw := range urls {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}

		uri, err := stun.ParseURI(raw)
		if err != nil {
			return nil, fmt.Errorf("parse %q: %w", raw, err)
		}

		switch uri.Scheme {
		case stun.SchemeTypeSTUN, stun.SchemeTypeSTUNS:
			stunURLs = append(stunURLs, raw)
		case stun.SchemeTypeTURN, stun.SchemeTypeTURNS:
			turnURLs = append(turnURLs, raw)
		}
	}

	var servers []webrtc.ICEServer
	if len(stunURLs) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: stunURLs})
	}
	if len(turnURLs) > 0 {
		if username == "" || credential == "" {
			return nil, fmt.Errorf("turn servers require a username and credential")
		}
		servers = append(servers, webrtc.ICEServer{
			URLs:       turnURLs,
			Username:   username,
			Credential: credential,
		})
	}

	return servers, nil
}
