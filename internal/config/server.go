package config

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

// Server is the runtime configuration read from the TOML file.
type Server struct {
	BrokerHost string `toml:"broker_host"`
	BrokerPort int    `toml:"broker_port"`
	ClientID   string `toml:"client_id"`
	Namespace  string `toml:"namespace"`

	MapFile     string `toml:"map"`
	AbilityFile string `toml:"abilities"`
	EntityFile  string `toml:"entities"`

	MaxPlayers  int    `toml:"max_players"`
	TickRate    int    `toml:"tick_rate"`
	Seed        string `toml:"seed"`
	DefaultHero string `toml:"default_hero"`

	HTTPAddr string   `toml:"http_addr"`
	LogSinks []string `toml:"log_sinks"`
	LogFile  string   `toml:"log_file"`
}

type serverFile struct {
	Server Server `toml:"server"`
}

// Defaults per the runtime contract: 10 Hz ticks, 10 000 players.
func (s Server) normalized() Server {
	if s.BrokerHost == "" {
		s.BrokerHost = "127.0.0.1"
	}
	if s.BrokerPort <= 0 {
		s.BrokerPort = 1883
	}
	if s.ClientID == "" {
		s.ClientID = "warlane-server"
	}
	if s.Namespace == "" {
		s.Namespace = "warlane"
	}
	if s.MaxPlayers <= 0 {
		s.MaxPlayers = 10_000
	}
	if s.TickRate <= 0 {
		s.TickRate = 10
	}
	if s.HTTPAddr == "" {
		s.HTTPAddr = ":8080"
	}
	if len(s.LogSinks) == 0 {
		s.LogSinks = []string{"console"}
	}
	return s
}

// BrokerURL renders the tcp address paho dials.
func (s Server) BrokerURL() string {
	return fmt.Sprintf("tcp://%s:%d", s.BrokerHost, s.BrokerPort)
}

// LoadServer reads and normalizes the TOML server settings.
func LoadServer(path string) (Server, error) {
	var file serverFile
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return Server{}, fmt.Errorf("server config: %w", err)
	}
	cfg := file.Server.normalized()
	if strings.TrimSpace(cfg.MapFile) == "" {
		return Server{}, fmt.Errorf("server config: map path is required")
	}
	if strings.TrimSpace(cfg.AbilityFile) == "" {
		return Server{}, fmt.Errorf("server config: abilities path is required")
	}
	if strings.TrimSpace(cfg.EntityFile) == "" {
		return Server{}, fmt.Errorf("server config: entities path is required")
	}
	return cfg, nil
}

// ParseServer decodes TOML server settings from memory (tests).
func ParseServer(raw string) (Server, error) {
	var file serverFile
	if _, err := toml.Decode(raw, &file); err != nil {
		return Server{}, fmt.Errorf("server config: %w", err)
	}
	return file.Server.normalized(), nil
}
