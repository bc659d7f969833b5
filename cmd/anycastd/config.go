// Copyright 2015 The MOAC-core Authors
// This file is part of MOAC-core.
//
// MOAC-core is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// MOAC-core is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with MOAC-core. If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"io/ioutil"
	"time"

	"github.com/naoina/toml"
)

// NodeConfig describes one simulated mote in the demo mesh.
type NodeConfig struct {
	Name    string
	Address uint16
	Listens []uint8
}

// Config is the anycastd demo's toml configuration, loaded the same
// way the source's node config is loaded elsewhere in the pack:
// naoina/toml unmarshaled directly into a plain struct, no env
// overrides, no defaults-merging layer.
type Config struct {
	Channels int
	Cache    bool
	Timeout  time.Duration
	Nodes    []NodeConfig
}

func defaultConfig() *Config {
	return &Config{
		Channels: 11,
		Cache:    false,
		Timeout:  10 * time.Second,
		Nodes: []NodeConfig{
			{Name: "server", Address: 2, Listens: []uint8{50}},
			{Name: "client", Address: 1},
		},
	}
}

func loadConfig(path string) (*Config, error) {
	if path == "" {
		return defaultConfig(), nil
	}
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := defaultConfig()
	if err := toml.Unmarshal(raw, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
