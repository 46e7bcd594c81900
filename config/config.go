// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/pelletier/go-toml"
	"github.com/sirupsen/logrus"
)

// Limits are the static ceilings enforced by the compositor core. They are
// read once at startup and never change for the life of a server.
type Limits struct {
	// Maximum number of simultaneously connected clients
	MaxClients uint32 `envconfig:"MAX_CLIENTS,omitempty" toml:"max_clients,omitempty"`
	// Maximum number of live surfaces a single client may hold
	MaxSurfacesPerClient uint32 `envconfig:"MAX_SURFACES_PER_CLIENT,omitempty" toml:"max_surfaces_per_client,omitempty"`
	// Maximum number of live shm pools a single client may hold
	MaxPoolsPerClient uint32 `envconfig:"MAX_POOLS_PER_CLIENT,omitempty" toml:"max_pools_per_client,omitempty"`
	// Maximum size of a single shm pool in bytes
	MaxPoolSize int64 `envconfig:"MAX_POOL_SIZE,omitempty" toml:"max_pool_size,omitempty"`
}

// Output describes one configured monitor
type Output struct {
	Name string `toml:"name"`
	// Position in the global layout
	X int32 `toml:"x,omitempty"`
	Y int32 `toml:"y,omitempty"`
	// Current mode in pixel
	Width  int32 `toml:"width"`
	Height int32 `toml:"height"`
	// Physical dimensions in millimeters
	PhysicalWidth  int32 `toml:"physical_width,omitempty"`
	PhysicalHeight int32 `toml:"physical_height,omitempty"`
	// Refresh rate in millihertz
	RefreshRate int32 `toml:"refresh_rate,omitempty"`
	// Output transform, 0-7 as defined by wl_output
	Transform int32 `toml:"transform,omitempty"`
	// Subpixel layout, 0-5 as defined by wl_output
	Subpixel int32  `toml:"subpixel,omitempty"`
	Make     string `toml:"make,omitempty"`
	Model    string `toml:"model,omitempty"`
}

type Config struct {
	// Name of the wayland socket the transport should listen on
	SocketName string `envconfig:"SOCKET_NAME,omitempty" toml:"socket_name,omitempty"`
	Limits     Limits `toml:"limits,omitempty"`
	// Monitors to expose as wl_output globals. At least one is required
	Outputs []Output `toml:"outputs,omitempty"`
}

// Default returns the built-in configuration: one 1920x1080@60 output and
// the stock ceilings (100 clients, 1000 surfaces and 10 pools per client,
// 64MiB pools).
func Default() Config {
	return Config{
		SocketName: "wayland-1",
		Limits: Limits{
			MaxClients:           100,
			MaxSurfacesPerClient: 1000,
			MaxPoolsPerClient:    10,
			MaxPoolSize:          64 * 1024 * 1024,
		},
		Outputs: []Output{
			{
				Name:           "default",
				Width:          1920,
				Height:         1080,
				PhysicalWidth:  527,
				PhysicalHeight: 296,
				RefreshRate:    60000,
				Make:           "cwc",
				Model:          "virtual",
			},
		},
	}
}

// DefaultPath is where Load looks when no explicit path is given
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, "cwc", "config.toml")
}

// Load reads the config file at path, or the default location if path is
// empty. A missing file is not an error, you just get the defaults.
func Load(path string) (Config, error) {
	conf := Default()
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			logrus.WithField("path", path).Debugln("No config file, using defaults")
			return conf, nil
		}
		return conf, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err = toml.Unmarshal(data, &conf); err != nil {
		return conf, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err = conf.Validate(); err != nil {
		return conf, fmt.Errorf("bad config file %s: %w", path, err)
	}
	logrus.WithField("path", path).Infoln("Loaded config file")
	return conf, nil
}

// Validate rejects configs the server cannot run with
func (c *Config) Validate() error {
	if c.SocketName == "" {
		return fmt.Errorf("socket_name must not be empty")
	}
	if c.Limits.MaxClients == 0 {
		return fmt.Errorf("max_clients must be at least 1")
	}
	if c.Limits.MaxSurfacesPerClient == 0 {
		return fmt.Errorf("max_surfaces_per_client must be at least 1")
	}
	if c.Limits.MaxPoolsPerClient == 0 {
		return fmt.Errorf("max_pools_per_client must be at least 1")
	}
	if c.Limits.MaxPoolSize <= 0 {
		return fmt.Errorf("max_pool_size must be positive")
	}
	if len(c.Outputs) == 0 {
		return fmt.Errorf("at least one output is required")
	}
	return nil
}
