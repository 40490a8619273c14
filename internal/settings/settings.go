// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package settings loads the shard's TOML configuration file,
// replacing the teacher's flag-only config stub with the pack's TOML
// idiom (spec §2a ambient stack).
package settings

import (
	"flag"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// Settings is the shard-wide configuration for a metad process.
type Settings struct {
	// ShardID identifies this repository/shard for ConfigFunc callers
	// (spec §6).
	ShardID uint32 `toml:"shard_id"`

	// RootDir is the base directory for this shard's on-disk state,
	// including the action log (spec §4.5).
	RootDir string `toml:"root_dir"`

	// LogStorePath is the action-log path, joined onto RootDir and
	// passed to LogStore.Open (spec §4.5, §6).
	LogStorePath string `toml:"log_store_path"`

	// MaxTables bounds the registry's tables[] slot array (spec §3).
	MaxTables uint32 `toml:"max_tables"`

	// MaxSchemasPerTable is read from the file but not passed to the
	// registry; the schema-history FIFO is always bounded by the
	// meta.MaxSchemasPerTable constant.
	MaxSchemasPerTable int `toml:"max_schemas_per_table"`

	// MaxNameLen is read from the file but not passed to the registry;
	// table names are always bounded by the meta.MaxNameLen constant.
	MaxNameLen int `toml:"max_name_len"`

	// StopTimeoutSeconds bounds graceful shutdown (internal/start).
	StopTimeoutSeconds int `toml:"stop_timeout_seconds"`
}

// Default returns the zero-value settings filled in with the
// package's documented defaults.
func Default() Settings {
	return Settings{
		RootDir:            ".",
		LogStorePath:       "meta.log",
		MaxTables:          4096,
		MaxSchemasPerTable: 16,
		MaxNameLen:         192,
		StopTimeoutSeconds: 30,
	}
}

var configPath = flag.String("config", "", "path to a TOML settings file")

// Load reads the file named by the -config flag (or path, if
// non-empty) over Default's baseline.
func Load(path string) (Settings, error) {
	s := Default()
	if path == "" {
		path = *configPath
	}
	if path == "" {
		return s, nil
	}
	if _, err := toml.DecodeFile(path, &s); err != nil {
		return Settings{}, errors.Wrap(err, "settings: decode "+path)
	}
	return s, nil
}
