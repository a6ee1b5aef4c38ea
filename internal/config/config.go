// Licensed to LinDB under one or more contributor
// license agreements. See the NOTICE file distributed with
// this work for additional information regarding copyright
// ownership. LinDB licenses this file to you under
// the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

// Package config loads the sequenced executor's tunables once, at process
// start, from a TOML file. It deliberately does not watch, subscribe to,
// or reload that file: distribution and live reconfiguration of config
// belong to a layer above this module's scope.
package config

import (
	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// Executor carries the constructor arguments for concurrent.SequencedExecutor.
type Executor struct {
	NumStrands int `toml:"num-strands"`
	NumThreads int `toml:"num-threads"`
	MaxWaiting int `toml:"max-waiting"`
	MaxPending int `toml:"max-pending"`
}

// DefaultExecutor returns sane defaults for a small demo run.
func DefaultExecutor() Executor {
	return Executor{NumStrands: 16, NumThreads: 4, MaxWaiting: 8, MaxPending: 1000}
}

// Validate enforces the preconditions spec.md §6 places on construction.
func (c Executor) Validate() error {
	if c.NumStrands <= 0 {
		return errors.New("config: num-strands must be positive")
	}
	if c.NumThreads <= 0 || c.NumThreads > 255 {
		return errors.New("config: num-threads must be in (0, 255]")
	}
	if c.MaxWaiting <= 0 {
		return errors.New("config: max-waiting must be positive")
	}
	if c.MaxPending <= 0 {
		return errors.New("config: max-pending must be positive")
	}
	return nil
}

// Load reads an Executor config from path, starting from DefaultExecutor
// so a partial file only overrides the fields it sets.
func Load(path string) (Executor, error) {
	cfg := DefaultExecutor()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Executor{}, errors.Wrapf(err, "config: failed to load %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return Executor{}, err
	}
	return cfg, nil
}
