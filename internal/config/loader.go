// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package config

import (
	"context"
	"flag"
	"os"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"
)

// Loader reads the config file named on the command line.
type Loader struct {
	ConfigPath string
}

// RegisterFlags registers the -config-path flag.
func (l *Loader) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&l.ConfigPath, "config-path", "", "Path to the service YAML config.")
}

// Load reads and validates the config. An empty AppID falls back to
// cloudProject.
func (l *Loader) Load(ctx context.Context, cloudProject string) (*Config, error) {
	if l.ConfigPath == "" {
		return nil, errors.Reason("-config-path is required").Err()
	}
	data, err := os.ReadFile(l.ConfigPath)
	if err != nil {
		return nil, errors.Annotate(err, "read %s", l.ConfigPath).Err()
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, errors.Annotate(err, "load %s", l.ConfigPath).Err()
	}
	if cfg.AppID == "" {
		cfg.AppID = cloudProject
	}
	logging.Infof(ctx, "Loaded config from %s: app %q, %d project sources", l.ConfigPath, cfg.AppID, len(cfg.ProjectSetup))
	return cfg, nil
}
