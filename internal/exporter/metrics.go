// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package exporter

import (
	"go.chromium.org/luci/common/tsmon/field"
	"go.chromium.org/luci/common/tsmon/metric"
)

var (
	exportTick = metric.NewCounter(
		"clusterfuzz/cron/job_exporter",
		"job exporter attempt",
		nil,
		field.Bool("success"),
	)
	importTick = metric.NewCounter(
		"clusterfuzz/cron/job_importer",
		"job importer attempt",
		nil,
		field.Bool("success"),
	)
	exportedEntities = metric.NewCounter(
		"clusterfuzz/cron/job_exporter/entities",
		"entities written to the export bucket",
		nil,
		field.String("kind"),
	)
	importedEntities = metric.NewCounter(
		"clusterfuzz/cron/job_importer/entities",
		"entities imported from the export bucket",
		nil,
		field.String("kind"),
	)
)
