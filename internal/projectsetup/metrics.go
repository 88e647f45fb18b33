// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package projectsetup

import (
	"go.chromium.org/luci/common/tsmon/field"
	"go.chromium.org/luci/common/tsmon/metric"
)

var (
	setupTick = metric.NewCounter(
		"clusterfuzz/cron/project_setup",
		"project setup attempt",
		nil,
		field.Bool("success"),
	)
	jobsCreated = metric.NewCounter(
		"clusterfuzz/cron/project_setup/jobs",
		"managed jobs written by project setup",
		nil,
		field.String("source"),
	)
	jobsDeleted = metric.NewCounter(
		"clusterfuzz/cron/project_setup/deleted_jobs",
		"managed jobs deleted by project setup",
		nil,
	)
)
