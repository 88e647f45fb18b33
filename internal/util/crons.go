// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package util holds helpers shared by the crons.
package util

// CronJobNames maps cron handlers to the names they are registered under.
var CronJobNames = map[string]string{
	"jobExporterCron":  "job-exporter",
	"jobImporterCron":  "job-importer",
	"projectSetupCron": "project-setup",
}
