// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package main is the entrypoint to the ClusterFuzz cron server.
package main

import (
	"context"
	"flag"

	"cloud.google.com/go/profiler"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"
	"go.chromium.org/luci/server"
	"go.chromium.org/luci/server/auth"
	"go.chromium.org/luci/server/cron"
	"go.chromium.org/luci/server/gaeemulation"
	"go.chromium.org/luci/server/module"
	"go.chromium.org/luci/server/secrets"

	"github.com/letitz/clusterfuzz/internal/config"
	"github.com/letitz/clusterfuzz/internal/exporter"
	"github.com/letitz/clusterfuzz/internal/external"
	"github.com/letitz/clusterfuzz/internal/external/gcs"
	"github.com/letitz/clusterfuzz/internal/projectsetup"
	"github.com/letitz/clusterfuzz/internal/util"
)

func main() {
	modules := []module.Module{
		cron.NewModuleFromFlags(),
		gaeemulation.NewModuleFromFlags(),
		secrets.NewModuleFromFlags(),
	}

	cfgLoader := config.Loader{}
	cfgLoader.RegisterFlags(flag.CommandLine)
	profilerService := flag.String("profiler-service", "", "Service name reported to Cloud Profiler. Profiling is off when empty.")

	server.Main(nil, modules, func(srv *server.Server) error {
		if *profilerService != "" {
			err := profiler.Start(profiler.Config{
				Service:   *profilerService,
				ProjectID: srv.Options.CloudProject,
			})
			if err != nil {
				logging.Errorf(srv.Context, "%s", errors.Annotate(err, "start profiler").Err())
			}
		}

		cfg, err := cfgLoader.Load(srv.Context, srv.Options.CloudProject)
		if err != nil {
			return err
		}
		srv.Context = config.Use(srv.Context, cfg)

		storage, err := gcs.NewClient(srv.Context, srv.Options.CloudProject)
		if err != nil {
			return err
		}
		setup, err := newProjectSetup(srv.Context, cfg, storage)
		if err != nil {
			return err
		}

		cron.RegisterHandler(util.CronJobNames["jobExporterCron"], func(ctx context.Context) error {
			ctx = logging.SetField(ctx, "activity", util.CronJobNames["jobExporterCron"])
			return exporter.Export(ctx, storage)
		})
		cron.RegisterHandler(util.CronJobNames["jobImporterCron"], func(ctx context.Context) error {
			ctx = logging.SetField(ctx, "activity", util.CronJobNames["jobImporterCron"])
			return exporter.Import(ctx, storage)
		})
		cron.RegisterHandler(util.CronJobNames["projectSetupCron"], func(ctx context.Context) error {
			ctx = logging.SetField(ctx, "activity", util.CronJobNames["projectSetupCron"])
			return setup.Run(ctx)
		})
		return nil
	})
}

// newProjectSetup builds the clients project setup needs. Segregated
// deployments also manage buckets and service accounts.
func newProjectSetup(ctx context.Context, cfg *config.Config, storage gcs.Client) (*projectsetup.Setup, error) {
	transport, err := auth.GetRPCTransport(ctx, auth.NoAuth)
	if err != nil {
		return nil, err
	}
	github := &projectsetup.GithubClient{Transport: transport}
	if cfg.Github != nil {
		github.APIURL = cfg.Github.APIURL
		if cfg.Github.CredentialsSecret != "" {
			if github.Secrets, err = external.NewSecretReader(ctx); err != nil {
				return nil, err
			}
			github.SecretName = cfg.Github.CredentialsSecret
		}
	}

	setup := &projectsetup.Setup{
		Registry: &projectsetup.SourceRegistry{Github: github, Storage: storage},
	}
	if setup.PubSub, err = external.NewPubSubClient(ctx, cfg.AppID); err != nil {
		return nil, err
	}
	if cfg.SegregateProjects {
		if setup.Buckets, err = external.NewBucketAdmin(ctx, cfg.AppID); err != nil {
			return nil, err
		}
		if setup.ServiceAccounts, err = external.NewServiceAccountManager(ctx, cfg.AppID); err != nil {
			return nil, err
		}
	}
	return setup, nil
}
