// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package projectsetup derives fuzzing jobs from project registries and
// reconciles the datastore, buckets, IAM policies and task queue topics with
// them.
package projectsetup

import (
	"context"
	"slices"
	"sort"

	"cloud.google.com/go/pubsub"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"
	"go.chromium.org/luci/gae/service/datastore"

	"github.com/letitz/clusterfuzz/internal/blobs"
	"github.com/letitz/clusterfuzz/internal/config"
	"github.com/letitz/clusterfuzz/internal/external"
	"github.com/letitz/clusterfuzz/internal/model"
)

const (
	defaultCPUWeight  = 1.0
	blackboxCPUWeight = 0.2
)

// serviceAccountRoles are granted to every project service account on the
// application's cloud project.
var serviceAccountRoles = []string{
	"roles/logging.logWriter",
	"roles/monitoring.metricWriter",
}

// Setup runs project setup. Buckets and ServiceAccounts are only used when
// projects are segregated. A nil PubSub skips topic management.
type Setup struct {
	Registry        Registry
	Buckets         external.BucketAdmin
	ServiceAccounts external.ServiceAccountManager
	PubSub          *pubsub.Client
}

// run holds the state of a single Setup.Run.
type run struct {
	*Setup
	cfg *config.Config

	settings    map[string]*model.OssFuzzProject
	dataBundles []string
	perms       map[string][]*model.ExternalUserPermission

	// generated holds the managed jobs derived by this run, whether or not
	// their write succeeded.
	generated map[string]*JobSpec
	enabled   map[string]bool
	platforms []string
	merr      errors.MultiError
}

// Run reconciles every configured source. A source whose registry cannot be
// read aborts the run before anything is deleted. Failures on a single
// project are logged and reported once every project was processed.
func (s *Setup) Run(ctx context.Context) (err error) {
	defer func() {
		setupTick.Add(ctx, 1, err == nil)
	}()

	cfg := config.Get(ctx)
	if len(cfg.ProjectSetup) == 0 {
		logging.Infof(ctx, "No project setup sources configured")
		return nil
	}
	r := &run{
		Setup:     s,
		cfg:       cfg,
		generated: map[string]*JobSpec{},
		enabled:   map[string]bool{},
	}
	if err := r.load(ctx); err != nil {
		return err
	}

	for _, source := range cfg.ProjectSetup {
		projects, err := s.Registry.Projects(ctx, source)
		if err != nil {
			return errors.Annotate(err, "projects of %s", source.Source).Err()
		}
		logging.Infof(ctx, "Setting up %d projects from %s", len(projects), source.Source)
		r.syncSource(ctx, source, projects)
	}

	managed, err := r.deleteOldJobs(ctx)
	if err != nil {
		return err
	}
	if err := r.syncFuzzers(ctx, managed); err != nil {
		r.merr = append(r.merr, err)
	}
	if err := r.syncFuzzerJobs(ctx, managed); err != nil {
		r.merr = append(r.merr, err)
	}
	if cfg.SegregateProjects {
		if err := r.deleteOldSettings(ctx); err != nil {
			r.merr = append(r.merr, err)
		}
	}
	if s.PubSub != nil {
		if err := syncTopics(ctx, s.PubSub, r.platforms); err != nil {
			r.merr = append(r.merr, err)
		}
	}
	if len(r.merr) > 0 {
		return r.merr
	}
	return nil
}

func (r *run) load(ctx context.Context) error {
	settings, err := model.AllOssFuzzProjects(ctx)
	if err != nil {
		return err
	}
	r.settings = make(map[string]*model.OssFuzzProject, len(settings))
	for _, s := range settings {
		r.settings[s.Name] = s
	}

	perms, err := model.JobPermissions(ctx)
	if err != nil {
		return err
	}
	r.perms = map[string][]*model.ExternalUserPermission{}
	for _, p := range perms {
		r.perms[p.EntityName] = append(r.perms[p.EntityName], p)
	}

	fuzzers, err := model.AllFuzzers(ctx)
	if err != nil {
		return err
	}
	engines := map[string]bool{}
	for _, name := range EngineFuzzers() {
		engines[name] = true
	}
	seen := map[string]bool{}
	for _, f := range fuzzers {
		if !engines[f.Name] || f.DataBundleName == "" {
			continue
		}
		bucket := blobs.DataBundleBucketName(ctx, f.DataBundleName)
		if !seen[bucket] {
			seen[bucket] = true
			r.dataBundles = append(r.dataBundles, bucket)
		}
	}
	sort.Strings(r.dataBundles)
	return nil
}

func (r *run) fail(ctx context.Context, project string, err error) {
	logging.Errorf(ctx, "Project %s: %s", project, err)
	r.merr = append(r.merr, errors.Annotate(err, "project %s", project).Err())
}

func (r *run) syncSource(ctx context.Context, source *config.ProjectSetup, projects []*Project) {
	b := &jobBuilder{cfg: r.cfg, source: source}
	written := 0
	for _, p := range projects {
		var serviceAccount string
		if r.cfg.SegregateProjects {
			var err error
			if serviceAccount, err = r.setUpProjectResources(ctx, p); err != nil {
				r.fail(ctx, p.Name, err)
			}
		}
		if p.Disabled {
			logging.Infof(ctx, "Project %s is disabled", p.Name)
			continue
		}

		var diskSizeGB int64
		if s := r.settings[p.Name]; r.cfg.SegregateProjects && s != nil {
			diskSizeGB = s.DiskSizeGB
		}
		specs := b.jobs(p, diskSizeGB)
		for _, spec := range specs {
			if !spec.Managed {
				continue
			}
			// Recorded before the put so a failed write never makes the job,
			// or its fuzzer mappings, look stale.
			r.generated[spec.Name] = spec
			if !r.cfg.SegregateProjects {
				r.platforms = append(r.platforms, spec.Platform)
			}
			if err := putJob(ctx, spec, source); err != nil {
				r.fail(ctx, p.Name, err)
				continue
			}
			written++
		}

		emails := p.PermissionEmails()
		for _, spec := range specs {
			if err := r.syncPermissions(ctx, spec.Name, emails); err != nil {
				r.fail(ctx, p.Name, err)
			}
		}

		if r.cfg.SegregateProjects {
			r.enabled[p.Name] = true
			r.platforms = append(r.platforms, b.platform(p))
			if err := r.putSettings(ctx, p, serviceAccount); err != nil {
				r.fail(ctx, p.Name, err)
			}
		}
	}
	jobsCreated.Add(ctx, int64(written), source.Source)
}

// setUpProjectResources creates the service account and buckets of a
// segregated project, and grants them access.
func (r *run) setUpProjectResources(ctx context.Context, p *Project) (string, error) {
	serviceAccount, err := r.ServiceAccounts.GetOrCreate(ctx, p.Name)
	if err != nil {
		return "", err
	}
	if err := r.ServiceAccounts.AddRoles(ctx, serviceAccount, serviceAccountRoles); err != nil {
		return serviceAccount, err
	}
	m := &bucketManager{admin: r.Buckets, domain: r.cfg.BucketDomain()}
	if err := m.createBuckets(ctx, p.Name); err != nil {
		return serviceAccount, err
	}
	if err := m.grantProjectAccess(ctx, p.Name, p.IAMEmails(), serviceAccount); err != nil {
		return serviceAccount, err
	}
	shared := append([]string{r.cfg.GetDeploymentBucket()}, r.dataBundles...)
	return serviceAccount, m.grantViewer(ctx, shared, serviceAccount)
}

func putJob(ctx context.Context, spec *JobSpec, source *config.ProjectSetup) error {
	job, err := model.GetJob(ctx, spec.Name)
	if err != nil {
		return err
	}
	if job == nil {
		logging.Infof(ctx, "Creating job %s", spec.Name)
		job = &model.Job{Name: spec.Name}
	}
	job.Project = spec.Project
	job.Platform = spec.Platform
	job.Templates = spec.Templates
	job.EnvironmentString = spec.Env
	job.ExternalReproductionTopic = ""
	job.ExternalUpdatesSubscription = ""
	if source.IsExternal() {
		job.ExternalReproductionTopic = source.ExternalConfig.ReproductionTopic
		job.ExternalUpdatesSubscription = source.ExternalConfig.UpdatesSubscription
	}
	return errors.Annotate(datastore.Put(ctx, job), "put job %s", spec.Name).Err()
}

// syncPermissions makes the exact job permissions match the emails. Prefix
// permissions are left alone.
func (r *run) syncPermissions(ctx context.Context, jobName string, emails []string) error {
	want := make(map[string]bool, len(emails))
	for _, e := range emails {
		want[e] = true
	}
	have := map[string]bool{}
	var stale []*model.ExternalUserPermission
	for _, p := range r.perms[jobName] {
		if p.IsPrefix {
			continue
		}
		if !want[p.Email] || have[p.Email] {
			stale = append(stale, p)
			continue
		}
		have[p.Email] = true
	}
	if len(stale) > 0 {
		if err := model.DeleteAll(ctx, stale); err != nil {
			return err
		}
	}
	var added []*model.ExternalUserPermission
	for _, e := range emails {
		if have[e] {
			continue
		}
		added = append(added, &model.ExternalUserPermission{
			Email:      e,
			EntityName: jobName,
			EntityKind: model.PermissionJob,
			AutoCC:     model.AutoCCAll,
		})
	}
	if len(added) > 0 {
		if err := datastore.Put(ctx, added); err != nil {
			return errors.Annotate(err, "put permissions of %s", jobName).Err()
		}
	}
	return nil
}

// putSettings upserts the project settings. CPU weight and disk size are
// tuned by hand and survive updates. An empty service account, left by a
// failed resource setup, keeps the stored one.
func (r *run) putSettings(ctx context.Context, p *Project, serviceAccount string) error {
	s := r.settings[p.Name]
	if s == nil {
		s = &model.OssFuzzProject{Name: p.Name, CPUWeight: defaultCPUWeight}
		if p.Blackbox {
			s.CPUWeight = blackboxCPUWeight
			s.HighEnd = true
		}
		r.settings[p.Name] = s
	}
	if serviceAccount != "" {
		s.ServiceAccount = serviceAccount
	}
	s.CCs = p.CCs()
	return errors.Annotate(datastore.Put(ctx, s), "put settings").Err()
}

func (r *run) deleteOldSettings(ctx context.Context) error {
	var stale []*model.OssFuzzProject
	for name, s := range r.settings {
		if !r.enabled[name] {
			logging.Infof(ctx, "Deleting settings of project %s", name)
			stale = append(stale, s)
		}
	}
	if len(stale) == 0 {
		return nil
	}
	return model.DeleteAll(ctx, stale)
}

// deleteOldJobs deletes the managed jobs this run did not derive. Returns the
// names of every managed job, deleted or not.
func (r *run) deleteOldJobs(ctx context.Context) (map[string]bool, error) {
	jobs, err := model.AllJobs(ctx)
	if err != nil {
		return nil, err
	}
	managed := make(map[string]bool, len(r.generated))
	for name := range r.generated {
		managed[name] = true
	}
	var stale []*model.Job
	for _, j := range jobs {
		if !j.IsManaged() || r.generated[j.Name] != nil {
			continue
		}
		managed[j.Name] = true
		logging.Infof(ctx, "Deleting old job %s", j.Name)
		stale = append(stale, j)
	}
	if len(stale) > 0 {
		if err := model.DeleteAll(ctx, stale); err != nil {
			return nil, err
		}
		jobsDeleted.Add(ctx, int64(len(stale)))
	}
	return managed, nil
}

// fuzzerJobs maps fuzzer names to the sorted jobs they run.
func (r *run) fuzzerJobs() map[string][]string {
	out := map[string][]string{}
	for _, spec := range r.generated {
		for _, f := range spec.Fuzzers {
			out[f] = append(out[f], spec.Name)
		}
	}
	for _, jobs := range out {
		sort.Strings(jobs)
	}
	return out
}

// syncFuzzers replaces the managed jobs of every fuzzer with the generated
// ones. Unmanaged jobs are kept.
func (r *run) syncFuzzers(ctx context.Context, managed map[string]bool) error {
	fuzzers, err := model.AllFuzzers(ctx)
	if err != nil {
		return err
	}
	byFuzzer := r.fuzzerJobs()
	known := map[string]bool{}
	var changed []*model.Fuzzer
	for _, f := range fuzzers {
		known[f.Name] = true
		var jobs []string
		for _, j := range f.Jobs {
			if !managed[j] {
				jobs = append(jobs, j)
			}
		}
		jobs = append(jobs, byFuzzer[f.Name]...)
		if !slices.Equal(jobs, f.Jobs) {
			f.Jobs = jobs
			changed = append(changed, f)
		}
	}
	for name := range byFuzzer {
		if !known[name] {
			logging.Warningf(ctx, "Fuzzer %s does not exist", name)
		}
	}
	if len(changed) == 0 {
		return nil
	}
	return errors.Annotate(datastore.Put(ctx, changed), "put fuzzers").Err()
}

type fuzzerJobKey struct {
	fuzzer, job, platform string
}

// syncFuzzerJobs regenerates the FuzzerJob mappings of managed jobs.
func (r *run) syncFuzzerJobs(ctx context.Context, managed map[string]bool) error {
	want := map[fuzzerJobKey]bool{}
	for _, spec := range r.generated {
		for _, f := range spec.Fuzzers {
			want[fuzzerJobKey{f, spec.Name, spec.Platform}] = true
		}
	}

	existing, err := model.AllFuzzerJobs(ctx)
	if err != nil {
		return err
	}
	have := map[fuzzerJobKey]bool{}
	var stale []*model.FuzzerJob
	for _, m := range existing {
		if !managed[m.Job] {
			continue
		}
		k := fuzzerJobKey{m.Fuzzer, m.Job, m.Platform}
		if !want[k] || have[k] {
			stale = append(stale, m)
			continue
		}
		have[k] = true
	}
	if len(stale) > 0 {
		if err := model.DeleteAll(ctx, stale); err != nil {
			return err
		}
	}

	var added []*model.FuzzerJob
	for k := range want {
		if have[k] {
			continue
		}
		added = append(added, &model.FuzzerJob{
			Fuzzer:     k.fuzzer,
			Job:        k.job,
			Platform:   k.platform,
			Weight:     1.0,
			Multiplier: 1.0,
		})
	}
	if len(added) == 0 {
		return nil
	}
	return errors.Annotate(datastore.Put(ctx, added), "put fuzzer jobs").Err()
}
