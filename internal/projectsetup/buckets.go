// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package projectsetup

import (
	"context"
	"sort"

	storage "google.golang.org/api/storage/v1"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"

	"github.com/letitz/clusterfuzz/internal/external"
)

const (
	objectViewerRole = "roles/storage.objectViewer"
	objectAdminRole  = "roles/storage.objectAdmin"

	backupTTLDays     = 100
	quarantineTTLDays = 90
	logsTTLDays       = 14
)

// BackupBucket returns the corpus backup bucket of a project.
func BackupBucket(project, domain string) string {
	return project + "-backup." + domain
}

// CorpusBucket returns the corpus bucket of a project.
func CorpusBucket(project, domain string) string {
	return project + "-corpus." + domain
}

// QuarantineBucket returns the quarantined corpus bucket of a project.
func QuarantineBucket(project, domain string) string {
	return project + "-quarantine." + domain
}

// LogsBucket returns the fuzzing logs bucket of a project.
func LogsBucket(project, domain string) string {
	return project + "-logs." + domain
}

// bucketManager creates project buckets and grants access to them.
type bucketManager struct {
	admin  external.BucketAdmin
	domain string
}

// createBuckets creates the missing buckets of a project.
func (m *bucketManager) createBuckets(ctx context.Context, project string) error {
	buckets := []struct {
		name string
		ttl  int64
	}{
		{BackupBucket(project, m.domain), backupTTLDays},
		{CorpusBucket(project, m.domain), 0},
		{QuarantineBucket(project, m.domain), quarantineTTLDays},
		{LogsBucket(project, m.domain), logsTTLDays},
	}
	var merr errors.MultiError
	for _, b := range buckets {
		existing, err := m.admin.GetBucket(ctx, b.name)
		if err != nil {
			merr = append(merr, err)
			continue
		}
		if existing != nil {
			continue
		}
		logging.Infof(ctx, "Creating bucket %s", b.name)
		if err := m.admin.InsertBucket(ctx, external.NewBucket(b.name, b.ttl)); err != nil {
			merr = append(merr, err)
		}
	}
	if len(merr) > 0 {
		return merr
	}
	return nil
}

// grantProjectAccess lets the CCs read the project buckets and the service
// account administer them.
func (m *bucketManager) grantProjectAccess(ctx context.Context, project string, ccs []string, serviceAccount string) error {
	buckets := []string{
		BackupBucket(project, m.domain),
		CorpusBucket(project, m.domain),
		LogsBucket(project, m.domain),
		QuarantineBucket(project, m.domain),
	}
	var merr errors.MultiError
	for _, bucket := range buckets {
		policy, err := m.admin.GetIamPolicy(ctx, bucket)
		if err != nil {
			merr = append(merr, err)
			continue
		}
		for _, cc := range ccs {
			policy = m.addMember(ctx, bucket, policy, objectViewerRole, "user:"+cc)
		}
		if serviceAccount != "" {
			m.addMember(ctx, bucket, policy, objectAdminRole, "serviceAccount:"+serviceAccount)
		}
	}
	if len(merr) > 0 {
		return merr
	}
	return nil
}

// grantViewer lets the service account read the given buckets.
func (m *bucketManager) grantViewer(ctx context.Context, buckets []string, serviceAccount string) error {
	var merr errors.MultiError
	for _, bucket := range buckets {
		policy, err := m.admin.GetIamPolicy(ctx, bucket)
		if err != nil {
			merr = append(merr, err)
			continue
		}
		m.addMember(ctx, bucket, policy, objectViewerRole, "serviceAccount:"+serviceAccount)
	}
	if len(merr) > 0 {
		return merr
	}
	return nil
}

// addMember binds a member to a role and returns the resulting policy. A
// member that cannot be added (e.g. an account that does not exist) is logged
// and the previous policy is returned.
func (m *bucketManager) addMember(ctx context.Context, bucket string, policy *storage.Policy, role, member string) *storage.Policy {
	updated, changed := withMember(policy, role, member)
	if !changed {
		return policy
	}
	result, err := m.admin.SetIamPolicy(ctx, bucket, updated)
	if err != nil {
		logging.Warningf(ctx, "Failed to add %s as %s of %s: %s", member, role, bucket, err)
		return policy
	}
	return result
}

// withMember returns a copy of the policy with the member bound to the role,
// and whether it differs from the original. Members of the changed binding
// are sorted.
func withMember(policy *storage.Policy, role, member string) (*storage.Policy, bool) {
	updated := *policy
	updated.Bindings = make([]*storage.PolicyBindings, 0, len(policy.Bindings)+1)
	found := false
	for _, b := range policy.Bindings {
		b := *b
		if b.Role == role {
			found = true
			for _, m := range b.Members {
				if m == member {
					return policy, false
				}
			}
			b.Members = append(append([]string(nil), b.Members...), member)
			sort.Strings(b.Members)
		}
		updated.Bindings = append(updated.Bindings, &b)
	}
	if !found {
		updated.Bindings = append(updated.Bindings, &storage.PolicyBindings{Role: role, Members: []string{member}})
	}
	return &updated, true
}
