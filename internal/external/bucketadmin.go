// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package external

import (
	"context"
	"net/http"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	storage "google.golang.org/api/storage/v1"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"
	"go.chromium.org/luci/server/auth"

	"github.com/letitz/clusterfuzz/internal/util"
)

// BucketAdmin manages buckets and their IAM policies.
type BucketAdmin interface {
	// GetBucket returns the bucket, or nil if it does not exist.
	GetBucket(ctx context.Context, name string) (*storage.Bucket, error)
	// InsertBucket creates a bucket in the cloud project.
	InsertBucket(ctx context.Context, bucket *storage.Bucket) error
	GetIamPolicy(ctx context.Context, bucket string) (*storage.Policy, error)
	SetIamPolicy(ctx context.Context, bucket string, policy *storage.Policy) (*storage.Policy, error)
}

type bucketAdmin struct {
	cloudProject string
	srv          *storage.Service
}

// NewBucketAdmin creates a BucketAdmin creating buckets in cloudProject.
func NewBucketAdmin(ctx context.Context, cloudProject string) (BucketAdmin, error) {
	t, err := auth.GetRPCTransport(ctx, auth.AsSelf, auth.WithScopes(storage.CloudPlatformScope))
	if err != nil {
		return nil, errors.Annotate(err, "NewBucketAdmin: failed to get RPC transport").Err()
	}
	srv, err := storage.NewService(ctx, option.WithHTTPClient(&http.Client{Transport: t}))
	if err != nil {
		logging.Errorf(ctx, "NewBucketAdmin: cannot set up storage service: %s", err)
		return nil, err
	}
	return &bucketAdmin{cloudProject: cloudProject, srv: srv}, nil
}

// GetBucket implements BucketAdmin.
func (b *bucketAdmin) GetBucket(ctx context.Context, name string) (*storage.Bucket, error) {
	bucket, err := b.srv.Buckets.Get(name).Context(ctx).Do()
	switch {
	case util.IsGoogleAPINotFound(err):
		return nil, nil
	case err != nil:
		return nil, errors.Annotate(err, "get bucket %s", name).Err()
	}
	return bucket, nil
}

// InsertBucket implements BucketAdmin.
func (b *bucketAdmin) InsertBucket(ctx context.Context, bucket *storage.Bucket) error {
	_, err := b.srv.Buckets.Insert(b.cloudProject, bucket).Context(ctx).Do()
	return errors.Annotate(err, "insert bucket %s", bucket.Name).Err()
}

// GetIamPolicy implements BucketAdmin.
func (b *bucketAdmin) GetIamPolicy(ctx context.Context, bucket string) (*storage.Policy, error) {
	policy, err := b.srv.Buckets.GetIamPolicy(bucket).Context(ctx).Do()
	if err != nil {
		return nil, errors.Annotate(err, "get IAM policy of %s", bucket).Err()
	}
	return policy, nil
}

// SetIamPolicy implements BucketAdmin.
func (b *bucketAdmin) SetIamPolicy(ctx context.Context, bucket string, policy *storage.Policy) (*storage.Policy, error) {
	policy, err := b.srv.Buckets.SetIamPolicy(bucket, policy).Context(ctx).Do()
	if err != nil {
		return nil, errors.Annotate(err, "set IAM policy of %s", bucket).Err()
	}
	return policy, nil
}

// NewBucket returns a bucket definition whose objects are deleted after
// ttlDays. A zero ttlDays means objects never expire.
func NewBucket(name string, ttlDays int64) *storage.Bucket {
	b := &storage.Bucket{Name: name}
	if ttlDays > 0 {
		b.Lifecycle = &storage.BucketLifecycle{
			Rule: []*storage.BucketLifecycleRule{{
				Action:    &storage.BucketLifecycleRuleAction{Type: "Delete"},
				Condition: &storage.BucketLifecycleRuleCondition{Age: googleapi.Int64(ttlDays)},
			}},
		}
	}
	return b
}
