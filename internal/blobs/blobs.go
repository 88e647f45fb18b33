// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package blobs maps blob keys stored in entities to Cloud Storage objects.
package blobs

import (
	"context"

	"github.com/google/uuid"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/gcloud/gs"

	"github.com/letitz/clusterfuzz/internal/config"
)

// GCSPath returns the object backing a blob key.
func GCSPath(ctx context.Context, key string) (gs.Path, error) {
	bucket := config.Get(ctx).BlobsBucket
	if bucket == "" {
		return "", errors.Reason("blobs_bucket is not configured").Err()
	}
	if key == "" {
		return "", errors.Reason("empty blob key").Err()
	}
	return gs.MakePath(bucket, key), nil
}

// NewKey returns a fresh blob key.
func NewKey() string {
	return uuid.New().String()
}

// DataBundleBucketName returns the bucket holding the named data bundle.
func DataBundleBucketName(ctx context.Context, name string) string {
	return name + "-corpus." + config.Get(ctx).BucketDomain()
}
