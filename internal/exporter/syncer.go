// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package exporter

import (
	"context"

	"go.chromium.org/luci/common/gcloud/gs"

	"github.com/letitz/clusterfuzz/internal/external/gcs"
)

// Syncer moves object data between buckets.
type Syncer interface {
	// RSync makes dst mirror src. Both are directory prefixes.
	RSync(ctx context.Context, src, dst gs.Path) error
	// Copy copies a single object.
	Copy(ctx context.Context, src, dst gs.Path) error
}

// StorageRSync is a Syncer backed by an object store client.
type StorageRSync struct {
	Client gcs.Client
}

// RSync implements Syncer.
func (s *StorageRSync) RSync(ctx context.Context, src, dst gs.Path) error {
	return gcs.RSync(ctx, s.Client, src, dst)
}

// Copy implements Syncer.
func (s *StorageRSync) Copy(ctx context.Context, src, dst gs.Path) error {
	return s.Client.Copy(ctx, dst, src)
}
