// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package gcs

import (
	"context"
	"sort"
	"strings"
	"sync"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/gcloud/gs"
)

// FakeClient is an in-memory Client for tests.
type FakeClient struct {
	mu      sync.Mutex
	buckets map[string]map[string][]byte
}

// NewFakeClient returns an empty in-memory object store. Buckets must be
// created before objects are written into them.
func NewFakeClient(buckets ...string) *FakeClient {
	f := &FakeClient{buckets: map[string]map[string][]byte{}}
	for _, b := range buckets {
		f.buckets[b] = map[string][]byte{}
	}
	return f
}

// HasBucket reports whether the bucket exists.
func (f *FakeClient) HasBucket(bucket string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.buckets[bucket]
	return ok
}

func (f *FakeClient) bucket(p gs.Path) (map[string][]byte, string, error) {
	bucket, name := p.Split()
	objs, ok := f.buckets[bucket]
	if !ok {
		return nil, "", errors.Reason("bucket %q does not exist", bucket).Err()
	}
	return objs, name, nil
}

// Read implements Client.
func (f *FakeClient) Read(ctx context.Context, p gs.Path) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	objs, name, err := f.bucket(p)
	if err != nil {
		return nil, err
	}
	data, ok := objs[name]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

// Write implements Client.
func (f *FakeClient) Write(ctx context.Context, p gs.Path, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	objs, name, err := f.bucket(p)
	if err != nil {
		return err
	}
	objs[name] = append([]byte(nil), data...)
	return nil
}

// Exists implements Client.
func (f *FakeClient) Exists(ctx context.Context, p gs.Path) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	objs, name, err := f.bucket(p)
	if err != nil {
		return false, err
	}
	_, ok := objs[name]
	return ok, nil
}

// List implements Client.
func (f *FakeClient) List(ctx context.Context, prefix gs.Path) ([]gs.Path, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	bucket, name := prefix.Split()
	objs, ok := f.buckets[bucket]
	if !ok {
		return nil, errors.Reason("bucket %q does not exist", bucket).Err()
	}
	var out []gs.Path
	for n := range objs {
		if strings.HasPrefix(n, name) {
			out = append(out, gs.MakePath(bucket, n))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// Copy implements Client.
func (f *FakeClient) Copy(ctx context.Context, dst, src gs.Path) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	srcObjs, srcName, err := f.bucket(src)
	if err != nil {
		return err
	}
	data, ok := srcObjs[srcName]
	if !ok {
		return ErrNotFound
	}
	dstObjs, dstName, err := f.bucket(dst)
	if err != nil {
		return err
	}
	dstObjs[dstName] = append([]byte(nil), data...)
	return nil
}

// Delete implements Client.
func (f *FakeClient) Delete(ctx context.Context, p gs.Path) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	objs, name, err := f.bucket(p)
	if err != nil {
		return err
	}
	delete(objs, name)
	return nil
}

// CreateBucketIfNeeded implements Client.
func (f *FakeClient) CreateBucketIfNeeded(ctx context.Context, bucket string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.buckets[bucket]; !ok {
		f.buckets[bucket] = map[string][]byte{}
	}
	return nil
}
