// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package gcs is a small object store client over Cloud Storage.
package gcs

import (
	"context"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/gcloud/gs"
	"go.chromium.org/luci/common/logging"
	"go.chromium.org/luci/server/auth"
)

// ErrNotFound is returned when an object does not exist.
var ErrNotFound = errors.New("gcs: object not found")

// Client reads and writes objects addressed by gs:// paths.
type Client interface {
	// Read returns the object contents, or ErrNotFound.
	Read(ctx context.Context, p gs.Path) ([]byte, error)
	// Write creates or replaces an object.
	Write(ctx context.Context, p gs.Path, data []byte) error
	// Exists reports whether an object exists.
	Exists(ctx context.Context, p gs.Path) (bool, error)
	// List returns every object whose path starts with prefix, sorted.
	List(ctx context.Context, prefix gs.Path) ([]gs.Path, error)
	// Copy copies an object within or across buckets.
	Copy(ctx context.Context, dst, src gs.Path) error
	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, p gs.Path) error
	// CreateBucketIfNeeded creates the bucket unless it already exists.
	CreateBucketIfNeeded(ctx context.Context, bucket string) error
}

type prodClient struct {
	client  *storage.Client
	project string
}

// NewClient creates a Cloud Storage backed Client. New buckets are created in
// cloudProject.
func NewClient(ctx context.Context, cloudProject string) (Client, error) {
	ts, err := auth.GetTokenSource(ctx, auth.AsSelf, auth.WithScopes(auth.CloudOAuthScopes...))
	if err != nil {
		return nil, errors.Annotate(err, "NewClient: failed to get AsSelf credentials").Err()
	}
	c, err := storage.NewClient(ctx, option.WithTokenSource(ts))
	if err != nil {
		logging.Errorf(ctx, "NewClient: cannot set up storage client: %s", err)
		return nil, err
	}
	return &prodClient{client: c, project: cloudProject}, nil
}

func (c *prodClient) object(p gs.Path) (*storage.ObjectHandle, error) {
	bucket, name := p.Split()
	if bucket == "" || name == "" {
		return nil, errors.Reason("invalid object path %q", p).Err()
	}
	return c.client.Bucket(bucket).Object(name), nil
}

// Read implements Client.
func (c *prodClient) Read(ctx context.Context, p gs.Path) ([]byte, error) {
	obj, err := c.object(p)
	if err != nil {
		return nil, err
	}
	r, err := obj.NewReader(ctx)
	switch {
	case errors.Is(err, storage.ErrObjectNotExist):
		return nil, ErrNotFound
	case err != nil:
		return nil, errors.Annotate(err, "open %s", p).Err()
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Annotate(err, "read %s", p).Err()
	}
	return data, nil
}

// Write implements Client.
func (c *prodClient) Write(ctx context.Context, p gs.Path, data []byte) error {
	obj, err := c.object(p)
	if err != nil {
		return err
	}
	w := obj.NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return errors.Annotate(err, "write %s", p).Err()
	}
	return errors.Annotate(w.Close(), "close %s", p).Err()
}

// Exists implements Client.
func (c *prodClient) Exists(ctx context.Context, p gs.Path) (bool, error) {
	obj, err := c.object(p)
	if err != nil {
		return false, err
	}
	switch _, err := obj.Attrs(ctx); {
	case errors.Is(err, storage.ErrObjectNotExist):
		return false, nil
	case err != nil:
		return false, errors.Annotate(err, "stat %s", p).Err()
	}
	return true, nil
}

// List implements Client.
func (c *prodClient) List(ctx context.Context, prefix gs.Path) ([]gs.Path, error) {
	bucket, name := prefix.Split()
	it := c.client.Bucket(bucket).Objects(ctx, &storage.Query{Prefix: name})
	var out []gs.Path
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Annotate(err, "list %s", prefix).Err()
		}
		if strings.HasSuffix(attrs.Name, "/") {
			continue
		}
		out = append(out, gs.MakePath(bucket, attrs.Name))
	}
	return out, nil
}

// Copy implements Client.
func (c *prodClient) Copy(ctx context.Context, dst, src gs.Path) error {
	srcObj, err := c.object(src)
	if err != nil {
		return err
	}
	dstObj, err := c.object(dst)
	if err != nil {
		return err
	}
	switch _, err := dstObj.CopierFrom(srcObj).Run(ctx); {
	case errors.Is(err, storage.ErrObjectNotExist):
		return ErrNotFound
	case err != nil:
		return errors.Annotate(err, "copy %s to %s", src, dst).Err()
	}
	return nil
}

// Delete implements Client.
func (c *prodClient) Delete(ctx context.Context, p gs.Path) error {
	obj, err := c.object(p)
	if err != nil {
		return err
	}
	if err := obj.Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return errors.Annotate(err, "delete %s", p).Err()
	}
	return nil
}

// CreateBucketIfNeeded implements Client.
func (c *prodClient) CreateBucketIfNeeded(ctx context.Context, bucket string) error {
	b := c.client.Bucket(bucket)
	switch _, err := b.Attrs(ctx); {
	case err == nil:
		return nil
	case !errors.Is(err, storage.ErrBucketNotExist):
		return errors.Annotate(err, "stat bucket %s", bucket).Err()
	}
	logging.Infof(ctx, "Creating bucket %s in %s", bucket, c.project)
	return errors.Annotate(b.Create(ctx, c.project, nil), "create bucket %s", bucket).Err()
}
