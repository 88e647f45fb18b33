// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package gcs

import (
	"context"
	"strings"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/gcloud/gs"
	"go.chromium.org/luci/common/logging"
)

// RSync makes the objects under dst mirror the objects under src. Objects
// under dst with no counterpart under src are deleted.
//
// Both paths are treated as directories.
func RSync(ctx context.Context, c Client, src, dst gs.Path) error {
	src, dst = asDir(src), asDir(dst)
	srcObjs, err := c.List(ctx, src)
	if err != nil {
		return errors.Annotate(err, "rsync: list source").Err()
	}
	dstObjs, err := c.List(ctx, dst)
	if err != nil {
		return errors.Annotate(err, "rsync: list destination").Err()
	}

	keep := make(map[gs.Path]bool, len(srcObjs))
	for _, s := range srcObjs {
		rel := strings.TrimPrefix(string(s), string(src))
		d := gs.Path(string(dst) + rel)
		keep[d] = true
		if err := c.Copy(ctx, d, s); err != nil {
			return errors.Annotate(err, "rsync: copy %s", s).Err()
		}
	}
	deleted := 0
	for _, d := range dstObjs {
		if keep[d] {
			continue
		}
		if err := c.Delete(ctx, d); err != nil {
			return errors.Annotate(err, "rsync: delete %s", d).Err()
		}
		deleted++
	}
	logging.Debugf(ctx, "rsync %s -> %s: copied %d, deleted %d", src, dst, len(srcObjs), deleted)
	return nil
}

// asDir returns the path with a trailing slash, unless it names a bucket root.
func asDir(p gs.Path) gs.Path {
	if _, name := p.Split(); name == "" {
		s := strings.TrimSuffix(string(p), "/")
		return gs.Path(s + "/")
	}
	if strings.HasSuffix(string(p), "/") {
		return p
	}
	return p + "/"
}
