// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package exporter

import (
	"context"
	"sort"
	"strings"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/gcloud/gs"
	"go.chromium.org/luci/common/logging"
	"go.chromium.org/luci/gae/service/datastore"

	"github.com/letitz/clusterfuzz/internal/blobs"
	"github.com/letitz/clusterfuzz/internal/external/gcs"
	"github.com/letitz/clusterfuzz/internal/model"
)

const (
	entityFile      = "entity.proto"
	manifestFile    = "entities"
	contentsDir     = "contents"
	envStringField  = "environment_string"
	bucketNameField = "bucket_name"
)

// EntityMigrator exports the entities of one kind into a bucket and imports
// them back, possibly into another deployment.
//
// Layout, relative to gs://<Bucket>/<Prefix>:
//
//	<name>/entity.proto   the serialized entity
//	<name>/<blob field>   one object per non-empty blob property
//	<name>/contents/...   data bundle contents
//	entities              newline separated names of exported entities
type EntityMigrator struct {
	// Kind is the datastore kind.
	Kind string
	// BlobFields are string properties holding blob keys.
	BlobFields []string
	// Prefix is the directory for the kind in the export bucket.
	Prefix string
	Syncer Syncer
	// Storage reads and writes single objects.
	Storage gcs.Client
	Bucket  string
	// Substitutions are applied to environment_string on import.
	Substitutions map[string]string
}

func (m *EntityMigrator) basePath() gs.Path {
	return gs.MakePath(m.Bucket, m.Prefix)
}

func (m *EntityMigrator) entityPath(name string, parts ...string) gs.Path {
	return m.basePath().Concat(name, parts...)
}

func (m *EntityMigrator) isDataBundle() bool {
	return m.Kind == model.DataBundleKind
}

// Export writes every entity of the kind, its blobs and the manifest.
//
// Returns the number of exported entities.
func (m *EntityMigrator) Export(ctx context.Context) (int, error) {
	var entities []datastore.PropertyMap
	if err := datastore.GetAll(ctx, datastore.NewQuery(m.Kind), &entities); err != nil {
		return 0, errors.Annotate(err, "export %s: query", m.Kind).Err()
	}

	// Failed entities stay in the manifest so that an import never deletes
	// them from the target.
	var names []string
	exported := 0
	var merr errors.MultiError
	for _, pm := range entities {
		name := datastore.KeyForObj(ctx, pm).StringID()
		if name == "" {
			logging.Warningf(ctx, "Skipping %s entity without a key name", m.Kind)
			continue
		}
		names = append(names, name)
		if err := m.exportEntity(ctx, name, pm); err != nil {
			logging.Errorf(ctx, "Failed to export %s %q: %s", m.Kind, name, err)
			merr = append(merr, err)
			// Without entity.proto the import fails this entity and leaves the
			// target copy alone instead of writing one with missing blobs.
			if err := m.Storage.Delete(ctx, m.entityPath(name, entityFile)); err != nil {
				merr = append(merr, errors.Annotate(err, "drop partial export of %s", name).Err())
			}
			continue
		}
		exported++
	}
	sort.Strings(names)

	manifest := []byte(strings.Join(names, "\n"))
	if err := m.Storage.Write(ctx, m.basePath().Concat(manifestFile), manifest); err != nil {
		return 0, errors.Annotate(err, "export %s: write manifest", m.Kind).Err()
	}
	logging.Infof(ctx, "Exported %d of %d %s entities to %s", exported, len(names), m.Kind, m.basePath())
	if len(merr) > 0 {
		return exported, merr
	}
	return exported, nil
}

func (m *EntityMigrator) exportEntity(ctx context.Context, name string, pm datastore.PropertyMap) error {
	data, err := Serialize(pm)
	if err != nil {
		return errors.Annotate(err, "serialize %s", name).Err()
	}
	if err := m.Storage.Write(ctx, m.entityPath(name, entityFile), data); err != nil {
		return err
	}

	for _, field := range m.BlobFields {
		dst := m.entityPath(name, field)
		key := stringProperty(pm, field)
		if key == "" {
			// A blob left over from an older export would resurrect the field.
			if err := m.Storage.Delete(ctx, dst); err != nil {
				return err
			}
			continue
		}
		src, err := blobs.GCSPath(ctx, key)
		if err != nil {
			return err
		}
		if err := m.Syncer.Copy(ctx, src, dst); err != nil {
			return errors.Annotate(err, "copy %s of %s", field, name).Err()
		}
	}

	if m.isDataBundle() {
		if bucket := stringProperty(pm, bucketNameField); bucket != "" {
			if err := m.Syncer.RSync(ctx, gs.MakePath(bucket, ""), m.entityPath(name, contentsDir)); err != nil {
				return errors.Annotate(err, "sync contents of %s", name).Err()
			}
		}
	}
	return nil
}

// Import makes the local entities of the kind match the export.
//
// Entities missing from the manifest are deleted. Listed entities are
// created or overwritten. A listed entity whose entity.proto is missing is
// an error and its local copy is kept. Returns the number of imported entities.
func (m *EntityMigrator) Import(ctx context.Context) (int, error) {
	data, err := m.Storage.Read(ctx, m.basePath().Concat(manifestFile))
	if err != nil {
		return 0, errors.Annotate(err, "import %s: read manifest", m.Kind).Err()
	}
	exported := parseManifest(data)

	local, err := model.ListNames(ctx, m.Kind)
	if err != nil {
		return 0, err
	}
	var stale []string
	for _, name := range local {
		if !exported[name] {
			stale = append(stale, name)
		}
	}
	if len(stale) > 0 {
		logging.Infof(ctx, "Deleting %d %s entities absent from the export: %v", len(stale), m.Kind, stale)
		if err := model.DeleteByName(ctx, m.Kind, stale); err != nil {
			return 0, err
		}
	}

	names := make([]string, 0, len(exported))
	for name := range exported {
		names = append(names, name)
	}
	sort.Strings(names)

	imported := 0
	var merr errors.MultiError
	for _, name := range names {
		if err := m.importEntity(ctx, name); err != nil {
			logging.Errorf(ctx, "Failed to import %s %q: %s", m.Kind, name, err)
			merr = append(merr, err)
			continue
		}
		imported++
	}
	logging.Infof(ctx, "Imported %d %s entities from %s", imported, m.Kind, m.basePath())
	if len(merr) > 0 {
		return imported, merr
	}
	return imported, nil
}

func (m *EntityMigrator) importEntity(ctx context.Context, name string) error {
	data, err := m.Storage.Read(ctx, m.entityPath(name, entityFile))
	if err != nil {
		return errors.Annotate(err, "read %s", entityFile).Err()
	}
	pm, err := Deserialize(ctx, data)
	if err != nil {
		return err
	}
	// The key is rebuilt from the path so a foreign app ID never leaks in.
	pm.SetMeta("key", datastore.NewKey(ctx, m.Kind, name, 0, nil))

	if env := stringProperty(pm, envStringField); env != "" {
		setStringProperty(pm, envStringField, substitute(env, m.Substitutions))
	}

	for _, field := range m.BlobFields {
		src := m.entityPath(name, field)
		switch ok, err := m.Storage.Exists(ctx, src); {
		case err != nil:
			return err
		case !ok:
			setStringProperty(pm, field, "")
			continue
		}
		key := blobs.NewKey()
		dst, err := blobs.GCSPath(ctx, key)
		if err != nil {
			return err
		}
		if err := m.Syncer.Copy(ctx, src, dst); err != nil {
			return errors.Annotate(err, "copy %s", field).Err()
		}
		setStringProperty(pm, field, key)
	}

	if m.isDataBundle() {
		bucket := blobs.DataBundleBucketName(ctx, name)
		setStringProperty(pm, bucketNameField, bucket)
		if err := m.Storage.CreateBucketIfNeeded(ctx, bucket); err != nil {
			return err
		}
		if err := m.Syncer.RSync(ctx, m.entityPath(name, contentsDir), gs.MakePath(bucket, "")); err != nil {
			return errors.Annotate(err, "sync contents").Err()
		}
	}

	if err := datastore.Put(ctx, pm); err != nil {
		return errors.Annotate(err, "put").Err()
	}
	return nil
}

func parseManifest(data []byte) map[string]bool {
	out := map[string]bool{}
	for _, line := range strings.Split(string(data), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out[line] = true
		}
	}
	return out
}

// substitute replaces every occurrence of each key by its value. Longer keys
// go first so that a key never clobbers a longer key containing it.
func substitute(s string, subs map[string]string) string {
	if len(subs) == 0 {
		return s
	}
	keys := make([]string, 0, len(subs))
	for k := range subs {
		if k != "" {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	for _, k := range keys {
		s = strings.ReplaceAll(s, k, subs[k])
	}
	return s
}

func stringProperty(pm datastore.PropertyMap, name string) string {
	p, ok := pm[name].(datastore.Property)
	if !ok {
		return ""
	}
	s, _ := p.Value().(string)
	return s
}

// setStringProperty keeps the index setting of an existing property.
func setStringProperty(pm datastore.PropertyMap, name, value string) {
	if p, ok := pm[name].(datastore.Property); ok && p.IndexSetting() == datastore.NoIndex {
		pm[name] = datastore.MkPropertyNI(value)
		return
	}
	pm[name] = datastore.MkProperty(value)
}
