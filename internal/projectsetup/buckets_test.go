// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package projectsetup

import (
	"context"
	"testing"

	"github.com/golang/mock/gomock"
	storage "google.golang.org/api/storage/v1"

	. "github.com/smartystreets/goconvey/convey"

	"go.chromium.org/luci/common/errors"

	"github.com/letitz/clusterfuzz/internal/external"
)

func TestCreateBuckets(t *testing.T) {
	t.Parallel()

	Convey("createBuckets", t, func() {
		ctx := context.Background()
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		admin := external.NewMockBucketAdmin(ctrl)
		m := &bucketManager{admin: admin, domain: "app.appspot.com"}

		Convey("creates missing buckets only", func() {
			gomock.InOrder(
				admin.EXPECT().GetBucket(ctx, "lib1-backup.app.appspot.com").Return(nil, nil),
				admin.EXPECT().InsertBucket(ctx, external.NewBucket("lib1-backup.app.appspot.com", 100)).Return(nil),
				admin.EXPECT().GetBucket(ctx, "lib1-corpus.app.appspot.com").Return(nil, nil),
				admin.EXPECT().InsertBucket(ctx, &storage.Bucket{Name: "lib1-corpus.app.appspot.com"}).Return(nil),
				admin.EXPECT().GetBucket(ctx, "lib1-quarantine.app.appspot.com").Return(nil, nil),
				admin.EXPECT().InsertBucket(ctx, external.NewBucket("lib1-quarantine.app.appspot.com", 90)).Return(nil),
				admin.EXPECT().GetBucket(ctx, "lib1-logs.app.appspot.com").Return(&storage.Bucket{Name: "lib1-logs.app.appspot.com"}, nil),
			)
			So(m.createBuckets(ctx, "lib1"), ShouldBeNil)
		})

		Convey("keeps going after a failure", func() {
			admin.EXPECT().GetBucket(ctx, "lib1-backup.app.appspot.com").Return(nil, errors.New("boom"))
			admin.EXPECT().GetBucket(ctx, gomock.Any()).Return(&storage.Bucket{}, nil).Times(3)
			So(m.createBuckets(ctx, "lib1"), ShouldNotBeNil)
		})
	})
}

func TestGrantProjectAccess(t *testing.T) {
	t.Parallel()

	Convey("grantProjectAccess", t, func() {
		ctx := context.Background()
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		admin := external.NewMockBucketAdmin(ctrl)
		m := &bucketManager{admin: admin, domain: "app.appspot.com"}

		Convey("adds missing members and skips failures", func() {
			for _, b := range []string{"lib1-backup", "lib1-corpus", "lib1-quarantine"} {
				bucket := b + ".app.appspot.com"
				gomock.InOrder(
					admin.EXPECT().GetIamPolicy(ctx, bucket).Return(&storage.Policy{}, nil),
					// The primary contact has no Google account.
					admin.EXPECT().SetIamPolicy(ctx, bucket, &storage.Policy{Bindings: []*storage.PolicyBindings{
						{Role: objectViewerRole, Members: []string{"user:primary@example.com"}},
					}}).Return(nil, errors.New("no such account")),
					admin.EXPECT().SetIamPolicy(ctx, bucket, &storage.Policy{Bindings: []*storage.PolicyBindings{
						{Role: objectViewerRole, Members: []string{"user:user@example.com"}},
					}}).DoAndReturn(func(_ context.Context, _ string, p *storage.Policy) (*storage.Policy, error) {
						return p, nil
					}),
					admin.EXPECT().SetIamPolicy(ctx, bucket, &storage.Policy{Bindings: []*storage.PolicyBindings{
						{Role: objectViewerRole, Members: []string{"user:user@example.com"}},
						{Role: objectAdminRole, Members: []string{"serviceAccount:sa@example.com"}},
					}}).Return(&storage.Policy{}, nil),
				)
			}

			// user@example.com is already a viewer of the logs bucket.
			logs := "lib1-logs.app.appspot.com"
			gomock.InOrder(
				admin.EXPECT().GetIamPolicy(ctx, logs).Return(&storage.Policy{Bindings: []*storage.PolicyBindings{
					{Role: objectViewerRole, Members: []string{"user:user@example.com"}},
				}}, nil),
				admin.EXPECT().SetIamPolicy(ctx, logs, &storage.Policy{Bindings: []*storage.PolicyBindings{
					{Role: objectViewerRole, Members: []string{"user:primary@example.com", "user:user@example.com"}},
				}}).Return(nil, errors.New("no such account")),
				admin.EXPECT().SetIamPolicy(ctx, logs, &storage.Policy{Bindings: []*storage.PolicyBindings{
					{Role: objectViewerRole, Members: []string{"user:user@example.com"}},
					{Role: objectAdminRole, Members: []string{"serviceAccount:sa@example.com"}},
				}}).Return(&storage.Policy{}, nil),
			)

			err := m.grantProjectAccess(ctx, "lib1", []string{"primary@example.com", "user@example.com"}, "sa@example.com")
			So(err, ShouldBeNil)
		})

		Convey("reports unreadable policies", func() {
			admin.EXPECT().GetIamPolicy(ctx, gomock.Any()).Return(nil, errors.New("denied")).Times(4)
			So(m.grantProjectAccess(ctx, "lib1", nil, "sa@example.com"), ShouldNotBeNil)
		})
	})
}

func TestWithMember(t *testing.T) {
	t.Parallel()

	Convey("withMember", t, func() {
		policy := &storage.Policy{
			Etag: "etag",
			Bindings: []*storage.PolicyBindings{
				{Role: objectViewerRole, Members: []string{"user:a@example.com"}},
			},
		}

		Convey("existing member", func() {
			got, changed := withMember(policy, objectViewerRole, "user:a@example.com")
			So(changed, ShouldBeFalse)
			So(got, ShouldEqual, policy)
		})

		Convey("existing role", func() {
			got, changed := withMember(policy, objectViewerRole, "user:b@example.com")
			So(changed, ShouldBeTrue)
			So(got.Etag, ShouldEqual, "etag")
			So(got.Bindings[0].Members, ShouldResemble, []string{"user:a@example.com", "user:b@example.com"})
			So(policy.Bindings[0].Members, ShouldResemble, []string{"user:a@example.com"})
		})

		Convey("members stay sorted", func() {
			got, changed := withMember(policy, objectViewerRole, "group:z@example.com")
			So(changed, ShouldBeTrue)
			So(got.Bindings[0].Members, ShouldResemble, []string{"group:z@example.com", "user:a@example.com"})

			again, changed := withMember(got, objectViewerRole, "user:0@example.com")
			So(changed, ShouldBeTrue)
			So(again.Bindings[0].Members, ShouldResemble, []string{"group:z@example.com", "user:0@example.com", "user:a@example.com"})
		})

		Convey("new role", func() {
			got, changed := withMember(policy, objectAdminRole, "serviceAccount:sa@example.com")
			So(changed, ShouldBeTrue)
			So(got.Bindings, ShouldHaveLength, 2)
			So(got.Bindings[1], ShouldResemble, &storage.PolicyBindings{Role: objectAdminRole, Members: []string{"serviceAccount:sa@example.com"}})
			So(policy.Bindings, ShouldHaveLength, 1)
		})
	})
}
