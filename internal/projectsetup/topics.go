// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package projectsetup

import (
	"context"
	"sort"
	"strings"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/iterator"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"

	"github.com/letitz/clusterfuzz/internal/util"
)

const jobsTopicPrefix = "jobs-"

// basePlatforms have topics managed outside of project setup.
var basePlatforms = map[string]bool{
	"LINUX":          true,
	"ANDROID":        true,
	"ANDROID_X86":    true,
	"ANDROID_MTE":    true,
	"ANDROID_KERNEL": true,
	"CHROMEOS":       true,
	"FUCHSIA":        true,
	"MAC":            true,
	"WINDOWS":        true,
}

// TopicName returns the name of the task queue topic of a platform, e.g.
// "jobs-android-x86-pixel8" for "ANDROID_X86:PIXEL8".
func TopicName(platform string) string {
	r := strings.NewReplacer("_", "-", ":", "-")
	return jobsTopicPrefix + r.Replace(strings.ToLower(platform))
}

// syncTopics creates a topic and a same-named subscription for every
// platform, and deletes the other project setup topics.
func syncTopics(ctx context.Context, client *pubsub.Client, platforms []string) error {
	wanted := map[string]bool{}
	for p := range basePlatforms {
		wanted[TopicName(p)] = true
	}
	var created []string
	for _, p := range platforms {
		if basePlatforms[p] {
			continue
		}
		name := TopicName(p)
		if !wanted[name] {
			wanted[name] = true
			created = append(created, name)
		}
	}
	sort.Strings(created)

	var merr errors.MultiError
	for _, name := range created {
		if err := ensureTopic(ctx, client, name); err != nil {
			merr = append(merr, err)
		}
	}

	it := client.Topics(ctx)
	for {
		topic, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			merr = append(merr, errors.Annotate(err, "list topics").Err())
			break
		}
		name := topic.ID()
		if !strings.HasPrefix(name, jobsTopicPrefix) || wanted[name] {
			continue
		}
		if err := deleteTopic(ctx, topic); err != nil {
			merr = append(merr, err)
		}
	}
	if len(merr) > 0 {
		return merr
	}
	return nil
}

func ensureTopic(ctx context.Context, client *pubsub.Client, name string) error {
	topic := client.Topic(name)
	switch _, err := client.CreateTopic(ctx, name); {
	case err == nil:
		logging.Infof(ctx, "Created topic %s", name)
	case !util.IsAlreadyExistsError(err):
		return errors.Annotate(err, "create topic %s", name).Err()
	}
	switch _, err := client.CreateSubscription(ctx, name, pubsub.SubscriptionConfig{Topic: topic}); {
	case err == nil:
		logging.Infof(ctx, "Created subscription %s", name)
	case !util.IsAlreadyExistsError(err):
		return errors.Annotate(err, "create subscription %s", name).Err()
	}
	return nil
}

func deleteTopic(ctx context.Context, topic *pubsub.Topic) error {
	subs := topic.Subscriptions(ctx)
	for {
		sub, err := subs.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return errors.Annotate(err, "list subscriptions of %s", topic.ID()).Err()
		}
		logging.Infof(ctx, "Deleting subscription %s", sub.ID())
		if err := sub.Delete(ctx); err != nil && !util.IsNotFoundError(err) {
			return errors.Annotate(err, "delete subscription %s", sub.ID()).Err()
		}
	}
	logging.Infof(ctx, "Deleting topic %s", topic.ID())
	if err := topic.Delete(ctx); err != nil && !util.IsNotFoundError(err) {
		return errors.Annotate(err, "delete topic %s", topic.ID()).Err()
	}
	return nil
}
