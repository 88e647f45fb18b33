// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package external

import (
	"context"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"google.golang.org/api/option"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/server/auth"
)

// SecretReader reads Secret Manager secret versions.
type SecretReader interface {
	// AccessSecret returns the payload of a secret version resource, e.g.
	// "projects/p/secrets/s/versions/latest".
	AccessSecret(ctx context.Context, name string) ([]byte, error)
}

type secretReader struct {
	client *secretmanager.Client
}

// NewSecretReader creates a SecretReader acting as the service itself.
func NewSecretReader(ctx context.Context) (SecretReader, error) {
	tokenSource, err := auth.GetTokenSource(ctx, auth.AsSelf, auth.WithScopes(auth.CloudOAuthScopes...))
	if err != nil {
		return nil, errors.Annotate(err, "NewSecretReader: failed to get AsSelf credentials").Err()
	}
	client, err := secretmanager.NewClient(ctx, option.WithTokenSource(tokenSource))
	if err != nil {
		return nil, errors.Annotate(err, "NewSecretReader").Err()
	}
	return &secretReader{client: client}, nil
}

// AccessSecret implements SecretReader.
func (s *secretReader) AccessSecret(ctx context.Context, name string) ([]byte, error) {
	resp, err := s.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		return nil, errors.Annotate(err, "access secret %q", name).Err()
	}
	return resp.GetPayload().GetData(), nil
}
