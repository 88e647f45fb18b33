// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package external

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/api/cloudresourcemanager/v1"
	"google.golang.org/api/iam/v1"
	"google.golang.org/api/option"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"
	"go.chromium.org/luci/server/auth"

	"github.com/letitz/clusterfuzz/internal/util"
)

const (
	accountPrefix = "bot-"
	minAccountLen = 6
	maxAccountLen = 30
)

// ServiceAccountManager creates per-project service accounts in the
// application's cloud project.
type ServiceAccountManager interface {
	// GetOrCreate returns the email of the project's service account, creating
	// the account if needed.
	GetOrCreate(ctx context.Context, project string) (string, error)
	// AddRoles grants the roles on the cloud project to the account.
	AddRoles(ctx context.Context, email string, roles []string) error
}

// ServiceAccountID returns the account ID used for a project. IDs are 6 to 30
// characters long and match [a-z]([-a-z0-9]*[a-z0-9]).
func ServiceAccountID(project string) string {
	id := accountPrefix + strings.ReplaceAll(strings.ToLower(project), "_", "-")
	if last := id[len(id)-1]; !(last >= 'a' && last <= 'z' || last >= '0' && last <= '9') {
		id += "0"
	}
	for len(id) < minAccountLen {
		id += "0"
	}
	if len(id) > maxAccountLen {
		sum := sha1.Sum([]byte(project))
		id = accountPrefix + hex.EncodeToString(sum[:])[:maxAccountLen-len(accountPrefix)]
	}
	return id
}

// serviceAccountEmail returns the email of an account in the cloud project.
func serviceAccountEmail(cloudProject, accountID string) string {
	return fmt.Sprintf("%s@%s.iam.gserviceaccount.com", accountID, cloudProject)
}

type serviceAccountManager struct {
	cloudProject string
	iam          *iam.Service
	crm          *cloudresourcemanager.Service
}

// NewServiceAccountManager creates a ServiceAccountManager for cloudProject.
func NewServiceAccountManager(ctx context.Context, cloudProject string) (ServiceAccountManager, error) {
	t, err := auth.GetRPCTransport(ctx, auth.AsSelf, auth.WithScopes(iam.CloudPlatformScope))
	if err != nil {
		return nil, errors.Annotate(err, "NewServiceAccountManager: failed to get RPC transport").Err()
	}
	client := &http.Client{Transport: t}
	iamService, err := iam.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, errors.Annotate(err, "NewServiceAccountManager: iam").Err()
	}
	crmService, err := cloudresourcemanager.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, errors.Annotate(err, "NewServiceAccountManager: cloudresourcemanager").Err()
	}
	return &serviceAccountManager{cloudProject: cloudProject, iam: iamService, crm: crmService}, nil
}

// GetOrCreate implements ServiceAccountManager.
func (m *serviceAccountManager) GetOrCreate(ctx context.Context, project string) (string, error) {
	id := ServiceAccountID(project)
	email := serviceAccountEmail(m.cloudProject, id)
	resource := fmt.Sprintf("projects/%s/serviceAccounts/%s", m.cloudProject, email)

	switch acc, err := m.iam.Projects.ServiceAccounts.Get(resource).Context(ctx).Do(); {
	case err == nil:
		return acc.Email, nil
	case !util.IsGoogleAPINotFound(err):
		return "", errors.Annotate(err, "get service account %s", email).Err()
	}

	logging.Infof(ctx, "Creating service account %s for %s", email, project)
	acc, err := m.iam.Projects.ServiceAccounts.Create("projects/"+m.cloudProject, &iam.CreateServiceAccountRequest{
		AccountId:      id,
		ServiceAccount: &iam.ServiceAccount{DisplayName: project},
	}).Context(ctx).Do()
	switch {
	case util.IsGoogleAPIConflict(err):
		// Lost a race with another creator.
		return email, nil
	case err != nil:
		return "", errors.Annotate(err, "create service account %s", email).Err()
	}
	return acc.Email, nil
}

// AddRoles implements ServiceAccountManager.
func (m *serviceAccountManager) AddRoles(ctx context.Context, email string, roles []string) error {
	policy, err := m.crm.Projects.GetIamPolicy(m.cloudProject, &cloudresourcemanager.GetIamPolicyRequest{}).Context(ctx).Do()
	if err != nil {
		return errors.Annotate(err, "get project IAM policy").Err()
	}
	member := "serviceAccount:" + email
	changed := false
	for _, role := range roles {
		if addMember(policy, role, member) {
			changed = true
		}
	}
	if !changed {
		return nil
	}
	_, err = m.crm.Projects.SetIamPolicy(m.cloudProject, &cloudresourcemanager.SetIamPolicyRequest{Policy: policy}).Context(ctx).Do()
	return errors.Annotate(err, "set project IAM policy").Err()
}

func addMember(policy *cloudresourcemanager.Policy, role, member string) bool {
	for _, b := range policy.Bindings {
		if b.Role != role {
			continue
		}
		for _, m := range b.Members {
			if m == member {
				return false
			}
		}
		b.Members = append(b.Members, member)
		return true
	}
	policy.Bindings = append(policy.Bindings, &cloudresourcemanager.Binding{Role: role, Members: []string{member}})
	return true
}
