// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package projectsetup

import (
	"context"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/google/go-github/v74/github"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/gcloud/gs"
	"go.chromium.org/luci/common/logging"

	"github.com/letitz/clusterfuzz/internal/config"
	"github.com/letitz/clusterfuzz/internal/external"
	"github.com/letitz/clusterfuzz/internal/external/gcs"
	"github.com/letitz/clusterfuzz/internal/model"
)

const (
	ossFuzzOwner       = "google"
	ossFuzzRepo        = "oss-fuzz"
	ossFuzzProjectsDir = "projects"
	githubTimeout      = 60 * time.Second
)

// Registry lists the projects of a source.
type Registry interface {
	Projects(ctx context.Context, source *config.ProjectSetup) ([]*Project, error)
}

// SourceRegistry reads OSS-Fuzz projects from GitHub and generic projects
// from projects.json files in Cloud Storage.
type SourceRegistry struct {
	Github  *GithubClient
	Storage gcs.Client
}

// Projects implements Registry. Projects are sorted by name.
func (r *SourceRegistry) Projects(ctx context.Context, source *config.ProjectSetup) ([]*Project, error) {
	var projects []*Project
	var err error
	if source.IsOSSFuzz() {
		projects, err = r.Github.OSSFuzzProjects(ctx)
	} else {
		projects, err = r.genericProjects(ctx, gs.Path(source.Source))
	}
	if err != nil {
		return nil, err
	}
	sort.Slice(projects, func(i, j int) bool { return projects[i].Name < projects[j].Name })
	return projects, nil
}

func (r *SourceRegistry) genericProjects(ctx context.Context, src gs.Path) ([]*Project, error) {
	data, err := r.Storage.Read(ctx, src)
	if err != nil {
		return nil, errors.Annotate(err, "read %s", src).Err()
	}
	return ParseProjectsJSON(data)
}

// GithubClient reads the OSS-Fuzz project registry with the GitHub contents
// API.
type GithubClient struct {
	// Transport carries the API requests. Defaults to http.DefaultTransport.
	Transport http.RoundTripper
	// APIURL defaults to https://api.github.com.
	APIURL string
	// Secrets and SecretName locate the "client_id;client_secret"
	// credentials. When unset, the Config entity provides them.
	Secrets    external.SecretReader
	SecretName string
}

func (g *GithubClient) credentials(ctx context.Context) (id, secret string, err error) {
	var raw string
	if g.Secrets != nil && g.SecretName != "" {
		data, err := g.Secrets.AccessSecret(ctx, g.SecretName)
		if err != nil {
			return "", "", err
		}
		raw = string(data)
	} else {
		cfg, err := model.GetConfig(ctx)
		if err != nil {
			return "", "", err
		}
		raw = cfg.GithubCredentials
	}
	id, secret, ok := strings.Cut(strings.TrimSpace(raw), ";")
	if !ok {
		return "", "", errors.Reason("github credentials are not in the client_id;client_secret format").Err()
	}
	return id, secret, nil
}

// client returns a GitHub client authenticated as the OAuth app.
func (g *GithubClient) client(ctx context.Context) (*github.Client, error) {
	id, secret, err := g.credentials(ctx)
	if err != nil {
		return nil, err
	}
	tr := &github.BasicAuthTransport{Username: id, Password: secret, Transport: g.Transport}
	client := github.NewClient(tr.Client())
	if g.APIURL != "" {
		// The base URL needs a trailing slash.
		base, err := url.Parse(strings.TrimSuffix(g.APIURL, "/") + "/")
		if err != nil {
			return nil, errors.Annotate(err, "bad GitHub API URL %q", g.APIURL).Err()
		}
		client.BaseURL = base
	}
	return client, nil
}

// OSSFuzzProjects returns the projects with a project.yaml and a Dockerfile.
// Projects that fail to fetch or parse are skipped.
func (g *GithubClient) OSSFuzzProjects(ctx context.Context) ([]*Project, error) {
	client, err := g.client(ctx)
	if err != nil {
		return nil, err
	}

	listCtx, cancel := context.WithTimeout(ctx, githubTimeout)
	_, listing, _, err := client.Repositories.GetContents(listCtx, ossFuzzOwner, ossFuzzRepo, ossFuzzProjectsDir, nil)
	cancel()
	if err != nil {
		return nil, errors.Annotate(err, "failed to list OSS-Fuzz projects").Err()
	}

	var projects []*Project
	for _, item := range listing {
		if item.GetType() != "dir" {
			continue
		}
		p, err := g.project(ctx, client, item.GetName())
		if err != nil {
			logging.Warningf(ctx, "Skipping project %s: %s", item.GetName(), err)
			continue
		}
		if p != nil {
			projects = append(projects, p)
		}
	}
	logging.Infof(ctx, "Found %d OSS-Fuzz projects", len(projects))
	return projects, nil
}

// project returns nil for directories without a buildable project.
func (g *GithubClient) project(ctx context.Context, client *github.Client, name string) (*Project, error) {
	ctx, cancel := context.WithTimeout(ctx, githubTimeout)
	defer cancel()

	dir := path.Join(ossFuzzProjectsDir, name)
	_, contents, _, err := client.Repositories.GetContents(ctx, ossFuzzOwner, ossFuzzRepo, dir, nil)
	if err != nil {
		return nil, errors.Annotate(err, "list %s", dir).Err()
	}
	if !hasItem(contents, "project.yaml") {
		return nil, nil
	}
	file, _, _, err := client.Repositories.GetContents(ctx, ossFuzzOwner, ossFuzzRepo, path.Join(dir, "project.yaml"), nil)
	if err != nil {
		return nil, errors.Annotate(err, "fetch project.yaml").Err()
	}
	if file == nil {
		return nil, errors.Reason("project.yaml is not a file").Err()
	}
	data, err := file.GetContent()
	if err != nil {
		return nil, errors.Annotate(err, "decode project.yaml").Err()
	}
	p, err := ParseProjectYAML(name, []byte(data))
	if err != nil {
		return nil, err
	}
	if !hasItem(contents, "Dockerfile") && p.Dockerfile == nil {
		return nil, nil
	}
	return p, nil
}

func hasItem(items []*github.RepositoryContent, name string) bool {
	for _, it := range items {
		if it.GetName() == name {
			return true
		}
	}
	return false
}
