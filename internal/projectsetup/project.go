// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package projectsetup

import (
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"go.chromium.org/luci/common/errors"
)

// Project is a project.yaml file, or one entry of a projects.json file.
type Project struct {
	Name             string      `yaml:"name"`
	Homepage         string      `yaml:"homepage"`
	PrimaryContact   string      `yaml:"primary_contact"`
	AutoCCs          StringList  `yaml:"auto_ccs"`
	VendorCCs        StringList  `yaml:"vendor_ccs"`
	Sanitizers       []Sanitizer `yaml:"sanitizers"`
	FuzzingEngines   []string    `yaml:"fuzzing_engines"`
	Architectures    []string    `yaml:"architectures"`
	Disabled         bool        `yaml:"disabled"`
	Language         string      `yaml:"language"`
	Blackbox         bool        `yaml:"blackbox"`
	Experimental     bool        `yaml:"experimental"`
	SelectiveUnpack  bool        `yaml:"selective_unpack"`
	MainRepo         string      `yaml:"main_repo"`
	ViewRestrictions string      `yaml:"view_restrictions"`
	// Labels maps a fuzz target name, or "*" for all of them, to labels.
	Labels          map[string][]string `yaml:"labels"`
	FileGithubIssue bool                `yaml:"file_github_issue"`
	// BuildPath is the build bucket path template of generic projects.
	BuildPath         string                 `yaml:"build_path"`
	Platform          string                 `yaml:"platform"`
	QueueID           string                 `yaml:"queue_id"`
	ManagedEngineless bool                   `yaml:"managed_engineless"`
	Fuzzers           []string               `yaml:"fuzzers"`
	AdditionalVars    map[string]interface{} `yaml:"additional_vars"`
	// Dockerfile is set on OSS-Fuzz projects building from another repo.
	Dockerfile map[string]interface{} `yaml:"dockerfile"`
}

// StringList accepts either a single string or a list of strings.
type StringList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *StringList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		if value.Tag == "!!null" {
			*s = nil
			return nil
		}
		*s = StringList{value.Value}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return err
		}
		*s = list
		return nil
	}
	return errors.Reason("line %d: expected a string or a list of strings", value.Line).Err()
}

// Sanitizer is either a plain sanitizer name or a "{name: {experimental: ...}}"
// mapping.
type Sanitizer struct {
	Name         string
	Experimental bool
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *Sanitizer) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		s.Name = value.Value
		return nil
	case yaml.MappingNode:
		if len(value.Content) != 2 {
			return errors.Reason("line %d: sanitizer mapping must have a single key", value.Line).Err()
		}
		s.Name = value.Content[0].Value
		var opts struct {
			Experimental bool `yaml:"experimental"`
		}
		if err := value.Content[1].Decode(&opts); err != nil {
			return err
		}
		s.Experimental = opts.Experimental
		return nil
	}
	return errors.Reason("line %d: invalid sanitizer", value.Line).Err()
}

const (
	engineNone    = "none"
	archX86_64    = "x86_64"
	archI386      = "i386"
	platformLinux = "LINUX"
)

var (
	defaultEngines    = []string{"libfuzzer", "afl", "honggfuzz"}
	defaultSanitizers = []Sanitizer{{Name: "address"}, {Name: "undefined"}}
)

// Engines returns the fuzzing engines of the project.
func (p *Project) Engines() []string {
	if len(p.FuzzingEngines) == 0 {
		return defaultEngines
	}
	return p.FuzzingEngines
}

// SanitizerList returns the sanitizers of the project.
func (p *Project) SanitizerList() []Sanitizer {
	if len(p.Sanitizers) == 0 {
		return defaultSanitizers
	}
	return p.Sanitizers
}

// Archs returns the architectures of the project.
func (p *Project) Archs() []string {
	if len(p.Architectures) == 0 {
		return []string{archX86_64}
	}
	return p.Architectures
}

// CCs returns the primary contact and auto CCs, lowercased, sorted and
// without duplicates.
func (p *Project) CCs() []string {
	var ccs []string
	if p.PrimaryContact != "" {
		ccs = append(ccs, p.PrimaryContact)
	}
	ccs = append(ccs, p.AutoCCs...)
	return normalizeEmails(ccs, strings.ToLower)
}

// PermissionEmails returns the users granted access to the project's jobs.
func (p *Project) PermissionEmails() []string {
	return normalizeEmails(append(p.CCs(), p.VendorCCs...), strings.ToLower)
}

// IAMEmails returns the CCs as Google accounts, which never use the
// googlemail.com domain.
func (p *Project) IAMEmails() []string {
	return normalizeEmails(p.CCs(), func(email string) string {
		email = strings.ToLower(email)
		if user, ok := strings.CutSuffix(email, "@googlemail.com"); ok {
			return user + "@gmail.com"
		}
		return email
	})
}

func normalizeEmails(emails []string, norm func(string) string) []string {
	seen := make(map[string]bool, len(emails))
	out := make([]string, 0, len(emails))
	for _, e := range emails {
		e = norm(strings.TrimSpace(e))
		if e == "" || seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}

// IsAndroid reports whether the project runs on an Android platform.
func (p *Project) IsAndroid() bool {
	return strings.HasPrefix(p.Platform, "ANDROID")
}

// projectsFile is the generic project registry format.
type projectsFile struct {
	Projects []*Project `yaml:"projects"`
}

// ParseProjectsJSON parses a {"projects": [...]} registry. JSON is valid YAML
// so the same decoders serve both formats.
func ParseProjectsJSON(data []byte) ([]*Project, error) {
	var f projectsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Annotate(err, "parse projects.json").Err()
	}
	for i, p := range f.Projects {
		if p == nil || p.Name == "" {
			return nil, errors.Reason("projects.json: project %d has no name", i).Err()
		}
	}
	return f.Projects, nil
}

// ParseProjectYAML parses an OSS-Fuzz project.yaml.
func ParseProjectYAML(name string, data []byte) (*Project, error) {
	p := &Project{}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, errors.Annotate(err, "parse project.yaml of %s", name).Err()
	}
	p.Name = name
	return p, nil
}
