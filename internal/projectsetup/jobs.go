// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package projectsetup

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/letitz/clusterfuzz/internal/config"
)

// jobInfo describes one kind of generated job.
type jobInfo struct {
	prefix    string
	engine    string
	sanitizer string
	templates []string
	// i386 jobs use the "<engine>_i386" build bucket.
	i386 bool
}

var jobInfos = []jobInfo{
	{"libfuzzer_asan_", "libfuzzer", "address", []string{"engine_asan", "libfuzzer", "prune"}, false},
	{"libfuzzer_msan_", "libfuzzer", "memory", []string{"engine_msan", "libfuzzer"}, false},
	{"libfuzzer_ubsan_", "libfuzzer", "undefined", []string{"engine_ubsan", "libfuzzer"}, false},
	{"libfuzzer_hwasan_", "libfuzzer", "hardware", []string{"engine_asan", "libfuzzer"}, false},
	{"libfuzzer_nosanitizer_", "libfuzzer", "none", []string{"libfuzzer", "prune"}, false},
	{"libfuzzer_asan_i386_", "libfuzzer", "address", []string{"engine_asan", "libfuzzer"}, true},
	{"libfuzzer_nosanitizer_i386_", "libfuzzer", "none", []string{"libfuzzer"}, true},
	{"afl_asan_", "afl", "address", []string{"engine_asan", "afl"}, false},
	{"honggfuzz_asan_", "honggfuzz", "address", []string{"engine_asan", "honggfuzz"}, false},
	{"googlefuzztest_asan_", "googlefuzztest", "address", []string{"engine_asan", "googlefuzztest"}, false},
	{"centipede_asan_", "centipede", "address", []string{"engine_asan", "centipede"}, false},
	{"asan_", engineNone, "address", nil, false},
	{"noengine_hwasan_", engineNone, "hardware", nil, false},
	{"noengine_nosanitizer_", engineNone, "none", nil, false},
}

// fuzzerNames maps engines to the names of their Fuzzer entities.
var fuzzerNames = map[string]string{
	"libfuzzer":      "libFuzzer",
	"afl":            "afl",
	"honggfuzz":      "honggfuzz",
	"centipede":      "centipede",
	"googlefuzztest": "googlefuzztest",
}

// EngineFuzzers returns the Fuzzer entity names of every fuzzing engine.
func EngineFuzzers() []string {
	names := make([]string, 0, len(fuzzerNames))
	for _, n := range fuzzerNames {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// minimizedEngines delegate minimization to the libFuzzer ASan job.
var minimizedEngines = map[string]bool{"afl": true, "honggfuzz": true}

func findJobInfo(engine, sanitizer, arch string) (jobInfo, bool) {
	i386 := arch == archI386
	for _, info := range jobInfos {
		if info.engine == engine && info.sanitizer == sanitizer && info.i386 == i386 {
			return info, true
		}
	}
	return jobInfo{}, false
}

var invalidNameChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// NormalizeName turns a project name into a job name component.
func NormalizeName(name string) string {
	return strings.Trim(invalidNameChars.ReplaceAllString(name, "-"), "-")
}

// JobSpec is a job generated for a project.
type JobSpec struct {
	Name      string
	Project   string
	Platform  string
	Engine    string
	Templates []string
	Env       string
	// Fuzzers run the job. Empty for externally reproduced jobs.
	Fuzzers []string
	// Managed is false for jobs that are only used to name permissions.
	Managed bool
}

// jobBuilder derives the jobs of the projects of one source.
type jobBuilder struct {
	cfg    *config.Config
	source *config.ProjectSetup
}

// platform returns the platform of the project's jobs.
func (b *jobBuilder) platform(p *Project) string {
	if b.cfg.SegregateProjects {
		return strings.ToUpper(p.Name) + "_" + platformLinux
	}
	platform := p.Platform
	if platform == "" {
		platform = platformLinux
	}
	if p.QueueID != "" {
		platform += ":" + strings.ToUpper(p.QueueID)
	}
	return platform
}

// jobs returns every job of an enabled project, including the engine-less
// jobs that only carry permissions.
func (b *jobBuilder) jobs(p *Project, diskSizeGB int64) []*JobSpec {
	var out []*JobSpec
	experimental := map[string]bool{}
	for _, s := range b.source.ExperimentalSanitizers {
		experimental[s] = true
	}
	for _, s := range p.SanitizerList() {
		if s.Experimental {
			experimental[s.Name] = true
		}
	}

	for _, engine := range p.Engines() {
		for _, arch := range p.Archs() {
			for _, san := range p.SanitizerList() {
				info, ok := findJobInfo(engine, san.Name, arch)
				if !ok {
					continue
				}
				out = append(out, b.job(p, info, arch, experimental[san.Name], diskSizeGB))
			}
		}
	}
	return out
}

func (b *jobBuilder) job(p *Project, info jobInfo, arch string, experimental bool, diskSizeGB int64) *JobSpec {
	name := b.jobName(info.prefix, p)
	managed := info.engine != engineNone || p.ManagedEngineless

	projectName := p.Name
	templates := append([]string(nil), info.templates...)
	if p.IsAndroid() {
		templates = append(templates, "android")
		if info.engine != engineNone {
			projectName = "android"
		}
	}

	spec := &JobSpec{
		Name:      name,
		Project:   projectName,
		Platform:  b.platform(p),
		Engine:    info.engine,
		Templates: templates,
		Managed:   managed,
	}
	if !managed {
		return spec
	}
	if !b.source.IsExternal() {
		if info.engine == engineNone {
			spec.Fuzzers = p.Fuzzers
		} else {
			spec.Fuzzers = []string{fuzzerNames[info.engine]}
		}
	}

	buildSanitizer := info.sanitizer
	if info.engine == "centipede" {
		// Centipede fuzzes unsanitized binaries and reproduces with the
		// sanitized ones from the extra build.
		buildSanitizer = engineNone
	}

	e := &envWriter{}
	e.set(b.source.BuildType, b.buildPath(p, info, arch, buildSanitizer))
	e.set("PROJECT_NAME", projectName)
	e.set("SUMMARY_PREFIX", projectName)
	e.set("MANAGED", "True")
	if diskSizeGB > 0 {
		e.set("DISK_SIZE_GB", fmt.Sprint(diskSizeGB))
		e.set("ALLOW_UNPACK_OVER_HTTP", "True")
	} else {
		e.set("DISK_SIZE_GB", "None")
	}
	if buildSanitizer != info.sanitizer {
		e.set("EXTRA_BUILD_BUCKET_PATH", b.buildPath(p, info, arch, info.sanitizer))
	}
	if b.source.AddRevisionMappings && b.source.IsOSSFuzz() {
		bucket := b.buildBucket(info, arch)
		e.set("REVISION_VARS_URL", fmt.Sprintf("https://commondatastorage.googleapis.com/%s/%s/%s-%s-%%s.srcmap.json", bucket, p.Name, p.Name, info.sanitizer))
	}
	if b.cfg.SegregateProjects {
		domain := b.cfg.BucketDomain()
		e.set("FUZZ_LOGS_BUCKET", LogsBucket(p.Name, domain))
		e.set("CORPUS_BUCKET", CorpusBucket(p.Name, domain))
		e.set("QUARANTINE_BUCKET", QuarantineBucket(p.Name, domain))
		e.set("BACKUP_BUCKET", BackupBucket(p.Name, domain))
	}
	if b.source.AddInfoLabels {
		labels := []string{"Proj-" + p.Name, "Engine-" + info.engine}
		labels = append(labels, p.Labels["*"]...)
		e.set("AUTOMATIC_LABELS", strings.Join(labels, ","))
	}
	if minimizedEngines[info.engine] {
		e.set("MINIMIZE_JOB_OVERRIDE", b.jobName("libfuzzer_asan_", p))
	}
	if experimental || p.Experimental {
		e.set("EXPERIMENTAL", "True")
	}
	if p.Experimental || !b.source.IsOSSFuzz() {
		e.set("DISABLE_DISCLOSURE", "True")
	}
	if p.SelectiveUnpack {
		e.set("UNPACK_ALL_FUZZ_TARGETS_AND_FILES", "False")
	}
	if p.MainRepo != "" {
		e.set("MAIN_REPO", p.MainRepo)
	}
	if p.ViewRestrictions != "" {
		e.set("ISSUE_VIEW_RESTRICTIONS", p.ViewRestrictions)
	}
	if p.FileGithubIssue {
		e.set("FILE_GITHUB_ISSUE", "True")
	} else {
		e.set("FILE_GITHUB_ISSUE", "False")
	}
	e.setSorted(b.sourceVars(info))
	e.setSorted(p.AdditionalVars)

	spec.Env = e.String()
	return spec
}

func (b *jobBuilder) jobName(prefix string, p *Project) string {
	return prefix + NormalizeName(p.Name) + b.source.JobSuffix
}

// buildBucket returns the build bucket of an OSS-Fuzz job.
func (b *jobBuilder) buildBucket(info jobInfo, arch string) string {
	if info.engine == engineNone {
		return b.source.BuildBuckets["no_engine"]
	}
	if arch != archX86_64 {
		if bucket, ok := b.source.BuildBuckets[info.engine+"_"+arch]; ok {
			return bucket
		}
	}
	return b.source.BuildBuckets[info.engine]
}

func (b *jobBuilder) buildPath(p *Project, info jobInfo, arch, sanitizer string) string {
	if !b.source.IsOSSFuzz() {
		path := strings.ReplaceAll(p.BuildPath, "%ENGINE%", info.engine)
		return strings.ReplaceAll(path, "%SANITIZER%", sanitizer)
	}
	return fmt.Sprintf("gs://%s/%s/%s-%s-([0-9]+).zip", b.buildBucket(info, arch), p.Name, p.Name, sanitizer)
}

// sourceVars merges the "all" variables of the source with the ones of the
// job's engine and sanitizer.
func (b *jobBuilder) sourceVars(info jobInfo) map[string]interface{} {
	vars := map[string]interface{}{}
	for k, v := range b.source.AdditionalVars["all"] {
		vars[k] = v
	}
	if perSanitizer, ok := b.source.AdditionalVars[info.engine][info.sanitizer].(map[string]interface{}); ok {
		for k, v := range perSanitizer {
			vars[k] = v
		}
	}
	return vars
}

// envWriter builds a job environment string.
type envWriter struct {
	sb strings.Builder
}

func (e *envWriter) set(key, value string) {
	fmt.Fprintf(&e.sb, "%s = %s\n", key, value)
}

// setSorted writes the variables ordered by name.
func (e *envWriter) setSorted(vars map[string]interface{}) {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		e.set(k, formatValue(vars[k]))
	}
}

func (e *envWriter) String() string {
	return e.sb.String()
}

func formatValue(v interface{}) string {
	switch v := v.(type) {
	case nil:
		return "None"
	case bool:
		if v {
			return "True"
		}
		return "False"
	default:
		return fmt.Sprint(v)
	}
}
