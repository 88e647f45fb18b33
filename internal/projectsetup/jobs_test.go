// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package projectsetup

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/letitz/clusterfuzz/internal/config"
)

func ossFuzzSource() *config.ProjectSetup {
	return &config.ProjectSetup{
		Source:              config.OSSFuzzSource,
		BuildType:           "RELEASE_BUILD_BUCKET_PATH",
		AddInfoLabels:       true,
		AddRevisionMappings: true,
		BuildBuckets: map[string]string{
			"afl":            "clusterfuzz-builds-afl",
			"centipede":      "clusterfuzz-builds-centipede",
			"honggfuzz":      "clusterfuzz-builds-honggfuzz",
			"libfuzzer":      "clusterfuzz-builds",
			"libfuzzer_i386": "clusterfuzz-builds-i386",
			"no_engine":      "clusterfuzz-builds-no-engine",
		},
	}
}

func genericSource() *config.ProjectSetup {
	return &config.ProjectSetup{
		Source:                 "gs://bucket/projects.json",
		BuildType:              "FUZZ_TARGET_BUILD_BUCKET_PATH",
		ExperimentalSanitizers: []string{"memory"},
		AdditionalVars: map[string]map[string]interface{}{
			"all": {"STRING_VAR": "VAL", "BOOL_VAR": true, "INT_VAR": 0},
			"libfuzzer": {
				"address": map[string]interface{}{"ASAN_VAR": "VAL"},
				"memory":  map[string]interface{}{"MSAN_VAR": "VAL"},
			},
			"none": {
				"address": map[string]interface{}{"ASAN_VAR": "VAL-chrome"},
			},
		},
	}
}

func jobsByName(specs []*JobSpec) map[string]*JobSpec {
	out := map[string]*JobSpec{}
	for _, s := range specs {
		out[s.Name] = s
	}
	return out
}

func TestJobs(t *testing.T) {
	t.Parallel()

	Convey("jobs", t, func() {
		segregated := &config.Config{AppID: "clusterfuzz-external", SegregateProjects: true}

		Convey("OSS-Fuzz project with default engines", func() {
			b := &jobBuilder{cfg: segregated, source: ossFuzzSource()}
			p := &Project{Name: "lib1", PrimaryContact: "primary@example.com"}
			jobs := jobsByName(b.jobs(p, 500))
			So(jobs, ShouldHaveLength, 4)

			job := jobs["libfuzzer_asan_lib1"]
			So(job, ShouldNotBeNil)
			So(job.Project, ShouldEqual, "lib1")
			So(job.Platform, ShouldEqual, "LIB1_LINUX")
			So(job.Templates, ShouldResemble, []string{"engine_asan", "libfuzzer", "prune"})
			So(job.Fuzzers, ShouldResemble, []string{"libFuzzer"})
			So(job.Env, ShouldEqual, "RELEASE_BUILD_BUCKET_PATH = gs://clusterfuzz-builds/lib1/lib1-address-([0-9]+).zip\n"+
				"PROJECT_NAME = lib1\n"+
				"SUMMARY_PREFIX = lib1\n"+
				"MANAGED = True\n"+
				"DISK_SIZE_GB = 500\n"+
				"ALLOW_UNPACK_OVER_HTTP = True\n"+
				"REVISION_VARS_URL = https://commondatastorage.googleapis.com/clusterfuzz-builds/lib1/lib1-address-%s.srcmap.json\n"+
				"FUZZ_LOGS_BUCKET = lib1-logs.clusterfuzz-external.appspot.com\n"+
				"CORPUS_BUCKET = lib1-corpus.clusterfuzz-external.appspot.com\n"+
				"QUARANTINE_BUCKET = lib1-quarantine.clusterfuzz-external.appspot.com\n"+
				"BACKUP_BUCKET = lib1-backup.clusterfuzz-external.appspot.com\n"+
				"AUTOMATIC_LABELS = Proj-lib1,Engine-libfuzzer\n"+
				"FILE_GITHUB_ISSUE = False\n")

			So(jobs["libfuzzer_ubsan_lib1"], ShouldNotBeNil)
			So(jobs["honggfuzz_asan_lib1"], ShouldNotBeNil)

			afl := jobs["afl_asan_lib1"]
			So(afl.Templates, ShouldResemble, []string{"engine_asan", "afl"})
			So(afl.Env, ShouldContainSubstring, "RELEASE_BUILD_BUCKET_PATH = gs://clusterfuzz-builds-afl/lib1/lib1-address-([0-9]+).zip\n")
			So(afl.Env, ShouldContainSubstring, "AUTOMATIC_LABELS = Proj-lib1,Engine-afl\nMINIMIZE_JOB_OVERRIDE = libfuzzer_asan_lib1\nFILE_GITHUB_ISSUE = False\n")
		})

		Convey("experimental sanitizers and i386", func() {
			b := &jobBuilder{cfg: segregated, source: ossFuzzSource()}
			p := &Project{
				Name:             "lib3",
				FuzzingEngines:   []string{"libfuzzer"},
				Sanitizers:       []Sanitizer{{Name: "address"}, {Name: "memory", Experimental: true}, {Name: "undefined"}},
				Architectures:    []string{"i386", "x86_64"},
				ViewRestrictions: "none",
			}
			jobs := jobsByName(b.jobs(p, 0))
			So(jobs, ShouldHaveLength, 4)

			i386 := jobs["libfuzzer_asan_i386_lib3"]
			So(i386.Templates, ShouldResemble, []string{"engine_asan", "libfuzzer"})
			So(i386.Env, ShouldStartWith, "RELEASE_BUILD_BUCKET_PATH = gs://clusterfuzz-builds-i386/lib3/lib3-address-([0-9]+).zip\n")

			msan := jobs["libfuzzer_msan_lib3"]
			So(msan.Templates, ShouldResemble, []string{"engine_msan", "libfuzzer"})
			So(msan.Env, ShouldContainSubstring, "MANAGED = True\nDISK_SIZE_GB = None\nREVISION_VARS_URL")
			So(msan.Env, ShouldEndWith, "AUTOMATIC_LABELS = Proj-lib3,Engine-libfuzzer\n"+
				"EXPERIMENTAL = True\n"+
				"ISSUE_VIEW_RESTRICTIONS = none\n"+
				"FILE_GITHUB_ISSUE = False\n")

			So(jobs["libfuzzer_ubsan_lib3"].Env, ShouldNotContainSubstring, "EXPERIMENTAL")
		})

		Convey("experimental project", func() {
			b := &jobBuilder{cfg: segregated, source: ossFuzzSource()}
			p := &Project{
				Name:            "lib5",
				FuzzingEngines:  []string{"libfuzzer"},
				Sanitizers:      []Sanitizer{{Name: "address"}},
				Experimental:    true,
				SelectiveUnpack: true,
				MainRepo:        "https://github.com/google/main-repo",
				Labels:          map[string][]string{"*": {"custom"}, "per-target": {"ignore"}},
			}
			jobs := b.jobs(p, 0)
			So(jobs, ShouldHaveLength, 1)
			So(jobs[0].Env, ShouldEndWith, "AUTOMATIC_LABELS = Proj-lib5,Engine-libfuzzer,custom\n"+
				"EXPERIMENTAL = True\n"+
				"DISABLE_DISCLOSURE = True\n"+
				"UNPACK_ALL_FUZZ_TARGETS_AND_FILES = False\n"+
				"MAIN_REPO = https://github.com/google/main-repo\n"+
				"FILE_GITHUB_ISSUE = False\n")
		})

		Convey("centipede", func() {
			b := &jobBuilder{cfg: segregated, source: ossFuzzSource()}
			p := &Project{Name: "lib9", FuzzingEngines: []string{"centipede"}}
			jobs := b.jobs(p, 0)
			So(jobs, ShouldHaveLength, 1)
			So(jobs[0].Name, ShouldEqual, "centipede_asan_lib9")
			So(jobs[0].Env, ShouldStartWith, "RELEASE_BUILD_BUCKET_PATH = gs://clusterfuzz-builds-centipede/lib9/lib9-none-([0-9]+).zip\n"+
				"PROJECT_NAME = lib9\n"+
				"SUMMARY_PREFIX = lib9\n"+
				"MANAGED = True\n"+
				"DISK_SIZE_GB = None\n"+
				"EXTRA_BUILD_BUCKET_PATH = gs://clusterfuzz-builds-centipede/lib9/lib9-address-([0-9]+).zip\n"+
				"REVISION_VARS_URL = https://commondatastorage.googleapis.com/clusterfuzz-builds-centipede/lib9/lib9-address-%s.srcmap.json\n")
		})

		Convey("engine-less projects", func() {
			b := &jobBuilder{cfg: segregated, source: ossFuzzSource()}
			p := &Project{Name: "lib4", FuzzingEngines: []string{"none"}, Sanitizers: []Sanitizer{{Name: "address"}}, Blackbox: true}
			jobs := b.jobs(p, 0)
			So(jobs, ShouldHaveLength, 1)
			So(jobs[0].Name, ShouldEqual, "asan_lib4")
			So(jobs[0].Managed, ShouldBeFalse)
			So(jobs[0].Env, ShouldBeEmpty)
		})

		Convey("generic projects", func() {
			b := &jobBuilder{cfg: &config.Config{AppID: "app"}, source: genericSource()}
			p := &Project{
				Name:           "//a/b",
				BuildPath:      "gs://bucket/a-b/%ENGINE%/%SANITIZER%/%TARGET%/([0-9]+).zip",
				FuzzingEngines: []string{"libfuzzer", "honggfuzz"},
				Sanitizers:     []Sanitizer{{Name: "address"}, {Name: "memory"}},
			}
			jobs := jobsByName(b.jobs(p, 0))
			So(jobs, ShouldHaveLength, 3)

			So(jobs["libfuzzer_asan_a-b"].Platform, ShouldEqual, "LINUX")
			So(jobs["libfuzzer_asan_a-b"].Env, ShouldEqual, "FUZZ_TARGET_BUILD_BUCKET_PATH = gs://bucket/a-b/libfuzzer/address/%TARGET%/([0-9]+).zip\n"+
				"PROJECT_NAME = //a/b\n"+
				"SUMMARY_PREFIX = //a/b\n"+
				"MANAGED = True\n"+
				"DISK_SIZE_GB = None\n"+
				"DISABLE_DISCLOSURE = True\n"+
				"FILE_GITHUB_ISSUE = False\n"+
				"ASAN_VAR = VAL\n"+
				"BOOL_VAR = True\n"+
				"INT_VAR = 0\n"+
				"STRING_VAR = VAL\n")
			So(jobs["libfuzzer_msan_a-b"].Env, ShouldContainSubstring, "DISK_SIZE_GB = None\nEXPERIMENTAL = True\nDISABLE_DISCLOSURE = True\n")
			So(jobs["libfuzzer_msan_a-b"].Env, ShouldContainSubstring, "MSAN_VAR = VAL\n")
			So(jobs["honggfuzz_asan_a-b"].Env, ShouldContainSubstring, "MINIMIZE_JOB_OVERRIDE = libfuzzer_asan_a-b\n")
			So(jobs["honggfuzz_asan_a-b"].Env, ShouldNotContainSubstring, "ASAN_VAR")
		})

		Convey("external sources", func() {
			source := genericSource()
			source.JobSuffix = "_dbg"
			source.ExternalConfig = &config.ExternalConfig{
				ReproductionTopic:   "projects/proj/topics/reproduction",
				UpdatesSubscription: "projects/proj/subscriptions/updates",
			}
			b := &jobBuilder{cfg: &config.Config{AppID: "app"}, source: source}
			p := &Project{Name: "//a/b", FuzzingEngines: []string{"honggfuzz"}, Sanitizers: []Sanitizer{{Name: "address"}}}
			jobs := b.jobs(p, 0)
			So(jobs, ShouldHaveLength, 1)
			So(jobs[0].Name, ShouldEqual, "honggfuzz_asan_a-b_dbg")
			So(jobs[0].Fuzzers, ShouldBeEmpty)
			So(jobs[0].Env, ShouldContainSubstring, "MINIMIZE_JOB_OVERRIDE = libfuzzer_asan_a-b_dbg\n")
		})

		Convey("android projects", func() {
			b := &jobBuilder{cfg: &config.Config{AppID: "app"}, source: genericSource()}
			p := &Project{
				Name:           "android_pixel7",
				BuildPath:      "gs://bucket-android/%ENGINE%/%SANITIZER%/%TARGET%/([0-9]+).zip",
				FuzzingEngines: []string{"libfuzzer"},
				Architectures:  []string{"arm"},
				Sanitizers:     []Sanitizer{{Name: "hardware"}},
				Platform:       "ANDROID",
				QueueID:        "pixel7",
			}
			jobs := b.jobs(p, 0)
			So(jobs, ShouldHaveLength, 1)
			So(jobs[0].Name, ShouldEqual, "libfuzzer_hwasan_android_pixel7")
			So(jobs[0].Platform, ShouldEqual, "ANDROID:PIXEL7")
			So(jobs[0].Project, ShouldEqual, "android")
			So(jobs[0].Templates, ShouldResemble, []string{"engine_asan", "libfuzzer", "android"})
			So(jobs[0].Env, ShouldStartWith, "FUZZ_TARGET_BUILD_BUCKET_PATH = gs://bucket-android/libfuzzer/hardware/%TARGET%/([0-9]+).zip\n"+
				"PROJECT_NAME = android\n"+
				"SUMMARY_PREFIX = android\n")
		})

		Convey("managed engine-less android projects", func() {
			source := genericSource()
			source.BuildType = "RELEASE_BUILD_BUCKET_PATH"
			b := &jobBuilder{cfg: &config.Config{AppID: "app"}, source: source}
			p := &Project{
				Name:              "chrome_android_pixel8",
				BuildPath:         "gs://chrome/android/asan-l-([0-9.]+).zip",
				FuzzingEngines:    []string{"none"},
				Architectures:     []string{"arm"},
				Sanitizers:        []Sanitizer{{Name: "address"}},
				ManagedEngineless: true,
				Platform:          "ANDROID",
				QueueID:           "chrome-pixel8",
				Fuzzers:           []string{"blackbox1", "blackbox2"},
				AdditionalVars:    map[string]interface{}{"PKG_NAME": "org.chromium.chrome", "APP_NAME": "chrome.apk"},
			}
			jobs := b.jobs(p, 0)
			So(jobs, ShouldHaveLength, 1)
			So(jobs[0].Name, ShouldEqual, "asan_chrome_android_pixel8")
			So(jobs[0].Platform, ShouldEqual, "ANDROID:CHROME-PIXEL8")
			So(jobs[0].Templates, ShouldResemble, []string{"android"})
			So(jobs[0].Fuzzers, ShouldResemble, []string{"blackbox1", "blackbox2"})
			So(jobs[0].Env, ShouldEqual, "RELEASE_BUILD_BUCKET_PATH = gs://chrome/android/asan-l-([0-9.]+).zip\n"+
				"PROJECT_NAME = chrome_android_pixel8\n"+
				"SUMMARY_PREFIX = chrome_android_pixel8\n"+
				"MANAGED = True\n"+
				"DISK_SIZE_GB = None\n"+
				"DISABLE_DISCLOSURE = True\n"+
				"FILE_GITHUB_ISSUE = False\n"+
				"ASAN_VAR = VAL-chrome\n"+
				"BOOL_VAR = True\n"+
				"INT_VAR = 0\n"+
				"STRING_VAR = VAL\n"+
				"APP_NAME = chrome.apk\n"+
				"PKG_NAME = org.chromium.chrome\n")
		})
	})
}

func TestNormalizeName(t *testing.T) {
	t.Parallel()

	Convey("NormalizeName", t, func() {
		So(NormalizeName("//a/b"), ShouldEqual, "a-b")
		So(NormalizeName("lib_1"), ShouldEqual, "lib_1")
		So(NormalizeName("a b..c"), ShouldEqual, "a-b-c")
	})
}

func TestFormatValue(t *testing.T) {
	t.Parallel()

	Convey("formatValue", t, func() {
		So(formatValue(true), ShouldEqual, "True")
		So(formatValue(false), ShouldEqual, "False")
		So(formatValue(0), ShouldEqual, "0")
		So(formatValue(nil), ShouldEqual, "None")
		So(formatValue("x"), ShouldEqual, "x")
	})
}
