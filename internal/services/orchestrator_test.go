package services

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"zkbuild/internal/domain"
)

type fakeProber struct {
	calls int
	err   error
}

func (f *fakeProber) EnsureRunning(ctx context.Context, maxWait time.Duration) error {
	f.calls++
	return f.err
}

type fakeMetadata struct {
	pkg        *Package
	err        error
	lockChecks int
}

func (f *fakeMetadata) RootPackage(ctx context.Context, manifestPath string) (*Package, error) {
	return f.pkg, f.err
}

func (f *fakeMetadata) CheckLockfile(manifestPath string) {
	f.lockChecks++
}

type fakeBuilder struct {
	calls      int
	err        error
	srcDir     string
	outputDir  string
	dockerfile string // contents captured at invocation time
}

func (f *fakeBuilder) Build(ctx context.Context, srcDir, dockerfilePath, outputDir string) error {
	f.calls++
	f.srcDir = srcDir
	f.outputDir = outputDir
	if data, err := os.ReadFile(dockerfilePath); err == nil {
		f.dockerfile = string(data)
	}
	return f.err
}

type fakeIdentifier struct {
	id  string
	err error
}

func (f *fakeIdentifier) Identify(path string) (string, error) {
	return f.id, f.err
}

func newTestOrchestrator(p engineProber, m metadataResolver, b imageBuilder, id artifactIdentifier) *BuildOrchestrator {
	logger := zap.NewNop()
	return &BuildOrchestrator{
		logger:       logger,
		probeTimeout: time.Second,
		prober:       p,
		metadata:     m,
		generator:    NewDockerfileGenerator(logger, testBuilderImage),
		builder:      b,
		git:          NewGitService(logger),
		identifier:   id,
	}
}

// newTestSource lays out a source root with a manifest inside it.
func newTestSource(t *testing.T) (srcDir, manifestPath string) {
	t.Helper()
	srcDir = t.TempDir()
	manifestPath = filepath.Join(srcDir, "Cargo.toml")
	if err := os.WriteFile(manifestPath, []byte("[package]\nname = \"my-guest\"\n"), 0644); err != nil {
		t.Fatalf("failed to write manifest: %v", err)
	}
	return srcDir, manifestPath
}

func TestRun_SkipSwitch(t *testing.T) {
	t.Setenv(SkipBuildEnv, "1")

	prober := &fakeProber{}
	builder := &fakeBuilder{}
	orch := newTestOrchestrator(prober, &fakeMetadata{}, builder, &fakeIdentifier{})

	report, err := orch.Run(context.Background(), BuildRequest{ManifestPath: "Cargo.toml", SrcDir: "."})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Status != BuildStatusSkipped {
		t.Errorf("status: got %s, want %s", report.Status, BuildStatusSkipped)
	}
	if prober.calls != 0 || builder.calls != 0 {
		t.Errorf("skipped run must not touch the engine (probe=%d build=%d)", prober.calls, builder.calls)
	}

	var out bytes.Buffer
	report.Print(&out)
	if out.Len() != 0 {
		t.Errorf("skipped run must print nothing, got: %s", out.String())
	}
}

func TestRun_ManifestOutsideSourceRoot(t *testing.T) {
	t.Setenv(SkipBuildEnv, "")
	srcDir, _ := newTestSource(t)
	_, outsideManifest := newTestSource(t)

	builder := &fakeBuilder{}
	orch := newTestOrchestrator(&fakeProber{}, &fakeMetadata{}, builder, &fakeIdentifier{})

	_, err := orch.Run(context.Background(), BuildRequest{ManifestPath: outsideManifest, SrcDir: srcDir})
	if err == nil {
		t.Fatal("expected an error")
	}
	var domainErr *domain.Error
	if !errors.As(err, &domainErr) || domainErr.Code != domain.ErrCodeInvalidInput {
		t.Fatalf("expected %s, got: %v", domain.ErrCodeInvalidInput, err)
	}
	if builder.calls != 0 {
		t.Error("build must not run for invalid input")
	}
}

func TestRun_EngineUnavailable(t *testing.T) {
	t.Setenv(SkipBuildEnv, "")
	srcDir, manifest := newTestSource(t)

	probeErr := domain.NewError(domain.ErrCodeEngineUnavailable, "engine down")
	builder := &fakeBuilder{}
	orch := newTestOrchestrator(&fakeProber{err: probeErr}, &fakeMetadata{}, builder, &fakeIdentifier{})

	_, err := orch.Run(context.Background(), BuildRequest{ManifestPath: manifest, SrcDir: srcDir})
	if !errors.Is(err, probeErr) {
		t.Fatalf("expected probe error to propagate, got: %v", err)
	}
	if builder.calls != 0 {
		t.Error("build must not run when the engine is unavailable")
	}
}

func TestRun_BuildFailurePropagates(t *testing.T) {
	t.Setenv(SkipBuildEnv, "")
	srcDir, manifest := newTestSource(t)

	pkg := &Package{Name: "my-guest", Targets: []Target{{Name: "fib", Kind: []string{"bin"}}}}
	buildErr := domain.NewError(domain.ErrCodeBuildFailed, "engine exited non-zero")
	orch := newTestOrchestrator(&fakeProber{}, &fakeMetadata{pkg: pkg}, &fakeBuilder{err: buildErr}, &fakeIdentifier{})

	report, err := orch.Run(context.Background(), BuildRequest{ManifestPath: manifest, SrcDir: srcDir})
	if !errors.Is(err, buildErr) {
		t.Fatalf("expected build error to propagate, got: %v", err)
	}
	if report != nil {
		t.Error("failed run must not produce a report")
	}
}

func TestRun_EndToEnd(t *testing.T) {
	t.Setenv(SkipBuildEnv, "")
	srcDir, manifest := newTestSource(t)

	pkg := &Package{Name: "my-guest", Targets: []Target{
		{Name: "fib", Kind: []string{"bin"}},
		{Name: "my-guest", Kind: []string{"lib"}}, // non-bin targets are ignored
	}}
	metadata := &fakeMetadata{pkg: pkg}
	builder := &fakeBuilder{}
	orch := newTestOrchestrator(&fakeProber{}, metadata, builder, &fakeIdentifier{id: "abc123"})

	report, err := orch.Run(context.Background(), BuildRequest{
		ManifestPath: manifest,
		SrcDir:       srcDir,
		Features:     []string{"a", "b"},
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if report.Status != BuildStatusSuccess {
		t.Errorf("status: got %s, want %s", report.Status, BuildStatusSuccess)
	}
	if len(report.Artifacts) != 1 {
		t.Fatalf("expected exactly 1 artifact, got %d", len(report.Artifacts))
	}
	artifact := report.Artifacts[0]
	if artifact.Target != "fib" || artifact.ImageID == "" {
		t.Errorf("unexpected artifact: %+v", artifact)
	}
	if !strings.HasSuffix(artifact.Path, filepath.Join("docker", "my_guest", "fib")) {
		t.Errorf("unexpected artifact path: %s", artifact.Path)
	}

	if metadata.lockChecks != 1 {
		t.Errorf("lockfile check ran %d times, want 1", metadata.lockChecks)
	}
	if builder.calls != 1 {
		t.Fatalf("build ran %d times, want 1", builder.calls)
	}
	if builder.outputDir != filepath.Join(builder.srcDir, filepath.FromSlash(TargetDir)) {
		t.Errorf("output dir %s is not under the source root's target dir", builder.outputDir)
	}
	if !strings.Contains(builder.dockerfile, "--features a,b") {
		t.Errorf("features were not threaded into the build description:\n%s", builder.dockerfile)
	}

	var out bytes.Buffer
	report.Print(&out)
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	var imageIDLines []string
	for _, line := range lines {
		if strings.HasPrefix(line, "ImageID: ") {
			imageIDLines = append(imageIDLines, line)
		}
	}
	if len(imageIDLines) != 1 {
		t.Fatalf("expected exactly one ImageID line, got %d:\n%s", len(imageIDLines), out.String())
	}
	want := "ImageID: abc123 - " + filepath.Join(filepath.FromSlash(TargetDir), "my_guest", "fib")
	if imageIDLines[0] != want {
		t.Errorf("report line:\n got %q\nwant %q", imageIDLines[0], want)
	}
}
