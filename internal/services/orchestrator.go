package services

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"zkbuild/internal/domain"
	"zkbuild/internal/infra"
)

// SkipBuildEnv is the only ambient environment variable the orchestrator
// reads. When set to a non-empty value the run is skipped entirely: no
// engine invocation happens and the output directory is left untouched.
const SkipBuildEnv = "ZKBUILD_SKIP_BUILD"

// BuildStatus captures the outcome of an orchestration run. There is no
// failed status: failures propagate as errors, never as a result value.
type BuildStatus string

const (
	BuildStatusSuccess BuildStatus = "success"
	BuildStatusSkipped BuildStatus = "skipped"
)

// BuildRequest is the immutable input to one orchestration run
type BuildRequest struct {
	ManifestPath string   // package manifest, must live inside SrcDir
	SrcDir       string   // build context sent to the engine
	Features     []string // feature names forwarded to the compile step
}

// BuildReport is the result of a successful (or skipped) run
type BuildReport struct {
	Status    BuildStatus
	Artifacts []ArtifactRecord
}

// Print writes the ImageID report for every produced binary.
func (r *BuildReport) Print(w io.Writer) {
	if r.Status != BuildStatusSuccess {
		return
	}
	fmt.Fprintln(w, "ELFs ready at:")
	for _, a := range r.Artifacts {
		fmt.Fprintf(w, "ImageID: %s - %s\n", a.ImageID, a.RelPath)
	}
}

// Narrow seams over the phase services so runs can be exercised without a
// container engine.
type engineProber interface {
	EnsureRunning(ctx context.Context, maxWait time.Duration) error
}

type metadataResolver interface {
	RootPackage(ctx context.Context, manifestPath string) (*Package, error)
	CheckLockfile(manifestPath string)
}

type imageBuilder interface {
	Build(ctx context.Context, srcDir, dockerfilePath, outputDir string) error
}

type artifactIdentifier interface {
	Identify(path string) (string, error)
}

// BuildOrchestrator drives one reproducible build run: a strictly linear
// sequence of phases with no branching beyond the skip short-circuit and the
// retry loop inside the readiness probe.
type BuildOrchestrator struct {
	logger       *zap.Logger
	probeTimeout time.Duration
	prober       engineProber
	metadata     metadataResolver
	generator    *DockerfileGenerator
	builder      imageBuilder
	git          *GitService
	identifier   artifactIdentifier
}

// NewBuildOrchestrator wires the orchestrator from configuration.
func NewBuildOrchestrator(logger *zap.Logger, cfg *infra.Config) *BuildOrchestrator {
	return &BuildOrchestrator{
		logger:       logger,
		probeTimeout: cfg.Engine.ProbeTimeout,
		prober:       NewEngineProbeService(logger, cfg.Engine.Binary),
		metadata:     NewCargoMetadataService(logger),
		generator:    NewDockerfileGenerator(logger, cfg.Engine.BuilderImage),
		builder:      NewDockerBuildService(logger, cfg.Engine.Binary),
		git:          NewGitService(logger),
		identifier:   NewElfIdentifierService(logger),
	}
}

// Run executes one orchestration run end-to-end. Either every binary target
// of the package gets a resolved, identified artifact, or the whole run
// fails; there is no partial success.
func (o *BuildOrchestrator) Run(ctx context.Context, req BuildRequest) (*BuildReport, error) {
	if os.Getenv(SkipBuildEnv) != "" {
		o.logger.Info("Skipping build", zap.String("reason", SkipBuildEnv+" is set"))
		return &BuildReport{Status: BuildStatusSkipped}, nil
	}

	if err := o.prober.EnsureRunning(ctx, o.probeTimeout); err != nil {
		return nil, err
	}

	srcDir, err := canonicalizePath(req.SrcDir)
	if err != nil {
		return nil, domain.NewErrorWithCause(domain.ErrCodeInvalidInput,
			fmt.Sprintf("failed to canonicalize source root %s", req.SrcDir), err)
	}
	manifestPath, err := canonicalizePath(req.ManifestPath)
	if err != nil {
		return nil, domain.NewErrorWithCause(domain.ErrCodeManifestNotFound,
			fmt.Sprintf("manifest not found at %s", req.ManifestPath), err)
	}

	// The engine only ever sees srcDir, so the manifest must live inside it.
	relManifest, err := filepath.Rel(srcDir, manifestPath)
	if err != nil || relManifest == ".." || strings.HasPrefix(relManifest, ".."+string(filepath.Separator)) {
		return nil, domain.NewError(domain.ErrCodeInvalidInput,
			fmt.Sprintf("manifest %s is outside the source root %s", manifestPath, srcDir))
	}

	pkg, err := o.metadata.RootPackage(ctx, manifestPath)
	if err != nil {
		return nil, err
	}

	o.logger.Info("Building guest binaries",
		zap.String("package", pkg.Name),
		zap.String("target", guestTarget),
		zap.String("context", srcDir),
	)

	o.metadata.CheckLockfile(manifestPath)
	o.git.InspectWorktree(srcDir)

	pkgName := NormalizePackageName(pkg.Name)
	outputDir := filepath.Join(srcDir, filepath.FromSlash(TargetDir))

	// The synthesized description lives only for the duration of the engine
	// invocation.
	tempDir, err := os.MkdirTemp("", "zkbuild-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(tempDir)

	desc := o.generator.Synthesize(filepath.ToSlash(relManifest), pkgName, req.Features)
	dockerfilePath, err := o.generator.Write(tempDir, desc)
	if err != nil {
		return nil, err
	}

	if err := o.builder.Build(ctx, srcDir, dockerfilePath, outputDir); err != nil {
		return nil, err
	}

	report := &BuildReport{Status: BuildStatusSuccess}
	for _, target := range pkg.BinTargets() {
		path := ElfPath(srcDir, pkg.Name, target.Name)
		id, err := o.identifier.Identify(path)
		if err != nil {
			return nil, fmt.Errorf("target %s: %w", target.Name, err)
		}
		report.Artifacts = append(report.Artifacts, ArtifactRecord{
			Target:  target.Name,
			Path:    path,
			RelPath: RelElfPath(pkg.Name, target.Name),
			ImageID: id,
		})
	}

	return report, nil
}

// canonicalizePath resolves a path to an absolute, symlink-free form so that
// the manifest containment check and all derived paths are host-independent.
func canonicalizePath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}
