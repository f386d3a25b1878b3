package services

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"zkbuild/internal/binfmt"
)

// Guest compile target. The toolchain inside the builder image carries the
// matching target definition; together with the pinned image tag this fixes
// the compiler output bit-for-bit.
const (
	guestToolchain = "+zkvm"
	guestTarget    = "riscv32im-zkvm-elf"
)

// dockerIgnore limits the build context: version-control metadata, prior
// build output, and transient directories never reach the engine, so the
// context stays minimal and reproducible.
const dockerIgnore = `**/Dockerfile
**/.git
**/node_modules
**/target
**/tmp
`

// BuildDescription is a synthesized two-stage build plan: a "build" stage
// that fetches dependencies and compiles, and an "export" stage that holds
// nothing but the resulting binaries.
type BuildDescription struct {
	Dockerfile string
	Ignore     string
}

// DockerfileGenerator synthesizes the build description for a guest package
type DockerfileGenerator struct {
	logger       *zap.Logger
	builderImage string
}

// NewDockerfileGenerator creates a new build description generator
func NewDockerfileGenerator(logger *zap.Logger, builderImage string) *DockerfileGenerator {
	return &DockerfileGenerator{
		logger:       logger,
		builderImage: builderImage,
	}
}

// Synthesize renders the build description. It is a pure function of its
// inputs: the manifest path relative to the build context, the normalized
// package name, and the selected features.
//
// All values that influence the compiled output are explicit ENV bindings in
// the build stage; no ambient host environment leaks into the build.
func (g *DockerfileGenerator) Synthesize(relManifestPath, pkgName string, features []string) BuildDescription {
	rustflags := fmt.Sprintf(
		"-C passes=loweratomic -C link-arg=-Ttext=0x%08X -C link-arg=--fatal-warnings",
		binfmt.TextStart,
	)

	commonArgs := []string{
		"--locked",
		"--target", guestTarget,
		"--manifest-path", "$CARGO_MANIFEST_PATH",
	}

	buildArgs := commonArgs
	if len(features) > 0 {
		buildArgs = append(append([]string{}, commonArgs...), "--features", strings.Join(features, ","))
	}

	fetchCmd := strings.Join(append([]string{"cargo", guestToolchain, "fetch"}, commonArgs...), " ")
	buildCmd := strings.Join(append([]string{"cargo", guestToolchain, "build", "--release"}, buildArgs...), " ")

	var b strings.Builder
	fmt.Fprintf(&b, "FROM %s AS build\n", g.builderImage)
	b.WriteString("WORKDIR /src\n")
	b.WriteString("COPY . .\n")
	fmt.Fprintf(&b, "ENV CARGO_MANIFEST_PATH=%q\n", relManifestPath)
	fmt.Fprintf(&b, "ENV RUSTFLAGS=%q\n", rustflags)
	b.WriteString("ENV CARGO_TARGET_DIR=\"target\"\n")
	// Fetching in its own layer lets the engine cache dependency downloads
	// when only source (not the lockfile) changed.
	fmt.Fprintf(&b, "RUN %s\n", fetchCmd)
	fmt.Fprintf(&b, "RUN %s\n", buildCmd)
	b.WriteString("\n")
	b.WriteString("# export stage\n")
	b.WriteString("FROM scratch AS export\n")
	fmt.Fprintf(&b, "COPY --from=build /src/target/%s/release /%s\n", guestTarget, pkgName)

	return BuildDescription{
		Dockerfile: b.String(),
		Ignore:     dockerIgnore,
	}
}

// Write stores the description in dir and returns the Dockerfile path.
//
// Overwrites any existing files; dir is expected to be a fresh temporary
// directory owned by the caller.
func (g *DockerfileGenerator) Write(dir string, desc BuildDescription) (string, error) {
	dockerfilePath := filepath.Join(dir, "Dockerfile")
	if err := os.WriteFile(dockerfilePath, []byte(desc.Dockerfile), 0644); err != nil {
		return "", fmt.Errorf("failed to write Dockerfile: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "Dockerfile.dockerignore"), []byte(desc.Ignore), 0644); err != nil {
		return "", fmt.Errorf("failed to write dockerignore: %w", err)
	}

	g.logger.Debug("Synthesized build description",
		zap.String("path", dockerfilePath),
		zap.String("builder_image", g.builderImage),
	)

	return dockerfilePath, nil
}
