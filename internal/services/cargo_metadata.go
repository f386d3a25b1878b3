package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"

	"zkbuild/internal/domain"
)

// Target is one build target of a package
type Target struct {
	Name string   `json:"name"`
	Kind []string `json:"kind"`
}

// IsBin reports whether the target produces a binary.
func (t Target) IsBin() bool {
	for _, k := range t.Kind {
		if k == "bin" {
			return true
		}
	}
	return false
}

// Package describes the root package of a manifest: its name and targets
type Package struct {
	Name    string   `json:"name"`
	Targets []Target `json:"targets"`
}

// BinTargets returns the package's binary targets in declaration order.
func (p *Package) BinTargets() []Target {
	var bins []Target
	for _, t := range p.Targets {
		if t.IsBin() {
			bins = append(bins, t)
		}
	}
	return bins
}

// CargoMetadataService resolves package metadata for a manifest.
//
// The authoritative source is `cargo metadata`; when the cargo binary is not
// installed on the host the service falls back to reading the manifest
// directly, including the src/main.rs and src/bin/*.rs autobin conventions.
type CargoMetadataService struct {
	logger *zap.Logger
}

// NewCargoMetadataService creates a new metadata service
func NewCargoMetadataService(logger *zap.Logger) *CargoMetadataService {
	return &CargoMetadataService{
		logger: logger,
	}
}

// RootPackage resolves the root package for the given manifest path.
func (s *CargoMetadataService) RootPackage(ctx context.Context, manifestPath string) (*Package, error) {
	if _, err := os.Stat(manifestPath); err != nil {
		if os.IsNotExist(err) {
			return nil, domain.NewErrorWithCause(domain.ErrCodeManifestNotFound,
				fmt.Sprintf("manifest not found at %s", manifestPath), err)
		}
		return nil, fmt.Errorf("failed to stat manifest %s: %w", manifestPath, err)
	}

	if cargo, err := exec.LookPath("cargo"); err == nil {
		return s.queryMetadata(ctx, cargo, manifestPath)
	}

	s.logger.Debug("cargo not found on PATH, reading manifest directly",
		zap.String("manifest", manifestPath))
	return s.parseManifest(manifestPath)
}

// CheckLockfile warns when no dependency lockfile sits next to the manifest.
//
// This is a soft precondition: without a lockfile the build still runs, but
// dependency resolution may drift between hosts, so reproducibility is only
// best-effort.
func (s *CargoMetadataService) CheckLockfile(manifestPath string) {
	lockfile := filepath.Join(filepath.Dir(manifestPath), "Cargo.lock")
	if _, err := os.Stat(lockfile); err != nil {
		s.logger.Warn("Cargo.lock not found; builds may not be reproducible across hosts",
			zap.String("expected", lockfile))
	}
}

// queryMetadata shells out to `cargo metadata` and picks the package whose
// manifest path matches the requested one.
func (s *CargoMetadataService) queryMetadata(ctx context.Context, cargo, manifestPath string) (*Package, error) {
	cmd := exec.CommandContext(ctx, cargo,
		"metadata", "--format-version=1", "--no-deps", "--manifest-path", manifestPath)
	out, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			err = fmt.Errorf("%w: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, domain.NewErrorWithCause(domain.ErrCodeManifestMalformed,
			fmt.Sprintf("failed to resolve metadata for %s", manifestPath), err)
	}

	var meta struct {
		Packages []struct {
			Package
			ManifestPath string `json:"manifest_path"`
		} `json:"packages"`
	}
	if err := json.Unmarshal(out, &meta); err != nil {
		return nil, domain.NewErrorWithCause(domain.ErrCodeManifestMalformed,
			"failed to decode cargo metadata output", err)
	}

	for _, pkg := range meta.Packages {
		if pkg.ManifestPath == manifestPath {
			p := pkg.Package
			return &p, nil
		}
	}
	if len(meta.Packages) == 1 {
		p := meta.Packages[0].Package
		return &p, nil
	}

	return nil, domain.NewError(domain.ErrCodeManifestMalformed,
		fmt.Sprintf("no root package found for %s", manifestPath))
}

// cargoManifest is the subset of a Cargo.toml the fallback reader needs.
type cargoManifest struct {
	Package struct {
		Name string `toml:"name"`
	} `toml:"package"`
	Bin []struct {
		Name string `toml:"name"`
		Path string `toml:"path"`
	} `toml:"bin"`
}

// parseManifest reads package name and binary targets from the manifest
// itself, applying cargo's autobin conventions for targets that are not
// declared explicitly.
func (s *CargoMetadataService) parseManifest(manifestPath string) (*Package, error) {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", manifestPath, err)
	}

	var m cargoManifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, domain.NewErrorWithCause(domain.ErrCodeManifestMalformed,
			fmt.Sprintf("failed to parse manifest %s", manifestPath), err)
	}
	if m.Package.Name == "" {
		return nil, domain.NewError(domain.ErrCodeManifestMalformed,
			fmt.Sprintf("manifest %s has no [package] name", manifestPath))
	}

	pkg := &Package{Name: m.Package.Name}
	seen := make(map[string]bool)

	for _, bin := range m.Bin {
		name := bin.Name
		if name == "" && bin.Path != "" {
			name = strings.TrimSuffix(filepath.Base(bin.Path), ".rs")
		}
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		pkg.Targets = append(pkg.Targets, Target{Name: name, Kind: []string{"bin"}})
	}

	dir := filepath.Dir(manifestPath)
	if _, err := os.Stat(filepath.Join(dir, "src", "main.rs")); err == nil && !seen[m.Package.Name] {
		seen[m.Package.Name] = true
		pkg.Targets = append(pkg.Targets, Target{Name: m.Package.Name, Kind: []string{"bin"}})
	}
	entries, _ := os.ReadDir(filepath.Join(dir, "src", "bin"))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".rs") {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".rs")
		if seen[name] {
			continue
		}
		seen[name] = true
		pkg.Targets = append(pkg.Targets, Target{Name: name, Kind: []string{"bin"}})
	}

	return pkg, nil
}
