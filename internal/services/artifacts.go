package services

import (
	"path/filepath"
	"strings"
)

// TargetDir is the fixed output root for exported guest binaries, relative
// to the source root. The compile step inside the build stage names its
// output directory after the normalized package name, so resolution here
// must apply the same normalization.
const TargetDir = "target/riscv-guest/riscv32im-zkvm-elf/docker"

// ArtifactRecord describes one produced binary: its target name, where it
// was published, and the identifier computed over it.
type ArtifactRecord struct {
	Target  string
	Path    string // absolute path on the host
	RelPath string // path relative to the source root, used in the report
	ImageID string
}

// NormalizePackageName converts a package name to the directory name the
// compile step uses (separators replaced with underscores).
func NormalizePackageName(name string) string {
	return strings.ReplaceAll(name, "-", "_")
}

// ElfPath returns the expected host path of a produced binary. Pure path
// computation; existence is guaranteed by a prior successful build, or the
// identifier step will fail loudly.
func ElfPath(srcDir, pkgName, targetName string) string {
	return filepath.Join(srcDir, filepath.FromSlash(TargetDir), NormalizePackageName(pkgName), targetName)
}

// RelElfPath returns the published path of a binary relative to the source
// root, as printed in the report.
func RelElfPath(pkgName, targetName string) string {
	return filepath.Join(filepath.FromSlash(TargetDir), NormalizePackageName(pkgName), targetName)
}
