package binfmt

// Fixed memory layout constants for the zkVM guest target.
//
// These values are part of the identifier contract: every host must load
// guest binaries with the same maximum memory size and page granularity,
// or the computed image IDs will not be comparable across hosts.
const (
	// PageSize is the page granularity of the canonical memory image, in bytes.
	PageSize uint32 = 1024

	// GuestMaxMem is the maximum addressable guest memory (192 MiB).
	GuestMaxMem uint32 = 0x0C00_0000

	// TextStart is the fixed link base address for guest text sections.
	// The build environment passes this to the linker so that two builds
	// of the same source lay out code identically.
	TextStart uint32 = 0x0020_0800
)
