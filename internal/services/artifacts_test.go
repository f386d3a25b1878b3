package services

import (
	"path/filepath"
	"testing"
)

func TestNormalizePackageName(t *testing.T) {
	cases := map[string]string{
		"my-pkg":        "my_pkg",
		"already_fine":  "already_fine",
		"multi-part-id": "multi_part_id",
	}
	for in, want := range cases {
		if got := NormalizePackageName(in); got != want {
			t.Errorf("NormalizePackageName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestElfPath_NormalizesPackageName(t *testing.T) {
	got := ElfPath("/root", "my-pkg", "my_bin")
	want := filepath.Join("/root", "target", "riscv-guest", "riscv32im-zkvm-elf", "docker", "my_pkg", "my_bin")

	if got != want {
		t.Errorf("ElfPath = %q, want %q", got, want)
	}
}

func TestElfPath_Idempotent(t *testing.T) {
	first := ElfPath("/root", "my-pkg", "fib")
	second := ElfPath("/root", "my-pkg", "fib")

	if first != second {
		t.Errorf("repeated resolution differs: %q != %q", first, second)
	}
}

func TestRelElfPath(t *testing.T) {
	got := RelElfPath("my-pkg", "fib")
	want := filepath.Join(filepath.FromSlash(TargetDir), "my_pkg", "fib")

	if got != want {
		t.Errorf("RelElfPath = %q, want %q", got, want)
	}
}
