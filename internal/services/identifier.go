package services

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"zkbuild/internal/binfmt"
	"zkbuild/internal/domain"
)

// ElfIdentifierService computes the content identifier of a produced binary.
//
// The heavy lifting (ELF interpretation, page-quantized canonical memory
// form, digest reduction) belongs to the binfmt package and is a stable
// contract this service must not second-guess; its own job is to read the
// bytes, invoke the two steps in order, and attach file/step context to any
// failure. The memory bound and page granularity are fixed platform
// constants: using different values on different hosts would make the
// identifiers incomparable.
type ElfIdentifierService struct {
	logger   *zap.Logger
	maxMem   uint32
	pageSize uint32
}

// NewElfIdentifierService creates a new identifier service
func NewElfIdentifierService(logger *zap.Logger) *ElfIdentifierService {
	return &ElfIdentifierService{
		logger:   logger,
		maxMem:   binfmt.GuestMaxMem,
		pageSize: binfmt.PageSize,
	}
}

// Identify loads the binary at path and returns its image ID.
func (s *ElfIdentifierService) Identify(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", domain.NewErrorWithCause(domain.ErrCodeElfLoadFailed,
			fmt.Sprintf("failed to read binary %s", path), err)
	}

	program, err := binfmt.LoadProgram(data, s.maxMem)
	if err != nil {
		return "", domain.NewErrorWithCause(domain.ErrCodeElfLoadFailed,
			fmt.Sprintf("failed to load %s", path), err)
	}

	image, err := binfmt.NewMemoryImage(program, s.pageSize)
	if err != nil {
		return "", domain.NewErrorWithCause(domain.ErrCodeElfLoadFailed,
			fmt.Sprintf("failed to build memory image for %s", path), err)
	}

	id := image.ID()
	s.logger.Debug("Computed image ID",
		zap.String("path", path),
		zap.String("image_id", id.String()),
		zap.Int("pages", image.NumPages()),
	)

	return id.Encoded(), nil
}
