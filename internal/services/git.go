package services

import (
	"errors"

	git "github.com/go-git/go-git/v5"
	"go.uber.org/zap"
)

// GitService reports build provenance for the source tree.
//
// Image IDs assert equivalence of builds, which is only meaningful against
// committed source: a dirty worktree produces identifiers nobody else can
// reproduce. The checks here never fail the build; a source root that is not
// a git repository at all is fine.
type GitService struct {
	logger *zap.Logger
}

// NewGitService creates a new Git service
func NewGitService(logger *zap.Logger) *GitService {
	return &GitService{
		logger: logger,
	}
}

// InspectWorktree logs the HEAD commit of the source root and warns when the
// worktree has uncommitted changes.
func (s *GitService) InspectWorktree(srcDir string) {
	repo, err := git.PlainOpenWithOptions(srcDir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			s.logger.Debug("Source root is not a git repository", zap.String("src_dir", srcDir))
		} else {
			s.logger.Debug("Failed to open source repository", zap.String("src_dir", srcDir), zap.Error(err))
		}
		return
	}

	head, err := repo.Head()
	if err != nil {
		s.logger.Debug("Failed to resolve HEAD", zap.String("src_dir", srcDir), zap.Error(err))
		return
	}

	worktree, err := repo.Worktree()
	if err != nil {
		s.logger.Debug("Failed to open worktree", zap.String("src_dir", srcDir), zap.Error(err))
		return
	}

	status, err := worktree.Status()
	if err != nil {
		s.logger.Debug("Failed to compute worktree status", zap.String("src_dir", srcDir), zap.Error(err))
		return
	}

	if !status.IsClean() {
		s.logger.Warn("Source tree has uncommitted changes; image IDs will not match a clean checkout",
			zap.String("commit", head.Hash().String()),
		)
		return
	}

	s.logger.Info("Building from clean source tree", zap.String("commit", head.Hash().String()))
}
