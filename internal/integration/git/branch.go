package git

import (
	"errors"
	"fmt"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// shortHashLen matches git's default abbreviation.
const shortHashLen = 7

// ShortBranch returns the short name of the branch checked out in the
// repository containing root ("main", "feature/x"). A detached HEAD yields
// the abbreviated commit hash.
func ShortBranch(root string) (string, error) {
	repo, err := gogit.PlainOpenWithOptions(root, &gogit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, gogit.ErrRepositoryNotExists) {
			return "", fmt.Errorf("%w: %s", ErrNotRepository, root)
		}
		return "", fmt.Errorf("open repository %s: %w", root, err)
	}

	head, err := repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return "", ErrNoHead
		}
		return "", fmt.Errorf("read HEAD: %w", err)
	}

	if head.Name().IsBranch() {
		return head.Name().Short(), nil
	}

	hash := head.Hash().String()
	if len(hash) > shortHashLen {
		hash = hash[:shortHashLen]
	}
	return hash, nil
}

// Resolver adapts ShortBranch to the variable substitution collaborator.
type Resolver struct{}

// ShortBranch implements host.BranchResolver.
func (Resolver) ShortBranch(root string) (string, error) {
	return ShortBranch(root)
}
