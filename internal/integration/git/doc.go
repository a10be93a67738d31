// Package git looks up source-control state for project roots.
//
// Only the current branch is needed: variable substitution expands
// {REPO_BRANCH_SHORT} from the first project root. Repositories are read
// with go-git, so no git binary is required.
package git
