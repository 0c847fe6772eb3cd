// Package gitutil provides utilities for interacting with git repositories.
package gitutil

import (
	"os/exec"
	"strings"
)

// IsGitRepo checks if the given path is inside a git repository.
func IsGitRepo(root string) bool {
	cmd := exec.Command("git", "-C", root, "rev-parse", "--git-dir")
	return cmd.Run() == nil
}

// GetHeadCommit returns the current HEAD commit hash.
func GetHeadCommit(root string) (string, error) {
	cmd := exec.Command("git", "-C", root, "rev-parse", "HEAD")
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// IsDirtyWorkingTree checks if there are uncommitted changes.
func IsDirtyWorkingTree(root string) bool {
	cmd := exec.Command("git", "-C", root, "status", "--porcelain")
	out, err := cmd.Output()
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(out)) != ""
}

// CommitHash returns the HEAD commit for artifact stamping. Absence of
// git, or a repository without commits, yields an empty string rather
// than an error.
func CommitHash(root string) string {
	if !IsGitRepo(root) {
		return ""
	}
	hash, err := GetHeadCommit(root)
	if err != nil {
		return ""
	}
	return hash
}
