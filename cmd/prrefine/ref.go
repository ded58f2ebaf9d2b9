/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"fmt"
	"strconv"
	"strings"
)

// parseRepo splits "owner/repo".
func parseRepo(s string) (string, string, error) {
	owner, repo, ok := strings.Cut(s, "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return "", "", fmt.Errorf("repository %q must look like owner/repo", s)
	}
	return owner, repo, nil
}

// parsePRRef splits "owner/repo#number".
func parsePRRef(s string) (string, string, int, error) {
	slug, num, ok := strings.Cut(s, "#")
	if !ok {
		return "", "", 0, fmt.Errorf("pull request %q must look like owner/repo#number", s)
	}
	owner, repo, err := parseRepo(slug)
	if err != nil {
		return "", "", 0, err
	}
	n, err := strconv.Atoi(num)
	if err != nil || n <= 0 {
		return "", "", 0, fmt.Errorf("pull request number %q must be a positive integer", num)
	}
	return owner, repo, n, nil
}
