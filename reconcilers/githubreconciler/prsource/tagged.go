/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package prsource

import "strings"

type commentNodes struct {
	Nodes []struct {
		Body string
	}
}

type taggedPR struct {
	Number      int
	Title       string
	HeadRefName string
	BaseRefName string
	HeadRefOid  string
	Comments    commentNodes `graphql:"comments(last: 50)"`
	Reviews     struct {
		Nodes []struct {
			Body     string
			Comments commentNodes `graphql:"comments(first: 20)"`
		}
	} `graphql:"reviews(last: 20)"`
}

func (p taggedPR) tagged(tag string) bool {
	tag = strings.ToLower(tag)
	has := func(body string) bool {
		return strings.Contains(strings.ToLower(body), tag)
	}
	for _, c := range p.Comments.Nodes {
		if has(c.Body) {
			return true
		}
	}
	for _, r := range p.Reviews.Nodes {
		if has(r.Body) {
			return true
		}
		for _, c := range r.Comments.Nodes {
			if has(c.Body) {
				return true
			}
		}
	}
	return false
}
