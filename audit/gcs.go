/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"

	"cloud.google.com/go/storage"
)

// GCSArchiver uploads run summaries to a Cloud Storage bucket as
// <prefix>/<owner>/<repo>/<pr>/<run id>.json.
type GCSArchiver struct {
	bucket *storage.BucketHandle
	prefix string
}

var _ Archiver = (*GCSArchiver)(nil)

// NewGCSArchiver archives into bucket under prefix.
func NewGCSArchiver(client *storage.Client, bucket, prefix string) (*GCSArchiver, error) {
	switch {
	case client == nil:
		return nil, errors.New("storage client cannot be nil")
	case bucket == "":
		return nil, errors.New("bucket cannot be empty")
	}
	return &GCSArchiver{bucket: client.Bucket(bucket), prefix: prefix}, nil
}

// ObjectName returns the object a summary is archived to.
func (a *GCSArchiver) ObjectName(s Summary) string {
	return path.Join(a.prefix, s.Repo, fmt.Sprint(s.PR), s.RunID+".json")
}

func (a *GCSArchiver) Archive(ctx context.Context, s Summary) error {
	w := a.bucket.Object(a.ObjectName(s)).NewWriter(ctx)
	w.ContentType = "application/json"
	if err := json.NewEncoder(w).Encode(s); err != nil {
		_ = w.Close()
		return fmt.Errorf("encoding summary: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("uploading summary: %w", err)
	}
	return nil
}
