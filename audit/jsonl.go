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
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// JSONLSink appends entries as JSON lines to a size-rotated file.
type JSONLSink struct {
	mu  sync.Mutex
	out *lumberjack.Logger
}

var _ Sink = (*JSONLSink)(nil)

// NewJSONLSink writes to path, rotating at maxSizeMB and keeping
// maxBackups compressed backups.
func NewJSONLSink(path string, maxSizeMB, maxBackups int) (*JSONLSink, error) {
	if path == "" {
		return nil, errors.New("log path cannot be empty")
	}
	return &JSONLSink{out: &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		Compress:   true,
	}}, nil
}

func (s *JSONLSink) Write(_ context.Context, e Entry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding entry: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.out.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("writing entry: %w", err)
	}
	return nil
}

// Close closes the current log file.
func (s *JSONLSink) Close() error {
	return s.out.Close()
}
