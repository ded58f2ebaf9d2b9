/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package audit

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSQLiteStoreReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "audit.db")

	store, err := OpenSQLite(ctx, path)
	require.NoError(t, err, "failed to open store")

	code := strings.Repeat("fn main() {}\n", 2000)
	at := time.Date(2026, 5, 4, 3, 2, 1, 0, time.UTC)
	require.NoError(t, store.Write(ctx, Entry{
		RunID:       "run-a",
		Kind:        KindBuild,
		Time:        at,
		Repo:        "octo/app",
		PR:          3,
		Path:        "Cargo.toml",
		Attempt:     2,
		Command:     "cargo generate-lockfile",
		ExitCode:    101,
		UpdatedCode: code,
	}), "failed to write entry")
	require.NoError(t, store.Close(), "failed to close store")

	store, err = OpenSQLite(ctx, path)
	require.NoError(t, err, "failed to reopen store")
	defer store.Close()

	hist, err := store.History(ctx, "octo/app", 3)
	require.NoError(t, err, "failed to read history")
	require.Len(t, hist, 1, "expected the entry to survive reopening")

	got := hist[0]
	require.Equal(t, KindBuild, got.Kind)
	require.Equal(t, 2, got.Attempt)
	require.Equal(t, 101, got.ExitCode)
	require.Equal(t, "cargo generate-lockfile", got.Command)
	require.Equal(t, code, got.UpdatedCode, "compressed code should read back intact")
	require.Empty(t, got.OldCode)
	require.True(t, got.Time.Equal(at), "time: got %v, wanted %v", got.Time, at)

	files, err := store.ProcessedFiles(ctx, "octo/app", 3)
	require.NoError(t, err, "failed to list processed files")
	require.Empty(t, files, "build entries are not processed files")
}

func TestOpenSQLiteRejectsEmptyPath(t *testing.T) {
	_, err := OpenSQLite(context.Background(), "")
	require.Error(t, err)
}
