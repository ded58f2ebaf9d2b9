/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"chainguard.dev/prrefine/regen/failure"
	"chainguard.dev/prrefine/regen/record"
	"cloud.google.com/go/storage"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

var testPR = record.PRInfo{
	Owner:      "octo",
	Repo:       "app",
	Number:     42,
	HeadBranch: "feature",
	BaseBranch: "main",
	HeadSHA:    "abc123",
}

type memSink struct {
	entries []Entry
	err     error
}

func (m *memSink) Write(_ context.Context, e Entry) error {
	m.entries = append(m.entries, e)
	return m.err
}

type memArchiver struct{ got []Summary }

func (m *memArchiver) Archive(_ context.Context, s Summary) error {
	m.got = append(m.got, s)
	return nil
}

func TestRecorder(t *testing.T) {
	ctx := context.Background()
	ok, broken := &memSink{}, &memSink{err: errors.New("disk full")}
	arch := &memArchiver{}
	r := NewRecorder(testPR, broken, ok).WithArchiver(arch)

	r.Begin(ctx)
	r.RecordFeedback(ctx, record.RegeneratedFile{Path: "a.ts", OldCode: "x", Changes: "- y", UpdatedCode: "y"})
	r.RecordBuildAttempt(ctx, "package.json", record.BuildAttempt{Number: 1, Command: "npm install", ExitCode: 1, Diagnostic: "ETARGET"})
	r.RecordError(ctx, "b.ts", failure.New(failure.Collaborator, "request timed out", nil))
	r.RecordError(ctx, "c.ts", errors.New("plain"))
	r.RecordError(ctx, "d.ts", nil)
	if err := r.Finish(ctx, nil); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	var kinds []Kind
	for _, e := range ok.entries {
		kinds = append(kinds, e.Kind)
		if e.RunID != r.RunID() || e.Repo != "octo/app" || e.PR != 42 || e.HeadSHA != "abc123" {
			t.Errorf("entry identity: got = %+v", e)
		}
	}
	want := []Kind{KindRunStarted, KindFeedback, KindBuild, KindError, KindError, KindRunFinished}
	if diff := cmp.Diff(want, kinds); diff != "" {
		t.Errorf("kinds (-want +got):\n%s", diff)
	}
	if len(broken.entries) != len(ok.entries) {
		t.Errorf("broken sink: got = %d entries, wanted = %d", len(broken.entries), len(ok.entries))
	}
	if got := ok.entries[3].ErrorKind; got != string(failure.Collaborator) {
		t.Errorf("ErrorKind: got = %q, wanted = %q", got, failure.Collaborator)
	}
	if got := ok.entries[4].ErrorKind; got != string(failure.Collaborator) {
		t.Errorf("ErrorKind(untyped): got = %q, wanted = %q", got, failure.Collaborator)
	}
	if got := ok.entries[2]; got.Attempt != 1 || got.ExitCode != 1 || got.Message != "ETARGET" {
		t.Errorf("build entry: got = %+v", got)
	}

	if len(arch.got) != 1 {
		t.Fatalf("archives: got = %d, wanted = 1", len(arch.got))
	}
	if s := arch.got[0]; s.Result != "ok" || len(s.Entries) != 6 || s.RunID != r.RunID() {
		t.Errorf("summary: got = %+v", s)
	}
}

func TestRecorderRunIDsDiffer(t *testing.T) {
	a, b := NewRecorder(testPR), NewRecorder(testPR)
	if a.RunID() == "" || a.RunID() == b.RunID() {
		t.Errorf("RunID: got = %q and %q, wanted distinct ids", a.RunID(), b.RunID())
	}
}

func TestNilRecorder(t *testing.T) {
	ctx := context.Background()
	var r *Recorder
	r.Begin(ctx)
	r.RecordFeedback(ctx, record.RegeneratedFile{})
	r.RecordBuildAttempt(ctx, "go.mod", record.BuildAttempt{})
	r.RecordError(ctx, "x", errors.New("boom"))
	if err := r.Finish(ctx, nil); err != nil {
		t.Errorf("Finish: %v", err)
	}
	if r.RunID() != "" {
		t.Errorf("RunID: got = %q, wanted empty", r.RunID())
	}
}

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	store, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "nested", "audit.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer store.Close()

	body := strings.Repeat("export const value = 42;\n", 500)
	r := NewRecorder(testPR, store)
	r.Begin(ctx)
	r.RecordFeedback(ctx, record.RegeneratedFile{Path: "src/b.ts", OldCode: body, Changes: "- typed", UpdatedCode: body + "// done\n"})
	r.RecordFeedback(ctx, record.RegeneratedFile{Path: "src/a.ts", OldCode: "a", Changes: "- x", UpdatedCode: "b"})
	r.RecordFeedback(ctx, record.RegeneratedFile{Path: "src/a.ts", OldCode: "b", Changes: "- y", UpdatedCode: "c"})

	done, err := store.ProcessedAt(ctx, "octo/app", 42, "abc123")
	if err != nil || done {
		t.Errorf("ProcessedAt before finish: got = (%v, %v), wanted false", done, err)
	}
	if err := r.Finish(ctx, nil); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	hist, err := store.History(ctx, "octo/app", 42)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 5 {
		t.Fatalf("History: got = %d entries, wanted = 5", len(hist))
	}
	want := Entry{
		RunID:       r.RunID(),
		Kind:        KindFeedback,
		Repo:        "octo/app",
		PR:          42,
		HeadBranch:  "feature",
		BaseBranch:  "main",
		HeadSHA:     "abc123",
		Path:        "src/b.ts",
		OldCode:     body,
		Changes:     "- typed",
		UpdatedCode: body + "// done\n",
	}
	if diff := cmp.Diff(want, hist[1], cmpopts.IgnoreFields(Entry{}, "ID", "Time")); diff != "" {
		t.Errorf("History[1] (-want +got):\n%s", diff)
	}
	if hist[1].Time.IsZero() || hist[1].ID <= hist[0].ID {
		t.Errorf("History[1]: got id %d time %v, wanted ordered with timestamp", hist[1].ID, hist[1].Time)
	}

	files, err := store.ProcessedFiles(ctx, "octo/app", 42)
	if err != nil {
		t.Fatalf("ProcessedFiles: %v", err)
	}
	if diff := cmp.Diff([]string{"src/a.ts", "src/b.ts"}, files); diff != "" {
		t.Errorf("ProcessedFiles (-want +got):\n%s", diff)
	}

	for _, tt := range []struct {
		sha  string
		want bool
	}{{"abc123", true}, {"def456", false}} {
		got, err := store.ProcessedAt(ctx, "octo/app", 42, tt.sha)
		if err != nil || got != tt.want {
			t.Errorf("ProcessedAt(%s): got = (%v, %v), wanted = %v", tt.sha, got, err, tt.want)
		}
	}

	// A failed run does not count as processed.
	other := testPR
	other.HeadSHA = "fff000"
	failed := NewRecorder(other, store)
	if err := failed.Finish(ctx, failure.New(failure.Workspace, "cloning", errors.New("denied"))); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if got, err := store.ProcessedAt(ctx, "octo/app", 42, "fff000"); err != nil || got {
		t.Errorf("ProcessedAt(failed run): got = (%v, %v), wanted false", got, err)
	}

	if hist, err := store.History(ctx, "octo/other", 42); err != nil || len(hist) != 0 {
		t.Errorf("History(other repo): got = (%d, %v), wanted empty", len(hist), err)
	}
}

func TestJSONLSink(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	sink, err := NewJSONLSink(path, 10, 2)
	if err != nil {
		t.Fatalf("NewJSONLSink: %v", err)
	}

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sink.Write(ctx, Entry{RunID: "run", Kind: KindBuild, Attempt: i + 1}); err != nil {
				t.Errorf("Write: %v", err)
			}
		}()
	}
	wg.Wait()
	if err := sink.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()
	seen := map[int]bool{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("line %q: %v", sc.Text(), err)
		}
		seen[e.Attempt] = true
	}
	if len(seen) != 20 {
		t.Errorf("lines: got = %d distinct attempts, wanted = 20", len(seen))
	}

	if _, err := NewJSONLSink("", 1, 1); err == nil {
		t.Error("NewJSONLSink(\"\"): got nil error, wanted failure")
	}
}

func TestGCSArchiver(t *testing.T) {
	var (
		mu     sync.Mutex
		bodies []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(r.URL.Path, "/b/audit-bucket/o") {
			http.Error(w, "unexpected path "+r.URL.Path, http.StatusNotFound)
			return
		}
		mu.Lock()
		bodies = append(bodies, string(body))
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"bucket": "audit-bucket", "name": "archived"}`)
	}))
	defer srv.Close()
	t.Setenv("STORAGE_EMULATOR_HOST", strings.TrimPrefix(srv.URL, "http://"))

	ctx := context.Background()
	client, err := storage.NewClient(ctx)
	if err != nil {
		t.Fatalf("storage.NewClient: %v", err)
	}
	defer client.Close()

	a, err := NewGCSArchiver(client, "audit-bucket", "runs")
	if err != nil {
		t.Fatalf("NewGCSArchiver: %v", err)
	}
	s := Summary{RunID: "run-1", Repo: "octo/app", PR: 42, Result: "ok", Finished: time.Unix(0, 0).UTC()}
	if got, want := a.ObjectName(s), "runs/octo/app/42/run-1.json"; got != want {
		t.Errorf("ObjectName: got = %q, wanted = %q", got, want)
	}
	if err := a.Archive(ctx, s); err != nil {
		t.Fatalf("Archive: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(bodies) == 0 {
		t.Fatal("no upload reached the emulator")
	}
	all := strings.Join(bodies, "\n")
	for _, want := range []string{"runs/octo/app/42/run-1.json", `"run_id":"run-1"`} {
		if !strings.Contains(all, want) {
			t.Errorf("upload is missing %q:\n%s", want, all)
		}
	}

	if _, err := NewGCSArchiver(nil, "b", ""); err == nil {
		t.Error("NewGCSArchiver(nil): got nil error, wanted failure")
	}
	if _, err := NewGCSArchiver(client, "", ""); err == nil {
		t.Error("NewGCSArchiver(empty bucket): got nil error, wanted failure")
	}
}
