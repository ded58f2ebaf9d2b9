/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package publisher

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"text/template"

	"chainguard.dev/prrefine/regen/buildrepair"
	"chainguard.dev/prrefine/regen/changegate"
	"chainguard.dev/prrefine/regen/failure"
	"chainguard.dev/prrefine/regen/record"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-github/v84/github"
)

var testPR = record.PRInfo{
	Owner:      "octo",
	Repo:       "app",
	Number:     7,
	HeadBranch: "feature",
	BaseBranch: "main",
	HeadSHA:    "deadbeef",
}

// fakeHost records the calls made against a minimal GitHub API.
type fakeHost struct {
	mu          sync.Mutex
	branch      bool
	existing    map[string]string // path -> sha on the refinement branch
	failPut     map[string]bool
	openPRs     int
	createdRef  map[string]string
	puts        map[string]map[string]any
	createdPR   map[string]any
	listedQuery url.Values
}

func (f *fakeHost) server(t *testing.T) *github.Client {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/octo/app/git/ref/{ref...}", func(w http.ResponseWriter, r *http.Request) {
		if !f.branch {
			http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
			return
		}
		fmt.Fprintf(w, `{"ref":"refs/%s","object":{"sha":"cafe"}}`, r.PathValue("ref"))
	})
	mux.HandleFunc("POST /repos/octo/app/git/refs", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if err := json.NewDecoder(r.Body).Decode(&f.createdRef); err != nil {
			t.Errorf("decoding ref: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"ref":"refs/heads/x"}`)
	})
	mux.HandleFunc("GET /repos/octo/app/contents/{path...}", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("ref"); got != "ai_refined_code_feature" {
			t.Errorf("contents ref: got = %q, wanted = %q", got, "ai_refined_code_feature")
		}
		p := r.PathValue("path")
		sha, ok := f.existing[p]
		if !ok {
			http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
			return
		}
		fmt.Fprintf(w, `{"type":"file","path":%q,"sha":%q}`, p, sha)
	})
	mux.HandleFunc("PUT /repos/octo/app/contents/{path...}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		p := r.PathValue("path")
		if f.failPut[p] {
			http.Error(w, `{"message":"boom"}`, http.StatusInternalServerError)
			return
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decoding file: %v", err)
		}
		if f.puts == nil {
			f.puts = make(map[string]map[string]any)
		}
		f.puts[p] = body
		fmt.Fprint(w, `{"content":{},"commit":{}}`)
	})
	mux.HandleFunc("GET /repos/octo/app/pulls", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.listedQuery = r.URL.Query()
		f.mu.Unlock()
		if f.openPRs > 0 {
			fmt.Fprintf(w, `[{"number":%d,"html_url":"https://example.com/pr/%d"}]`, f.openPRs, f.openPRs)
			return
		}
		fmt.Fprint(w, `[]`)
	})
	mux.HandleFunc("POST /repos/octo/app/pulls", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if err := json.NewDecoder(r.Body).Decode(&f.createdPR); err != nil {
			t.Errorf("decoding pull: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"number":42,"html_url":"https://example.com/pr/42"}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client := github.NewClient(srv.Client())
	u, err := url.Parse(srv.URL + "/")
	if err != nil {
		t.Fatalf("url.Parse: %v", err)
	}
	client.BaseURL = u
	return client
}

func changes() []changegate.Change {
	return changegate.Filter([]record.RegeneratedFile{{
		Path:        "src/a.ts",
		OldCode:     "let a = 1\n",
		UpdatedCode: "const a = 1\n",
		Changes:     "- Use const",
	}, {
		Path:        "web/package-lock.json",
		UpdatedCode: "{}\n",
		Changes:     "Regenerated lockfile after web/package.json update via npm install",
	}})
}

func TestPublishCreatesBranchAndPR(t *testing.T) {
	f := &fakeHost{existing: map[string]string{"src/a.ts": "sha-a"}}
	p, err := New(f.server(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := p.Publish(t.Context(), Request{
		PR:      testPR,
		Changes: changes(),
		Builds: []buildrepair.Outcome{{
			Manifest:    "web/package.json",
			Description: "npm install succeeded for web/package.json",
		}},
	})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if diff := cmp.Diff(map[string]string{"ref": "refs/heads/ai_refined_code_feature", "sha": "deadbeef"}, f.createdRef); diff != "" {
		t.Errorf("created ref (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"src/a.ts", "web/package-lock.json"}, res.Committed); diff != "" {
		t.Errorf("Committed (-want +got):\n%s", diff)
	}
	if got := f.puts["src/a.ts"]["sha"]; got != "sha-a" {
		t.Errorf("update sha: got = %v, wanted = sha-a", got)
	}
	if _, ok := f.puts["web/package-lock.json"]["sha"]; ok {
		t.Error("create carried a sha, wanted none")
	}
	if got, want := f.puts["src/a.ts"]["message"], "AI Refactor for src/a.ts:\n\nChanges:\n- Use const"; got != want {
		t.Errorf("message: got = %q, wanted = %q", got, want)
	}
	if got := f.puts["src/a.ts"]["branch"]; got != "ai_refined_code_feature" {
		t.Errorf("branch: got = %v, wanted = ai_refined_code_feature", got)
	}

	if got, want := f.listedQuery.Get("head"), "octo:ai_refined_code_feature"; got != want {
		t.Errorf("list head: got = %q, wanted = %q", got, want)
	}
	if got := f.createdPR["title"]; got != Title {
		t.Errorf("title: got = %v, wanted = %q", got, Title)
	}
	if got := f.createdPR["base"]; got != "feature" {
		t.Errorf("base: got = %v, wanted = feature", got)
	}
	body, _ := f.createdPR["body"].(string)
	for _, want := range []string{"#7", "`src/a.ts` | +1 -1", "npm install succeeded"} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q:\n%s", want, body)
		}
	}
	if !res.Created || res.PRNumber != 42 {
		t.Errorf("Result: got = %+v, wanted created #42", res)
	}
}

func TestPublishReusesOpenPR(t *testing.T) {
	f := &fakeHost{branch: true, openPRs: 9}
	p, err := New(f.server(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := p.Publish(t.Context(), Request{PR: testPR, Changes: changes()})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if f.createdRef != nil {
		t.Errorf("created ref %v for an existing branch", f.createdRef)
	}
	if f.createdPR != nil {
		t.Errorf("created PR %v while one was open", f.createdPR)
	}
	if res.Created || res.PRNumber != 9 || res.PRURL != "https://example.com/pr/9" {
		t.Errorf("Result: got = %+v, wanted existing #9", res)
	}
}

func TestPublishContinuesPastFailedFile(t *testing.T) {
	f := &fakeHost{branch: true, failPut: map[string]bool{"web/package-lock.json": true}}
	p, err := New(f.server(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := p.Publish(t.Context(), Request{PR: testPR, Changes: changes()})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if diff := cmp.Diff([]string{"src/a.ts"}, res.Committed); diff != "" {
		t.Errorf("Committed (-want +got):\n%s", diff)
	}
	if got := failure.KindOf(res.Failed["web/package-lock.json"]); got != failure.HostingAPI {
		t.Errorf("failed kind: got = %q, wanted = %q", got, failure.HostingAPI)
	}
	if !res.Created {
		t.Error("PR not created after a partial commit")
	}
}

func TestPublishAllFilesFail(t *testing.T) {
	f := &fakeHost{branch: true, failPut: map[string]bool{"src/a.ts": true, "web/package-lock.json": true}}
	p, err := New(f.server(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = p.Publish(t.Context(), Request{PR: testPR, Changes: changes()})
	if got := failure.KindOf(err); got != failure.HostingAPI {
		t.Errorf("Publish: got kind %q (%v), wanted %q", got, err, failure.HostingAPI)
	}
	if f.createdPR != nil {
		t.Error("created a PR with nothing committed")
	}
}

func TestPublishNothing(t *testing.T) {
	// The client points nowhere; any request would fail.
	p, err := New(github.NewClient(nil).WithAuthToken("unused"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := p.Publish(t.Context(), Request{PR: testPR})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if res.Branch != "ai_refined_code_feature" || len(res.Committed) != 0 {
		t.Errorf("Result: got = %+v, wanted empty", res)
	}
}

func TestOptions(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Error("New(nil): got nil error, wanted failure")
	}
	if _, err := New(github.NewClient(nil), WithBodyTemplate(nil)); err == nil {
		t.Error("WithBodyTemplate(nil): got nil error, wanted failure")
	}

	f := &fakeHost{branch: true}
	p, err := New(f.server(t), WithBodyTemplate(template.Must(template.New("b").Parse("{{len .Changes}} files"))))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Publish(t.Context(), Request{PR: testPR, Changes: changes()}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if got := f.createdPR["body"]; got != "2 files" {
		t.Errorf("body: got = %v, wanted = %q", got, "2 files")
	}
}
