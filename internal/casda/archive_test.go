package casda_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/joseph-ayodele/casda-stager/internal/casda"
	"github.com/joseph-ayodele/casda-stager/internal/transport"
	"github.com/joseph-ayodele/casda-stager/internal/uws"
)

// fakeArchive serves datalink documents, one async staging endpoint and the
// files the job produces.
type fakeArchive struct {
	t   *testing.T
	srv *httptest.Server

	mu        sync.Mutex
	links     map[string]string // path -> body
	phases    []string
	started   bool
	createIDs []string
	authed    []bool
	hits      map[string]int
	results   []string
}

func newFakeArchive(t *testing.T) *fakeArchive {
	t.Helper()
	a := &fakeArchive{t: t, links: map[string]string{}, hits: map[string]int{}}
	mux := http.NewServeMux()
	mux.HandleFunc("/datalink/", a.datalink)
	mux.HandleFunc("/async", a.create)
	mux.HandleFunc("/async/job-1", a.job)
	mux.HandleFunc("/async/job-1/phase", a.phase)
	mux.HandleFunc("/files/", func(w http.ResponseWriter, r *http.Request) {
		a.record(r)
		_, _ = io.WriteString(w, "content of "+strings.TrimPrefix(r.URL.Path, "/files/"))
	})
	a.srv = httptest.NewServer(mux)
	t.Cleanup(a.srv.Close)
	return a
}

func (a *fakeArchive) url(p string) string { return a.srv.URL + p }

func (a *fakeArchive) record(r *http.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, _, ok := r.BasicAuth()
	a.authed = append(a.authed, ok)
	a.hits[r.Method+" "+r.URL.Path]++
}

func (a *fakeArchive) requests() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.authed)
}

func (a *fakeArchive) anonymous() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, ok := range a.authed {
		if !ok {
			n++
		}
	}
	return n
}

func (a *fakeArchive) submittedIDs() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.createIDs...)
}

func (a *fakeArchive) hitCount(key string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.hits[key]
}

// addLink registers a datalink document offering service with token at endpoint.
func (a *fakeArchive) addLink(p, service, token, endpoint string) string {
	a.links[p] = datalinkBody(service, token, endpoint)
	return a.url(p)
}

func (a *fakeArchive) datalink(w http.ResponseWriter, r *http.Request) {
	a.record(r)
	a.mu.Lock()
	body, ok := a.links[r.URL.Path]
	a.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/x-votable+xml")
	_, _ = io.WriteString(w, body)
}

func (a *fakeArchive) create(w http.ResponseWriter, r *http.Request) {
	a.record(r)
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	a.mu.Lock()
	a.createIDs = append(a.createIDs, r.URL.Query()["ID"]...)
	a.mu.Unlock()
	http.Redirect(w, r, "/async/job-1", http.StatusSeeOther)
}

func (a *fakeArchive) phase(w http.ResponseWriter, r *http.Request) {
	a.record(r)
	if err := r.ParseForm(); err != nil || r.PostForm.Get("phase") != "RUN" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	a.mu.Lock()
	a.started = true
	a.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

// job answers PENDING until the job is started, then walks the phase script
// and stays on its last entry.
func (a *fakeArchive) job(w http.ResponseWriter, r *http.Request) {
	a.record(r)
	a.mu.Lock()
	phase := "PENDING"
	if a.started && len(a.phases) > 0 {
		phase = a.phases[0]
		if len(a.phases) > 1 {
			a.phases = a.phases[1:]
		}
	}
	results := a.results
	a.mu.Unlock()

	var b strings.Builder
	b.WriteString(`<uws:job xmlns:uws="http://www.ivoa.net/xml/UWS/v1.0" xmlns:xlink="http://www.w3.org/1999/xlink">`)
	b.WriteString(`<uws:jobId>job-1</uws:jobId><uws:phase>` + phase + `</uws:phase>`)
	if phase == "COMPLETED" {
		b.WriteString(`<uws:results>`)
		for i, href := range results {
			fmt.Fprintf(&b, `<uws:result id="%d" xlink:href="%s"/>`, i, href)
		}
		b.WriteString(`</uws:results>`)
	}
	b.WriteString(`</uws:job>`)
	_, _ = io.WriteString(w, b.String())
}

func datalinkBody(service, token, endpoint string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<VOTABLE version="1.3" xmlns="http://www.ivoa.net/xml/VOTable/v1.3">
  <RESOURCE type="results">
    <TABLE>
      <FIELD name="ID" datatype="char" arraysize="*"/>
      <FIELD name="access_url" datatype="char" arraysize="*"/>
      <FIELD name="service_def" datatype="char" arraysize="*"/>
      <FIELD name="authenticated_id_token" datatype="char" arraysize="*"/>
      <DATA><TABLEDATA>
        <TR><TD>cube-1</TD><TD></TD><TD>%[1]s</TD><TD>%[2]s</TD></TR>
        <TR><TD>cube-1</TD><TD>https://example/direct</TD><TD></TD><TD></TD></TR>
      </TABLEDATA></DATA>
    </TABLE>
  </RESOURCE>
  <RESOURCE type="meta" utype="adhoc:service" ID="%[1]s">
    <PARAM name="accessURL" datatype="char" arraysize="*" value="%[3]s"/>
  </RESOURCE>
</VOTABLE>`, service, token, endpoint)
}

type sleepCounter struct {
	mu sync.Mutex
	n  int
}

func (s *sleepCounter) sleep(_ context.Context, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return nil
}

func (s *sleepCounter) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}

func newClient(a *fakeArchive, authenticated bool, opts ...uws.Option) *casda.Client {
	var creds *transport.Credentials
	if authenticated {
		creds = &transport.Credentials{User: "astro@example.org", Password: "pw"}
	}
	tr := transport.NewHTTP(transport.Config{Credentials: creds, Timeout: 5 * time.Second}, a.srv.Client(), nil)
	return casda.NewClient(casda.Config{
		QueryURL:      a.url("/sia2/query"),
		Authenticated: authenticated,
	}, tr, nil, opts...)
}
