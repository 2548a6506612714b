// Package uws drives an IVOA Universal Worker Service job: creation, start,
// polling to a terminal phase and reading the result manifest.
package uws

import (
	"bytes"
	"encoding/hex"
	"encoding/xml"
	"strings"

	"github.com/joseph-ayodele/casda-stager/constants"
	"github.com/joseph-ayodele/casda-stager/internal/common"
)

// Namespaces of the job detail document.
const (
	NamespaceUWS   = "http://www.ivoa.net/xml/UWS/v1.0"
	NamespaceXLink = "http://www.w3.org/1999/xlink"
)

// Result is one entry of the job's result manifest.
type Result struct {
	ID   string
	Href string // percent-decoded
}

type xmlJob struct {
	JobID   string      `xml:"http://www.ivoa.net/xml/UWS/v1.0 jobId"`
	Phase   *string     `xml:"http://www.ivoa.net/xml/UWS/v1.0 phase"`
	Results *xmlResults `xml:"http://www.ivoa.net/xml/UWS/v1.0 results"`
}

type xmlResults struct {
	Results []xmlResult `xml:"http://www.ivoa.net/xml/UWS/v1.0 result"`
}

type xmlResult struct {
	ID   string `xml:"id,attr"`
	Href string `xml:"http://www.w3.org/1999/xlink href,attr"`
}

// JobDocument is an immutable, decoded job detail document.
type JobDocument struct {
	raw []byte
	job xmlJob
}

// ParseJobDocument decodes the XML returned by GET {job location}.
func ParseJobDocument(b []byte) (*JobDocument, error) {
	var j xmlJob
	if err := xml.NewDecoder(bytes.NewReader(b)).Decode(&j); err != nil {
		return nil, common.MalformedDocumentf("decode job document: %v", err)
	}
	return &JobDocument{raw: b, job: j}, nil
}

// JobID is the server-side identifier, empty when the document omits it.
func (d *JobDocument) JobID() string { return d.job.JobID }

// Phase reads uws:phase. A document without it violates the protocol.
func (d *JobDocument) Phase() (constants.Phase, error) {
	if d.job.Phase == nil {
		return "", common.MalformedDocumentf("job document has no uws:phase")
	}
	phase := constants.ParsePhase(*d.job.Phase)
	if phase == "" {
		return "", common.MalformedDocumentf("job document has an empty uws:phase")
	}
	return phase, nil
}

// Results returns the uws:results/uws:result entries in document order,
// skipping entries without an xlink:href. The second value is false when the
// document has no results container.
func (d *JobDocument) Results() ([]Result, bool) {
	if d.job.Results == nil {
		return nil, false
	}
	out := make([]Result, 0, len(d.job.Results.Results))
	for _, r := range d.job.Results.Results {
		if strings.TrimSpace(r.Href) == "" {
			continue
		}
		out = append(out, Result{ID: r.ID, Href: unquote(r.Href)})
	}
	return out, true
}

// Raw returns the bytes the document was decoded from.
func (d *JobDocument) Raw() []byte { return d.raw }

// ExtractFileURLs lists the decoded result hrefs in document order. A missing
// results container yields an empty slice; callers check the phase to tell
// a failed job from one with no output.
func ExtractFileURLs(d *JobDocument) []string {
	results, _ := d.Results()
	urls := make([]string, 0, len(results))
	for _, r := range results {
		urls = append(urls, r.Href)
	}
	return urls
}

// unquote decodes each valid %XX escape in s. '+' and malformed escapes are
// kept as written.
func unquote(s string) string {
	if !strings.Contains(s, "%") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && i+2 < len(s) {
			if v, err := hex.DecodeString(s[i+1 : i+3]); err == nil {
				b.Write(v)
				i += 2
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
