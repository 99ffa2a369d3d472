// Package report accumulates the outcome of every fuzzing request and
// writes them grouped by path, method and status code.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/mark3labs/openapi-fuzz/internal/payload"
	"github.com/mark3labs/openapi-fuzz/internal/spec"
)

// FileName is the report written into the output directory.
const FileName = "report.json"

// Entry is one request and the answer it got.
type Entry struct {
	Path       string
	Method     spec.HttpMethod
	StatusCode int
	PathParams map[string]string
	ReqBody    payload.Object
	Query      payload.Object
	Response   []byte
}

// Data is the per-request record kept in the pretty report.
type Data struct {
	PathParams map[string]string `json:"pathParams"`
	ReqBody    any               `json:"reqBody"`
	Query      any               `json:"query"`
	Response   any               `json:"response"`
}

// Bucket groups the requests of one status code.
type Bucket struct {
	NumOfRequest int    `json:"numOfRequest"`
	Data         []Data `json:"data"`
}

// Pretty maps path -> method -> status code -> bucket.
type Pretty map[string]map[spec.HttpMethod]map[string]*Bucket

// Report is safe for concurrent use.
type Report struct {
	mu      sync.Mutex
	entries []Entry
}

func New() *Report { return &Report{} }

// Add records e. Payloads are copied so later mutation by the caller does
// not leak into the report.
func (r *Report) Add(e Entry) {
	e.ReqBody = cloneOrNil(e.ReqBody)
	e.Query = cloneOrNil(e.Query)
	r.mu.Lock()
	r.entries = append(r.entries, e)
	r.mu.Unlock()
}

// Len returns the number of recorded requests.
func (r *Report) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Entries returns a snapshot of the recorded requests in arrival order.
func (r *Report) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.entries...)
}

// Pretty aggregates the entries. Within a bucket, data keeps arrival order.
func (r *Report) Pretty() Pretty {
	out := Pretty{}
	for _, e := range r.Entries() {
		methods, ok := out[e.Path]
		if !ok {
			methods = map[spec.HttpMethod]map[string]*Bucket{}
			out[e.Path] = methods
		}
		codes, ok := methods[e.Method]
		if !ok {
			codes = map[string]*Bucket{}
			methods[e.Method] = codes
		}
		key := strconv.Itoa(e.StatusCode)
		b, ok := codes[key]
		if !ok {
			b = &Bucket{}
			codes[key] = b
		}
		b.NumOfRequest++
		b.Data = append(b.Data, Data{
			PathParams: e.PathParams,
			ReqBody:    prune(e.ReqBody),
			Query:      prune(e.Query),
			Response:   responseValue(e.Response),
		})
	}
	return out
}

// Write stores the pretty report as indented JSON in dir/report.json,
// replacing any previous file atomically. It returns the file path.
func (r *Report) Write(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("report: create output directory: %w", err)
	}
	b, err := json.MarshalIndent(r.Pretty(), "", "  ")
	if err != nil {
		return "", fmt.Errorf("report: encode: %w", err)
	}
	path := filepath.Join(dir, FileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(b, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("report: write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("report: place %s: %w", path, err)
	}
	return path, nil
}

// responseValue keeps JSON bodies as JSON and everything else as text.
func responseValue(body []byte) any {
	if len(body) == 0 {
		return ""
	}
	if json.Valid(body) {
		return json.RawMessage(append([]byte(nil), body...))
	}
	return string(body)
}

func cloneOrNil(o payload.Object) payload.Object {
	if o == nil {
		return nil
	}
	return payload.CloneObject(o)
}

func prune(o payload.Object) any {
	if o == nil {
		return nil
	}
	return payload.Prune(o)
}
