// go test github.com/homemade/crmsync/sync -v
package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	gosync "sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const testAPIKey = "test-api-key"

// fakeService is an in-memory stand-in for the service REST API.
type fakeService struct {
	t      *testing.T
	server *httptest.Server
	mux    *http.ServeMux

	requests atomic.Int32
	nextID   atomic.Int32

	mu      gosync.Mutex
	created map[Resource][]string
	updated map[Resource][]string
	queries []string
}

func newFakeService(t *testing.T) *fakeService {
	t.Helper()
	f := &fakeService{
		t:       t,
		mux:     http.NewServeMux(),
		created: map[Resource][]string{},
		updated: map[Resource][]string{},
	}
	f.mux.HandleFunc("GET /status/lead/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"data":[{"id":"stat_1","label":"Potential"},{"id":"stat_2","label":"Customer"}]}`)
	})
	f.mux.HandleFunc("GET /custom_fields/lead/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"has_more":false,"data":[{"id":"cf_1","name":"Plan Tier","type":"text"}]}`)
	})
	f.mux.HandleFunc("GET /me/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"id":"user_1"}`)
	})
	for _, resource := range []Resource{ResourceLead, ResourceContact} {
		f.mux.HandleFunc("POST /"+string(resource)+"/{$}", func(w http.ResponseWriter, r *http.Request) {
			body := readBody(t, r)
			id := fmt.Sprintf("%s_%d", resource, f.nextID.Add(1))
			f.mu.Lock()
			f.created[resource] = append(f.created[resource], body)
			f.mu.Unlock()
			out, _ := sjson.Set(body, "id", id)
			writeJSON(w, http.StatusOK, out)
		})
		f.mux.HandleFunc("PUT /"+string(resource)+"/{id}/", func(w http.ResponseWriter, r *http.Request) {
			body := readBody(t, r)
			f.mu.Lock()
			f.updated[resource] = append(f.updated[resource], r.PathValue("id"))
			f.mu.Unlock()
			out, _ := sjson.Set(body, "id", r.PathValue("id"))
			writeJSON(w, http.StatusOK, out)
		})
	}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.requests.Add(1)
		if user, _, ok := r.BasicAuth(); !ok || user != testAPIKey {
			if r.URL.Path != "/files/export.zip" {
				writeJSON(w, http.StatusUnauthorized, `{"error":"invalid api key"}`)
				return
			}
		}
		f.mux.ServeHTTP(w, r)
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeService) handle(pattern string, handler http.HandlerFunc) {
	f.mux.HandleFunc(pattern, handler)
}

// serveLeads answers lead list calls from leads, honouring _skip and _limit.
func (f *fakeService) serveLeads(leads []string) {
	f.handle("GET /lead/{$}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.queries = append(f.queries, r.URL.Query().Get("query"))
		f.mu.Unlock()
		var skip, limit int
		fmt.Sscan(r.URL.Query().Get("_skip"), &skip)
		fmt.Sscan(r.URL.Query().Get("_limit"), &limit)
		end := min(skip+limit, len(leads))
		page := "[]"
		if skip < len(leads) {
			page = "["
			for i, lead := range leads[skip:end] {
				if i > 0 {
					page += ","
				}
				page += lead
			}
			page += "]"
		}
		writeJSON(w, http.StatusOK, fmt.Sprintf(`{"has_more":%t,"total_results":%d,"data":%s}`, end < len(leads), len(leads), page))
	})
}

func (f *fakeService) createdCount(resource Resource) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created[resource])
}

func (f *fakeService) updatedIDs(resource Resource) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.updated[resource]...)
}

func (f *fakeService) lastQuery() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queries) == 0 {
		return ""
	}
	return f.queries[len(f.queries)-1]
}

func (f *fakeService) client(opts ...ClientOption) *ServiceClient {
	return f.clientWithKey(testAPIKey, opts...)
}

func (f *fakeService) clientWithKey(key string, opts ...ClientOption) *ServiceClient {
	base := []ClientOption{
		WithBaseURL(f.server.URL),
		WithLimiterRegistry(NewLimiterRegistry(1000, time.Second)),
		WithExportPollInterval(time.Millisecond),
	}
	return NewServiceClient(key, append(base, opts...)...)
}

func readBody(t *testing.T, r *http.Request) string {
	b, err := io.ReadAll(r.Body)
	if err != nil {
		t.Errorf("reading request body: %v", err)
	}
	if len(b) == 0 {
		return "{}"
	}
	return string(b)
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	io.WriteString(w, body)
}

// recordingMetrics keeps every increment for inspection.
type recordingMetrics struct {
	mu    gosync.Mutex
	calls [][]string
}

func (m *recordingMetrics) Increment(name string, value int, tags ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, append([]string{name}, tags...))
}

func (m *recordingMetrics) all() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]string(nil), m.calls...)
}

type platformUpsert struct {
	Kind       string
	Identity   Identity
	Attributes Attributes
	Account    *Identity
}

// fakePlatform records every upsert. failOn makes upserts of matching identities fail.
type fakePlatform struct {
	mu      gosync.Mutex
	upserts []platformUpsert
	failOn  func(Identity) bool
}

func (p *fakePlatform) UpsertAccount(_ context.Context, ident Identity, attrs Attributes) error {
	return p.record(platformUpsert{Kind: "account", Identity: ident, Attributes: attrs})
}

func (p *fakePlatform) UpsertUser(_ context.Context, ident Identity, attrs Attributes, account *Identity) error {
	return p.record(platformUpsert{Kind: "user", Identity: ident, Attributes: attrs, Account: account})
}

func (p *fakePlatform) record(u platformUpsert) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failOn != nil && p.failOn(u.Identity) {
		return fmt.Errorf("platform rejected %+v", u.Identity)
	}
	p.upserts = append(p.upserts, u)
	return nil
}

func (p *fakePlatform) byKind(kind string) []platformUpsert {
	p.mu.Lock()
	defer p.mu.Unlock()
	var result []platformUpsert
	for _, u := range p.upserts {
		if u.Kind == kind {
			result = append(result, u)
		}
	}
	return result
}

func testSettings() ConnectorSettings {
	return NormalizeSettings(RawSettings{
		APIKey:               testAPIKey,
		SynchronizedSegments: []string{"seg_1"},
		LeadStatus:           "stat_1",
		LeadAttributesOutbound: []FieldMapping{
			{HullField: "description", ServiceField: "description"},
			{HullField: "plan", ServiceField: "custom.cf_1"},
		},
		LeadAttributesInbound: []string{"name", "status_id", "custom.cf_1"},
		ContactAttributesOutbound: []FieldMapping{
			{HullField: "email", ServiceField: "emails.office"},
			{HullField: "phone", ServiceField: "phones.mobile"},
			{HullField: "title", ServiceField: "title"},
		},
		ContactAttributesInbound: []string{"name", "emails", "phones"},
	})
}

func snapshot(t *testing.T, v map[string]any) Snapshot {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return NewSnapshot(string(b))
}

func accountMessage(t *testing.T, entity map[string]any, segments ...string) Message {
	msg := Message{ID: fmt.Sprint(entity["id"]), Entity: snapshot(t, entity)}
	for _, s := range segments {
		msg.Segments = append(msg.Segments, Segment{ID: s})
	}
	return msg
}

func userMessage(t *testing.T, entity, account map[string]any, accountSegments ...string) Message {
	msg := Message{ID: fmt.Sprint(entity["id"]), Entity: snapshot(t, entity), Account: snapshot(t, account)}
	for _, s := range accountSegments {
		msg.AccountSegments = append(msg.AccountSegments, Segment{ID: s})
	}
	return msg
}

func attrValue(attrs Attributes, key string) any {
	return attrs[key].Value
}

func jsonField(raw, path string) string {
	return gjson.Get(raw, path).String()
}
