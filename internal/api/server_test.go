// Datagate - Time-Series Dataset Access Gateway
// Copyright 2026 SensorLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sensorlab/datagate

package api

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/sensorlab/datagate/internal/access"
	"github.com/sensorlab/datagate/internal/config"
	"github.com/sensorlab/datagate/internal/database"
	"github.com/sensorlab/datagate/internal/idp"
	"github.com/sensorlab/datagate/internal/middleware"
	"github.com/sensorlab/datagate/internal/models"
	"github.com/sensorlab/datagate/internal/tsdb"
)

// testDBSemaphore serializes DuckDB usage across tests. Concurrent CGO
// operations from parallel tests can hang under CI resource pressure.
var testDBSemaphore = make(chan struct{}, 1)

// point is one datapoint the mock upstream serves.
type point struct {
	metric string
	ts     int64
	value  float64
	tags   map[string]string
}

// mockUpstream is an in-memory tsdb.Client. Timeseries filters points
// by the queried window; the other methods record calls and serve
// canned data.
type mockUpstream struct {
	points      []point
	searchNames []string
	meta        map[string]string

	timeseriesErr error
	ensureErr     error
	registerErr   error
	metaRefused   map[string]bool // keys PutMetadata refuses

	timeseriesCalls []tsdb.TimeseriesQuery
	searchPrefixes  []string
	searchMaxes     []int
	ensured         []string
	registered      []tsdb.EntityRegistration
	deletedKeys     []string
	putKeys         []string
	controlKeys     []string
}

func (m *mockUpstream) Timeseries(_ context.Context, q tsdb.TimeseriesQuery) ([]tsdb.Series, error) {
	m.timeseriesCalls = append(m.timeseriesCalls, q)
	if m.timeseriesErr != nil {
		return nil, m.timeseriesErr
	}
	var out []tsdb.Series
	for _, sq := range q.Queries {
		dps := make(map[string]float64)
		var tags map[string]string
		for _, p := range m.points {
			if p.metric != sq.Metric || p.ts < q.Start || p.ts >= q.End {
				continue
			}
			dps[strconv.FormatInt(p.ts, 10)] = p.value
			tags = p.tags
		}
		if len(dps) == 0 {
			continue
		}
		out = append(out, tsdb.Series{Metric: sq.Metric, Tags: tags, DPs: dps})
	}
	return out, nil
}

func (m *mockUpstream) Search(_ context.Context, prefix string, max int) ([]string, error) {
	m.searchPrefixes = append(m.searchPrefixes, prefix)
	m.searchMaxes = append(m.searchMaxes, max)
	if max < len(m.searchNames) {
		return m.searchNames[:max], nil
	}
	return m.searchNames, nil
}

func (m *mockUpstream) RegisterEntity(_ context.Context, e tsdb.EntityRegistration) error {
	if m.registerErr != nil {
		return m.registerErr
	}
	m.registered = append(m.registered, e)
	return nil
}

func (m *mockUpstream) EnsureEntityType(_ context.Context, entityTypeID string) error {
	if m.ensureErr != nil {
		return m.ensureErr
	}
	m.ensured = append(m.ensured, entityTypeID)
	return nil
}

func (m *mockUpstream) GetMetadata(_ context.Context, _ string) (map[string]string, error) {
	return m.meta, nil
}

func (m *mockUpstream) PutMetadata(_ context.Context, _, key, value string) error {
	if m.metaRefused[key] {
		return &tsdb.Error{Kind: tsdb.KindBadRequest, Status: 400, Message: "refused"}
	}
	m.putKeys = append(m.putKeys, key)
	if m.meta == nil {
		m.meta = make(map[string]string)
	}
	m.meta[key] = value
	return nil
}

func (m *mockUpstream) DeleteMetadata(_ context.Context, _, key string) error {
	m.deletedKeys = append(m.deletedKeys, key)
	delete(m.meta, key)
	return nil
}

func (m *mockUpstream) PutMetaControl(_ context.Context, _, key, value string) error {
	m.controlKeys = append(m.controlKeys, key)
	if m.meta == nil {
		m.meta = make(map[string]string)
	}
	m.meta[key] = value
	return nil
}

// errUpstreamDown mimics a 5xx from the time-series store.
func errUpstreamDown() error {
	return &tsdb.Error{Kind: tsdb.KindUpstream, Status: 500, Message: "upstream down"}
}

// authAs is a stub authenticator that injects a fixed principal.
func authAs(p models.Principal) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(middleware.ContextWithPrincipal(r.Context(), p)))
		})
	}
}

// authNone passes requests through without a principal, exercising the
// handlers' own 401 path.
func authNone(next http.Handler) http.Handler {
	return next
}

type testEnv struct {
	t     *testing.T
	db    *database.DB
	up    *mockUpstream
	admin *idp.MemoryAdmin
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	testDBSemaphore <- struct{}{}
	t.Cleanup(func() {
		<-testDBSemaphore
	})

	db, err := database.New(&config.DatabaseConfig{Path: ":memory:", MaxMemory: "1GB"})
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("failed to close test database: %v", err)
		}
	})

	return &testEnv{t: t, db: db, up: &mockUpstream{}, admin: idp.NewMemoryAdmin()}
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			CORSOrigins: []string{"*"},
		},
		Auth: config.AuthConfig{
			BypassGroup: access.DefaultBypassGroup,
		},
		Export: config.ExportConfig{
			WindowSeconds: 1800,
			OnWindowError: "continue",
			SearchLimit:   9999,
		},
	}
}

// routerAs builds the full route tree with the given principal baked
// in. Pass nil to exercise unauthenticated requests.
func (env *testEnv) routerAs(p *models.Principal) http.Handler {
	env.t.Helper()
	authn := authNone
	if p != nil {
		authn = authAs(*p)
	}
	resolver := access.NewResolver(env.db)
	srv, err := NewServer(testConfig(), env.db, resolver, env.up, env.admin, authn)
	if err != nil {
		env.t.Fatalf("failed to build server: %v", err)
	}
	return srv.Routes()
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// seedDataset registers a dataset row directly in the store. sensors is
// the recorded metric set; datasets seeded without one fall back to the
// upstream name search.
func (env *testEnv) seedDataset(name, sensorType string, sensors ...string) {
	env.t.Helper()
	_, err := env.db.CreateDataset(testContext(env.t), &models.Dataset{
		EntityID:     name + "-entity",
		EntityTypeID: sensorType,
		Name:         name,
		SensorType:   sensorType,
		Sensors:      sensors,
	})
	if err != nil {
		env.t.Fatalf("failed to seed dataset %s: %v", name, err)
	}
}

func (env *testEnv) seedGroup(name string) {
	env.t.Helper()
	if _, err := env.db.CreateGroup(testContext(env.t), name, ""); err != nil {
		env.t.Fatalf("failed to seed group %s: %v", name, err)
	}
}

func (env *testEnv) grantDataset(group, dataset string) {
	env.t.Helper()
	if err := env.db.GrantDatasetToGroup(testContext(env.t), group, dataset); err != nil {
		env.t.Fatalf("failed to grant %s to %s: %v", dataset, group, err)
	}
}

func (env *testEnv) seedApp(appID, owner string) {
	env.t.Helper()
	if err := env.db.CreateApp(testContext(env.t), &models.App{ID: appID, Owner: owner, Name: appID}); err != nil {
		env.t.Fatalf("failed to seed app %s: %v", appID, err)
	}
}

// doRequest runs one request through the router and decodes the JSON
// envelope.
func doRequest(t *testing.T, h http.Handler, method, target string, body interface{}) (*httptest.ResponseRecorder, models.APIResponse) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp models.APIResponse
	if rec.Header().Get("Content-Type") == "application/json" {
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("response body is not a JSON envelope: %v\n%s", err, rec.Body.String())
		}
	}
	return rec, resp
}

// dataLen counts list items in a decoded envelope. Empty lists are
// omitted from the JSON entirely, so nil counts as zero.
func dataLen(t *testing.T, data interface{}) int {
	t.Helper()
	if data == nil {
		return 0
	}
	raw, ok := data.([]interface{})
	if !ok {
		t.Fatalf("data is not a list: %T", data)
	}
	return len(raw)
}

func wantStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d; body: %s", rec.Code, want, rec.Body.String())
	}
}

func wantErrorCode(t *testing.T, resp models.APIResponse, code string) {
	t.Helper()
	if resp.Error == nil {
		t.Fatalf("expected error envelope, got %+v", resp)
	}
	if resp.Error.Code != code {
		t.Fatalf("error code = %q, want %q", resp.Error.Code, code)
	}
}

func reader(p models.Principal) *models.Principal { return &p }

func userIn(groups ...string) *models.Principal {
	return reader(models.Principal{Subject: "sub-1", Username: "alice", Groups: groups})
}

func fmtPrincipal(name string, groups ...string) *models.Principal {
	return reader(models.Principal{Subject: "sub-" + name, Username: name, Groups: groups})
}
