package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/bed-scheduler/internal/device"
	"github.com/sweeney/bed-scheduler/internal/logic"
	"github.com/sweeney/bed-scheduler/internal/metrics"
	"github.com/sweeney/bed-scheduler/internal/runner"
	"github.com/sweeney/bed-scheduler/internal/status"
)

const secret = "s3cret"

type fakeRunner struct {
	mu        sync.Mutex
	overrides []*time.Time
	err       error
}

func (f *fakeRunner) Run(ctx context.Context, override *time.Time) (runner.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.overrides = append(f.overrides, override)
	rep := runner.Report{RunID: "run-1", Now: time.Date(2026, 1, 1, 21, 5, 0, 0, time.UTC)}
	if f.err != nil {
		return rep, f.err
	}
	rep.DryRun = override != nil
	rep.Results = []runner.ProfileResult{{
		Owner: "alice",
		Wrote: override == nil,
		Sides: []runner.SideResult{{
			Role:    device.RolePrimary,
			Side:    device.SideRight,
			Stage:   logic.StagePreHeating,
			Command: logic.SetLevel(30),
			Reason:  "approaching bed time",
		}},
	}}
	return rep, nil
}

func (f *fakeRunner) calls() []*time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*time.Time(nil), f.overrides...)
}

func newTestServer(t *testing.T) (*httptest.Server, *status.Tracker, *fakeRunner) {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := status.Config{
		TickInterval: 10 * time.Minute,
		Broker:       "tcp://192.168.1.200:1883",
		HTTPAddr:     ":80",
		StoreBackend: "sqlite",
		Workers:      4,
	}
	tr := status.NewTracker(start, cfg)
	fr := &fakeRunner{}
	srv := New(Options{
		Addr:          ":0",
		Tracker:       tr,
		Runner:        fr,
		Metrics:       metrics.New(),
		TriggerSecret: secret,
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, tr, fr
}

func postRun(t *testing.T, url, auth string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func TestJSONEndpoint(t *testing.T) {
	ts, tr, fr := newTestServer(t)
	rep, _ := fr.Run(context.Background(), nil)
	tr.RecordRun(rep, nil)
	tr.SetMQTTConnected(true)

	resp, err := http.Get(ts.URL + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}

	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if !sj.Status.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if sj.Status.MQTT.Broker != "tcp://192.168.1.200:1883" {
		t.Errorf("MQTT.Broker: got %q", sj.Status.MQTT.Broker)
	}
	if sj.Status.LastRun == nil || sj.Status.LastRun.ID != "run-1" {
		t.Errorf("LastRun: got %+v", sj.Status.LastRun)
	}
	if len(sj.Status.Profiles) != 1 || sj.Status.Profiles[0].Owner != "alice" {
		t.Errorf("Profiles: got %+v", sj.Status.Profiles)
	}
	if sj.Status.Counts.Writes != 1 {
		t.Errorf("Counts.Writes: got %d, want 1", sj.Status.Counts.Writes)
	}
	if sj.Status.Config.Workers != 4 {
		t.Errorf("Config.Workers: got %d, want 4", sj.Status.Config.Workers)
	}
}

func TestHTMLEndpointRoot(t *testing.T) {
	ts, tr, fr := newTestServer(t)
	rep, _ := fr.Run(context.Background(), nil)
	tr.RecordRun(rep, nil)

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type: got %q, want text/html", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	for _, want := range []string{"run-1", "alice", "pre-heating", "level=30", "written"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("page missing %q", want)
		}
	}
}

func TestHTMLEndpointBeforeFirstRun(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/index.html")
	if err != nil {
		t.Fatalf("GET /index.html: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "none yet") {
		t.Error("expected placeholder for missing last run")
	}
}

func TestNotFoundForUnknownPath(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/nonexistent")
	if err != nil {
		t.Fatalf("GET /nonexistent: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 404 {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()

	var body map[string]string
	json.NewDecoder(resp.Body).Decode(&body)
	if resp.StatusCode != 200 || body["status"] != "ok" {
		t.Errorf("healthz: got %d %v", resp.StatusCode, body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _, _ := newTestServer(t)

	// populate the request counter first
	r, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	r.Body.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `bed_scheduler_http_requests_total{route="/healthz",status="200"} 1`) {
		t.Errorf("metrics missing request counter:\n%s", body)
	}
}

func TestRunRequiresSecret(t *testing.T) {
	ts, _, fr := newTestServer(t)

	for _, auth := range []string{"", "Bearer wrong", secret, "Basic " + secret} {
		resp := postRun(t, ts.URL+"/run", auth)
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("auth %q: got %d, want 401", auth, resp.StatusCode)
		}
	}
	if len(fr.calls()) != 0 {
		t.Errorf("runner called %d times without authorization", len(fr.calls()))
	}
}

func TestRunTriggersRun(t *testing.T) {
	ts, _, fr := newTestServer(t)

	resp := postRun(t, ts.URL+"/run", "Bearer "+secret)
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Fatalf("status: got %d, want 200", resp.StatusCode)
	}
	var body RunResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Success || body.RunID != "run-1" || body.DryRun {
		t.Errorf("unexpected response: %+v", body)
	}
	if len(body.Results) != 1 || !body.Results[0].Wrote {
		t.Errorf("unexpected results: %+v", body.Results)
	}
	if len(fr.calls()) != 1 || fr.calls()[0] != nil {
		t.Errorf("expected one run without override, got %v", fr.calls())
	}
}

func TestRunWithTestTimeIsDryRun(t *testing.T) {
	ts, _, fr := newTestServer(t)

	resp := postRun(t, ts.URL+"/run?testTime=1767301500", "Bearer "+secret)
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Fatalf("status: got %d, want 200", resp.StatusCode)
	}
	var body RunResponse
	json.NewDecoder(resp.Body).Decode(&body)
	if !body.DryRun {
		t.Error("expected dry run")
	}
	if len(fr.calls()) != 1 || fr.calls()[0] == nil {
		t.Fatalf("expected an override, got %v", fr.calls())
	}
	if got := fr.calls()[0].Unix(); got != 1767301500 {
		t.Errorf("override: got %d, want 1767301500", got)
	}
}

func TestRunMalformedTestTime(t *testing.T) {
	ts, _, fr := newTestServer(t)

	resp := postRun(t, ts.URL+"/run?testTime=tonight", "Bearer "+secret)
	resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", resp.StatusCode)
	}
	if len(fr.calls()) != 0 {
		t.Error("runner must not be called for a malformed testTime")
	}
}

func TestRunListFailureIs500(t *testing.T) {
	ts, _, fr := newTestServer(t)
	fr.err = errors.New("store: list profiles: connection refused")

	resp := postRun(t, ts.URL+"/run", "Bearer "+secret)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status: got %d, want 500", resp.StatusCode)
	}
	var body RunResponse
	json.NewDecoder(resp.Body).Decode(&body)
	if body.Success || body.Error == "" || body.RunID != "run-1" {
		t.Errorf("unexpected response: %+v", body)
	}
}

func TestRunNotMountedWithoutSecret(t *testing.T) {
	srv := New(Options{Tracker: status.NewTracker(time.Now(), status.Config{}), Runner: &fakeRunner{}})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp := postRun(t, ts.URL+"/run", "Bearer ")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound && resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 404 or 405", resp.StatusCode)
	}
}

func TestGetRunNotAllowed(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/run")
	if err != nil {
		t.Fatalf("GET /run: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", resp.StatusCode)
	}
}

// slowRunner reports its context's state once the caller has given up.
type slowRunner struct {
	done chan error
}

func (s *slowRunner) Run(ctx context.Context, override *time.Time) (runner.Report, error) {
	time.Sleep(300 * time.Millisecond)
	s.done <- ctx.Err()
	return runner.Report{RunID: "run-slow"}, nil
}

func TestRunSurvivesCallerTimeout(t *testing.T) {
	sr := &slowRunner{done: make(chan error, 1)}
	srv := New(Options{
		Tracker:       status.NewTracker(time.Now(), status.Config{}),
		Runner:        sr,
		TriggerSecret: secret,
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/run", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Authorization", "Bearer "+secret)
	client := &http.Client{Timeout: 50 * time.Millisecond}
	if resp, err := client.Do(req); err == nil {
		resp.Body.Close()
		t.Fatal("expected the client to time out")
	}

	select {
	case err := <-sr.done:
		if err != nil {
			t.Errorf("run context cancelled after caller timed out: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("run did not finish")
	}
}
