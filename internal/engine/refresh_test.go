package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BadgerOps/mirrorlist/internal/config"
	"github.com/BadgerOps/mirrorlist/internal/mirrorlist"
	"github.com/BadgerOps/mirrorlist/internal/sites"
	"github.com/BadgerOps/mirrorlist/internal/store"
	"github.com/morikuni/failure/v2"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(":memory:", testLogger())
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// mockProcessor returns a canned set per network, or an error
type mockProcessor struct {
	mu      sync.Mutex
	fail    map[string]error
	calls   []string
	delay   time.Duration
	running atomic.Int32
	peak    atomic.Int32
}

func (m *mockProcessor) Process(ctx context.Context, n sites.Network) (*mirrorlist.MirrorSet, error) {
	cur := m.running.Add(1)
	defer m.running.Add(-1)
	for {
		p := m.peak.Load()
		if cur <= p || m.peak.CompareAndSwap(p, cur) {
			break
		}
	}

	m.mu.Lock()
	m.calls = append(m.calls, n.Name)
	err := m.fail[n.Name]
	m.mu.Unlock()

	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	if err != nil {
		return nil, err
	}

	set := mirrorlist.NewMirrorSet(n)
	set.Candidates = 3
	set.Dropped = 1
	set.Add("na-us", "http://"+n.FileName()+".example.org")
	set.Add("eu-de", "http://"+n.FileName()+".example.de")
	return set, nil
}

type mockPublisher struct {
	mu      sync.Mutex
	dir     string
	written []string
	err     error
}

func (m *mockPublisher) Write(set *mirrorlist.MirrorSet) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.written = append(m.written, set.Network.Name)
	return filepath.Join(m.dir, set.Network.FileName()), nil
}

func testNetworks(names ...string) []sites.Network {
	var out []sites.Network
	for _, name := range names {
		out = append(out, sites.Network{Name: name, ListURL: "http://list.example/" + name})
	}
	return out
}

func TestRefreshNetworkRecordsHistory(t *testing.T) {
	st := newTestStore(t)
	pub := &mockPublisher{dir: "/out"}
	m := NewRefreshManager(&mockProcessor{}, pub, st, 1, testLogger())

	report := m.RefreshNetwork(context.Background(), testNetworks("GNU")[0])
	if report.Err != nil {
		t.Fatalf("RefreshNetwork() failed: %v", report.Err)
	}
	if report.Path != "/out/gnu" || report.Mirrors != 2 || report.Dropped != 1 || report.Candidates != 3 {
		t.Errorf("unexpected report: %+v", report)
	}

	runs, err := st.ListRuns("GNU", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Fatalf("Expected 1 run, got %d", len(runs))
	}
	if runs[0].Status != store.StatusSuccess || runs[0].Accepted != 2 || runs[0].OutputPath != "/out/gnu" {
		t.Errorf("unexpected run: %+v", runs[0])
	}

	mirrors, err := st.ListMirrors("GNU")
	if err != nil {
		t.Fatal(err)
	}
	if len(mirrors) != 2 || mirrors[0].RegionKey != "eu-de" || mirrors[0].RunID != runs[0].ID {
		t.Errorf("unexpected mirrors: %+v", mirrors)
	}
}

func TestRefreshNetworkFailureKeepsMirrors(t *testing.T) {
	st := newTestStore(t)
	proc := &mockProcessor{}
	m := NewRefreshManager(proc, &mockPublisher{}, st, 1, testLogger())
	n := testNetworks("KDE")[0]

	if r := m.RefreshNetwork(context.Background(), n); r.Err != nil {
		t.Fatal(r.Err)
	}

	proc.fail = map[string]error{"KDE": failure.New(mirrorlist.ErrMirrorListFetchFailure)}
	r := m.RefreshNetwork(context.Background(), n)
	if !failure.Is(r.Err, mirrorlist.ErrMirrorListFetchFailure) {
		t.Fatalf("expected ErrMirrorListFetchFailure, got %v", r.Err)
	}

	runs, _ := st.ListRuns("KDE", 1)
	if len(runs) != 1 || runs[0].Status != store.StatusFailed || runs[0].ErrorMessage == "" {
		t.Errorf("unexpected latest run: %+v", runs)
	}
	count, _ := st.CountMirrors("KDE")
	if count != 2 {
		t.Errorf("mirrors from previous run should survive, got %d", count)
	}
}

func TestRefreshNetworkWriteFailure(t *testing.T) {
	writeErr := failure.New(mirrorlist.ErrOutputWriteFailure)
	m := NewRefreshManager(&mockProcessor{}, &mockPublisher{err: writeErr}, nil, 1, testLogger())

	r := m.RefreshNetwork(context.Background(), testNetworks("CPAN")[0])
	if !failure.Is(r.Err, mirrorlist.ErrOutputWriteFailure) {
		t.Fatalf("expected ErrOutputWriteFailure, got %v", r.Err)
	}
	if r.Path != "" {
		t.Errorf("Path = %q, want empty", r.Path)
	}
}

func TestRefreshAllContinuesPastFailures(t *testing.T) {
	proc := &mockProcessor{fail: map[string]error{"CTAN": errors.New("boom")}}
	pub := &mockPublisher{}
	m := NewRefreshManager(proc, pub, nil, 2, testLogger())

	reports, err := m.RefreshAll(context.Background(), testNetworks("Apache", "CTAN", "GNOME"))
	if err == nil {
		t.Fatal("Expected error when a network fails")
	}
	if len(reports) != 3 {
		t.Fatalf("Expected 3 reports, got %d", len(reports))
	}
	for i, want := range []string{"Apache", "CTAN", "GNOME"} {
		if reports[i].Network != want {
			t.Errorf("reports[%d].Network = %q, want %q", i, reports[i].Network, want)
		}
	}
	if reports[0].Err != nil || reports[2].Err != nil {
		t.Errorf("healthy networks failed: %v / %v", reports[0].Err, reports[2].Err)
	}
	if reports[1].Err == nil {
		t.Error("Expected CTAN to fail")
	}
	if len(pub.written) != 2 {
		t.Errorf("Expected 2 published files, got %d", len(pub.written))
	}
}

func TestRefreshAllRespectsParallelLimit(t *testing.T) {
	proc := &mockProcessor{delay: 20 * time.Millisecond}
	m := NewRefreshManager(proc, &mockPublisher{}, nil, 2, testLogger())

	if _, err := m.RefreshAll(context.Background(), testNetworks("A", "B", "C", "D", "E")); err != nil {
		t.Fatalf("RefreshAll() failed: %v", err)
	}
	if peak := proc.peak.Load(); peak > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak)
	}
	if len(proc.calls) != 5 {
		t.Errorf("Expected 5 calls, got %d", len(proc.calls))
	}
}

func TestRefreshAllCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	proc := &mockProcessor{}
	m := NewRefreshManager(proc, &mockPublisher{}, nil, 1, testLogger())
	reports, err := m.RefreshAll(ctx, testNetworks("A", "B"))
	if err == nil {
		t.Fatal("Expected error after cancellation")
	}
	for _, r := range reports {
		if !errors.Is(r.Err, context.Canceled) {
			t.Errorf("%s: Err = %v, want context.Canceled", r.Network, r.Err)
		}
	}
	if len(proc.calls) != 0 {
		t.Errorf("Expected no processing after cancellation, got %v", proc.calls)
	}
}

func TestStatus(t *testing.T) {
	st := newTestStore(t)
	m := NewRefreshManager(&mockProcessor{}, &mockPublisher{}, st, 1, testLogger())
	networks := testNetworks("GNU", "KDE")

	m.RefreshNetwork(context.Background(), networks[0])

	statuses := Status(st, networks, testLogger())
	if len(statuses) != 2 {
		t.Fatalf("Expected 2 statuses, got %d", len(statuses))
	}
	if statuses[0].LastStatus != store.StatusSuccess || statuses[0].Mirrors != 2 || statuses[0].LastRun.IsZero() {
		t.Errorf("unexpected GNU status: %+v", statuses[0])
	}
	if statuses[1].LastStatus != "" || statuses[1].Mirrors != 0 {
		t.Errorf("unexpected KDE status: %+v", statuses[1])
	}

	if got := Status(nil, networks, nil); len(got) != 2 || got[0].LastStatus != "" {
		t.Errorf("unexpected status without store: %+v", got)
	}
}

func TestNetworksAppliesOverrides(t *testing.T) {
	cfg := config.DefaultConfig()
	enabled, disabled := true, false
	cfg.Networks["postgresql"] = config.NetworkConfig{Enabled: &enabled}
	cfg.Networks["GNU"] = config.NetworkConfig{ListURL: "https://gnu.local/ftp.html", Enabled: &disabled}

	networks := Networks(cfg)
	byName := make(map[string]sites.Network)
	for _, n := range networks {
		byName[n.Name] = n
	}
	if !byName["PostgreSQL"].Disabled {
		t.Error("retired PostgreSQL must stay disabled despite the override")
	}
	gnu := byName["GNU"]
	if !gnu.Disabled || gnu.ListURL != "https://gnu.local/ftp.html" {
		t.Errorf("unexpected GNU: %+v", gnu)
	}
	if gnu.PrimaryURL == "" {
		t.Error("PrimaryURL should keep the built-in value")
	}
	if len(Networks(nil)) != len(sites.Builtin()) {
		t.Error("nil config should return the built-in table")
	}
}

func TestSelect(t *testing.T) {
	networks := Networks(nil)

	all, err := Select(networks, nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, n := range all {
		if n.Disabled {
			t.Errorf("disabled network %s selected by default", n.Name)
		}
	}
	if len(all) != len(networks)-1 {
		t.Errorf("Expected %d enabled networks, got %d", len(networks)-1, len(all))
	}

	cfg := config.DefaultConfig()
	disabled := false
	cfg.Networks["kde"] = config.NetworkConfig{Enabled: &disabled}
	picked, err := Select(Networks(cfg), []string{"gnu", "kde", "GNU"})
	if err != nil {
		t.Fatal(err)
	}
	if len(picked) != 2 || picked[0].Name != "GNU" || picked[1].Name != "KDE" {
		t.Errorf("unexpected selection: %+v", picked)
	}

	if _, err := Select(networks, []string{"gnu", "postgresql"}); !failure.Is(err, sites.ErrRetiredNetwork) {
		t.Errorf("expected ErrRetiredNetwork, got %v", err)
	}

	if _, err := Select(networks, []string{"gopher"}); !failure.Is(err, sites.ErrUnknownNetwork) {
		t.Errorf("expected ErrUnknownNetwork, got %v", err)
	}
}
