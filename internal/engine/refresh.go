// Package engine runs refreshes across networks: assembling each network's
// mirror set, publishing it and recording the run history.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BadgerOps/mirrorlist/internal/mirrorlist"
	"github.com/BadgerOps/mirrorlist/internal/sites"
	"github.com/BadgerOps/mirrorlist/internal/store"
	"golang.org/x/sync/errgroup"
)

// Processor builds a network's mirror set.
type Processor interface {
	Process(ctx context.Context, n sites.Network) (*mirrorlist.MirrorSet, error)
}

// Publisher writes a mirror set and returns the published path.
type Publisher interface {
	Write(set *mirrorlist.MirrorSet) (string, error)
}

// Report summarizes one network's refresh.
type Report struct {
	Network    string
	StartTime  time.Time
	EndTime    time.Time
	Candidates int
	Mirrors    int
	Dropped    int
	Path       string
	Err        error
}

// RefreshManager orchestrates the assembler, the writer and the history store.
type RefreshManager struct {
	processor Processor
	publisher Publisher
	store     *store.Store // nil disables history
	parallel  int
	logger    *slog.Logger
}

// NewRefreshManager creates a RefreshManager running up to parallel networks
// at once.
func NewRefreshManager(p Processor, w Publisher, st *store.Store, parallel int, logger *slog.Logger) *RefreshManager {
	if logger == nil {
		logger = slog.Default()
	}
	if parallel < 1 {
		parallel = 1
	}
	return &RefreshManager{
		processor: p,
		publisher: w,
		store:     st,
		parallel:  parallel,
		logger:    logger,
	}
}

// RefreshNetwork assembles and publishes one network. Failures are reported
// in the returned Report; a failed network leaves its published file as it
// was.
func (m *RefreshManager) RefreshNetwork(ctx context.Context, n sites.Network) Report {
	report := Report{Network: n.Name, StartTime: time.Now()}
	m.logger.Info("starting refresh", "network", n.Name, "list_url", n.ListURL)

	run := &store.RefreshRun{
		Network:   n.Name,
		StartTime: report.StartTime,
		Status:    store.StatusRunning,
	}
	if m.store != nil {
		if err := m.store.CreateRun(run); err != nil {
			m.logger.Warn("failed to create refresh run record", "network", n.Name, "error", err)
			run = nil
		}
	}

	set, err := m.refresh(ctx, n, &report)
	report.Err = err
	report.EndTime = time.Now()

	if report.Err != nil {
		m.logger.Error("refresh failed", "network", n.Name, "error", report.Err)
	} else {
		m.logger.Info("refresh completed",
			"network", n.Name,
			"mirrors", report.Mirrors,
			"dropped", report.Dropped,
			"path", report.Path,
			"duration", report.EndTime.Sub(report.StartTime).Round(time.Millisecond),
		)
	}

	if m.store != nil && run != nil {
		m.finishRun(run, report, set)
	}
	return report
}

func (m *RefreshManager) refresh(ctx context.Context, n sites.Network, report *Report) (*mirrorlist.MirrorSet, error) {
	set, err := m.processor.Process(ctx, n)
	if err != nil {
		return nil, err
	}
	report.Candidates = set.Candidates
	report.Mirrors = set.Len()
	report.Dropped = set.Dropped

	path, err := m.publisher.Write(set)
	if err != nil {
		return nil, err
	}
	report.Path = path
	return set, nil
}

func (m *RefreshManager) finishRun(run *store.RefreshRun, report Report, set *mirrorlist.MirrorSet) {
	run.EndTime = report.EndTime
	run.Candidates = report.Candidates
	run.Accepted = report.Mirrors
	run.Dropped = report.Dropped
	run.OutputPath = report.Path
	run.Status = store.StatusSuccess
	if report.Err != nil {
		run.Status = store.StatusFailed
		run.ErrorMessage = report.Err.Error()
	} else if err := m.store.ReplaceMirrors(run.Network, run.ID, mirrorRecords(set)); err != nil {
		m.logger.Warn("failed to record mirrors", "network", run.Network, "error", err)
	}
	if err := m.store.UpdateRun(run); err != nil {
		m.logger.Warn("failed to update refresh run record", "network", run.Network, "error", err)
	}
}

func mirrorRecords(set *mirrorlist.MirrorSet) []store.MirrorRecord {
	entries := set.Entries()
	records := make([]store.MirrorRecord, 0, len(entries))
	for _, e := range entries {
		records = append(records, store.MirrorRecord{RegionKey: e.RegionKey, URL: e.URL})
	}
	return records
}

// RefreshAll refreshes every network, continuing past failures. Reports are
// returned in the order of networks. The error is non-nil when any network
// failed.
func (m *RefreshManager) RefreshAll(ctx context.Context, networks []sites.Network) ([]Report, error) {
	reports := make([]Report, len(networks))

	// Workers never return an error so one network cannot cancel the rest.
	var g errgroup.Group
	g.SetLimit(m.parallel)
	for i, n := range networks {
		g.Go(func() error {
			if ctx.Err() != nil {
				reports[i] = Report{Network: n.Name, Err: ctx.Err()}
				return nil
			}
			reports[i] = m.RefreshNetwork(ctx, n)
			return nil
		})
	}
	_ = g.Wait()

	var failed []string
	for _, r := range reports {
		if r.Err != nil {
			failed = append(failed, r.Network)
		}
	}
	if len(failed) > 0 {
		return reports, fmt.Errorf("%d of %d networks failed: %v", len(failed), len(networks), failed)
	}
	return reports, nil
}

// NetworkStatus summarizes a network's configuration and last refresh.
type NetworkStatus struct {
	Network    sites.Network
	LastRun    time.Time
	LastStatus string
	Mirrors    int
}

// Status reports each network's last recorded run. With a nil store only
// the descriptors are filled in.
func Status(st *store.Store, networks []sites.Network, logger *slog.Logger) []NetworkStatus {
	if logger == nil {
		logger = slog.Default()
	}
	statuses := make([]NetworkStatus, 0, len(networks))
	for _, n := range networks {
		status := NetworkStatus{Network: n}
		if st != nil {
			runs, err := st.ListRuns(n.Name, 1)
			if err != nil {
				logger.Warn("failed to list refresh runs", "network", n.Name, "error", err)
			} else if len(runs) > 0 {
				status.LastRun = runs[0].StartTime
				status.LastStatus = runs[0].Status
			}
			count, err := st.CountMirrors(n.Name)
			if err != nil {
				logger.Warn("failed to count mirrors", "network", n.Name, "error", err)
			}
			status.Mirrors = count
		}
		statuses = append(statuses, status)
	}
	return statuses
}
