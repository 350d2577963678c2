package server

import (
	"context"
	"errors"
	"time"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/handler"
	"github.com/creachadair/jrpc2/jhttp"

	"github.com/timeboxd/timeboxd/internal/plan"
)

// Custom JSON-RPC error codes.
const (
	codeRunInProgress = jrpc2.Code(-32001)
	codeInvalidParams = jrpc2.Code(-32602)
)

// RPCConfig holds configuration for the JSON-RPC endpoint.
type RPCConfig struct {
	Secret    string // Auth token; empty disables the RPC surface.
	Version   string
	Commit    string
	BuildType string
}

// RPCServer owns the JSON-RPC method set. The same methods serve the
// HTTP bridge at /rpc and every WebSocket connection at /ws.
type RPCServer struct {
	bridge    jhttp.Bridge
	methods   handler.Map
	secret    string
	version   string
	commit    string
	buildType string
	runner    *Runner
	notifier  *Notifier
}

// VersionResult is the response for system.getVersion.
type VersionResult struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildType string `json:"buildType,omitempty"`
}

// StatusResult is the response for run.status.
type StatusResult struct {
	Running  bool          `json:"running"`
	Watchers int           `json:"watchers"`
	LastRun  *plan.Summary `json:"lastRun,omitempty"`
}

// HistoryParams is the input for run.history.
type HistoryParams struct {
	Limit int `json:"limit,omitempty"`
}

// HistoryResult is the response for run.history.
type HistoryResult struct {
	Runs []plan.Summary `json:"runs"`
}

// TestEventResult is the response for calendar.testEvent.
type TestEventResult struct {
	EventID string    `json:"eventId"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
}

// NewRPCServer creates the method handlers and the HTTP bridge.
func NewRPCServer(cfg *RPCConfig, runner *Runner, notifier *Notifier) *RPCServer {
	rs := &RPCServer{
		secret:    cfg.Secret,
		version:   cfg.Version,
		commit:    cfg.Commit,
		buildType: cfg.BuildType,
		runner:    runner,
		notifier:  notifier,
	}

	rs.methods = handler.Map{
		"system.getVersion":  handler.New(rs.systemGetVersion),
		"run.trigger":        handler.New(rs.runTrigger),
		"run.status":         handler.New(rs.runStatus),
		"run.history":        handler.New(rs.runHistory),
		"calendar.testEvent": handler.New(rs.calendarTestEvent),
	}
	rs.bridge = jhttp.NewBridge(rs.methods, nil)
	return rs
}

func (rs *RPCServer) systemGetVersion(_ context.Context) (*VersionResult, error) {
	return &VersionResult{
		Version:   rs.version,
		Commit:    rs.commit,
		BuildType: rs.buildType,
	}, nil
}

// runTrigger executes a run synchronously and returns its summary.
func (rs *RPCServer) runTrigger(ctx context.Context) (*plan.Summary, error) {
	sum, err := rs.runner.Trigger(ctx)
	if errors.Is(err, ErrRunInProgress) {
		return nil, &jrpc2.Error{Code: codeRunInProgress, Message: err.Error()}
	}
	if err != nil {
		return nil, err
	}
	return sum, nil
}

func (rs *RPCServer) runStatus(ctx context.Context) (*StatusResult, error) {
	last, err := rs.runner.Last(ctx)
	if err != nil {
		return nil, err
	}
	return &StatusResult{
		Running:  rs.runner.Running(),
		Watchers: rs.notifier.Count(),
		LastRun:  last,
	}, nil
}

func (rs *RPCServer) runHistory(ctx context.Context, p *HistoryParams) (*HistoryResult, error) {
	if p.Limit < 0 {
		return nil, &jrpc2.Error{Code: codeInvalidParams, Message: "limit must not be negative"}
	}
	runs, err := rs.runner.History(ctx, p.Limit)
	if err != nil {
		return nil, err
	}
	if runs == nil {
		runs = []plan.Summary{}
	}
	return &HistoryResult{Runs: runs}, nil
}

func (rs *RPCServer) calendarTestEvent(ctx context.Context) (*TestEventResult, error) {
	ev, err := rs.runner.TestEvent(ctx)
	if err != nil {
		return nil, err
	}
	return &TestEventResult{EventID: ev.EventID, Start: ev.Start, End: ev.End}, nil
}

// Close shuts down the jrpc2 bridge, releasing internal goroutines.
func (rs *RPCServer) Close() {
	rs.bridge.Close()
}
