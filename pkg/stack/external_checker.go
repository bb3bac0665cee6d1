// Copyright (C) 2025 Kasdock Contributors (maintainers@kasdock.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stack

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
)

// =============================================================================
// Error Definitions
// =============================================================================

var (
	// ErrUnknownService is returned when a service has no dependency
	// declarations.
	ErrUnknownService = errors.New("service has no external dependency declarations")

	// ErrUnsafeTarget is returned when a probe target points at a
	// metadata endpoint or link-local address.
	ErrUnsafeTarget = errors.New("probe target is not allowed")
)

// Probe timeout bounds. Callers may tune within the window; anything
// outside is clamped.
const (
	DefaultProbeTimeout = 8 * time.Second
	MinProbeTimeout     = 5 * time.Second
	MaxProbeTimeout     = 10 * time.Second
)

// =============================================================================
// Dependency Declarations
// =============================================================================

// DependencyKind classifies how an external dependency is probed.
type DependencyKind string

const (
	// KindHTTPAPI is probed with an HTTP HEAD request.
	KindHTTPAPI DependencyKind = "http_api"

	// KindWebSocket is probed with a DNS lookup and TCP dial.
	// A full websocket handshake is out of scope for a reachability check.
	KindWebSocket DependencyKind = "websocket"

	// KindNodeRPC is probed with a gRPC connectivity check.
	KindNodeRPC DependencyKind = "node_rpc"
)

// ExternalDependency declares one endpoint a service needs at runtime.
type ExternalDependency struct {
	// Name identifies the dependency in reports.
	Name string `json:"name"`

	// Kind selects the probe transport.
	Kind DependencyKind `json:"kind"`

	// Target is a URL for http/websocket kinds, host:port for node_rpc.
	Target string `json:"target"`

	// Critical marks dependencies whose failure invalidates the check.
	Critical bool `json:"critical"`

	// Description explains what the service uses the endpoint for.
	Description string `json:"description,omitempty"`
}

// externalDependencies declares, per catalog service, the endpoints it
// reaches outside the compose network. Services absent from this table
// have no external dependencies.
var externalDependencies = map[string][]ExternalDependency{
	"kaspa-db-filler": {
		{
			Name:        "kaspad-rpc",
			Kind:        KindNodeRPC,
			Target:      "kaspad:16110",
			Critical:    true,
			Description: "block and transaction feed for database filling",
		},
	},
	"kaspa-rest-server": {
		{
			Name:        "kaspad-rpc",
			Kind:        KindNodeRPC,
			Target:      "kaspad:16110",
			Critical:    true,
			Description: "live node queries behind the REST endpoints",
		},
	},
	"kaspa-explorer": {
		{
			Name:        "kaspa-rest-api",
			Kind:        KindHTTPAPI,
			Target:      "http://kaspa-rest-server:8000/info/blockdag",
			Critical:    true,
			Description: "chain data backing the explorer UI",
		},
		{
			Name:        "market-data",
			Kind:        KindHTTPAPI,
			Target:      "https://api.coingecko.com/api/v3/ping",
			Critical:    false,
			Description: "price ticker shown in the explorer header",
		},
	},
	"kaspa-graph-inspector": {
		{
			Name:        "kaspad-rpc",
			Kind:        KindNodeRPC,
			Target:      "kaspad:16110",
			Critical:    true,
			Description: "BlockDAG topology stream",
		},
		{
			Name:        "block-stream",
			Kind:        KindWebSocket,
			Target:      "ws://kaspa-rest-server:8000/ws",
			Critical:    false,
			Description: "live block push channel",
		},
	},
	"kaspa-stratum-bridge": {
		{
			Name:        "kaspad-rpc",
			Kind:        KindNodeRPC,
			Target:      "kaspad:16110",
			Critical:    true,
			Description: "block template source for miners",
		},
	},
	"kaspa-faucet": {
		{
			Name:        "kaspad-rpc",
			Kind:        KindNodeRPC,
			Target:      "kaspad:16110",
			Critical:    true,
			Description: "payout transaction submission",
		},
		{
			Name:        "kaspa-rest-api",
			Kind:        KindHTTPAPI,
			Target:      "http://kaspa-rest-server:8000/info/blockdag",
			Critical:    false,
			Description: "balance display on the faucet page",
		},
	},
	"grafana": {
		{
			Name:        "prometheus",
			Kind:        KindHTTPAPI,
			Target:      "http://prometheus:9090/-/healthy",
			Critical:    false,
			Description: "metrics datasource for the dashboards",
		},
	},
}

// =============================================================================
// Result Types
// =============================================================================

// GuidanceSeverity ranks how urgently a failed probe needs attention.
type GuidanceSeverity string

const (
	SeverityCritical GuidanceSeverity = "critical"
	SeverityWarning  GuidanceSeverity = "warning"
)

// Guidance attaches remediation advice to a failed probe.
type Guidance struct {
	// Severity is critical for critical dependencies, warning otherwise.
	Severity GuidanceSeverity `json:"severity"`

	// Impact states what breaks while the dependency is unreachable.
	Impact string `json:"impact"`

	// Suggestions are remediation steps, most likely fix first.
	Suggestions []string `json:"suggestions"`
}

// DependencyResult is the outcome of probing one dependency.
type DependencyResult struct {
	Dependency ExternalDependency `json:"dependency"`

	// Reachable is true when the probe succeeded within its deadline.
	Reachable bool `json:"reachable"`

	// LatencyMs is the probe round-trip time for reachable endpoints.
	LatencyMs int64 `json:"latency_ms"`

	// Error describes the failure for unreachable endpoints.
	Error string `json:"error,omitempty"`

	// Guidance is populated for unreachable endpoints.
	Guidance *Guidance `json:"guidance,omitempty"`
}

// CheckSummary counts probe outcomes.
type CheckSummary struct {
	Total          int `json:"total"`
	Reachable      int `json:"reachable"`
	Unreachable    int `json:"unreachable"`
	CriticalFailed int `json:"critical_failed"`
}

// CheckReport is the aggregate result of checking one service.
//
// The check is advisory. Valid=false reports risk; it does not block
// installation by itself.
type CheckReport struct {
	Service string `json:"service"`

	// Valid is false iff a critical dependency is unreachable.
	Valid bool `json:"valid"`

	Dependencies []DependencyResult `json:"dependencies"`
	Summary      CheckSummary       `json:"summary"`
}

// CheckOptions tunes probe behavior.
type CheckOptions struct {
	// Timeout bounds each probe. Clamped to [5s, 10s]; zero means 8s.
	Timeout time.Duration

	// Concurrency bounds parallel probes. Zero means 4.
	Concurrency int

	// RatePerSecond bounds probe launch rate. Zero means 8/s.
	RatePerSecond float64
}

// DefaultCheckOptions returns the standard probe settings.
func DefaultCheckOptions() CheckOptions {
	return CheckOptions{
		Timeout:       DefaultProbeTimeout,
		Concurrency:   4,
		RatePerSecond: 8,
	}
}

func (o CheckOptions) normalized() CheckOptions {
	if o.Timeout == 0 {
		o.Timeout = DefaultProbeTimeout
	}
	if o.Timeout < MinProbeTimeout {
		o.Timeout = MinProbeTimeout
	}
	if o.Timeout > MaxProbeTimeout {
		o.Timeout = MaxProbeTimeout
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	if o.RatePerSecond <= 0 {
		o.RatePerSecond = 8
	}
	return o
}

// =============================================================================
// Interface Definition
// =============================================================================

// ExternalChecker probes the external endpoints a service depends on.
//
// # Description
//
// Fan-out/fan-in reachability probing with per-probe deadlines. Probes
// for independent dependencies run concurrently; the report waits for
// all of them to settle. There is no retry inside the checker; callers
// own retry policy.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type ExternalChecker interface {
	// CheckServiceDependencies probes every declared dependency of the
	// service. Unknown services return ErrUnknownService.
	CheckServiceDependencies(ctx context.Context, service string, opts CheckOptions) (*CheckReport, error)

	// DependenciesFor returns the static declarations for a service.
	// Services without declarations return an empty slice.
	DependenciesFor(service string) []ExternalDependency
}

// =============================================================================
// Default Implementation
// =============================================================================

// DefaultExternalChecker implements ExternalChecker over real transports.
type DefaultExternalChecker struct {
	deps       map[string][]ExternalDependency
	httpClient *http.Client
	resolver   *net.Resolver
	dialer     *net.Dialer

	limiterMu sync.Mutex
	limiter   *rate.Limiter
}

// NewDefaultExternalChecker creates a checker over the built-in
// dependency declarations.
func NewDefaultExternalChecker() *DefaultExternalChecker {
	return &DefaultExternalChecker{
		deps: externalDependencies,
		httpClient: &http.Client{
			// Per-probe deadlines come from the context; this is a
			// hard backstop only.
			Timeout: MaxProbeTimeout + time.Second,
		},
		resolver: net.DefaultResolver,
		dialer:   &net.Dialer{},
	}
}

// DependenciesFor implements ExternalChecker.
func (c *DefaultExternalChecker) DependenciesFor(service string) []ExternalDependency {
	declared := c.deps[service]
	out := make([]ExternalDependency, len(declared))
	copy(out, declared)
	return out
}

// CheckServiceDependencies implements ExternalChecker.
//
// # Description
//
// Probes every declared dependency concurrently, bounded by
// opts.Concurrency and rate-limited by opts.RatePerSecond. Each probe
// gets its own deadline derived from the caller's context.
//
// # Inputs
//
//   - ctx: Cancels the whole batch
//   - service: Catalog service name
//   - opts: Probe tuning; zero values use defaults
//
// # Outputs
//
//   - *CheckReport: Per-dependency results plus summary
//   - error: ErrUnknownService, or ctx cancellation
func (c *DefaultExternalChecker) CheckServiceDependencies(ctx context.Context, service string, opts CheckOptions) (*CheckReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	declared, ok := c.deps[service]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownService, service)
	}

	opts = opts.normalized()
	limiter := c.limiterFor(opts.RatePerSecond)

	results := make([]DependencyResult, len(declared))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)

	for i, dep := range declared {
		g.Go(func() error {
			if err := limiter.Wait(gCtx); err != nil {
				results[i] = failedResult(dep, err)
				return nil
			}

			probeCtx, cancel := context.WithTimeout(gCtx, opts.Timeout)
			defer cancel()

			start := time.Now()
			err := c.probe(probeCtx, dep)
			if err != nil {
				results[i] = failedResult(dep, err)
				return nil
			}
			results[i] = DependencyResult{
				Dependency: dep,
				Reachable:  true,
				LatencyMs:  time.Since(start).Milliseconds(),
			}
			// Probe failures never abort the batch; the report
			// carries them.
			return nil
		})
	}

	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report := &CheckReport{
		Service:      service,
		Valid:        true,
		Dependencies: results,
	}
	for _, r := range results {
		report.Summary.Total++
		if r.Reachable {
			report.Summary.Reachable++
			continue
		}
		report.Summary.Unreachable++
		if r.Dependency.Critical {
			report.Summary.CriticalFailed++
			report.Valid = false
		}
	}

	return report, nil
}

func (c *DefaultExternalChecker) limiterFor(perSecond float64) *rate.Limiter {
	c.limiterMu.Lock()
	defer c.limiterMu.Unlock()
	if c.limiter == nil || c.limiter.Limit() != rate.Limit(perSecond) {
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
	return c.limiter
}

// =============================================================================
// Probes
// =============================================================================

func (c *DefaultExternalChecker) probe(ctx context.Context, dep ExternalDependency) error {
	if err := checkTargetSafety(dep); err != nil {
		return err
	}

	switch dep.Kind {
	case KindHTTPAPI:
		return c.probeHTTP(ctx, dep.Target)
	case KindWebSocket:
		return c.probeWebSocket(ctx, dep.Target)
	case KindNodeRPC:
		return c.probeNodeRPC(ctx, dep.Target)
	default:
		return fmt.Errorf("unknown dependency kind %q", dep.Kind)
	}
}

// httpStatusError carries the status code so guidance can key on it.
type httpStatusError struct {
	Code int
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("endpoint returned HTTP %d", e.Code)
}

func (c *DefaultExternalChecker) probeHTTP(ctx context.Context, target string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, target, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return &httpStatusError{Code: resp.StatusCode}
	}
	return nil
}

func (c *DefaultExternalChecker) probeWebSocket(ctx context.Context, target string) error {
	u, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("parse target: %w", err)
	}

	host := u.Hostname()
	port := u.Port()
	if port == "" {
		switch u.Scheme {
		case "wss":
			port = "443"
		default:
			port = "80"
		}
	}

	// Reachability proxy: resolve the name, then dial the port. A full
	// websocket upgrade would need protocol state the check doesn't want.
	addrs, err := c.resolver.LookupHost(ctx, host)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", host, err)
	}
	if len(addrs) == 0 {
		return fmt.Errorf("resolve %s: no addresses", host)
	}

	conn, err := c.dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, port))
	if err != nil {
		return err
	}
	return conn.Close()
}

func (c *DefaultExternalChecker) probeNodeRPC(ctx context.Context, target string) error {
	conn, err := grpc.NewClient(target,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return fmt.Errorf("create rpc client: %w", err)
	}
	defer conn.Close()

	conn.Connect()
	for {
		state := conn.GetState()
		if state == connectivity.Ready {
			return nil
		}
		if state == connectivity.TransientFailure || state == connectivity.Shutdown {
			return fmt.Errorf("rpc endpoint %s: connection refused", target)
		}
		if !conn.WaitForStateChange(ctx, state) {
			return fmt.Errorf("rpc endpoint %s: %w", target, ctx.Err())
		}
	}
}

// checkTargetSafety refuses probes at metadata services or link-local
// addresses. Dependency targets come from a static table today, but the
// wizard accepts overrides, so the guard stays on every path.
func checkTargetSafety(dep ExternalDependency) error {
	host := dep.Target
	if dep.Kind != KindNodeRPC {
		u, err := url.Parse(dep.Target)
		if err != nil {
			return fmt.Errorf("parse target: %w", err)
		}
		host = u.Hostname()
	} else if h, _, err := net.SplitHostPort(dep.Target); err == nil {
		host = h
	}

	lowered := strings.ToLower(host)
	if lowered == "metadata.google.internal" || lowered == "metadata" {
		return fmt.Errorf("%w: %s", ErrUnsafeTarget, host)
	}

	if ip := net.ParseIP(host); ip != nil {
		if ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
			return fmt.Errorf("%w: %s", ErrUnsafeTarget, host)
		}
	}
	return nil
}

// =============================================================================
// Guidance Classification
// =============================================================================

func failedResult(dep ExternalDependency, err error) DependencyResult {
	return DependencyResult{
		Dependency: dep,
		Reachable:  false,
		Error:      err.Error(),
		Guidance:   classifyFailure(dep, err),
	}
}

// classifyFailure keys remediation advice on the error signature, then
// falls back to dependency-type advice.
func classifyFailure(dep ExternalDependency, err error) *Guidance {
	g := &Guidance{Severity: SeverityWarning}
	if dep.Critical {
		g.Severity = SeverityCritical
	}
	g.Impact = impactFor(dep)

	var statusErr *httpStatusError
	lowered := strings.ToLower(err.Error())

	switch {
	case errors.As(err, &statusErr) && statusErr.Code >= 500:
		g.Suggestions = []string{
			"The endpoint is up but failing; this is usually transient",
			"Try again in a few minutes",
			"Check the service's own status page or logs",
		}
	case errors.As(err, &statusErr) && (statusErr.Code == 401 || statusErr.Code == 403):
		g.Suggestions = []string{
			"The endpoint rejected the request as unauthorized",
			"Verify any API key or token configured for this service",
			"Check that credentials in the stack .env are current",
		}
	case os.IsTimeout(err) || strings.Contains(lowered, "timeout") ||
		strings.Contains(lowered, "deadline exceeded"):
		g.Suggestions = []string{
			"Check your internet connection",
			"Check whether a firewall or proxy is delaying the connection",
			"Retry; slow networks can exceed the probe deadline",
		}
	case strings.Contains(lowered, "no such host") || strings.Contains(lowered, "resolve"):
		g.Suggestions = []string{
			"Check DNS resolution on this host (e.g. with: dig " + hostOf(dep) + ")",
			"Verify the hostname is spelled correctly",
			"If on a VPN, check that it allows DNS to external domains",
		}
	case strings.Contains(lowered, "connection refused"):
		g.Suggestions = []string{
			"The host is reachable but nothing is listening on the port",
			"Check that the target service is running",
			"Verify the port number in the dependency declaration",
		}
	default:
		g.Suggestions = []string{
			"Check your internet connection",
			"Retry the check with: kasdock check " + dep.Name,
		}
	}

	g.Suggestions = append(g.Suggestions, fallbackAdvice(dep)...)
	return g
}

func impactFor(dep ExternalDependency) string {
	if dep.Critical {
		return fmt.Sprintf("%s cannot operate without %s", dep.Description, dep.Name)
	}
	return fmt.Sprintf("degraded: %s will be unavailable", dep.Description)
}

func fallbackAdvice(dep ExternalDependency) []string {
	switch dep.Kind {
	case KindHTTPAPI:
		if strings.HasPrefix(dep.Target, "https://") {
			return []string{"Consider installing the indexer-services profile to serve this data locally"}
		}
		return []string{"Check that the indexer-services profile is installed and healthy"}
	case KindWebSocket:
		return []string{"Check that your firewall allows outbound websocket connections"}
	case KindNodeRPC:
		return []string{"Verify the node container is running: kasdock stack status"}
	default:
		return nil
	}
}

func hostOf(dep ExternalDependency) string {
	if dep.Kind == KindNodeRPC {
		if h, _, err := net.SplitHostPort(dep.Target); err == nil {
			return h
		}
		return dep.Target
	}
	if u, err := url.Parse(dep.Target); err == nil && u.Hostname() != "" {
		return u.Hostname()
	}
	return dep.Target
}

// =============================================================================
// Mock Implementation
// =============================================================================

// MockExternalChecker is a test double for ExternalChecker.
type MockExternalChecker struct {
	CheckServiceDependenciesFunc func(context.Context, string, CheckOptions) (*CheckReport, error)
	DependenciesForFunc          func(string) []ExternalDependency

	CheckCalls []string
	mu         sync.Mutex
}

// CheckServiceDependencies implements ExternalChecker.
func (m *MockExternalChecker) CheckServiceDependencies(ctx context.Context, service string, opts CheckOptions) (*CheckReport, error) {
	m.mu.Lock()
	m.CheckCalls = append(m.CheckCalls, service)
	m.mu.Unlock()

	if m.CheckServiceDependenciesFunc != nil {
		return m.CheckServiceDependenciesFunc(ctx, service, opts)
	}
	return &CheckReport{Service: service, Valid: true}, nil
}

// DependenciesFor implements ExternalChecker.
func (m *MockExternalChecker) DependenciesFor(service string) []ExternalDependency {
	if m.DependenciesForFunc != nil {
		return m.DependenciesForFunc(service)
	}
	return nil
}

// =============================================================================
// Compile-Time Checks
// =============================================================================

var (
	_ ExternalChecker = (*DefaultExternalChecker)(nil)
	_ ExternalChecker = (*MockExternalChecker)(nil)
)
