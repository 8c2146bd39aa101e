package portal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/policyassist/policyassist/pkg/observability"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultMonitorSchedule re-probes every five minutes.
const DefaultMonitorSchedule = "@every 5m"

// monitorTimeout bounds one scheduled probe.
const monitorTimeout = 30 * time.Second

var errNotProbed = errors.New("availability not probed yet")

// Monitor re-probes policy availability on a cron schedule.
type Monitor struct {
	policies *Policies
	numbers  []string
	cron     *cron.Cron
	logger   *zap.Logger
	onChange func([]PolicyInfo)

	mu        sync.Mutex
	ctx       context.Context
	last      []PolicyInfo
	lastErr   error
	checkedAt time.Time
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithPolicyNumbers overrides KnownPolicies.
func WithPolicyNumbers(numbers ...string) MonitorOption {
	return func(m *Monitor) { m.numbers = numbers }
}

// WithMonitorLogger sets the logger.
func WithMonitorLogger(l *zap.Logger) MonitorOption {
	return func(m *Monitor) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithAvailabilityChange registers fn to receive every probe whose result
// differs from the previous one.
func WithAvailabilityChange(fn func([]PolicyInfo)) MonitorOption {
	return func(m *Monitor) { m.onChange = fn }
}

// NewMonitor creates a Monitor. schedule is a standard cron expression or
// descriptor such as "@every 1m"; blank means DefaultMonitorSchedule.
func NewMonitor(p *Policies, schedule string, opts ...MonitorOption) (*Monitor, error) {
	if schedule == "" {
		schedule = DefaultMonitorSchedule
	}
	m := &Monitor{
		policies: p,
		numbers:  KnownPolicies,
		cron:     cron.New(),
		logger:   zap.NewNop(),
		ctx:      context.Background(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if _, err := m.cron.AddFunc(schedule, m.tick); err != nil {
		return nil, fmt.Errorf("invalid monitor schedule %q: %w", schedule, err)
	}
	return m, nil
}

// Start runs the schedule until ctx is done or Stop is called.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	m.ctx = ctx
	m.mu.Unlock()
	m.cron.Start()
	m.logger.Info("availability monitor started", zap.Int("policies", len(m.numbers)))
}

// Stop halts the schedule and waits for a running probe.
func (m *Monitor) Stop() {
	<-m.cron.Stop().Done()
	m.logger.Info("availability monitor stopped")
}

func (m *Monitor) tick() {
	m.mu.Lock()
	parent := m.ctx
	m.mu.Unlock()
	if parent.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(parent, monitorTimeout)
	defer cancel()
	_, _ = m.Check(ctx)
}

// Check probes availability now.
func (m *Monitor) Check(ctx context.Context) ([]PolicyInfo, error) {
	infos, err := m.policies.Probe(ctx, m.numbers...)

	m.mu.Lock()
	changed := err == nil && !sameAvailability(m.last, infos)
	m.lastErr = err
	if err == nil {
		m.last = infos
		m.checkedAt = time.Now()
	}
	m.mu.Unlock()

	if err != nil {
		m.logger.Warn("availability probe failed", zap.Error(err))
		return nil, err
	}
	available := 0
	for _, info := range infos {
		if info.Available {
			available++
		}
	}
	m.logger.Info("availability probed", zap.Int("available", available), zap.Int("total", len(infos)))
	if changed && m.onChange != nil {
		m.onChange(infos)
	}
	return infos, nil
}

// Last returns the most recent probe and when it ran.
func (m *Monitor) Last() ([]PolicyInfo, time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PolicyInfo(nil), m.last...), m.checkedAt
}

// HealthCheck reports the monitor's view as a non-critical health check.
// It fails until a probe succeeds and when the last probe failed.
func (m *Monitor) HealthCheck() observability.HealthCheck {
	return observability.HealthCheck{
		Name: "policy_availability",
		CheckFunc: func(context.Context) error {
			m.mu.Lock()
			defer m.mu.Unlock()
			if m.lastErr != nil {
				return m.lastErr
			}
			if m.checkedAt.IsZero() {
				return errNotProbed
			}
			return nil
		},
	}
}

func sameAvailability(a, b []PolicyInfo) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Number != b[i].Number || a[i].Available != b[i].Available {
			return false
		}
	}
	return true
}
