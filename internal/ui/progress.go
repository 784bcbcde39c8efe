package ui

import (
	"sync"
	"time"
)

// etaSmoothing weights a new ETA estimate against the previous one.
const etaSmoothing = 0.3

// speedInterval is the minimum time between speed samples.
const speedInterval = 500 * time.Millisecond

// ProgressTracker folds progress events into display state.
// It is safe for concurrent use.
type ProgressTracker struct {
	mu sync.Mutex

	stage      Stage
	task       string
	current    int
	total      int
	message    string
	startTime  time.Time
	stageStart time.Time
	errors     []ErrorEvent
	warnings   []ErrorEvent
	lastETA    time.Duration

	sampleAt   time.Time
	sampleDone int
	speed      SpeedStats
	samples    int
}

// SpeedStats contains throughput in items per second.
type SpeedStats struct {
	Current float64
	Avg     float64
	Peak    float64
}

// ProgressStats is a snapshot of the tracker.
type ProgressStats struct {
	Stage      Stage
	Task       string
	Current    int
	Total      int
	Progress   float64
	ETA        time.Duration
	Message    string
	ErrorCount int
	WarnCount  int
	Speed      SpeedStats
	Elapsed    time.Duration
}

// NewProgressTracker creates a tracker in StageWaiting.
func NewProgressTracker() *ProgressTracker {
	now := time.Now()
	return &ProgressTracker{
		stage:      StageWaiting,
		startTime:  now,
		stageStart: now,
		sampleAt:   now,
	}
}

// Apply records a progress event. A new task, a new stage or a counter
// that went backwards starts a fresh stage so that speed and ETA do not
// mix the two indexers of one task.
func (p *ProgressTracker) Apply(ev ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if ev.Stage != p.stage || ev.Task != p.task || ev.Current < p.current || ev.Total != p.total {
		p.resetLocked(ev.Stage, ev.Task, ev.Total)
	}
	p.current = ev.Current
	if ev.Message != "" {
		p.message = ev.Message
	}
	p.sampleLocked(time.Now())
}

// SetStage transitions to a new stage.
func (p *ProgressTracker) SetStage(stage Stage, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetLocked(stage, p.task, total)
}

func (p *ProgressTracker) resetLocked(stage Stage, task string, total int) {
	now := time.Now()
	p.stage = stage
	p.task = task
	p.total = total
	p.current = 0
	p.message = ""
	p.stageStart = now
	p.lastETA = 0
	p.sampleAt = now
	p.sampleDone = 0
	p.speed = SpeedStats{}
	p.samples = 0
}

func (p *ProgressTracker) sampleLocked(now time.Time) {
	elapsed := now.Sub(p.sampleAt)
	if elapsed < speedInterval {
		return
	}
	if delta := p.current - p.sampleDone; delta > 0 {
		speed := float64(delta) / elapsed.Seconds()
		p.speed.Current = speed
		p.samples++
		if p.samples == 1 {
			p.speed.Avg = speed
		} else {
			p.speed.Avg = 0.2*speed + 0.8*p.speed.Avg
		}
		p.speed.Peak = max(p.speed.Peak, speed)
	}
	p.sampleDone = p.current
	p.sampleAt = now
}

// AddError records an error or warning.
func (p *ProgressTracker) AddError(event ErrorEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if event.IsWarn {
		p.warnings = append(p.warnings, event)
	} else {
		p.errors = append(p.errors, event)
	}
}

// Stats returns a snapshot of the current state.
func (p *ProgressTracker) Stats() ProgressStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	progress := 0.0
	if p.total > 0 {
		progress = min(float64(p.current)/float64(p.total), 1.0)
	}

	return ProgressStats{
		Stage:      p.stage,
		Task:       p.task,
		Current:    p.current,
		Total:      p.total,
		Progress:   progress,
		ETA:        p.etaLocked(),
		Message:    p.message,
		ErrorCount: len(p.errors),
		WarnCount:  len(p.warnings),
		Speed:      p.speed,
		Elapsed:    time.Since(p.startTime),
	}
}

// etaLocked estimates the remaining time with exponential smoothing.
func (p *ProgressTracker) etaLocked() time.Duration {
	if p.current == 0 || p.total == 0 || p.current >= p.total {
		return 0
	}

	elapsed := time.Since(p.stageStart)
	fraction := float64(p.current) / float64(p.total)
	raw := time.Duration(float64(elapsed)/fraction) - elapsed
	if raw < 0 {
		return 0
	}
	if p.lastETA == 0 {
		p.lastETA = raw
		return raw
	}
	p.lastETA = time.Duration(etaSmoothing*float64(raw) + (1-etaSmoothing)*float64(p.lastETA))
	return p.lastETA
}

// Errors returns the recorded errors.
func (p *ProgressTracker) Errors() []ErrorEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ErrorEvent(nil), p.errors...)
}

// Warnings returns the recorded warnings.
func (p *ProgressTracker) Warnings() []ErrorEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ErrorEvent(nil), p.warnings...)
}
