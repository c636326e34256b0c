package background

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"salmontrack/internal/common"
	"salmontrack/internal/config"
	"salmontrack/internal/metrics"

	"github.com/go-co-op/gocron/v2"
	"github.com/sirupsen/logrus"
)

// Task is one unit of background work
type Task func(ctx context.Context) error

// JobScheduler runs the periodic maintenance jobs
type JobScheduler struct {
	scheduler gocron.Scheduler
	metrics   *metrics.Metrics
	logger    logrus.FieldLogger
	timeout   time.Duration
	jobJobs   map[string]gocron.Job
	tasks     map[string]Task
	mu        sync.RWMutex
}

// NewJobScheduler creates a new job scheduler. Each run gets its own context bounded by timeout.
func NewJobScheduler(m *metrics.Metrics, logger logrus.FieldLogger, timeout time.Duration) (*JobScheduler, error) {
	scheduler, err := gocron.NewScheduler(gocron.WithLogger(gocronLogger{logger}))
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &JobScheduler{
		scheduler: scheduler,
		metrics:   m,
		logger:    logger,
		timeout:   timeout,
		jobJobs:   make(map[string]gocron.Job),
		tasks:     make(map[string]Task),
	}, nil
}

// Start starts the job scheduler
func (js *JobScheduler) Start() {
	js.logger.WithField("jobs", js.jobNames()).Info("starting background job scheduler")
	js.scheduler.Start()
}

// Stop waits for running jobs and stops the scheduler
func (js *JobScheduler) Stop() error {
	js.logger.Info("stopping background job scheduler")
	return js.scheduler.Shutdown()
}

// AddJob registers task to run every interval. A run still in progress when the next one
// is due is not overlapped.
func (js *JobScheduler) AddJob(name string, interval time.Duration, task Task) error {
	if interval <= 0 {
		return common.NewValidationError("interval", "must be positive for job %s", name)
	}
	js.mu.Lock()
	defer js.mu.Unlock()

	if _, exists := js.tasks[name]; exists {
		return common.NewValidationError("name", "job %s is already registered", name)
	}
	job, err := js.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(js.scheduledRun, name),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("create job %s: %w", name, err)
	}
	js.jobJobs[name] = job
	js.tasks[name] = task
	js.logger.WithFields(logrus.Fields{"job": name, "interval": interval.String()}).Info("registered background job")
	return nil
}

func (js *JobScheduler) scheduledRun(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), js.timeout)
	defer cancel()
	// logged and counted in RunNow
	_ = js.RunNow(ctx, name)
}

// RunNow runs a registered job synchronously
func (js *JobScheduler) RunNow(ctx context.Context, name string) error {
	js.mu.RLock()
	task, ok := js.tasks[name]
	js.mu.RUnlock()
	if !ok {
		return common.NewNotFoundError("job", name)
	}

	start := time.Now()
	err := task(ctx)
	js.metrics.ObserveJob(name, err)
	if err != nil {
		config.LogError(js.logger, "job_scheduler", "RunNow", "job failed",
			map[string]string{"job": name}, err)
		return err
	}
	js.logger.WithFields(logrus.Fields{"job": name, "duration": time.Since(start).String()}).Debug("job completed")
	return nil
}

// RemoveJob removes a job from the scheduler
func (js *JobScheduler) RemoveJob(name string) error {
	js.mu.Lock()
	defer js.mu.Unlock()

	job, exists := js.jobJobs[name]
	if !exists {
		return nil
	}
	delete(js.jobJobs, name)
	delete(js.tasks, name)
	return js.scheduler.RemoveJob(job.ID())
}

// JobStatus describes one registered job
type JobStatus struct {
	Name    string     `json:"name"`
	NextRun *time.Time `json:"nextRun,omitempty"`
	LastRun *time.Time `json:"lastRun,omitempty"`
}

// GetJobStatus returns information about scheduled jobs
func (js *JobScheduler) GetJobStatus() []JobStatus {
	js.mu.RLock()
	defer js.mu.RUnlock()

	out := make([]JobStatus, 0, len(js.jobJobs))
	for name, job := range js.jobJobs {
		status := JobStatus{Name: name}
		if next, err := job.NextRun(); err == nil && !next.IsZero() {
			status.NextRun = &next
		}
		if last, err := job.LastRun(); err == nil && !last.IsZero() {
			status.LastRun = &last
		}
		out = append(out, status)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (js *JobScheduler) jobNames() []string {
	js.mu.RLock()
	defer js.mu.RUnlock()
	names := make([]string, 0, len(js.tasks))
	for name := range js.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// gocronLogger routes scheduler logs through logrus
type gocronLogger struct {
	logger logrus.FieldLogger
}

func (l gocronLogger) fields(args []any) logrus.Fields {
	fields := logrus.Fields{"component": "gocron"}
	for i := 0; i+1 < len(args); i += 2 {
		fields[fmt.Sprint(args[i])] = args[i+1]
	}
	return fields
}

func (l gocronLogger) Debug(msg string, args ...any) { l.logger.WithFields(l.fields(args)).Debug(msg) }
func (l gocronLogger) Info(msg string, args ...any)  { l.logger.WithFields(l.fields(args)).Info(msg) }
func (l gocronLogger) Warn(msg string, args ...any)  { l.logger.WithFields(l.fields(args)).Warn(msg) }
func (l gocronLogger) Error(msg string, args ...any) { l.logger.WithFields(l.fields(args)).Error(msg) }
