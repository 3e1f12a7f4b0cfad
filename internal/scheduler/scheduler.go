// Package scheduler runs the periodic sweeps of the job queue and the
// resource pipeline on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"llm-knowledge-be/internal/config"
	"llm-knowledge-be/internal/dto"
	"llm-knowledge-be/internal/pkg/logger"

	"github.com/robfig/cron/v3"
)

const (
	TaskProcessQueues   = "process-queues"
	TaskCheckStatuses   = "check-job-statuses"
	TaskRetryFailed     = "retry-failed-jobs"
	TaskCleanupJobs     = "cleanup-jobs"
	TaskPipelineSweep   = "pipeline-sweep"
	defaultTaskDeadline = 10 * time.Minute
)

// JobQueue is the part of the generation job service the sweeps drive.
type JobQueue interface {
	ProcessAllQueues(ctx context.Context) (*dto.QueueRunReport, error)
	CheckJobStatuses(ctx context.Context) (*dto.StatusCheckReport, error)
	AutoRetryFailedJobs(ctx context.Context) (int, error)
	CleanupOldJobs(ctx context.Context, age time.Duration) (int64, error)
}

type PipelineSweeper interface {
	ProcessPending(ctx context.Context) (*dto.PipelineReport, error)
}

// cronParser accepts both standard 5-field cron expressions and 6-field
// expressions with an optional seconds field.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

type task struct {
	spec string
	run  func(ctx context.Context) (map[string]interface{}, error)
}

type Scheduler struct {
	cron   *cron.Cron
	tasks  map[string]task
	logger logger.ILogger
	ctx    context.Context
	cancel context.CancelFunc
}

func New(jobs JobQueue, pipeline PipelineSweeper, cfg config.JobsConfig, log logger.ILogger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	cl := cronLogger{log: log}
	s := &Scheduler{
		cron: cron.New(
			cron.WithParser(cronParser),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		tasks:  map[string]task{},
		logger: log,
		ctx:    ctx,
		cancel: cancel,
	}

	s.tasks[TaskProcessQueues] = task{spec: cfg.QueueInterval, run: func(ctx context.Context) (map[string]interface{}, error) {
		r, err := jobs.ProcessAllQueues(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"queues": r.Queues, "started": r.Started, "failed": r.Failed}, nil
	}}
	s.tasks[TaskCheckStatuses] = task{spec: cfg.StatusCheckInterval, run: func(ctx context.Context) (map[string]interface{}, error) {
		r, err := jobs.CheckJobStatuses(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"checked": r.Checked, "completed": r.Completed, "failed": r.Failed, "requeued": r.Requeued}, nil
	}}
	s.tasks[TaskRetryFailed] = task{spec: cfg.RetryInterval, run: func(ctx context.Context) (map[string]interface{}, error) {
		n, err := jobs.AutoRetryFailedJobs(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"retried": n}, nil
	}}
	s.tasks[TaskCleanupJobs] = task{spec: cfg.CleanupInterval, run: func(ctx context.Context) (map[string]interface{}, error) {
		n, err := jobs.CleanupOldJobs(ctx, cfg.CleanupAge)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"deleted": n}, nil
	}}
	if pipeline != nil {
		s.tasks[TaskPipelineSweep] = task{spec: cfg.PipelineInterval, run: func(ctx context.Context) (map[string]interface{}, error) {
			r, err := pipeline.ProcessPending(ctx)
			if err != nil {
				return nil, err
			}
			return map[string]interface{}{
				"retrieved": r.Retrieved,
				"parsed":    r.Parsed,
				"chunked":   r.Chunked,
				"embedded":  r.Embedded,
				"failures":  len(r.Failures),
			}, nil
		}}
	}
	return s
}

// Tasks lists the registered task names.
func (s *Scheduler) Tasks() []string {
	names := make([]string, 0, len(s.tasks))
	for name := range s.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Start registers every task with a schedule and starts the cron ticker.
// An empty schedule disables a task; an invalid one is an error.
func (s *Scheduler) Start() error {
	for _, name := range s.Tasks() {
		t := s.tasks[name]
		if t.spec == "" {
			s.logger.Info("Scheduler", "Task disabled", map[string]interface{}{"task": name})
			continue
		}
		taskName := name
		if _, err := s.cron.AddFunc(t.spec, func() { _ = s.RunNow(s.ctx, taskName) }); err != nil {
			return fmt.Errorf("invalid schedule %q for %s: %w", t.spec, name, err)
		}
		s.logger.Info("Scheduler", "Task scheduled", map[string]interface{}{"task": name, "schedule": t.spec})
	}
	s.cron.Start()
	return nil
}

// RunNow executes one task synchronously.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	t, ok := s.tasks[name]
	if !ok {
		return fmt.Errorf("unknown task %s", name)
	}
	ctx, cancel := context.WithTimeout(ctx, defaultTaskDeadline)
	defer cancel()

	start := time.Now()
	details, err := t.run(ctx)
	if err != nil {
		s.logger.Error("Scheduler", "Task failed", map[string]interface{}{
			"task":  name,
			"error": err.Error(),
		})
		return err
	}
	if details == nil {
		details = map[string]interface{}{}
	}
	details["task"] = name
	details["duration_ms"] = time.Since(start).Milliseconds()
	s.logger.Debug("Scheduler", "Task finished", details)
	return nil
}

// Stop cancels running tasks and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
}

// cronLogger routes cron's own messages to the application logger.
type cronLogger struct {
	log logger.ILogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("Scheduler", msg, pairs(keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	details := pairs(keysAndValues)
	details["error"] = fmt.Sprint(err)
	l.log.Error("Scheduler", msg, details)
}

func pairs(kv []interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(kv)/2+1)
	for i := 0; i+1 < len(kv); i += 2 {
		out[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return out
}
