package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/qrave1/voicegrid/internal/application/constant"
)

var cronParser = cron.NewParser(
	cron.SecondOptional |
		cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow |
		cron.Descriptor,
)

// Job - фоновая задача сервиса
type Job struct {
	Name     string
	Schedule string
	Run      func(ctx context.Context)
}

// Scheduler запускает периодические задачи. Задача не стартует заново, пока идет прошлый запуск.
type Scheduler struct {
	cron *cron.Cron
	ctx  context.Context
}

func New(ctx context.Context, jobs ...Job) (*Scheduler, error) {
	c := cron.New(
		cron.WithParser(cronParser),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)

	s := &Scheduler{cron: c, ctx: ctx}

	for _, job := range jobs {
		if _, err := c.AddFunc(job.Schedule, s.wrap(job)); err != nil {
			return nil, fmt.Errorf("schedule job %s: %w", job.Name, err)
		}
	}

	return s, nil
}

func (s *Scheduler) wrap(job Job) func() {
	return func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("job panicked", slog.String("job", job.Name), slog.Any(constant.Error, r))
			}
		}()

		job.Run(s.ctx)
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop останавливает планировщик и ждет завершения запущенных задач.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}
