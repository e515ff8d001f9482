package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// NewScheduler returns a started UTC scheduler whose job lifecycle is logged
// through the logger carried by ctx.
func NewScheduler(ctx context.Context) (gocron.Scheduler, error) {
	zlog := zerolog.Ctx(ctx)

	scheduler, err := gocron.NewScheduler(
		gocron.WithGlobalJobOptions(
			gocron.WithContext(ctx),
			gocron.WithEventListeners(
				gocron.BeforeJobRuns(func(jobID uuid.UUID, jobName string) {
					zlog.Debug().Str("job_name", jobName).Str("job_id", jobID.String()).Msg("job started")
				}),
				gocron.AfterJobRunsWithError(func(jobID uuid.UUID, jobName string, err error) {
					zlog.Err(err).Str("job_name", jobName).Str("job_id", jobID.String()).Msg("error while running the job")
				}),
				gocron.AfterJobRunsWithPanic(func(jobID uuid.UUID, jobName string, recoverData any) {
					zlog.Error().Str("job_name", jobName).Str("job_id", jobID.String()).Any("recover_data", recoverData).Msg("job panicked")
				}),
			),
		),
		gocron.WithLogger(logger{l: zlog}),
		gocron.WithLocation(time.UTC),
	)
	if err != nil {
		return nil, fmt.Errorf("create cron scheduler: %w", err)
	}
	scheduler.Start()
	return scheduler, nil
}

// Every registers fn as a singleton job running every interval.
func Every(ctx context.Context, s gocron.Scheduler, name string, interval time.Duration, fn func(context.Context) error) error {
	_, err := s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(fn),
		gocron.WithContext(ctx),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName(name),
	)
	if err != nil {
		return fmt.Errorf("register job %q: %w", name, err)
	}
	return nil
}

// logger adapts zerolog to gocron.Logger. gocron passes key/value pairs.
type logger struct {
	l *zerolog.Logger
}

func (l logger) Debug(msg string, args ...any) { l.l.Debug().Fields(args).Msg(msg) }
func (l logger) Error(msg string, args ...any) { l.l.Error().Fields(args).Msg(msg) }
func (l logger) Info(msg string, args ...any)  { l.l.Info().Fields(args).Msg(msg) }
func (l logger) Warn(msg string, args ...any)  { l.l.Warn().Fields(args).Msg(msg) }
