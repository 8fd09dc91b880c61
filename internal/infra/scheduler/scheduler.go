package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"push_notification_server/internal/app"
	"push_notification_server/internal/domain/notification"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const (
	PassDailyCheckIns  = "daily-checkins"
	PassFollowUps      = "followups"
	PassActiveCheckIns = "active-checkins"
)

// Dispatcher is the part of app.Dispatcher the scheduler drives.
type Dispatcher interface {
	ProcessDailyCheckIns(ctx context.Context, now time.Time) (app.Report, error)
	ProcessQueue(ctx context.Context, q notification.Queue, now time.Time) (app.Report, error)
}

// Alerter is notified when a pass aborts.
type Alerter interface {
	Alert(ctx context.Context, text string)
}

type NotificationScheduler struct {
	cronEngine      *cron.Cron
	dispatcher      Dispatcher
	recorder        app.Recorder
	alerter         Alerter
	logger          logrus.FieldLogger
	cronSpecHourly  string
	cronSpecQuarter string
	now             func() time.Time

	baseCtx context.Context
	cancel  context.CancelFunc

	// One run per pass at a time; the hourly and quarter-hourly jobs both
	// reach the follow-up queue at minute 0.
	running map[string]*sync.Mutex
}

func NewNotificationScheduler(
	dispatcher Dispatcher,
	recorder app.Recorder,
	alerter Alerter,
	logger logrus.FieldLogger,
	cronSpecHourly string, // e.g., "0 * * * *"
	cronSpecQuarter string, // e.g., "*/15 * * * *"
) *NotificationScheduler {
	ctx, cancel := context.WithCancel(context.Background())
	cronLogger := cron.VerbosePrintfLogger(logger.WithField("component", "cron"))
	return &NotificationScheduler{
		cronEngine: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.Recover(cronLogger)),
		),
		dispatcher:      dispatcher,
		recorder:        recorder,
		alerter:         alerter,
		logger:          logger,
		cronSpecHourly:  cronSpecHourly,
		cronSpecQuarter: cronSpecQuarter,
		now:             time.Now,
		baseCtx:         ctx,
		cancel:          cancel,
		running: map[string]*sync.Mutex{
			PassDailyCheckIns:  {},
			PassFollowUps:      {},
			PassActiveCheckIns: {},
		},
	}
}

// Start registers the jobs and starts the cron engine. It fails on an
// invalid cron spec.
func (s *NotificationScheduler) Start() error {
	s.logger.Info("Starting notification scheduler...")

	_, err := s.cronEngine.AddFunc(s.cronSpecHourly, func() {
		s.logger.Debug("Hourly tick")
		s.RunPass(PassDailyCheckIns)
		s.RunPass(PassFollowUps)
	})
	if err != nil {
		return fmt.Errorf("could not add hourly cron job: %w", err)
	}

	_, err = s.cronEngine.AddFunc(s.cronSpecQuarter, func() {
		s.logger.Debug("Quarter-hour tick")
		s.RunPass(PassFollowUps)
		s.RunPass(PassActiveCheckIns)
	})
	if err != nil {
		return fmt.Errorf("could not add quarter-hour cron job: %w", err)
	}

	s.cronEngine.Start()
	s.logger.WithFields(logrus.Fields{"hourly": s.cronSpecHourly, "quarter_hour": s.cronSpecQuarter}).Info("Notification scheduler started with jobs")
	return nil
}

// RunPass executes one pass now. A pass already running is skipped.
func (s *NotificationScheduler) RunPass(pass string) {
	mu, ok := s.running[pass]
	if !ok {
		s.logger.WithField("pass", pass).Error("Unknown pass")
		return
	}
	if s.baseCtx.Err() != nil {
		return
	}
	if !mu.TryLock() {
		s.logger.WithField("pass", pass).Info("Pass still running, skipping this tick")
		return
	}
	defer mu.Unlock()

	// No pass deadline: send timeouts belong to the sender.
	ctx := s.baseCtx

	start := time.Now()
	now := s.now().UTC()
	var (
		report app.Report
		err    error
	)
	switch pass {
	case PassDailyCheckIns:
		report, err = s.dispatcher.ProcessDailyCheckIns(ctx, now)
	case PassFollowUps:
		report, err = s.dispatcher.ProcessQueue(ctx, notification.QueueFollowUps, now)
	case PassActiveCheckIns:
		report, err = s.dispatcher.ProcessQueue(ctx, notification.QueueActiveCheckIns, now)
	}
	took := time.Since(start)
	s.recorder.RecordPass(pass, took, err)

	log := s.logger.WithFields(logrus.Fields{
		"pass":   pass,
		"due":    report.Due,
		"sent":   report.Sent,
		"failed": report.Failed,
		"took":   took.String(),
	})
	if err != nil && s.baseCtx.Err() != nil {
		log.WithError(err).Warn("Pass interrupted by shutdown")
		return
	}
	if err != nil {
		log.WithError(err).Error("Pass aborted")
		if s.alerter != nil {
			s.alerter.Alert(context.WithoutCancel(ctx), fmt.Sprintf("Pass %s aborted at %s: %v", pass, now.Format(time.RFC3339), err))
		}
		return
	}
	if report.Due > 0 {
		log.Info("Pass finished")
	}
}

// Stop prevents new passes from picking up items and waits for the running
// ones to finish.
func (s *NotificationScheduler) Stop() {
	s.logger.Info("Stopping notification scheduler...")
	s.cancel()
	ctx := s.cronEngine.Stop()
	<-ctx.Done()
	s.logger.Info("Notification scheduler gracefully stopped")
}
