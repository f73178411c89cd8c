package workers

import (
	"context"
	"sync"
	"time"

	"elaro/config"
	"elaro/services"

	"github.com/sirupsen/logrus"
)

// ReportWorker fires the weekly report run at the configured weekday/hour
// and retries failed reports hourly.
type ReportWorker struct {
	reportService *services.ReportService
	cfg           config.ReportConfig

	isRunning bool
	mutex     sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewReportWorker(reportService *services.ReportService, cfg config.ReportConfig) *ReportWorker {
	ctx, cancel := context.WithCancel(context.Background())

	return &ReportWorker{
		reportService: reportService,
		cfg:           cfg,
		ctx:           ctx,
		cancel:        cancel,
	}
}

func (rw *ReportWorker) Start() error {
	rw.mutex.Lock()
	defer rw.mutex.Unlock()

	if rw.isRunning {
		return nil
	}
	rw.isRunning = true

	logrus.Infof("Starting report worker (weekly run %s %02d:00)", rw.cfg.RunWeekday, rw.cfg.RunHour)

	rw.wg.Add(1)
	go rw.weeklyLoop()

	rw.wg.Add(1)
	go rw.retryLoop()

	return nil
}

func (rw *ReportWorker) Stop() error {
	rw.mutex.Lock()
	defer rw.mutex.Unlock()

	if !rw.isRunning {
		return nil
	}

	logrus.Info("Stopping report worker...")

	rw.cancel()
	rw.isRunning = false
	rw.wg.Wait()

	logrus.Info("Report worker stopped")
	return nil
}

// weeklyLoop sleeps until the next configured run moment, fires, repeats.
func (rw *ReportWorker) weeklyLoop() {
	defer rw.wg.Done()

	for {
		next := rw.nextRun(time.Now())
		logrus.Debugf("Next weekly report run at %s", next.Format(time.RFC3339))

		select {
		case <-time.After(time.Until(next)):
			if _, err := rw.reportService.RunWeeklyReports(rw.ctx); err != nil {
				logrus.Errorf("Weekly report run failed: %v", err)
			}
		case <-rw.ctx.Done():
			return
		}
	}
}

// retryLoop sweeps recently failed reports once an hour.
func (rw *ReportWorker) retryLoop() {
	defer rw.wg.Done()

	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := rw.reportService.RetryFailedReports(rw.ctx); err != nil {
				logrus.Errorf("Report retry run failed: %v", err)
			}
		case <-rw.ctx.Done():
			return
		}
	}
}

// nextRun returns the next occurrence of the configured weekday and hour
// strictly after now.
func (rw *ReportWorker) nextRun(now time.Time) time.Time {
	candidate := time.Date(now.Year(), now.Month(), now.Day(), rw.cfg.RunHour, 0, 0, 0, now.Location())

	daysAhead := (int(rw.cfg.RunWeekday) - int(now.Weekday()) + 7) % 7
	candidate = candidate.AddDate(0, 0, daysAhead)

	if !candidate.After(now) {
		candidate = candidate.AddDate(0, 0, 7)
	}
	return candidate
}
