package workers

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// expiredQueue is the queue slice the cleanup sweep needs.
type expiredQueue interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// retentionLedger trims old delivery records across all users.
type retentionLedger interface {
	DeleteAllOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// CleanupWorker runs the retention sweeps: expired queue rows and delivery
// records past the retention window.
type CleanupWorker struct {
	notificationRepo expiredQueue
	deliveryRepo     retentionLedger

	retentionDays int
	sweepInterval time.Duration

	isRunning bool
	mutex     sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewCleanupWorker(notificationRepo expiredQueue, deliveryRepo retentionLedger, retentionDays int) *CleanupWorker {
	ctx, cancel := context.WithCancel(context.Background())

	return &CleanupWorker{
		notificationRepo: notificationRepo,
		deliveryRepo:     deliveryRepo,
		retentionDays:    retentionDays,
		sweepInterval:    6 * time.Hour,
		ctx:              ctx,
		cancel:           cancel,
	}
}

func (cw *CleanupWorker) Start() error {
	cw.mutex.Lock()
	defer cw.mutex.Unlock()

	if cw.isRunning {
		return nil
	}
	cw.isRunning = true

	logrus.Infof("Starting cleanup worker (%d day retention)", cw.retentionDays)

	cw.wg.Add(1)
	go cw.sweepLoop()

	return nil
}

func (cw *CleanupWorker) Stop() error {
	cw.mutex.Lock()
	defer cw.mutex.Unlock()

	if !cw.isRunning {
		return nil
	}

	logrus.Info("Stopping cleanup worker...")

	cw.cancel()
	cw.isRunning = false
	cw.wg.Wait()

	logrus.Info("Cleanup worker stopped")
	return nil
}

func (cw *CleanupWorker) sweepLoop() {
	defer cw.wg.Done()

	ticker := time.NewTicker(cw.sweepInterval)
	defer ticker.Stop()

	// First sweep shortly after boot rather than waiting a full interval.
	startup := time.NewTimer(time.Minute)
	defer startup.Stop()

	for {
		select {
		case <-startup.C:
			cw.sweepOnce()
		case <-ticker.C:
			cw.sweepOnce()
		case <-cw.ctx.Done():
			return
		}
	}
}

func (cw *CleanupWorker) sweepOnce() {
	expired, err := cw.notificationRepo.DeleteExpired(cw.ctx)
	if err != nil {
		logrus.Errorf("Expired queue sweep failed: %v", err)
	} else if expired > 0 {
		logrus.Infof("Cleanup: removed %d expired queue rows", expired)
	}

	cutoff := time.Now().AddDate(0, 0, -cw.retentionDays)
	trimmed, err := cw.deliveryRepo.DeleteAllOlderThan(cw.ctx, cutoff)
	if err != nil {
		logrus.Errorf("History retention sweep failed: %v", err)
	} else if trimmed > 0 {
		logrus.Infof("Cleanup: trimmed %d delivery records older than %s", trimmed, cutoff.Format("2006-01-02"))
	}
}
