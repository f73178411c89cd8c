package workers

import (
	"context"
	"sync"
	"time"

	"elaro/models"
	"elaro/services"
	"elaro/utils"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
)

// dueQueue is the queue slice the worker polls.
type dueQueue interface {
	ClaimDuePending(ctx context.Context, limit int) ([]models.Notification, error)
	Update(ctx context.Context, id string, updates bson.M) error
}

// DeliveryWorker drains the scheduled queue: a poller pulls due pending rows
// and feeds them to a pool of senders going through the delivery gate.
type DeliveryWorker struct {
	notificationRepo dueQueue
	deliveryService  *services.DeliveryService

	config DeliveryWorkerConfig

	deliveryQueue chan DeliveryJob

	isRunning bool
	mutex     sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	stats      DeliveryWorkerStats
	statsMutex sync.RWMutex
}

type DeliveryWorkerConfig struct {
	WorkerCount       int           `json:"workerCount"`
	QueueSize         int           `json:"queueSize"`
	ProcessingTimeout time.Duration `json:"processingTimeout"`
	RetryAttempts     int           `json:"retryAttempts"`
	RetryDelay        time.Duration `json:"retryDelay"`
	BatchSize         int           `json:"batchSize"`
	PollInterval      time.Duration `json:"pollInterval"`
}

type DeliveryJob struct {
	ID           string              `json:"id"`
	Notification models.Notification `json:"notification"`
	RetryCount   int                 `json:"retryCount"`
	CreatedAt    time.Time           `json:"createdAt"`
}

type DeliveryWorkerStats struct {
	JobsProcessed   int64     `json:"jobsProcessed"`
	JobsFailed      int64     `json:"jobsFailed"`
	JobsDeferred    int64     `json:"jobsDeferred"`
	JobsRetried     int64     `json:"jobsRetried"`
	LastProcessedAt time.Time `json:"lastProcessedAt"`
	QueueLength     int       `json:"queueLength"`
	StartTime       time.Time `json:"startTime"`
}

func DefaultDeliveryWorkerConfig() DeliveryWorkerConfig {
	return DeliveryWorkerConfig{
		WorkerCount:       3,
		QueueSize:         500,
		ProcessingTimeout: 30 * time.Second,
		RetryAttempts:     3,
		RetryDelay:        2 * time.Second,
		BatchSize:         50,
		PollInterval:      10 * time.Second,
	}
}

func NewDeliveryWorker(notificationRepo dueQueue, deliveryService *services.DeliveryService, config DeliveryWorkerConfig) *DeliveryWorker {
	ctx, cancel := context.WithCancel(context.Background())

	return &DeliveryWorker{
		notificationRepo: notificationRepo,
		deliveryService:  deliveryService,
		config:           config,
		deliveryQueue:    make(chan DeliveryJob, config.QueueSize),
		ctx:              ctx,
		cancel:           cancel,
		stats: DeliveryWorkerStats{
			StartTime: time.Now(),
		},
	}
}

func (dw *DeliveryWorker) Start() error {
	dw.mutex.Lock()
	defer dw.mutex.Unlock()

	if dw.isRunning {
		return nil
	}
	dw.isRunning = true

	logrus.Infof("Starting delivery worker with %d senders", dw.config.WorkerCount)

	for i := 0; i < dw.config.WorkerCount; i++ {
		dw.wg.Add(1)
		go dw.worker(i)
	}

	dw.wg.Add(1)
	go dw.duePoller()

	dw.wg.Add(1)
	go dw.metricsCollector()

	return nil
}

func (dw *DeliveryWorker) Stop() error {
	dw.mutex.Lock()
	defer dw.mutex.Unlock()

	if !dw.isRunning {
		return nil
	}

	logrus.Info("Stopping delivery worker...")

	dw.cancel()
	dw.isRunning = false

	// Senders and retry goroutines must be drained before the channel closes,
	// otherwise a late retry could send on a closed channel.
	dw.wg.Wait()
	close(dw.deliveryQueue)

	for job := range dw.deliveryQueue {
		dw.releaseClaim(job.Notification)
	}

	logrus.Info("Delivery worker stopped")
	return nil
}

func (dw *DeliveryWorker) Stats() DeliveryWorkerStats {
	dw.statsMutex.RLock()
	defer dw.statsMutex.RUnlock()

	stats := dw.stats
	stats.QueueLength = len(dw.deliveryQueue)
	return stats
}

func (dw *DeliveryWorker) worker(workerID int) {
	defer dw.wg.Done()

	logrus.Debugf("Delivery sender %d started", workerID)

	for {
		select {
		case job, ok := <-dw.deliveryQueue:
			if !ok {
				logrus.Debugf("Delivery sender %d stopping", workerID)
				return
			}
			dw.processJob(job)

		case <-dw.ctx.Done():
			logrus.Debugf("Delivery sender %d stopping due to shutdown", workerID)
			return
		}
	}
}

func (dw *DeliveryWorker) processJob(job DeliveryJob) {
	ctx, cancelTimeout := context.WithTimeout(dw.ctx, dw.config.ProcessingTimeout)
	defer cancelTimeout()

	result, err := dw.deliveryService.Send(ctx, &job.Notification)
	if err != nil {
		dw.handleSendError(job, err)
		return
	}

	dw.statsMutex.Lock()
	dw.stats.JobsProcessed++
	dw.stats.LastProcessedAt = time.Now()
	if !result.Success {
		// Cancelled, deferred, or terminally failed by the gate. The gate
		// already updated the queue row.
		dw.stats.JobsDeferred++
	}
	dw.statsMutex.Unlock()
}

// handleSendError retries transient failures with a linear backoff, then
// marks the row failed.
func (dw *DeliveryWorker) handleSendError(job DeliveryJob, err error) {
	logrus.Warnf("Delivery failed for notification %s (attempt %d): %v",
		job.Notification.ID.Hex(), job.RetryCount+1, err)

	if job.RetryCount < dw.config.RetryAttempts {
		job.RetryCount++

		dw.statsMutex.Lock()
		dw.stats.JobsRetried++
		dw.statsMutex.Unlock()

		dw.wg.Add(1)
		go func() {
			defer dw.wg.Done()
			select {
			case <-time.After(dw.config.RetryDelay * time.Duration(job.RetryCount)):
			case <-dw.ctx.Done():
				return
			}
			select {
			case dw.deliveryQueue <- job:
			case <-dw.ctx.Done():
			}
		}()
		return
	}

	dw.statsMutex.Lock()
	dw.stats.JobsFailed++
	dw.statsMutex.Unlock()

	updates := bson.M{
		"status":    models.NotificationStatusFailed,
		"lastError": err.Error(),
	}
	if updateErr := dw.notificationRepo.Update(dw.ctx, job.Notification.ID.Hex(), updates); updateErr != nil {
		logrus.Errorf("Failed to mark notification %s failed: %v", job.Notification.ID.Hex(), updateErr)
	}
}

// duePoller claims due rows into the queue on a fixed interval. The claim
// flips each row to sending so a second poll never picks it up again.
func (dw *DeliveryWorker) duePoller() {
	defer dw.wg.Done()

	ticker := time.NewTicker(dw.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			dw.pollOnce()
		case <-dw.ctx.Done():
			return
		}
	}
}

func (dw *DeliveryWorker) pollOnce() {
	due, err := dw.notificationRepo.ClaimDuePending(dw.ctx, dw.config.BatchSize)
	if err != nil {
		logrus.Errorf("Due-notification poll failed: %v", err)
		return
	}

	for i, notification := range due {
		job := DeliveryJob{
			ID:           utils.GenerateUUID(),
			Notification: notification,
			CreatedAt:    time.Now(),
		}

		select {
		case dw.deliveryQueue <- job:
		default:
			logrus.Warn("Delivery queue full, releasing remaining claims for next poll")
			for _, claimed := range due[i:] {
				dw.releaseClaim(claimed)
			}
			return
		}
	}
}

// releaseClaim puts a claimed row back to pending so the next poll retries it.
func (dw *DeliveryWorker) releaseClaim(notification models.Notification) {
	updates := bson.M{"status": models.NotificationStatusPending}
	if err := dw.notificationRepo.Update(context.Background(), notification.ID.Hex(), updates); err != nil {
		logrus.Errorf("Failed to release claim on notification %s: %v", notification.ID.Hex(), err)
	}
}

func (dw *DeliveryWorker) metricsCollector() {
	defer dw.wg.Done()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			stats := dw.Stats()
			logrus.Debugf("Delivery worker: %d processed, %d failed, %d retried, queue %d",
				stats.JobsProcessed, stats.JobsFailed, stats.JobsRetried, stats.QueueLength)
		case <-dw.ctx.Done():
			return
		}
	}
}
