package repositories

import (
	"context"
	"fmt"
	"time"

	"elaro/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type ReportRepository struct {
	reportsCollection  *mongo.Collection
	logsCollection     *mongo.Collection
	sessionsCollection *mongo.Collection
}

func NewReportRepository(db *mongo.Database) *ReportRepository {
	return &ReportRepository{
		reportsCollection:  db.Collection("weekly_reports"),
		logsCollection:     db.Collection("processing_logs"),
		sessionsCollection: db.Collection("study_sessions"),
	}
}

// GetByUserWeek returns the report for (userID, weekStart), or
// mongo.ErrNoDocuments.
func (rr *ReportRepository) GetByUserWeek(ctx context.Context, userID string, weekStart time.Time) (*models.WeeklyReport, error) {
	objectID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil, fmt.Errorf("invalid user ID: %w", err)
	}

	var report models.WeeklyReport
	err = rr.reportsCollection.FindOne(ctx, bson.M{"userId": objectID, "weekStart": weekStart}).Decode(&report)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get report: %w", err)
	}

	return &report, nil
}

func (rr *ReportRepository) Create(ctx context.Context, report *models.WeeklyReport) error {
	report.CreatedAt = time.Now()

	result, err := rr.reportsCollection.InsertOne(ctx, report)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		report.ID = oid
	}

	return nil
}

func (rr *ReportRepository) Update(ctx context.Context, id primitive.ObjectID, updates bson.M) error {
	_, err := rr.reportsCollection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": updates})
	if err != nil {
		return fmt.Errorf("failed to update report: %w", err)
	}

	return nil
}

// GetFailedSince lists reports marked failed after the cutoff.
func (rr *ReportRepository) GetFailedSince(ctx context.Context, cutoff time.Time) ([]models.WeeklyReport, error) {
	filter := bson.M{
		"status":    models.ReportStatusFailed,
		"createdAt": bson.M{"$gte": cutoff},
	}

	cursor, err := rr.reportsCollection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to find failed reports: %w", err)
	}
	defer cursor.Close(ctx)

	var reports []models.WeeklyReport
	if err = cursor.All(ctx, &reports); err != nil {
		return nil, fmt.Errorf("failed to decode failed reports: %w", err)
	}

	return reports, nil
}

// IsDuplicateReportError reports whether a create collided with the unique
// (userId, weekStart) index.
func IsDuplicateReportError(err error) bool {
	return mongo.IsDuplicateKeyError(err)
}

// Processing logs

func (rr *ReportRepository) CreateLog(ctx context.Context, log *models.ProcessingLog) error {
	result, err := rr.logsCollection.InsertOne(ctx, log)
	if err != nil {
		return fmt.Errorf("failed to create processing log: %w", err)
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		log.ID = oid
	}

	return nil
}

func (rr *ReportRepository) UpdateLog(ctx context.Context, id primitive.ObjectID, updates bson.M) error {
	_, err := rr.logsCollection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": updates})
	if err != nil {
		return fmt.Errorf("failed to update processing log: %w", err)
	}

	return nil
}

func (rr *ReportRepository) GetRecentLogs(ctx context.Context, limit int) ([]models.ProcessingLog, error) {
	findOptions := options.Find().
		SetSort(bson.D{{Key: "startedAt", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := rr.logsCollection.Find(ctx, bson.M{}, findOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to find processing logs: %w", err)
	}
	defer cursor.Close(ctx)

	var logs []models.ProcessingLog
	if err = cursor.All(ctx, &logs); err != nil {
		return nil, fmt.Errorf("failed to decode processing logs: %w", err)
	}

	return logs, nil
}

// Study sessions

func (rr *ReportRepository) GetSessionsBetween(ctx context.Context, userID string, from, to time.Time) ([]models.StudySession, error) {
	objectID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil, fmt.Errorf("invalid user ID: %w", err)
	}

	filter := bson.M{
		"userId":    objectID,
		"startedAt": bson.M{"$gte": from, "$lt": to},
	}

	cursor, err := rr.sessionsCollection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to find study sessions: %w", err)
	}
	defer cursor.Close(ctx)

	var sessions []models.StudySession
	if err = cursor.All(ctx, &sessions); err != nil {
		return nil, fmt.Errorf("failed to decode study sessions: %w", err)
	}

	return sessions, nil
}
