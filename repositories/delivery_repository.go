package repositories

import (
	"context"
	"fmt"
	"time"

	"elaro/models"
	"elaro/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DeliveryRepository persists the append-only delivery ledger and the queued
// offline actions replayed on sync.
type DeliveryRepository struct {
	recordsCollection *mongo.Collection
	actionsCollection *mongo.Collection
}

func NewDeliveryRepository(db *mongo.Database) *DeliveryRepository {
	return &DeliveryRepository{
		recordsCollection: db.Collection("delivery_records"),
		actionsCollection: db.Collection("offline_actions"),
	}
}

func (dr *DeliveryRepository) Create(ctx context.Context, record *models.DeliveryRecord) error {
	record.CreatedAt = time.Now()

	result, err := dr.recordsCollection.InsertOne(ctx, record)
	if err != nil {
		return fmt.Errorf("failed to create delivery record: %w", err)
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		record.ID = oid
	}

	return nil
}

func (dr *DeliveryRepository) GetByID(ctx context.Context, id string) (*models.DeliveryRecord, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("invalid record ID: %w", err)
	}

	var record models.DeliveryRecord
	err = dr.recordsCollection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&record)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get delivery record: %w", err)
	}

	return &record, nil
}

// List returns a user's history, newest sends first.
func (dr *DeliveryRepository) List(ctx context.Context, req models.GetHistoryRequest) ([]models.DeliveryRecord, int64, error) {
	objectID, err := primitive.ObjectIDFromHex(req.UserID)
	if err != nil {
		return nil, 0, fmt.Errorf("invalid user ID: %w", err)
	}

	filter := bson.M{"userId": objectID}
	if req.Type != "" {
		filter["type"] = req.Type
	}
	if req.UnreadOnly {
		filter["isRead"] = false
	}

	total, err := dr.recordsCollection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count delivery records: %w", err)
	}

	skip := utils.CalculateOffset(req.Page, req.PageSize)
	findOptions := options.Find().
		SetSort(bson.D{{Key: "sentAt", Value: -1}}).
		SetSkip(int64(skip)).
		SetLimit(int64(req.PageSize))

	cursor, err := dr.recordsCollection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to find delivery records: %w", err)
	}
	defer cursor.Close(ctx)

	var records []models.DeliveryRecord
	if err = cursor.All(ctx, &records); err != nil {
		return nil, 0, fmt.Errorf("failed to decode delivery records: %w", err)
	}

	return records, total, nil
}

// CountSentSince counts records sent at or after the cutoff. Used for the
// daily frequency cap with a local-midnight cutoff.
func (dr *DeliveryRepository) CountSentSince(ctx context.Context, userID string, since time.Time) (int64, error) {
	objectID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return 0, fmt.Errorf("invalid user ID: %w", err)
	}

	filter := bson.M{
		"userId": objectID,
		"sentAt": bson.M{"$gte": since},
	}

	count, err := dr.recordsCollection.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to count sent records: %w", err)
	}

	return count, nil
}

// GetLastSent returns the most recent send, or mongo.ErrNoDocuments.
func (dr *DeliveryRepository) GetLastSent(ctx context.Context, userID string) (*models.DeliveryRecord, error) {
	objectID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil, fmt.Errorf("invalid user ID: %w", err)
	}

	findOptions := options.FindOne().SetSort(bson.D{{Key: "sentAt", Value: -1}})

	var record models.DeliveryRecord
	err = dr.recordsCollection.FindOne(ctx, bson.M{"userId": objectID}, findOptions).Decode(&record)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get last sent record: %w", err)
	}

	return &record, nil
}

// GetOpenedSince returns records opened within the rolling engagement window.
func (dr *DeliveryRepository) GetOpenedSince(ctx context.Context, userID string, since time.Time) ([]models.DeliveryRecord, error) {
	objectID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil, fmt.Errorf("invalid user ID: %w", err)
	}

	filter := bson.M{
		"userId":   objectID,
		"openedAt": bson.M{"$gte": since},
	}

	cursor, err := dr.recordsCollection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to find opened records: %w", err)
	}
	defer cursor.Close(ctx)

	var records []models.DeliveryRecord
	if err = cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode opened records: %w", err)
	}

	return records, nil
}

// CountBetween returns sent and read counts for a window. Used by the weekly
// report aggregates.
func (dr *DeliveryRepository) CountBetween(ctx context.Context, userID string, from, to time.Time) (sent int64, read int64, err error) {
	objectID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid user ID: %w", err)
	}

	window := bson.M{"$gte": from, "$lt": to}

	sent, err = dr.recordsCollection.CountDocuments(ctx, bson.M{"userId": objectID, "sentAt": window})
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count sent records: %w", err)
	}

	read, err = dr.recordsCollection.CountDocuments(ctx, bson.M{"userId": objectID, "sentAt": window, "isRead": true})
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count read records: %w", err)
	}

	return sent, read, nil
}

func (dr *DeliveryRepository) MarkRead(ctx context.Context, id string) error {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("invalid record ID: %w", err)
	}

	now := time.Now()
	update := bson.M{"$set": bson.M{"isRead": true, "readAt": now, "openedAt": now}}

	result, err := dr.recordsCollection.UpdateOne(ctx, bson.M{"_id": objectID}, update)
	if err != nil {
		return fmt.Errorf("failed to mark record read: %w", err)
	}
	if result.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}

	return nil
}

func (dr *DeliveryRepository) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	objectID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return 0, fmt.Errorf("invalid user ID: %w", err)
	}

	now := time.Now()
	filter := bson.M{"userId": objectID, "isRead": false}
	update := bson.M{"$set": bson.M{"isRead": true, "readAt": now}}

	result, err := dr.recordsCollection.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("failed to mark records read: %w", err)
	}

	return result.ModifiedCount, nil
}

func (dr *DeliveryRepository) MarkDelivered(ctx context.Context, id string) error {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("invalid record ID: %w", err)
	}

	update := bson.M{"$set": bson.M{"deliveredAt": time.Now()}}

	_, err = dr.recordsCollection.UpdateOne(ctx, bson.M{"_id": objectID}, update)
	if err != nil {
		return fmt.Errorf("failed to mark record delivered: %w", err)
	}

	return nil
}

func (dr *DeliveryRepository) Delete(ctx context.Context, id string) error {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("invalid record ID: %w", err)
	}

	result, err := dr.recordsCollection.DeleteOne(ctx, bson.M{"_id": objectID})
	if err != nil {
		return fmt.Errorf("failed to delete delivery record: %w", err)
	}
	if result.DeletedCount == 0 {
		return mongo.ErrNoDocuments
	}

	return nil
}

// DeleteOlderThan trims ledger rows older than the cutoff for one user.
func (dr *DeliveryRepository) DeleteOlderThan(ctx context.Context, userID string, cutoff time.Time) (int64, error) {
	objectID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return 0, fmt.Errorf("invalid user ID: %w", err)
	}

	filter := bson.M{"userId": objectID, "sentAt": bson.M{"$lt": cutoff}}

	result, err := dr.recordsCollection.DeleteMany(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old records: %w", err)
	}

	return result.DeletedCount, nil
}

// DeleteAllOlderThan trims ledger rows for every user. Used by the cleanup
// worker sweep.
func (dr *DeliveryRepository) DeleteAllOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := dr.recordsCollection.DeleteMany(ctx, bson.M{"sentAt": bson.M{"$lt": cutoff}})
	if err != nil {
		return 0, fmt.Errorf("failed to delete old records: %w", err)
	}

	return result.DeletedCount, nil
}

// RecordAction persists a replayed offline action id for dedup. Returns
// mongo duplicate-key error when the action was already applied.
func (dr *DeliveryRepository) RecordAction(ctx context.Context, action *models.OfflineAction) error {
	_, err := dr.actionsCollection.InsertOne(ctx, action)
	if err != nil {
		return err
	}
	return nil
}

// IsDuplicateActionError reports whether an insert failed because the action
// id was already recorded.
func IsDuplicateActionError(err error) bool {
	return mongo.IsDuplicateKeyError(err)
}
