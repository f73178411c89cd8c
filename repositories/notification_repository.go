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

// NotificationRepository persists the scheduled notification queue.
type NotificationRepository struct {
	collection *mongo.Collection
}

func NewNotificationRepository(db *mongo.Database) *NotificationRepository {
	return &NotificationRepository{
		collection: db.Collection("notification_queue"),
	}
}

func (nr *NotificationRepository) Create(ctx context.Context, notification *models.Notification) error {
	notification.CreatedAt = time.Now()
	notification.UpdatedAt = time.Now()

	result, err := nr.collection.InsertOne(ctx, notification)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		notification.ID = oid
	}

	return nil
}

func (nr *NotificationRepository) GetByID(ctx context.Context, id string) (*models.Notification, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("invalid notification ID: %w", err)
	}

	var notification models.Notification
	err = nr.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&notification)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}

	return &notification, nil
}

// Update applies a partial update to one queue row.
func (nr *NotificationRepository) Update(ctx context.Context, id string, updates bson.M) error {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("invalid notification ID: %w", err)
	}

	updates["updatedAt"] = time.Now()

	_, err = nr.collection.UpdateOne(ctx, bson.M{"_id": objectID}, bson.M{"$set": updates})
	if err != nil {
		return fmt.Errorf("failed to update notification: %w", err)
	}

	return nil
}

// GetScheduled lists a user's pending scheduled notifications, soonest first.
func (nr *NotificationRepository) GetScheduled(ctx context.Context, req models.GetScheduledRequest) ([]models.Notification, int64, error) {
	objectID, err := primitive.ObjectIDFromHex(req.UserID)
	if err != nil {
		return nil, 0, fmt.Errorf("invalid user ID: %w", err)
	}

	filter := bson.M{"userId": objectID, "status": models.NotificationStatusPending}
	if req.Type != "" {
		filter["type"] = req.Type
	}

	total, err := nr.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count notifications: %w", err)
	}

	skip := utils.CalculateOffset(req.Page, req.PageSize)
	findOptions := options.Find().
		SetSort(bson.D{{Key: "scheduledFor", Value: 1}}).
		SetSkip(int64(skip)).
		SetLimit(int64(req.PageSize))

	cursor, err := nr.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to find notifications: %w", err)
	}
	defer cursor.Close(ctx)

	var notifications []models.Notification
	if err = cursor.All(ctx, &notifications); err != nil {
		return nil, 0, fmt.Errorf("failed to decode notifications: %w", err)
	}

	return notifications, total, nil
}

// ClaimDuePending atomically claims pending rows whose scheduled time has
// arrived, flipping each to sending so concurrent pollers never hand the same
// row out twice.
func (nr *NotificationRepository) ClaimDuePending(ctx context.Context, limit int) ([]models.Notification, error) {
	filter := bson.M{
		"status":       models.NotificationStatusPending,
		"scheduledFor": bson.M{"$lte": time.Now()},
	}
	update := bson.M{"$set": bson.M{
		"status":    models.NotificationStatusSending,
		"updatedAt": time.Now(),
	}}

	opts := options.FindOneAndUpdate().
		SetSort(bson.D{{Key: "scheduledFor", Value: 1}}).
		SetReturnDocument(options.After)

	var claimed []models.Notification
	for len(claimed) < limit {
		var notification models.Notification
		err := nr.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&notification)
		if err != nil {
			if err == mongo.ErrNoDocuments {
				break
			}
			return claimed, fmt.Errorf("failed to claim due notifications: %w", err)
		}
		claimed = append(claimed, notification)
	}

	return claimed, nil
}

// Cancel marks one pending notification cancelled, scoped to the owning
// user. Sent rows are immutable.
func (nr *NotificationRepository) Cancel(ctx context.Context, id, userID string) error {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("invalid notification ID: %w", err)
	}
	userObjectID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return fmt.Errorf("invalid user ID: %w", err)
	}

	filter := bson.M{"_id": objectID, "userId": userObjectID, "status": models.NotificationStatusPending}
	update := bson.M{"$set": bson.M{
		"status":    models.NotificationStatusCancelled,
		"updatedAt": time.Now(),
	}}

	result, err := nr.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to cancel notification: %w", err)
	}
	if result.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}

	return nil
}

// CancelAll cancels every pending notification for a user and returns the
// count.
func (nr *NotificationRepository) CancelAll(ctx context.Context, userID string) (int64, error) {
	objectID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return 0, fmt.Errorf("invalid user ID: %w", err)
	}

	filter := bson.M{"userId": objectID, "status": models.NotificationStatusPending}
	update := bson.M{"$set": bson.M{
		"status":    models.NotificationStatusCancelled,
		"updatedAt": time.Now(),
	}}

	result, err := nr.collection.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel notifications: %w", err)
	}

	return result.ModifiedCount, nil
}

// DeleteExpired removes rows past their expiry.
func (nr *NotificationRepository) DeleteExpired(ctx context.Context) (int64, error) {
	filter := bson.M{
		"expiresAt": bson.M{"$lt": time.Now(), "$ne": time.Time{}},
	}

	result, err := nr.collection.DeleteMany(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired notifications: %w", err)
	}

	return result.DeletedCount, nil
}
