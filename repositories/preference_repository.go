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

type PreferenceRepository struct {
	collection *mongo.Collection
}

func NewPreferenceRepository(db *mongo.Database) *PreferenceRepository {
	return &PreferenceRepository{
		collection: db.Collection("notification_preferences"),
	}
}

// GetByUserID returns the stored preferences, or mongo.ErrNoDocuments when
// the user has never saved any.
func (pr *PreferenceRepository) GetByUserID(ctx context.Context, userID string) (*models.NotificationPreference, error) {
	objectID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil, fmt.Errorf("invalid user ID: %w", err)
	}

	var prefs models.NotificationPreference
	err = pr.collection.FindOne(ctx, bson.M{"userId": objectID}).Decode(&prefs)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get preferences: %w", err)
	}

	return &prefs, nil
}

// Upsert writes the full preference document for a user.
func (pr *PreferenceRepository) Upsert(ctx context.Context, prefs *models.NotificationPreference) error {
	prefs.UpdatedAt = time.Now()

	filter := bson.M{"userId": prefs.UserID}
	update := bson.M{"$set": prefs}
	opts := options.Update().SetUpsert(true)

	_, err := pr.collection.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		return fmt.Errorf("failed to upsert preferences: %w", err)
	}

	return nil
}
