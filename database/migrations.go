package database

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureIndexes creates the indexes every query path relies on. Safe to run
// repeatedly.
func EnsureIndexes(db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	indexes := map[string][]mongo.IndexModel{
		"notification_queue": {
			{
				Keys: bson.D{{Key: "userId", Value: 1}, {Key: "status", Value: 1}, {Key: "scheduledFor", Value: 1}},
			},
			{
				Keys: bson.D{{Key: "status", Value: 1}, {Key: "scheduledFor", Value: 1}},
			},
			{
				Keys:    bson.D{{Key: "expiresAt", Value: 1}},
				Options: options.Index().SetExpireAfterSeconds(0),
			},
		},
		"notification_preferences": {
			{
				Keys:    bson.D{{Key: "userId", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		"delivery_records": {
			{
				Keys: bson.D{{Key: "userId", Value: 1}, {Key: "sentAt", Value: -1}},
			},
			{
				Keys: bson.D{{Key: "userId", Value: 1}, {Key: "isRead", Value: 1}},
			},
		},
		"weekly_reports": {
			{
				Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "weekStart", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{
				Keys: bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: -1}},
			},
		},
		"processing_logs": {
			{
				Keys: bson.D{{Key: "runType", Value: 1}, {Key: "startedAt", Value: -1}},
			},
		},
		"offline_actions": {
			{
				Keys:    bson.D{{Key: "actionId", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		"study_sessions": {
			{
				Keys: bson.D{{Key: "userId", Value: 1}, {Key: "startedAt", Value: -1}},
			},
		},
		"users": {
			{
				Keys:    bson.D{{Key: "email", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{
				Keys: bson.D{{Key: "tier", Value: 1}, {Key: "lastActiveAt", Value: -1}},
			},
		},
	}

	for collection, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := db.Collection(collection).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("failed to create indexes for %s: %w", collection, err)
		}
		logrus.Debugf("Ensured %d indexes on %s", len(models), collection)
	}

	return nil
}
