package usermapping

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"hookbridge/internal/constants"
)

type MongoStore struct {
	collection *mongo.Collection
}

func NewMongoStore(db *mongo.Database, collection string) *MongoStore {
	if collection == "" {
		collection = constants.DefaultUserMappingCollName
	}
	return &MongoStore{collection: db.Collection(collection)}
}

func (s *MongoStore) Put(ctx context.Context, mapping UserMapping) error {
	now := time.Now().UTC()
	filter := bson.M{"tenant_id": mapping.TenantID, "user_id": mapping.UserID}
	update := bson.M{
		"$set": bson.M{
			"external_id": mapping.ExternalID,
			"updated_at":  now,
		},
		"$setOnInsert": bson.M{
			"tenant_id":  mapping.TenantID,
			"user_id":    mapping.UserID,
			"created_at": now,
		},
	}

	_, err := s.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to upsert user mapping: %w", err)
	}
	return nil
}

func (s *MongoStore) Get(ctx context.Context, tenantID, userID string) (*UserMapping, error) {
	var mapping UserMapping
	err := s.collection.FindOne(ctx, bson.M{"tenant_id": tenantID, "user_id": userID}).Decode(&mapping)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user mapping: %w", err)
	}
	return &mapping, nil
}

func (s *MongoStore) List(ctx context.Context, tenantID string) ([]UserMapping, error) {
	opts := options.Find().SetSort(bson.D{{Key: "user_id", Value: 1}})

	cursor, err := s.collection.Find(ctx, bson.M{"tenant_id": tenantID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list user mappings: %w", err)
	}
	defer cursor.Close(ctx)

	mappings := []UserMapping{}
	if err := cursor.All(ctx, &mappings); err != nil {
		return nil, fmt.Errorf("failed to decode user mappings: %w", err)
	}
	return mappings, nil
}

func (s *MongoStore) DeleteTenantMappings(ctx context.Context, tenantID string) (int, error) {
	result, err := s.collection.DeleteMany(ctx, bson.M{"tenant_id": tenantID})
	if err != nil {
		return 0, fmt.Errorf("failed to delete tenant mappings: %w", err)
	}
	return int(result.DeletedCount), nil
}
