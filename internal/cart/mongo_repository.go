package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRepository implements Repository on the carts collection.
type MongoRepository struct {
	collection *mongo.Collection
}

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{collection: db.Collection("carts")}
}

func (m *MongoRepository) FindOrCreate(ctx context.Context, customerID string) (*Cart, error) {
	now := time.Now()
	expires := now.Add(EmptyCartTTL)

	filter := bson.M{"customer_id": customerID}
	update := bson.M{
		"$setOnInsert": bson.M{
			"customer_id":   customerID,
			"items":         []CartItem{},
			"last_activity": now,
			"expires_at":    expires,
			"created_at":    now,
			"updated_at":    now,
		},
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var cart Cart
	if err := m.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&cart); err != nil {
		return nil, fmt.Errorf("failed to find or create cart: %w", err)
	}
	return &cart, nil
}

func (m *MongoRepository) Get(ctx context.Context, customerID string) (*Cart, error) {
	var cart Cart

	filter := bson.M{"customer_id": customerID}
	err := m.collection.FindOne(ctx, filter).Decode(&cart)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	return &cart, nil
}

func (m *MongoRepository) Save(ctx context.Context, cart *Cart) error {
	now := time.Now()
	cart.UpdatedAt = now
	if cart.CreatedAt.IsZero() {
		cart.CreatedAt = now
	}

	set := bson.M{
		"customer_id":   cart.CustomerID,
		"items":         cart.Items,
		"totals":        cart.Totals,
		"last_activity": cart.LastActivity,
		"created_at":    cart.CreatedAt,
		"updated_at":    cart.UpdatedAt,
	}
	update := bson.M{"$set": set}
	if cart.ExpiresAt != nil {
		set["expires_at"] = *cart.ExpiresAt
	} else {
		update["$unset"] = bson.M{"expires_at": ""}
	}

	filter := bson.M{"customer_id": cart.CustomerID}
	opts := options.Update().SetUpsert(true)

	if _, err := m.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to save cart: %w", err)
	}
	return nil
}

func (m *MongoRepository) Delete(ctx context.Context, customerID string) error {
	filter := bson.M{"customer_id": customerID}

	result, err := m.collection.DeleteOne(ctx, filter)
	if err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}

	if result.DeletedCount == 0 {
		return ErrCartNotFound
	}
	return nil
}

// CreateIndexes installs the unique per-customer constraint and the TTL
// sweep for abandoned empty carts.
func (m *MongoRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "customer_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	}

	_, err := m.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create cart indexes: %w", err)
	}

	return nil
}
