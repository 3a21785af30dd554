package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore implements Ledger on a MongoDB collection. Correctness under
// concurrent checkouts comes from MongoDB's per-document atomicity: each
// mutation is one conditional UpdateOne, so two racing Reserve calls for the
// same product are serialized by the store, not by an application mutex.
type MongoStore struct {
	collection *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{collection: db.Collection("inventory")}
}

func (s *MongoStore) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "product_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "quantity_available", Value: 1}},
		},
	}

	_, err := s.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create inventory indexes: %w", err)
	}

	return nil
}

func (s *MongoStore) Reserve(ctx context.Context, productID int64, qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}

	// The availability check and the decrement are one document update;
	// quantity_available can never go negative.
	filter := bson.M{
		"product_id":         productID,
		"quantity_available": bson.M{"$gte": qty},
	}
	update := bson.M{
		"$inc": bson.M{
			"quantity_available": -qty,
			"quantity_reserved":  qty,
		},
	}

	result, err := s.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to reserve stock: %w", err)
	}

	if result.MatchedCount == 0 {
		return s.classifyMiss(ctx, productID)
	}
	return nil
}

func (s *MongoStore) Release(ctx context.Context, productID int64, qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}

	// Available always gets the units back; only the hold is floored. A
	// cancelled paid order has zero reserved but its sold units must still
	// return to the pool.
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"quantity_available": bson.M{"$add": bson.A{"$quantity_available", qty}},
			"quantity_reserved": bson.M{"$max": bson.A{
				0,
				bson.M{"$subtract": bson.A{"$quantity_reserved", qty}},
			}},
		}}},
	}

	result, err := s.collection.UpdateOne(ctx, bson.M{"product_id": productID}, update)
	if err != nil {
		return fmt.Errorf("failed to release stock: %w", err)
	}

	if result.MatchedCount == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (s *MongoStore) Commit(ctx context.Context, productID int64, qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}

	// Available already dropped at Reserve time; only the hold is removed.
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"quantity_reserved": bson.M{"$max": bson.A{
				0,
				bson.M{"$subtract": bson.A{"$quantity_reserved", qty}},
			}},
		}}},
	}

	result, err := s.collection.UpdateOne(ctx, bson.M{"product_id": productID}, update)
	if err != nil {
		return fmt.Errorf("failed to commit stock: %w", err)
	}

	if result.MatchedCount == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (s *MongoStore) GetAvailability(ctx context.Context, productID int64) (*Record, error) {
	var rec Record
	err := s.collection.FindOne(ctx, bson.M{"product_id": productID}).Decode(&rec)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to get inventory record: %w", err)
	}
	return &rec, nil
}

func (s *MongoStore) ListLowStock(ctx context.Context, threshold int) ([]Record, error) {
	var filter bson.M
	if threshold >= 0 {
		filter = bson.M{"quantity_available": bson.M{"$lte": threshold}}
	} else {
		filter = bson.M{"$expr": bson.M{"$lte": bson.A{"$quantity_available", "$reorder_level"}}}
	}

	cursor, err := s.collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list low stock: %w", err)
	}
	defer cursor.Close(ctx)

	var records []Record
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode low stock records: %w", err)
	}
	return records, nil
}

func (s *MongoStore) ListReserved(ctx context.Context) ([]Record, error) {
	cursor, err := s.collection.Find(ctx, bson.M{"quantity_reserved": bson.M{"$gt": 0}})
	if err != nil {
		return nil, fmt.Errorf("failed to list reserved stock: %w", err)
	}
	defer cursor.Close(ctx)

	var records []Record
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode reserved records: %w", err)
	}
	return records, nil
}

func (s *MongoStore) Restock(ctx context.Context, productID int64, qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}

	filter := bson.M{
		"product_id": productID,
		"$expr": bson.M{"$lte": bson.A{
			bson.M{"$add": bson.A{"$quantity_available", qty}},
			"$max_stock_level",
		}},
	}
	update := bson.M{
		"$inc": bson.M{"quantity_available": qty},
		"$set": bson.M{"last_restocked": time.Now()},
	}

	result, err := s.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to restock: %w", err)
	}

	if result.MatchedCount == 0 {
		if _, getErr := s.GetAvailability(ctx, productID); getErr != nil {
			return getErr
		}
		return ErrOverCapacity
	}
	return nil
}

func (s *MongoStore) SetStock(ctx context.Context, rec Record) error {
	if rec.LastRestocked.IsZero() {
		rec.LastRestocked = time.Now()
	}

	filter := bson.M{"product_id": rec.ProductID}
	update := bson.M{"$set": rec}
	opts := options.Update().SetUpsert(true)

	_, err := s.collection.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		return fmt.Errorf("failed to set stock: %w", err)
	}
	return nil
}

// classifyMiss distinguishes a missing record from an insufficient one after
// a conditional Reserve matched nothing.
func (s *MongoStore) classifyMiss(ctx context.Context, productID int64) error {
	count, err := s.collection.CountDocuments(ctx, bson.M{"product_id": productID})
	if err != nil {
		return fmt.Errorf("failed to classify reservation failure: %w", err)
	}
	if count == 0 {
		return ErrProductNotFound
	}
	return ErrInsufficientStock
}
