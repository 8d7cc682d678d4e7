package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"propscan-api/internal/logger"
	"propscan-api/internal/model"
	"propscan-api/pkg/serial"
)

// MongoDBPropertyRepository implements PropertyRepository using MongoDB.
type MongoDBPropertyRepository struct {
	client      *mongo.Client
	db          *mongo.Database
	properties  *mongo.Collection
	scanRecords *mongo.Collection
}

// NewMongoDBPropertyRepository connects to MongoDB and ensures indexes.
func NewMongoDBPropertyRepository(uri, database string) (*MongoDBPropertyRepository, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	clientOpts := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(50).
		SetMinPoolSize(5).
		SetMaxConnIdleTime(5 * time.Minute).
		SetRetryWrites(true)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	log := logger.WithComponent("MongoDBPropertyRepository")
	db := client.Database(database)
	r := &MongoDBPropertyRepository{
		client:      client,
		db:          db,
		properties:  db.Collection("properties"),
		scanRecords: db.Collection("scan_records"),
	}

	_, err = r.properties.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "serial_number", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create property indexes")
	}
	_, err = r.scanRecords.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "timestamp", Value: -1}},
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create scan record index")
	}

	log.Info().Str("database", database).Msg("Connected")
	return r, nil
}

// Create inserts a new property.
func (r *MongoDBPropertyRepository) Create(ctx context.Context, p *model.Property) error {
	if _, err := r.properties.InsertOne(ctx, p); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert property: %w", err)
	}
	return nil
}

// GetByID finds a property by id.
func (r *MongoDBPropertyRepository) GetByID(ctx context.Context, id string) (*model.Property, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

// GetBySerial finds a property by serial number.
func (r *MongoDBPropertyRepository) GetBySerial(ctx context.Context, serialNumber string) (*model.Property, error) {
	return r.findOne(ctx, bson.M{"serial_number": serialNumber})
}

func (r *MongoDBPropertyRepository) findOne(ctx context.Context, filter bson.M) (*model.Property, error) {
	var p model.Property
	err := r.properties.FindOne(ctx, filter).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get property: %w", err)
	}
	return &p, nil
}

// Update replaces the property with the same id.
func (r *MongoDBPropertyRepository) Update(ctx context.Context, p *model.Property) error {
	res, err := r.properties.ReplaceOne(ctx, bson.M{"_id": p.ID}, p)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to update property: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a property by id.
func (r *MongoDBPropertyRepository) Delete(ctx context.Context, id string) error {
	res, err := r.properties.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete property: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns a page of properties, newest first.
func (r *MongoDBPropertyRepository) List(ctx context.Context, offset, limit int) ([]model.Property, int64, error) {
	findOptions := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit)).
		SetSkip(int64(offset))

	cursor, err := r.properties.Find(ctx, bson.M{}, findOptions)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list properties: %w", err)
	}
	defer cursor.Close(ctx)

	props := []model.Property{}
	if err := cursor.All(ctx, &props); err != nil {
		return nil, 0, err
	}

	count, err := r.properties.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, 0, err
	}
	return props, count, nil
}

// MaxSequence returns the highest sequence issued for year.
func (r *MongoDBPropertyRepository) MaxSequence(ctx context.Context, year int) (int, error) {
	prefix := fmt.Sprintf("^%s-%04d-", regexp.QuoteMeta(serial.Prefix), year)
	opts := options.FindOne().
		SetSort(bson.D{{Key: "serial_number", Value: -1}}).
		SetProjection(bson.M{"serial_number": 1})

	var doc struct {
		SerialNumber string `bson:"serial_number"`
	}
	err := r.properties.FindOne(ctx, bson.M{"serial_number": bson.M{"$regex": prefix}}, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read max serial: %w", err)
	}

	parts, ok := serial.Parse(doc.SerialNumber)
	if !ok {
		return 0, fmt.Errorf("stored serial %q is malformed", doc.SerialNumber)
	}
	return parts.Sequence, nil
}

// GetStats returns statistics about the collections.
func (r *MongoDBPropertyRepository) GetStats(ctx context.Context) (map[string]interface{}, error) {
	stats := map[string]interface{}{"backend": "mongodb", "status": "connected"}

	count, err := r.properties.CountDocuments(ctx, bson.M{})
	if err != nil {
		return stats, err
	}
	stats["total_properties"] = count

	records, err := r.scanRecords.CountDocuments(ctx, bson.M{})
	if err != nil {
		return stats, err
	}
	stats["total_scan_records"] = records

	opts := options.FindOne().SetSort(bson.D{{Key: "updated_at", Value: -1}})
	var last model.Property
	if err := r.properties.FindOne(ctx, bson.M{}, opts).Decode(&last); err == nil {
		stats["last_update"] = last.UpdatedAt
	}

	result := r.db.RunCommand(ctx, bson.D{{Key: "collStats", Value: r.properties.Name()}})
	var collStats bson.M
	if err := result.Decode(&collStats); err == nil {
		if size, ok := collStats["size"].(int64); ok {
			stats["db_size_bytes"] = size
		} else if size, ok := collStats["size"].(int32); ok {
			stats["db_size_bytes"] = int64(size)
		}
	}

	return stats, nil
}

// Close closes the MongoDB connection.
func (r *MongoDBPropertyRepository) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return r.client.Disconnect(ctx)
}

// ScanRecords returns the scan record repository on the same database.
func (r *MongoDBPropertyRepository) ScanRecords() ScanRecordRepository {
	return &MongoDBScanRecordRepository{collection: r.scanRecords}
}

// MongoDBScanRecordRepository implements ScanRecordRepository using MongoDB.
type MongoDBScanRecordRepository struct {
	collection *mongo.Collection
}

// BatchInsert upserts records by id. Records are immutable, so a replay
// rewrites identical documents.
func (r *MongoDBScanRecordRepository) BatchInsert(ctx context.Context, records []model.ScanRecord) error {
	if len(records) == 0 {
		return nil
	}

	models := make([]mongo.WriteModel, len(records))
	for i, rec := range records {
		models[i] = mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": rec.ID}).
			SetReplacement(rec).
			SetUpsert(true)
	}

	opts := options.BulkWrite().SetOrdered(false)
	if _, err := r.collection.BulkWrite(ctx, models, opts); err != nil {
		return fmt.Errorf("failed to batch insert scan records: %w", err)
	}
	return nil
}

// List returns a page of records, newest first.
func (r *MongoDBScanRecordRepository) List(ctx context.Context, offset, limit int) ([]model.ScanRecord, int64, error) {
	findOptions := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(int64(limit)).
		SetSkip(int64(offset))

	cursor, err := r.collection.Find(ctx, bson.M{}, findOptions)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	// Ensure not nil slice for JSON
	records := []model.ScanRecord{}
	if err := cursor.All(ctx, &records); err != nil {
		return nil, 0, err
	}

	count, err := r.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, 0, err
	}
	return records, count, nil
}

// DeleteOlderThan removes records older than cutoff.
func (r *MongoDBScanRecordRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.collection.DeleteMany(ctx, bson.M{"timestamp": bson.M{"$lt": cutoff.UnixMilli()}})
	if err != nil {
		return 0, fmt.Errorf("failed to delete scan records: %w", err)
	}
	return result.DeletedCount, nil
}

var (
	_ PropertyRepository   = (*MongoDBPropertyRepository)(nil)
	_ ScanRecordRepository = (*MongoDBScanRecordRepository)(nil)
)
