package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/berlin-traffic-map/roadkpi/internal/models"
)

// MongoStore keeps one document per snapshot in a collection
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// OpenMongo connects to MongoDB and ensures the unique snapshot index
func OpenMongo(ctx context.Context, uri, database, collection string) (*MongoStore, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	coll := client.Database(database).Collection(collection)
	_, err = coll.Indexes().CreateOne(connectCtx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "timestamp", Value: 1},
			{Key: "vehicle_type", Value: 1},
			{Key: "kpi_type", Value: 1},
		},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to create snapshot index: %w", err)
	}

	log.Printf("Connected to MongoDB: %s.%s", database, collection)
	return &MongoStore{client: client, coll: coll}, nil
}

func keyFilter(key models.Key) bson.D {
	return bson.D{
		{Key: "timestamp", Value: key.Timestamp},
		{Key: "vehicle_type", Value: key.VehicleType},
		{Key: "kpi_type", Value: key.KPIType},
	}
}

// Save replaces the document with the same key, inserting it if missing
func (s *MongoStore) Save(ctx context.Context, snap *models.Snapshot) error {
	if snap.SnapshotID == "" {
		snap.SnapshotID = uuid.New().String()
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}
	doc := *snap
	if doc.Features == nil {
		doc.Features = []models.Feature{}
	}

	_, err := s.coll.ReplaceOne(ctx, keyFilter(snap.Key()), doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to upsert snapshot: %w", err)
	}
	return nil
}

// Reset deletes every document in the collection
func (s *MongoStore) Reset(ctx context.Context) error {
	result, err := s.coll.DeleteMany(ctx, bson.D{})
	if err != nil {
		return fmt.Errorf("failed to reset snapshots: %w", err)
	}
	log.Printf("Reset: deleted %d stored records", result.DeletedCount)
	return nil
}

// Timestamps lists stored timestamps for a vehicle/kpi combination
func (s *MongoStore) Timestamps(ctx context.Context, vehicleType, kpiType string) ([]string, error) {
	values, err := s.coll.Distinct(ctx, "timestamp", bson.D{
		{Key: "vehicle_type", Value: vehicleType},
		{Key: "kpi_type", Value: kpiType},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query timestamps: %w", err)
	}

	timestamps := make([]string, 0, len(values))
	for _, v := range values {
		if ts, ok := v.(string); ok {
			timestamps = append(timestamps, ts)
		}
	}
	sort.Strings(timestamps)
	return timestamps, nil
}

// Range returns snapshots in [start, end] ordered by timestamp
func (s *MongoStore) Range(ctx context.Context, vehicleType, kpiType, start, end string) ([]models.Snapshot, error) {
	filter := bson.D{
		{Key: "vehicle_type", Value: vehicleType},
		{Key: "kpi_type", Value: kpiType},
		{Key: "timestamp", Value: bson.D{{Key: "$gte", Value: start}, {Key: "$lte", Value: end}}},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: 1}}).
		SetProjection(bson.D{{Key: "_id", Value: 0}})

	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer cursor.Close(ctx)

	var snaps []models.Snapshot
	if err := cursor.All(ctx, &snaps); err != nil {
		return nil, fmt.Errorf("failed to decode snapshots: %w", err)
	}
	return snaps, nil
}

// Get returns one snapshot
func (s *MongoStore) Get(ctx context.Context, key models.Key) (*models.Snapshot, error) {
	opts := options.FindOne().SetProjection(bson.D{{Key: "_id", Value: 0}})

	var snap models.Snapshot
	err := s.coll.FindOne(ctx, keyFilter(key), opts).Decode(&snap)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return &snap, nil
}

// Ping checks the server connection
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects the client
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
