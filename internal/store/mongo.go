// Package store is the persistence adapter: per-device-type Mongo collections
// for raw frames and normalized records, a shared devices allow-list, and a
// Redis cache for live state.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"avl-gateway/internal/model"
)

var (
	ErrNotFound = errors.New("not found")
	ErrExists   = errors.New("already exists")
)

const opTimeout = 5 * time.Second

type Store struct {
	client *mongo.Client
	db     *mongo.Database
	logger *zap.Logger
}

// Connect dials Mongo and pings it. The TCP core can run without a healthy
// store; callers decide whether a connect failure is fatal.
func Connect(ctx context.Context, uri, dbName string, logger *zap.Logger) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return &Store{client: client, db: client.Database(dbName), logger: logger}, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// CollectionType lower-cases a modem type and strips it to [a-z0-9] for use
// in collection names.
func CollectionType(modemType string) string {
	var b strings.Builder
	for _, c := range strings.ToLower(modemType) {
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
			b.WriteRune(c)
		}
	}
	if b.Len() == 0 {
		return "unknown"
	}
	return b.String()
}

func (s *Store) devices() *mongo.Collection {
	return s.db.Collection("devices")
}

func (s *Store) records(modemType string) *mongo.Collection {
	return s.db.Collection("records_" + CollectionType(modemType))
}

func (s *Store) raw(modemType string) *mongo.Collection {
	return s.db.Collection("raw_" + CollectionType(modemType))
}

// RecordsCollection exposes the records collection for admin tooling.
func (s *Store) RecordsCollection(modemType string) *mongo.Collection {
	return s.records(modemType)
}

// EnsureIndexes creates the unique devices.imei index and the record indexes
// for one device type: (imei, timestamp desc) for reads and a unique
// (timestamp, imei) composite that makes replayed inserts idempotent.
func (s *Store) EnsureIndexes(ctx context.Context, modemType string) error {
	_, err := s.devices().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "imei", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("devices index: %w", err)
	}

	_, err = s.records(modemType).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "imei", Value: 1}, {Key: "timestamp", Value: -1}}},
		{
			Keys:    bson.D{{Key: "timestamp", Value: 1}, {Key: "imei", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	})
	if err != nil {
		return fmt.Errorf("records indexes: %w", err)
	}

	_, err = s.raw(modemType).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "imei", Value: 1}, {Key: "timestamp", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("raw index: %w", err)
	}
	return nil
}

/* ----------------------------- devices ----------------------------- */

func (s *Store) GetDevice(ctx context.Context, imei string) (*model.Device, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var dev model.Device
	err := s.devices().FindOne(ctx, bson.M{"imei": imei}).Decode(&dev)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &dev, nil
}

func (s *Store) ListDevices(ctx context.Context) ([]model.Device, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	cur, err := s.devices().Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "lastSeen", Value: -1}}))
	if err != nil {
		return nil, err
	}
	devices := []model.Device{}
	if err := cur.All(ctx, &devices); err != nil {
		return nil, err
	}
	return devices, nil
}

func (s *Store) CreateDevice(ctx context.Context, dev *model.Device) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	now := time.Now().UTC()
	dev.CreatedAt = now
	dev.UpdatedAt = now
	if dev.ModemType == "" {
		dev.ModemType = model.DefaultModemType
	}
	_, err := s.devices().InsertOne(ctx, dev)
	if mongo.IsDuplicateKeyError(err) {
		return ErrExists
	}
	return err
}

// UpdateDevice applies a partial update of the operator-editable fields.
func (s *Store) UpdateDevice(ctx context.Context, imei string, fields map[string]interface{}) (*model.Device, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	set := bson.M{"updatedAt": time.Now().UTC()}
	for k, v := range fields {
		set[k] = v
	}
	var dev model.Device
	err := s.devices().FindOneAndUpdate(ctx,
		bson.M{"imei": imei},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&dev)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &dev, nil
}

func (s *Store) SetApproved(ctx context.Context, imei string, approved bool) (*model.Device, error) {
	return s.UpdateDevice(ctx, imei, map[string]interface{}{"approved": approved})
}

func (s *Store) DeleteDevice(ctx context.Context, imei string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := s.devices().DeleteOne(ctx, bson.M{"imei": imei})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchLastSeen stamps lastSeen on every accepted frame and records the VIN
// the first time it is observed in payload.
func (s *Store) TouchLastSeen(ctx context.Context, imei, vin string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	set := bson.M{"lastSeen": time.Now().UTC()}
	if vin != "" {
		set["vin"] = vin
	}
	_, err := s.devices().UpdateOne(ctx, bson.M{"imei": imei}, bson.M{"$set": set})
	return err
}

/* ----------------------------- records ----------------------------- */

// InsertRecord persists one normalized record. A duplicate (timestamp, imei)
// key means a retransmitted frame already landed; that is success.
func (s *Store) InsertRecord(ctx context.Context, modemType string, rec *model.Record) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := s.records(modemType).InsertOne(ctx, rec)
	if mongo.IsDuplicateKeyError(err) {
		return nil
	}
	return err
}

func (s *Store) InsertRaw(ctx context.Context, modemType string, frame *model.RawFrame) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := s.raw(modemType).InsertOne(ctx, frame)
	return err
}

// FindRecent returns records newest-first.
func (s *Store) FindRecent(ctx context.Context, modemType, imei string, limit, skip int64) ([]model.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	cur, err := s.records(modemType).Find(ctx,
		bson.M{"imei": imei},
		options.Find().
			SetSort(bson.D{{Key: "timestamp", Value: -1}}).
			SetLimit(limit).
			SetSkip(skip).
			SetProjection(bson.M{"_id": 0}))
	if err != nil {
		return nil, err
	}
	recs := []model.Record{}
	if err := cur.All(ctx, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

func (s *Store) FindLatest(ctx context.Context, modemType, imei string) (*model.Record, error) {
	recs, err := s.FindRecent(ctx, modemType, imei, 1, 0)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, ErrNotFound
	}
	return &recs[0], nil
}

// FindRange returns records with from <= timestamp <= to, oldest-first.
// Timestamps are canonical ISO strings, so string comparison is
// chronological.
func (s *Store) FindRange(ctx context.Context, modemType, imei, from, to string) ([]model.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cur, err := s.records(modemType).Find(ctx,
		bson.M{"imei": imei, "timestamp": bson.M{"$gte": from, "$lte": to}},
		options.Find().
			SetSort(bson.D{{Key: "timestamp", Value: 1}}).
			SetProjection(bson.M{"_id": 0}))
	if err != nil {
		return nil, err
	}
	recs := []model.Record{}
	if err := cur.All(ctx, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

func (s *Store) FindRaw(ctx context.Context, modemType, imei string, limit int64) ([]model.RawFrame, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	cur, err := s.raw(modemType).Find(ctx,
		bson.M{"imei": imei},
		options.Find().
			SetSort(bson.D{{Key: "timestamp", Value: -1}}).
			SetLimit(limit))
	if err != nil {
		return nil, err
	}
	frames := []model.RawFrame{}
	if err := cur.All(ctx, &frames); err != nil {
		return nil, err
	}
	return frames, nil
}

func (s *Store) CountRecords(ctx context.Context, modemType, imei string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	return s.records(modemType).CountDocuments(ctx, bson.M{"imei": imei})
}

// CountSince counts records at or after the given canonical timestamp.
func (s *Store) CountSince(ctx context.Context, modemType, imei, from string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	return s.records(modemType).CountDocuments(ctx,
		bson.M{"imei": imei, "timestamp": bson.M{"$gte": from}})
}
