// Package mongo provides a MongoDB-backed Store using the official driver.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	humanizer "github.com/veritext/humanizer"
	"github.com/veritext/humanizer/credit"
	"github.com/veritext/humanizer/id"
	"github.com/veritext/humanizer/project"
	humanizerstore "github.com/veritext/humanizer/store"
)

// compile-time interface check
var _ humanizerstore.Store = (*Store)(nil)

const (
	collAccounts     = "accounts"
	collReservations = "reservations"
	collUsageEvents  = "usage_events"
	collProjects     = "projects"
)

// Store is a MongoDB-backed implementation of the unified store interface.
type Store struct {
	client *mongo.Client
	db     *mongo.Database

	// ownsClient is true when Connect created the client, so Close should
	// disconnect it.
	ownsClient bool
}

// Connect dials MongoDB and returns a store bound to the named database.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx) //nolint:errcheck // connect failed, disconnect error is secondary
		return nil, fmt.Errorf("mongo: ping: %w", err)
	}
	return &Store{client: client, db: client.Database(database), ownsClient: true}, nil
}

// NewWithClient wraps an existing client. Close will not disconnect it.
func NewWithClient(client *mongo.Client, database string) *Store {
	return &Store{client: client, db: client.Database(database)}
}

// Account Store implementation

func (s *Store) CreateAccount(ctx context.Context, a *credit.Account) error {
	_, err := s.db.Collection(collAccounts).InsertOne(ctx, toAccountDoc(a))
	if mongo.IsDuplicateKeyError(err) {
		return humanizer.ErrAlreadyExists
	}
	return err
}

func (s *Store) GetAccount(ctx context.Context, userID string) (*credit.Account, error) {
	var doc accountDoc
	err := s.db.Collection(collAccounts).FindOne(ctx, bson.M{"_id": userID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, humanizer.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc.toDomain()
}

func (s *Store) UpdateAccount(ctx context.Context, a *credit.Account) error {
	res, err := s.db.Collection(collAccounts).ReplaceOne(ctx, bson.M{"_id": a.UserID}, toAccountDoc(a))
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return humanizer.ErrAccountNotFound
	}
	return nil
}

// Reservation Store implementation

func (s *Store) CreateReservation(ctx context.Context, r *credit.Reservation) error {
	_, err := s.db.Collection(collReservations).InsertOne(ctx, toReservationDoc(r))
	if mongo.IsDuplicateKeyError(err) {
		return humanizer.ErrAlreadyExists
	}
	return err
}

func (s *Store) GetReservation(ctx context.Context, resID id.ReservationID) (*credit.Reservation, error) {
	var doc reservationDoc
	err := s.db.Collection(collReservations).FindOne(ctx, bson.M{"_id": resID.String()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, humanizer.ErrUnknownReservation
	}
	if err != nil {
		return nil, err
	}
	return doc.toDomain()
}

func (s *Store) UpdateReservation(ctx context.Context, r *credit.Reservation) error {
	res, err := s.db.Collection(collReservations).ReplaceOne(ctx, bson.M{"_id": r.ID.String()}, toReservationDoc(r))
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return humanizer.ErrUnknownReservation
	}
	return nil
}

func (s *Store) ListExpiredReservations(ctx context.Context, before time.Time) ([]*credit.Reservation, error) {
	filter := bson.M{
		"state":      string(credit.StateHeld),
		"expires_at": bson.M{"$lt": before},
	}
	cursor, err := s.db.Collection(collReservations).Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "expires_at", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx) //nolint:errcheck // read-only cursor

	result := make([]*credit.Reservation, 0)
	for cursor.Next(ctx) {
		var doc reservationDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		r, err := doc.toDomain()
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, cursor.Err()
}

// Usage Store implementation

func (s *Store) IngestUsage(ctx context.Context, events []*credit.UsageEvent) error {
	if len(events) == 0 {
		return nil
	}
	docs := make([]any, len(events))
	for i, e := range events {
		docs[i] = toUsageEventDoc(e)
	}
	_, err := s.db.Collection(collUsageEvents).InsertMany(ctx, docs)
	return err
}

func (s *Store) QueryUsage(ctx context.Context, userID string, opts credit.QueryOpts) ([]*credit.UsageEvent, error) {
	filter := bson.M{"user_id": userID}
	if opts.Level != "" {
		filter["level"] = opts.Level
	}
	timeRange := bson.M{}
	if !opts.Start.IsZero() {
		timeRange["$gte"] = opts.Start
	}
	if !opts.End.IsZero() {
		timeRange["$lte"] = opts.End
	}
	if len(timeRange) > 0 {
		filter["timestamp"] = timeRange
	}

	findOpts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	if opts.Limit > 0 {
		findOpts = findOpts.SetLimit(int64(opts.Limit)).SetSkip(int64(opts.Offset))
	}

	cursor, err := s.db.Collection(collUsageEvents).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx) //nolint:errcheck // read-only cursor

	result := make([]*credit.UsageEvent, 0)
	for cursor.Next(ctx) {
		var doc usageEventDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		e, err := doc.toDomain()
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, cursor.Err()
}

func (s *Store) UsageTotal(ctx context.Context, userID string, since time.Time) (int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"user_id":   userID,
			"timestamp": bson.M{"$gt": since},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id":   nil,
			"total": bson.M{"$sum": "$credits_charged"},
		}}},
	}

	cursor, err := s.db.Collection(collUsageEvents).Aggregate(ctx, pipeline)
	if err != nil {
		return 0, err
	}
	defer cursor.Close(ctx) //nolint:errcheck // read-only cursor

	var row struct {
		Total int64 `bson:"total"`
	}
	if cursor.Next(ctx) {
		if err := cursor.Decode(&row); err != nil {
			return 0, err
		}
	}
	return row.Total, cursor.Err()
}

func (s *Store) PurgeUsage(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.Collection(collUsageEvents).DeleteMany(ctx, bson.M{
		"timestamp": bson.M{"$lt": before},
	})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// Project Store implementation

func (s *Store) CreateProject(ctx context.Context, p *project.Project) error {
	_, err := s.db.Collection(collProjects).InsertOne(ctx, toProjectDoc(p))
	if mongo.IsDuplicateKeyError(err) {
		return humanizer.ErrAlreadyExists
	}
	return err
}

func (s *Store) GetProject(ctx context.Context, projID id.ProjectID) (*project.Project, error) {
	var doc projectDoc
	err := s.db.Collection(collProjects).FindOne(ctx, bson.M{"_id": projID.String()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, humanizer.ErrProjectNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc.toDomain()
}

func (s *Store) ListProjects(ctx context.Context, userID string, opts project.ListOpts) ([]*project.Project, error) {
	filter := bson.M{"user_id": userID}
	if opts.FavoritesOnly {
		filter["favorite"] = true
	}
	if opts.Search != "" {
		pattern := bson.M{"$regex": opts.Search, "$options": "i"}
		filter["$or"] = bson.A{
			bson.M{"title": pattern},
			bson.M{"excerpt": pattern},
		}
	}

	findOpts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if opts.Limit > 0 {
		findOpts = findOpts.SetLimit(int64(opts.Limit)).SetSkip(int64(opts.Offset))
	}

	cursor, err := s.db.Collection(collProjects).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx) //nolint:errcheck // read-only cursor

	result := make([]*project.Project, 0)
	for cursor.Next(ctx) {
		var doc projectDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		p, err := doc.toDomain()
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, cursor.Err()
}

func (s *Store) UpdateProject(ctx context.Context, p *project.Project) error {
	res, err := s.db.Collection(collProjects).ReplaceOne(ctx, bson.M{"_id": p.ID.String()}, toProjectDoc(p))
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return humanizer.ErrProjectNotFound
	}
	return nil
}

func (s *Store) DeleteProject(ctx context.Context, projID id.ProjectID) error {
	res, err := s.db.Collection(collProjects).DeleteOne(ctx, bson.M{"_id": projID.String()})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return humanizer.ErrProjectNotFound
	}
	return nil
}

// Store management

// Migrate creates the secondary indexes the engine queries against.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		collReservations: {
			{Keys: bson.D{{Key: "state", Value: 1}, {Key: "expires_at", Value: 1}}},
			{Keys: bson.D{{Key: "user_id", Value: 1}}},
		},
		collUsageEvents: {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "timestamp", Value: -1}}},
		},
		collProjects: {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
	}

	for coll, models := range indexes {
		if _, err := s.db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("%w: %s: %v", humanizer.ErrMigrationFailed, coll, err)
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *Store) Close() error {
	if !s.ownsClient {
		return nil
	}
	return s.client.Disconnect(context.Background())
}
