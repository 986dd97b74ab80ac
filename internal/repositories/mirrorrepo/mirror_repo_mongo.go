package mirrorrepo

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/tuncanbit/pricefeed/internal/domain"
)

type priceDocument struct {
	Symbol           string    `bson:"symbol"`
	ProviderID       string    `bson:"provider_id"`
	Name             string    `bson:"name"`
	Price            float64   `bson:"price"`
	ChangePercent24h float64   `bson:"change_percent_24h"`
	Volume           float64   `bson:"volume"`
	MarketCap        float64   `bson:"market_cap"`
	Timestamp        time.Time `bson:"timestamp"`
}

func toDocument(rec domain.PriceRecord) priceDocument {
	return priceDocument{
		Symbol:           rec.Symbol,
		ProviderID:       rec.ProviderID,
		Name:             rec.DisplayName,
		Price:            rec.Price,
		ChangePercent24h: rec.ChangePercent24h,
		Volume:           rec.Volume,
		MarketCap:        rec.MarketCap,
		Timestamp:        rec.FetchedAt.UTC(),
	}
}

func (d priceDocument) record() domain.PriceRecord {
	return domain.PriceRecord{
		Symbol:           d.Symbol,
		ProviderID:       d.ProviderID,
		DisplayName:      d.Name,
		Price:            d.Price,
		ChangePercent24h: d.ChangePercent24h,
		Volume:           d.Volume,
		MarketCap:        d.MarketCap,
		FetchedAt:        d.Timestamp,
	}
}

type MongoMirror struct {
	db        *mongo.Database
	current   *mongo.Collection
	history   *mongo.Collection
	retention time.Duration
	logger    zerolog.Logger
}

func NewMongoMirror(db *mongo.Database, historyRetention time.Duration, logger zerolog.Logger) *MongoMirror {
	return &MongoMirror{
		db:        db,
		current:   db.Collection(currentCollection),
		history:   db.Collection(historicalCollection),
		retention: historyRetention,
		logger:    logger.With().Str("component", "mongo_mirror").Logger(),
	}
}

func (m *MongoMirror) Name() string { return "mongo" }

// EnsureIndexes creates the unique symbol index and the (symbol, timestamp)
// history index, expiring history after the retention period when one is set.
func (m *MongoMirror) EnsureIndexes(ctx context.Context) error {
	_, err := m.current.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "symbol", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("creating %s index: %w", currentCollection, err)
	}

	models := []mongo.IndexModel{{
		Keys: bson.D{{Key: "symbol", Value: 1}, {Key: "timestamp", Value: -1}},
	}}
	if m.retention > 0 {
		models = append(models, mongo.IndexModel{
			Keys:    bson.D{{Key: "timestamp", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(m.retention.Seconds())),
		})
	}
	if _, err := m.history.Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("creating %s indexes: %w", historicalCollection, err)
	}
	return nil
}

func (m *MongoMirror) SaveCurrent(ctx context.Context, records []domain.PriceRecord) error {
	if len(records) == 0 {
		return nil
	}

	writes := make([]mongo.WriteModel, 0, len(records))
	points := make([]interface{}, 0, len(records))
	for _, rec := range records {
		doc := toDocument(rec)
		writes = append(writes, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"symbol": doc.Symbol}).
			SetUpdate(bson.M{"$set": doc}).
			SetUpsert(true))
		points = append(points, doc)
	}

	if _, err := m.current.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false)); err != nil {
		return fmt.Errorf("upserting %s: %w", currentCollection, err)
	}
	if _, err := m.history.InsertMany(ctx, points, options.InsertMany().SetOrdered(false)); err != nil {
		return fmt.Errorf("appending %s: %w", historicalCollection, err)
	}
	return nil
}

func (m *MongoMirror) RecentCurrent(ctx context.Context, since time.Time, symbols []string) ([]domain.PriceRecord, error) {
	filter := bson.M{"timestamp": bson.M{"$gte": since.UTC()}}
	if len(symbols) > 0 {
		filter["symbol"] = bson.M{"$in": upper(symbols)}
	}

	cursor, err := m.current.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", currentCollection, err)
	}

	var docs []priceDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", currentCollection, err)
	}

	records := make([]domain.PriceRecord, 0, len(docs))
	for _, d := range docs {
		records = append(records, d.record())
	}
	return records, nil
}

func (m *MongoMirror) FindCurrent(ctx context.Context, symbol string, since time.Time) (*domain.PriceRecord, error) {
	filter := bson.M{
		"symbol":    strings.ToUpper(symbol),
		"timestamp": bson.M{"$gte": since.UTC()},
	}

	var doc priceDocument
	if err := m.current.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding %s in %s: %w", symbol, currentCollection, err)
	}

	rec := doc.record()
	return &rec, nil
}

func (m *MongoMirror) History(ctx context.Context, symbol string, since time.Time, limit int) ([]domain.PricePoint, error) {
	filter := bson.M{
		"symbol":    strings.ToUpper(symbol),
		"timestamp": bson.M{"$gte": since.UTC()},
	}
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := m.history.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", historicalCollection, err)
	}

	var docs []priceDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", historicalCollection, err)
	}

	points := make([]domain.PricePoint, 0, len(docs))
	for _, d := range docs {
		points = append(points, d.record().Point())
	}
	slices.Reverse(points)
	return points, nil
}

func (m *MongoMirror) Ping(ctx context.Context) error {
	return m.db.Client().Ping(ctx, readpref.Primary())
}

func upper(symbols []string) []string {
	out := make([]string, len(symbols))
	for i, s := range symbols {
		out[i] = strings.ToUpper(s)
	}
	return out
}
