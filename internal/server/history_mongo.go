package server

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

type MongoHistoryStore struct {
	collection *mongo.Collection
	now        func() time.Time
}

func NewMongoHistoryStore(client *mongo.Client, database, collection string) *MongoHistoryStore {
	return &MongoHistoryStore{
		collection: client.Database(database).Collection(collection),
		now:        time.Now,
	}
}

// EnsureIndexes creates the user_id lookup index.
func (s *MongoHistoryStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}},
	})
	if err != nil {
		return unavailable("create history index", err)
	}
	return nil
}

func (s *MongoHistoryStore) List(ctx context.Context, userID string) ([]HistoryRecord, error) {
	cursor, err := s.collection.Find(
		ctx,
		bson.M{"user_id": userID},
		options.Find().
			SetProjection(bson.M{"_id": 0}).
			SetSort(bson.D{{Key: "_id", Value: 1}}),
	)
	if err != nil {
		return nil, unavailable("find history", err)
	}
	defer cursor.Close(ctx)

	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, unavailable("decode history", err)
	}

	records := make([]HistoryRecord, 0, len(docs))
	for _, doc := range docs {
		records = append(records, normalizeBSON(doc).(map[string]any))
	}
	return records, nil
}

func (s *MongoHistoryStore) Append(ctx context.Context, userID string, item map[string]any) error {
	record, err := newHistoryRecord(userID, item, s.now())
	if err != nil {
		return err
	}
	if _, err := s.collection.InsertOne(ctx, bson.M(record)); err != nil {
		return unavailable("insert history", err)
	}
	return nil
}

func (s *MongoHistoryStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.collection.Database().Client().Ping(ctx, readpref.Primary())
}

// normalizeBSON turns decoded bson.M / bson.A trees into plain maps and
// slices so the JSON encoder sees the same shapes the client posted.
func normalizeBSON(value any) any {
	switch v := value.(type) {
	case bson.M:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = normalizeBSON(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = normalizeBSON(item)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(v))
		for _, elem := range v {
			out[elem.Key] = normalizeBSON(elem.Value)
		}
		return out
	case bson.A:
		out := make([]any, 0, len(v))
		for _, item := range v {
			out = append(out, normalizeBSON(item))
		}
		return out
	case []any:
		out := make([]any, 0, len(v))
		for _, item := range v {
			out = append(out, normalizeBSON(item))
		}
		return out
	default:
		return v
	}
}
