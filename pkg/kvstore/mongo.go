package kvstore

import (
	"context"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

type mongoDocument struct {
	Key   string `bson:"_id"`
	Value string `bson:"value"`
}

type mongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// NewMongoStore stores every key as one document of the given collection.
func NewMongoStore(ctx context.Context, uri, database, collection string) (Store, error) {
	if uri == "" || database == "" || collection == "" {
		return nil, errors.New("Mongo URI, database and collection should not be empty")
	}

	client, err := mongo.Connect(options.Client().ApplyURI(uri))

	if err != nil {
		return nil, errors.Wrap(err, "Error while connecting to MongoDB")
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		client.Disconnect(context.Background())
		return nil, errors.Wrap(err, "Error while pinging MongoDB")
	}

	return &mongoStore{
		client:     client,
		collection: client.Database(database).Collection(collection),
	}, nil
}

func (s *mongoStore) Get(ctx context.Context, key string) (string, bool, error) {
	var doc mongoDocument

	err := s.collection.FindOne(ctx, bson.D{{Key: "_id", Value: key}}).Decode(&doc)

	if err == mongo.ErrNoDocuments {
		return "", false, nil
	}

	if err != nil {
		return "", false, errors.Wrapf(err, "Error while reading key %s", key)
	}

	return doc.Value, true, nil
}

func (s *mongoStore) Set(ctx context.Context, key, value string) error {
	_, err := s.collection.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: key}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "value", Value: value}}}},
		options.UpdateOne().SetUpsert(true),
	)

	return errors.Wrapf(err, "Error while writing key %s", key)
}

func (s *mongoStore) Remove(ctx context.Context, key string) error {
	_, err := s.collection.DeleteOne(ctx, bson.D{{Key: "_id", Value: key}})

	return errors.Wrapf(err, "Error while removing key %s", key)
}

func (s *mongoStore) Keys(ctx context.Context) ([]string, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetProjection(bson.D{{Key: "_id", Value: 1}})

	cursor, err := s.collection.Find(ctx, bson.D{}, opts)

	if err != nil {
		return nil, errors.Wrap(err, "Error while listing keys")
	}

	var docs []mongoDocument

	if err := cursor.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "Error while decoding keys")
	}

	keys := make([]string, 0, len(docs))

	for _, doc := range docs {
		keys = append(keys, doc.Key)
	}

	return keys, nil
}

func (s *mongoStore) Close() error {
	return s.client.Disconnect(context.Background())
}
