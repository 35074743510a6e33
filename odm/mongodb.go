package odm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDriverName is the driver name that selects MongoDB in configuration.
const MongoDriverName = "mongodb"

type mongoDriver struct{}

// NewMongoDriver returns the MongoDB driver.
func NewMongoDriver() Driver {
	return mongoDriver{}
}

func (mongoDriver) Name() string { return MongoDriverName }

func (mongoDriver) Open(ctx context.Context, opts ConnectionOptions) (Session, error) {
	if opts.Database == "" {
		return nil, errors.New("mongodb: database is required")
	}
	client, err := mongo.Connect(ctx, mongoClientOptions(opts))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	return &MongoSession{
		Client:   client,
		Database: client.Database(opts.Database),
	}, nil
}

func mongoClientOptions(opts ConnectionOptions) *options.ClientOptions {
	clientOptions := options.Client()
	if opts.URI != "" {
		clientOptions.ApplyURI(opts.URI)
	}
	if opts.Host != "" {
		port := opts.Port
		if port == 0 {
			port = 27017
		}
		clientOptions.SetHosts([]string{net.JoinHostPort(opts.Host, strconv.Itoa(port))})
	}
	if opts.Username != "" {
		clientOptions.SetAuth(options.Credential{
			Username:   opts.Username,
			Password:   opts.Password,
			AuthSource: opts.AuthSource,
		})
	}
	if opts.AppName != "" {
		clientOptions.SetAppName(opts.AppName)
	}
	if opts.MaxPoolSize > 0 {
		clientOptions.SetMaxPoolSize(opts.MaxPoolSize)
	}
	if opts.ConnectTimeout > 0 {
		clientOptions.SetConnectTimeout(opts.ConnectTimeout)
		clientOptions.SetServerSelectionTimeout(opts.ConnectTimeout)
	}
	return clientOptions
}

// MongoSession is the session opened by the MongoDB driver.
type MongoSession struct {
	Client   *mongo.Client
	Database *mongo.Database
}

func (s *MongoSession) Ping(ctx context.Context) error {
	if err := s.Client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return nil
}

func (s *MongoSession) EnsureIndexes(ctx context.Context, collection string, indexes []Index) error {
	if len(indexes) == 0 {
		return nil
	}
	models := make([]mongo.IndexModel, 0, len(indexes))
	for _, idx := range indexes {
		keys := bson.D{}
		for _, k := range idx.ParsedKeys() {
			keys = append(keys, bson.E{Key: k.Field, Value: k.Order})
		}
		indexOptions := options.Index()
		if idx.Name != "" {
			indexOptions.SetName(idx.Name)
		}
		if idx.Unique {
			indexOptions.SetUnique(true)
		}
		if idx.ExpireAfterSeconds != nil {
			indexOptions.SetExpireAfterSeconds(*idx.ExpireAfterSeconds)
		}
		models = append(models, mongo.IndexModel{Keys: keys, Options: indexOptions})
	}
	if _, err := s.Database.Collection(collection).Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("failed to create indexes on %s: %w", collection, err)
	}
	return nil
}

func (s *MongoSession) Insert(ctx context.Context, collection string, value any) (any, error) {
	res, err := s.Database.Collection(collection).InsertOne(ctx, value)
	if err != nil {
		return nil, fmt.Errorf("failed to insert into %s: %w", collection, err)
	}
	return res.InsertedID, nil
}

// Collection returns the named MongoDB collection.
func (s *MongoSession) Collection(name string) *mongo.Collection {
	return s.Database.Collection(name)
}

func (s *MongoSession) Close(ctx context.Context) error {
	return s.Client.Disconnect(ctx)
}
