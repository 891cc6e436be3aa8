package docstore

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// MongoStore keeps every document in one collection:
// {_id: path, parent: collection path, docId, data: {...}}
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	logger     *zap.Logger
}

type mongoDocument struct {
	Path   string `bson:"_id"`
	Parent string `bson:"parent"`
	DocID  string `bson:"docId"`
	Data   bson.M `bson:"data"`
}

// ConnectMongo connects and ensures the parent index
func ConnectMongo(ctx context.Context, uri, database, collection string, logger *zap.Logger) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect mongo: %w", err)
	}

	coll := client.Database(database).Collection(collection)
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "parent", Value: 1}},
	})
	if err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to create parent index: %w", err)
	}

	return &MongoStore{client: client, collection: coll, logger: logger}, nil
}

func (s *MongoStore) Set(ctx context.Context, path string, doc Document) error {
	parent, id, err := splitPath(path)
	if err != nil {
		return err
	}
	key := parent + "/" + id
	replacement := mongoDocument{Path: key, Parent: parent, DocID: id, Data: bson.M(doc)}

	_, err = s.collection.ReplaceOne(ctx, bson.M{"_id": key}, replacement, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to write document %s: %w", path, err)
	}
	return nil
}

func (s *MongoStore) Merge(ctx context.Context, path string, doc Document) error {
	parent, id, err := splitPath(path)
	if err != nil {
		return err
	}
	key := parent + "/" + id

	set := bson.M{}
	for k, v := range doc {
		set["data."+k] = v
	}
	update := bson.M{
		"$setOnInsert": bson.M{"parent": parent, "docId": id},
	}
	if len(set) > 0 {
		update["$set"] = set
	} else {
		update["$setOnInsert"].(bson.M)["data"] = bson.M{}
	}

	_, err = s.collection.UpdateOne(ctx, bson.M{"_id": key}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to merge document %s: %w", path, err)
	}
	return nil
}

func (s *MongoStore) Get(ctx context.Context, path string) (*Snapshot, error) {
	parent, id, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	key := parent + "/" + id

	var d mongoDocument
	err = s.collection.FindOne(ctx, bson.M{"_id": key}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document %s: %w", path, err)
	}
	return &Snapshot{ID: d.DocID, Path: d.Path, Data: plainDocument(d.Data)}, nil
}

func (s *MongoStore) List(ctx context.Context, collection string, q Query) ([]Snapshot, error) {
	collection, err := validCollection(collection)
	if err != nil {
		return nil, err
	}
	filter, err := mongoFilter(collection, q.Filters)
	if err != nil {
		return nil, err
	}

	opts := options.Find()
	if q.OrderBy != "" {
		dir := 1
		if q.Desc {
			dir = -1
		}
		opts.SetSort(bson.D{{Key: "data." + q.OrderBy, Value: dir}})
	} else {
		opts.SetSort(bson.D{{Key: "docId", Value: 1}})
	}
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cur, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", collection, err)
	}
	defer cur.Close(ctx)

	var snaps []Snapshot
	for cur.Next(ctx) {
		var d mongoDocument
		if err := cur.Decode(&d); err != nil {
			s.logger.Warn("Skipping undecodable document",
				zap.String("collection", collection),
				zap.Error(err),
			)
			continue
		}
		snaps = append(snaps, Snapshot{ID: d.DocID, Path: d.Path, Data: plainDocument(d.Data)})
	}
	return snaps, cur.Err()
}

func mongoFilter(collection string, filters []Filter) (bson.M, error) {
	filter := bson.M{"parent": collection}
	for _, f := range filters {
		field := "data." + f.Field
		var cond interface{}
		switch f.Op {
		case OpEq:
			cond = f.Value
		case OpGte:
			cond = bson.M{"$gte": f.Value}
		case OpLte:
			cond = bson.M{"$lte": f.Value}
		case OpGt:
			cond = bson.M{"$gt": f.Value}
		case OpLt:
			cond = bson.M{"$lt": f.Value}
		default:
			return nil, fmt.Errorf("unsupported operator: %q", f.Op)
		}
		if existing, ok := filter[field].(bson.M); ok {
			if c, ok := cond.(bson.M); ok {
				for k, v := range c {
					existing[k] = v
				}
				continue
			}
		}
		filter[field] = cond
	}
	return filter, nil
}

func (s *MongoStore) Delete(ctx context.Context, path string) error {
	parent, id, err := splitPath(path)
	if err != nil {
		return err
	}
	if _, err := s.collection.DeleteOne(ctx, bson.M{"_id": parent + "/" + id}); err != nil {
		return fmt.Errorf("failed to delete document %s: %w", path, err)
	}
	return nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *MongoStore) Close() error {
	return s.client.Disconnect(context.Background())
}

// plainDocument converts decoded BSON containers to the plain map and slice
// types the rest of the code expects
func plainDocument(m bson.M) Document {
	out := make(Document, len(m))
	for k, v := range m {
		out[k] = plainValue(v)
	}
	return out
}

func plainValue(v interface{}) interface{} {
	switch val := v.(type) {
	case bson.M:
		return plainDocument(val)
	case map[string]interface{}:
		return plainDocument(val)
	case bson.D:
		return plainDocument(val.Map())
	case bson.A:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = plainValue(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = plainValue(item)
		}
		return out
	case primitive.DateTime:
		return int64(val)
	}
	return v
}
