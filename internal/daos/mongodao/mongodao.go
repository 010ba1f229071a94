// Package mongodao implements leafid.Dao against MongoDB. The file
// content of original_source's src/dao/mongodb.rs was truncated in the
// retrieval pack, so this adapter follows the standard idiomatic
// MongoDB equivalent of the other adapters' atomic
// "UPDATE ... SET max_id = max_id + step" pattern: FindOneAndUpdate
// with $inc, which is MongoDB's native atomic-increment-and-fetch
// primitive.
package mongodao

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Lzww0608/leafid"
)

// leafAllocDoc is the leaf_alloc collection's document shape.
type leafAllocDoc struct {
	Tag   int32 `bson:"tag"`
	MaxID int64 `bson:"max_id"`
	Step  int32 `bson:"step"`
}

// Dao is a MongoDB-backed leafid.Dao.
type Dao struct {
	coll *mongo.Collection
}

// New wraps a leaf_alloc collection, e.g.
// client.Database("leafid").Collection("leaf_alloc").
func New(coll *mongo.Collection) *Dao {
	return &Dao{coll: coll}
}

// Leaves returns every persisted Leaf row.
func (d *Dao) Leaves(ctx context.Context) ([]leafid.Leaf, error) {
	cur, err := d.coll.Find(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("mongodao: leaves: %w", err)
	}
	defer cur.Close(ctx)

	var out []leafid.Leaf
	for cur.Next(ctx) {
		var doc leafAllocDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("%w: %v", leafid.ErrSerialization, err)
		}
		out = append(out, leafid.Leaf{Tag: doc.Tag, MaxID: doc.MaxID, Step: doc.Step})
	}
	return out, cur.Err()
}

// Leaf returns the Leaf for tag, or leafid.ErrTagNotExist.
func (d *Dao) Leaf(ctx context.Context, tag int32) (leafid.Leaf, error) {
	var doc leafAllocDoc
	err := d.coll.FindOne(ctx, bson.M{"tag": tag}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return leafid.Leaf{}, leafid.ErrTagNotExist
		}
		return leafid.Leaf{}, fmt.Errorf("mongodao: leaf(%d): %w", tag, err)
	}
	return leafid.Leaf{Tag: doc.Tag, MaxID: doc.MaxID, Step: doc.Step}, nil
}

// Insert persists a new Leaf.
func (d *Dao) Insert(ctx context.Context, leaf leafid.Leaf) error {
	doc := leafAllocDoc{Tag: leaf.Tag, MaxID: leaf.MaxID, Step: leaf.Step}
	if _, err := d.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("mongodao: insert(%d): %w", leaf.Tag, err)
	}
	return nil
}

// Tags returns every tag currently persisted.
func (d *Dao) Tags(ctx context.Context) ([]int32, error) {
	cur, err := d.coll.Find(ctx, bson.D{}, options.Find().SetProjection(bson.M{"tag": 1}))
	if err != nil {
		return nil, fmt.Errorf("mongodao: tags: %w", err)
	}
	defer cur.Close(ctx)

	var tags []int32
	for cur.Next(ctx) {
		var doc struct {
			Tag int32 `bson:"tag"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("%w: %v", leafid.ErrSerialization, err)
		}
		tags = append(tags, doc.Tag)
	}
	return tags, cur.Err()
}

// UpdateMax atomically advances max_id by the row's own step using an
// aggregation pipeline update ($set with $add of max_id and step), so
// the increment amount is read from the stored step in the same update.
func (d *Dao) UpdateMax(ctx context.Context, tag int32) (leafid.Leaf, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "max_id", Value: bson.D{{Key: "$add", Value: bson.A{"$max_id", "$step"}}}},
		}}},
	}
	return d.findOneAndUpdatePipeline(ctx, tag, pipeline)
}

// UpdateMaxByStep atomically advances max_id by the caller-supplied
// step via $inc, without touching the row's declared step field.
func (d *Dao) UpdateMaxByStep(ctx context.Context, tag int32, step int32) (leafid.Leaf, error) {
	after := options.After
	opts := options.FindOneAndUpdate().SetReturnDocument(after)
	var doc leafAllocDoc
	err := d.coll.FindOneAndUpdate(ctx, bson.M{"tag": tag},
		bson.M{"$inc": bson.M{"max_id": int64(step)}}, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return leafid.Leaf{}, leafid.ErrTagNotExist
		}
		return leafid.Leaf{}, fmt.Errorf("mongodao: update(%d): %w", tag, err)
	}
	return leafid.Leaf{Tag: doc.Tag, MaxID: doc.MaxID, Step: doc.Step}, nil
}

func (d *Dao) findOneAndUpdatePipeline(ctx context.Context, tag int32, pipeline mongo.Pipeline) (leafid.Leaf, error) {
	after := options.After
	opts := options.FindOneAndUpdate().SetReturnDocument(after)
	var doc leafAllocDoc
	err := d.coll.FindOneAndUpdate(ctx, bson.M{"tag": tag}, pipeline, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return leafid.Leaf{}, leafid.ErrTagNotExist
		}
		return leafid.Leaf{}, fmt.Errorf("mongodao: update(%d): %w", tag, err)
	}
	return leafid.Leaf{Tag: doc.Tag, MaxID: doc.MaxID, Step: doc.Step}, nil
}
