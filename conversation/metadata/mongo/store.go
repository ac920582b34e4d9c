// Package mongo implements metadata.Store on MongoDB. Grounded on the
// goadesign-goa-ai pack repo's features/session/mongo/clients/mongo
// client (collection wrapper, $set/$setOnInsert upsert, unique index on
// the natural key), adapted from a two-collection session+run model to
// this package's single conversation-record collection.
package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/agentrt/agentrt/conversation/metadata"
	"github.com/agentrt/agentrt/errs"
	"github.com/agentrt/agentrt/state"
)

const defaultCollection = "agent_conversations"
const defaultOpTimeout = 5 * time.Second

// Store implements metadata.Store backed by one MongoDB collection,
// keyed by conversation_id.
type Store struct {
	coll    *mongo.Collection
	timeout time.Duration
}

// Options configures New.
type Options struct {
	Client     *mongo.Client
	Database   string
	Collection string // defaults to "agent_conversations"
	Timeout    time.Duration
}

// New returns a Store, creating the natural-key index if absent.
func New(ctx context.Context, opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errs.NewConfigurationError("mongo client is required", nil)
	}
	if opts.Database == "" {
		return nil, errs.NewConfigurationError("mongo database name is required", nil)
	}
	collName := opts.Collection
	if collName == "" {
		collName = defaultCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	coll := opts.Client.Database(opts.Database).Collection(collName)

	idxCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	idx := mongo.IndexModel{
		Keys:    bson.D{{Key: "conversation_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := coll.Indexes().CreateOne(idxCtx, idx); err != nil {
		return nil, errs.NewStorageError("create conversation metadata index", err)
	}
	return &Store{coll: coll, timeout: timeout}, nil
}

type conversationDocument struct {
	ConversationID string           `bson:"conversation_id"`
	UserID         string           `bson:"user_id"`
	AgentState     state.AgentState `bson:"agent_state"`
	CreatedAt      time.Time        `bson:"created_at"`
	UpdatedAt      time.Time        `bson:"updated_at"`
}

func toDocument(rec metadata.Record) conversationDocument {
	return conversationDocument{
		ConversationID: rec.ConversationID,
		UserID:         rec.UserID,
		AgentState:     rec.AgentState,
		CreatedAt:      rec.CreatedAt.UTC(),
		UpdatedAt:      rec.UpdatedAt.UTC(),
	}
}

func (d conversationDocument) toRecord() metadata.Record {
	return metadata.Record{
		ConversationID: d.ConversationID,
		UserID:         d.UserID,
		AgentState:     d.AgentState,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

// Upsert implements metadata.Store: it replaces the whole record,
// preserving CreatedAt on repeat calls (spec.md §4.6 "persist session
// metadata" — created_at must survive every later state transition).
func (s *Store) Upsert(ctx context.Context, rec metadata.Record) error {
	if rec.ConversationID == "" {
		return errs.NewConfigurationError("conversation id is required", nil)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	doc := toDocument(rec)
	filter := bson.M{"conversation_id": rec.ConversationID}
	update := bson.M{
		"$set": bson.M{
			"user_id":     doc.UserID,
			"agent_state": doc.AgentState,
			"updated_at":  doc.UpdatedAt,
		},
		"$setOnInsert": bson.M{
			"conversation_id": doc.ConversationID,
			"created_at":      doc.CreatedAt,
		},
	}
	_, err := s.coll.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	if err != nil {
		return errs.NewStorageError("upsert conversation metadata", err)
	}
	return nil
}

// Load implements metadata.Store.
func (s *Store) Load(ctx context.Context, conversationID string) (metadata.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	var doc conversationDocument
	err := s.coll.FindOne(ctx, bson.M{"conversation_id": conversationID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return metadata.Record{}, errs.NewNotFound("conversation " + conversationID)
	}
	if err != nil {
		return metadata.Record{}, errs.NewStorageError("load conversation metadata", err)
	}
	return doc.toRecord(), nil
}

// ListByUser implements metadata.Store.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]metadata.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	cur, err := s.coll.Find(ctx, bson.M{"user_id": userID}, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, errs.NewStorageError("list conversation metadata", err)
	}
	defer func() { _ = cur.Close(ctx) }()

	var out []metadata.Record
	for cur.Next(ctx) {
		var doc conversationDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, errs.NewStorageError("decode conversation metadata", err)
		}
		out = append(out, doc.toRecord())
	}
	if err := cur.Err(); err != nil {
		return nil, errs.NewStorageError("iterate conversation metadata", err)
	}
	return out, nil
}
