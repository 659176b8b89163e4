package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opentracing/opentracing-go"
	tracelog "github.com/opentracing/opentracing-go/log"
	"github.com/rtcheap/session-broker/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// SessionCollection name of the collection holding session documents.
const SessionCollection = "livesessions"

// sessionDocument field names follow the documents written by the earlier mongoose
// deployment. Those carry an ObjectID _id and lack agoraChannelName and isActive.
type sessionDocument struct {
	ID               interface{} `bson:"_id"`
	Type             string      `bson:"type"`
	UniqueID         string      `bson:"unique_id"`
	ShareURL         string      `bson:"userurl"`
	AgoraChannelName string      `bson:"agoraChannelName,omitempty"`
	Active           *bool       `bson:"isActive,omitempty"`
	CreatedAt        time.Time   `bson:"createdAt"`
	UpdatedAt        time.Time   `bson:"updatedAt"`
}

func newSessionDocument(s models.Session) sessionDocument {
	createdAt, updatedAt := timestamps(s)
	active := s.Active
	return sessionDocument{
		ID:               s.ID,
		Type:             s.Type,
		UniqueID:         s.UniqueID,
		ShareURL:         s.ShareURL,
		AgoraChannelName: s.AgoraChannelName,
		Active:           &active,
		CreatedAt:        createdAt,
		UpdatedAt:        updatedAt,
	}
}

func (d sessionDocument) toSession() models.Session {
	return models.Session{
		ID:               documentID(d.ID),
		Type:             d.Type,
		UniqueID:         d.UniqueID,
		ShareURL:         d.ShareURL,
		AgoraChannelName: d.AgoraChannelName,
		Active:           d.Active == nil || *d.Active,
		CreatedAt:        d.CreatedAt.UTC(),
		UpdatedAt:        d.UpdatedAt.UTC(),
	}
}

func documentID(v interface{}) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return id
	case primitive.ObjectID:
		return id.Hex()
	default:
		return fmt.Sprint(id)
	}
}

// NewMongoSessionRepository creates a SessionRepository backed by a mongodb collection.
// The unique_id index must exist, see EnsureSessionIndexes.
func NewMongoSessionRepository(db *mongo.Database) SessionRepository {
	return &mongoSessionRepo{
		coll: db.Collection(SessionCollection),
	}
}

// EnsureSessionIndexes creates the unique index on unique_id that guards against colliding sessions.
func EnsureSessionIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(SessionCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "unique_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create unique_id index. %w", err)
	}

	return nil
}

type mongoSessionRepo struct {
	coll *mongo.Collection
}

func (r *mongoSessionRepo) Save(ctx context.Context, s models.Session) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "session_mongo_repo_save")
	defer span.Finish()

	if !models.ValidType(s.Type) {
		err := fmt.Errorf("invalid session type %q", s.Type)
		span.LogFields(tracelog.Error(err))
		return err
	}

	_, err := r.coll.InsertOne(ctx, newSessionDocument(s))
	if err != nil {
		err = fmt.Errorf("failed to insert session document. %w", err)
		span.LogFields(tracelog.Error(err))
		return err
	}

	return nil
}

func (r *mongoSessionRepo) FindByUniqueID(ctx context.Context, uniqueID string) (models.Session, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "session_mongo_repo_find_by_unique_id")
	defer span.Finish()

	var doc sessionDocument
	err := r.coll.FindOne(ctx, bson.M{"unique_id": uniqueID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Session{}, ErrNotFound
	}
	if err != nil {
		err = fmt.Errorf("failed to query session collection. %w", err)
		span.LogFields(tracelog.Error(err))
		return models.Session{}, err
	}

	return doc.toSession(), nil
}

func (r *mongoSessionRepo) FindAll(ctx context.Context) ([]models.Session, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "session_mongo_repo_find_all")
	defer span.Finish()

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := r.coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		err = fmt.Errorf("failed to query session collection. %w", err)
		span.LogFields(tracelog.Error(err))
		return nil, err
	}
	defer cursor.Close(ctx)

	docs := make([]sessionDocument, 0)
	err = cursor.All(ctx, &docs)
	if err != nil {
		err = fmt.Errorf("failed to decode session documents. %w", err)
		span.LogFields(tracelog.Error(err))
		return nil, err
	}

	sessions := make([]models.Session, 0, len(docs))
	for _, doc := range docs {
		sessions = append(sessions, doc.toSession())
	}

	return sessions, nil
}
