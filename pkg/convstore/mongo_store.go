package convstore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"docassist/pkg/domain"
)

const (
	collectionAssistants = "assistants"
	collectionMessages   = "messages"
)

// MongoStore implements ConversationStore on MongoDB.
type MongoStore struct {
	assistants *mongo.Collection
	messages   *mongo.Collection
}

// NewMongoStore connects, pings, and ensures the message read index.
func NewMongoStore(uri, database string) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(50).
		SetServerSelectionTimeout(5 * time.Second).
		SetConnectTimeout(10 * time.Second)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	db := client.Database(database)
	store := &MongoStore{
		assistants: db.Collection(collectionAssistants),
		messages:   db.Collection(collectionMessages),
	}
	if _, err := store.messages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "assistant_id", Value: 1}, {Key: "created_at", Value: -1}},
	}); err != nil {
		return nil, fmt.Errorf("ensure message index: %w", err)
	}
	return store, nil
}

// PutAssistant upserts the assistant mirror keyed by provider assistant id.
func (s *MongoStore) PutAssistant(ctx context.Context, assistant domain.Assistant) error {
	doc := assistantDoc{
		AssistantID: assistant.AssistantID,
		DocumentID:  assistant.DocumentID,
		ThreadID:    assistant.ThreadID,
		CreatedAt:   assistant.CreatedAt.UTC(),
	}
	_, err := s.assistants.ReplaceOne(ctx,
		bson.M{"_id": assistant.AssistantID},
		doc,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("put assistant mirror: %w", err)
	}
	return nil
}

// DeleteAssistant removes the messages first, then the mirror.
func (s *MongoStore) DeleteAssistant(ctx context.Context, assistantID string) error {
	if _, err := s.messages.DeleteMany(ctx, bson.M{"assistant_id": assistantID}); err != nil {
		return fmt.Errorf("delete assistant messages: %w", err)
	}
	if _, err := s.assistants.DeleteOne(ctx, bson.M{"_id": assistantID}); err != nil {
		return fmt.Errorf("delete assistant mirror: %w", err)
	}
	return nil
}

// AppendMessage appends one conversation turn under the assistant.
func (s *MongoStore) AppendMessage(ctx context.Context, assistantID string, msg domain.Message) error {
	count, err := s.assistants.CountDocuments(ctx, bson.M{"_id": assistantID})
	if err != nil {
		return fmt.Errorf("check assistant mirror: %w", err)
	}
	if count == 0 {
		return ErrMirrorMissing
	}
	doc := messageDoc{
		ID:          msg.ID,
		AssistantID: assistantID,
		ThreadID:    msg.ThreadID,
		Role:        string(msg.Role),
		Text:        msg.Text,
		CreatedAt:   msg.CreatedAt.UTC(),
	}
	if _, err := s.messages.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// ListMessages returns the assistant's messages, newest first.
func (s *MongoStore) ListMessages(ctx context.Context, assistantID string) ([]domain.Message, error) {
	cursor, err := s.messages.Find(ctx,
		bson.M{"assistant_id": assistantID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []messageDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	messages := make([]domain.Message, 0, len(docs))
	for _, doc := range docs {
		messages = append(messages, domain.Message{
			ID:        doc.ID,
			ThreadID:  doc.ThreadID,
			Role:      domain.MessageRole(doc.Role),
			Text:      doc.Text,
			CreatedAt: doc.CreatedAt,
		})
	}
	return messages, nil
}
