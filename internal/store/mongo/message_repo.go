package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/aaronBIOO/QuickChat/internal/domain"
)

type messageDoc struct {
	ID         string    `bson:"_id"`
	SenderID   string    `bson:"sender_id"`
	ReceiverID string    `bson:"receiver_id"`
	Text       string    `bson:"text,omitempty"`
	Image      string    `bson:"image,omitempty"`
	Seen       bool      `bson:"seen"`
	CreatedAt  time.Time `bson:"created_at"`
}

func (d *messageDoc) toDomain() *domain.Message {
	return &domain.Message{
		ID:         d.ID,
		SenderID:   d.SenderID,
		ReceiverID: d.ReceiverID,
		Text:       d.Text,
		Image:      d.Image,
		Seen:       d.Seen,
		CreatedAt:  d.CreatedAt,
	}
}

type MessageRepo struct {
	coll *mongo.Collection
}

func NewMessageRepo(db *mongo.Database) *MessageRepo {
	return &MessageRepo{coll: db.Collection(messagesCollection)}
}

var _ domain.MessageRepository = (*MessageRepo)(nil)

func (r *MessageRepo) Create(ctx context.Context, m *domain.Message) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	_, err := r.coll.InsertOne(ctx, messageDoc{
		ID:         m.ID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Text:       m.Text,
		Image:      m.Image,
		Seen:       m.Seen,
		CreatedAt:  m.CreatedAt,
	})
	return mapError(err, "insert message")
}

func (r *MessageRepo) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	var doc messageDoc
	err := r.coll.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find message: %w", err)
	}
	return doc.toDomain(), nil
}

func (r *MessageRepo) ListBetween(ctx context.Context, a, b string) ([]*domain.Message, error) {
	filter := bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "sender_id", Value: a}, {Key: "receiver_id", Value: b}},
		bson.D{{Key: "sender_id", Value: b}, {Key: "receiver_id", Value: a}},
	}}}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	var docs []messageDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	res := make([]*domain.Message, 0, len(docs))
	for i := range docs {
		res = append(res, docs[i].toDomain())
	}
	return res, nil
}

func (r *MessageRepo) MarkSeen(ctx context.Context, id string) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: id}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "seen", Value: true}}}},
	)
	if err != nil {
		return fmt.Errorf("mark seen: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("mark seen %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (r *MessageRepo) MarkSeenFrom(ctx context.Context, senderID, receiverID string) (int64, error) {
	res, err := r.coll.UpdateMany(ctx,
		bson.D{{Key: "sender_id", Value: senderID}, {Key: "receiver_id", Value: receiverID}, {Key: "seen", Value: false}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "seen", Value: true}}}},
	)
	if err != nil {
		return 0, fmt.Errorf("mark conversation seen: %w", err)
	}
	return res.ModifiedCount, nil
}

func (r *MessageRepo) UnseenCounts(ctx context.Context, receiverID string) (map[string]int, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "receiver_id", Value: receiverID}, {Key: "seen", Value: false}}}},
		{{Key: "$group", Value: bson.D{{Key: "_id", Value: "$sender_id"}, {Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}}}}},
	}
	cur, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("unseen counts: %w", err)
	}
	var rows []struct {
		Sender string `bson:"_id"`
		Count  int    `bson:"count"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("decode unseen counts: %w", err)
	}
	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.Sender] = row.Count
	}
	return counts, nil
}
