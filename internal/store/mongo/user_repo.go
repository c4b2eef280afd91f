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

type userDoc struct {
	ID             string    `bson:"_id"`
	Email          string    `bson:"email"`
	FullName       string    `bson:"full_name"`
	Bio            string    `bson:"bio"`
	ProfilePic     string    `bson:"profile_pic"`
	HashedPassword string    `bson:"hashed_password,omitempty"`
	CreatedAt      time.Time `bson:"created_at"`
	UpdatedAt      time.Time `bson:"updated_at"`
}

func (d *userDoc) toDomain() *domain.User {
	return &domain.User{
		ID:             d.ID,
		Email:          d.Email,
		FullName:       d.FullName,
		Bio:            d.Bio,
		ProfilePic:     d.ProfilePic,
		HashedPassword: d.HashedPassword,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

type UserRepo struct {
	coll    *mongo.Collection
	deleted *mongo.Collection
}

func NewUserRepo(db *mongo.Database) *UserRepo {
	return &UserRepo{
		coll:    db.Collection(usersCollection),
		deleted: db.Collection(deletedCollection),
	}
}

var _ domain.UserRepository = (*UserRepo)(nil)

func (r *UserRepo) Create(ctx context.Context, u *domain.User) error {
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	_, err := r.coll.InsertOne(ctx, userDoc{
		ID:             u.ID,
		Email:          u.Email,
		FullName:       u.FullName,
		Bio:            u.Bio,
		ProfilePic:     u.ProfilePic,
		HashedPassword: u.HashedPassword,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	return mapError(err, "insert user")
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.findOne(ctx, bson.D{{Key: "_id", Value: id}})
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, bson.D{{Key: "email", Value: email}})
}

func (r *UserRepo) ListExcept(ctx context.Context, id string) ([]*domain.User, error) {
	opts := options.Find().SetSort(bson.D{{Key: "full_name", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := r.coll.Find(ctx, bson.D{{Key: "_id", Value: bson.D{{Key: "$ne", Value: id}}}}, opts)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	var docs []userDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	users := make([]*domain.User, 0, len(docs))
	for i := range docs {
		users = append(users, docs[i].toDomain())
	}
	return users, nil
}

func (r *UserRepo) UpdateProfile(ctx context.Context, id string, p domain.ProfileUpdate) (*domain.User, error) {
	set := bson.D{{Key: "updated_at", Value: time.Now().UTC()}}
	if p.FullName != nil {
		set = append(set, bson.E{Key: "full_name", Value: *p.FullName})
	}
	if p.Bio != nil {
		set = append(set, bson.E{Key: "bio", Value: *p.Bio})
	}
	if p.ProfilePic != nil {
		set = append(set, bson.E{Key: "profile_pic", Value: *p.ProfilePic})
	}

	var doc userDoc
	err := r.coll.FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: id}},
		bson.D{{Key: "$set", Value: set}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("update profile %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return doc.toDomain(), nil
}

func (r *UserRepo) Upsert(ctx context.Context, u *domain.User) error {
	now := time.Now().UTC()
	update := bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "email", Value: u.Email},
			{Key: "full_name", Value: u.FullName},
			{Key: "profile_pic", Value: u.ProfilePic},
			{Key: "updated_at", Value: now},
		}},
		{Key: "$setOnInsert", Value: bson.D{
			{Key: "bio", Value: u.Bio},
			{Key: "created_at", Value: now},
		}},
	}
	_, err := r.coll.UpdateOne(ctx, bson.D{{Key: "_id", Value: u.ID}}, update, options.UpdateOne().SetUpsert(true))
	return mapError(err, "upsert user")
}

// Delete records a tombstone for id, then removes the profile. The
// tombstone is written first so a crash in between still blocks re-creation.
func (r *UserRepo) Delete(ctx context.Context, id string) error {
	_, err := r.deleted.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: id}},
		bson.D{{Key: "$setOnInsert", Value: bson.D{{Key: "deleted_at", Value: time.Now().UTC()}}}},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("tombstone user: %w", err)
	}
	res, err := r.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("delete user %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (r *UserRepo) IsDeleted(ctx context.Context, id string) (bool, error) {
	n, err := r.deleted.CountDocuments(ctx, bson.D{{Key: "_id", Value: id}}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("check tombstone: %w", err)
	}
	return n > 0, nil
}

func (r *UserRepo) findOne(ctx context.Context, filter bson.D) (*domain.User, error) {
	var doc userDoc
	err := r.coll.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return doc.toDomain(), nil
}

func mapError(err error, what string) error {
	if err == nil {
		return nil
	}
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%s: %w", what, domain.ErrConflict)
	}
	return fmt.Errorf("%s: %w", what, err)
}
