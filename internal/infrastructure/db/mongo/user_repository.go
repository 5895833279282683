package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/echos/users-api/internal/core/domain"
	"github.com/echos/users-api/internal/core/ports"
)

const collectionUsers = "users"

type UserRepository struct {
	col *mongo.Collection
	now func() time.Time
}

func NewUserRepository(db *mongo.Database) *UserRepository {
	return newUserRepository(db.Collection(collectionUsers))
}

func newUserRepository(col *mongo.Collection) *UserRepository {
	return &UserRepository{col: col, now: time.Now}
}

// userDocument is the stored shape of a user. The password digest lives
// under "password" and is projected out of list queries.
type userDocument struct {
	ID                  primitive.ObjectID `bson:"_id,omitempty"`
	Pseudonyme          string             `bson:"pseudonyme"`
	Password            string             `bson:"password,omitempty"`
	Name                string             `bson:"name,omitempty"`
	Address             *domain.Address    `bson:"address,omitempty"`
	Comment             string             `bson:"comment,omitempty"`
	Role                string             `bson:"role"`
	LastAuthenticatedAt *time.Time         `bson:"lastAuthenticatedAt,omitempty"`
	CreatedAt           time.Time          `bson:"createdAt"`
	UpdatedAt           time.Time          `bson:"updatedAt"`
}

func (d *userDocument) toDomain() *domain.User {
	return &domain.User{
		ID:                  d.ID.Hex(),
		Pseudonyme:          d.Pseudonyme,
		PasswordHash:        d.Password,
		Name:                d.Name,
		Address:             d.Address,
		Comment:             d.Comment,
		Role:                d.Role,
		LastAuthenticatedAt: d.LastAuthenticatedAt,
		CreatedAt:           d.CreatedAt,
		UpdatedAt:           d.UpdatedAt,
	}
}

// filterDocument translates a UserFilter. A malformed ID cannot match any
// record, so it is reported as not found.
func filterDocument(f ports.UserFilter) (bson.M, error) {
	if f.ID != "" {
		oid, err := primitive.ObjectIDFromHex(f.ID)
		if err != nil {
			return nil, domain.ErrUserNotFound
		}
		return bson.M{"_id": oid}, nil
	}
	if f.Pseudonyme != "" {
		return bson.M{"pseudonyme": f.Pseudonyme}, nil
	}
	return nil, fmt.Errorf("%w: empty user filter", domain.ErrInvalidInput)
}

// FindOne returns the full record, password digest included.
func (r *UserRepository) FindOne(ctx context.Context, f ports.UserFilter) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	filter, err := filterDocument(f)
	if err != nil {
		return nil, err
	}

	var doc userDocument
	if err := r.col.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return doc.toDomain(), nil
}

// Create inserts a new user. The unique pseudonyme index turns a concurrent
// duplicate signup into domain.ErrUserExists.
func (r *UserRepository) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	now := r.now().UTC()
	doc := userDocument{
		ID:                  primitive.NewObjectID(),
		Pseudonyme:          user.Pseudonyme,
		Password:            user.PasswordHash,
		Name:                user.Name,
		Address:             user.Address,
		Comment:             user.Comment,
		Role:                user.Role,
		LastAuthenticatedAt: user.LastAuthenticatedAt,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if doc.Role == "" {
		doc.Role = domain.RoleUser
	}

	if _, err := r.col.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, domain.ErrUserExists
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return doc.toDomain(), nil
}

// Update applies patch with $set and returns the updated record.
func (r *UserRepository) Update(ctx context.Context, f ports.UserFilter, patch domain.UserPatch) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	filter, err := filterDocument(f)
	if err != nil {
		return nil, err
	}

	set := bson.M{"updatedAt": r.now().UTC()}
	if patch.Pseudonyme != nil {
		set["pseudonyme"] = *patch.Pseudonyme
	}
	if patch.PasswordHash != nil {
		set["password"] = *patch.PasswordHash
	}
	if patch.Name != nil {
		set["name"] = *patch.Name
	}
	if patch.Address != nil {
		set["address"] = patch.Address
	}
	if patch.Comment != nil {
		set["comment"] = *patch.Comment
	}
	if patch.Role != nil {
		set["role"] = *patch.Role
	}
	if patch.LastAuthenticatedAt != nil {
		set["lastAuthenticatedAt"] = patch.LastAuthenticatedAt.UTC()
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc userDocument
	if err := r.col.FindOneAndUpdate(ctx, filter, bson.M{"$set": set}, opts).Decode(&doc); err != nil {
		switch {
		case errors.Is(err, mongo.ErrNoDocuments):
			return nil, domain.ErrUserNotFound
		case mongo.IsDuplicateKeyError(err):
			return nil, domain.ErrUserExists
		}
		return nil, fmt.Errorf("update user: %w", err)
	}
	return doc.toDomain(), nil
}

// Remove hard-deletes the matching record.
func (r *UserRepository) Remove(ctx context.Context, f ports.UserFilter) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	filter, err := filterDocument(f)
	if err != nil {
		return err
	}

	res, err := r.col.DeleteOne(ctx, filter)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// List returns one page of users without their password digests, plus the
// total number of matches.
func (r *UserRepository) List(ctx context.Context, f ports.ListUsersFilter) ([]*domain.User, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	filter := bson.M{}
	if f.Text != "" {
		filter["$text"] = bson.M{"$search": f.Text, "$caseSensitive": true}
	}

	sort := bson.D{}
	if f.SortField != "" {
		sort = append(sort, bson.E{Key: f.SortField, Value: f.SortDirection})
	}
	sort = append(sort, bson.E{Key: "_id", Value: 1})

	page, limit := f.Page, f.Limit
	if page < 1 {
		page = 1
	}
	opts := options.Find().
		SetProjection(bson.M{"password": 0}).
		SetSort(sort).
		SetSkip(int64((page - 1) * limit))
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	var docs []userDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, 0, fmt.Errorf("decode users: %w", err)
	}

	total, err := r.col.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	users := make([]*domain.User, 0, len(docs))
	for i := range docs {
		users = append(users, docs[i].toDomain())
	}
	return users, total, nil
}

// EnsureIndexes creates the unique pseudonyme index and the full-text index
// used by List.
func (r *UserRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "pseudonyme", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{
				{Key: "address.street", Value: "text"},
				{Key: "address.city", Value: "text"},
				{Key: "address.country", Value: "text"},
				{Key: "pseudonyme", Value: "text"},
				{Key: "name", Value: "text"},
				{Key: "comment", Value: "text"},
			},
			Options: options.Index().SetName("profile_text"),
		},
	}

	if _, err := r.col.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("create user indexes: %w", err)
	}
	return nil
}
