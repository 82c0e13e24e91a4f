package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pribylovaa/go-jwt-auth/internal/models"
	"github.com/pribylovaa/go-jwt-auth/internal/storage"
	"go.mongodb.org/mongo-driver/bson"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type userDoc struct {
	ID            string       `bson:"_id"`
	Email         string       `bson:"email"`
	EmailLower    string       `bson:"email_lower"`
	Name          string       `bson:"name"`
	PasswordHash  string       `bson:"password_hash"`
	EmailVerified bool         `bson:"email_verified"`
	CreatedAt     time.Time    `bson:"created_at"`
	UpdatedAt     time.Time    `bson:"updated_at"`
	RefreshTokens []refreshDoc `bson:"refresh_tokens,omitempty"`
}

func (d *userDoc) toModel() (*models.User, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("bad user id %q: %w", d.ID, err)
	}

	return &models.User{
		ID:            id,
		Email:         d.Email,
		Name:          d.Name,
		PasswordHash:  d.PasswordHash,
		EmailVerified: d.EmailVerified,
		CreatedAt:     d.CreatedAt.UTC(),
		UpdatedAt:     d.UpdatedAt.UTC(),
	}, nil
}

// userProjection исключает массив токенов при чтении профиля.
var userProjection = bson.M{"refresh_tokens": 0}

func (m *Mongo) CreateUser(ctx context.Context, user *models.User) error {
	const op = "storage.mongo.CreateUser"

	doc := userDoc{
		ID:            user.ID.String(),
		Email:         user.Email,
		EmailLower:    strings.ToLower(user.Email),
		Name:          user.Name,
		PasswordHash:  user.PasswordHash,
		EmailVerified: user.EmailVerified,
		CreatedAt:     user.CreatedAt.UTC(),
		UpdatedAt:     user.UpdatedAt.UTC(),
	}

	if _, err := m.users.InsertOne(ctx, doc); err != nil {
		if mongodriver.IsDuplicateKeyError(err) {
			return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (m *Mongo) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	const op = "storage.mongo.UserByEmail"

	return m.findUser(ctx, op, bson.M{"email_lower": strings.ToLower(email)})
}

func (m *Mongo) UserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	const op = "storage.mongo.UserByID"

	return m.findUser(ctx, op, bson.M{"_id": id.String()})
}

func (m *Mongo) UpdatePassword(ctx context.Context, id uuid.UUID, hash string, now time.Time) error {
	const op = "storage.mongo.UpdatePassword"

	return m.updateUser(ctx, op, id, bson.M{"password_hash": hash, "updated_at": now.UTC()})
}

func (m *Mongo) MarkEmailVerified(ctx context.Context, id uuid.UUID, now time.Time) error {
	const op = "storage.mongo.MarkEmailVerified"

	return m.updateUser(ctx, op, id, bson.M{"email_verified": true, "updated_at": now.UTC()})
}

// DeleteUser удаляет документ пользователя (с вложенными refresh-токенами)
// и его action-токены.
func (m *Mongo) DeleteUser(ctx context.Context, id uuid.UUID) error {
	const op = "storage.mongo.DeleteUser"

	res, err := m.users.DeleteOne(ctx, bson.M{"_id": id.String()})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	if _, err := m.actions.DeleteMany(ctx, bson.M{"user_id": id.String()}); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (m *Mongo) findUser(ctx context.Context, op string, filter bson.M) (*models.User, error) {
	var doc userDoc
	err := m.users.FindOne(ctx, filter, options.FindOne().SetProjection(userProjection)).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	u, err := doc.toModel()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return u, nil
}

func (m *Mongo) updateUser(ctx context.Context, op string, id uuid.UUID, set bson.M) error {
	res, err := m.users.UpdateOne(ctx, bson.M{"_id": id.String()}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if res.MatchedCount == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return nil
}
