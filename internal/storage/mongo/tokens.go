package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pribylovaa/go-jwt-auth/internal/models"
	"github.com/pribylovaa/go-jwt-auth/internal/storage"
	"go.mongodb.org/mongo-driver/bson"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type refreshDoc struct {
	Hash      string    `bson:"hash"`
	SessionID string    `bson:"session_id"`
	CreatedAt time.Time `bson:"created_at"`
	ExpiresAt time.Time `bson:"expires_at"`
}

func newRefreshDoc(t *models.RefreshToken) refreshDoc {
	return refreshDoc{
		Hash:      t.Hash,
		SessionID: t.SessionID.String(),
		CreatedAt: t.CreatedAt.UTC(),
		ExpiresAt: t.ExpiresAt.UTC(),
	}
}

type actionDoc struct {
	Hash      string    `bson:"_id"`
	UserID    string    `bson:"user_id"`
	Purpose   string    `bson:"purpose"`
	CreatedAt time.Time `bson:"created_at"`
	ExpiresAt time.Time `bson:"expires_at"`
}

// tokensOnly — результат FindOneAndUpdate с состоянием массива до изменения.
type tokensOnly struct {
	RefreshTokens []refreshDoc `bson:"refresh_tokens"`
}

var tokensProjection = bson.M{"refresh_tokens": 1}

// AddRefreshToken добавляет токен в массив пользователя.
// Дубликат внутри документа отсекается фильтром, между документами — уникальным индексом.
func (m *Mongo) AddRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	const op = "storage.mongo.AddRefreshToken"

	filter := bson.M{"_id": token.UserID.String(), "refresh_tokens.hash": bson.M{"$ne": token.Hash}}
	update := bson.M{"$push": bson.M{"refresh_tokens": newRefreshDoc(token)}}

	res, err := m.users.UpdateOne(ctx, filter, update)
	if err != nil {
		if mongodriver.IsDuplicateKeyError(err) {
			return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
		}

		return fmt.Errorf("%s: %w", op, err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	n, err := m.users.CountDocuments(ctx, bson.M{"_id": token.UserID.String()})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
}

func (m *Mongo) RemoveRefreshToken(ctx context.Context, userID uuid.UUID, hash string) (bool, error) {
	const op = "storage.mongo.RemoveRefreshToken"

	filter := bson.M{"_id": userID.String(), "refresh_tokens.hash": hash}
	update := bson.M{"$pull": bson.M{"refresh_tokens": bson.M{"hash": hash}}}

	res, err := m.users.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return res.ModifiedCount > 0, nil
}

// ReplaceRefreshToken заменяет элемент массива через позиционный оператор.
// Фильтр по старому хэшу делает замену условной: повторный вызов ничего не найдёт.
func (m *Mongo) ReplaceRefreshToken(ctx context.Context, userID uuid.UUID, oldHash string, next *models.RefreshToken) (bool, error) {
	const op = "storage.mongo.ReplaceRefreshToken"

	filter := bson.M{"_id": userID.String(), "refresh_tokens.hash": oldHash}
	update := bson.M{"$set": bson.M{"refresh_tokens.$": newRefreshDoc(next)}}

	res, err := m.users.UpdateOne(ctx, filter, update)
	if err != nil {
		if mongodriver.IsDuplicateKeyError(err) {
			return false, fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
		}

		return false, fmt.Errorf("%s: %w", op, err)
	}

	return res.MatchedCount > 0, nil
}

func (m *Mongo) RemoveSession(ctx context.Context, userID, sessionID uuid.UUID) (int64, error) {
	const op = "storage.mongo.RemoveSession"

	sid := sessionID.String()
	update := bson.M{"$pull": bson.M{"refresh_tokens": bson.M{"session_id": sid}}}

	before, err := m.updateBefore(ctx, bson.M{"_id": userID.String()}, update)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	var n int64
	for _, t := range before {
		if t.SessionID == sid {
			n++
		}
	}

	return n, nil
}

func (m *Mongo) ClearRefreshTokens(ctx context.Context, userID uuid.UUID) (int64, error) {
	const op = "storage.mongo.ClearRefreshTokens"

	update := bson.M{"$unset": bson.M{"refresh_tokens": ""}}

	before, err := m.updateBefore(ctx, bson.M{"_id": userID.String()}, update)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return int64(len(before)), nil
}

// DeleteExpiredRefreshTokens обходит пользователей с просроченными токенами
// и вычищает их по одному документу за раз.
func (m *Mongo) DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error) {
	const op = "storage.mongo.DeleteExpiredRefreshTokens"

	// BSON хранит время с точностью до миллисекунды.
	cut := now.UTC().Truncate(time.Millisecond)
	expired := bson.M{"expires_at": bson.M{"$lte": cut}}

	cur, err := m.users.Find(ctx,
		bson.M{"refresh_tokens": bson.M{"$elemMatch": expired}},
		options.Find().SetProjection(bson.M{"_id": 1}),
	)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	var ids []struct {
		ID string `bson:"_id"`
	}
	if err := cur.All(ctx, &ids); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	var total int64
	for _, row := range ids {
		before, err := m.updateBefore(ctx,
			bson.M{"_id": row.ID},
			bson.M{"$pull": bson.M{"refresh_tokens": expired}},
		)
		if err != nil {
			return total, fmt.Errorf("%s: %w", op, err)
		}

		for _, t := range before {
			if !t.ExpiresAt.After(cut) {
				total++
			}
		}
	}

	return total, nil
}

// updateBefore применяет update и возвращает массив токенов до изменения.
// Отсутствие документа — пустой результат.
func (m *Mongo) updateBefore(ctx context.Context, filter, update bson.M) ([]refreshDoc, error) {
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.Before).
		SetProjection(tokensProjection)

	var doc tokensOnly
	err := m.users.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return nil, nil
		}

		return nil, err
	}

	return doc.RefreshTokens, nil
}

func (m *Mongo) SaveActionToken(ctx context.Context, token *models.ActionToken) error {
	const op = "storage.mongo.SaveActionToken"

	doc := actionDoc{
		Hash:      token.Hash,
		UserID:    token.UserID.String(),
		Purpose:   string(token.Purpose),
		CreatedAt: token.CreatedAt.UTC(),
		ExpiresAt: token.ExpiresAt.UTC(),
	}

	if _, err := m.actions.InsertOne(ctx, doc); err != nil {
		if mongodriver.IsDuplicateKeyError(err) {
			return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// ConsumeActionToken атомарно удаляет и возвращает действующий токен.
// TTL-индекс убирает просроченные не мгновенно, поэтому срок проверяется в фильтре.
func (m *Mongo) ConsumeActionToken(ctx context.Context, hash string, purpose models.ActionPurpose, now time.Time) (*models.ActionToken, error) {
	const op = "storage.mongo.ConsumeActionToken"

	filter := bson.M{
		"_id":        hash,
		"purpose":    string(purpose),
		"expires_at": bson.M{"$gt": now.UTC()},
	}

	var doc actionDoc
	if err := m.actions.FindOneAndDelete(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	userID, err := uuid.Parse(doc.UserID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &models.ActionToken{
		Hash:      doc.Hash,
		UserID:    userID,
		Purpose:   models.ActionPurpose(doc.Purpose),
		CreatedAt: doc.CreatedAt.UTC(),
		ExpiresAt: doc.ExpiresAt.UTC(),
	}, nil
}
