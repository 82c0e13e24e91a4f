// mongo — хранилище на MongoDB.
//
// Refresh-токены живут внутри документа пользователя (массив refresh_tokens),
// поэтому ротация — это одно обновление одного документа и атомарна без транзакций.
package mongo

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/pribylovaa/go-jwt-auth/internal/storage"
	"go.mongodb.org/mongo-driver/bson"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	usersCollection   = "users"
	actionsCollection = "action_tokens"
	defaultDBName     = "auth"
)

// Mongo — адаптер хранилища поверх MongoDB.
type Mongo struct {
	client  *mongodriver.Client
	db      *mongodriver.Database
	users   *mongodriver.Collection
	actions *mongodriver.Collection
}

// New подключается к MongoDB, проверяет соединение и создаёт индексы.
func New(ctx context.Context, uri string) (*Mongo, error) {
	if uri == "" {
		return nil, fmt.Errorf("mongo: empty uri")
	}

	cli, err := mongodriver.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}

	if err := cli.Ping(ctx, readpref.Primary()); err != nil {
		_ = cli.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	db := cli.Database(databaseFromURI(uri))

	m := &Mongo{
		client:  cli,
		db:      db,
		users:   db.Collection(usersCollection),
		actions: db.Collection(actionsCollection),
	}

	if err := m.ensureIndexes(ctx); err != nil {
		m.Close()
		return nil, err
	}

	return m, nil
}

// Close отключает клиента.
func (m *Mongo) Close() {
	_ = m.client.Disconnect(context.Background())
}

// ensureIndexes создаёт индексы:
// - уникальный email_lower;
// - уникальный refresh_tokens.hash (частичный: пользователи без токенов не индексируются);
// - refresh_tokens.expires_at для уборки;
// - TTL по expires_at у токенов действий.
func (m *Mongo) ensureIndexes(ctx context.Context) error {
	userIdx := []mongodriver.IndexModel{
		{
			Keys:    bson.D{{Key: "email_lower", Value: 1}},
			Options: options.Index().SetName("uniq_email_lower").SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "refresh_tokens.hash", Value: 1}},
			Options: options.Index().
				SetName("uniq_refresh_hash").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"refresh_tokens.hash": bson.M{"$exists": true}}),
		},
		{
			Keys:    bson.D{{Key: "refresh_tokens.expires_at", Value: 1}},
			Options: options.Index().SetName("refresh_expires_at"),
		},
	}
	if _, err := m.users.Indexes().CreateMany(ctx, userIdx); err != nil {
		return fmt.Errorf("mongo ensure indexes: %w", err)
	}

	actionIdx := []mongodriver.IndexModel{
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetName("ttl_expires_at").SetExpireAfterSeconds(0),
		},
	}
	if _, err := m.actions.Indexes().CreateMany(ctx, actionIdx); err != nil {
		return fmt.Errorf("mongo ensure indexes: %w", err)
	}

	return nil
}

// databaseFromURI извлекает имя базы данных из пути URI.
// Если его нет, возвращает значение по умолчанию.
func databaseFromURI(uri string) string {
	u, err := url.Parse(uri)
	if err == nil {
		if name := strings.Trim(u.Path, "/"); name != "" {
			return name
		}
	}
	return defaultDBName
}

// Проверка на соответствие интерфейсу Storage.
var _ storage.Storage = (*Mongo)(nil)
