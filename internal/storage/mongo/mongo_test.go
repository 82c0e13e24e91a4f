package mongo

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pribylovaa/go-jwt-auth/internal/storage"
	"github.com/pribylovaa/go-jwt-auth/internal/storage/storagetest"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// testTimeout — общий дедлайн на операции с БД в тестах.
const testTimeout = 10 * time.Second

// TestMain запускает MongoDB в контейнере один раз на пакет.
// Адрес прокидывается в DATABASE_URL, каждый тест получает свою БД.
func TestMain(m *testing.M) {
	if os.Getenv("GO_TEST_INTEGRATION") == "" {
		os.Exit(m.Run())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	req := testcontainers.ContainerRequest{
		Image:        "mongo:7.0",
		ExposedPorts: []string{"27017/tcp"},
		WaitingFor:   wait.ForLog("Waiting for connections").WithStartupTimeout(90 * time.Second),
	}

	mongoC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start mongo testcontainer: %v\n", err)
		os.Exit(1)
	}

	host, err := mongoC.Host(ctx)
	if err != nil {
		_ = mongoC.Terminate(ctx)
		fmt.Fprintf(os.Stderr, "failed to get container host: %v\n", err)
		os.Exit(1)
	}

	port, err := mongoC.MappedPort(ctx, "27017/tcp")
	if err != nil {
		_ = mongoC.Terminate(ctx)
		fmt.Fprintf(os.Stderr, "failed to get mapped port: %v\n", err)
		os.Exit(1)
	}

	_ = os.Setenv("DATABASE_URL", fmt.Sprintf("mongodb://%s:%s", host, port.Port()))

	code := m.Run()

	_ = mongoC.Terminate(context.Background())
	os.Exit(code)
}

// mustNewMongo подключается к отдельной тестовой БД и удаляет её по завершении теста.
func mustNewMongo(t *testing.T) *Mongo {
	t.Helper()
	if os.Getenv("GO_TEST_INTEGRATION") == "" {
		t.Skip("integration tests are disabled (set GO_TEST_INTEGRATION=1)")
	}

	uri := strings.TrimSuffix(os.Getenv("DATABASE_URL"), "/") + "/auth_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	m, err := New(ctx, uri)
	require.NoError(t, err, "DATABASE_URL=%s", uri)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
		defer cancel()
		_ = m.db.Drop(ctx)
		m.Close()
	})

	return m
}

func TestIntegration_Contract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Storage { return mustNewMongo(t) })
}

func TestIntegration_AddRefreshToken_UnknownUser(t *testing.T) {
	m := mustNewMongo(t)

	rt := storagetest.NewRefresh(uuid.New(), uuid.New(), time.Now().Add(time.Hour))
	err := m.AddRefreshToken(context.Background(), rt)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

// Хэш уже принадлежит другому пользователю: срабатывает уникальный индекс.
func TestIntegration_AddRefreshToken_HashTakenByOtherUser(t *testing.T) {
	ctx := context.Background()
	m := mustNewMongo(t)
	a := storagetest.SeedUser(t, m)
	b := storagetest.SeedUser(t, m)

	rt := storagetest.NewRefresh(a.ID, uuid.New(), time.Now().Add(time.Hour))
	require.NoError(t, m.AddRefreshToken(ctx, rt))

	dup := *rt
	dup.UserID = b.ID
	require.ErrorIs(t, m.AddRefreshToken(ctx, &dup), storage.ErrAlreadyExists)
}

func TestDatabaseFromURI(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"mongodb://localhost:27017/users", "users"},
		{"mongodb://localhost:27017/", defaultDBName},
		{"mongodb://localhost:27017", defaultDBName},
		{"::bad::", defaultDBName},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, databaseFromURI(tt.in), tt.in)
	}
}

func TestNew_EmptyURI(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), "")
	require.Error(t, err)
}
