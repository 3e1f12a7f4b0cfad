package integration

import (
	"context"
	"log"
	"os"
	"testing"

	"llm-knowledge-be/internal/entity"
	"llm-knowledge-be/internal/model"
	"llm-knowledge-be/internal/repository/specification"
	"llm-knowledge-be/internal/repository/unitofwork"
	"llm-knowledge-be/pkg/database"
	"llm-knowledge-be/pkg/vectorstore"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func postgresDSN(t *testing.T) string {
	t.Helper()
	if err := godotenv.Load("../../.env"); err != nil {
		log.Println("No .env file found, using system env")
	}
	dsn := os.Getenv("DB_CONNECTION_STRING")
	if dsn == "" {
		t.Skip("Skipping integration test: DB_CONNECTION_STRING not set")
	}
	return dsn
}

func openPostgres(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.NewGormDBFromDSN(postgresDSN(t), false)
	require.NoError(t, err)
	require.NoError(t, db.Exec(`CREATE EXTENSION IF NOT EXISTS vector`).Error)
	require.NoError(t, db.AutoMigrate(model.AllModels()...))
	return db
}

// The DSN must also be usable by a raw pgx connection, which is what the
// gorm postgres driver wraps.
func TestPgxConnection(t *testing.T) {
	ctx := context.Background()
	conn, err := pgx.Connect(ctx, postgresDSN(t))
	require.NoError(t, err)
	defer conn.Close(ctx)

	var one int
	require.NoError(t, conn.QueryRow(ctx, "SELECT 1").Scan(&one))
	assert.Equal(t, 1, one)
}

func TestGormConnection(t *testing.T) {
	gormDB := openPostgres(t)
	ctx := context.Background()

	uowFactory := unitofwork.NewRepositoryFactory(gormDB)
	uow := uowFactory.NewUnitOfWork(ctx)

	t.Run("Check Repositories", func(t *testing.T) {
		_, err := uow.ResourceRepository().Count(ctx)
		assert.NoError(t, err)
		_, err = uow.CollectionRepository().Count(ctx)
		assert.NoError(t, err)
	})

	t.Run("Rollback discards writes", func(t *testing.T) {
		tx := uowFactory.NewUnitOfWork(ctx)
		require.NoError(t, tx.Begin(ctx))

		c := &entity.Collection{Id: uuid.New(), Name: "integration-" + uuid.NewString(), Active: true}
		require.NoError(t, tx.CollectionRepository().Create(ctx, c))
		require.NoError(t, tx.Rollback())

		_, err := uow.CollectionRepository().FindOne(ctx, specification.ByID{ID: c.Id})
		assert.Error(t, err)
	})
}

func TestPgVectorStore(t *testing.T) {
	gormDB := openPostgres(t)
	ctx := context.Background()

	store := vectorstore.NewPgVectorStore(gormDB, vectorstore.PgVectorConfig{})
	require.NoError(t, store.Migrate(ctx))

	name := "it_" + uuid.NewString()[:8]
	require.NoError(t, store.CreateCollection(ctx, name, 3, nil))
	defer store.DeleteCollection(ctx, name)

	_, err := store.InsertVectors(ctx, name,
		[][]float32{{1, 0, 0}, {0, 1, 0}},
		[]map[string]any{{"resource_id": "a"}, {"resource_id": "b"}},
		[]string{"v1", "v2"},
	)
	require.NoError(t, err)

	results, err := store.SearchVectors(ctx, name, vectorstore.Query{Vector: []float32{1, 0.1, 0}, Limit: 1})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "v1", results[0].ID)
}
