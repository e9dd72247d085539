package corpus

import (
	"context"
	"math/rand/v2"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gesetzesinfo/lawsearch/pkg/config"
	"github.com/gesetzesinfo/lawsearch/pkg/postgres"
)

func skipIfNoPostgres(t *testing.T) *postgres.Client {
	t.Helper()
	port, _ := strconv.Atoi(envOrDefault("TEST_POSTGRES_PORT", "5432"))
	db, err := postgres.New(config.PostgresConfig{
		Host:            envOrDefault("TEST_POSTGRES_HOST", "localhost"),
		Port:            port,
		Database:        envOrDefault("TEST_POSTGRES_DB", "gesetzesinfo_test"),
		User:            envOrDefault("TEST_POSTGRES_USER", "gesetzesinfo"),
		Password:        envOrDefault("TEST_POSTGRES_PASSWORD", "localdev"),
		SSLMode:         "disable",
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
	})
	if err != nil {
		t.Skipf("skipping integration test: postgres unavailable: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(context.Background()))
	return db
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func TestImportThenLoad(t *testing.T) {
	db := skipIfNoPostgres(t)
	ctx := context.Background()

	base := 1_000_000 + rand.Int64N(1_000_000_000)
	provisions, rejected := Prepare([]Provision{
		{ID: base, BookCode: "StGB", Title: "§ 242 Diebstahl", Text: "Wer eine fremde bewegliche Sache wegnimmt."},
		{ID: base + 1, BookCode: "StGB", Title: "§ 243", Text: "(weggefallen)"},
	})
	require.Empty(t, rejected)
	require.Len(t, provisions, 1)

	n, err := NewImporter(db).Import(ctx, provisions)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	provisions[0].Text = "Wer eine fremde bewegliche Sache einem anderen wegnimmt."
	_, err = NewImporter(db).Import(ctx, provisions)
	require.NoError(t, err)

	loaded, err := NewPostgresLoader(db).Load(ctx)
	require.NoError(t, err)

	var found *Provision
	for i := range loaded {
		if loaded[i].ID == base {
			found = &loaded[i]
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, provisions[0].Text, found.Text)
	assert.Equal(t, "https://openlegaldata.io/laws/"+strconv.FormatInt(base, 10)+"/", found.SourceURL)
}
