package pg

import (
	"context"
	"os"
	"testing"

	"github.com/kompox/patchbay/adapters/store/storetest"
	"github.com/kompox/patchbay/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Tests run against a disposable database named by PATCHBAY_TEST_PG_URL.
// Every table is truncated before each subtest.
func TestStoreSuite(t *testing.T) {
	url := os.Getenv("PATCHBAY_TEST_PG_URL")
	if url == "" {
		t.Skip("PATCHBAY_TEST_PG_URL not set")
	}
	ctx := context.Background()
	pool, err := Open(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, Migrate(ctx, pool))

	storetest.Run(t, func(t *testing.T) *domain.Repositories {
		_, err := pool.Exec(ctx, `TRUNCATE patches, credit_transactions, workspaces, companies`)
		require.NoError(t, err)
		return Repositories(pool)
	})
}

func TestIsURL(t *testing.T) {
	assert.True(t, IsURL("postgres://u@localhost/db"))
	assert.True(t, IsURL("postgresql://u@localhost/db"))
	assert.False(t, IsURL("sqlite:./patchbay.db"))
	assert.False(t, IsURL("file:seed.yml"))
}
