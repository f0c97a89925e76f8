package credential

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/ghostwrite/internal/db"
	"github.com/hpungsan/ghostwrite/internal/errors"
)

func TestStore(t *testing.T) {
	database, err := db.Init(t.TempDir())
	require.NoError(t, err)
	defer database.Close()

	ctx := context.Background()
	s := NewStore(database)

	key, err := s.Load(ctx)
	require.NoError(t, err)
	require.Empty(t, key)

	err = s.Save(ctx, "   ")
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))

	require.NoError(t, s.Save(ctx, " gw_abc \n"))
	key, err = s.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, "gw_abc", key)

	require.NoError(t, s.Clear(ctx))
	key, err = s.Load(ctx)
	require.NoError(t, err)
	require.Empty(t, key)
}
