package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ssot/internal/calibration/models"
	"ssot/internal/matching/comparator"
	"ssot/pkg/platform/sentinel"
	txcontext "ssot/pkg/platform/tx"
)

func TestInMemoryStore(t *testing.T) {
	ctx := context.Background()

	t.Run("save bumps version", func(t *testing.T) {
		s := NewInMemory()
		v, err := s.Save(ctx, 0, models.Defaults, true)
		require.NoError(t, err)
		assert.Equal(t, int64(1), v)

		version, params, err := s.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), version)
		assert.Len(t, params, len(models.Defaults))
	})

	t.Run("stale version conflicts", func(t *testing.T) {
		s := NewInMemory()
		_, err := s.Save(ctx, 0, models.Defaults, true)
		require.NoError(t, err)

		_, err = s.Save(ctx, 0, models.Defaults, true)
		assert.ErrorIs(t, err, sentinel.ErrConflict)
	})

	t.Run("replace drops absent fields", func(t *testing.T) {
		s := NewInMemory()
		_, err := s.Save(ctx, 0, models.Defaults, true)
		require.NoError(t, err)
		_, err = s.Save(ctx, 1, []models.Parameter{{Field: comparator.Email, M: 0.9, U: 0.1}}, true)
		require.NoError(t, err)

		_, params, err := s.Load(ctx)
		require.NoError(t, err)
		require.Len(t, params, 1)
		assert.Equal(t, comparator.Email, params[0].Field)
	})

	t.Run("rolled back transaction leaves parameters unchanged", func(t *testing.T) {
		s := NewInMemory()
		_, err := s.Save(ctx, 0, models.Defaults, true)
		require.NoError(t, err)

		runner := txcontext.NewMemoryRunner(0)
		err = runner.RunInTx(ctx, func(txCtx context.Context) error {
			_, err := s.Save(txCtx, 1, []models.Parameter{{Field: comparator.Email, M: 0.5, U: 0.4}}, false)
			require.NoError(t, err)
			return errors.New("audit failed")
		})
		require.Error(t, err)

		version, params, err := s.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), version)
		for _, p := range params {
			if p.Field == comparator.Email {
				assert.Equal(t, 0.99, p.M)
			}
		}
	})
}
