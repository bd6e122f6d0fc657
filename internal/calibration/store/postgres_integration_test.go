//go:build integration

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ssot/internal/calibration/models"
	"ssot/internal/matching/comparator"
	"ssot/pkg/platform/sentinel"
	txcontext "ssot/pkg/platform/tx"
	"ssot/pkg/testutil/containers"
)

func TestPostgresStore(t *testing.T) {
	pg := containers.GetManager().GetPostgres(t)
	s := NewPostgres(pg.DB)
	runner := txcontext.NewSQLRunner(pg.DB, 5*time.Second)
	ctx := context.Background()

	save := func(expected int64, params []models.Parameter, replace bool) (int64, error) {
		var v int64
		err := runner.RunInTx(ctx, func(ctx context.Context) error {
			var err error
			v, err = s.Save(ctx, expected, params, replace)
			return err
		})
		return v, err
	}

	t.Run("fresh schema is empty at version zero", func(t *testing.T) {
		require.NoError(t, pg.ResetCalibration(ctx))
		version, params, err := s.Load(ctx)
		require.NoError(t, err)
		assert.Zero(t, version)
		assert.Empty(t, params)
	})

	t.Run("save bumps version and stale saves conflict", func(t *testing.T) {
		require.NoError(t, pg.ResetCalibration(ctx))
		v, err := save(0, models.Defaults, true)
		require.NoError(t, err)
		assert.Equal(t, int64(1), v)

		_, err = save(0, models.Defaults, true)
		assert.ErrorIs(t, err, sentinel.ErrConflict)

		version, err := s.Version(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), version)
	})

	t.Run("partial update keeps other fields", func(t *testing.T) {
		require.NoError(t, pg.ResetCalibration(ctx))
		_, err := save(0, models.Defaults, true)
		require.NoError(t, err)
		_, err = save(1, []models.Parameter{{Field: comparator.Region, M: 0.7, U: 0.3, UpdatedAt: time.Now()}}, false)
		require.NoError(t, err)

		version, params, err := s.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), version)
		assert.Len(t, params, len(models.Defaults))
		for _, p := range params {
			if p.Field == comparator.Region {
				assert.Equal(t, 0.7, p.M)
			}
		}
	})

	t.Run("check constraint rejects inverted pair", func(t *testing.T) {
		require.NoError(t, pg.ResetCalibration(ctx))
		_, err := save(0, []models.Parameter{{Field: comparator.Email, M: 0.1, U: 0.9, UpdatedAt: time.Now()}}, true)
		require.Error(t, err)

		version, _, err := s.Load(ctx)
		require.NoError(t, err)
		assert.Zero(t, version, "rolled back with the failed insert")
	})

	t.Run("rollback leaves parameters unchanged", func(t *testing.T) {
		require.NoError(t, pg.ResetCalibration(ctx))
		_, err := save(0, models.Defaults, true)
		require.NoError(t, err)

		boom := errors.New("audit failed")
		err = runner.RunInTx(ctx, func(ctx context.Context) error {
			if _, err := s.Save(ctx, 1, []models.Parameter{{Field: comparator.Email, M: 0.5, U: 0.4, UpdatedAt: time.Now()}}, false); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		version, params, err := s.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), version)
		for _, p := range params {
			if p.Field == comparator.Email {
				assert.Equal(t, 0.99, p.M)
			}
		}
	})

	t.Run("loaded version matches loaded parameters under concurrent saves", func(t *testing.T) {
		require.NoError(t, pg.ResetCalibration(ctx))
		_, err := save(0, models.Defaults, true)
		require.NoError(t, err)
		regionM := func(version int64) float64 { return 0.5 + float64(version)/1000 }

		done := make(chan error, 1)
		go func() {
			for v := int64(1); v < 60; v++ {
				p := models.Parameter{Field: comparator.Region, M: regionM(v + 1), U: 0.2, UpdatedAt: time.Now()}
				if _, err := save(v, []models.Parameter{p}, false); err != nil {
					done <- err
					return
				}
			}
			done <- nil
		}()

		for writing := true; writing; {
			select {
			case err := <-done:
				require.NoError(t, err)
				writing = false
			default:
			}
			version, params, err := s.Load(ctx)
			require.NoError(t, err)
			if version < 2 {
				continue
			}
			for _, p := range params {
				if p.Field == comparator.Region {
					assert.InDelta(t, regionM(version), p.M, 1e-9, "version %d", version)
				}
			}
		}
	})
}
