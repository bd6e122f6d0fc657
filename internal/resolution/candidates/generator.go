// Package candidates finds the master identities a submission could duplicate
// and scores each pair.
package candidates

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"ssot/internal/identity/models"
	"ssot/internal/matching/blocking"
	"ssot/internal/matching/comparator"
	"ssot/internal/matching/scoring"
	id "ssot/pkg/domain"
)

const (
	DefaultMaxBlockSize  = 500
	maxConcurrentLookups = 4
)

// MasterReader is the read side of the identity store used for blocking.
type MasterReader interface {
	BlockMembers(ctx context.Context, key string, limit int) ([]id.MasterID, error)
	FindMasters(ctx context.Context, ids []id.MasterID) ([]*models.Master, error)
}

// Settings is the engine configuration one generation run uses.
type Settings struct {
	Kinds        []blocking.Kind
	MaxBlockSize int
	Thresholds   scoring.Thresholds
	Comparators  *comparator.Set
}

// Scored is a master paired with its score against the submission.
type Scored struct {
	Master *models.Master
	Result scoring.Result
}

type Generator struct {
	masters MasterReader
}

func NewGenerator(masters MasterReader) *Generator {
	return &Generator{masters: masters}
}

// Block returns every master sharing at least one configured key with r. Each
// key is looked up concurrently and capped at MaxBlockSize members.
func (g *Generator) Block(ctx context.Context, r comparator.Record, settings Settings) ([]*models.Master, error) {
	keys := blocking.Keys(r, settings.Kinds)
	if len(keys) == 0 {
		return nil, nil
	}
	limit := settings.MaxBlockSize
	if limit <= 0 {
		limit = DefaultMaxBlockSize
	}

	members := make([][]id.MasterID, len(keys))
	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(maxConcurrentLookups)
	for i, key := range keys {
		grp.Go(func() error {
			ids, err := g.masters.BlockMembers(gctx, key, limit)
			if err != nil {
				return fmt.Errorf("block %s: %w", key, err)
			}
			members[i] = ids
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[id.MasterID]bool)
	var union []id.MasterID
	for _, ids := range members {
		for _, masterID := range ids {
			if !seen[masterID] {
				seen[masterID] = true
				union = append(union, masterID)
			}
		}
	}
	if len(union) == 0 {
		return nil, nil
	}

	masters, err := g.masters.FindMasters(ctx, union)
	if err != nil {
		return nil, fmt.Errorf("load block members: %w", err)
	}
	sort.Slice(masters, func(i, j int) bool {
		return masters[i].ID.String() < masters[j].ID.String()
	})
	return masters, nil
}

// Generate blocks and scores. Any scoring error aborts the whole run, so a
// submission never gets a partial candidate set.
func (g *Generator) Generate(ctx context.Context, r comparator.Record, settings Settings, cal scoring.Calibration) ([]Scored, error) {
	masters, err := g.Block(ctx, r, settings)
	if err != nil {
		return nil, err
	}
	return Score(r, masters, settings, cal)
}

// Score compares r against each master, best score first.
func Score(r comparator.Record, masters []*models.Master, settings Settings, cal scoring.Calibration) ([]Scored, error) {
	set := settings.Comparators
	if set == nil {
		set = comparator.NewSet()
	}
	out := make([]Scored, 0, len(masters))
	for _, m := range masters {
		result, err := scoring.Score(set.Compare(r, m.Record()), cal, settings.Thresholds)
		if err != nil {
			return nil, err
		}
		out = append(out, Scored{Master: m, Result: result})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Result.Score > out[j].Result.Score
	})
	return out, nil
}
