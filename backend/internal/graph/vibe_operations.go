package graph

import (
	"context"
	"math"
	"sort"

	apperrors "circlenet/backend/pkg/errors"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// ============================================================================
// Vibe Operations
// ============================================================================

// MaxTopVibes is the number of vibes kept on a profile
const MaxTopVibes = 10

// AggregateVibes computes the vibe score and the top vibes of a set of
// reactions. The score is the mean intensity over all reactions. Vibes are
// ranked by count, then average, then name.
func AggregateVibes(reactions []VibeReaction) (float64, []VibeAggregate) {
	if len(reactions) == 0 {
		return 0, []VibeAggregate{}
	}

	byVibe := map[string]*VibeAggregate{}
	total := 0
	for _, r := range reactions {
		agg, ok := byVibe[r.Vibe]
		if !ok {
			agg = &VibeAggregate{Vibe: r.Vibe}
			byVibe[r.Vibe] = agg
		}
		agg.Count++
		agg.Total += r.Intensity
		total += r.Intensity
	}

	top := make([]VibeAggregate, 0, len(byVibe))
	for _, agg := range byVibe {
		agg.Average = round2(float64(agg.Total) / float64(agg.Count))
		top = append(top, *agg)
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Count != top[j].Count {
			return top[i].Count > top[j].Count
		}
		if top[i].Average != top[j].Average {
			return top[i].Average > top[j].Average
		}
		return top[i].Vibe < top[j].Vibe
	})
	if len(top) > MaxTopVibes {
		top = top[:MaxTopVibes]
	}

	return round2(float64(total) / float64(len(reactions))), top
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// RecordVibe stores a reaction and recomputes the target's aggregate in one
// transaction. Reacting again with the same vibe replaces the intensity.
func (r *Repository) RecordVibe(ctx context.Context, reaction VibeReaction) (float64, []VibeAggregate, error) {
	var (
		score float64
		top   []VibeAggregate
	)
	err := r.inWriteTx(ctx, "record_vibe", func(tx neo4j.ManagedTransaction) error {
		if err := lockVibeTarget(ctx, tx, reaction.TargetUID); err != nil {
			return err
		}
		records, err := txCollect(ctx, tx, `
			MATCH (reactor:User {uid: $reactor}), (target:User {uid: $target})
			MERGE (reactor)-[v:VIBED {vibe: $vibe}]->(target)
			ON CREATE SET v.created_at = datetime($now)
			SET v.intensity = $intensity, v.updated_at = datetime($now)
			RETURN v.vibe AS vibe
		`, map[string]interface{}{
			"reactor":   reaction.ReactorUID,
			"target":    reaction.TargetUID,
			"vibe":      reaction.Vibe,
			"intensity": reaction.Intensity,
			"now":       nowString(),
		})
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return apperrors.NewNotFound("user", reaction.ReactorUID)
		}
		score, top, err = recomputeVibes(ctx, tx, reaction.TargetUID)
		return err
	})
	if err != nil {
		return 0, nil, err
	}
	return score, top, nil
}

// lockVibeTarget takes the write lock on the target's profile so concurrent
// reactions to the same user serialise on it.
func lockVibeTarget(ctx context.Context, tx neo4j.ManagedTransaction, targetUID string) error {
	records, err := txCollect(ctx, tx, `
		MATCH (:User {uid: $target})-[:HAS_PROFILE]->(p:Profile)
		SET p.vibe_version = coalesce(p.vibe_version, 0) + 1
		RETURN p.uid AS uid
	`, map[string]interface{}{"target": targetUID})
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return apperrors.NewNotFound("user", targetUID)
	}
	return nil
}

// recomputeVibes reads every reaction a user has received inside tx and
// stores the aggregate on the profile.
func recomputeVibes(ctx context.Context, tx neo4j.ManagedTransaction, targetUID string) (float64, []VibeAggregate, error) {
	records, err := txCollect(ctx, tx, `
		MATCH (reactor:User)-[v:VIBED]->(:User {uid: $target})
		RETURN reactor.uid AS reactor, v.vibe AS vibe, v.intensity AS intensity
	`, map[string]interface{}{"target": targetUID})
	if err != nil {
		return 0, nil, err
	}
	reactions := make([]VibeReaction, 0, len(records))
	for _, record := range records {
		reactions = append(reactions, VibeReaction{
			ReactorUID: getStringFromRecord(record, "reactor"),
			TargetUID:  targetUID,
			Vibe:       getStringFromRecord(record, "vibe"),
			Intensity:  getIntFromRecord(record, "intensity"),
		})
	}

	score, top := AggregateVibes(reactions)
	err = txExec(ctx, tx, `
		MATCH (:User {uid: $target})-[:HAS_PROFILE]->(p:Profile)
		SET p.vibe_score = $score, p.top_vibes_json = $top
	`, map[string]interface{}{
		"target": targetUID,
		"score":  score,
		"top":    encodeJSON(top),
	})
	if err != nil {
		return 0, nil, err
	}
	return score, top, nil
}
