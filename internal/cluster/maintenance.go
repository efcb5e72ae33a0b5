package cluster

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/newsmesh/clusterd/pkg/models"
	"github.com/newsmesh/clusterd/pkg/vecmath"
)

// Maintenance bundles the idempotent repair routines that restore cluster
// invariants after drift or corruption. Each routine is safe to run any
// number of times; a pass over a clean repository changes nothing.
type Maintenance struct {
	repo   Repository
	dim    int
	window time.Duration
}

// NewMaintenance returns maintenance routines using the given canonical
// dimension and staleness window.
func NewMaintenance(repo Repository, dim int, window time.Duration) *Maintenance {
	return &Maintenance{repo: repo, dim: dim, window: window}
}

// MaintenanceSummary reports what a maintenance pass changed. Used for
// observability only.
type MaintenanceSummary struct {
	AgedClusterIDs       []string              `json:"aged_cluster_ids,omitempty"`
	RepairedClusterIDs   []string              `json:"repaired_cluster_ids,omitempty"`
	UpdatedClusterIDs    []string              `json:"updated_cluster_ids,omitempty"`
	DeletedClusterIDs    []string              `json:"deleted_cluster_ids,omitempty"`
	UnassignedArticleIDs []int64               `json:"unassigned_article_ids,omitempty"`
	Discrepancies        map[string]CountDrift `json:"discrepancies,omitempty"`
}

// AgeStaleClusters transitions UPDATED/NEW clusters untouched for longer
// than the staleness window to OLD. Downstream consumers use the status;
// assignment logic never does.
func (m *Maintenance) AgeStaleClusters(ctx context.Context) ([]string, error) {
	cutoff := time.Now().Add(-m.window)
	ids, err := m.repo.MarkClustersOld(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("age stale clusters: %w", err)
	}
	if len(ids) > 0 {
		log.Info().Int("count", len(ids)).Msg("Marked stale clusters OLD")
	}
	return ids, nil
}

// RepairZeroCentroids recomputes the centroid of every cluster whose
// stored centroid is missing or all zeros, as the exact mean of its
// current members' embeddings. Clusters with no usable member embeddings
// are left for degenerate cleanup.
func (m *Maintenance) RepairZeroCentroids(ctx context.Context) ([]string, error) {
	clusters, err := m.repo.Clusters(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch clusters for centroid repair: %w", err)
	}

	var repaired []string
	for i := range clusters {
		c := &clusters[i]
		if !c.Centroid.IsZero() {
			continue
		}

		members, err := m.repo.ClusterMembers(ctx, c.ID)
		if err != nil {
			return repaired, fmt.Errorf("fetch members of cluster %s: %w", c.ID, err)
		}

		embeddings := make([]models.Vector, 0, len(members))
		for _, member := range members {
			if member.Embedding.IsZero() {
				log.Warn().
					Int64("article_id", member.ID).
					Str("cluster_id", c.ID).
					Msg("Skipping member with unusable embedding during centroid repair")
				continue
			}
			embeddings = append(embeddings, vecmath.NormalizeDimension(member.Embedding, m.dim))
		}

		if len(embeddings) == 0 {
			log.Warn().Str("cluster_id", c.ID).Msg("Zero centroid cluster has no valid member embeddings")
			continue
		}

		centroid := vecmath.Mean(embeddings)
		if err := m.repo.RepairCentroid(ctx, c.ID, centroid, len(embeddings)); err != nil {
			return repaired, fmt.Errorf("repair centroid of cluster %s: %w", c.ID, err)
		}
		repaired = append(repaired, c.ID)
		log.Info().Str("cluster_id", c.ID).Int("members", len(embeddings)).Msg("Recalculated zero centroid")
	}

	return repaired, nil
}

// Recalculate runs the atomic member-count recalculation and degenerate
// cleanup through the repository.
func (m *Maintenance) Recalculate(ctx context.Context) (*RecalcResult, error) {
	result, err := m.repo.Recalculate(ctx)
	if err != nil {
		return nil, fmt.Errorf("recalculate member counts: %w", err)
	}

	for id, drift := range result.Discrepancies {
		log.Info().
			Str("cluster_id", id).
			Int("old_count", drift.Old).
			Int("new_count", drift.New).
			Msg("Corrected cluster member count")
	}
	if len(result.DeletedClusterIDs) > 0 {
		log.Info().Int("count", len(result.DeletedClusterIDs)).Msg("Deleted degenerate clusters")
	}
	if len(result.UnassignedArticleIDs) > 0 {
		log.Info().Int("count", len(result.UnassignedArticleIDs)).Msg("Unassigned articles from deleted clusters")
	}

	return result, nil
}

// PrePass runs before the assignment loop: status aging and zero-centroid
// repair, so assignment never scores against corrupt centroids.
func (m *Maintenance) PrePass(ctx context.Context) (*MaintenanceSummary, error) {
	aged, err := m.AgeStaleClusters(ctx)
	if err != nil {
		return nil, err
	}
	repaired, err := m.RepairZeroCentroids(ctx)
	if err != nil {
		return nil, err
	}
	return &MaintenanceSummary{AgedClusterIDs: aged, RepairedClusterIDs: repaired}, nil
}

// PostPass runs after the assignment loop: member-count recalculation with
// degenerate cleanup.
func (m *Maintenance) PostPass(ctx context.Context) (*MaintenanceSummary, error) {
	result, err := m.Recalculate(ctx)
	if err != nil {
		return nil, err
	}
	return &MaintenanceSummary{
		UpdatedClusterIDs:    result.UpdatedClusterIDs,
		DeletedClusterIDs:    result.DeletedClusterIDs,
		UnassignedArticleIDs: result.UnassignedArticleIDs,
		Discrepancies:        result.Discrepancies,
	}, nil
}
