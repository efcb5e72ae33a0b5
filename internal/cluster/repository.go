// Package cluster implements the incremental article clustering engine:
// candidate ranking, assignment decisions, self-healing maintenance, and
// the pipeline driver that ties them together.
package cluster

import (
	"context"
	"time"

	"github.com/newsmesh/clusterd/pkg/models"
)

// Repository is the persistence boundary the engine operates against. Each
// write method is a single database transaction, so a run interrupted
// between articles leaves no partial state; maintenance repairs any drift
// on the next run.
type Repository interface {
	// UnclusteredArticles returns processed articles without a cluster
	// reference, most recent first, capped at limit. Articles with
	// unusable embeddings may be included; the engine skips them.
	UnclusteredArticles(ctx context.Context, limit int) ([]models.Article, error)

	// Clusters returns all clusters with centroids and member counts.
	Clusters(ctx context.Context) ([]models.Cluster, error)

	// ClusterMembers returns the articles currently assigned to a cluster,
	// used when recomputing a corrupt centroid from scratch.
	ClusterMembers(ctx context.Context, clusterID string) ([]models.Article, error)

	// JoinCluster assigns an article to an existing cluster and writes the
	// new centroid, member count, UPDATED status, and timestamp in one
	// transaction.
	JoinCluster(ctx context.Context, articleID int64, clusterID string, centroid models.Vector, memberCount int) error

	// CreatePair creates a new cluster from two unclustered articles and
	// assigns both in one transaction. Returns the new cluster id.
	CreatePair(ctx context.Context, articleA, articleB int64, centroid models.Vector) (string, error)

	// RepairCentroid overwrites a cluster's centroid and member count with
	// values recomputed from its current members.
	RepairCentroid(ctx context.Context, clusterID string, centroid models.Vector, memberCount int) error

	// MarkClustersOld transitions non-OLD clusters whose updated_at is
	// before olderThan to OLD, returning the affected ids.
	MarkClustersOld(ctx context.Context, olderThan time.Time) ([]string, error)

	// Recalculate is the atomic cleanup routine, run in one transaction:
	// recount members per cluster, correct drifted counts, delete 0-member
	// clusters, unassign the sole member of 1-member clusters and delete
	// those clusters, and clear article references to clusters that no
	// longer exist.
	Recalculate(ctx context.Context) (*RecalcResult, error)
}

// CountDrift records a member count correction for one cluster.
type CountDrift struct {
	Old int `json:"old"`
	New int `json:"new"`
}

// RecalcResult summarizes one atomic recalculation pass. Observability
// only; never fed back into assignment decisions.
type RecalcResult struct {
	UpdatedClusterIDs    []string              `json:"updated_cluster_ids"`
	DeletedClusterIDs    []string              `json:"deleted_cluster_ids"`
	UnassignedArticleIDs []int64               `json:"unassigned_article_ids"`
	Discrepancies        map[string]CountDrift `json:"discrepancies"`
}

// Empty reports whether the pass changed nothing, which is what a second
// consecutive pass must report (idempotence).
func (r *RecalcResult) Empty() bool {
	return len(r.UpdatedClusterIDs) == 0 &&
		len(r.DeletedClusterIDs) == 0 &&
		len(r.UnassignedArticleIDs) == 0 &&
		len(r.Discrepancies) == 0
}
