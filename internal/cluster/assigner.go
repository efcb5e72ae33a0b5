package cluster

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/newsmesh/clusterd/pkg/models"
	"github.com/newsmesh/clusterd/pkg/vecmath"
)

// Outcome is the terminal result of assigning one article.
type Outcome int

const (
	// OutcomeJoined means the article joined an existing cluster.
	OutcomeJoined Outcome = iota
	// OutcomeCreated means a new cluster was formed from the article and a
	// pending partner.
	OutcomeCreated
	// OutcomePending means no candidate qualified; the article stays
	// unclustered and becomes a merge candidate for later articles.
	OutcomePending
	// OutcomeSkipped means the article could not be processed this run
	// (bad embedding or exhausted retries); it stays unclustered.
	OutcomeSkipped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeJoined:
		return "joined"
	case OutcomeCreated:
		return "created"
	case OutcomePending:
		return "pending"
	default:
		return "skipped"
	}
}

// Assignment reports what happened to one article.
type Assignment struct {
	Outcome    Outcome
	ClusterID  string
	PartnerID  int64
	Similarity float64
	Reason     string
}

// Assigner holds the in-run clustering state and applies the decision
// policy to one article at a time. Articles are processed sequentially so
// that each assignment observes every prior one: when two similar articles
// arrive back to back, the second must see the cluster the first created.
type Assigner struct {
	repo           Repository
	finder         *Finder
	threshold      float64
	mergeThreshold float64
	dim            int
	retry          RetryPolicy

	clusters []models.Cluster
	pending  map[int64]models.Vector
}

// NewAssigner builds an assigner with the given snapshot of existing
// clusters. The merge threshold must be at least the join threshold.
func NewAssigner(repo Repository, clusters []models.Cluster, threshold, mergeThreshold float64, dim int, retry RetryPolicy) *Assigner {
	return &Assigner{
		repo:           repo,
		finder:         NewFinder(dim, threshold),
		threshold:      threshold,
		mergeThreshold: mergeThreshold,
		dim:            dim,
		retry:          retry,
		clusters:       clusters,
		pending:        make(map[int64]models.Vector),
	}
}

// PendingCount returns how many articles are awaiting a merge partner.
func (a *Assigner) PendingCount() int {
	return len(a.pending)
}

// Assign runs the decision policy for one article and commits the side
// effects through the repository. Repository failures are retried per the
// policy; when retries are exhausted the article is skipped and the run
// continues.
func (a *Assigner) Assign(ctx context.Context, article models.Article) (Assignment, error) {
	embedding := vecmath.NormalizeDimension(article.Embedding, a.dim)
	if embedding.IsZero() {
		log.Warn().Int64("article_id", article.ID).Msg("Skipping article with empty or zero embedding")
		return Assignment{Outcome: OutcomeSkipped, Reason: "zero embedding"}, nil
	}

	candidates := a.finder.Rank(embedding, a.clusters, a.pending, article.ID)
	if len(candidates) == 0 {
		a.pending[article.ID] = embedding
		return Assignment{Outcome: OutcomePending}, nil
	}

	top := candidates[0]
	switch {
	case top.Type == TargetCluster && top.Similarity >= a.threshold:
		return a.join(ctx, article.ID, embedding, top)
	case top.Type == TargetArticle && top.Similarity >= a.mergeThreshold:
		return a.merge(ctx, article.ID, embedding, top)
	default:
		a.pending[article.ID] = embedding
		return Assignment{Outcome: OutcomePending}, nil
	}
}

func (a *Assigner) join(ctx context.Context, articleID int64, embedding models.Vector, top Candidate) (Assignment, error) {
	idx := a.clusterIndex(top.ClusterID)
	if idx < 0 {
		// Snapshot drifted; should not happen within a run.
		a.pending[articleID] = embedding
		return Assignment{Outcome: OutcomePending}, nil
	}
	target := a.clusters[idx]

	centroid := vecmath.IncrementalCentroid(
		vecmath.NormalizeDimension(target.Centroid, a.dim),
		target.MemberCount,
		embedding,
	)
	newCount := target.MemberCount + 1

	err := a.retry.retry(ctx, func() error {
		return a.repo.JoinCluster(ctx, articleID, target.ID, centroid, newCount)
	})
	if err != nil {
		log.Error().Err(err).
			Int64("article_id", articleID).
			Str("cluster_id", target.ID).
			Msg("Failed to join cluster, skipping article this run")
		return Assignment{Outcome: OutcomeSkipped, Reason: "join failed: " + err.Error()}, err
	}

	a.clusters[idx].Centroid = centroid
	a.clusters[idx].MemberCount = newCount
	a.clusters[idx].Status = models.StatusUpdated
	a.clusters[idx].UpdatedAt = time.Now()

	log.Debug().
		Int64("article_id", articleID).
		Str("cluster_id", target.ID).
		Float64("similarity", top.Similarity).
		Int("member_count", newCount).
		Msg("Article joined cluster")

	return Assignment{Outcome: OutcomeJoined, ClusterID: target.ID, Similarity: top.Similarity}, nil
}

func (a *Assigner) merge(ctx context.Context, articleID int64, embedding models.Vector, top Candidate) (Assignment, error) {
	partnerVec, ok := a.pending[top.ArticleID]
	if !ok {
		a.pending[articleID] = embedding
		return Assignment{Outcome: OutcomePending}, nil
	}

	centroid := vecmath.Mean([]models.Vector{partnerVec, embedding})

	var clusterID string
	err := a.retry.retry(ctx, func() error {
		id, createErr := a.repo.CreatePair(ctx, top.ArticleID, articleID, centroid)
		if createErr != nil {
			return createErr
		}
		clusterID = id
		return nil
	})
	if err != nil {
		log.Error().Err(err).
			Int64("article_id", articleID).
			Int64("partner_id", top.ArticleID).
			Msg("Failed to create cluster pair, skipping article this run")
		return Assignment{Outcome: OutcomeSkipped, Reason: "create failed: " + err.Error()}, err
	}

	delete(a.pending, top.ArticleID)
	a.clusters = append(a.clusters, models.Cluster{
		ID:          clusterID,
		Centroid:    centroid,
		MemberCount: 2,
		Status:      models.StatusNew,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	})

	log.Info().
		Str("cluster_id", clusterID).
		Int64("article_id", articleID).
		Int64("partner_id", top.ArticleID).
		Float64("similarity", top.Similarity).
		Msg("Created new cluster from article pair")

	return Assignment{
		Outcome:    OutcomeCreated,
		ClusterID:  clusterID,
		PartnerID:  top.ArticleID,
		Similarity: top.Similarity,
	}, nil
}

func (a *Assigner) clusterIndex(id string) int {
	for i := range a.clusters {
		if a.clusters[i].ID == id {
			return i
		}
	}
	return -1
}
