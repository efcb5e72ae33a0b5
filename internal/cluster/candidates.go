package cluster

import (
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/newsmesh/clusterd/pkg/models"
	"github.com/newsmesh/clusterd/pkg/vecmath"
)

// TargetType distinguishes the two kinds of assignment target.
type TargetType string

const (
	// TargetCluster is an existing cluster matched by centroid similarity.
	TargetCluster TargetType = "cluster"
	// TargetArticle is another unclustered article matched pairwise.
	TargetArticle TargetType = "article"
)

// Candidate is one ranked assignment target for an article.
type Candidate struct {
	Type       TargetType
	ClusterID  string
	ArticleID  int64
	Similarity float64
	// UpdatedAt breaks ties between equally similar clusters in favor of
	// the most recently updated one.
	UpdatedAt time.Time
}

// Finder ranks existing clusters and pending unclustered articles against
// a query embedding. Candidates below the floor (the base assignment
// threshold) are dropped entirely.
type Finder struct {
	dim   int
	floor float64
}

// NewFinder returns a Finder normalizing to the given canonical dimension
// with the given similarity floor.
func NewFinder(dim int, floor float64) *Finder {
	return &Finder{dim: dim, floor: floor}
}

// Rank scores the query embedding against every cluster centroid and every
// pending article, returning candidates above the floor in descending
// similarity order. The querying article (selfID) is never a candidate.
// Targets whose vectors cannot be compared are logged and skipped.
func (f *Finder) Rank(embedding models.Vector, clusters []models.Cluster, pending map[int64]models.Vector, selfID int64) []Candidate {
	query := vecmath.NormalizeDimension(embedding, f.dim)
	candidates := make([]Candidate, 0, len(clusters)+len(pending))

	for i := range clusters {
		c := &clusters[i]
		if len(c.Centroid) == 0 {
			log.Warn().Str("cluster_id", c.ID).Msg("Skipping cluster with missing centroid")
			continue
		}
		sim, err := vecmath.CosineSimilarity(query, vecmath.NormalizeDimension(c.Centroid, f.dim))
		if err != nil {
			log.Warn().Err(err).Str("cluster_id", c.ID).Msg("Skipping incomparable cluster centroid")
			continue
		}
		if sim >= f.floor {
			candidates = append(candidates, Candidate{
				Type:       TargetCluster,
				ClusterID:  c.ID,
				Similarity: sim,
				UpdatedAt:  c.UpdatedAt,
			})
		}
	}

	for id, vec := range pending {
		if id == selfID {
			continue
		}
		sim, err := vecmath.CosineSimilarity(query, vecmath.NormalizeDimension(vec, f.dim))
		if err != nil {
			log.Warn().Err(err).Int64("article_id", id).Msg("Skipping incomparable pending article")
			continue
		}
		if sim >= f.floor {
			candidates = append(candidates, Candidate{
				Type:       TargetArticle,
				ArticleID:  id,
				Similarity: sim,
			})
		}
	}

	sortCandidates(candidates)
	return candidates
}

// sortCandidates orders by similarity descending. At equal similarity a
// cluster beats a bare article, among clusters the most recently updated
// wins, and ids are the final key so ranking is deterministic.
func sortCandidates(cs []Candidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		a, b := cs[i], cs[j]
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		if a.Type != b.Type {
			return a.Type == TargetCluster
		}
		if a.Type == TargetCluster {
			if !a.UpdatedAt.Equal(b.UpdatedAt) {
				return a.UpdatedAt.After(b.UpdatedAt)
			}
			return a.ClusterID < b.ClusterID
		}
		return a.ArticleID < b.ArticleID
	})
}
