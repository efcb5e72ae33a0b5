package cluster

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/newsmesh/clusterd/pkg/models"
)

// fakeRepo is an in-memory Repository with the same transactional
// semantics as the real store, plus error injection for retry tests.
type fakeRepo struct {
	articles map[int64]*models.Article
	clusters map[string]*models.Cluster

	writes int

	// joinFailures makes the next N JoinCluster calls fail with the given
	// error before succeeding.
	joinFailures int
	joinErr      error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		articles: make(map[int64]*models.Article),
		clusters: make(map[string]*models.Cluster),
	}
}

func (f *fakeRepo) addArticle(id int64, embedding models.Vector) {
	f.articles[id] = &models.Article{
		ID:        id,
		Embedding: embedding,
		Processed: true,
		CreatedAt: time.Now(),
	}
}

func (f *fakeRepo) addCluster(id string, centroid models.Vector, count int, status models.ClusterStatus, updatedAt time.Time) {
	f.clusters[id] = &models.Cluster{
		ID:          id,
		Centroid:    centroid,
		MemberCount: count,
		Status:      status,
		CreatedAt:   updatedAt,
		UpdatedAt:   updatedAt,
	}
}

func (f *fakeRepo) UnclusteredArticles(_ context.Context, limit int) ([]models.Article, error) {
	out := make([]models.Article, 0, len(f.articles))
	for _, a := range f.articles {
		if !a.Clustered() && a.Processed {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeRepo) Clusters(_ context.Context) ([]models.Cluster, error) {
	out := make([]models.Cluster, 0, len(f.clusters))
	for _, c := range f.clusters {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeRepo) ClusterMembers(_ context.Context, clusterID string) ([]models.Article, error) {
	var out []models.Article
	for _, a := range f.articles {
		if a.ClusterID != nil && *a.ClusterID == clusterID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeRepo) JoinCluster(_ context.Context, articleID int64, clusterID string, centroid models.Vector, memberCount int) error {
	if f.joinFailures > 0 {
		f.joinFailures--
		return f.joinErr
	}
	c, ok := f.clusters[clusterID]
	if !ok {
		return NewFatalError("join", fmt.Errorf("cluster %s not found", clusterID))
	}
	a, ok := f.articles[articleID]
	if !ok {
		return NewFatalError("join", fmt.Errorf("article %d not found", articleID))
	}
	f.writes++
	id := clusterID
	a.ClusterID = &id
	c.Centroid = centroid
	c.MemberCount = memberCount
	c.Status = models.StatusUpdated
	c.UpdatedAt = time.Now()
	return nil
}

func (f *fakeRepo) CreatePair(_ context.Context, articleA, articleB int64, centroid models.Vector) (string, error) {
	a, okA := f.articles[articleA]
	b, okB := f.articles[articleB]
	if !okA || !okB {
		return "", NewFatalError("create pair", errors.New("article not found"))
	}
	f.writes++
	id := uuid.NewString()
	f.clusters[id] = &models.Cluster{
		ID:          id,
		Centroid:    centroid,
		MemberCount: 2,
		Status:      models.StatusNew,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	refA, refB := id, id
	a.ClusterID = &refA
	b.ClusterID = &refB
	return id, nil
}

func (f *fakeRepo) RepairCentroid(_ context.Context, clusterID string, centroid models.Vector, memberCount int) error {
	c, ok := f.clusters[clusterID]
	if !ok {
		return NewFatalError("repair", fmt.Errorf("cluster %s not found", clusterID))
	}
	f.writes++
	c.Centroid = centroid
	c.MemberCount = memberCount
	c.Status = models.StatusUpdated
	c.UpdatedAt = time.Now()
	return nil
}

func (f *fakeRepo) MarkClustersOld(_ context.Context, olderThan time.Time) ([]string, error) {
	var ids []string
	for _, c := range f.clusters {
		if c.Status != models.StatusOld && c.UpdatedAt.Before(olderThan) {
			c.Status = models.StatusOld
			ids = append(ids, c.ID)
			f.writes++
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (f *fakeRepo) Recalculate(_ context.Context) (*RecalcResult, error) {
	result := &RecalcResult{Discrepancies: make(map[string]CountDrift)}

	actual := make(map[string][]int64)
	for id, a := range f.articles {
		if a.Clustered() {
			actual[*a.ClusterID] = append(actual[*a.ClusterID], id)
		}
	}

	for id, c := range f.clusters {
		members := actual[id]
		if len(members) != c.MemberCount {
			result.Discrepancies[id] = CountDrift{Old: c.MemberCount, New: len(members)}
		}
		switch {
		case len(members) >= 2:
			if len(members) != c.MemberCount {
				c.MemberCount = len(members)
				c.UpdatedAt = time.Now()
				result.UpdatedClusterIDs = append(result.UpdatedClusterIDs, id)
				f.writes++
			}
		case len(members) == 1:
			f.articles[members[0]].ClusterID = nil
			result.UnassignedArticleIDs = append(result.UnassignedArticleIDs, members[0])
			delete(f.clusters, id)
			result.DeletedClusterIDs = append(result.DeletedClusterIDs, id)
			f.writes++
		default:
			delete(f.clusters, id)
			result.DeletedClusterIDs = append(result.DeletedClusterIDs, id)
			f.writes++
		}
	}

	// Orphaned references to clusters that no longer exist.
	for id, a := range f.articles {
		if a.Clustered() {
			if _, ok := f.clusters[*a.ClusterID]; !ok {
				a.ClusterID = nil
				result.UnassignedArticleIDs = append(result.UnassignedArticleIDs, id)
				f.writes++
			}
		}
	}

	sort.Strings(result.UpdatedClusterIDs)
	sort.Strings(result.DeletedClusterIDs)
	sort.Slice(result.UnassignedArticleIDs, func(i, j int) bool {
		return result.UnassignedArticleIDs[i] < result.UnassignedArticleIDs[j]
	})
	return result, nil
}

// fakeLock implements Locker in memory.
type fakeLock struct {
	held bool
	err  error
}

func (l *fakeLock) TryLock() (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	if l.held {
		return false, nil
	}
	l.held = true
	return true, nil
}

func (l *fakeLock) Unlock() error {
	l.held = false
	return nil
}
