// Package gorm provides GORM-based database operations for clusterd.
package gorm

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/newsmesh/clusterd/internal/cluster"
	"github.com/newsmesh/clusterd/pkg/models"
)

// Repository adapts the GORM store to the clustering engine. Every write
// method is a single database transaction.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a repository backed by the given store.
func NewRepository(store *Store) *Repository {
	return &Repository{db: store.DB}
}

// classify wraps a database error with its transience. Connection-level
// failures are worth retrying; everything else is not.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, driver.ErrBadConn),
		errors.Is(err, sql.ErrConnDone),
		errors.Is(err, context.DeadlineExceeded):
		return cluster.NewTransientError(op, err)
	default:
		return cluster.NewFatalError(op, err)
	}
}

// UnclusteredArticles returns processed, unassigned articles with an
// embedding present, newest first. Rows whose stored embedding cannot be
// parsed are dropped with a warning rather than failing the batch.
func (r *Repository) UnclusteredArticles(ctx context.Context, limit int) ([]models.Article, error) {
	query := r.db.WithContext(ctx).
		Where("processed = ?", true).
		Where("cluster_id IS NULL").
		Where("embedding IS NOT NULL").
		Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []Article
	if err := query.Find(&rows).Error; err != nil {
		return nil, classify("fetch unclustered articles", err)
	}

	out := make([]models.Article, 0, len(rows))
	for i := range rows {
		if len(rows[i].Embedding) == 0 {
			log.Warn().Int64("article_id", rows[i].ID).Msg("Dropping article with unparseable embedding")
			continue
		}
		out = append(out, toModelArticle(&rows[i]))
	}
	return out, nil
}

// Clusters returns every cluster, including ones with a missing centroid
// so maintenance can repair them.
func (r *Repository) Clusters(ctx context.Context) ([]models.Cluster, error) {
	var rows []Cluster
	if err := r.db.WithContext(ctx).Order("updated_at DESC").Find(&rows).Error; err != nil {
		return nil, classify("fetch clusters", err)
	}

	out := make([]models.Cluster, 0, len(rows))
	for i := range rows {
		out = append(out, toModelCluster(&rows[i]))
	}
	return out, nil
}

// ClusterMembers returns the articles currently assigned to a cluster.
func (r *Repository) ClusterMembers(ctx context.Context, clusterID string) ([]models.Article, error) {
	var rows []Article
	err := r.db.WithContext(ctx).
		Where("cluster_id = ?", clusterID).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, classify("fetch cluster members", err)
	}

	out := make([]models.Article, 0, len(rows))
	for i := range rows {
		out = append(out, toModelArticle(&rows[i]))
	}
	return out, nil
}

// JoinCluster assigns an article to a cluster and applies the caller's new
// centroid and member count in one transaction.
func (r *Repository) JoinCluster(ctx context.Context, articleID int64, clusterID string, centroid models.Vector, memberCount int) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()

		res := tx.Model(&Article{}).
			Where("id = ? AND cluster_id IS NULL", articleID).
			Updates(map[string]interface{}{
				"cluster_id": clusterID,
				"updated_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		res = tx.Model(&Cluster{}).
			Where("id = ?", clusterID).
			Updates(map[string]interface{}{
				"centroid":     centroid,
				"member_count": memberCount,
				"status":       string(models.StatusUpdated),
				"updated_at":   now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	return classify("join cluster", err)
}

// CreatePair creates a new cluster from two unassigned articles and
// returns its generated ID. Either both articles move or neither does.
func (r *Repository) CreatePair(ctx context.Context, articleA, articleB int64, centroid models.Vector) (string, error) {
	var clusterID string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		c := Cluster{
			Centroid:    centroid,
			MemberCount: 2,
			Status:      string(models.StatusNew),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.Create(&c).Error; err != nil {
			return err
		}
		clusterID = c.ID

		res := tx.Model(&Article{}).
			Where("id IN ? AND cluster_id IS NULL", []int64{articleA, articleB}).
			Updates(map[string]interface{}{
				"cluster_id": c.ID,
				"updated_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 2 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		return "", classify("create cluster pair", err)
	}
	return clusterID, nil
}

// RepairCentroid overwrites a cluster's centroid and member count.
func (r *Repository) RepairCentroid(ctx context.Context, clusterID string, centroid models.Vector, memberCount int) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Cluster{}).
			Where("id = ?", clusterID).
			Updates(map[string]interface{}{
				"centroid":     centroid,
				"member_count": memberCount,
				"status":       string(models.StatusUpdated),
				"updated_at":   time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	return classify("repair centroid", err)
}

// MarkClustersOld transitions clusters not updated since olderThan to OLD
// and returns their IDs.
func (r *Repository) MarkClustersOld(ctx context.Context, olderThan time.Time) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&Cluster{}).
			Where("status <> ? AND updated_at < ?", string(models.StatusOld), olderThan).
			Order("id ASC").
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		return tx.Model(&Cluster{}).
			Where("id IN ?", ids).
			Update("status", string(models.StatusOld)).Error
	})
	if err != nil {
		return nil, classify("mark clusters old", err)
	}
	return ids, nil
}

// Recalculate fixes drifted member counts and removes degenerate clusters
// in one transaction. Articles in a removed cluster are unassigned, and
// articles referencing a cluster that no longer exists are cleared too.
func (r *Repository) Recalculate(ctx context.Context) (*cluster.RecalcResult, error) {
	result := &cluster.RecalcResult{Discrepancies: make(map[string]cluster.CountDrift)}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var clusters []Cluster
		if err := tx.Order("id ASC").Find(&clusters).Error; err != nil {
			return err
		}

		type memberCount struct {
			ClusterID string
			N         int
		}
		var counts []memberCount
		if err := tx.Model(&Article{}).
			Select("cluster_id AS cluster_id, COUNT(*) AS n").
			Where("cluster_id IS NOT NULL").
			Group("cluster_id").
			Scan(&counts).Error; err != nil {
			return err
		}
		actual := make(map[string]int, len(counts))
		for _, c := range counts {
			actual[c.ClusterID] = c.N
		}

		now := time.Now()
		for i := range clusters {
			c := &clusters[i]
			n := actual[c.ID]
			if n != c.MemberCount {
				result.Discrepancies[c.ID] = cluster.CountDrift{Old: c.MemberCount, New: n}
			}

			if n >= 2 {
				if n != c.MemberCount {
					if err := tx.Model(&Cluster{}).
						Where("id = ?", c.ID).
						Updates(map[string]interface{}{"member_count": n, "updated_at": now}).Error; err != nil {
						return err
					}
					result.UpdatedClusterIDs = append(result.UpdatedClusterIDs, c.ID)
				}
				continue
			}

			// Degenerate cluster: unassign whatever it still holds, then drop it.
			if n > 0 {
				var memberIDs []int64
				if err := tx.Model(&Article{}).
					Where("cluster_id = ?", c.ID).
					Order("id ASC").
					Pluck("id", &memberIDs).Error; err != nil {
					return err
				}
				if err := tx.Model(&Article{}).
					Where("cluster_id = ?", c.ID).
					Updates(map[string]interface{}{"cluster_id": nil, "updated_at": now}).Error; err != nil {
					return err
				}
				result.UnassignedArticleIDs = append(result.UnassignedArticleIDs, memberIDs...)
			}
			if err := tx.Delete(&Cluster{}, "id = ?", c.ID).Error; err != nil {
				return err
			}
			result.DeletedClusterIDs = append(result.DeletedClusterIDs, c.ID)
		}

		// References to clusters that no longer exist.
		var orphanIDs []int64
		if err := tx.Model(&Article{}).
			Where("cluster_id IS NOT NULL AND cluster_id NOT IN (SELECT id FROM clusters)").
			Order("id ASC").
			Pluck("id", &orphanIDs).Error; err != nil {
			return err
		}
		if len(orphanIDs) > 0 {
			if err := tx.Model(&Article{}).
				Where("id IN ?", orphanIDs).
				Updates(map[string]interface{}{"cluster_id": nil, "updated_at": now}).Error; err != nil {
				return err
			}
			result.UnassignedArticleIDs = append(result.UnassignedArticleIDs, orphanIDs...)
		}
		return nil
	})
	if err != nil {
		return nil, classify("recalculate member counts", err)
	}
	return result, nil
}
