// Package gorm provides GORM-based database operations for clusterd.
package gorm

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/newsmesh/clusterd/pkg/models"
)

// Article is a row in the articles table. Embeddings are stored as JSON
// text; models.Vector tolerates legacy bracketed formats on scan.
type Article struct {
	ID        int64         `gorm:"primaryKey;autoIncrement"`
	Embedding models.Vector `gorm:"type:text"`
	ClusterID *string       `gorm:"type:varchar(36);index:idx_articles_cluster_id"`
	Processed bool          `gorm:"not null;default:false;index:idx_articles_processed"`
	CreatedAt time.Time     `gorm:"not null;index:idx_articles_created_at"`
	UpdatedAt time.Time     `gorm:"not null"`
}

// TableName returns the table name for GORM.
func (Article) TableName() string {
	return "articles"
}

// Cluster is a row in the clusters table.
type Cluster struct {
	ID          string        `gorm:"primaryKey;type:varchar(36)"`
	Centroid    models.Vector `gorm:"type:text"`
	MemberCount int           `gorm:"not null;default:0"`
	Status      string        `gorm:"type:varchar(16);not null;default:'NEW';index:idx_clusters_status"`
	CreatedAt   time.Time     `gorm:"not null"`
	UpdatedAt   time.Time     `gorm:"not null;index:idx_clusters_updated_at"`
}

// TableName returns the table name for GORM.
func (Cluster) TableName() string {
	return "clusters"
}

// BeforeCreate assigns a UUID when none is set.
func (c *Cluster) BeforeCreate(*gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

func toModelArticle(a *Article) models.Article {
	return models.Article{
		ID:        a.ID,
		Embedding: a.Embedding,
		ClusterID: a.ClusterID,
		Processed: a.Processed,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func toModelCluster(c *Cluster) models.Cluster {
	return models.Cluster{
		ID:          c.ID,
		Centroid:    c.Centroid,
		MemberCount: c.MemberCount,
		Status:      models.ClusterStatus(c.Status),
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}
