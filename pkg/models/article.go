// Package models contains domain models for clusterd.
package models

import "time"

// Article is a news article as seen by the clustering engine: an id, an
// embedding, and an optional cluster reference. Content extraction and
// embedding generation happen upstream; the engine only reads embeddings
// and writes cluster references.
type Article struct {
	ID        int64     `db:"id" json:"id"`
	Embedding Vector    `db:"embedding" json:"embedding,omitempty"`
	ClusterID *string   `db:"cluster_id" json:"cluster_id,omitempty"`
	Processed bool      `db:"processed" json:"processed"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Clustered reports whether the article has been assigned to a cluster.
func (a *Article) Clustered() bool {
	return a.ClusterID != nil && *a.ClusterID != ""
}
