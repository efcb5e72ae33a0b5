package models

import "time"

// ClusterStatus reflects how recently a cluster changed.
type ClusterStatus string

const (
	// StatusNew marks a cluster created in the current run.
	StatusNew ClusterStatus = "NEW"
	// StatusUpdated marks a cluster that has received members since creation.
	StatusUpdated ClusterStatus = "UPDATED"
	// StatusOld marks a cluster whose last update is past the staleness
	// window. Consumed downstream; the engine never reads it back.
	StatusOld ClusterStatus = "OLD"
)

// Cluster is a persistent group of semantically similar articles. The
// centroid is the arithmetic mean of member embeddings and member_count
// must equal the number of articles referencing the cluster.
type Cluster struct {
	ID          string        `db:"cluster_id" json:"cluster_id"`
	Centroid    Vector        `db:"centroid" json:"centroid,omitempty"`
	MemberCount int           `db:"member_count" json:"member_count"`
	Status      ClusterStatus `db:"status" json:"status"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time     `db:"updated_at" json:"updated_at"`
}

// Degenerate reports whether the cluster has fewer than two members and
// must not survive a maintenance pass.
func (c *Cluster) Degenerate() bool {
	return c.MemberCount < 2
}
