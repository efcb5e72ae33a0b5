package cluster

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newsmesh/clusterd/pkg/models"
)

func defaultOptions() Options {
	return Options{
		Threshold:       0.82,
		MergeThreshold:  0.90,
		EmbeddingDim:    testDim,
		BatchLimit:      1000,
		StalenessWindow: 72 * time.Hour,
		Retry:           fastRetry(),
	}
}

func TestDriverFullRun(t *testing.T) {
	repo := newFakeRepo()
	repo.addCluster("c1", models.Vector{1, 0, 0}, 3, models.StatusUpdated, time.Now())
	clusteredArticle(repo, 11, models.Vector{1, 0, 0}, "c1")
	clusteredArticle(repo, 12, models.Vector{1, 0.01, 0}, "c1")
	clusteredArticle(repo, 13, models.Vector{1, -0.01, 0}, "c1")

	repo.addArticle(1, models.Vector{0.97, 0.2431049, 0}) // joins c1, sim 0.97
	repo.addArticle(2, models.Vector{0, 1, 0})            // pairs with 3
	repo.addArticle(3, models.Vector{0, 0.98, 0.1989975}) // sim to 2 = 0.98
	repo.addArticle(4, models.Vector{0, 0, 1})            // stays pending
	repo.addArticle(5, models.Vector{0, 0, 0})            // skipped

	driver := NewDriver(repo, &fakeLock{}, defaultOptions())
	summary, err := driver.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, summary.Processed)
	assert.Equal(t, 1, summary.Joined)
	assert.Equal(t, 1, summary.Created)
	assert.Equal(t, 1, summary.Pending)
	assert.Equal(t, 1, summary.Skipped)
	assert.Contains(t, summary.SkipReasons, int64(5))
	assert.NotNil(t, summary.PreMaintenance)
	assert.NotNil(t, summary.PostMaintenance)

	// Every surviving cluster has at least two members and a count matching
	// its actual membership.
	require.Len(t, repo.clusters, 2)
	for id, c := range repo.clusters {
		members, err := repo.ClusterMembers(context.Background(), id)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, c.MemberCount, 2)
		assert.Equal(t, len(members), c.MemberCount)
	}
}

func TestDriverBusyLockAbortsBeforeRepositoryAccess(t *testing.T) {
	repo := newFakeRepo()
	repo.addArticle(1, models.Vector{1, 0, 0})
	repo.addArticle(2, models.Vector{1, 0.01, 0})

	lock := &fakeLock{held: true} // another run is in progress

	driver := NewDriver(repo, lock, defaultOptions())
	summary, err := driver.Run(context.Background())

	assert.ErrorIs(t, err, ErrPipelineBusy)
	assert.Nil(t, summary)
	assert.Equal(t, 0, repo.writes)
	assert.True(t, lock.held, "a busy run must not release the other run's lock")
}

func TestDriverReleasesLock(t *testing.T) {
	repo := newFakeRepo()
	lock := &fakeLock{}

	driver := NewDriver(repo, lock, defaultOptions())
	_, err := driver.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, lock.held)
}

func TestDriverValidatesOptions(t *testing.T) {
	tests := []struct {
		name string
		mut  func(*Options)
	}{
		{"threshold too low", func(o *Options) { o.Threshold = 0 }},
		{"threshold too high", func(o *Options) { o.Threshold = 1 }},
		{"merge below threshold", func(o *Options) { o.MergeThreshold = 0.5 }},
		{"non-positive dimension", func(o *Options) { o.EmbeddingDim = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := defaultOptions()
			tt.mut(&opts)
			driver := NewDriver(newFakeRepo(), &fakeLock{}, opts)
			_, err := driver.Run(context.Background())
			assert.Error(t, err)
		})
	}
}

func TestDriverStopsOnCancelledContext(t *testing.T) {
	repo := newFakeRepo()
	for id := int64(1); id <= 10; id++ {
		repo.addArticle(id, models.Vector{1, 0, 0})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	driver := NewDriver(repo, &fakeLock{}, defaultOptions())
	summary, err := driver.Run(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, summary)
	assert.Zero(t, summary.Processed)
}

func TestDriverRunIsRepeatable(t *testing.T) {
	repo := newFakeRepo()
	repo.addArticle(1, vecA)
	repo.addArticle(2, vecB)

	driver := NewDriver(repo, &fakeLock{}, defaultOptions())
	first, err := driver.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first.Created)

	// Nothing left to do: the second run processes zero articles and
	// changes nothing.
	repo.writes = 0
	second, err := driver.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, second.Processed)
	assert.Equal(t, 0, repo.writes)
}
