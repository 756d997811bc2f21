package monitoring

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitemonitor/internal/database"
)

func TestProbePool_BoundsConcurrency(t *testing.T) {
	var inFlight, peak int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&inFlight, 1)
		defer atomic.AddInt32(&inFlight, -1)
		for {
			old := atomic.LoadInt32(&peak)
			if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		_, _ = w.Write([]byte("SCALL-OK"))
	}))
	defer server.Close()

	target := serverTarget(t, server)
	jobs := make([]*Job, 12)
	for i := range jobs {
		jobs[i] = &Job{Index: i, Host: &database.Host{ID: int64(i + 1)}, Target: target}
	}

	results := NewProbePool(NewProber(nil), 3).Run(context.Background(), jobs)
	require.Len(t, results, len(jobs))
	for i, res := range results {
		assert.Same(t, jobs[i], res.Job, "results keep job order")
		assert.True(t, res.Result.Up)
	}
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3))
}

func TestProbePool_ExpiredContextMarksDown(t *testing.T) {
	server := healthServer(http.StatusOK, "SCALL-OK")
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	jobs := []*Job{{Index: 0, Target: serverTarget(t, server)}}
	results := NewProbePool(NewProber(nil), 2).Run(ctx, jobs)
	require.Len(t, results, 1)
	assert.False(t, results[0].Result.Up)
	assert.NotEmpty(t, results[0].Result.Error)
}

func TestProbePool_Empty(t *testing.T) {
	assert.Empty(t, NewProbePool(NewProber(nil), 0).Run(context.Background(), nil))
}
