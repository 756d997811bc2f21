// internal/monitoring/pool.go - bounded, request-scoped probe workers
package monitoring

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"sitemonitor/internal/database"
)

const DefaultProbeWorkers = 8

type Job struct {
	Index  int
	Host   *database.Host
	Target Target
}

type JobResult struct {
	Job    *Job
	Result HealthResult
}

type Worker struct {
	id      int
	prober  *Prober
	jobs    <-chan *Job
	results chan<- *JobResult
}

// ProbePool runs a batch of probes with at most workers in flight. Workers
// live only for the duration of one Run call.
type ProbePool struct {
	prober  *Prober
	workers int
}

func NewProbePool(prober *Prober, workers int) *ProbePool {
	if workers < 1 {
		workers = DefaultProbeWorkers
	}
	return &ProbePool{prober: prober, workers: workers}
}

// Run probes every job and returns one result per job, in job order. Jobs
// still queued when ctx ends are reported down without being probed.
func (p *ProbePool) Run(ctx context.Context, jobs []*Job) []JobResult {
	if len(jobs) == 0 {
		return nil
	}

	jobQueue := make(chan *Job, len(jobs))
	resultQueue := make(chan *JobResult, len(jobs))

	slot := make(map[*Job]int, len(jobs))
	for i, job := range jobs {
		slot[job] = i
		jobQueue <- job
	}
	close(jobQueue)

	count := p.workers
	if count > len(jobs) {
		count = len(jobs)
	}

	var wg sync.WaitGroup
	for i := 0; i < count; i++ {
		worker := &Worker{
			id:      i,
			prober:  p.prober,
			jobs:    jobQueue,
			results: resultQueue,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker.start(ctx)
		}()
	}

	go func() {
		wg.Wait()
		close(resultQueue)
	}()

	results := make([]JobResult, len(jobs))
	for result := range resultQueue {
		results[slot[result.Job]] = *result
	}

	logrus.WithFields(logrus.Fields{
		"jobs":    len(jobs),
		"workers": count,
	}).Debug("Probe batch completed")

	return results
}

func (w *Worker) start(ctx context.Context) {
	for job := range w.jobs {
		w.results <- w.execute(ctx, job)
	}
}

func (w *Worker) execute(ctx context.Context, job *Job) *JobResult {
	if err := ctx.Err(); err != nil {
		return &JobResult{
			Job:    job,
			Result: HealthResult{URL: job.Target.URL(), Error: err.Error()},
		}
	}
	return &JobResult{Job: job, Result: w.prober.Check(ctx, job.Target)}
}
