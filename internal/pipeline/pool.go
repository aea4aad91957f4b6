package pipeline

import "golang.org/x/sync/errgroup"

type Job func() error

// RunPool executes jobs with at most maxWorkers concurrently. The returned
// slice holds each job's error at the job's index; one failure does not
// stop the others.
func RunPool(maxWorkers int, jobs []Job) []error {
	if maxWorkers < 1 {
		maxWorkers = 1
	}

	var g errgroup.Group
	g.SetLimit(maxWorkers)
	errs := make([]error, len(jobs))
	for i, job := range jobs {
		g.Go(func() error {
			errs[i] = job()
			return nil
		})
	}
	_ = g.Wait()
	return errs
}
