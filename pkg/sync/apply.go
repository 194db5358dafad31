package sync

import (
	goSync "sync"

	log "github.com/sirupsen/logrus"

	"github.com/sidkik/foldersync/pkg/errors"
)

type copyResult struct {
	pair Pair
	err  error
}

// apply copies every pair from the source to the replica. Copies run on a
// bounded pool of workers, and a failed copy doesn't affect the others. Only
// the calling goroutine touches res. It returns once all the copies have been
// attempted.
func (s *Syncer) apply(toCopy []Pair, res *Result) {
	if s.opts.DryRun {
		for _, pair := range toCopy {
			s.log.WithFields(log.Fields{
				"source":  pair.Source,
				"replica": pair.Replica,
			}).Info("Would copy file")
			res.Copied++
		}
		return
	}

	numWorkers := s.opts.Workers
	if len(toCopy) < numWorkers {
		numWorkers = len(toCopy)
	}

	var copyWaitGroup goSync.WaitGroup
	toCopyChan := make(chan Pair, numWorkers*2)
	copyResults := make(chan copyResult, numWorkers)
	for i := 0; i < numWorkers; i++ {
		copyWaitGroup.Add(1)
		go func() {
			defer copyWaitGroup.Done()
			for pair := range toCopyChan {
				copyResults <- copyResult{
					pair: pair,
					err:  s.copyPair(pair),
				}
			}
		}()
	}

	// Feed the copy workers.
	go func() {
		for _, pair := range toCopy {
			toCopyChan <- pair
		}
		close(toCopyChan)

		copyWaitGroup.Wait()
		close(copyResults)
	}()

	for result := range copyResults {
		if result.err != nil {
			s.logFailure(res, Failure{
				Op:      "copy",
				Source:  result.pair.Source,
				Replica: result.pair.Replica,
				Err:     result.err,
			}, "Failed to copy file")
			continue
		}

		s.log.WithFields(log.Fields{
			"source":  result.pair.Source,
			"replica": result.pair.Replica,
		}).Info("Copied file")
		res.Copied++
	}
}

// copyPair copies a single pair. A panic is returned as an error, since the
// workers run outside the goroutine of the caller.
func (s *Syncer) copyPair(pair Pair) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("panic: %v", r)
		}
	}()
	return copyFile(s.fs, pair.Source, pair.Replica)
}
