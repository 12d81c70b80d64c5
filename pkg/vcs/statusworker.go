package vcs

import (
	"sync"
	"sync/atomic"

	"github.com/RahmaniErfan/abstract-folder-sub001/pkg/errors"
)

var errCorrelationMismatch = errors.New("status response correlation mismatch")

// statusWorker serializes status enumeration onto a single background
// goroutine. Requests and responses cross the boundary as messages carrying a
// correlation token, so concurrent callers across different scopes can't be
// handed each other's results.
type statusWorker struct {
	compute   func(root string, ignoredSubpaths []string) (StatusMatrix, error)
	requests  chan statusRequest
	startOnce sync.Once
	nextToken uint64
}

type statusRequest struct {
	token           uint64
	root            string
	ignoredSubpaths []string
	resp            chan statusResponse
}

type statusResponse struct {
	token  uint64
	matrix StatusMatrix
	err    error
}

func newStatusWorker(compute func(string, []string) (StatusMatrix, error)) *statusWorker {
	return &statusWorker{
		compute:  compute,
		requests: make(chan statusRequest),
	}
}

func (w *statusWorker) enumerate(root string, ignoredSubpaths []string) (StatusMatrix, error) {
	w.startOnce.Do(func() {
		go w.run()
	})

	req := statusRequest{
		token:           atomic.AddUint64(&w.nextToken, 1),
		root:            root,
		ignoredSubpaths: ignoredSubpaths,
		resp:            make(chan statusResponse, 1),
	}
	w.requests <- req

	resp := <-req.resp
	if resp.token != req.token {
		return nil, errCorrelationMismatch
	}
	return resp.matrix, resp.err
}

func (w *statusWorker) run() {
	for req := range w.requests {
		matrix, err := w.compute(req.root, req.ignoredSubpaths)
		req.resp <- statusResponse{token: req.token, matrix: matrix, err: err}
	}
}
