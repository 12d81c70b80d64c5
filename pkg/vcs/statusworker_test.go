package vcs

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusWorkerCorrelation(t *testing.T) {
	// Each scope reports a matrix containing only its own root, so a
	// misrouted response is immediately visible.
	worker := newStatusWorker(func(root string, _ []string) (StatusMatrix, error) {
		return StatusMatrix{root: StateSynced}, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		root := fmt.Sprintf("/scope-%d", i)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				matrix, err := worker.enumerate(root, nil)
				assert.NoError(t, err)
				assert.Equal(t, StatusMatrix{root: StateSynced}, matrix)
			}
		}()
	}
	wg.Wait()
}

func TestStatusWorkerPropagatesErrors(t *testing.T) {
	expErr := fmt.Errorf("corrupt index")
	worker := newStatusWorker(func(string, []string) (StatusMatrix, error) {
		return nil, expErr
	})

	_, err := worker.enumerate("/scope", nil)
	assert.Equal(t, expErr, err)
}
