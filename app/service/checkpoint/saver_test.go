package checkpoint

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySaver_PutLatestList(t *testing.T) {
	saver := NewMemorySaver[string]()

	_, ok := saver.Latest("run-1")
	assert.False(t, ok)

	saver.Put("run-1", 0, "decide", "a")
	saver.Put("run-1", 1, "act", "b")
	saver.Put("run-2", 0, "decide", "x")

	latest, ok := saver.Latest("run-1")
	require.True(t, ok)
	assert.Equal(t, 1, latest.Seq)
	assert.Equal(t, "act", latest.Node)
	assert.Equal(t, "b", latest.State)

	list := saver.List("run-1")
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].State)
	assert.Equal(t, 2, saver.Runs())
}

func TestMemorySaver_ListIsCopy(t *testing.T) {
	saver := NewMemorySaver[int]()
	saver.Put("run", 0, "decide", 1)

	list := saver.List("run")
	list[0].State = 42

	latest, _ := saver.Latest("run")
	assert.Equal(t, 1, latest.State)
}

func TestMemorySaver_Delete(t *testing.T) {
	saver := NewMemorySaver[int]()
	saver.Put("run", 0, "decide", 1)

	saver.Delete("run")

	assert.Empty(t, saver.List("run"))
	assert.Zero(t, saver.Runs())
}

func TestMemorySaver_Concurrent(t *testing.T) {
	saver := NewMemorySaver[int]()

	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runID := fmt.Sprintf("run-%d", i%4)
			for step := range 10 {
				saver.Put(runID, step, "decide", step)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 4, saver.Runs())
	assert.Len(t, saver.List("run-0"), 40)
}
