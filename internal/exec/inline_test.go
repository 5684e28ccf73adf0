package exec

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInline_RunsImmediately(t *testing.T) {
	var in Inline
	ran := false
	assert.True(t, in.Post(func() { ran = true }))
	assert.True(t, ran)
	assert.False(t, in.Post(nil))
}

func TestInline_NestedPostRunsAfterCurrent(t *testing.T) {
	var in Inline
	var got []string
	in.Post(func() {
		got = append(got, "outer-start")
		in.Post(func() { got = append(got, "inner") })
		got = append(got, "outer-end")
	})
	assert.Equal(t, []string{"outer-start", "outer-end", "inner"}, got)
}

func TestInline_SerializesConcurrentPosts(t *testing.T) {
	var in Inline
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			in.Post(func() { counter++ })
		}()
	}
	wg.Wait()
	in.Post(func() {})
	assert.Equal(t, 50, counter)
}

func TestInline_SurvivesPanic(t *testing.T) {
	var in Inline
	in.Post(func() { panic("boom") })
	ran := false
	in.Post(func() { ran = true })
	assert.True(t, ran)
}
