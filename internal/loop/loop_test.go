package loop

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunsInOrder(t *testing.T) {
	l := New(128)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	var got []int
	for i := range 100 {
		l.Post(func() { got = append(got, i) })
	}
	require.NoError(t, l.Do(func() {}))

	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestSurvivesPanic(t *testing.T) {
	l := New(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	l.Post(func() { panic("boom") })

	ran := false
	require.NoError(t, l.Do(func() { ran = true }))
	assert.True(t, ran)
}

func TestDoAfterStop(t *testing.T) {
	l := New(1)
	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx)
	cancel()
	<-l.Done()

	assert.ErrorIs(t, l.Do(func() {}), ErrStopped)
}

func TestFullQueueKeepsOrder(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		posts   int
		started bool
	}{
		{"spills before run", 2, 10, false},
		{"spills while running", 1, 1000, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New(tt.size)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			if tt.started {
				go l.Run(ctx)
			}

			var got []int
			for i := range tt.posts {
				l.Post(func() { got = append(got, i) })
			}
			if !tt.started {
				go l.Run(ctx)
			}
			require.NoError(t, l.Do(func() {}))

			require.Len(t, got, tt.posts)
			for i, v := range got {
				require.Equal(t, i, v)
			}
		})
	}
}
