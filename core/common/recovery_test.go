package common

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecoverPanicSwallowsPanic(t *testing.T) {
	ctx := context.Background()
	assert.NotPanics(t, func() {
		defer RecoverPanic(ctx, "classify-vote")
		panic("vote exploded")
	})
	assert.NotPanics(t, func() {
		defer RecoverPanic(ctx, "noop")
	})
}

func TestRecoverToError(t *testing.T) {
	ctx := context.Background()

	run := func(shouldPanic bool) (err error) {
		defer RecoverToError(ctx, "vote", &err)
		if shouldPanic {
			panic("boom")
		}
		return nil
	}

	require.NoError(t, run(false))
	err := run(true)
	require.Error(t, err)
	assert.Equal(t, "panic in task vote: boom", err.Error())
}

func TestSafeGo(t *testing.T) {
	ctx := context.Background()

	for name, fn := range map[string]func(done chan<- struct{}){
		"completes": func(done chan<- struct{}) { done <- struct{}{} },
		"panics": func(done chan<- struct{}) {
			defer func() { done <- struct{}{} }()
			panic("intentional panic")
		},
	} {
		t.Run(name, func(t *testing.T) {
			done := make(chan struct{}, 1)
			SafeGo(ctx, "safe-go-"+name, func() { fn(done) })
			select {
			case <-done:
			case <-time.After(time.Second):
				t.Fatal("goroutine did not finish in time")
			}
		})
	}
}
