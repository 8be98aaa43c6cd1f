package pacing_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/autoreplyd/engine/internal/pacing"
)

func TestPacer_BeforeReplyDelay_WithinBounds(t *testing.T) {
	t.Parallel()
	p := pacing.New()
	for i := 0; i < 200; i++ {
		d := p.BeforeReplyDelay()
		assert.GreaterOrEqual(t, d, 800*time.Millisecond)
		assert.Less(t, d, 3500*time.Millisecond)
	}
}

func TestPacer_AfterReplyDelay_WithinBounds(t *testing.T) {
	t.Parallel()
	p := pacing.New()
	for i := 0; i < 200; i++ {
		d := p.AfterReplyDelay()
		assert.GreaterOrEqual(t, d, time.Second)
		assert.Less(t, d, 2500*time.Millisecond)
	}
}

func TestPacer_BatchSize_WithinBounds(t *testing.T) {
	t.Parallel()
	p := pacing.New()
	for i := 0; i < 200; i++ {
		n := p.BatchSize()
		assert.GreaterOrEqual(t, n, 8)
		assert.Less(t, n, 16)
	}
}

func TestPacer_InterVideoDelay_WithinBounds(t *testing.T) {
	t.Parallel()
	p := pacing.New()
	for i := 0; i < 200; i++ {
		d := p.InterVideoDelay()
		assert.GreaterOrEqual(t, d, 5*time.Second)
		assert.Less(t, d, 15*time.Second)
	}
}
