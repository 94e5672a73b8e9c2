package useragent_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pazars/grabeklis/internal/adapter/useragent"
)

func TestPool_Fixed(t *testing.T) {
	t.Parallel()

	p := useragent.New("grabeklis/1.0")
	for range 3 {
		assert.Equal(t, "grabeklis/1.0", p.Next())
	}
}

func TestPool_Rotates(t *testing.T) {
	t.Parallel()

	p := useragent.New("")
	first := p.Next()
	second := p.Next()
	assert.NotEqual(t, first, second)

	seen := map[string]bool{first: true, second: true}
	for range 10 {
		seen[p.Next()] = true
	}
	assert.Len(t, seen, 4)
}
