package board

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextColorPicksLowestUnused(t *testing.T) {
	assert.Equal(t, displayPalette[0], nextColor(nil))
	assert.Equal(t, displayPalette[1], nextColor([]string{displayPalette[0]}))

	// a departed participant's color is reused before new ones
	inUse := []string{displayPalette[0], displayPalette[2]}
	assert.Equal(t, displayPalette[1], nextColor(inUse))
}

func TestNextColorWrapsWhenExhausted(t *testing.T) {
	inUse := append([]string(nil), displayPalette...)
	assert.Equal(t, displayPalette[0], nextColor(inUse))

	inUse = append(inUse, displayPalette[0])
	assert.Equal(t, displayPalette[1], nextColor(inUse))
}
