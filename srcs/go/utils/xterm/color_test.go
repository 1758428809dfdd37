package xterm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestColors(t *testing.T) {
	assert.Equal(t, "\x1b[1;32mrank\x1b[m", Green.S("rank"))
	assert.Equal(t, "rank", NoColor.S("rank"))
	assert.Equal(t, Blue, RankColors.Choose(5))
	assert.Equal(t, NoColor, RankColors.Pick(false).Choose(3))
}
