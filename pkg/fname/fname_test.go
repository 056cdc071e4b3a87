package fname

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateRoundTrip(t *testing.T) {
	name := Generate("index", 42)
	assert.Equal(t, "index_00042.blk", name)

	idx, err := ParseIndex(name, "index")
	require.NoError(t, err)
	assert.Equal(t, 42, idx)
}

func TestGenerateLargeIndexStillParses(t *testing.T) {
	name := Generate("index", 123456)
	idx, err := ParseIndex(name, "index")
	require.NoError(t, err)
	assert.Equal(t, 123456, idx)
}

func TestParseIndexRejectsWrongPrefix(t *testing.T) {
	_, err := ParseIndex("temp_00001.blk", "index")
	assert.Error(t, err)
}

func TestParseIndexRejectsMalformed(t *testing.T) {
	_, err := ParseIndex("index_abc.blk", "index")
	assert.Error(t, err)
}
