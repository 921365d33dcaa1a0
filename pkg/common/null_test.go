package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_parseNullMode(t *testing.T) {
	m, err := ParseNullMode("default")
	require.NoError(t, err)
	assert.Equal(t, DefaultReplacement, m)
	assert.False(t, m.SqlCompatible())

	m, err = ParseNullMode("sql")
	require.NoError(t, err)
	assert.Equal(t, SQLCompatible, m)
	assert.True(t, m.SqlCompatible())

	_, err = ParseNullMode("bogus")
	require.Error(t, err)
}

func Test_nullable(t *testing.T) {
	v := SomeVal(int64(5))
	assert.False(t, v.IsNull())
	assert.Equal(t, int64(5), v.Val)

	n := NullVal[float64]()
	assert.True(t, n.IsNull())
}
