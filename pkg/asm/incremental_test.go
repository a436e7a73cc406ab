package asm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIncremental_DataPersists(t *testing.T) {
	inc := NewIncremental()
	_, err := inc.Assemble(".byte a 1, 2")
	require.NoError(t, err)

	img, err := inc.Assemble(".byte b 3\nloadb r1, &a\nloadb r2, &b")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, img.Data)
	assert.Equal(t, map[string]uint32{"a": 0, "b": 2}, inc.Symbols())
}

func TestIncremental_NoLimitByDefault(t *testing.T) {
	inc := NewIncremental()
	assert.Equal(t, NoDataLimit, inc.MaxData)

	_, err := inc.Assemble(".zero buf 5000")
	require.NoError(t, err)
	assert.Equal(t, 5000, inc.DataSize())
}

func TestIncremental_ZeroLimitRejectsData(t *testing.T) {
	inc := NewIncremental()
	inc.MaxData = 0

	_, err := inc.Assemble(".byte b 7")
	assert.ErrorIs(t, err, ErrTooLarge)
	assert.Equal(t, 0, inc.DataSize(), "failed call must not change state")

	_, err = inc.Assemble("lconsb r1, 7")
	assert.NoError(t, err)
}

func TestIncremental_LimitApplies(t *testing.T) {
	inc := NewIncremental()
	inc.MaxData = 4

	_, err := inc.Assemble(".long x 1")
	require.NoError(t, err)
	_, err = inc.Assemble(".byte y 1")
	assert.ErrorIs(t, err, ErrTooLarge)
	assert.Equal(t, 4, inc.DataSize())
}
