package identifier

import (
	"bytes"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var hexID = regexp.MustCompile(`^[0-9A-F]{8}$`)

func TestNewShortID_Format(t *testing.T) {
	g := New()
	for i := 0; i < 100; i++ {
		id, err := g.NewShortID()
		require.NoError(t, err)
		assert.Regexp(t, hexID, id)
	}
}

func TestNewShortID_ZeroPadsBytes(t *testing.T) {
	g := NewWithSource(bytes.NewReader([]byte{0x00, 0x0a, 0xff, 0x1b}))
	id, err := g.NewShortID()
	require.NoError(t, err)
	assert.Equal(t, "000AFF1B", id)
}

func TestNewShortID_ShortSource(t *testing.T) {
	g := NewWithSource(bytes.NewReader([]byte{0x01}))
	_, err := g.NewShortID()
	assert.Error(t, err)
}
