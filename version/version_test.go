package version_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesosphere/schemamigrate/errors"
	"github.com/mesosphere/schemamigrate/version"
)

func TestRoundTrip(t *testing.T) {
	cases := []version.Version{
		{0, 0, 0},
		{0, 13, 0},
		{1, 2, 3},
		{16, 0, 0},
	}
	for _, v := range cases {
		got, err := version.Parse(version.Serialize(v))
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestParseCorrupt(t *testing.T) {
	cases := [][]byte{
		nil,
		{0, 0, 0},
		{0, 0, 0, 12, 1, 2, 3},
		append(version.Serialize(version.Version{1, 1, 1}), 0xFF),
	}
	for _, b := range cases {
		_, err := version.Parse(b)
		assert.Error(t, err)
		assert.True(t, errors.ErrCorruptVersion.Is(err))
	}
}

func TestCompare(t *testing.T) {
	assert.Equal(t, 0, version.Compare(version.Version{1, 2, 3}, version.Version{1, 2, 3}))
	assert.Equal(t, -1, version.Compare(version.Version{0, 3, 0}, version.Version{0, 13, 0}))
	assert.Equal(t, 1, version.Compare(version.Version{1, 0, 0}, version.Version{0, 99, 99}))
	assert.True(t, version.Less(version.Version{0, 7, 0}, version.Version{0, 11, 0}))
}

func TestCompareTransitiveAndAntisymmetric(t *testing.T) {
	a := version.Version{0, 3, 0}
	b := version.Version{0, 11, 0}
	c := version.Version{0, 13, 0}
	assert.True(t, version.Less(a, b) && version.Less(b, c) && version.Less(a, c))
	assert.Equal(t, version.Compare(a, b), -version.Compare(b, a))
}

func TestIsEmpty(t *testing.T) {
	assert.True(t, version.IsEmpty(version.Version{}))
	assert.True(t, version.IsEmpty(version.Version{0, 0, 0}))
	assert.False(t, version.IsEmpty(version.Version{0, 0, 1}))
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "Version(0, 3, 0)", version.Format(version.Version{0, 3, 0}))
	assert.Equal(t, "Version(0, 3, 0)", version.Version{0, 3, 0}.String())
}

func TestCurrentFromBuild(t *testing.T) {
	v, err := version.CurrentFromBuild("0.16.0-g1a2b3c4")
	require.NoError(t, err)
	assert.Equal(t, version.Version{0, 16, 0}, v)

	v, err = version.CurrentFromBuild("1.2.3")
	require.NoError(t, err)
	assert.Equal(t, version.Version{1, 2, 3}, v)
}

func TestCurrentFromBuildBad(t *testing.T) {
	_, err := version.CurrentFromBuild("not-a-version")
	assert.Error(t, err)
}

func TestMustCurrentFromBuildPanics(t *testing.T) {
	assert.Panics(t, func() {
		version.MustCurrentFromBuild("nope")
	})
}
