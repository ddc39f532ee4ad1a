package pinch

import (
	"testing"

	"github.com/blang/semver/v4"
	"github.com/stretchr/testify/require"
)

func TestVersion(t *testing.T) {
	assert := require.New(t)

	// snapshots embed the version string; it must round-trip through semver
	parsed, err := semver.ParseTolerant(Version.String())
	assert.NoError(err)
	assert.Equal(0, parsed.Compare(Version))

	assert.Empty(Version.Pre, "tagged releases only")
	assert.Empty(Version.Build)
}

func TestFluids(t *testing.T) {
	assert := require.New(t)

	names := Fluids()
	assert.Contains(names, "ammonia")
	assert.Contains(names, "water")
	assert.IsIncreasing(names)
}
