package network

import (
	"bytes"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/pinchsim/pinch"
	"github.com/pinchsim/pinch/solver"
)

func solvedSnapshot(t *testing.T) (*heatPumpRig, *Snapshot) {
	t.Helper()
	r := buildHeatPump(t)
	_, err := r.nw.SolveDesign()
	require.NoError(t, err)
	snap := r.nw.DesignSnapshot()
	require.NotNil(t, snap)
	return r, snap
}

func TestSnapshotContents(t *testing.T) {
	assert := require.New(t)
	_, snap := solvedSnapshot(t)

	assert.Equal(pinch.Version.String(), snap.Version)
	assert.Len(snap.Solution, 15)
	assert.Contains(snap.Solution, "1.m")
	assert.Contains(snap.Solution, "2.h")

	// components without reference values are left out
	assert.Contains(snap.Components, "compressor")
	assert.Contains(snap.Components, "evaporator")
	assert.NotContains(snap.Components, "cycle closer")

	eta, ok := snap.Reference("compressor", "eta_s")
	assert.True(ok)
	assert.InDelta(0.8, eta, 1e-12)
	_, ok = snap.Reference("compressor", "nope")
	assert.False(ok)
	_, ok = snap.Reference("nope", "eta_s")
	assert.False(ok)
}

func TestSnapshotRoundTrip(t *testing.T) {
	assert := require.New(t)
	_, snap := solvedSnapshot(t)

	data, err := snap.MarshalBinary()
	assert.NoError(err)
	again, err := snap.MarshalBinary()
	assert.NoError(err)
	assert.True(bytes.Equal(data, again), "deterministic encoding expected")

	var decoded Snapshot
	assert.NoError(decoded.UnmarshalBinary(data))
	assert.Empty(cmp.Diff(*snap, decoded))
}

func TestSnapshotWireFormat(t *testing.T) {
	assert := require.New(t)
	snap := &Snapshot{
		Version:    "0.3.0",
		Revision:   7,
		Components: map[string]map[string]float64{"compressor": {"eta_s": 0.8, "m": 0.12}},
		Solution:   map[string]float64{"1.m": 0.12, "2.h": 1.7e6},
	}

	data, err := snap.MarshalBinary()
	assert.NoError(err)

	// the encoding is the flat struct map itself, inspectable by any cbor
	// reader
	var m map[string]any
	assert.NoError(cbor.Unmarshal(data, &m))
	assert.Contains(m, "version")
	assert.Contains(m, "revision")
	assert.Contains(m, "components")
	assert.Contains(m, "solution")
	assert.Equal("0.3.0", m["version"])
}

func TestSnapshotVersionTolerance(t *testing.T) {
	assert := require.New(t)
	snap := &Snapshot{Version: "0.0.1", Revision: 1, Solution: map[string]float64{"1.m": 1}}

	data, err := snap.MarshalBinary()
	assert.NoError(err)

	// snapshots from another library version load with a warning, the
	// layout is stable
	var restored Snapshot
	assert.NoError(restored.UnmarshalBinary(data))
	assert.Equal("0.0.1", restored.Version)
	assert.Empty(cmp.Diff(*snap, restored))
}

func TestSnapshotWriteToReadFrom(t *testing.T) {
	assert := require.New(t)
	_, snap := solvedSnapshot(t)

	var buf bytes.Buffer
	n, err := snap.WriteTo(&buf)
	assert.NoError(err)
	assert.Equal(int64(buf.Len()), n)

	var decoded Snapshot
	m, err := decoded.ReadFrom(&buf)
	assert.NoError(err)
	assert.Equal(n, m)
	assert.Empty(cmp.Diff(*snap, decoded))
}

func TestRestoredSnapshotSolvesOffDesign(t *testing.T) {
	assert := require.New(t)

	r := buildHeatPump(t)
	assert.NoError(r.cp.SetDesignParams("eta_s"))
	assert.NoError(r.cp.SetOffdesignParams("eta_s_char"))
	_, err := r.nw.SolveDesign()
	assert.NoError(err)
	data, err := r.nw.DesignSnapshot().MarshalBinary()
	assert.NoError(err)

	// a fresh network built through the same edits lands on the same
	// revision and accepts the restored snapshot
	fresh := buildHeatPump(t)
	assert.NoError(fresh.cp.SetDesignParams("eta_s"))
	assert.NoError(fresh.cp.SetOffdesignParams("eta_s_char"))

	var snap Snapshot
	assert.NoError(snap.UnmarshalBinary(data))
	res, err := fresh.nw.SolveOffDesign(&snap)
	assert.NoError(err)
	assert.Equal(solver.Converged, res.Status)
	assert.LessOrEqual(res.Iterations, 1)

	st1, err := fresh.s1.State()
	assert.NoError(err)
	assert.InDelta(snap.Solution["1.m"], st1.M, 1e-9)
}

func TestOffDesignRequiresSnapshot(t *testing.T) {
	assert := require.New(t)
	r := buildHeatPump(t)

	_, err := r.nw.SolveOffDesign(nil)
	assert.ErrorIs(err, ErrNoDesignSnapshot)
}

func TestStaleSnapshotRejected(t *testing.T) {
	assert := require.New(t)
	r, snap := solvedSnapshot(t)

	// any topology edit invalidates captured snapshots
	assert.NoError(r.nw.RemoveStream("5"))
	assert.Nil(r.nw.DesignSnapshot())

	_, err := r.nw.SolveOffDesign(snap)
	assert.ErrorIs(err, ErrStaleSnapshot)
}
