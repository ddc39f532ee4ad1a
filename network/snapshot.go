package network

import (
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"

	"github.com/pinchsim/pinch"
	"github.com/pinchsim/pinch/logger"
)

// Snapshot freezes the design point of a network: per-component reference
// values feeding the off-design characteristics, plus the converged
// solution keyed by variable name for warm starts. The structure is flat so
// it serializes losslessly and survives library upgrades.
//
// A snapshot is immutable once captured; treat the maps as read-only.
type Snapshot struct {
	// Version of the library that captured the snapshot.
	Version string `cbor:"version"`
	// Revision of the network topology the snapshot belongs to.
	Revision uint64 `cbor:"revision"`
	// Components maps component label to reference parameter values.
	Components map[string]map[string]float64 `cbor:"components"`
	// Solution maps variable name to converged value.
	Solution map[string]float64 `cbor:"solution"`
}

func (nw *Network) captureSnapshot(x []float64, asm *assembly) (*Snapshot, error) {
	snap := &Snapshot{
		Version:    pinch.Version.String(),
		Revision:   nw.revision,
		Components: make(map[string]map[string]float64, len(nw.components)),
		Solution:   asm.solutionMap(x),
	}
	for _, c := range nw.components {
		refs, err := c.references()
		if err != nil {
			return nil, fmt.Errorf("network: recording design references of %s: %w", c.Label(), err)
		}
		if len(refs) > 0 {
			snap.Components[c.Label()] = refs
		}
	}
	return snap, nil
}

// Reference returns one recorded design value of a component.
func (s *Snapshot) Reference(component, param string) (float64, bool) {
	refs, ok := s.Components[component]
	if !ok {
		return 0, false
	}
	v, ok := refs[param]
	return v, ok
}

// wire strips Snapshot's method set before it meets the codec: cbor honors
// encoding.BinaryMarshaler/BinaryUnmarshaler, so passing *Snapshot itself
// would re-enter MarshalBinary/UnmarshalBinary without bound.
type wire Snapshot

// MarshalBinary encodes the snapshot with deterministic CBOR, so equal
// snapshots produce equal bytes.
func (s *Snapshot) MarshalBinary() ([]byte, error) {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, err
	}
	return em.Marshal((*wire)(s))
}

// UnmarshalBinary decodes a CBOR-encoded snapshot. A version mismatch with
// the running library is logged, not rejected: the layout is stable across
// minor versions.
func (s *Snapshot) UnmarshalBinary(data []byte) error {
	if err := cbor.Unmarshal(data, (*wire)(s)); err != nil {
		return err
	}
	s.warnVersion()
	return nil
}

// WriteTo writes the CBOR encoding of the snapshot to w.
func (s *Snapshot) WriteTo(w io.Writer) (int64, error) {
	data, err := s.MarshalBinary()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(data)
	return int64(n), err
}

// ReadFrom decodes a snapshot from r.
func (s *Snapshot) ReadFrom(r io.Reader) (int64, error) {
	dec := cbor.NewDecoder(r)
	if err := dec.Decode((*wire)(s)); err != nil {
		return int64(dec.NumBytesRead()), err
	}
	s.warnVersion()
	return int64(dec.NumBytesRead()), nil
}

func (s *Snapshot) warnVersion() {
	if s.Version != pinch.Version.String() {
		log := logger.Logger()
		log.Warn().
			Str("snapshot", s.Version).
			Str("library", pinch.Version.String()).
			Msg("snapshot captured by a different library version")
	}
}
