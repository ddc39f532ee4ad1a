// Package network models steady-state thermodynamic flow sheets: components
// wired by streams, with user specifications on stream properties and
// component parameters. A network assembles its residual equations into a
// square system and drives it to convergence with the solver package.
//
// Typical use connects components, fixes boundary conditions, then calls
// SolveDesign. The design solve captures a snapshot of reference values so
// that later off-design solves can scale component performance with
// characteristic lines.
//
// A Network is not safe for concurrent use.
package network

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pinchsim/pinch/charline"
	"github.com/pinchsim/pinch/fluid"
)

// Mode selects which parameter set a solve uses.
type Mode uint8

const (
	// Design solves with the design specifications and records reference
	// values for off-design characteristics.
	Design Mode = iota
	// Offdesign replaces design-listed specifications with characteristic
	// equations scaled from a design snapshot.
	Offdesign
)

func (m Mode) String() string {
	if m == Offdesign {
		return "offdesign"
	}
	return "design"
}

// Network is a flow sheet under construction and solution.
type Network struct {
	provider fluid.Provider
	chars    charline.Provider

	components []Component
	compIndex  map[string]Component
	streams    []*Stream
	streamIdx  map[string]*Stream

	revision   uint64 // bumped on every topology edit
	warm       map[string]float64
	designSnap *Snapshot
	solved     bool
}

// Option configures a Network at construction.
type Option func(*Network) error

// WithCharacteristics overrides the curve provider used to resolve
// characteristic lines in off-design mode. The default is the package
// registry of the charline package.
func WithCharacteristics(p charline.Provider) Option {
	return func(nw *Network) error {
		if p == nil {
			return fmt.Errorf("network: nil characteristics provider")
		}
		nw.chars = p
		return nil
	}
}

// New returns an empty network computing fluid properties with the given
// provider.
func New(provider fluid.Provider, opts ...Option) (*Network, error) {
	if provider == nil {
		return nil, fmt.Errorf("network: nil fluid provider")
	}
	nw := &Network{
		provider:  provider,
		chars:     charline.Default(),
		compIndex: make(map[string]Component),
		streamIdx: make(map[string]*Stream),
	}
	for _, opt := range opts {
		if err := opt(nw); err != nil {
			return nil, err
		}
	}
	return nw, nil
}

// Add registers components with the network. Connect registers its
// endpoints implicitly, so calling Add is only needed for components that
// should appear in the network before any stream touches them.
func (nw *Network) Add(comps ...Component) error {
	for _, c := range comps {
		if err := nw.adopt(c); err != nil {
			return err
		}
	}
	return nil
}

func (nw *Network) adopt(c Component) error {
	if c == nil {
		return &StructuralError{Context: "network", Reason: "nil component"}
	}
	if c.Label() == "" {
		return &StructuralError{Context: "network", Reason: "component label must not be empty"}
	}
	if prev, ok := nw.compIndex[c.Label()]; ok {
		if prev == c {
			return nil
		}
		return &StructuralError{Context: c.Label(), Reason: "another component already uses this label"}
	}
	if other := c.network(); other != nil && other != nw {
		return &StructuralError{Context: c.Label(), Reason: "component belongs to another network"}
	}
	c.attach(nw)
	nw.components = append(nw.components, c)
	nw.compIndex[c.Label()] = c
	nw.mutateTopology()
	return nil
}

// Connect creates a stream from an outlet port of src to an inlet port of
// dst. Both components are registered with the network if they are not
// already. The label must be unique among streams.
func (nw *Network) Connect(src Component, srcPort string, dst Component, dstPort string, label string) (*Stream, error) {
	if label == "" {
		return nil, &StructuralError{Context: "network", Reason: "stream label must not be empty"}
	}
	if _, dup := nw.streamIdx[label]; dup {
		return nil, &StructuralError{Context: "stream " + label, Reason: "another stream already uses this label"}
	}
	if err := nw.adopt(src); err != nil {
		return nil, err
	}
	if err := nw.adopt(dst); err != nil {
		return nil, err
	}
	if !contains(src.Outlets(), srcPort) {
		return nil, &StructuralError{Context: src.Label(), Reason: "no outlet named " + srcPort}
	}
	if !contains(dst.Inlets(), dstPort) {
		return nil, &StructuralError{Context: dst.Label(), Reason: "no inlet named " + dstPort}
	}

	s := &Stream{
		label:   label,
		src:     src,
		srcPort: srcPort,
		dst:     dst,
		dstPort: dstPort,
		nw:      nw,
	}
	if err := src.bind(srcPort, s); err != nil {
		return nil, err
	}
	if err := dst.bind(dstPort, s); err != nil {
		src.unbind(srcPort)
		return nil, err
	}
	nw.streams = append(nw.streams, s)
	nw.streamIdx[label] = s
	nw.mutateTopology()
	return s, nil
}

// RemoveStream disconnects and removes the stream with the given label.
func (nw *Network) RemoveStream(label string) error {
	s, ok := nw.streamIdx[label]
	if !ok {
		return &StructuralError{Context: "stream " + label, Reason: "no such stream"}
	}
	s.src.unbind(s.srcPort)
	s.dst.unbind(s.dstPort)
	delete(nw.streamIdx, label)
	for i, t := range nw.streams {
		if t == s {
			nw.streams = append(nw.streams[:i], nw.streams[i+1:]...)
			break
		}
	}
	s.nw = nil
	nw.mutateTopology()
	return nil
}

// RemoveComponent removes a component that has no connected streams.
func (nw *Network) RemoveComponent(label string) error {
	c, ok := nw.compIndex[label]
	if !ok {
		return &StructuralError{Context: label, Reason: "no such component"}
	}
	for _, port := range append(append([]string(nil), c.Inlets()...), c.Outlets()...) {
		if s := c.stream(port); s != nil {
			return &StructuralError{Context: label, Reason: "still connected through stream " + s.Label()}
		}
	}
	delete(nw.compIndex, label)
	for i, d := range nw.components {
		if d == c {
			nw.components = append(nw.components[:i], nw.components[i+1:]...)
			break
		}
	}
	c.attach(nil)
	nw.mutateTopology()
	return nil
}

// Stream returns the stream with the given label.
func (nw *Network) Stream(label string) (*Stream, bool) {
	s, ok := nw.streamIdx[label]
	return s, ok
}

// Component returns the component with the given label.
func (nw *Network) Component(label string) (Component, bool) {
	c, ok := nw.compIndex[label]
	return c, ok
}

// Streams returns the streams in insertion order.
func (nw *Network) Streams() []*Stream {
	return append([]*Stream(nil), nw.streams...)
}

// Components returns the components in insertion order.
func (nw *Network) Components() []Component {
	return append([]Component(nil), nw.components...)
}

// Revision identifies the current topology. It increases on every edit;
// snapshots record it and refuse to warm start a different topology.
func (nw *Network) Revision() uint64 { return nw.revision }

// DesignSnapshot returns the snapshot captured by the most recent design
// solve, or nil when none exists for the current topology.
func (nw *Network) DesignSnapshot() *Snapshot { return nw.designSnap }

// Solved reports whether the streams hold a converged solution for the
// current topology and stream specifications. Component parameter edits are
// plain field writes and do not reset it.
func (nw *Network) Solved() bool { return nw.solved }

func (nw *Network) mutateTopology() {
	nw.revision++
	nw.designSnap = nil
	nw.warm = nil
	nw.solved = false
}

// invalidate marks results stale after a specification change. Topology and
// snapshots are unaffected; warm starts survive because the solution cache
// is keyed by variable name.
func (nw *Network) invalidate() {
	nw.solved = false
}

/// Validate checks the topology before assembly: every port connected, every
// stream's composition resolvable, every cyclic block held by a cycle
// closer. It also propagates compositions to the streams that inherit them.
func (nw *Network) Validate() error {
	if len(nw.components) == 0 {
		return &StructuralError{Context: "network", Reason: "no components"}
	}
	for _, c := range nw.components {
		for _, port := range c.Inlets() {
			if c.stream(port) == nil {
				return &StructuralError{Context: c.Label(), Reason: "inlet " + port + " is not connected"}
			}
		}
		for _, port := range c.Outlets() {
			if c.stream(port) == nil {
				return &StructuralError{Context: c.Label(), Reason: "outlet " + port + " is not connected"}
			}
		}
	}
	for _, s := range nw.streams {
		if s.nbStateSpecs() > 2 {
			return &SpecificationError{Context: "stream " + s.label, Reason: "more than two state properties specified"}
		}
	}
	if err := nw.resolveCompositions(); err != nil {
		return err
	}
	return nw.checkLoops()
}

// resolveCompositions propagates user-set compositions through the fluid
// circuits of the components and fails on conflicts or undetermined
// streams.
func (nw *Network) resolveCompositions() error {
	// adjacency between streams that must share one working fluid
	adj := make(map[*Stream][]*Stream)
	for _, c := range nw.components {
		for _, circuit := range c.fluidCircuits() {
			var members []*Stream
			for _, port := range circuit {
				if s := c.stream(port); s != nil {
					members = append(members, s)
				}
			}
			for i := 1; i < len(members); i++ {
				adj[members[0]] = append(adj[members[0]], members[i])
				adj[members[i]] = append(adj[members[i]], members[0])
			}
		}
	}

	visited := make(map[*Stream]bool, len(nw.streams))
	for _, start := range nw.streams {
		if visited[start] {
			continue
		}
		group := []*Stream{start}
		visited[start] = true
		for i := 0; i < len(group); i++ {
			for _, next := range adj[group[i]] {
				if !visited[next] {
					visited[next] = true
					group = append(group, next)
				}
			}
		}

		var source *Stream
		for _, s := range group {
			if !s.compSet {
				continue
			}
			if source == nil {
				source = s
				continue
			}
			if !sameComposition(source.composition, s.composition) {
				return &StructuralError{
					Context: "stream " + s.label,
					Reason:  "composition conflicts with stream " + source.label + " in the same fluid circuit",
				}
			}
		}
		if source == nil {
			sort.Slice(group, func(i, j int) bool { return group[i].label < group[j].label })
			return &StructuralError{
				Context: "stream " + group[0].label,
				Reason:  "no composition specified anywhere in its fluid circuit",
			}
		}
		for _, s := range group {
			if !s.compSet {
				s.composition = source.Composition()
			}
			s.fluidID = fluid.CompositionString(s.composition)
		}
	}

	// probe each distinct fluid so unknown names and unsupported mixtures
	// surface with stream context before iterating starts
	probed := make(map[string]bool)
	for _, s := range nw.streams {
		if probed[s.fluidID] {
			continue
		}
		probed[s.fluidID] = true
		if _, _, err := nw.provider.Critical(s.fluidID); err != nil {
			return fmt.Errorf("network: stream %s: %w", s.label, err)
		}
	}
	return nil
}

// checkLoops verifies that every cyclic block of the flow sheet holds a
// cycle closer. One closer per strongly connected block is enough: it breaks
// the redundant balance chain, and recirculation loops sharing the block are
// pinned through it. A block without any fixes no absolute state and Newton
// iteration on it yields a singular system.
func (nw *Network) checkLoops() error {
	succ := make(map[Component][]Component, len(nw.components))
	for _, c := range nw.components {
		for _, port := range c.Outlets() {
			if s := c.stream(port); s != nil {
				succ[c] = append(succ[c], s.dst)
			}
		}
	}

	// Tarjan, components taken in insertion order so verdicts are
	// deterministic
	index := make(map[Component]int, len(nw.components))
	low := make(map[Component]int, len(nw.components))
	onStack := make(map[Component]bool, len(nw.components))
	var stack []Component
	var blocks [][]Component
	next := 0

	var connect func(c Component)
	connect = func(c Component) {
		index[c] = next
		low[c] = next
		next++
		stack = append(stack, c)
		onStack[c] = true
		for _, d := range succ[c] {
			if _, seen := index[d]; !seen {
				connect(d)
				if low[d] < low[c] {
					low[c] = low[d]
				}
			} else if onStack[d] && index[d] < low[c] {
				low[c] = index[d]
			}
		}
		if low[c] == index[c] {
			var block []Component
			for {
				d := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[d] = false
				block = append(block, d)
				if d == c {
					break
				}
			}
			blocks = append(blocks, block)
		}
	}
	for _, c := range nw.components {
		if _, seen := index[c]; !seen {
			connect(c)
		}
	}

	for _, block := range blocks {
		if !blockCyclic(block, succ) {
			continue
		}
		closed := false
		for _, c := range block {
			if _, ok := c.(*CycleCloser); ok {
				closed = true
				break
			}
		}
		if !closed {
			return &StructuralError{
				Context: "network",
				Reason:  "loop without a cycle closer: " + strings.Join(blockLoop(block, succ), " <- "),
			}
		}
	}
	return nil
}

func blockCyclic(block []Component, succ map[Component][]Component) bool {
	if len(block) > 1 {
		return true
	}
	for _, d := range succ[block[0]] {
		if d == block[0] {
			return true
		}
	}
	return false
}

// blockLoop lists the labels of one directed cycle inside the block, each
// component preceded by its downstream neighbor, for the error message.
func blockLoop(block []Component, succ map[Component][]Component) []string {
	member := make(map[Component]bool, len(block))
	for _, c := range block {
		member[c] = true
	}
	start := block[len(block)-1] // the block's root in visit order

	var path []Component
	visited := map[Component]bool{start: true}
	var walk func(c Component) bool
	walk = func(c Component) bool {
		path = append(path, c)
		for _, d := range succ[c] {
			if d == start {
				return true
			}
			if !member[d] || visited[d] {
				continue
			}
			visited[d] = true
			if walk(d) {
				return true
			}
		}
		path = path[:len(path)-1]
		return false
	}
	walk(start)

	labels := make([]string, len(path))
	for i, c := range path {
		labels[len(path)-1-i] = c.Label()
	}
	return labels
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
