package network

// Source feeds a stream into the network. It contributes no equations;
// boundary conditions are specified on its outlet stream.
type Source struct{ base }

// NewSource returns a source with a single outlet port out1.
func NewSource(label string) *Source {
	return &Source{base: newBase(label, nil, []string{"out1"}, nil)}
}

func (s *Source) Equations(*EquationContext) error { return nil }

func (s *Source) fluidCircuits() [][]string { return nil }

func (s *Source) seedLinks() []seedLink { return nil }

// Sink absorbs a stream leaving the network. It contributes no equations.
type Sink struct{ base }

// NewSink returns a sink with a single inlet port in1.
func NewSink(label string) *Sink {
	return &Sink{base: newBase(label, []string{"in1"}, nil, nil)}
}

func (s *Sink) Equations(*EquationContext) error { return nil }

func (s *Sink) fluidCircuits() [][]string { return nil }

func (s *Sink) seedLinks() []seedLink { return nil }
