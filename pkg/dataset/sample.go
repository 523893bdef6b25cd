// Package dataset holds the sample model and the in-memory and on-disk
// collections produced by preparation runs.
package dataset

import "encoding/gob"

func init() {
	// Input payloads travel through interface-typed fields; gob needs the
	// concrete types announced up front.
	gob.Register([]any{})
	gob.Register(map[string]any{})
	gob.Register([]string{})
	gob.Register([]int{})
	gob.Register([]int64{})
	gob.Register([]float32{})
	gob.Register([]float64{})
	gob.Register([][]float64{})
}

// Sample is one record moving through the preparation chain. Inputs maps
// field names to raw or featurized payloads; Outputs carries the numeric
// targets. Stages replace input values instead of mutating them in place,
// so a cloned sample is safe to process on another worker.
type Sample struct {
	ID      int64          `json:"id"`
	Inputs  map[string]any `json:"inputs"`
	Outputs []float64      `json:"outputs"`
}

// Clone returns a copy whose Inputs map and Outputs slice are independent
// of the receiver's.
func (s *Sample) Clone() *Sample {
	out := &Sample{
		ID:      s.ID,
		Inputs:  make(map[string]any, len(s.Inputs)),
		Outputs: make([]float64, len(s.Outputs)),
	}
	for k, v := range s.Inputs {
		out.Inputs[k] = v
	}
	copy(out.Outputs, s.Outputs)
	return out
}
