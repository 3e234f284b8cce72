package drift

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"time"

	"gonum.org/v1/gonum/stat"
)

// referenceSeed makes the synthesized reference sample reproducible across runs
const referenceSeed = 42

// Reference holds the training-time distribution a detector compares against.
// It is computed once at training time and held fixed between retrains.
type Reference struct {
	Timestamp time.Time `json:"timestamp"`
	NSamples  int       `json:"n_samples"`
	Mean      float64   `json:"mean"`
	Std       float64   `json:"std"`
	Sample    []float64 `json:"sample,omitempty"`
}

// LoadReference reads reference statistics persisted at training time
func LoadReference(path string) (*Reference, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read reference statistics: %w", err)
	}

	var ref Reference
	if err := json.Unmarshal(payload, &ref); err != nil {
		return nil, fmt.Errorf("malformed reference statistics: %w", err)
	}
	if len(ref.Sample) == 0 && ref.Std <= 0 {
		return nil, fmt.Errorf("reference statistics carry neither a sample nor a valid std")
	}
	return &ref, nil
}

// NewReferenceFromSample computes reference statistics from training data
func NewReferenceFromSample(sample []float64) *Reference {
	return &Reference{
		Timestamp: time.Now(),
		NSamples:  len(sample),
		Mean:      stat.Mean(sample, nil),
		Std:       stat.StdDev(sample, nil),
		Sample:    sample,
	}
}

// Distribution returns the comparison sample. When only summary statistics
// were persisted, a normal sample is synthesized from them with a fixed seed
// so repeated runs stay deterministic.
func (r *Reference) Distribution() []float64 {
	if len(r.Sample) > 0 {
		return r.Sample
	}

	rng := rand.New(rand.NewSource(referenceSeed))
	sample := make([]float64, 1000)
	for i := range sample {
		sample[i] = rng.NormFloat64()*r.Std + r.Mean
	}
	return sample
}
