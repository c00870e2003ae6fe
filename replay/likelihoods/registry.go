package likelihoods

import (
	"sort"

	"github.com/LdDl/replay-go/replay"
	"github.com/pkg/errors"
)

// Registered algorithm names
const (
	SpikingLikelihoodGLM                  = "spiking_likelihood_glm"
	SpikingLikelihoodKDE                  = "spiking_likelihood_kde"
	SpikingLikelihoodKDEGPU               = "spiking_likelihood_kde_gpu"
	MultiunitLikelihood                   = "multiunit_likelihood"
	MultiunitLikelihoodGPU                = "multiunit_likelihood_gpu"
	MultiunitLikelihoodInteger            = "multiunit_likelihood_integer"
	MultiunitLikelihoodIntegerGPU         = "multiunit_likelihood_integer_gpu"
	MultiunitLikelihoodIntegerGPULogSpace = "multiunit_likelihood_integer_gpu_log"
)

var registry = newRegistry()

func newRegistry() map[string]EncodingAlgorithm {
	cpu := CPUBackend{}
	accelerated := NewDefaultAcceleratedBackend()
	algorithms := []EncodingAlgorithm{
		NewSpikingGLM(SpikingLikelihoodGLM, cpu),
		NewSpikingKDE(SpikingLikelihoodKDE, cpu),
		NewSpikingKDE(SpikingLikelihoodKDEGPU, accelerated),
		NewMultiunitKDE(MultiunitLikelihood, cpu),
		NewMultiunitKDE(MultiunitLikelihoodGPU, accelerated),
		NewMultiunitIntegerKDE(MultiunitLikelihoodInteger, cpu),
		NewMultiunitIntegerKDE(MultiunitLikelihoodIntegerGPU, accelerated),
		NewMultiunitLogKDE(MultiunitLikelihoodIntegerGPULogSpace, accelerated),
	}
	out := make(map[string]EncodingAlgorithm, len(algorithms))
	for _, algorithm := range algorithms {
		out[algorithm.Name()] = algorithm
	}
	return out
}

// Lookup returns the registered algorithm with the given name
func Lookup(name string) (EncodingAlgorithm, error) {
	algorithm, ok := registry[name]
	if !ok {
		return nil, errors.Wrapf(replay.ErrUnknownAlgorithm, "no algorithm named %q", name)
	}
	return algorithm, nil
}

// Names returns every registered name, sorted
func Names() []string {
	return namesOf(func(EncodingAlgorithm) bool { return true })
}

// SortedSpikesAlgorithms returns the sorted names of algorithms consuming spike counts
func SortedSpikesAlgorithms() []string {
	return namesOf(func(a EncodingAlgorithm) bool { return a.Family() == FamilySortedSpikes })
}

// ClusterlessAlgorithms returns the sorted names of algorithms consuming marks
func ClusterlessAlgorithms() []string {
	return namesOf(func(a EncodingAlgorithm) bool { return a.Family() == FamilyClusterless })
}

func namesOf(keep func(EncodingAlgorithm) bool) []string {
	names := make([]string, 0, len(registry))
	for name, algorithm := range registry {
		if keep(algorithm) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
