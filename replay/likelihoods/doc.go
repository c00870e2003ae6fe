// Package likelihoods implements the encoding models used to decode position
// from neural activity.
//
// Each algorithm pairs a fitter, which learns a spatial (and for clusterless
// data, mark) intensity model from training data, with an estimator, which
// turns new observations into a log-likelihood surface of shape
// (n_time, n_bins). Algorithms are looked up by name through the registry:
//
//	algorithm, err := likelihoods.Lookup("spiking_likelihood_kde")
//	model, err := algorithm.Fit(env, position, likelihoods.NeuralData{Spikes: spikes}, likelihoods.DefaultParams())
//	surface, err := algorithm.Estimate(env, likelihoods.NeuralData{Spikes: decodeSpikes}, model, false)
//
// Bins outside the track interior always get a log-likelihood of -Inf.
package likelihoods
