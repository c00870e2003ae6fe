// Package replay discretizes an animal's environment into position bins for
// state-space decoding of neural activity.
//
// An EnvironmentConfig describes either a free 2-D (or N-D) arena or a track
// graph that is linearized into a single coordinate. FitPlaceGrid turns the
// configuration into an immutable FittedEnvironment holding the bin geometry
// and the track-interior mask that every likelihood algorithm in the
// likelihoods subpackage depends on.
package replay
