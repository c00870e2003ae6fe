package likelihoods

import (
	"github.com/LdDl/replay-go/replay"
	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
)

// ModelFormatVersion is the version written into every serialized model
const ModelFormatVersion = 1

type modelEnvelope struct {
	Version   uint16          `cbor:"version"`
	Algorithm string          `cbor:"algorithm"`
	Family    string          `cbor:"family"`
	Payload   cbor.RawMessage `cbor:"payload"`
}

// MarshalModel encodes a fitted model as CBOR. Float values round-trip bit for bit.
func MarshalModel(model EncodingModel) ([]byte, error) {
	var (
		payload []byte
		family  Family
		err     error
	)
	switch m := model.(type) {
	case *SortedSpikesModel:
		if m == nil {
			return nil, errors.Wrap(replay.ErrInvalidInput, "nil model")
		}
		family = FamilySortedSpikes
		payload, err = cbor.Marshal(m.state)
	case *MultiunitModel:
		if m == nil {
			return nil, errors.Wrap(replay.ErrInvalidInput, "nil model")
		}
		family = FamilyClusterless
		payload, err = cbor.Marshal(m.state)
	default:
		return nil, errors.Wrapf(replay.ErrInvalidInput, "can't serialize model of type %T", model)
	}
	if err != nil {
		return nil, errors.Wrap(err, "can't encode model state")
	}
	data, err := cbor.Marshal(modelEnvelope{
		Version:   ModelFormatVersion,
		Algorithm: model.Algorithm(),
		Family:    family.String(),
		Payload:   payload,
	})
	if err != nil {
		return nil, errors.Wrap(err, "can't encode model envelope")
	}
	return data, nil
}

// UnmarshalModel decodes a model written by MarshalModel. The algorithm must
// be registered and the decoded state must be consistent with it.
func UnmarshalModel(data []byte) (EncodingModel, error) {
	var envelope modelEnvelope
	if err := cbor.Unmarshal(data, &envelope); err != nil {
		return nil, errors.Wrapf(replay.ErrInvalidInput, "can't decode model envelope: %v", err)
	}
	if envelope.Version != ModelFormatVersion {
		return nil, errors.Wrapf(replay.ErrInvalidInput, "unsupported model format version %d", envelope.Version)
	}
	algorithm, err := Lookup(envelope.Algorithm)
	if err != nil {
		return nil, err
	}
	if algorithm.Family().String() != envelope.Family {
		return nil, errors.Wrapf(replay.ErrInvalidInput, "model family %q does not match algorithm %s", envelope.Family, envelope.Algorithm)
	}
	switch algorithm.Family() {
	case FamilySortedSpikes:
		var state sortedSpikesState
		if err := cbor.Unmarshal(envelope.Payload, &state); err != nil {
			return nil, errors.Wrapf(replay.ErrInvalidInput, "can't decode sorted spikes model: %v", err)
		}
		if err := state.validate(envelope.Algorithm); err != nil {
			return nil, err
		}
		return &SortedSpikesModel{state: state}, nil
	default:
		var state multiunitState
		if err := cbor.Unmarshal(envelope.Payload, &state); err != nil {
			return nil, errors.Wrapf(replay.ErrInvalidInput, "can't decode multiunit model: %v", err)
		}
		if err := state.validate(envelope.Algorithm, algorithm.(*MultiunitKDE).quantized()); err != nil {
			return nil, err
		}
		return &MultiunitModel{state: state}, nil
	}
}

func (s sortedSpikesState) validate(algorithm string) error {
	if s.Algorithm != algorithm {
		return errors.Wrapf(replay.ErrInvalidInput, "model state belongs to %s, envelope says %s", s.Algorithm, algorithm)
	}
	if s.NumBins <= 0 {
		return errors.Wrapf(replay.ErrInvalidInput, "model has %d bins", s.NumBins)
	}
	for n, field := range s.PlaceFields {
		if len(field) != s.NumBins {
			return errors.Wrapf(replay.ErrInvalidInput, "place field %d has %d bins, expected %d", n, len(field), s.NumBins)
		}
		for _, rate := range field {
			if !(rate > 0) || !isFiniteValue(rate) {
				return errors.Wrapf(replay.ErrInvalidInput, "place field %d holds rate %v", n, rate)
			}
		}
	}
	return nil
}

func (s multiunitState) validate(algorithm string, quantized bool) error {
	if s.Algorithm != algorithm {
		return errors.Wrapf(replay.ErrInvalidInput, "model state belongs to %s, envelope says %s", s.Algorithm, algorithm)
	}
	if s.NumBins <= 0 {
		return errors.Wrapf(replay.ErrInvalidInput, "model has %d bins", s.NumBins)
	}
	if len(s.Occupancy) != s.NumBins || len(s.SummedGroundIntensity) != s.NumBins {
		return errors.Wrap(replay.ErrInvalidInput, "model bin vectors do not match its bin count")
	}
	nElectrodes := len(s.MeanRates)
	if len(s.NumMarks) != nElectrodes || len(s.EncodingPositions) != nElectrodes {
		return errors.Wrap(replay.ErrInvalidInput, "model electrode vectors disagree")
	}
	if !(s.PositionStd > 0) || !(s.MarkStd > 0) {
		return errors.Wrap(replay.ErrInvalidInput, "model kernel bandwidths must be positive")
	}
	if quantized {
		if s.Quantization == nil || !(s.Quantization.Step > 0) || s.Quantization.Max <= 0 {
			return errors.Wrap(replay.ErrInvalidInput, "integer model lacks a valid mark quantization")
		}
		if len(s.EncodingLevels) != nElectrodes {
			return errors.Wrap(replay.ErrInvalidInput, "model electrode vectors disagree")
		}
		for e, levels := range s.EncodingLevels {
			if len(levels) != len(s.EncodingPositions[e]) {
				return errors.Wrapf(replay.ErrInvalidInput, "electrode %d has mismatched encoding spikes", e)
			}
			for _, row := range levels {
				for _, level := range row {
					if level < 0 || level > s.Quantization.Max {
						return errors.Wrapf(replay.ErrInvalidInput, "electrode %d holds mark level %d outside [0, %d]", e, level, s.Quantization.Max)
					}
				}
			}
		}
		return nil
	}
	if s.Quantization != nil {
		return errors.Wrap(replay.ErrInvalidInput, "float model carries a mark quantization")
	}
	if len(s.EncodingMarks) != nElectrodes {
		return errors.Wrap(replay.ErrInvalidInput, "model electrode vectors disagree")
	}
	for e, marks := range s.EncodingMarks {
		if len(marks) != len(s.EncodingPositions[e]) {
			return errors.Wrapf(replay.ErrInvalidInput, "electrode %d has mismatched encoding spikes", e)
		}
	}
	return nil
}
