package storage

import (
	"encoding/json"
	"errors"

	"clustenm/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

func EncodeRunParameters(p model.RunParameters) ([]byte, error) {
	return json.Marshal(p)
}

func DecodeRunParameters(data []byte) (model.RunParameters, error) {
	var params model.RunParameters
	if err := json.Unmarshal(data, &params); err != nil {
		return model.RunParameters{}, err
	}
	if err := checkVersion(params.VersionedRecord); err != nil {
		return model.RunParameters{}, err
	}
	return params, nil
}

func EncodeGeneration(g model.GenerationRecord) ([]byte, error) {
	return json.Marshal(g)
}

func DecodeGeneration(data []byte) (model.GenerationRecord, error) {
	var record model.GenerationRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return model.GenerationRecord{}, err
	}
	if err := checkVersion(record.VersionedRecord); err != nil {
		return model.GenerationRecord{}, err
	}
	return record, nil
}

func EncodeEnsemble(e model.EnsembleRecord) ([]byte, error) {
	return json.Marshal(e)
}

func DecodeEnsemble(data []byte) (model.EnsembleRecord, error) {
	var record model.EnsembleRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return model.EnsembleRecord{}, err
	}
	if err := checkVersion(record.VersionedRecord); err != nil {
		return model.EnsembleRecord{}, err
	}
	return record, nil
}

func EncodeDomainAssignment(a model.DomainAssignment) ([]byte, error) {
	return json.Marshal(a)
}

func DecodeDomainAssignment(data []byte) (model.DomainAssignment, error) {
	var assignment model.DomainAssignment
	if err := json.Unmarshal(data, &assignment); err != nil {
		return model.DomainAssignment{}, err
	}
	if err := checkVersion(assignment.VersionedRecord); err != nil {
		return model.DomainAssignment{}, err
	}
	return assignment, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
