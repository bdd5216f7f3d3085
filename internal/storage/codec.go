package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"ctpy/internal/model"
)

const (
	CurrentSchemaVersion = model.CurrentSchemaVersion
	CurrentCodecVersion  = model.CurrentCodecVersion
)

var (
	ErrVersionMismatch = errors.New("record version mismatch")
	ErrNotFound        = errors.New("record not found")
)

type versioned interface {
	Version() model.VersionedRecord
}

func EncodeRecord[T versioned](record T) ([]byte, error) {
	return json.Marshal(record)
}

func DecodeRecord[T versioned](data []byte) (T, error) {
	var record T
	if err := json.Unmarshal(data, &record); err != nil {
		var zero T
		return zero, err
	}
	if err := checkVersion(record.Version()); err != nil {
		var zero T
		return zero, err
	}
	return record, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return fmt.Errorf("%w: schema=%d codec=%d", ErrVersionMismatch, v.SchemaVersion, v.CodecVersion)
	}
	return nil
}
