package signals

import (
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"
)

// EncodeVector stores an embedding as a JSON float array.
func EncodeVector(v []float32) (datatypes.JSON, error) {
	if len(v) == 0 {
		return datatypes.JSON([]byte("[]")), nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode vector: %w", err)
	}
	return datatypes.JSON(raw), nil
}

// DecodeVector is the inverse of EncodeVector. Empty/null columns decode to nil.
func DecodeVector(raw datatypes.JSON) ([]float32, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var v []float32
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode vector: %w", err)
	}
	if len(v) == 0 {
		return nil, nil
	}
	return v, nil
}
