package scaler

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"FinFeat/internal/domain/models"
	xutil "FinFeat/pkg/util"
)

// Encode writes the {"mean":[...],"std":[...]} document.
func Encode(w io.Writer, st models.ScalerState) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(st)
}

// Decode reads a scaler document and checks it has width columns.
func Decode(r io.Reader, width int) (models.ScalerState, error) {
	var st models.ScalerState
	if err := json.NewDecoder(r).Decode(&st); err != nil {
		return models.ScalerState{}, fmt.Errorf("decode scaler: %w", err)
	}
	if err := Validate(st, width); err != nil {
		return models.ScalerState{}, err
	}
	return st, nil
}

// WriteFile writes the document atomically.
func WriteFile(path string, st models.ScalerState) error {
	if err := xutil.WriteFileAtomic(path, func(w io.Writer) error { return Encode(w, st) }); err != nil {
		return fmt.Errorf("write scaler %s: %w", path, err)
	}
	return nil
}

func ReadFile(path string, width int) (models.ScalerState, error) {
	f, err := os.Open(path)
	if err != nil {
		return models.ScalerState{}, err
	}
	defer f.Close()
	return Decode(f, width)
}
