package scaler

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"

	"FinFeat/internal/domain/models"
)

// Legacy binary layout, little-endian:
//
//	"SCLR" | uint32 version (1) | uint32 n | n×float64 mean_ | n×float64 scale_
const (
	legacyMagic   = "SCLR"
	legacyVersion = 1
)

var ErrLegacyFormat = errors.New("scaler: unrecognised legacy format")

// ConvertLegacy decodes a legacy scaler export (binary or JSON attribute
// dump with mean_/scale_) into the document form. Values are copied bit for bit.
func ConvertLegacy(data []byte) (models.ScalerState, error) {
	if bytes.HasPrefix(data, []byte(legacyMagic)) {
		return decodeLegacyBinary(data)
	}
	if gjson.ValidBytes(data) {
		return decodeAttributeDump(data)
	}
	return models.ScalerState{}, ErrLegacyFormat
}

func decodeLegacyBinary(data []byte) (models.ScalerState, error) {
	r := bytes.NewReader(data[len(legacyMagic):])
	var version, n uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return models.ScalerState{}, fmt.Errorf("%w: %v", ErrLegacyFormat, err)
	}
	if version != legacyVersion {
		return models.ScalerState{}, fmt.Errorf("%w: version %d", ErrLegacyFormat, version)
	}
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return models.ScalerState{}, fmt.Errorf("%w: %v", ErrLegacyFormat, err)
	}
	if want := int64(n) * 16; int64(r.Len()) != want {
		return models.ScalerState{}, fmt.Errorf("%w: payload is %d bytes, want %d", ErrLegacyFormat, r.Len(), want)
	}
	st := models.ScalerState{Mean: make([]float64, n), Std: make([]float64, n)}
	if err := binary.Read(r, binary.LittleEndian, st.Mean); err != nil {
		return models.ScalerState{}, err
	}
	if err := binary.Read(r, binary.LittleEndian, st.Std); err != nil {
		return models.ScalerState{}, err
	}
	return st, Validate(st, 0)
}

// EncodeLegacyBinary writes the legacy binary layout.
func EncodeLegacyBinary(st models.ScalerState) ([]byte, error) {
	if len(st.Mean) != len(st.Std) {
		return nil, fmt.Errorf("%w: %d means, %d stds", ErrDimension, len(st.Mean), len(st.Std))
	}
	var buf bytes.Buffer
	buf.WriteString(legacyMagic)
	for _, v := range []any{uint32(legacyVersion), uint32(len(st.Mean)), st.Mean, st.Std} {
		if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// decodeAttributeDump accepts mean_/scale_ at the root or one object level down.
func decodeAttributeDump(data []byte) (models.ScalerState, error) {
	root := gjson.ParseBytes(data)
	holder := root
	if !root.Get("mean_").Exists() {
		holder = gjson.Result{}
		root.ForEach(func(_, v gjson.Result) bool {
			if v.IsObject() && v.Get("mean_").Exists() {
				holder = v
				return false
			}
			return true
		})
	}
	if !holder.Exists() {
		return models.ScalerState{}, fmt.Errorf("%w: no mean_ attribute", ErrLegacyFormat)
	}
	mean, err := floats(holder.Get("mean_"))
	if err != nil {
		return models.ScalerState{}, fmt.Errorf("mean_: %w", err)
	}
	scale, err := floats(holder.Get("scale_"))
	if err != nil {
		return models.ScalerState{}, fmt.Errorf("scale_: %w", err)
	}
	st := models.ScalerState{Mean: mean, Std: scale}
	return st, Validate(st, 0)
}

func floats(r gjson.Result) ([]float64, error) {
	if !r.IsArray() {
		return nil, fmt.Errorf("%w: not an array", ErrLegacyFormat)
	}
	arr := r.Array()
	out := make([]float64, len(arr))
	for i, v := range arr {
		if v.Type != gjson.Number {
			return nil, fmt.Errorf("%w: element %d is %s", ErrLegacyFormat, i, v.Type)
		}
		out[i] = v.Float()
		if math.IsNaN(out[i]) {
			return nil, fmt.Errorf("%w: element %d is NaN", ErrLegacyFormat, i)
		}
	}
	return out, nil
}

// Legacy file suffixes recognised by ConvertFile.
var legacySuffixes = []string{"_scaler.bin", "_scaler.attrs.json"}

// OutputPath maps a legacy file name to its document name (x_scaler.bin -> x_scaler.json).
func OutputPath(path string) (string, bool) {
	for _, suf := range legacySuffixes {
		if strings.HasSuffix(path, suf) {
			return strings.TrimSuffix(path, suf) + "_scaler.json", true
		}
	}
	return "", false
}

// ConvertFile converts one legacy file and writes the document next to it.
func ConvertFile(path string, width int) (string, error) {
	out, ok := OutputPath(path)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrLegacyFormat, filepath.Base(path))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	st, err := ConvertLegacy(data)
	if err != nil {
		return "", err
	}
	if err := Validate(st, width); err != nil {
		return "", err
	}
	return out, WriteFile(out, st)
}

// LegacyFiles lists convertible files in dir.
func LegacyFiles(dir string) ([]string, error) {
	var out []string
	for _, suf := range legacySuffixes {
		matches, err := filepath.Glob(filepath.Join(dir, "*"+suf))
		if err != nil {
			return nil, err
		}
		out = append(out, matches...)
	}
	return out, nil
}
