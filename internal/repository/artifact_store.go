package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"

	"FinFeat/internal/domain/models"
	domrepo "FinFeat/internal/domain/repository"
	"FinFeat/internal/services/scaler"
	"FinFeat/pkg/npy"
	xutil "FinFeat/pkg/util"
)

var (
	ErrArtifactNotFound    = domrepo.ErrArtifactNotFound
	ErrInvalidFamily       = domrepo.ErrInvalidFamily
	ErrInvalidArtifactPath = domrepo.ErrInvalidArtifactPath

	familyRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)
)

// FSArtifactStore lays artifacts out under root:
//
//	{family}_scaler.json
//	{family}_metadata.json
//	{family}/X_train.npy, y_train.npy, X_test.npy, y_test.npy
type FSArtifactStore struct {
	root  string
	width int
}

// NewFSArtifactStore stores artifacts under root; width is the expected scaler length.
func NewFSArtifactStore(root string, width int) *FSArtifactStore {
	return &FSArtifactStore{root: root, width: width}
}

// Root returns the output directory.
func (s *FSArtifactStore) Root() string { return s.root }

// ScalerName is the scaler file name relative to the output directory.
func ScalerName(family string) string { return family + "_scaler.json" }

// MetadataName is the metadata file name relative to the output directory.
func MetadataName(family string) string { return family + "_metadata.json" }

func (s *FSArtifactStore) path(family, name string) (string, error) {
	if !familyRe.MatchString(family) {
		return "", fmt.Errorf("%w: %q", ErrInvalidFamily, family)
	}
	return filepath.Join(s.root, name), nil
}

func (s *FSArtifactStore) SaveScaler(_ context.Context, family string, st models.ScalerState) (string, error) {
	p, err := s.path(family, ScalerName(family))
	if err != nil {
		return "", err
	}
	if err := scaler.Validate(st, s.width); err != nil {
		return "", err
	}
	if err := scaler.WriteFile(p, st); err != nil {
		return "", err
	}
	return ScalerName(family), nil
}

func (s *FSArtifactStore) LoadScaler(_ context.Context, family string) (models.ScalerState, error) {
	p, err := s.path(family, ScalerName(family))
	if err != nil {
		return models.ScalerState{}, err
	}
	st, err := scaler.ReadFile(p, s.width)
	if errors.Is(err, os.ErrNotExist) {
		return models.ScalerState{}, fmt.Errorf("%w: %s", ErrArtifactNotFound, ScalerName(family))
	}
	return st, err
}

func (s *FSArtifactStore) SaveMetadata(_ context.Context, family string, md models.ModelMetadata) (string, error) {
	p, err := s.path(family, MetadataName(family))
	if err != nil {
		return "", err
	}
	err = xutil.WriteFileAtomic(p, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(md)
	})
	if err != nil {
		return "", fmt.Errorf("write metadata: %w", err)
	}
	return MetadataName(family), nil
}

func (s *FSArtifactStore) LoadMetadata(_ context.Context, family string) (models.ModelMetadata, error) {
	p, err := s.path(family, MetadataName(family))
	if err != nil {
		return models.ModelMetadata{}, err
	}
	b, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return models.ModelMetadata{}, fmt.Errorf("%w: %s", ErrArtifactNotFound, MetadataName(family))
	}
	if err != nil {
		return models.ModelMetadata{}, err
	}
	var md models.ModelMetadata
	if err := json.Unmarshal(b, &md); err != nil {
		return models.ModelMetadata{}, fmt.Errorf("decode metadata: %w", err)
	}
	return md, nil
}

// SaveDataset writes the four tensors of a split dataset.
func (s *FSArtifactStore) SaveDataset(_ context.Context, family string, ds *models.Dataset) error {
	dir, err := s.path(family, family)
	if err != nil {
		return err
	}
	writes := []struct {
		name string
		fn   func(w io.Writer) error
	}{
		{"X_train.npy", func(w io.Writer) error { return writeWindows(w, ds.XTrain) }},
		{"y_train.npy", func(w io.Writer) error { return writeLabels(w, ds.YTrain) }},
		{"X_test.npy", func(w io.Writer) error { return writeWindows(w, ds.XTest) }},
		{"y_test.npy", func(w io.Writer) error { return writeLabels(w, ds.YTest) }},
	}
	for _, wr := range writes {
		if err := xutil.WriteFileAtomic(filepath.Join(dir, wr.name), wr.fn); err != nil {
			return fmt.Errorf("write %s/%s: %w", family, wr.name, err)
		}
	}
	return nil
}

// ArtifactSize returns the size in bytes of a file under the output directory.
// rel must stay inside the directory: absolute and ".." paths are rejected.
func (s *FSArtifactStore) ArtifactSize(rel string) (int64, error) {
	if filepath.IsAbs(rel) || !filepath.IsLocal(rel) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidArtifactPath, rel)
	}
	fi, err := os.Stat(filepath.Join(s.root, rel))
	if errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("%w: %s", ErrArtifactNotFound, rel)
	}
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

func writeWindows(w io.Writer, xs [][][]float64) error {
	steps, width := 0, 0
	if len(xs) > 0 {
		steps = len(xs[0])
		if steps > 0 {
			width = len(xs[0][0])
		}
	}
	flat := make([]float32, 0, len(xs)*steps*width)
	for i, win := range xs {
		if len(win) != steps {
			return fmt.Errorf("window %d has %d steps, want %d", i, len(win), steps)
		}
		for _, row := range win {
			if len(row) != width {
				return fmt.Errorf("window %d row width %d, want %d", i, len(row), width)
			}
			for _, v := range row {
				flat = append(flat, float32(v))
			}
		}
	}
	return npy.WriteFloat32(w, []int{len(xs), steps, width}, flat)
}

func writeLabels(w io.Writer, ys []models.Label) error {
	out := make([]int32, len(ys))
	for i, y := range ys {
		out[i] = int32(y)
	}
	return npy.WriteInt32(w, []int{len(ys)}, out)
}

var (
	_ domrepo.ArtifactStore = (*FSArtifactStore)(nil)
	_ domrepo.ArtifactSizer = (*FSArtifactStore)(nil)
)
