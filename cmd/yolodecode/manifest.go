package main

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/nvr-ai/go-yolo-decode/images"
	"github.com/nvr-ai/go-yolo-decode/inference"
	"github.com/nvr-ai/go-yolo-decode/inference/tensors"
)

// Manifest describes a dump of one inference: the letterbox used for the
// input and the raw head outputs in decode order.
type Manifest struct {
	Letterbox images.Letterbox `yaml:"letterbox"`
	Outputs   []OutputFile     `yaml:"outputs"`
}

// OutputFile is one raw tensor dump.
type OutputFile struct {
	inference.OutputSpec `yaml:",inline"`
	// DType is int8, uint8 or float32. float32 files are little-endian.
	DType string `yaml:"dtype"`
	Dims  []int  `yaml:"dims"`
	File  string `yaml:"file"`
}

// LoadManifest reads a manifest and the tensor files it names. Relative
// file paths are resolved against the manifest's directory.
func LoadManifest(path string) (Manifest, []tensors.Raw, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, nil, errors.Wrap(err, "read manifest")
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, nil, errors.Wrap(err, "parse manifest")
	}
	if m.Letterbox.Scale == 0 {
		m.Letterbox = images.IdentityLetterbox()
	}

	dir := filepath.Dir(path)
	raws := make([]tensors.Raw, 0, len(m.Outputs))
	for _, o := range m.Outputs {
		file := o.File
		if !filepath.IsAbs(file) {
			file = filepath.Join(dir, file)
		}
		raw, err := o.load(file)
		if err != nil {
			return Manifest{}, nil, errors.Wrapf(err, "output %q", o.Name)
		}
		raws = append(raws, raw)
	}
	return m, raws, nil
}

func (o OutputFile) load(path string) (tensors.Raw, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return tensors.Raw{}, err
	}
	raw := tensors.Raw{Name: o.Name, Dims: o.Dims, ZeroPoint: o.ZeroPoint, Scale: o.Scale}

	switch o.DType {
	case "int8":
		data := make([]int8, len(buf))
		for i, b := range buf {
			data[i] = int8(b)
		}
		raw.Data = data
	case "uint8":
		raw.Data = buf
	case "float32":
		if len(buf)%4 != 0 {
			return tensors.Raw{}, errors.Errorf("%d bytes is not a whole number of float32", len(buf))
		}
		data := make([]float32, len(buf)/4)
		if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, data); err != nil {
			return tensors.Raw{}, err
		}
		raw.Data = data
		raw.ZeroPoint, raw.Scale = 0, 1
	default:
		return tensors.Raw{}, errors.Wrapf(tensors.ErrUnsupportedType, "dtype %q", o.DType)
	}
	return raw, nil
}
