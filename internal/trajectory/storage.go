/*
Copyright (c) 2026 hortator-ai
SPDX-License-Identifier: MIT
*/

package trajectory

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// StoreValue writes one observation/tool-call field to its own artifact
// file under dir, named "{stem}.{ext}", and returns the relative filename
// the record should reference. Scalars (numbers, bools) are returned
// unchanged for inline embedding rather than spilled to a file, per §4.6's
// storage-variant dispatch:
//   - []byte                -> PNG file
//   - []float64, [][]float64 -> NPY file
//   - map[string]interface{}, []interface{} -> JSON file
//   - string                -> TXT file
//   - everything else       -> returned inline, no file written
func StoreValue(dir, stem string, value interface{}) (filename string, inline interface{}, err error) {
	switch v := value.(type) {
	case nil:
		return "", nil, nil
	case []byte:
		name := stem + ".png"
		if err := os.WriteFile(filepath.Join(dir, name), v, 0o644); err != nil {
			return "", nil, fmt.Errorf("store %s: %w", name, err)
		}
		return name, nil, nil
	case []float64:
		name := stem + ".npy"
		if err := writeNPY1D(filepath.Join(dir, name), v); err != nil {
			return "", nil, fmt.Errorf("store %s: %w", name, err)
		}
		return name, nil, nil
	case [][]float64:
		name := stem + ".npy"
		if err := writeNPY2D(filepath.Join(dir, name), v); err != nil {
			return "", nil, fmt.Errorf("store %s: %w", name, err)
		}
		return name, nil, nil
	case string:
		name := stem + ".txt"
		if err := os.WriteFile(filepath.Join(dir, name), []byte(v), 0o644); err != nil {
			return "", nil, fmt.Errorf("store %s: %w", name, err)
		}
		return name, nil, nil
	case map[string]interface{}, []interface{}:
		name := stem + ".json"
		raw, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return "", nil, fmt.Errorf("store %s: marshal: %w", name, err)
		}
		if err := os.WriteFile(filepath.Join(dir, name), raw, 0o644); err != nil {
			return "", nil, fmt.Errorf("store %s: %w", name, err)
		}
		return name, nil, nil
	default:
		return "", value, nil
	}
}

// writeNPY1D writes a minimal NumPy .npy v1.0 file for a 1-D float64 array,
// enough for the evaluator/trajectory tooling downstream of this recorder
// to load arrays with numpy.load without a round trip through JSON.
func writeNPY1D(path string, data []float64) error {
	header := npyHeader(fmt.Sprintf("(%d,)", len(data)))
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(header); err != nil {
		return err
	}
	return binary.Write(f, binary.LittleEndian, data)
}

func writeNPY2D(path string, data [][]float64) error {
	rows := len(data)
	cols := 0
	if rows > 0 {
		cols = len(data[0])
	}
	header := npyHeader(fmt.Sprintf("(%d, %d)", rows, cols))
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(header); err != nil {
		return err
	}
	for _, row := range data {
		if err := binary.Write(f, binary.LittleEndian, row); err != nil {
			return err
		}
	}
	return nil
}

func npyHeader(shape string) []byte {
	dict := fmt.Sprintf("{'descr': '<f8', 'fortran_order': False, 'shape': %s, }", shape)
	// Pad the header so magic+version+headerlen+dict is a multiple of 64
	// bytes, per the .npy format spec.
	const preludeLen = 10 // magic(6) + version(2) + headerlen(2)
	padded := dict
	for (preludeLen+len(padded)+1)%64 != 0 {
		padded += " "
	}
	padded += "\n"

	buf := make([]byte, 0, preludeLen+len(padded))
	buf = append(buf, 0x93, 'N', 'U', 'M', 'P', 'Y', 1, 0)
	buf = append(buf, byte(len(padded)), byte(len(padded)>>8))
	buf = append(buf, padded...)
	return buf
}
