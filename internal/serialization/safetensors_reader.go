package serialization

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/mixgo-ml/mixgo/internal/tensor"
)

// ReadSafeTensors loads every tensor of a SafeTensors file together with
// its metadata. F32 and F64 tensors are supported; F64 values are narrowed
// to float32. When the metadata carries a checksum it must match.
func ReadSafeTensors(path string) (map[string]*tensor.Tensor, map[string]string, error) {
	//nolint:gosec // G304: File path comes from the run configuration
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() {
		_ = file.Close()
	}()
	tensors, meta, err := DecodeSafeTensors(file)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return tensors, meta, nil
}

// DecodeSafeTensors reads a SafeTensors stream.
func DecodeSafeTensors(r io.Reader) (map[string]*tensor.Tensor, map[string]string, error) {
	var headerSize uint64
	if err := binary.Read(r, binary.LittleEndian, &headerSize); err != nil {
		return nil, nil, fmt.Errorf("failed to read header size: %w", err)
	}
	if headerSize > MaxHeaderSize {
		return nil, nil, ErrHeaderTooLarge
	}
	headerJSON := make([]byte, headerSize)
	if _, err := io.ReadFull(r, headerJSON); err != nil {
		return nil, nil, fmt.Errorf("failed to read header: %w", err)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read tensor data: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(bytes.TrimRight(headerJSON, " "), &raw); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformedHeader, err)
	}

	var meta map[string]string
	if m, ok := raw[metadataKey]; ok {
		if err := json.Unmarshal(m, &meta); err != nil {
			return nil, nil, fmt.Errorf("%w: __metadata__: %v", ErrMalformedHeader, err)
		}
		delete(raw, metadataKey)
	}
	if sum, ok := meta[ChecksumKey]; ok {
		if err := ValidateChecksum(data, sum); err != nil {
			return nil, nil, err
		}
	}

	headers := make(map[string]SafeTensorHeader, len(raw))
	spans := make([]tensorSpan, 0, len(raw))
	for name, msg := range raw {
		if err := ValidateTensorName(name); err != nil {
			return nil, nil, err
		}
		var h SafeTensorHeader
		if err := json.Unmarshal(msg, &h); err != nil {
			return nil, nil, fmt.Errorf("%w: tensor %q: %v", ErrMalformedHeader, name, err)
		}
		headers[name] = h
		spans = append(spans, tensorSpan{name: name, start: h.DataOffsets[0], end: h.DataOffsets[1]})
	}
	if err := validateSpans(spans, int64(len(data))); err != nil {
		return nil, nil, err
	}

	tensors := make(map[string]*tensor.Tensor, len(headers))
	for name, h := range headers {
		t, err := decodeTensor(name, h, data[h.DataOffsets[0]:h.DataOffsets[1]])
		if err != nil {
			return nil, nil, err
		}
		tensors[name] = t
	}
	return tensors, meta, nil
}

func decodeTensor(name string, h SafeTensorHeader, payload []byte) (*tensor.Tensor, error) {
	shape := make(tensor.Shape, len(h.Shape))
	for i, d := range h.Shape {
		shape[i] = int(d)
	}
	var width int
	switch h.DType {
	case "F32":
		width = 4
	case "F64":
		width = 8
	default:
		return nil, fmt.Errorf("%w: tensor %q has dtype %s", ErrUnsupportedDType, name, h.DType)
	}
	if len(payload) != shape.NumElements()*width {
		return nil, &ValidationError{
			Type:    "size_mismatch",
			Tensor:  name,
			Details: fmt.Sprintf("%d bytes for shape %v of %s", len(payload), shape, h.DType),
		}
	}

	values := make([]float32, shape.NumElements())
	for i := range values {
		if width == 4 {
			values[i] = math.Float32frombits(binary.LittleEndian.Uint32(payload[i*4:]))
		} else {
			values[i] = float32(math.Float64frombits(binary.LittleEndian.Uint64(payload[i*8:])))
		}
	}
	t, err := tensor.FromSlice(values, shape)
	if err != nil {
		return nil, fmt.Errorf("tensor %q: %w", name, err)
	}
	return t, nil
}
