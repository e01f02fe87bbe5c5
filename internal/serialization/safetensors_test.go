package serialization

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mixgo-ml/mixgo/internal/tensor"
)

func mustTensor(t *testing.T, data []float32, shape tensor.Shape) *tensor.Tensor {
	t.Helper()
	x, err := tensor.FromSlice(data, shape)
	require.NoError(t, err)
	return x
}

// encode builds a raw SafeTensors stream from a header and a payload.
func encode(t *testing.T, header map[string]any, payload []byte) []byte {
	t.Helper()
	headerJSON, err := json.Marshal(header)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint64(len(headerJSON))))
	buf.Write(headerJSON)
	buf.Write(payload)
	return buf.Bytes()
}

func TestSafeTensorsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.safetensors")

	stateDict := map[string]*tensor.Tensor{
		"backbone.0.weight": mustTensor(t, []float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3}),
		"backbone.0.bias":   mustTensor(t, []float32{0.1, 0.2}, tensor.Shape{2}),
		"head.scale":        mustTensor(t, []float32{-7.5}, tensor.Shape{1}),
	}
	require.NoError(t, WriteSafeTensors(path, stateDict, map[string]string{"epoch": "3"}))

	loaded, meta, err := ReadSafeTensors(path)
	require.NoError(t, err)
	require.Len(t, loaded, len(stateDict))
	for name, want := range stateDict {
		got, ok := loaded[name]
		require.True(t, ok, name)
		assert.Equal(t, want.Shape(), got.Shape(), name)
		assert.Equal(t, want.Data(), got.Data(), name)
	}
	assert.Equal(t, "3", meta["epoch"])
	assert.Len(t, meta[ChecksumKey], 64)
}

func TestSafeTensorsHeaderIsAligned(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aligned.safetensors")
	require.NoError(t, WriteSafeTensors(path, map[string]*tensor.Tensor{
		"w": mustTensor(t, []float32{1}, tensor.Shape{1}),
	}, nil))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	headerSize := binary.LittleEndian.Uint64(raw[:8])
	assert.Zero(t, headerSize%8)
	assert.Equal(t, uint64(len(raw)-8-4), headerSize)
}

func TestSafeTensorsDetectsCorruption(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.safetensors")
	require.NoError(t, WriteSafeTensors(path, map[string]*tensor.Tensor{
		"w": mustTensor(t, []float32{1, 2, 3, 4}, tensor.Shape{4}),
	}, nil))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	_, _, err = ReadSafeTensors(path)
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestDecodeSafeTensorsF64WithoutChecksum(t *testing.T) {
	payload := make([]byte, 16)
	binary.LittleEndian.PutUint64(payload, math.Float64bits(1.5))
	binary.LittleEndian.PutUint64(payload[8:], math.Float64bits(-2))
	stream := encode(t, map[string]any{
		"x": SafeTensorHeader{DType: "F64", Shape: []int64{2}, DataOffsets: [2]int64{0, 16}},
	}, payload)

	tensors, meta, err := DecodeSafeTensors(bytes.NewReader(stream))
	require.NoError(t, err)
	assert.Nil(t, meta)
	assert.Equal(t, []float32{1.5, -2}, tensors["x"].Data())
}

func TestDecodeSafeTensorsRejects(t *testing.T) {
	tests := []struct {
		name    string
		header  map[string]any
		payload []byte
		wantErr error
		errType string
	}{
		{
			name: "unsupported dtype",
			header: map[string]any{
				"x": SafeTensorHeader{DType: "BF16", Shape: []int64{2}, DataOffsets: [2]int64{0, 4}},
			},
			payload: make([]byte, 4),
			wantErr: ErrUnsupportedDType,
		},
		{
			name: "out of bounds",
			header: map[string]any{
				"x": SafeTensorHeader{DType: "F32", Shape: []int64{4}, DataOffsets: [2]int64{0, 16}},
			},
			payload: make([]byte, 8),
			errType: "out_of_bounds",
		},
		{
			name: "overlap",
			header: map[string]any{
				"a": SafeTensorHeader{DType: "F32", Shape: []int64{2}, DataOffsets: [2]int64{0, 8}},
				"b": SafeTensorHeader{DType: "F32", Shape: []int64{2}, DataOffsets: [2]int64{4, 12}},
			},
			payload: make([]byte, 12),
			errType: "offset_overlap",
		},
		{
			name: "size mismatch",
			header: map[string]any{
				"x": SafeTensorHeader{DType: "F32", Shape: []int64{3}, DataOffsets: [2]int64{0, 8}},
			},
			payload: make([]byte, 8),
			errType: "size_mismatch",
		},
		{
			name: "empty name",
			header: map[string]any{
				"": SafeTensorHeader{DType: "F32", Shape: []int64{1}, DataOffsets: [2]int64{0, 4}},
			},
			payload: make([]byte, 4),
			wantErr: ErrInvalidTensorName,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := DecodeSafeTensors(bytes.NewReader(encode(t, tt.header, tt.payload)))
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			if tt.errType != "" {
				var verr *ValidationError
				require.True(t, errors.As(err, &verr), "got %v", err)
				assert.Equal(t, tt.errType, verr.Type)
			}
		})
	}
}

func TestDecodeSafeTensorsHeaderTooLarge(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint64(MaxHeaderSize+1)))
	_, _, err := DecodeSafeTensors(&buf)
	assert.ErrorIs(t, err, ErrHeaderTooLarge)
}

func TestWriteSafeTensorsRejectsReservedName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.safetensors")
	err := WriteSafeTensors(path, map[string]*tensor.Tensor{
		metadataKey: mustTensor(t, []float32{1}, tensor.Shape{1}),
	}, nil)
	assert.ErrorIs(t, err, ErrInvalidTensorName)
}

func TestValidateChecksum(t *testing.T) {
	data := []byte("mixgo")
	sum := ComputeChecksum(data)
	assert.NoError(t, ValidateChecksum(data, sum))
	assert.ErrorIs(t, ValidateChecksum([]byte("mixgO"), sum), ErrChecksumMismatch)
}
