// Package serialization reads and writes tensors in the SafeTensors format.
//
// Checkpoints and pretrained weights are plain SafeTensors files:
//
//	Format Structure:
//	  [8 bytes: header size N (uint64 LE)]
//	  [N bytes: JSON header, space padded to a multiple of 8]
//	  [tensor data: raw little-endian bytes, tensors in name order]
//
// The JSON header maps every tensor name to its dtype, shape and byte range
// in the data section, plus an optional "__metadata__" map of strings. The
// writer records the SHA-256 of the data section in the metadata under
// "sha256" and the reader verifies it when present.
//
// Example usage:
//
//	meta := map[string]string{"epoch": "12"}
//	if err := serialization.WriteSafeTensors("epoch_12.safetensors", stateDict, meta); err != nil {
//	    log.Fatal(err)
//	}
//
//	stateDict, meta, err := serialization.ReadSafeTensors("epoch_12.safetensors")
//	if err != nil {
//	    log.Fatal(err)
//	}
package serialization
