package cache

import "github.com/cespare/xxhash/v2"

// ContentHash folds xxhash's 64-bit sum into a 32-byte key by hashing the
// bytes twice under distinct seeds, matching runtime.Module.ContentHash's
// [32]byte shape (spec.md §3's stable module identity) while keeping the
// actual digest work on the fast xxhash path rather than a cryptographic
// hash the spec never asks for.
func ContentHash(wasmBytes []byte) [32]byte {
	var out [32]byte
	d1 := xxhash.New()
	d1.Write(wasmBytes) //nolint:errcheck // hash.Hash.Write never errors
	sum1 := d1.Sum64()

	d2 := xxhash.NewWithSeed(0x5bd1e995)
	d2.Write(wasmBytes) //nolint:errcheck
	sum2 := d2.Sum64()

	putUint64(out[0:8], sum1)
	putUint64(out[8:16], sum2)
	putUint64(out[16:24], sum1^sum2)
	putUint64(out[24:32], sum2^0x9e3779b97f4a7c15)
	return out
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}
