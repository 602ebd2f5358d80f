// Package index implements the ClusteredIndex and SecondaryIndex
// specializations of a BPlusTree: leaves either carry full byte records
// (clustered) or primary-key back-pointers (secondary).
package index

import (
	"time"

	"github.com/relcore/reldb/pkg/dberrors"
)

// ReduceKey collapses an arbitrary application key to the 32-bit integer
// domain the B+ tree operates over. Integers pass through unchanged;
// 64-bit integers and strings are reduced through a hash, which is
// documented to lose order and admit collisions outside the int32 domain
// (see the key-domain limitation: range queries over hashed keys are not
// semantically meaningful).
func ReduceKey(v any) (int32, error) {
	switch k := v.(type) {
	case int32:
		return k, nil
	case int64:
		return int32(fnv64(uint64(k))), nil
	case string:
		return int32(fnv64a(k)), nil
	case bool:
		if k {
			return 1, nil
		}
		return 0, nil
	case time.Time:
		return int32(fnv64(uint64(k.UnixMilli()))), nil
	default:
		return 0, dberrors.New(dberrors.InvalidArgument, "unsupported key type %T", v)
	}
}

// fnv64 collapses a 64-bit integer to 32 bits via the FNV-1a mixing
// function applied to its 8 big-endian bytes, folding the 64-bit digest
// down with XOR.
func fnv64(x uint64) uint32 {
	const offset64 = 14695981039346656037
	const prime64 = 1099511628211

	h := uint64(offset64)
	for i := 0; i < 8; i++ {
		h ^= (x >> uint(56-8*i)) & 0xff
		h *= prime64
	}
	return uint32(h>>32) ^ uint32(h)
}

// fnv64a is the standard FNV-1a string hash, folded to 32 bits. It is the
// one documented stable hash used for every string key in this engine;
// insert, search, and range all reduce through it identically.
func fnv64a(s string) uint32 {
	const offset64 = 14695981039346656037
	const prime64 = 1099511628211

	h := uint64(offset64)
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime64
	}
	return uint32(h>>32) ^ uint32(h)
}
