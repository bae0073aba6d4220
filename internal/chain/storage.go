package chain

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/crypto/blake2b"
	"lukechampine.com/uint128"
)

// System.Account is a map keyed with Blake2_128Concat, so every key is
//
//	twox128("System") ++ twox128("Account") ++ blake2_128(id) ++ id
//
// and the account id can be read back from the last 32 bytes.
var systemAccountPrefix = append(twox128([]byte("System")), twox128([]byte("Account"))...)

const blake2128Len = 16

// SystemAccountPrefix returns the storage prefix shared by all account entries.
func SystemAccountPrefix() []byte {
	return append([]byte(nil), systemAccountPrefix...)
}

// SystemAccountKey returns the full storage key of one account's entry.
//
// Layout:
//
//	twox128("System") ++ twox128("Account") ++ blake2_128(id) ++ id
//
// Parameters:
//   - id: the 32-byte account id
//
// Returns:
//   - 80 bytes: the 32-byte prefix, the 16-byte hash, then id itself
func SystemAccountKey(id AccountID) []byte {
	key := SystemAccountPrefix()
	return append(key, blake2128Concat(id[:])...)
}

// AccountIDFromKey extracts the account id from a System.Account key. The id
// is the trailing 32 bytes; the hash in front of it is not verified.
func AccountIDFromKey(key []byte) (AccountID, error) {
	var id AccountID
	want := len(systemAccountPrefix) + blake2128Len + len(id)
	if len(key) != want {
		return id, fmt.Errorf("storage key has length %d, want %d", len(key), want)
	}
	copy(id[:], key[len(key)-len(id):])
	return id, nil
}

// twox128 is two xxHash64 rounds with seeds 0 and 1, concatenated little-endian.
func twox128(data []byte) []byte {
	out := make([]byte, 16)
	for seed := uint64(0); seed < 2; seed++ {
		d := xxhash.NewWithSeed(seed)
		_, _ = d.Write(data)
		binary.LittleEndian.PutUint64(out[seed*8:], d.Sum64())
	}
	return out
}

func blake2128Concat(data []byte) []byte {
	h, _ := blake2b.New(blake2128Len, nil)
	_, _ = h.Write(data)
	return append(h.Sum(nil), data...)
}

// AccountInfo layouts differ by runtime version in the number of reference
// counters ahead of the balance data:
//
//	nonce u32, consumers u32, providers u32               (12 bytes)
//	nonce u32, consumers u32, providers u32, sufficients  (16 bytes)
//
// followed by free, reserved, misc_frozen, fee_frozen as u128 LE.
const accountDataLen = 4 * 16

// DecodeAccountInfo decodes a SCALE-encoded System.Account value.
//
// Parameters:
//   - b: the raw storage value, 76 bytes (three u32 counters) or 80 bytes
//     (four)
//
// Returns:
//   - the balance fields; the counters are skipped
//   - an error for any other length
func DecodeAccountInfo(b []byte) (AccountData, error) {
	var data AccountData

	var off int
	switch len(b) {
	case 12 + accountDataLen:
		off = 12
	case 16 + accountDataLen:
		off = 16
	default:
		return data, fmt.Errorf("account info has length %d, want %d or %d",
			len(b), 12+accountDataLen, 16+accountDataLen)
	}

	fields := []*uint128.Uint128{&data.Free, &data.Reserved, &data.MiscFrozen, &data.FeeFrozen}
	for i, f := range fields {
		start := off + i*16
		*f = uint128.FromBytes(b[start : start+16])
	}
	return data, nil
}
