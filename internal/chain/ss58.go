package chain

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcutil/base58"
	"golang.org/x/crypto/blake2b"
)

// AccountID is a 32-byte Substrate account identifier (a public key).
type AccountID [32]byte

// Hex returns the 0x-prefixed hex form of the account id.
func (id AccountID) Hex() string {
	return "0x" + hex.EncodeToString(id[:])
}

// DefaultSS58Prefix is the generic Substrate address format.
const DefaultSS58Prefix uint16 = 42

const checksumLen = 2

var ss58Pre = []byte("SS58PRE")

// DecodeSS58 parses an SS58 address into its account id and network prefix.
// Both the one-byte (< 64) and two-byte (64..16383) prefix forms are accepted.
func DecodeSS58(addr string) (AccountID, uint16, error) {
	var id AccountID

	data := base58.Decode(addr)
	if len(data) == 0 {
		return id, 0, fmt.Errorf("%w: %q is not valid base58", ErrConfiguration, addr)
	}

	var prefix uint16
	var prefixLen int
	switch {
	case data[0] < 64:
		prefix, prefixLen = uint16(data[0]), 1
	case data[0] < 128:
		if len(data) < 2 {
			return id, 0, fmt.Errorf("%w: %q is too short", ErrConfiguration, addr)
		}
		lower := (data[0]&0x3f)<<2 | data[1]>>6
		upper := data[1] & 0x3f
		prefix, prefixLen = uint16(lower)|uint16(upper)<<8, 2
	default:
		return id, 0, fmt.Errorf("%w: %q has a reserved address prefix", ErrConfiguration, addr)
	}

	if len(data) != prefixLen+len(id)+checksumLen {
		return id, 0, fmt.Errorf("%w: %q has unexpected length %d", ErrConfiguration, addr, len(data))
	}

	body := data[:prefixLen+len(id)]
	sum := ss58Checksum(body)
	if !bytes.Equal(sum[:checksumLen], data[len(body):]) {
		return id, 0, fmt.Errorf("%w: %q has an invalid checksum", ErrConfiguration, addr)
	}

	copy(id[:], data[prefixLen:])
	return id, prefix, nil
}

// EncodeSS58 renders an account id as an SS58 address for the given prefix.
func EncodeSS58(id AccountID, prefix uint16) string {
	var body []byte
	if prefix < 64 {
		body = append(body, byte(prefix))
	} else {
		first := byte((prefix&0x00fc)>>2) | 0x40
		second := byte(prefix>>8) | byte(prefix&0x03)<<6
		body = append(body, first, second)
	}
	body = append(body, id[:]...)

	sum := ss58Checksum(body)
	return base58.Encode(append(body, sum[:checksumLen]...))
}

func ss58Checksum(body []byte) [blake2b.Size]byte {
	buf := make([]byte, 0, len(ss58Pre)+len(body))
	buf = append(buf, ss58Pre...)
	buf = append(buf, body...)
	return blake2b.Sum512(buf)
}
