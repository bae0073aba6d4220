package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
)

// GetHeader calls chain_getHeader. An empty hash asks for the best block.
// The returned header is nil when the node does not know the block.
func (c *Client) GetHeader(ctx context.Context, hash string) (*Header, error) {
	var header *Header
	var err error
	if hash == "" {
		err = c.CallFor(ctx, &header, "chain_getHeader")
	} else {
		err = c.CallFor(ctx, &header, "chain_getHeader", hash)
	}
	return header, err
}

// GetBlockHash calls chain_getBlockHash for a block height. The boolean is
// false when the height is unknown (not yet produced or pruned).
func (c *Client) GetBlockHash(ctx context.Context, number uint32) (string, bool, error) {
	var hash *string
	if err := c.CallFor(ctx, &hash, "chain_getBlockHash", number); err != nil {
		return "", false, err
	}
	if hash == nil {
		return "", false, nil
	}
	return *hash, true, nil
}

// GetStorage calls state_getStorage at the given block. The boolean is false
// when the slot is empty.
func (c *Client) GetStorage(ctx context.Context, key, at string) ([]byte, bool, error) {
	var value *string
	if err := c.CallFor(ctx, &value, "state_getStorage", key, at); err != nil {
		return nil, false, err
	}
	if value == nil {
		return nil, false, nil
	}
	b, err := DecodeHex(*value)
	if err != nil {
		return nil, false, &ParseError{Method: "state_getStorage", Err: err}
	}
	return b, true, nil
}

// GetKeysPaged calls state_getKeysPaged: up to count keys with the given
// prefix, strictly after startKey (empty = from the beginning), in
// lexicographic order.
func (c *Client) GetKeysPaged(ctx context.Context, prefix string, count uint32, startKey, at string) ([]string, error) {
	var start interface{}
	if startKey != "" {
		start = startKey
	}
	var keys []string
	if err := c.CallFor(ctx, &keys, "state_getKeysPaged", prefix, count, start, at); err != nil {
		return nil, err
	}
	return keys, nil
}

// QueryStorageAt calls state_queryStorageAt and flattens the change sets into
// a key -> value map. Empty slots map to nil.
func (c *Client) QueryStorageAt(ctx context.Context, keys []string, at string) (map[string][]byte, error) {
	var sets []StorageChangeSet
	if err := c.CallFor(ctx, &sets, "state_queryStorageAt", keys, at); err != nil {
		return nil, err
	}

	values := make(map[string][]byte, len(keys))
	for _, set := range sets {
		for _, change := range set.Changes {
			if change[0] == nil {
				continue
			}
			if change[1] == nil {
				values[*change[0]] = nil
				continue
			}
			b, err := DecodeHex(*change[1])
			if err != nil {
				return nil, &ParseError{Method: "state_queryStorageAt", Err: err}
			}
			values[*change[0]] = b
		}
	}
	return values, nil
}

// SystemChain calls system_chain and returns the chain name.
func (c *Client) SystemChain(ctx context.Context) (string, error) {
	var name string
	err := c.CallFor(ctx, &name, "system_chain")
	return name, err
}

// SystemProperties calls system_properties.
func (c *Client) SystemProperties(ctx context.Context) (*ChainProperties, error) {
	var raw struct {
		SS58Format    *uint16         `json:"ss58Format"`
		TokenSymbol   json.RawMessage `json:"tokenSymbol"`
		TokenDecimals json.RawMessage `json:"tokenDecimals"`
	}
	if err := c.CallFor(ctx, &raw, "system_properties"); err != nil {
		return nil, err
	}

	props := &ChainProperties{SS58Format: raw.SS58Format}

	var symbols []string
	var symbol string
	switch {
	case json.Unmarshal(raw.TokenSymbol, &symbol) == nil:
		props.TokenSymbol = symbol
	case json.Unmarshal(raw.TokenSymbol, &symbols) == nil && len(symbols) > 0:
		props.TokenSymbol = symbols[0]
	}

	var decimals []uint8
	var decimal uint8
	switch {
	case json.Unmarshal(raw.TokenDecimals, &decimal) == nil:
		props.TokenDecimals = &decimal
	case json.Unmarshal(raw.TokenDecimals, &decimals) == nil && len(decimals) > 0:
		props.TokenDecimals = &decimals[0]
	}

	return props, nil
}

// ParseBlockNumber decodes a header number, which Substrate sends as a hex
// string, into a u32 block height.
func ParseBlockNumber(hex string) (uint32, error) {
	n, err := ParseHexUint64(hex)
	if err != nil {
		return 0, err
	}
	if n > uint64(^uint32(0)) {
		return 0, fmt.Errorf("block number %s overflows u32", strconv.FormatUint(n, 10))
	}
	return uint32(n), nil
}
