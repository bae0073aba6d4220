package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/inconshreveable/log15"

	"github.com/dmagro/sherpax-supply/internal/rpc"
)

// MaxPageSize is the largest page state_getKeysPaged accepts on stock nodes.
const MaxPageSize = 1000

// Node is the subset of the RPC client the Substrate source uses.
type Node interface {
	GetHeader(ctx context.Context, hash string) (*rpc.Header, error)
	GetBlockHash(ctx context.Context, number uint32) (string, bool, error)
	GetStorage(ctx context.Context, key, at string) ([]byte, bool, error)
	GetKeysPaged(ctx context.Context, prefix string, count uint32, startKey, at string) ([]string, error)
	QueryStorageAt(ctx context.Context, keys []string, at string) (map[string][]byte, error)
}

// Substrate reads balances from a Substrate node's System.Account map.
type Substrate struct {
	node     Node
	pageSize uint32
	log      log15.Logger
}

// NewSubstrate returns a Source backed by node. A page size of zero or above
// MaxPageSize is clamped to MaxPageSize.
func NewSubstrate(node Node, pageSize uint32, logger log15.Logger) *Substrate {
	if pageSize == 0 || pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	if logger == nil {
		logger = log15.New("module", "chain")
		logger.SetHandler(log15.DiscardHandler())
	}
	return &Substrate{node: node, pageSize: pageSize, log: logger}
}

// LatestBlock resolves the best block header to a number and canonical hash.
func (s *Substrate) LatestBlock(ctx context.Context) (uint32, Hash, error) {
	header, err := s.node.GetHeader(ctx, "")
	if err != nil {
		return 0, "", wrapErr("fetch latest header", err)
	}
	if header == nil {
		return 0, "", fmt.Errorf("%w: latest block", ErrNotFound)
	}

	number, err := rpc.ParseBlockNumber(header.Number)
	if err != nil {
		return 0, "", fmt.Errorf("latest header: %w", err)
	}

	hash, err := s.BlockHash(ctx, number)
	if err != nil {
		return 0, "", err
	}
	return number, hash, nil
}

// BlockHash maps a height to its hash.
func (s *Substrate) BlockHash(ctx context.Context, number uint32) (Hash, error) {
	hash, ok, err := s.node.GetBlockHash(ctx, number)
	if err != nil {
		return "", wrapErr(fmt.Sprintf("fetch hash of block %d", number), err)
	}
	if !ok {
		return "", fmt.Errorf("%w: block %d", ErrNotFound, number)
	}
	return Hash(hash), nil
}

// Account reads one System.Account entry.
func (s *Substrate) Account(ctx context.Context, id AccountID, at Hash) (AccountData, error) {
	value, ok, err := s.node.GetStorage(ctx, rpc.EncodeHex(SystemAccountKey(id)), string(at))
	if err != nil {
		return AccountData{}, wrapErr(fmt.Sprintf("fetch account %s", id.Hex()), err)
	}
	if !ok {
		return AccountData{}, fmt.Errorf("%w: account %s at %s", ErrNotFound, id.Hex(), at)
	}
	data, err := DecodeAccountInfo(value)
	if err != nil {
		return AccountData{}, fmt.Errorf("account %s: %w", id.Hex(), err)
	}
	return data, nil
}

// Accounts pages through System.Account in key order.
func (s *Substrate) Accounts(_ context.Context, at Hash) AccountIterator {
	return &pagedAccounts{
		node:     s.node,
		at:       string(at),
		prefix:   rpc.EncodeHex(systemAccountPrefix),
		pageSize: s.pageSize,
		log:      s.log,
	}
}

type pagedAccounts struct {
	node     Node
	at       string
	prefix   string
	pageSize uint32
	log      log15.Logger

	page    []AccountRecord
	pos     int
	lastKey string
	pages   int
	done    bool
	err     error
	cur     AccountRecord
}

func (it *pagedAccounts) Next(ctx context.Context) bool {
	if it.err != nil {
		return false
	}
	for it.pos >= len(it.page) {
		if it.done {
			return false
		}
		if err := it.fetch(ctx); err != nil {
			it.err = err
			return false
		}
	}
	it.cur = it.page[it.pos]
	it.pos++
	return true
}

func (it *pagedAccounts) Record() AccountRecord { return it.cur }

func (it *pagedAccounts) Err() error { return it.err }

func (it *pagedAccounts) fetch(ctx context.Context) error {
	keys, err := it.node.GetKeysPaged(ctx, it.prefix, it.pageSize, it.lastKey, it.at)
	if err != nil {
		return wrapErr(fmt.Sprintf("fetch keys page %d", it.pages+1), err)
	}
	it.pages++
	it.page = it.page[:0]
	it.pos = 0
	if uint32(len(keys)) < it.pageSize {
		it.done = true
	}
	if len(keys) == 0 {
		return nil
	}

	values, err := it.node.QueryStorageAt(ctx, keys, it.at)
	if err != nil {
		return wrapErr(fmt.Sprintf("fetch values page %d", it.pages), err)
	}

	for _, key := range keys {
		value, ok := values[key]
		if !ok || value == nil {
			// Keys and values are read at the same block; a missing value
			// is a node inconsistency.
			it.log.Warn("no value for account key", "key", key, "block", it.at)
			continue
		}

		raw, err := rpc.DecodeHex(key)
		if err != nil {
			return fmt.Errorf("account key %s: %w", key, err)
		}
		id, err := AccountIDFromKey(raw)
		if err != nil {
			return fmt.Errorf("account key %s: %w", key, err)
		}
		data, err := DecodeAccountInfo(value)
		if err != nil {
			return fmt.Errorf("account %s: %w", id.Hex(), err)
		}
		it.page = append(it.page, AccountRecord{ID: id, Data: data})
	}

	it.lastKey = keys[len(keys)-1]
	it.log.Debug("fetched account page", "page", it.pages, "keys", len(keys), "block", it.at)
	return nil
}

func wrapErr(op string, err error) error {
	if errors.Is(err, rpc.ErrTransport) || errors.Is(err, rpc.ErrClosed) {
		return fmt.Errorf("%w: %s: %w", ErrConnection, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
