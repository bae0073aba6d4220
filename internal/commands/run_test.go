package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"lukechampine.com/uint128"

	"github.com/dmagro/sherpax-supply/internal/chain"
	"github.com/dmagro/sherpax-supply/internal/chain/chaintest"
	"github.com/dmagro/sherpax-supply/internal/config"
	"github.com/dmagro/sherpax-supply/internal/output"
	"github.com/dmagro/sherpax-supply/internal/report"
	"github.com/dmagro/sherpax-supply/internal/rpc"
)

const testBlockHash = "0x1111111111111111111111111111111111111111111111111111111111111111"

// substrateNode is a minimal Substrate JSON-RPC server over WebSocket
// holding System.Account at one block.
type substrateNode struct {
	mu     sync.Mutex
	keys   []string
	values map[string]string
}

func newSubstrateNode() *substrateNode {
	return &substrateNode{values: make(map[string]string)}
}

func (n *substrateNode) put(id chain.AccountID, d chain.AccountData) {
	key := rpc.EncodeHex(chain.SystemAccountKey(id))
	value := make([]byte, 16, 16+64)
	for _, v := range []uint128.Uint128{d.Free, d.Reserved, d.MiscFrozen, d.FeeFrozen} {
		var buf [16]byte
		v.PutBytes(buf[:])
		value = append(value, buf[:]...)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.values[key]; !ok {
		n.keys = append(n.keys, key)
		sort.Strings(n.keys)
	}
	n.values[key] = rpc.EncodeHex(value)
}

func (n *substrateNode) handle(method string, params []json.RawMessage) (interface{}, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	str := func(i int) string {
		var s string
		_ = json.Unmarshal(params[i], &s)
		return s
	}

	switch method {
	case "system_chain":
		return "SherpaX Testnet", nil
	case "system_properties":
		return map[string]interface{}{"ss58Format": 44, "tokenSymbol": "KSX", "tokenDecimals": 18}, nil
	case "chain_getHeader":
		return map[string]string{"number": "0x64"}, nil
	case "chain_getBlockHash":
		return testBlockHash, nil
	case "state_getStorage":
		if v, ok := n.values[str(0)]; ok {
			return v, nil
		}
		return nil, nil
	case "state_getKeysPaged":
		prefix := str(0)
		var count int
		_ = json.Unmarshal(params[1], &count)
		start := str(2)
		out := []string{}
		for _, k := range n.keys {
			if strings.HasPrefix(k, prefix) && k > start && len(out) < count {
				out = append(out, k)
			}
		}
		return out, nil
	case "state_queryStorageAt":
		var keys []string
		_ = json.Unmarshal(params[0], &keys)
		changes := make([][]interface{}, 0, len(keys))
		for _, k := range keys {
			changes = append(changes, []interface{}{k, n.values[k]})
		}
		return []map[string]interface{}{{"block": testBlockHash, "changes": changes}}, nil
	}
	return nil, errors.New("method not found")
}

func (n *substrateNode) serve(t *testing.T) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var req struct {
				ID     uint64            `json:"id"`
				Method string            `json:"method"`
				Params []json.RawMessage `json:"params"`
			}
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			msg := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
			if result, err := n.handle(req.Method, req.Params); err != nil {
				msg["error"] = map[string]interface{}{"code": -32601, "message": err.Error()}
			} else {
				msg["result"] = result
			}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestRunCheckBalance(t *testing.T) {
	output.DisableColors()

	cfg := config.Default()
	node := newSubstrateNode()
	node.put(treasuryID(t, cfg), chaintest.Data(20, 0, 0, 0))
	for i := uint32(1); i <= 25; i++ {
		node.put(chaintest.ID(i), chaintest.Data(100, 1, 10, 4))
	}

	cfg.Node.URL = node.serve(t)
	cfg.Node.PageSize = 10
	cfg.Node.Timeout = 5 * time.Second

	archiveDir := t.TempDir()

	var stdout, stderr bytes.Buffer
	err := RunCheckBalance(context.Background(), CheckBalanceOptions{
		Config:       cfg,
		PrintDetails: true,
		Table:        true,
		ArchiveDir:   archiveDir,
		Stdout:       &stdout,
		Stderr:       &stderr,
		Logger:       quietLogger(),
	})
	require.NoError(t, err)

	lines := readLines(t, stdout.Bytes())
	require.Len(t, lines, 2)

	// 26 accounts: the treasury (20 free) and 25 x (100 free, 1 reserved, lock 10).
	var origin struct {
		Accounts uint32 `json:"accounts"`
		Free     uint64 `json:"free"`
		Locked   uint64 `json:"locked"`
		Block    uint32 `json:"block"`
	}
	require.NoError(t, json.Unmarshal(lines[0]["origin"], &origin))
	assert.Equal(t, uint32(26), origin.Accounts)
	assert.Equal(t, uint64(2520), origin.Free)
	assert.Equal(t, uint64(250), origin.Locked)
	assert.Equal(t, uint32(100), origin.Block)

	assert.JSONEq(t,
		`{"treasury_balance":"20","transferable_exclude_treasury":"2250","locked":"250","reserved":"25","block_number":100}`,
		string(mustMarshal(t, lines[1])))

	assert.Contains(t, stderr.String(), "SherpaX Testnet")
	assert.Contains(t, stderr.String(), "Accounting identity holds")
	assert.Contains(t, stderr.String(), "state_getKeysPaged")

	files, err := filepath.Glob(filepath.Join(archiveDir, "check-balance-*.json"))
	require.NoError(t, err)
	require.Len(t, files, 1)
	raw, err := os.ReadFile(files[0])
	require.NoError(t, err)

	var archived report.Report
	require.NoError(t, json.Unmarshal(raw, &archived))
	assert.Equal(t, "SherpaX Testnet", archived.Chain)
	assert.Equal(t, uint32(26), archived.Accounts)
	assert.True(t, archived.Checked)
	assert.Nil(t, archived.Invariant)
	assert.Equal(t, "2545", archived.Amounts["total_supply"])
	assert.NotEmpty(t, archived.Calls)
}

func TestRunCheckBalanceConnectionRefused(t *testing.T) {
	cfg := config.Default()
	cfg.Node.URL = "ws://127.0.0.1:1"
	cfg.Node.Timeout = time.Second

	var stdout bytes.Buffer
	err := RunCheckBalance(context.Background(), CheckBalanceOptions{
		Config: cfg,
		Stdout: &stdout,
		Stderr: &bytes.Buffer{},
		Logger: quietLogger(),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, chain.ErrConnection))
	assert.Empty(t, stdout.String())
}

func TestRunCheckBalanceDefaultLogger(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FILE", "")

	cfg := config.Default()
	node := newSubstrateNode()
	node.put(treasuryID(t, cfg), chaintest.Data(20, 0, 0, 0))
	for i := uint32(1); i <= 5; i++ {
		node.put(chaintest.ID(i), chaintest.Data(100, 0, 0, 0))
	}
	cfg.Node.URL = node.serve(t)
	cfg.Node.Timeout = 5 * time.Second

	var stdout, stderr bytes.Buffer
	err := RunCheckBalance(context.Background(), CheckBalanceOptions{
		Config:       cfg,
		PrintDetails: true,
		Start:        time.Now().Add(-time.Hour),
		Stdout:       &stdout,
		Stderr:       &stderr,
	})
	require.NoError(t, err)

	// Only report records reach stdout; every log record goes to stderr.
	lines := readLines(t, stdout.Bytes())
	require.Len(t, lines, 2)
	assert.NotContains(t, stdout.String(), "lvl=")
	assert.Contains(t, stderr.String(), "enumeration complete")
	assert.Contains(t, stderr.String(), "supply check passed")

	var origin struct {
		Accounts uint32 `json:"accounts"`
		Elapsed  uint64 `json:"elapsed"`
	}
	require.NoError(t, json.Unmarshal(lines[0]["origin"], &origin))
	assert.Equal(t, uint32(6), origin.Accounts)
	assert.GreaterOrEqual(t, origin.Elapsed, uint64(3600), "elapsed counts from the run's start time")
}

func mustMarshal(t *testing.T, v interface{}) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}
