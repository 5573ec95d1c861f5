package chainrpc

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/cenkalti/backoff"
	"github.com/ybbus/jsonrpc"

	"github.com/lnchan/chand/logging"
)

// FeeTarget is how soon a transaction needs to confirm.
type FeeTarget int

const (
	FeeTargetBackground FeeTarget = iota
	FeeTargetNormal
	FeeTargetHighPriority
)

// Fallback fee rates in sat/kWU for when the backend has no estimate
// yet (fresh regtest node, cold mempool).  253 is the floor a tx can
// have and still relay.
const (
	fallbackBackgroundFee   = int64(253)
	fallbackNormalFee       = int64(2000)
	fallbackHighPriorityFee = int64(5000)
)

// BroadcastError is a rejected sendrawtransaction.
type BroadcastError struct {
	Err error
}

func (e *BroadcastError) Error() string {
	return "broadcast rejected: " + e.Err.Error()
}

// SignError means the wallet could not produce a complete signature set.
type SignError struct {
	Msg string
}

func (e *SignError) Error() string {
	return "sign failed: " + e.Msg
}

// Client is a typed facade over a bitcoind JSON-RPC backend.  It holds
// no state beyond the connection config; every method is a network
// round trip with the client's own retry policy.
type Client struct {
	rpc jsonrpc.RPCClient

	// transient-failure retry knobs; RPC-level errors never retry
	maxRetries uint64
	retryWait  time.Duration
}

// New connects a facade to bitcoind with basic auth.  It doesn't touch
// the network; the first call does.
func New(host, user, pass string) *Client {
	auth := base64.StdEncoding.EncodeToString([]byte(user + ":" + pass))
	rpc := jsonrpc.NewClientWithOpts("http://"+host, &jsonrpc.RPCClientOpts{
		CustomHeaders: map[string]string{
			"Authorization": "Basic " + auth,
		},
	})
	return &Client{
		rpc:        rpc,
		maxRetries: 5,
		retryWait:  time.Second,
	}
}

// call runs one RPC under the retry policy.  Transport failures back
// off and retry; an error the backend itself returns is permanent and
// comes back to the caller as is.
func (c *Client) call(method string, params ...interface{}) (*jsonrpc.RPCResponse, error) {
	var resp *jsonrpc.RPCResponse
	op := func() error {
		r, err := c.rpc.Call(method, params...)
		if err != nil {
			logging.Warnf("chainrpc: %s failed, retrying: %s\n", method, err.Error())
			return err
		}
		if r.Error != nil {
			return backoff.Permanent(fmt.Errorf(
				"%s: %s (code %d)", method, r.Error.Message, r.Error.Code))
		}
		resp = r
		return nil
	}
	err := backoff.Retry(op,
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.retryWait), c.maxRetries))
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// ChainInfo is the slice of getblockchaininfo the node cares about.
type ChainInfo struct {
	Chain         string `json:"chain"`
	Blocks        int32  `json:"blocks"`
	BestBlockHash string `json:"bestblockhash"`
}

func (c *Client) ChainInfo() (*ChainInfo, error) {
	resp, err := c.call("getblockchaininfo")
	if err != nil {
		return nil, err
	}
	info := new(ChainInfo)
	err = resp.GetObject(info)
	if err != nil {
		return nil, err
	}
	return info, nil
}

// EstimateFee returns a feerate in sat/kWU for the given urgency tier.
// Estimation failures fall back to the tier's floor rather than erroring;
// the engine always needs *some* rate.
func (c *Client) EstimateFee(target FeeTarget) int64 {
	var confTarget int
	var fallback int64
	switch target {
	case FeeTargetBackground:
		confTarget, fallback = 144, fallbackBackgroundFee
	case FeeTargetHighPriority:
		confTarget, fallback = 6, fallbackHighPriorityFee
	default:
		confTarget, fallback = 18, fallbackNormalFee
	}

	resp, err := c.call("estimatesmartfee", confTarget)
	if err != nil {
		logging.Warnf("estimatesmartfee: %s, using fallback %d\n", err.Error(), fallback)
		return fallback
	}
	var est struct {
		FeeRate float64 `json:"feerate"`
	}
	err = resp.GetObject(&est)
	if err != nil || est.FeeRate <= 0 {
		return fallback
	}

	// bitcoind reports BTC per kvB; a weight unit is a quarter vbyte
	satPerKw := int64(est.FeeRate * 1e8 / 4)
	if satPerKw < fallbackBackgroundFee {
		satPerKw = fallbackBackgroundFee
	}
	return satPerKw
}

// Broadcast serializes tx and hands it to the backend's mempool.
func (c *Client) Broadcast(tx *wire.MsgTx) error {
	var buf bytes.Buffer
	err := tx.Serialize(&buf)
	if err != nil {
		return err
	}
	_, err = c.call("sendrawtransaction", hex.EncodeToString(buf.Bytes()))
	if err != nil {
		return &BroadcastError{Err: err}
	}
	return nil
}

// CreateRawTx builds an unfunded raw transaction paying the given
// address->BTC outputs, with no inputs.
func (c *Client) CreateRawTx(outputs map[string]float64) (string, error) {
	resp, err := c.call("createrawtransaction", []interface{}{}, outputs)
	if err != nil {
		return "", err
	}
	return resp.GetString()
}

// FundedTx is what fundrawtransaction hands back.
type FundedTx struct {
	Hex       string  `json:"hex"`
	Fee       float64 `json:"fee"`
	ChangePos int     `json:"changepos"`
}

// FundRawTx asks the wallet's coin selection to satisfy the outputs of
// a raw transaction.
func (c *Client) FundRawTx(raw string) (*FundedTx, error) {
	resp, err := c.call("fundrawtransaction", raw)
	if err != nil {
		return nil, err
	}
	funded := new(FundedTx)
	err = resp.GetObject(funded)
	if err != nil {
		return nil, err
	}
	return funded, nil
}

// SignRawTxWithWallet signs every input the wallet can.  A partial
// signature set is an error; funding must never go out half signed.
func (c *Client) SignRawTxWithWallet(raw string) (string, error) {
	resp, err := c.call("signrawtransactionwithwallet", raw)
	if err != nil {
		return "", err
	}
	var signed struct {
		Hex      string `json:"hex"`
		Complete bool   `json:"complete"`
	}
	err = resp.GetObject(&signed)
	if err != nil {
		return "", err
	}
	if !signed.Complete {
		return "", &SignError{Msg: "wallet returned an incomplete signature set"}
	}
	return signed.Hex, nil
}

// NewAddress gets a fresh receive address from the backend wallet.
func (c *Client) NewAddress() (string, error) {
	resp, err := c.call("getnewaddress")
	if err != nil {
		return "", err
	}
	return resp.GetString()
}

// BlockHash returns the main-chain block hash at the given height.
func (c *Client) BlockHash(height int32) (*chainhash.Hash, error) {
	resp, err := c.call("getblockhash", height)
	if err != nil {
		return nil, err
	}
	s, err := resp.GetString()
	if err != nil {
		return nil, err
	}
	return chainhash.NewHashFromStr(s)
}

// BlockHeader fetches a header (stale blocks included) plus its height.
// Built from the verbose response because the raw form carries no height.
func (c *Client) BlockHeader(hash *chainhash.Hash) (*wire.BlockHeader, int32, error) {
	resp, err := c.call("getblockheader", hash.String(), true)
	if err != nil {
		return nil, 0, err
	}
	var vh struct {
		Height            int32  `json:"height"`
		Version           int32  `json:"version"`
		MerkleRoot        string `json:"merkleroot"`
		Time              int64  `json:"time"`
		Nonce             uint32 `json:"nonce"`
		Bits              string `json:"bits"`
		PreviousBlockHash string `json:"previousblockhash"`
	}
	err = resp.GetObject(&vh)
	if err != nil {
		return nil, 0, err
	}

	header := new(wire.BlockHeader)
	header.Version = vh.Version
	header.Timestamp = time.Unix(vh.Time, 0)
	header.Nonce = vh.Nonce

	bits, err := strconv.ParseUint(vh.Bits, 16, 32)
	if err != nil {
		return nil, 0, err
	}
	header.Bits = uint32(bits)

	mr, err := chainhash.NewHashFromStr(vh.MerkleRoot)
	if err != nil {
		return nil, 0, err
	}
	header.MerkleRoot = *mr

	if vh.PreviousBlockHash != "" { // genesis has none
		prev, err := chainhash.NewHashFromStr(vh.PreviousBlockHash)
		if err != nil {
			return nil, 0, err
		}
		header.PrevBlock = *prev
	}
	return header, vh.Height, nil
}

// Block fetches a full block by hash.
func (c *Client) Block(hash *chainhash.Hash) (*wire.MsgBlock, error) {
	resp, err := c.call("getblock", hash.String(), 0)
	if err != nil {
		return nil, err
	}
	s, err := resp.GetString()
	if err != nil {
		return nil, err
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	block := new(wire.MsgBlock)
	err = block.Deserialize(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	return block, nil
}

// ChainName maps chain params onto the name getblockchaininfo reports,
// for the startup sanity check.
func ChainName(params *chaincfg.Params) string {
	switch params.Name {
	case "mainnet":
		return "main"
	case "testnet3":
		return "test"
	case "regtest":
		return "regtest"
	case "signet":
		return "signet"
	}
	return params.Name
}
