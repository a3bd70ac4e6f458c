package chainclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chainscout/walletrader/pkg/types"
)

const (
	solanaMinSpacing   = 100 * time.Millisecond
	solanaFanOut       = 6
	solanaSigPageLimit = 50
)

// SolanaClient fetches signatures for an address then the transaction
// details for each, classifying buy/sell from pre/post SPL token balance
// diffs. Signature fetch and detail fetch within one wallet's batch run
// concurrently (bounded fan-out); database writes happen after, serially,
// in the caller.
type SolanaClient struct {
	httpClient *http.Client
	rpcURL     string
	limiter    *spacingLimiter
	cursors    *cursorCache
	logger     *zap.Logger
	requestID  uint64
	idMu       sync.Mutex
}

// NewSolanaClient builds a Solana chain client against the given JSON-RPC
// endpoint (a public or keyed RPC URL resolved by the caller).
func NewSolanaClient(rpcURL string, logger *zap.Logger) *SolanaClient {
	return &SolanaClient{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		rpcURL:     rpcURL,
		limiter:    newSpacingLimiter(solanaMinSpacing),
		cursors:    newCursorCache(),
		logger:     logger,
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type signatureInfo struct {
	Signature string `json:"signature"`
	BlockTime *int64 `json:"blockTime"`
	Err       any    `json:"err"`
}

func (c *SolanaClient) nextID() uint64 {
	c.idMu.Lock()
	defer c.idMu.Unlock()
	c.requestID++
	return c.requestID
}

func (c *SolanaClient) call(ctx context.Context, method string, params []any, out any) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: c.nextID(), Method: method, Params: params})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("solana rpc request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("rate limited by solana rpc")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("solana rpc status %d", resp.StatusCode)
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode solana rpc response: %w", err)
	}
	if envelope.Error != nil {
		return fmt.Errorf("solana rpc error %d: %s", envelope.Error.Code, envelope.Error.Message)
	}
	if out != nil {
		return json.Unmarshal(envelope.Result, out)
	}
	return nil
}

// GetRecentTokenTransfers fetches signatures newer than sinceCursor and
// their parsed token-balance-diff transfers.
func (c *SolanaClient) GetRecentTokenTransfers(ctx context.Context, wallet string, chain types.Chain, sinceCursor string) ([]*types.Transfer, string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, sinceCursor, err
	}

	lastSig := sinceCursor
	if cur, ok := c.cursors.get(wallet); ok {
		lastSig = cur
	}

	params := []any{wallet, map[string]any{"limit": solanaSigPageLimit}}
	var sigs []signatureInfo
	if err := c.call(ctx, "getSignaturesForAddress", params, &sigs); err != nil {
		return nil, sinceCursor, fmt.Errorf("get signatures: %w", err)
	}

	// Signatures arrive newest-first; stop once we reach the cursor.
	var fresh []signatureInfo
	for _, s := range sigs {
		if s.Signature == lastSig {
			break
		}
		if s.Err != nil {
			continue
		}
		fresh = append(fresh, s)
	}
	if len(fresh) == 0 {
		return nil, lastSig, nil
	}

	type detailResult struct {
		sig       string
		transfers []*types.Transfer
		err       error
	}
	results := make(chan detailResult, len(fresh))
	sem := make(chan struct{}, solanaFanOut)
	var wg sync.WaitGroup

	for _, s := range fresh {
		s := s
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			transfers, err := c.fetchAndParseTransaction(ctx, wallet, chain, s)
			results <- detailResult{sig: s.Signature, transfers: transfers, err: err}
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	var allTransfers []*types.Transfer
	var fetchErr error
	for r := range results {
		if r.err != nil {
			c.logger.Warn("solana transaction fetch failed", zap.String("signature", r.sig), zap.Error(r.err))
			if fetchErr == nil {
				fetchErr = fmt.Errorf("get transaction %s: %w", r.sig, r.err)
			}
			continue
		}
		allTransfers = append(allTransfers, r.transfers...)
	}
	// Any failed detail fetch reports the wallet as failed and leaves its
	// cursor where it was, so the missed signatures are fetched next tick.
	if fetchErr != nil {
		return nil, sinceCursor, fetchErr
	}

	// Newest signature processed becomes the new cursor (fresh[0] is newest).
	newCursor := fresh[0].Signature
	c.cursors.set(wallet, newCursor)
	return allTransfers, newCursor, nil
}

type tokenBalance struct {
	Owner   string `json:"owner"`
	Mint    string `json:"mint"`
	UITokenAmount struct {
		UIAmountString string `json:"uiAmountString"`
		Decimals       int    `json:"decimals"`
	} `json:"uiTokenAmount"`
}

func (c *SolanaClient) fetchAndParseTransaction(ctx context.Context, wallet string, chain types.Chain, sig signatureInfo) ([]*types.Transfer, error) {
	var tx struct {
		BlockTime int64 `json:"blockTime"`
		Meta      struct {
			PreTokenBalances  []tokenBalance `json:"preTokenBalances"`
			PostTokenBalances []tokenBalance `json:"postTokenBalances"`
		} `json:"meta"`
	}

	params := []any{sig.Signature, map[string]any{"encoding": "jsonParsed", "maxSupportedTransactionVersion": 0}}
	if err := c.call(ctx, "getTransaction", params, &tx); err != nil {
		return nil, err
	}

	pre := map[string]tokenBalance{}
	for _, b := range tx.Meta.PreTokenBalances {
		if b.Owner == wallet {
			pre[b.Mint] = b
		}
	}

	var transfers []*types.Transfer
	for _, post := range tx.Meta.PostTokenBalances {
		if post.Owner != wallet {
			continue
		}
		preAmount := decimal.Zero
		if p, ok := pre[post.Mint]; ok {
			preAmount, _ = decimal.NewFromString(p.UITokenAmount.UIAmountString)
		}
		postAmount, _ := decimal.NewFromString(post.UITokenAmount.UIAmountString)
		diff := postAmount.Sub(preAmount)
		if diff.IsZero() {
			continue
		}

		action := types.ActionSell
		amount := diff.Neg()
		if diff.IsPositive() {
			action = types.ActionBuy
			amount = diff
		}

		timestamp := time.Unix(tx.BlockTime, 0).UTC()
		transfers = append(transfers, &types.Transfer{
			WalletAddress: wallet,
			Chain:         chain,
			TxHash:        sig.Signature,
			TokenAddress:  post.Mint,
			Action:        action,
			Amount:        amount,
			Timestamp:     timestamp,
		})
	}

	return transfers, nil
}
