package chainclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chainscout/walletrader/pkg/types"
)

const evmMinSpacing = 200 * time.Millisecond

// evmChainID is the unified multi-chain explorer's numeric ID per network.
func evmChainID(chain types.Chain) (string, bool) {
	switch chain {
	case types.ChainEthereum:
		return "1", true
	case types.ChainBase:
		return "8453", true
	case types.ChainArbitrum:
		return "42161", true
	case types.ChainOptimism:
		return "10", true
	case types.ChainPolygon:
		return "137", true
	default:
		return "", false
	}
}

// EVMClient polls the unified multi-chain explorer V2 endpoint for a
// wallet's token transfers, classifying buy/sell by transfer direction.
type EVMClient struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	limiter    *spacingLimiter
	cursors    *cursorCache
	logger     *zap.Logger
}

// NewEVMClient builds an EVM chain client. baseURL defaults to the public
// unified explorer when empty, overridable for tests.
func NewEVMClient(apiKey, baseURL string, logger *zap.Logger) *EVMClient {
	if baseURL == "" {
		baseURL = "https://api.etherscan.io/v2/api"
	}
	return &EVMClient{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		apiKey:     apiKey,
		baseURL:    baseURL,
		limiter:    newSpacingLimiter(evmMinSpacing),
		cursors:    newCursorCache(),
		logger:     logger,
	}
}

type evmTokenTxResponse struct {
	Status  string              `json:"status"`
	Message string              `json:"message"`
	Result  []evmTokenTxRecord  `json:"result"`
}

type evmTokenTxRecord struct {
	Hash            string `json:"hash"`
	From            string `json:"from"`
	To              string `json:"to"`
	ContractAddress string `json:"contractAddress"`
	TokenSymbol     string `json:"tokenSymbol"`
	TokenDecimal    string `json:"tokenDecimal"`
	Value           string `json:"value"`
	TimeStamp       string `json:"timeStamp"`
	BlockNumber     string `json:"blockNumber"`
}

// GetRecentTokenTransfers fetches transfers for wallet since the block
// number in sinceCursor (empty means "from genesis of tracking").
func (c *EVMClient) GetRecentTokenTransfers(ctx context.Context, wallet string, chain types.Chain, sinceCursor string) ([]*types.Transfer, string, error) {
	chainID, ok := evmChainID(chain)
	if !ok {
		return nil, sinceCursor, fmt.Errorf("unsupported evm chain %q", chain)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, sinceCursor, err
	}

	startBlock := "0"
	if cur, ok := c.cursors.get(wallet); ok {
		startBlock = cur
	} else if sinceCursor != "" {
		startBlock = sinceCursor
	}

	url := fmt.Sprintf(
		"%s?chainid=%s&module=account&action=tokentx&address=%s&startblock=%s&endblock=99999999&sort=asc&apikey=%s",
		c.baseURL, chainID, wallet, startBlock, c.apiKey,
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, sinceCursor, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, sinceCursor, fmt.Errorf("evm transfer request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, sinceCursor, fmt.Errorf("rate limited by explorer")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, sinceCursor, fmt.Errorf("explorer returned status %d", resp.StatusCode)
	}

	var body evmTokenTxResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, sinceCursor, fmt.Errorf("decode explorer response: %w", err)
	}

	var transfers []*types.Transfer
	highestBlock := startBlock
	highestBlockNum, _ := strconv.ParseUint(startBlock, 10, 64)
	walletLower := strings.ToLower(wallet)

	for _, rec := range body.Result {
		action := types.ActionSell
		if strings.ToLower(rec.To) == walletLower {
			action = types.ActionBuy
		} else if strings.ToLower(rec.From) != walletLower {
			continue
		}

		amount := rawAmountToDecimal(rec.Value, rec.TokenDecimal)
		unixSec, _ := strconv.ParseInt(rec.TimeStamp, 10, 64)
		blockNum, _ := strconv.ParseUint(rec.BlockNumber, 10, 64)

		transfers = append(transfers, &types.Transfer{
			WalletAddress: wallet,
			Chain:         chain,
			TxHash:        rec.Hash,
			TokenAddress:  strings.ToLower(rec.ContractAddress),
			TokenSymbol:   rec.TokenSymbol,
			Action:        action,
			Amount:        amount,
			Timestamp:     time.Unix(unixSec, 0).UTC(),
			BlockNumber:   &blockNum,
		})

		if blockNum > highestBlockNum {
			highestBlockNum = blockNum
			highestBlock = rec.BlockNumber
		}
	}

	c.cursors.set(wallet, highestBlock)
	return transfers, highestBlock, nil
}

func rawAmountToDecimal(rawValue, decimalsStr string) decimal.Decimal {
	raw, err := decimal.NewFromString(rawValue)
	if err != nil {
		return decimal.Zero
	}
	decimals, err := strconv.Atoi(decimalsStr)
	if err != nil {
		decimals = 18
	}
	divisor := decimal.New(1, int32(decimals))
	return raw.Div(divisor)
}
