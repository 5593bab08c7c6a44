package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Transfer is one observed TRC20 transfer. Ledger data is immutable and
// read-only; amounts stay in integer token base units.
type Transfer struct {
	TxID          string
	From          string
	To            string
	TokenSymbol   string
	TokenContract string
	RawAmount     int64
	BlockTime     time.Time
}

// TronGridClient fetches TRC20 transfer history from the TronGrid HTTP API.
type TronGridClient struct {
	baseURL string
	http    *http.Client
	limit   int
}

func NewTronGridClient(baseURL string) *TronGridClient {
	return &TronGridClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		limit:   50,
	}
}

type trongridTokenInfo struct {
	Symbol   string `json:"symbol"`
	Address  string `json:"address"`
	Decimals int    `json:"decimals"`
}

type trongridTransfer struct {
	TransactionID  string            `json:"transaction_id"`
	From           string            `json:"from"`
	To             string            `json:"to"`
	Type           string            `json:"type"`
	Value          string            `json:"value"`
	BlockTimestamp int64             `json:"block_timestamp"`
	TokenInfo      trongridTokenInfo `json:"token_info"`
}

type trongridResponse struct {
	Data    []trongridTransfer `json:"data"`
	Success bool               `json:"success"`
}

// TransfersTo returns recent TRC20 transfers received by the address, in the
// order TronGrid reports them (newest first). The response window is bounded
// by the client's page limit; replays across polls are expected and handled
// downstream by dedup.
func (c *TronGridClient) TransfersTo(ctx context.Context, address string) ([]Transfer, error) {
	if c == nil {
		return nil, fmt.Errorf("trongrid client not configured")
	}
	query := url.Values{}
	query.Set("only_to", "true")
	query.Set("limit", strconv.Itoa(c.limit))
	endpoint := fmt.Sprintf("%s/v1/accounts/%s/transactions/trc20?%s", c.baseURL, url.PathEscape(address), query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("trongrid transfers failed: status=%d", resp.StatusCode)
	}
	var decoded trongridResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode trongrid response: %w", err)
	}

	transfers := make([]Transfer, 0, len(decoded.Data))
	for _, raw := range decoded.Data {
		if raw.Type != "" && !strings.EqualFold(raw.Type, "Transfer") {
			continue
		}
		amount, err := strconv.ParseInt(strings.TrimSpace(raw.Value), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse transfer %s value %q: %w", raw.TransactionID, raw.Value, err)
		}
		transfers = append(transfers, Transfer{
			TxID:          raw.TransactionID,
			From:          raw.From,
			To:            raw.To,
			TokenSymbol:   raw.TokenInfo.Symbol,
			TokenContract: raw.TokenInfo.Address,
			RawAmount:     amount,
			BlockTime:     time.UnixMilli(raw.BlockTimestamp).UTC(),
		})
	}
	return transfers, nil
}
