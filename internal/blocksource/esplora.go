package blocksource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"
)

var blockHashPattern = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)

// Esplora reads blocks from an Esplora-compatible REST API such as
// mempool.space or blockstream.info.
type Esplora struct {
	baseURL string
	client  *http.Client

	mu    sync.RWMutex
	txids map[string][]string // block hash -> txids; blocks are immutable once mined
}

// NewEsplora creates a client for baseURL (e.g. https://mempool.space/api).
func NewEsplora(baseURL string) *Esplora {
	return &Esplora{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
		txids:   map[string][]string{},
	}
}

func (e *Esplora) BlockHashAtHeight(ctx context.Context, height int64) (string, error) {
	if height < 0 {
		return "", fmt.Errorf("negative height %d", height)
	}
	body, status, err := e.get(ctx, fmt.Sprintf("%s/block-height/%d", e.baseURL, height))
	if err != nil {
		return "", upstream("block-height", err)
	}
	switch {
	case status == http.StatusNotFound:
		return "", ErrBlockNotFound
	case status != http.StatusOK:
		return "", upstream("block-height", fmt.Errorf("status %d: %s", status, snippet(body)))
	}
	hash := strings.TrimSpace(string(body))
	if !blockHashPattern.MatchString(hash) {
		return "", upstream("block-height", fmt.Errorf("unexpected body %q", snippet(body)))
	}
	return strings.ToLower(hash), nil
}

func (e *Esplora) TransactionIDsForBlock(ctx context.Context, hash string) ([]string, error) {
	hash = strings.ToLower(strings.TrimSpace(hash))
	e.mu.RLock()
	cached, ok := e.txids[hash]
	e.mu.RUnlock()
	if ok {
		return cached, nil
	}

	body, status, err := e.get(ctx, fmt.Sprintf("%s/block/%s/txids", e.baseURL, hash))
	if err != nil {
		return nil, upstream("txids", err)
	}
	switch {
	case status == http.StatusNotFound:
		return nil, ErrBlockNotFound
	case status != http.StatusOK:
		return nil, upstream("txids", fmt.Errorf("status %d: %s", status, snippet(body)))
	}
	var ids []string
	if err := json.Unmarshal(body, &ids); err != nil {
		return nil, upstream("txids", fmt.Errorf("decode: %w", err))
	}

	e.mu.Lock()
	e.txids[hash] = ids
	e.mu.Unlock()
	return ids, nil
}

func (e *Esplora) get(ctx context.Context, url string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 120 {
		s = s[:120] + "..."
	}
	return s
}
