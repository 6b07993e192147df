package nn

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog/log"

	"selfzero/game"
	"selfzero/searcher"
)

// Client evaluates batches against a remote inference server speaking
// a small JSON protocol: POST {positions: [...]} to /evaluate, receive
// one result per position. Transient transport failures are retried;
// a malformed or mismatched response is an error.
type Client struct {
	url      string
	maxBatch int
	httpc    *http.Client
}

func NewClient(url string, maxBatchSize int) *Client {
	log.Info().Str("url", url).Int("max-batch", maxBatchSize).Msg("connecting to inference server")
	return &Client{
		url:      url,
		maxBatch: maxBatchSize,
		httpc:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) MaxBatchSize() int {
	return c.maxBatch
}

type evalRequest struct {
	Positions [][]byte `json:"positions"`
}

type evalResult struct {
	Win       float32   `json:"win"`
	Draw      float32   `json:"draw"`
	Loss      float32   `json:"loss"`
	MovesLeft float32   `json:"moves_left"`
	Policy    []float32 `json:"policy"`
}

func (c *Client) EvaluateBatch(ctx context.Context, boards []game.Board) ([]searcher.Evaluation, error) {
	if err := checkBatch(len(boards), c.maxBatch); err != nil {
		return nil, err
	}

	reqBody := evalRequest{Positions: make([][]byte, len(boards))}
	for i, b := range boards {
		enc, err := b.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("encoding position %d: %w", i, err)
		}
		reqBody.Positions[i] = enc
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	var results []evalResult
	err = retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/evaluate", bytes.NewReader(payload))
			if err != nil {
				return retry.Unrecoverable(err)
			}
			req.Header.Set("Content-Type", "application/json")
			resp, err := c.httpc.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("inference server returned %s", resp.Status)
			}
			results = results[:0]
			return json.NewDecoder(resp.Body).Decode(&results)
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.OnRetry(func(n uint, err error) {
			log.Warn().Uint("attempt", n).Err(err).Msg("inference request failed, retrying")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("batch evaluation: %w", err)
	}
	if len(results) != len(boards) {
		return nil, fmt.Errorf("inference server returned %d results for %d positions", len(results), len(boards))
	}

	evals := make([]searcher.Evaluation, len(results))
	for i, r := range results {
		evals[i] = searcher.Evaluation{
			Values: searcher.Values{Win: r.Win, Draw: r.Draw, Loss: r.Loss, MovesLeft: r.MovesLeft},
			Policy: r.Policy,
		}
	}
	return evals, nil
}
