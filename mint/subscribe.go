package mint

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	wsHandshakeTimeout = 10 * time.Second
	wsReadTimeout      = 60 * time.Second
	wsPingInterval     = 30 * time.Second
	wsMaxBackoff       = 30 * time.Second
)

// JSON-RPC style frames of the mint websocket protocol.
type wsRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  wsSubParams `json:"params"`
	ID      int64       `json:"id"`
}

type wsSubParams struct {
	Kind    string   `json:"kind"`
	SubID   string   `json:"subId"`
	Filters []string `json:"filters"`
}

type wsFrame struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *wsError        `json:"error,omitempty"`
	ID      int64           `json:"id,omitempty"`
	Params  *wsNotification `json:"params,omitempty"`
}

type wsError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type wsNotification struct {
	SubID   string          `json:"subId"`
	Payload json.RawMessage `json:"payload"`
}

var wsRequestID atomic.Int64

// wsEndpoint derives the websocket URL from a mint's base URL.
func wsEndpoint(mintURL string) (string, error) {
	u, err := url.Parse(mintURL)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSubscriptionUnsupported, err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("%w: scheme %q", ErrSubscriptionUnsupported, u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/ws"
	return u.String(), nil
}

// SubscribeMintQuote streams state changes of a mint quote over the mint's
// websocket endpoint. The initial dial and subscribe happen synchronously
// so an unsupported mint fails fast; afterwards the connection reconnects
// with backoff until the context is done or stop is called. The returned
// channel closes when the subscription ends.
func (p *Provider) SubscribeMintQuote(ctx context.Context, mintURL, quoteID string) (<-chan MintQuote, func(), error) {
	endpoint, err := wsEndpoint(mintURL)
	if err != nil {
		return nil, nil, err
	}
	subID := uuid.NewString()

	conn, err := p.wsSubscribe(ctx, endpoint, subID, quoteID)
	if err != nil {
		return nil, nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	updates := make(chan MintQuote, 4)

	go func() {
		defer close(updates)
		defer func() { _ = conn.Close() }()

		retry := 0
		for {
			p.wsReadLoop(ctx, conn, subID, updates)
			_ = conn.Close()

			// Read loop ended: reconnect unless we were stopped.
			for {
				select {
				case <-ctx.Done():
					return
				case <-time.After(wsBackoff(retry)):
				}
				retry++
				next, err := p.wsSubscribe(ctx, endpoint, subID, quoteID)
				if err == nil {
					conn = next
					retry = 0
					break
				}
				p.log.Debug().Str("mint", mintURL).Err(err).Int("retry", retry).
					Msg("websocket reconnect failed")
			}
		}
	}()

	return updates, cancel, nil
}

// wsSubscribe dials the endpoint and registers a bolt11_mint_quote
// subscription, waiting for the acknowledgement frame.
func (p *Provider) wsSubscribe(ctx context.Context, endpoint, subID, quoteID string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: wsHandshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, endpoint, http.Header{})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", ErrSubscriptionUnsupported, endpoint, err)
	}

	req := wsRequest{
		JSONRPC: "2.0",
		Method:  "subscribe",
		Params:  wsSubParams{Kind: "bolt11_mint_quote", SubID: subID, Filters: []string{quoteID}},
		ID:      wsRequestID.Add(1),
	}
	if err := conn.WriteJSON(req); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: subscribe: %w", ErrMintCommunication, err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(wsHandshakeTimeout))
	var ack wsFrame
	if err := conn.ReadJSON(&ack); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: subscribe ack: %w", ErrMintCommunication, err)
	}
	if ack.Error != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: %s", ErrSubscriptionUnsupported, ack.Error.Message)
	}
	return conn, nil
}

// wsReadLoop pushes matching notifications onto updates until the
// connection breaks or ctx is done.
func (p *Provider) wsReadLoop(ctx context.Context, conn *websocket.Conn, subID string, updates chan<- MintQuote) {
	stopPing := make(chan struct{})
	defer close(stopPing)
	go func() {
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stopPing:
				return
			case <-ticker.C:
				_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsHandshakeTimeout))
			}
		}
	}()

	for {
		if ctx.Err() != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		var frame wsFrame
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		if frame.Params == nil || frame.Params.SubID != subID {
			continue
		}
		var quote MintQuote
		if err := json.Unmarshal(frame.Params.Payload, &quote); err != nil {
			p.log.Debug().Err(err).Msg("malformed quote notification")
			continue
		}
		select {
		case updates <- quote:
		case <-ctx.Done():
			return
		default:
			// Slow consumer: drop the stale update, a newer one follows.
		}
	}
}

func wsBackoff(retry int) time.Duration {
	d := time.Second << uint(retry)
	if d > wsMaxBackoff || d <= 0 {
		return wsMaxBackoff
	}
	return d
}
