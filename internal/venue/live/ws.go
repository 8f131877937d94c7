package live

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dualgrid/dualgrid/pkg/types"
)

// Reconnect/backoff bounds from §5: 5s, 10s, 20s, ..., capped at 60s, max
// 10 attempts. A 30s read deadline triggers a ping; another 30s of silence
// triggers reconnection.
const (
	readDeadline        = 30 * time.Second
	initialBackoff       = 5 * time.Second
	maxBackoff           = 60 * time.Second
	maxReconnectAttempts = 10
	listenKeyRenewEvery  = 30 * time.Minute
)

// userStream is the asynchronous user-data event stream (§6.1), built on a
// listen-key-authenticated WebSocket, grounded on exchange.WSFeed's
// reconnect-with-backoff shape and on binance_connector.py's
// _get_listen_key/_keep_listen_key_alive/_user_data_stream_loop.
type userStream struct {
	venue  *Venue
	url    string
	logger *slog.Logger

	mu            sync.Mutex
	lastMessageAt time.Time

	out chan types.VenueEvent

	cancel context.CancelFunc
	done   chan struct{}
}

func newUserStream(ctx context.Context, v *Venue, wsURL string, logger *slog.Logger) (*userStream, error) {
	runCtx, cancel := context.WithCancel(ctx)
	s := &userStream{
		venue:  v,
		url:    wsURL,
		logger: logger.With("component", "user_stream"),
		out:    make(chan types.VenueEvent, 256),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(s.done)
		s.run(runCtx)
	}()

	return s, nil
}

func (s *userStream) events() <-chan types.VenueEvent { return s.out }

// healthy reports whether a message has arrived within the heartbeat
// window (§4.6: 90s) — distinct from IsConnected's REST ping, per §9 Open
// Question (a).
func (s *userStream) healthy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastMessageAt.IsZero() {
		return false
	}
	return time.Since(s.lastMessageAt) < 90*time.Second
}

func (s *userStream) close() {
	s.cancel()
	<-s.done
}

func (s *userStream) run(ctx context.Context) {
	backoff := initialBackoff
	attempts := 0

	for {
		if ctx.Err() != nil {
			return
		}

		err := s.connectAndRead(ctx)
		if ctx.Err() != nil {
			return
		}

		attempts++
		if attempts >= maxReconnectAttempts {
			s.logger.Error("user stream giving up after max reconnect attempts", "attempts", attempts, "error", err)
			s.out <- types.VenueEvent{Kind: types.EventStreamExpired}
			return
		}

		s.logger.Warn("user stream disconnected, reconnecting", "error", err, "backoff", backoff)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (s *userStream) connectAndRead(ctx context.Context) error {
	listenKey, err := s.fetchListenKey(ctx)
	if err != nil {
		return fmt.Errorf("fetch listen key: %w", err)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url+"/"+listenKey, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	renewCtx, renewCancel := context.WithCancel(ctx)
	defer renewCancel()
	go s.keepListenKeyAlive(renewCtx, listenKey)

	s.mu.Lock()
	s.lastMessageAt = time.Now()
	s.mu.Unlock()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// A read error is permanent on a gorilla connection, so the ping is
		// sent from a timer while the read is still pending: readDeadline
		// of silence sends it, a further readDeadline ends the read.
		conn.SetReadDeadline(time.Now().Add(2 * readDeadline))
		pinger := time.AfterFunc(readDeadline, func() {
			_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second))
		})
		_, msg, err := conn.ReadMessage()
		pinger.Stop()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		s.mu.Lock()
		s.lastMessageAt = time.Now()
		s.mu.Unlock()

		s.dispatch(msg)
	}
}

func (s *userStream) keepListenKeyAlive(ctx context.Context, listenKey string) {
	ticker := time.NewTicker(listenKeyRenewEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.renewListenKey(ctx, listenKey); err != nil {
				s.logger.Warn("listen key renewal failed", "error", err)
			}
		}
	}
}

func (s *userStream) fetchListenKey(ctx context.Context) (string, error) {
	var result struct {
		ListenKey string `json:"listenKey"`
	}
	resp, err := s.venue.http.R().
		SetContext(ctx).
		SetHeaders(s.venue.auth.listenKeyHeaders()).
		SetResult(&result).
		Post("/fapi/v1/listenKey")
	if err != nil {
		return "", err
	}
	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("listen key: status %d: %s", resp.StatusCode(), resp.String())
	}
	return result.ListenKey, nil
}

func (s *userStream) renewListenKey(ctx context.Context, listenKey string) error {
	resp, err := s.venue.http.R().
		SetContext(ctx).
		SetHeaders(s.venue.auth.listenKeyHeaders()).
		SetQueryParam("listenKey", listenKey).
		Put("/fapi/v1/listenKey")
	if err != nil {
		return err
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("renew listen key: status %d", resp.StatusCode())
	}
	return nil
}

// userDataMessage is the push shape of §4.2's event-stream fields: X
// (status), z (cumulative filled base), Z (cumulative filled quote), c
// (client id), and the account-update position payload.
type userDataMessage struct {
	EventType string `json:"e"`
	Order     *struct {
		OrderID       json.Number `json:"i"`
		ClientOrderID string      `json:"c"`
		Status        string      `json:"X"`
		FilledBase    string      `json:"z"`
		FilledQuote   string      `json:"Z"`
		FeeQuote      string      `json:"n"`
	} `json:"o"`
	Account *struct {
		Positions []struct {
			PositionSide string `json:"ps"`
			Amount       string `json:"pa"`
		} `json:"P"`
	} `json:"a"`
}

func (s *userStream) dispatch(raw []byte) {
	var msg userDataMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.logger.Warn("user stream: malformed message", "error", err)
		return
	}

	switch msg.EventType {
	case "ORDER_TRADE_UPDATE":
		if msg.Order == nil {
			return
		}
		o := msg.Order
		s.emit(types.VenueEvent{
			Kind: types.EventOpenUpdate,
			Order: types.OrderSnapshot{
				OrderID:       o.OrderID.String(),
				ClientOrderID: o.ClientOrderID,
				Status:        o.Status,
				FilledBase:    mustDecimal(o.FilledBase),
				FilledQuote:   mustDecimal(o.FilledQuote),
				FeeQuote:      mustDecimal(o.FeeQuote),
			},
		})
	case "ACCOUNT_UPDATE":
		if msg.Account == nil {
			return
		}
		var long, short = mustDecimal(""), mustDecimal("")
		for _, p := range msg.Account.Positions {
			amt := mustDecimal(p.Amount)
			switch p.PositionSide {
			case "LONG":
				long = amt.Abs()
			case "SHORT":
				short = amt.Abs()
			}
		}
		s.emit(types.VenueEvent{Kind: types.EventAccountUpdate, Long: long, Short: short})
	}
}

func (s *userStream) emit(evt types.VenueEvent) {
	select {
	case s.out <- evt:
	default:
		s.logger.Warn("user stream event channel full, dropping event")
	}
}
