package rpc

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"isolend/core/events"
	"isolend/core/ledger"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsBuffer       = 64
)

// StreamMessage is one committed batch as pushed to websocket clients.
type StreamMessage struct {
	Batch  string           `json:"batch"`
	Digest string           `json:"digest"`
	Time   uint64           `json:"time"`
	Events []*events.Record `json:"events"`
}

type streamFilter struct {
	market    string
	eventType string
}

func (f streamFilter) apply(msg *StreamMessage) *StreamMessage {
	if f.market == "" && f.eventType == "" {
		return msg
	}
	out := &StreamMessage{Batch: msg.Batch, Digest: msg.Digest, Time: msg.Time}
	for _, rec := range msg.Events {
		if f.eventType != "" && rec.Type != f.eventType {
			continue
		}
		if f.market != "" && !strings.EqualFold(rec.Attributes["market"], f.market) {
			continue
		}
		out.Events = append(out.Events, rec)
	}
	if len(out.Events) == 0 {
		return nil
	}
	return out
}

type streamClient struct {
	filter streamFilter
	ch     chan *StreamMessage
}

// Hub fans committed receipts out to websocket clients. A client that falls
// behind by more than its buffer is dropped.
type Hub struct {
	mu      sync.Mutex
	clients map[*streamClient]struct{}
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*streamClient]struct{})}
}

// Name identifies the hub as a ledger subscriber.
func (h *Hub) Name() string { return "ws" }

// Publish queues the receipt for every connected client.
func (h *Hub) Publish(_ context.Context, receipt *ledger.Receipt) error {
	if receipt == nil {
		return nil
	}
	msg := &StreamMessage{
		Batch:  receipt.ID.String(),
		Digest: hex.EncodeToString(receipt.Digest[:]),
		Time:   receipt.Time,
		Events: receipt.Records(),
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		filtered := client.filter.apply(msg)
		if filtered == nil {
			continue
		}
		select {
		case client.ch <- filtered:
		default:
			delete(h.clients, client)
			close(client.ch)
		}
	}
	return nil
}

func (h *Hub) subscribe(filter streamFilter) *streamClient {
	client := &streamClient{filter: filter, ch: make(chan *StreamMessage, wsBuffer)}
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	return client
}

func (h *Hub) unsubscribe(client *streamClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.ch)
	}
}

// Clients reports the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	filter := streamFilter{
		market:    strings.TrimSpace(r.URL.Query().Get("market")),
		eventType: strings.TrimSpace(r.URL.Query().Get("type")),
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.originPatterns})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")
	client := s.hub.subscribe(filter)
	defer s.hub.unsubscribe(client)

	ctx := conn.CloseRead(r.Context())
	if err := streamMessages(ctx, conn, client.ch); err != nil {
		if status := websocket.CloseStatus(err); status == -1 {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func streamMessages(ctx context.Context, conn *websocket.Conn, updates <-chan *StreamMessage) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-updates:
			if !ok {
				return conn.Close(websocket.StatusPolicyViolation, "client too slow")
			}
			if err := writeMessage(ctx, conn, msg); err != nil {
				return err
			}
		}
	}
}

func writeMessage(ctx context.Context, conn *websocket.Conn, msg *StreamMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
