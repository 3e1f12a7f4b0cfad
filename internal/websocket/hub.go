package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"llm-knowledge-be/internal/dto"
	"llm-knowledge-be/internal/pkg/logger"
	"llm-knowledge-be/pkg/events"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ClusterChannel is the Redis channel every instance publishes thread
// events on and listens to.
const ClusterChannel = "thread_events"

// Hub fans thread events out to the websocket clients watching a thread.
// With Redis configured, events produced on one instance reach clients
// connected to any other instance.
type Hub struct {
	// Registered clients: ThreadID -> clients watching it
	clients map[uuid.UUID][]*Client

	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	mu sync.RWMutex

	rdb        *redis.Client
	instanceID string

	logger logger.ILogger
}

func NewHub(rdb *redis.Client, log logger.ILogger) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[uuid.UUID][]*Client),
		rdb:        rdb,
		instanceID: uuid.NewString(),
		logger:     log,
	}
}

type clusterMessage struct {
	Origin   string          `json:"origin"`
	ThreadID string          `json:"thread_id"`
	Message  json.RawMessage `json:"message"`
}

// Run serves register and unregister requests until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	if h.rdb != nil {
		go h.subscribeToRedis(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.closeAll()
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ThreadID] = append(h.clients[client.ThreadID], client)
			h.mu.Unlock()
			h.logger.Debug("Hub", "Client registered", map[string]interface{}{"thread_id": client.ThreadID})

		case client := <-h.unregister:
			h.remove(client)
		}
	}
}

// join and leave give up once the hub has stopped.
func (h *Hub) join(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients, ok := h.clients[client.ThreadID]
	if !ok {
		return
	}
	for i, c := range clients {
		if c == client {
			h.clients[client.ThreadID] = append(clients[:i], clients[i+1:]...)
			close(client.Send)
			break
		}
	}
	if len(h.clients[client.ThreadID]) == 0 {
		delete(h.clients, client.ThreadID)
		h.logger.Debug("Hub", "Last client of thread left", map[string]interface{}{"thread_id": client.ThreadID})
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, clients := range h.clients {
		for _, c := range clients {
			close(c.Send)
		}
		delete(h.clients, id)
	}
}

// Subscribers returns how many local clients watch the thread.
func (h *Hub) Subscribers(threadID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[threadID])
}

// Broadcast implements service.ThreadEventSink.
func (h *Hub) Broadcast(threadID uuid.UUID, event dto.ThreadEvent) {
	data, err := json.Marshal(map[string]interface{}{
		"type": "thread_event",
		"data": event,
	})
	if err != nil {
		h.logger.Error("Hub", "Failed to encode thread event", map[string]interface{}{"error": err.Error()})
		return
	}
	h.dispatch(threadID, data)
}

// HandleJobEvent forwards a job.* bus event to the clients of the job's
// thread. It has the signature of a NATS subscriber handler.
func (h *Hub) HandleJobEvent(_ context.Context, event events.Event) error {
	payload := event.Payload()
	raw, _ := payload["thread_id"].(string)
	threadID, err := uuid.Parse(raw)
	if err != nil {
		// not addressed to a thread
		return nil
	}
	data, err := json.Marshal(map[string]interface{}{
		"type":        "job_event",
		"event":       event.EventType(),
		"data":        payload,
		"occurred_at": event.Timestamp(),
	})
	if err != nil {
		return err
	}
	// Every instance consumes the bus, so the event is delivered locally only.
	h.deliver(threadID, data)
	return nil
}

func (h *Hub) dispatch(threadID uuid.UUID, data []byte) {
	h.deliver(threadID, data)

	if h.rdb == nil {
		return
	}
	payload, _ := json.Marshal(clusterMessage{
		Origin:   h.instanceID,
		ThreadID: threadID.String(),
		Message:  data,
	})
	if err := h.rdb.Publish(context.Background(), ClusterChannel, payload).Err(); err != nil {
		h.logger.Warn("Hub", "Failed to publish to cluster", map[string]interface{}{"error": err.Error()})
	}
}

// deliver never blocks: clients whose buffer is full are dropped.
func (h *Hub) deliver(threadID uuid.UUID, data []byte) {
	var slow []*Client

	h.mu.RLock()
	for _, client := range h.clients[threadID] {
		select {
		case client.Send <- data:
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		h.logger.Warn("Hub", "Client send buffer full, dropping client", map[string]interface{}{"thread_id": threadID})
		go h.leave(client)
	}
}

func (h *Hub) subscribeToRedis(ctx context.Context) {
	pubsub := h.rdb.Subscribe(ctx, ClusterChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var payload clusterMessage
			if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
				h.logger.Warn("Hub", "Cluster message parse error", map[string]interface{}{"error": err.Error()})
				continue
			}
			if payload.Origin == h.instanceID {
				continue
			}
			threadID, err := uuid.Parse(payload.ThreadID)
			if err != nil {
				continue
			}
			h.deliver(threadID, payload.Message)
		}
	}
}
