package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/binarymarket/internal/domain"
)

// StreamReader replays the durable event stream.
type StreamReader interface {
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error)
}

// StreamHandler serves cursor-based replay of every committed event.
type StreamHandler struct {
	bus    StreamReader
	logger *slog.Logger
}

// NewStreamHandler creates a StreamHandler.
func NewStreamHandler(bus StreamReader, logger *slog.Logger) *StreamHandler {
	return &StreamHandler{bus: bus, logger: logHandler(logger, "stream")}
}

type streamEntry struct {
	StreamID string       `json:"stream_id"`
	Event    domain.Event `json:"event"`
}

type streamResponse struct {
	Entries []streamEntry `json:"entries"`
	// Next is the cursor to pass as ?after= on the following call.
	Next string `json:"next"`
}

// Replay returns up to count events after the given stream id.
// GET /api/events/stream?after=0&count=100
func (h *StreamHandler) Replay(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	after := q.Get("after")
	if after == "" {
		after = "0"
	}
	count := 100
	if v := q.Get("count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "count must be a positive integer")
			return
		}
		count = min(n, 1000)
	}

	msgs, err := h.bus.StreamRead(r.Context(), domain.EventStream, after, count)
	if err != nil {
		writeDomainError(w, r, h.logger, "read event stream", err)
		return
	}

	resp := streamResponse{Entries: make([]streamEntry, 0, len(msgs)), Next: after}
	for _, msg := range msgs {
		resp.Next = msg.ID
		var ev domain.Event
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			h.logger.WarnContext(r.Context(), "handler: skipping undecodable stream entry",
				slog.String("stream_id", msg.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		resp.Entries = append(resp.Entries, streamEntry{StreamID: msg.ID, Event: ev})
	}
	writeJSON(w, http.StatusOK, resp)
}
