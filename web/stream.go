package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"tripsync/db/db"
	"tripsync/libs/diff"
	"tripsync/planner"
)

const (
	writeWait    = 10 * time.Second
	pingInterval = 30 * time.Second
)

var streamQueries = map[string]db.Query{
	db.CollectionItinerary: planner.ItineraryQuery,
	db.CollectionTodos:     planner.TodosQuery,
	db.CollectionShopping:  planner.ShoppingQuery,
	db.CollectionJournal:   planner.JournalQuery,
	db.CollectionMembers:   planner.MembersQuery,
}

type docJSON struct {
	ID     string    `json:"id"`
	Fields db.Fields `json:"fields"`
}

// changesJSON lists document ids by what happened since the previous frame.
type changesJSON struct {
	Created []string `json:"created,omitempty"`
	Updated []string `json:"updated,omitempty"`
	Deleted []string `json:"deleted,omitempty"`
}

type snapshotJSON struct {
	Collection string       `json:"collection"`
	Docs       []docJSON    `json:"docs,omitempty"`
	Changes    *changesJSON `json:"changes,omitempty"`
	Error      string       `json:"error,omitempty"`
}

func toSnapshotJSON(s db.Snapshot) snapshotJSON {
	out := snapshotJSON{Collection: s.Collection}
	if s.Err != nil {
		out.Error = s.Err.Error()
		return out
	}
	out.Docs = make([]docJSON, 0, len(s.Docs))
	for _, d := range s.Docs {
		out.Docs = append(out.Docs, docJSON{ID: d.ID, Fields: d.Fields})
	}
	return out
}

// withChanges attaches the diff against prev. A failed diff sends the frame
// without changes; the documents are always complete.
func withChanges(out snapshotJSON, prev, next []db.Document) snapshotJSON {
	_, sum, err := diff.Snapshots(prev, next)
	if err != nil || sum.Empty() {
		return out
	}
	out.Changes = &changesJSON{Created: sum.Created, Updated: sum.Updated, Deleted: sum.Deleted}
	return out
}

type streamer struct {
	store    db.Subscriber
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// newUpgrader accepts any origin in dev and same-origin otherwise.
func newUpgrader(isDev bool) websocket.Upgrader {
	u := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	if isDev {
		u.CheckOrigin = func(*http.Request) bool { return true }
	}
	return u
}

func newStreamer(store db.Subscriber, isDev bool, logger *slog.Logger) *streamer {
	return &streamer{store: store, logger: logger, upgrader: newUpgrader(isDev)}
}

// serve streams every snapshot of one collection as a JSON text message
// until either side goes away.
func (s *streamer) serve(c *gin.Context) {
	collection := c.Param("collection")
	q, ok := streamQueries[collection]
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown collection " + collection})
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "collection", collection, "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	id, snaps, err := s.store.Subscribe(ctx, q)
	if err != nil {
		s.logger.Error("stream subscribe failed", "collection", collection, "error", err)
		_ = conn.WriteJSON(snapshotJSON{Collection: collection, Error: err.Error()})
		return
	}
	defer func() {
		if err := s.store.DeSubscribe(id); err != nil {
			s.logger.Debug("stream desubscribe", "collection", collection, "error", err)
		}
	}()

	// the client only sends control frames; a read error means it left
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	var prev []db.Document
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case snap, ok := <-snaps:
			if !ok {
				return
			}
			frame := toSnapshotJSON(snap)
			if snap.Err == nil {
				frame = withChanges(frame, prev, snap.Docs)
				prev = snap.Docs
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(frame); err != nil {
				s.logger.Debug("stream write failed", "collection", collection, "error", err)
				return
			}
		}
	}
}
