package events

import (
	"log/slog"
	"net/http"

	ws "github.com/coder/websocket"

	"github.com/tuckborough/haven/internal/auth"
	"github.com/tuckborough/haven/internal/store"
)

// HandleWebSocket upgrades the connection and runs it as a hub client
// scoped to the caller's current memberships. RequireAuth must run first.
func HandleWebSocket(hub *Hub, households *store.HouseholdStore, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := auth.UserID(r.Context())
		if userID == 0 {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		memberships, err := households.MembershipsForUser(userID)
		if err != nil {
			logger.Error("load memberships", "error", err, "user_id", userID)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		ids := make([]int64, 0, len(memberships))
		for _, m := range memberships {
			ids = append(ids, m.HouseholdID)
		}

		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			InsecureSkipVerify: true, // agents connect from arbitrary origins
		})
		if err != nil {
			logger.Warn("websocket accept", "error", err)
			return
		}

		client := NewClient(hub, conn, ids)
		client.Run(r.Context())
	}
}
