package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"collabd/internal/auth"
	"collabd/internal/collab"
	"collabd/internal/config"
	"collabd/pkg/types"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:   1024,
	WriteBufferSize:  1024,
	HandshakeTimeout: 10 * time.Second,
	CheckOrigin: func(*http.Request) bool {
		// Origin checks belong to the fronting proxy in this deployment.
		return true
	},
}

// clientMessage is one inbound client action. Join happens at upgrade time;
// everything else arrives as an action frame.
type clientMessage struct {
	Action               string   `json:"action"`
	QuestionID           string   `json:"question_id,omitempty"`
	Value                string   `json:"value,omitempty"`
	LastSeenValue        string   `json:"last_seen_value,omitempty"`
	Content              string   `json:"content,omitempty"`
	CurrentSection       *string  `json:"current_section,omitempty"`
	CompletionPercentage *float64 `json:"completion_percentage,omitempty"`
}

// Handler upgrades HTTP requests to websocket sessions and translates client
// actions into coordinator calls.
type Handler struct {
	cfg      config.GatewayConfig
	registry *Registry
	coord    *collab.Coordinator
	verifier *auth.Verifier
	log      *zap.Logger
}

func NewHandler(cfg config.GatewayConfig, registry *Registry, coord *collab.Coordinator, verifier *auth.Verifier, log *zap.Logger) *Handler {
	return &Handler{
		cfg:      cfg,
		registry: registry,
		coord:    coord,
		verifier: verifier,
		log:      log,
	}
}

// ServeWS handles GET /ws?assessment_id=&org_id=&token=. Validation runs
// before the upgrade so bad requests get proper HTTP status codes.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	assessmentID := r.URL.Query().Get("assessment_id")
	organizationID := r.URL.Query().Get("org_id")
	token := r.URL.Query().Get("token")

	if !types.IsValidID(assessmentID) {
		http.Error(w, "invalid assessment_id", http.StatusBadRequest)
		return
	}
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	identity, err := h.verifier.Verify(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	wsConn := NewConnection(conn, identity, assessmentID,
		h.cfg.SendBuffer, h.cfg.WriteTimeout, h.cfg.PingInterval)

	snapshot, err := h.coord.Join(assessmentID, organizationID, identity)
	if err != nil {
		_ = wsConn.WriteJSON(map[string]any{"type": "error", "message": err.Error()})
		_ = wsConn.Close()
		return
	}

	if err := h.registry.Register(wsConn); err != nil {
		h.coord.Leave(assessmentID, identity.UserID)
		_ = wsConn.Close()
		return
	}

	// Resync payload so late joiners see the current roster and locks.
	_ = wsConn.WriteJSON(map[string]any{"type": "session_state", "session": snapshot})

	h.log.Info("participant connected",
		zap.String("assessment_id", assessmentID),
		zap.String("user_id", identity.UserID),
		zap.String("role", identity.Role))

	go h.readLoop(wsConn)
}

// readLoop drains inbound frames until the socket dies, then tears down
// presence. Frames beyond the rate limit are dropped, not fatal.
func (h *Handler) readLoop(conn *Connection) {
	defer func() {
		// Leave only if this socket still represents the user: a reconnect
		// replaces the registration and must not kick the new connection.
		if h.registry.Unregister(conn) {
			h.coord.Leave(conn.AssessmentID(), conn.UserID())
		}
		_ = conn.Close()
		h.log.Info("participant disconnected",
			zap.String("assessment_id", conn.AssessmentID()),
			zap.String("user_id", conn.UserID()))
	}()

	limiter := rate.NewLimiter(rate.Limit(h.cfg.MessageRate), h.cfg.MessageBurst)

	conn.conn.SetReadLimit(h.cfg.MaxMessageBytes)
	_ = conn.conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
	})

	for {
		_, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn("websocket closed unexpectedly",
					zap.String("user_id", conn.UserID()), zap.Error(err))
			}
			return
		}
		if !limiter.Allow() {
			continue
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			_ = conn.WriteJSON(map[string]any{"type": "error", "message": "malformed message"})
			continue
		}

		if done := h.dispatch(conn, &msg); done {
			return
		}
	}
}

// dispatch applies one client action; returns true when the connection
// should terminate.
func (h *Handler) dispatch(conn *Connection, msg *clientMessage) bool {
	assessmentID := conn.AssessmentID()
	userID := conn.UserID()

	switch msg.Action {
	case "heartbeat":
		h.coord.Heartbeat(assessmentID, userID)

	case "lock":
		result := h.coord.Lock(assessmentID, msg.QuestionID, userID)
		_ = conn.WriteJSON(map[string]any{
			"type": "lock_result", "question_id": msg.QuestionID, "result": result,
		})

	case "unlock":
		result := h.coord.Unlock(assessmentID, msg.QuestionID, userID)
		_ = conn.WriteJSON(map[string]any{
			"type": "unlock_result", "question_id": msg.QuestionID, "result": result,
		})

	case "submit":
		result, err := h.coord.Submit(conn.ctx, assessmentID, msg.QuestionID, userID, msg.Value, msg.LastSeenValue)
		if err != nil {
			_ = conn.WriteJSON(map[string]any{"type": "error", "message": err.Error()})
			return false
		}
		_ = conn.WriteJSON(map[string]any{
			"type": "submit_result", "question_id": msg.QuestionID, "result": result,
		})

	case "comment":
		comment, err := h.coord.Comment(assessmentID, msg.QuestionID, userID, msg.Content)
		if err != nil {
			_ = conn.WriteJSON(map[string]any{"type": "error", "message": err.Error()})
			return false
		}
		_ = conn.WriteJSON(map[string]any{"type": "comment_result", "comment": comment})

	case "progress":
		h.coord.UpdateProgress(assessmentID, userID, types.ProgressUpdate{
			CurrentSection:       msg.CurrentSection,
			CompletionPercentage: msg.CompletionPercentage,
		})

	case "leave":
		return true

	default:
		_ = conn.WriteJSON(map[string]any{"type": "error", "message": "unknown action"})
	}
	return false
}
