package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/terra-clan/course-engine/internal/assistant"
	"github.com/terra-clan/course-engine/internal/models"
)

const (
	maxChatMessageBytes = 16 << 10
	maxSocketHistory    = 50
)

type chatRequest struct {
	CourseID string              `json:"course_id"`
	ModuleID string              `json:"module_id"`
	LessonID string              `json:"lesson_id"`
	Message  string              `json:"message" validate:"required,max=4000"`
	History  []assistant.Message `json:"history" validate:"max=50,dive"`
}

// ChatMessage is the websocket frame format
type ChatMessage struct {
	Type     string `json:"type"`
	Data     string `json:"data,omitempty"`
	CourseID string `json:"course_id,omitempty"`
	ModuleID string `json:"module_id,omitempty"`
	LessonID string `json:"lesson_id,omitempty"`
}

// assistantContext resolves what the learner is looking at. Unknown ids
// leave the prompt generic.
func (s *Server) assistantContext(key models.LessonKey) assistant.Context {
	var cc assistant.Context
	if key.CourseID == "" {
		return cc
	}
	course, err := s.Catalog.Course(key.CourseID)
	if err != nil || course == nil {
		return cc
	}
	cc.Course = course
	if key.ModuleID != "" && key.LessonID != "" {
		_, cc.Lesson = course.FindLesson(key.ModuleID, key.LessonID)
	}
	return cc
}

func (s *Server) handleAssistantChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	cc := s.assistantContext(models.LessonKey{CourseID: req.CourseID, ModuleID: req.ModuleID, LessonID: req.LessonID})
	reply := s.Assistant.Reply(r.Context(), cc, req.History, req.Message)

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"reply":   reply,
		"enabled": s.Assistant.Enabled(),
	})
}

func (s *Server) upgrader() *websocket.Upgrader {
	allowed := make(map[string]bool, len(s.config.AllowedOrigins))
	for _, o := range s.config.AllowedOrigins {
		allowed[o] = true
	}
	return &websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || len(allowed) == 0 || allowed["*"] || allowed[origin]
		},
	}
}

// handleAssistantWS keeps the conversation history for the lifetime of the
// connection. Frames: context, message and reset in; connected, reply and
// error out.
func (s *Server) handleAssistantWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		slog.Error("failed to upgrade to websocket", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxChatMessageBytes)

	userID := ""
	if caller := identity(r); caller != nil {
		userID = caller.ID
	}
	slog.Info("assistant websocket connected", "user_id", userID)

	var (
		key     models.LessonKey
		history []assistant.Message
	)
	s.sendChatMessage(conn, ChatMessage{Type: "connected", Data: "KI-Lernassistent verbunden"})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("websocket read error", "error", err)
			}
			break
		}

		var msg ChatMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			slog.Debug("invalid message format", "error", err)
			s.sendChatMessage(conn, ChatMessage{Type: "error", Data: "invalid message format"})
			continue
		}

		switch msg.Type {
		case "context":
			key = models.LessonKey{CourseID: msg.CourseID, ModuleID: msg.ModuleID, LessonID: msg.LessonID}
		case "reset":
			history = nil
		case "message":
			if msg.Data == "" {
				continue
			}
			reply := s.Assistant.Reply(r.Context(), s.assistantContext(key), history, msg.Data)
			history = append(history,
				assistant.Message{Role: "user", Content: msg.Data},
				assistant.Message{Role: "assistant", Content: reply},
			)
			history = assistant.TrimHistory(history, maxSocketHistory)
			if err := s.sendChatMessage(conn, ChatMessage{Type: "reply", Data: reply}); err != nil {
				return
			}
		default:
			s.sendChatMessage(conn, ChatMessage{Type: "error", Data: "unknown message type"})
		}
	}

	slog.Info("assistant websocket disconnected", "user_id", userID)
}

func (s *Server) sendChatMessage(conn *websocket.Conn, msg ChatMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("failed to marshal chat message", "error", err)
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Debug("failed to send chat message", "error", err)
		return err
	}
	return nil
}
