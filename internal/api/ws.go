package api

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/youruser/dpframe/internal/input"
	"github.com/youruser/dpframe/internal/session"
)

// liveMessage is one client command on the live channel.
type liveMessage struct {
	Type  string             `json:"type"` // pointer, zoom, reset, recenter
	Event input.PointerEvent `json:"event"`
	Zoom  float64            `json:"zoom"`
}

type liveReply struct {
	Session session.Status `json:"session"`
	Error   string         `json:"error,omitempty"`
}

func (s *Server) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			u, err := url.Parse(origin)
			if err != nil {
				return false
			}
			if u.Host == r.Host {
				return true
			}
			for _, o := range s.allowedOrigins {
				if o == "*" || o == origin {
					return true
				}
			}
			return false
		},
	}
}

// live streams preview frames. Each command that changes the picture is
// answered with a binary PNG frame followed by a JSON status.
func (s *Server) live(c *gin.Context) {
	sess := current(c)
	conn, err := s.upgrader().Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).WithField("session_id", sess.ID).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	log := logrus.WithField("session_id", sess.ID)
	log.Debug("live channel open")

	if err := sendFrame(conn, sess); err != nil {
		return
	}
	for {
		var msg liveMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.WithError(err).Warn("live channel closed")
			}
			return
		}

		var (
			st      session.Status
			changed = true
		)
		switch msg.Type {
		case "pointer":
			st, changed = sess.Pointer(msg.Event)
		case "zoom":
			st = sess.SetZoom(msg.Zoom)
		case "reset":
			st = sess.Reset()
		case "recenter":
			st = sess.Recenter()
		default:
			if err := conn.WriteJSON(liveReply{Session: sess.Status(), Error: "unknown message type"}); err != nil {
				return
			}
			continue
		}

		if changed {
			if err := sendPreview(conn, sess); err != nil {
				return
			}
		}
		if err := conn.WriteJSON(liveReply{Session: st}); err != nil {
			return
		}
	}
}

func sendPreview(conn *websocket.Conn, sess *session.Session) error {
	b, err := sess.PreviewPNG()
	if err != nil {
		return conn.WriteJSON(liveReply{Session: sess.Status(), Error: "Could not encode the image"})
	}
	return conn.WriteMessage(websocket.BinaryMessage, b)
}

func sendFrame(conn *websocket.Conn, sess *session.Session) error {
	if err := sendPreview(conn, sess); err != nil {
		return err
	}
	return conn.WriteJSON(liveReply{Session: sess.Status()})
}
