package server

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/livetemplate/engagesite/internal/stepper"
	"github.com/livetemplate/engagesite/internal/views"
)

const (
	writeWait      = 5 * time.Second
	maxMessageSize = 64 << 10
)

// Inbound message types sent by the browser adapter.
const (
	msgMount  = "mount"
	msgResize = "resize"
	msgScroll = "scroll"
	msgSelect = "select"
)

// Outbound message types.
const (
	msgState  = "state"
	msgReload = "reload"
	msgError  = "error"
)

// inbound is one browser event.
type inbound struct {
	Type     string            `json:"type"`
	Viewport *stepper.Viewport `json:"viewport,omitempty"`
	Layout   *stepper.Layout   `json:"layout,omitempty"`
	ScrollY  float64           `json:"scrollY,omitempty"`
	Index    *int              `json:"index,omitempty"`
}

// outbound is one server message. State messages carry the re-rendered
// stepper body and the pinned region, if any.
type outbound struct {
	Type    string                 `json:"type"`
	State   *stepper.State         `json:"state,omitempty"`
	HTML    string                 `json:"html,omitempty"`
	Region  *stepper.Binding       `json:"region"`
	Scroll  *stepper.ScrollCommand `json:"scroll,omitempty"`
	Message string                 `json:"message,omitempty"`
}

// StepperHandler runs one stepper per websocket connection. The browser
// reports measurements and events; the server answers with rendered state
// and scroll commands.
type StepperHandler struct {
	server   *Server
	cfg      stepper.Config
	log      *zap.Logger
	upgrader websocket.Upgrader
}

// NewStepperHandler creates the live stepper endpoint.
func NewStepperHandler(s *Server, cfg stepper.Config, log *zap.Logger) *StepperHandler {
	return &StepperHandler{
		server: s,
		cfg:    cfg,
		log:    log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

// ServeHTTP upgrades the connection and feeds its events to a fresh stepper
// until the client disconnects.
func (h *StepperHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("upgrade failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(maxMessageSize)

	panels := h.server.content.Data().Panels
	sess := &session{conn: conn, panels: panels, log: h.log}
	st, err := stepper.New(panels,
		stepper.WithConfig(h.cfg),
		stepper.WithListener(sess),
		stepper.WithLogger(h.log.Named("stepper")),
	)
	if err != nil {
		h.log.Error("stepper init failed", zap.Error(err))
		sess.send(outbound{Type: msgError, Message: "Showcase unavailable."})
		conn.Close()
		return
	}
	sess.stepper = st

	h.server.registerSession(sess)
	defer func() {
		// Unmount: the pinned region and debounce timer go with the connection.
		st.Close()
		h.server.unregisterSession(sess)
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("read failed", zap.Error(err))
			}
			return
		}
		if err := sess.handle(data); err != nil {
			h.log.Debug("bad message", zap.Error(err))
			sess.send(outbound{Type: msgError, Message: err.Error()})
		}
	}
}

// session is one connected stepper. It implements stepper.Listener.
type session struct {
	conn    *websocket.Conn
	panels  []stepper.Panel
	stepper *stepper.Stepper
	log     *zap.Logger

	writeMu sync.Mutex
}

var (
	errUnknownType  = errors.New("unknown message type")
	errMissingField = errors.New("missing message field")
)

func (s *session) handle(data []byte) error {
	var msg inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}

	switch msg.Type {
	case msgMount, msgResize:
		if msg.Viewport == nil {
			return errMissingField
		}
		var layout stepper.Layout
		if msg.Layout != nil {
			layout = *msg.Layout
		}
		if msg.Type == msgMount {
			s.stepper.Mount(*msg.Viewport, layout)
		} else {
			s.stepper.OnViewportResize(*msg.Viewport, layout)
		}
	case msgScroll:
		s.stepper.OnScroll(msg.ScrollY)
	case msgSelect:
		if msg.Index == nil {
			return errMissingField
		}
		s.stepper.SelectPanel(*msg.Index)
	default:
		return errUnknownType
	}
	return nil
}

// StateChanged renders the stepper body for the new state.
func (s *session) StateChanged(st stepper.State) {
	html, err := views.String(views.StepperBody(s.panels, st))
	if err != nil {
		s.log.Error("render stepper failed", zap.Error(err))
		return
	}
	msg := outbound{Type: msgState, State: &st, HTML: html}
	if b, ok := s.stepper.Binding(); ok {
		msg.Region = &b
	}
	s.send(msg)
}

// ScrollRequested forwards a scroll command to the browser.
func (s *session) ScrollRequested(cmd stepper.ScrollCommand) {
	s.send(outbound{Type: msgScroll, Scroll: &cmd})
}

// send writes one message. Listener callbacks arrive from the read loop and
// the debounce timer, so writes are serialized.
func (s *session) send(msg outbound) {
	data, err := json.Marshal(msg)
	if err != nil {
		s.log.Error("marshal message failed", zap.Error(err))
		return
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		s.log.Debug("write failed", zap.Error(err))
	}
}
