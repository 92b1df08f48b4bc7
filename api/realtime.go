package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"rootcart/domain"
	"rootcart/realtime"
)

// session is what the server knows about an open stream.
type session struct {
	principal     Principal
	authenticated bool
}

type sessions struct {
	mu sync.RWMutex
	m  map[string]session
}

func newSessions() *sessions {
	return &sessions{m: make(map[string]session)}
}

func (s *sessions) put(connID string, sess session) {
	s.mu.Lock()
	s.m[connID] = sess
	s.mu.Unlock()
}

func (s *sessions) get(connID string) (session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.m[connID]
	return sess, ok
}

func (s *sessions) drop(connID string) {
	s.mu.Lock()
	delete(s.m, connID)
	s.mu.Unlock()
}

// streamEvents opens a server-sent event session. Guests may connect; a
// token, from the Authorization header or the token query parameter, is
// required later to join rooms.
func streamEvents(hub Realtime, auth Authenticator, sess *sessions, logger *log.Logger, heartbeat time.Duration) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
		if token := c.QueryParam("token"); authHeader == "" && token != "" {
			authHeader = "Bearer " + token
		}
		var current session
		if authHeader != "" {
			p, err := auth.PrincipalFromAuthHeader(authHeader)
			if err != nil {
				return fail(c, http.StatusUnauthorized, err.Error())
			}
			current = session{principal: p, authenticated: true}
		}

		conn := hub.Register()
		sess.put(conn.ID, current)
		defer func() {
			sess.drop(conn.ID)
			hub.Unregister(conn.ID)
		}()

		first, err := realtime.NewMessage(domain.EventConnected, domain.ConnectedEvent{ConnectionID: conn.ID})
		if err != nil {
			return err
		}
		realtime.SetStreamHeaders(c.Response().Header())
		c.Response().WriteHeader(http.StatusOK)

		if err := realtime.Serve(c.Request().Context(), c.Response(), conn, first, heartbeat); err != nil {
			logger.WithError(err).WithField("conn", conn.ID).Debug("realtime stream ended")
		}
		return nil
	}
}

type clientEventResponse struct {
	Success bool   `json:"success"`
	Event   string `json:"event"`
	Room    string `json:"room,omitempty"`
}

// postClientEvent handles the messages a session sends upstream: room
// announcements and on-demand snapshot requests. Sessions live on the instance
// that opened the stream; behind a relay the route needs sticky routing.
func postClientEvent(hub Realtime, provider StatsProvider, sess *sessions) echo.HandlerFunc {
	return func(c echo.Context) error {
		connID := c.Param("connectionId")
		current, ok := sess.get(connID)
		if !ok {
			return fail(c, http.StatusNotFound, "unknown connection")
		}
		var ev domain.ClientEvent
		if err := decodeBody(c, &ev); err != nil {
			return badRequest(c, err)
		}

		switch ev.Event {
		case domain.EventAdminJoin:
			if !current.principal.IsAdmin() {
				return fail(c, http.StatusForbidden, errForbidden.Error())
			}
			return joinRoom(c, hub, connID, ev.Event, domain.RoomAdmin)
		case domain.EventUserJoin:
			if !current.authenticated {
				return fail(c, http.StatusUnauthorized, errMissingAuthorization.Error())
			}
			return joinRoom(c, hub, connID, ev.Event, domain.UserRoom(current.principal.UserID))
		default:
			if !current.principal.IsAdmin() {
				return fail(c, http.StatusForbidden, errForbidden.Error())
			}
			res := provider.Snapshot(c.Request().Context())
			msg, err := realtime.NewMessage(domain.EventDashboardStats, domain.StatsEnvelope{Success: true, Data: res.Snapshot, Degraded: res.Degraded})
			if err != nil {
				return err
			}
			if err := hub.SendTo(connID, msg); err != nil {
				return fail(c, http.StatusConflict, err.Error())
			}
			return c.JSON(http.StatusAccepted, clientEventResponse{Success: true, Event: ev.Event})
		}
	}
}

func joinRoom(c echo.Context, hub Realtime, connID, event, room string) error {
	if err := hub.Join(connID, room); err != nil {
		return fail(c, http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, clientEventResponse{Success: true, Event: event, Room: room})
}
