// Copyright 2025 the Mediator.Net authors.
// Licensed under the MIT licence, see LICENCE file for details.

package apiserver

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/juju/errors"

	"github.com/d-pohl/Mediator.Net/rpc/params"
)

// The login handshake is challenge/response: Login yields a session id and a
// challenge, Authenticate answers with a keyed hash over both, so the
// password itself never crosses the wire.

// ChallengeHash computes the expected Authenticate answer: HMAC-SHA256 keyed
// with the password over challenge followed by session id, truncated to 8
// bytes and hex encoded.
func ChallengeHash(password, challenge, session string) string {
	mac := hmac.New(sha256.New, []byte(password))
	mac.Write([]byte(challenge))
	mac.Write([]byte(session))
	return hex.EncodeToString(mac.Sum(nil)[:8])
}

func handleLogin(s *Server, _ context.Context, decode decodeFunc) (interface{}, error) {
	var req params.LoginRequest
	if err := decode(&req); err != nil {
		return nil, err
	}

	var password, login string
	var roles []string
	var isModule bool
	switch {
	case req.ModuleID != "":
		mod, err := s.config.Mediator.ModuleByID(req.ModuleID)
		if err != nil || mod.Password == "" {
			return nil, errors.NewUnauthorized(nil, "authentication failed")
		}
		password, login, isModule = mod.Password, mod.ID, true
	case req.Login != "":
		user, err := s.config.Mediator.UserByLogin(req.Login)
		if err != nil {
			return nil, errors.NewUnauthorized(nil, "authentication failed")
		}
		password, login, roles = user.Password, user.Login, user.RoleList()
	default:
		return nil, errors.NewBadRequest(nil, "Login or ModuleID required")
	}

	id := uuid.NewString()
	challenge := uuid.NewString()
	sess := newSession(id, challenge, password, login, roles, isModule, s.config.Clock.Now())
	s.addSession(sess)
	return params.LoginResponse{Session: id, Challenge: challenge}, nil
}

func handleAuthenticate(s *Server, _ context.Context, decode decodeFunc) (interface{}, error) {
	var req params.AuthenticateRequest
	if err := decode(&req); err != nil {
		return nil, err
	}
	sess, err := s.pendingSession(req.Session)
	if err != nil {
		return nil, errors.Trace(err)
	}
	expected := ChallengeHash(sess.password, sess.challenge, sess.id)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(req.Hash)) != 1 {
		s.removeSession(sess.id)
		return nil, errors.NewUnauthorized(nil, "authentication failed")
	}
	sess.setAuthenticated()
	sess.Touch(s.config.Clock.Now())
	return params.AuthenticateResponse{
		Session: sess.id,
		User:    sess.login,
		Roles:   sess.roles,
	}, nil
}

func handleLogout(s *Server, _ context.Context, decode decodeFunc) (interface{}, error) {
	var req params.LogoutRequest
	if err := decode(&req); err != nil {
		return nil, err
	}
	s.removeSession(req.Session)
	return params.EmptyResponse{}, nil
}

var eventUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// serveEvents upgrades the connection and binds it to the session named by
// the first text frame. The handshake frame is size limited; event frames
// flowing the other way are not.
func (s *Server) serveEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := eventUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Infof("websocket upgrade failed: %v", err)
		return
	}
	conn.SetReadLimit(handshakeReadLimit)
	_, msg, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return
	}
	conn.SetReadLimit(0)
	sess, err := s.session(string(msg))
	if err != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "invalid session"), deadline(s))
		_ = conn.Close()
		return
	}
	if err := sess.AttachSocket(conn); err != nil {
		_ = conn.Close()
	}
}

func deadline(s *Server) (t time.Time) {
	return s.config.Clock.Now().Add(time.Second)
}
