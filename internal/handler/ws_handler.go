/*
Package handler provides the HTTP handler function for WebSocket connection upgrading and initialization.

This file contains the HandleWebSocket function, responsible for rate limiting,
authenticating the connecting user, upgrading the HTTP connection to WebSocket
and initiating the client lifecycle.
*/
package handler

import (
	"net"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/ArchSirius/log3900-server/internal/app/collab"
	"github.com/ArchSirius/log3900-server/internal/pkg/auth/jwt"
	"github.com/ArchSirius/log3900-server/internal/pkg/errs"
	"github.com/ArchSirius/log3900-server/internal/pkg/limiter"
	"github.com/ArchSirius/log3900-server/internal/pkg/logx"
	"github.com/ArchSirius/log3900-server/internal/pkg/resp"
)

// HandleWebSocket creates an HTTP HandlerFunc to process WebSocket connection requests.
func HandleWebSocket(upgrader websocket.Upgrader, rateLimiter *limiter.IPRateLimiter, deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}

		if ip == "" {
			ip = "unknown_ip"
		}

		if !rateLimiter.GetLimiter(ip).Allow() {
			logx.Warn("WebSocket connection rejected: Rate limit exceeded.", "ip", ip)
			resp.RespondError(w, r, errs.NewError(errs.ErrRateLimitExceeded))
			return
		}

		// browsers cannot set headers on websocket dials, so the token may
		// ride the query string instead
		tokenString := r.URL.Query().Get("token")
		if tokenString == "" {
			tokenString = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		}
		if tokenString == "" {
			logx.Warn("WebSocket request rejected: Missing token", "ip", ip)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		payload, err := jwt.ParseToken(tokenString, deps.Config.JWTSecret)
		if err != nil {
			logx.Warn("WebSocket request rejected: Invalid token", "ip", ip, "error", err)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		dbUser, err := deps.Users.GetUser(r.Context(), payload.ID)
		if err != nil {
			logx.Warn("WebSocket request rejected: Unknown user", "user_id", payload.ID)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		logx.Info("Attempting to upgrade connection", "user_id", dbUser.ID)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade connection to WebSocket")
			return
		}

		client := collab.NewClient(deps.Controller, conn, dbUser.Ref())

		go client.WritePump()

		logx.Info("WebSocket connection established and client registered", "client_id", dbUser.ID)

		deps.Controller.Init(client)

		client.ReadPump()
	}
}
