// Copyright (C) 2026 Driftline (dev@driftline.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package routes registers the orchestrator's HTTP surface.
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"github.com/driftline/driftline/services/orchestrator/handlers"
	"github.com/driftline/driftline/services/orchestrator/history"
)

// SetupRoutes wires every endpoint onto the router.
//
// # Inputs
//
//   - router: Gin engine, middleware already attached.
//   - client: Weaviate client for session administration.
//   - store: History store backing the transcript endpoints.
//   - turnHandler: The streaming turn handler.
func SetupRoutes(router *gin.Engine, client *weaviate.Client, store history.Store,
	turnHandler handlers.TurnStreamHandler) {

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version 1 group
	v1 := router.Group("/v1")
	{
		v1.POST("/turns/stream", turnHandler.HandleTurnStream)

		// Session administration routes
		sessions := v1.Group("/sessions")
		{
			sessions.GET("", handlers.ListSessions(client))
			sessions.GET("/:tenant/:conversation/history", handlers.GetSessionHistory(store))
			sessions.DELETE("/:tenant/:conversation", handlers.DeleteSession(client))
		}
	}
}
