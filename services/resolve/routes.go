// Copyright (C) 2026 Hydronav Contributors (dev@hydronav.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package resolve

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all resolve routes with the router.
//
// Description:
//
//	Registers all /v1/resolve/* endpoints with the given Gin router group.
//	The router group should already have any required middleware applied.
//
// Endpoints:
//
//	POST /v1/resolve/query  - Resolve and execute (or disambiguate/decline)
//	POST /v1/resolve/route  - Resolve only, no execution
//	POST /v1/resolve/entity - Resolve a plant reference to its code
//	GET  /v1/resolve/tools  - List registered tools
//	GET  /v1/resolve/health - Health check
//
// Example:
//
//	service, _ := resolve.NewService(ctx, cfg)
//	handlers := resolve.NewHandlers(service)
//
//	v1 := router.Group("/v1")
//	resolve.RegisterRoutes(v1, handlers)
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	res := rg.Group("/resolve")
	{
		res.POST("/query", handlers.HandleQuery)
		res.POST("/route", handlers.HandleRoute)
		res.POST("/entity", handlers.HandleEntity)

		res.GET("/tools", handlers.HandleTools)
		res.GET("/health", handlers.HandleHealth)
	}
}
