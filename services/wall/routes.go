// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package wall

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts the wall API under /v1/wall.
func RegisterRoutes(router *gin.Engine, w *Wall) {
	router.GET("/health", HandleHealth(w))

	// API version 1 group
	v1 := router.Group("/v1")
	{
		wallGroup := v1.Group("/wall")
		{
			wallGroup.POST("/validate", HandleValidate(w))
			wallGroup.POST("/verify", HandleVerify(w))
			wallGroup.GET("/actions", HandleActions(w))
			wallGroup.GET("/stats", HandleStats(w))
			wallGroup.GET("/health", HandleHealth(w))
			wallGroup.GET("/events/stream", HandleEventStream(w))
			// Audit administration routes
			audit := wallGroup.Group("/audit")
			{
				audit.POST("/cleanup", HandleAuditCleanup(w))
			}
			// Citation store routes
			cites := wallGroup.Group("/citations")
			{
				cites.POST("", HandleStoreCitation(w))
				cites.POST("/verify", HandleVerifyCitation(w))
			}
		}
	}
}