package api

// setupRoutes wires every endpoint
func (s *Server) setupRoutes() {
	s.router.GET("/", s.handleRoot)

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/health", s.handleHealth)
		v1.GET("/status", s.handleStatus)

		agents := v1.Group("/agents")
		{
			agents.GET("", s.handleListAgents)
			agents.GET("/:name", s.handleGetAgent)
			agents.GET("/:name/trades", s.handleAgentTrades)
			agents.GET("/:name/autocritiques", s.handleAgentAutocritiques)
			agents.GET("/:name/performance", s.handleAgentPerformance)
		}

		v1.GET("/leaderboard", s.handleLeaderboard)
		v1.GET("/cycle", s.handleLastCycle)
		v1.GET("/trades", s.handleTrades)

		trading := v1.Group("/trading")
		{
			trading.POST("/enable", s.handleEnableTrading)
			trading.POST("/disable", s.handleDisableTrading)
			trading.POST("/tick", s.handleForceTick)
		}
	}

	s.router.GET("/ws", s.handleWebsocket)
}
