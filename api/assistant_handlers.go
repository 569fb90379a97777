package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"trading-journal/assistant"
	"trading-journal/auth"
	models "trading-journal/database/models_pkg"
	"trading-journal/realtime"
)

type insightRequest struct {
	Type string `json:"type"`
}

type aiKeyRequest struct {
	Provider  string `json:"provider"`
	APIKey    string `json:"api_key"`
	Model     string `json:"model"`
	Preferred bool   `json:"preferred"`
}

func (s *Server) handleChat(c *gin.Context) {
	var req assistant.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	session, err := s.Sessions.Open(c.Request.Context(), auth.UserID(c))
	if err != nil {
		s.respondWithError(c, err)
		return
	}
	reply, err := session.Chat(c.Request.Context(), req)
	if err != nil {
		s.respondWithError(c, err)
		return
	}
	successResponse(c, http.StatusOK, reply)
}

func (s *Server) handleGetConversation(c *gin.Context) {
	exchanges, err := s.History.Conversation(c.Request.Context(), auth.UserID(c), c.Param("conversationId"))
	if err != nil {
		s.respondWithError(c, err)
		return
	}
	successResponse(c, http.StatusOK, exchanges)
}

func (s *Server) handleDeleteConversation(c *gin.Context) {
	n, err := s.History.DeleteConversation(c.Request.Context(), auth.UserID(c), c.Param("conversationId"))
	if err != nil {
		s.respondWithError(c, err)
		return
	}
	successResponse(c, http.StatusOK, gin.H{"deleted": n})
}

func (s *Server) handleGenerateInsight(c *gin.Context) {
	var req insightRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	insightType, err := models.ParseInsightType(req.Type)
	if err != nil {
		s.respondWithError(c, err)
		return
	}

	userID := auth.UserID(c)
	session, err := s.Sessions.Open(c.Request.Context(), userID)
	if err != nil {
		s.respondWithError(c, err)
		return
	}
	insight, err := session.GenerateInsights(c.Request.Context(), insightType)
	if err != nil {
		s.respondWithError(c, err)
		return
	}

	s.Events.Publish(c.Request.Context(), userID, realtime.EventInsightCreated, insight)
	successResponse(c, http.StatusCreated, insight)
}

func (s *Server) handleListInsights(c *gin.Context) {
	var insightType models.InsightType
	if raw := c.Query("type"); raw != "" {
		t, err := models.ParseInsightType(raw)
		if err != nil {
			s.respondWithError(c, err)
			return
		}
		insightType = t
	}

	out, err := s.Insights.List(c.Request.Context(), auth.UserID(c), insightType, queryInt(c, "limit", 0))
	if err != nil {
		s.respondWithError(c, err)
		return
	}
	successResponse(c, http.StatusOK, out)
}

func (s *Server) handleDeleteInsight(c *gin.Context) {
	if err := s.Insights.Delete(c.Request.Context(), auth.UserID(c), c.Param("id")); err != nil {
		s.respondWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// handleSaveAIKey validates the key against the provider before storing it
func (s *Server) handleSaveAIKey(c *gin.Context) {
	var req aiKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	provider := strings.ToLower(strings.TrimSpace(req.Provider))
	if provider == "" || strings.TrimSpace(req.APIKey) == "" {
		errorResponse(c, http.StatusBadRequest, "provider and api_key are required")
		return
	}

	if err := s.Keys.Save(c.Request.Context(), auth.UserID(c), provider, req.APIKey, req.Model, req.Preferred); err != nil {
		s.respondWithError(c, err)
		return
	}
	successResponse(c, http.StatusOK, gin.H{"provider": provider, "preferred": req.Preferred})
}
