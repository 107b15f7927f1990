package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/invoicely/internal/generation"
	logdomain "github.com/smallbiznis/invoicely/internal/generationlog/domain"
	scheduledomain "github.com/smallbiznis/invoicely/internal/schedule/domain"
	"github.com/smallbiznis/invoicely/pkg/db/pagination"
)

type generateFailureResponse struct {
	Error errorPayload    `json:"error"`
	Log   logdomain.Entry `json:"log"`
}

func (s *Server) ListSchedules(c *gin.Context) {
	var query scheduledomain.ListRequest
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.schedules.List(c.Request.Context(), scheduledomain.ListRequest{
		Search: strings.TrimSpace(query.Search),
		Status: strings.TrimSpace(query.Status),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CreateSchedule(c *gin.Context) {
	var req scheduledomain.ScheduleInput
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.schedules.Create(c.Request.Context(), scheduledomain.CreateRequest{ScheduleInput: req})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) GetSchedule(c *gin.Context) {
	resp, err := s.schedules.Get(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateSchedule(c *gin.Context) {
	var req scheduledomain.ScheduleInput
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.schedules.Update(c.Request.Context(), scheduledomain.UpdateRequest{
		ID:            strings.TrimSpace(c.Param("id")),
		ScheduleInput: req,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeleteSchedule(c *gin.Context) {
	if err := s.schedules.Delete(c.Request.Context(), strings.TrimSpace(c.Param("id"))); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) PauseSchedule(c *gin.Context) {
	s.transition(c, s.schedules.Pause)
}

func (s *Server) ResumeSchedule(c *gin.Context) {
	s.transition(c, s.schedules.Resume)
}

func (s *Server) CancelSchedule(c *gin.Context) {
	s.transition(c, s.schedules.Cancel)
}

func (s *Server) transition(c *gin.Context, fn func(ctx context.Context, id string) (*scheduledomain.Response, error)) {
	resp, err := fn(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GenerateNow(c *gin.Context) {
	resp, err := s.schedules.GenerateNow(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		if resp != nil && errors.Is(err, generation.ErrGenerationFailed) {
			_ = c.Error(err)
			status, payload := mapError(err)
			c.AbortWithStatusJSON(status, generateFailureResponse{Error: payload, Log: resp.Log})
			return
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListGenerationLogs(c *gin.Context) {
	var query pagination.Pagination
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.schedules.GetLogs(c.Request.Context(), strings.TrimSpace(c.Param("id")), query)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Entries, "page_info": resp.PageInfo})
}

func (s *Server) GetScheduleStats(c *gin.Context) {
	resp, err := s.schedules.GetStats(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
