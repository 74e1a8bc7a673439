// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package api exposes a thin gin HTTP surface over the core library.
// All grading and per-frame logic lives in internal/grading and
// internal/pipeline; handlers only translate JSON to and from those
// collaborators.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noga-astro/frameqc/internal/grading"
	"github.com/noga-astro/frameqc/internal/imaging"
	"github.com/noga-astro/frameqc/internal/pipeline"
	"github.com/noga-astro/frameqc/internal/store"
)

// Server holds the collaborators route handlers need. It carries no
// mutable state of its own beyond what MetadataStore already owns.
type Server struct {
	Store       store.MetadataStore
	Backend     imaging.Backend
	PipelineCfg pipeline.Config
	GradingCfg  grading.Config
	Logger      *slog.Logger
}

// NewRouter builds the gin.Engine exposing /v1/frames/process and
// /v1/grade under the /api route group.
func NewRouter(s *Server) *gin.Engine {
	if s.Logger == nil {
		s.Logger = slog.Default()
	}
	r := gin.Default()
	apiGroup := r.Group("/api")
	{
		v1 := apiGroup.Group("/v1")
		{
			v1.GET("/ping", s.getPing)
			v1.POST("/frames/process", s.postProcessFrame)
			v1.POST("/grade", s.postGrade)
		}
	}
	return r
}

func (s *Server) getPing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "pong"})
}

type processFrameRequest struct {
	Path       string `json:"path" binding:"required"`
	FrameID    string `json:"frame_id" binding:"required"`
	ProjectID  string `json:"project_id"`
	TargetID   string `json:"target_id"`
	FilterName string `json:"filter_name"`
	AcquiredAt int64  `json:"acquired_at"`
}

type processFrameResponse struct {
	FrameID   string  `json:"frame_id"`
	StarCount int     `json:"star_count"`
	AvgHFR    float64 `json:"avg_hfr"`
	AvgFWHM   float64 `json:"avg_fwhm"`
}

func (s *Server) postProcessFrame(c *gin.Context) {
	var req processFrameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Minute)
	defer cancel()

	res, err := pipeline.ProcessFrame(ctx, req.Path, s.PipelineCfg, s.Backend, s.Logger)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	rec := store.FrameRecord{
		FrameID:       req.FrameID,
		ProjectID:     req.ProjectID,
		TargetID:      req.TargetID,
		FilterName:    req.FilterName,
		OriginalFile:  req.Path,
		HFR:           res.Metrics.AvgHFR,
		DetectedStars: res.Metrics.StarCount,
		Mean:          res.Stats.Mean,
		Median:        res.Stats.Median,
		Stddev:        res.Stats.StdDev,
		Mad:           res.Stats.MAD,
		AcquiredAt:    req.AcquiredAt,
		GradingStatus: store.Pending,
	}
	if err := s.Store.UpsertFrame(ctx, rec); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, processFrameResponse{
		FrameID:   req.FrameID,
		StarCount: res.Metrics.StarCount,
		AvgHFR:    res.Metrics.AvgHFR,
		AvgFWHM:   res.Metrics.AvgFWHM,
	})
}

type gradeRequest struct {
	TargetID   string `json:"target_id" binding:"required"`
	FilterName string `json:"filter_name" binding:"required"`
}

type gradeResponse struct {
	Decisions        []grading.Decision `json:"decisions"`
	InsufficientData bool               `json:"insufficient_data"`
}

func (s *Server) postGrade(c *gin.Context) {
	var req gradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	recs, err := s.Store.FramesByTargetFilter(ctx, req.TargetID, req.FilterName)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	frames := make([]grading.FrameMetrics, len(recs))
	existing := make(map[string]grading.Decision)
	for i, rec := range recs {
		frames[i] = grading.FrameMetrics{
			FrameID:    rec.FrameID,
			TargetID:   rec.TargetID,
			FilterID:   rec.FilterName,
			AcquiredAt: rec.AcquiredAt,
			StarCount:  rec.DetectedStars,
			AvgHFR:     rec.HFR,
		}
		if rec.GradingStatus != store.Pending {
			outcome := grading.Accept
			if rec.GradingStatus == store.Rejected {
				outcome = grading.Reject
			}
			existing[rec.FrameID] = grading.Decision{FrameID: rec.FrameID, Outcome: outcome, HumanReason: rec.RejectReason}
		}
	}

	decisions, insufficient := grading.Grade(frames, existing, s.GradingCfg)
	for _, d := range decisions {
		status := store.Accepted
		if d.Outcome == grading.Reject {
			status = store.Rejected
		}
		if err := s.Store.UpdateGradingStatus(ctx, d.FrameID, status, d.HumanReason); err != nil {
			s.Logger.Warn("failed to persist grading decision", "frame_id", d.FrameID, "err", err)
		}
	}

	c.JSON(http.StatusOK, gradeResponse{Decisions: decisions, InsufficientData: len(insufficient) > 0})
}
