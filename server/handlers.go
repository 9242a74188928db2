// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/poiesic/pdfrag/core"
)

func (s *Server) sendEvent(c *gin.Context) {
	var req EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, fmt.Errorf("%w: %w", core.ErrInput, err))
		return
	}

	decode, ok := s.decoders[req.Name]
	if !ok {
		s.fail(c, fmt.Errorf("%w: %s", ErrUnknownEvent, req.Name))
		return
	}
	input, err := decode(req.Data)
	if err != nil {
		s.fail(c, err)
		return
	}

	run, err := s.orch.Submit(c.Request.Context(), req.Name, input)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, s.view(run))
}

func (s *Server) eventRuns(c *gin.Context) {
	runs, err := s.orch.RunsForEvent(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}

	views := make([]RunView, 0, len(runs))
	for _, run := range runs {
		views = append(views, s.view(run))
	}
	c.JSON(http.StatusOK, views)
}

func (s *Server) getRun(c *gin.Context) {
	run, err := s.orch.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.view(run))
}

func (s *Server) cancelRun(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	if err := s.orch.Cancel(ctx, id); err != nil {
		s.fail(c, err)
		return
	}

	run, err := s.orch.Status(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, s.view(run))
}

func (s *Server) retryRun(c *gin.Context) {
	run, err := s.orch.Retry(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, s.view(run))
}

func (s *Server) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "route", c.FullPath(), "err", err)
	}
	c.JSON(status, errorResponse{Error: err.Error()})
}

// view renders a run, decoding its output with the pipeline's codec.
func (s *Server) view(run *core.Run) RunView {
	v := RunView{
		RunID:     run.ID,
		EventID:   run.EventID,
		Pipeline:  run.Pipeline,
		Status:    run.Status,
		Reason:    run.Reason,
		Failure:   run.Failure,
		Deferrals: run.Deferrals,
		Steps:     make([]StepView, 0, len(run.Steps)),
		CreatedAt: run.CreatedAt,
		UpdatedAt: run.UpdatedAt,
	}
	if !run.NotBefore.IsZero() && run.Status == core.RunPending {
		notBefore := run.NotBefore
		v.NotBefore = &notBefore
	}
	for _, step := range run.Steps {
		v.Steps = append(v.Steps, StepView{
			Name:        step.Name,
			Attempts:    step.Attempts,
			LastError:   step.LastError,
			CompletedAt: step.CompletedAt,
		})
	}

	if run.Status != core.RunCompleted {
		return v
	}
	p, ok := s.orch.Pipeline(run.Pipeline)
	if !ok {
		return v
	}
	out, err := p.DecodeOutput(run.Output)
	if err != nil {
		s.logger.Warn("failed to decode run output", "run_id", run.ID, "err", err)
		return v
	}
	v.Output = out
	return v
}
