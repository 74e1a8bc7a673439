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

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/noga-astro/frameqc/internal/grading"
	"github.com/noga-astro/frameqc/internal/imaging"
	"github.com/noga-astro/frameqc/internal/pipeline"
	"github.com/noga-astro/frameqc/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer() (*Server, *httptest.Server) {
	s := &Server{
		Store:       store.NewMemoryStore(),
		Backend:     imaging.PureBackend{},
		PipelineCfg: pipeline.DefaultConfig(),
		GradingCfg:  grading.DefaultConfig(),
	}
	return s, httptest.NewServer(NewRouter(s))
}

func TestPing(t *testing.T) {
	_, srv := newTestServer()
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/ping")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestPostProcessFrameMissingFileReturns422(t *testing.T) {
	_, srv := newTestServer()
	defer srv.Close()

	body, _ := json.Marshal(processFrameRequest{Path: "/no/such.fits", FrameID: "f1"})
	resp, err := http.Post(srv.URL+"/api/v1/frames/process", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", resp.StatusCode)
	}
}

func TestPostProcessFrameRequiresPath(t *testing.T) {
	_, srv := newTestServer()
	defer srv.Close()

	body, _ := json.Marshal(map[string]string{"frame_id": "f1"})
	resp, err := http.Post(srv.URL+"/api/v1/frames/process", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestPostGradeInsufficientData(t *testing.T) {
	s, srv := newTestServer()
	defer srv.Close()

	ctx := context.Background()
	s.Store.UpsertFrame(ctx, store.FrameRecord{FrameID: "f1", TargetID: "T", FilterName: "L", AcquiredAt: 1, HFR: 2.5, DetectedStars: 500})

	body, _ := json.Marshal(gradeRequest{TargetID: "T", FilterName: "L"})
	resp, err := http.Post(srv.URL+"/api/v1/grade", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var out gradeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !out.InsufficientData {
		t.Errorf("expected insufficient_data=true for a single-frame group")
	}
}
