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

package store

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestUpsertAndGetFrame(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	rec := FrameRecord{FrameID: "f1", TargetID: "T", FilterName: "Ha", HFR: 2.5}
	if err := s.UpsertFrame(ctx, rec); err != nil {
		t.Fatalf("UpsertFrame: %v", err)
	}
	got, ok, err := s.GetFrame(ctx, "f1")
	if err != nil || !ok {
		t.Fatalf("GetFrame: got %v, %v, %v", got, ok, err)
	}
	if diff := cmp.Diff(rec, got); diff != "" {
		t.Errorf("stored record mismatch (-want +got):\n%s", diff)
	}
}

func TestUpsertIsIdempotentOverwrite(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	s.UpsertFrame(ctx, FrameRecord{FrameID: "f1", HFR: 2.5})
	s.UpsertFrame(ctx, FrameRecord{FrameID: "f1", HFR: 9.9})
	got, _, _ := s.GetFrame(ctx, "f1")
	if got.HFR != 9.9 {
		t.Errorf("second upsert should overwrite, got HFR = %v", got.HFR)
	}
}

func TestUpsertRejectsEmptyID(t *testing.T) {
	s := NewMemoryStore()
	if err := s.UpsertFrame(context.Background(), FrameRecord{}); err == nil {
		t.Errorf("expected error for empty frame id")
	}
}

func TestGetFrameMissing(t *testing.T) {
	s := NewMemoryStore()
	_, ok, err := s.GetFrame(context.Background(), "nope")
	if err != nil || ok {
		t.Errorf("expected ok=false, err=nil for missing frame, got %v, %v", ok, err)
	}
}

func TestFramesByTargetFilterSortedByAcquiredThenID(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	s.UpsertFrame(ctx, FrameRecord{FrameID: "b", TargetID: "T", FilterName: "L", AcquiredAt: 2})
	s.UpsertFrame(ctx, FrameRecord{FrameID: "a", TargetID: "T", FilterName: "L", AcquiredAt: 1})
	s.UpsertFrame(ctx, FrameRecord{FrameID: "c", TargetID: "T", FilterName: "L", AcquiredAt: 1})
	s.UpsertFrame(ctx, FrameRecord{FrameID: "z", TargetID: "Other", FilterName: "L", AcquiredAt: 0})

	got, err := s.FramesByTargetFilter(ctx, "T", "L")
	if err != nil {
		t.Fatalf("FramesByTargetFilter: %v", err)
	}
	ids := make([]string, len(got))
	for i, rec := range got {
		ids[i] = rec.FrameID
	}
	if diff := cmp.Diff([]string{"a", "c", "b"}, ids); diff != "" {
		t.Errorf("frame order mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdateGradingStatus(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	s.UpsertFrame(ctx, FrameRecord{FrameID: "f1"})
	if err := s.UpdateGradingStatus(ctx, "f1", Rejected, "grading.cloud_hfr"); err != nil {
		t.Fatalf("UpdateGradingStatus: %v", err)
	}
	got, _, _ := s.GetFrame(ctx, "f1")
	if got.GradingStatus != Rejected || got.RejectReason != "grading.cloud_hfr" {
		t.Errorf("got %+v", got)
	}
}

func TestUpdateGradingStatusUnknownFrame(t *testing.T) {
	s := NewMemoryStore()
	if err := s.UpdateGradingStatus(context.Background(), "nope", Accepted, ""); err == nil {
		t.Errorf("expected error for unknown frame")
	}
}

func TestContextCancellation(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.UpsertFrame(ctx, FrameRecord{FrameID: "f1"}); err == nil {
		t.Errorf("expected cancellation error")
	}
}
