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

package main

import (
	"testing"

	"github.com/noga-astro/frameqc/internal/grading"
)

func TestParseResetMode(t *testing.T) {
	cases := map[string]grading.ResetMode{
		"none":      grading.ResetNone,
		"automatic": grading.ResetAutomatic,
		"all":       grading.ResetAll,
	}
	for in, want := range cases {
		got, err := parseResetMode(in)
		if err != nil {
			t.Errorf("parseResetMode(%q): unexpected error %v", in, err)
		}
		if got != want {
			t.Errorf("parseResetMode(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestParseResetModeRejectsUnknown(t *testing.T) {
	if _, err := parseResetMode("bogus"); err == nil {
		t.Errorf("expected error for unknown reset mode")
	}
}
