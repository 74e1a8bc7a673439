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

// Package grading implements the statistical grading engine: per-group
// distribution-based outlier detection and cloud (transient-event)
// sequence analysis, producing one accept/reject decision per frame.
package grading

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Outcome is a frame's grading outcome.
type Outcome int

const (
	Pending Outcome = iota
	Accept
	Reject
)

func (o Outcome) String() string {
	switch o {
	case Accept:
		return "accept"
	case Reject:
		return "reject"
	default:
		return "pending"
	}
}

// MarshalJSON renders Outcome as its lowercase name rather than its
// underlying int, so CLI and API output stays human-readable.
func (o Outcome) MarshalJSON() ([]byte, error) {
	return []byte(`"` + o.String() + `"`), nil
}

// UnmarshalJSON accepts the lowercase names MarshalJSON writes.
func (o *Outcome) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for _, c := range []Outcome{Pending, Accept, Reject} {
		if c.String() == s {
			*o = c
			return nil
		}
	}
	return fmt.Errorf("grading: unknown outcome %q", s)
}

// ResetMode controls how pre-existing decisions from a prior run are
// treated when regrading.
type ResetMode int

const (
	ResetNone ResetMode = iota
	ResetAutomatic
	ResetAll
)

// autoPrefix marks a human_reason as machine-generated, so an Automatic
// reset knows it is safe to clear and recompute.
const autoPrefix = "[Auto] "

// FrameMetrics is one frame's previously-computed measurements, the
// grading engine's sole numeric input per frame.
type FrameMetrics struct {
	FrameID    string  `json:"frame_id"`
	TargetID   string  `json:"target_id"`
	FilterID   string  `json:"filter_id"`
	AcquiredAt int64   `json:"acquired_at"`
	StarCount  int     `json:"star_count"`
	AvgHFR     float64 `json:"avg_hfr"`
}

// Decision is the grading engine's per-frame verdict.
type Decision struct {
	FrameID        string  `json:"frame_id"`
	Outcome        Outcome `json:"outcome"`
	ReasonCode     string  `json:"reason_code"`
	HumanReason    string  `json:"human_reason"`
	ConfidenceNote string  `json:"confidence_note,omitempty"`
}

// Config holds the grading engine's enable flags and thresholds.
type Config struct {
	EnableHFR            bool
	EnableStars          bool
	EnableDistribution   bool // allow MAD fallback when a group is skewed
	EnableClouds         bool
	HFRStdDev            float64
	StarStdDev           float64
	MedianShiftThreshold float64
	CloudThresholdHFR    float64
	CloudThresholdStars  float64
	CloudBaselineCount   int
	ResetMode            ResetMode
}

// DefaultConfig returns the engine's documented defaults.
func DefaultConfig() Config {
	return Config{
		EnableHFR:            true,
		EnableStars:          true,
		EnableDistribution:   true,
		EnableClouds:         true,
		HFRStdDev:            2.0,
		StarStdDev:           2.0,
		MedianShiftThreshold: 0.10,
		CloudThresholdHFR:    0.20,
		CloudThresholdStars:  0.20,
		CloudBaselineCount:   5,
		ResetMode:            ResetNone,
	}
}

// groupKey identifies a (target, filter) grading group.
type groupKey struct {
	TargetID, FilterID string
}

// Grade produces one Decision per frame in frames. existing holds the
// prior run's decisions keyed by frame id, consulted per ResetMode.
// insufficientGroups reports group keys with fewer than 3 frames that
// requested distribution rules (grading.insufficient_data, reported once
// per group, not per frame).
func Grade(frames []FrameMetrics, existing map[string]Decision, cfg Config) (decisions []Decision, insufficientGroups []string) {
	groups := make(map[groupKey][]FrameMetrics)
	for _, f := range frames {
		k := groupKey{f.TargetID, f.FilterID}
		groups[k] = append(groups[k], f)
	}

	var keys []groupKey
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].TargetID != keys[j].TargetID {
			return keys[i].TargetID < keys[j].TargetID
		}
		return keys[i].FilterID < keys[j].FilterID
	})

	for _, k := range keys {
		group := groups[k]
		sort.Slice(group, func(i, j int) bool {
			if group[i].AcquiredAt != group[j].AcquiredAt {
				return group[i].AcquiredAt < group[j].AcquiredAt
			}
			return group[i].FrameID < group[j].FrameID
		})

		groupCfg := cfg
		if len(group) < 3 {
			if cfg.EnableHFR || cfg.EnableStars {
				insufficientGroups = append(insufficientGroups, fmt.Sprintf("%s/%s", k.TargetID, k.FilterID))
			}
			// Groups this small are exempt from distribution-based
			// rejection; cloud analysis still applies.
			groupCfg.EnableHFR = false
			groupCfg.EnableStars = false
		}

		decisions = append(decisions, gradeGroup(group, existing, groupCfg)...)
	}
	return decisions, insufficientGroups
}

// cloudState is the per-group rolling state machine.
type cloudState int

const (
	warming cloudState = iota
	stable
	recovering
)

func gradeGroup(group []FrameMetrics, existing map[string]Decision, cfg Config) []Decision {
	decisions := make([]Decision, 0, len(group))

	// Distribution stats are computed once over the whole ordered group;
	// per-frame skip decisions (regrade reuse) do not change the pool.
	hfrs := make([]float64, len(group))
	stars := make([]float64, len(group))
	for i, f := range group {
		hfrs[i] = f.AvgHFR
		stars[i] = float64(f.StarCount)
	}
	hfrDist := newDistribution("hfr", hfrs, cfg.MedianShiftThreshold)
	starDist := newDistribution("star_count", stars, cfg.MedianShiftThreshold)

	state := warming
	var baseline, recoveryBuffer []FrameMetrics

	for _, f := range group {
		reuse, reused := reuseExisting(f.FrameID, existing, cfg.ResetMode)
		if reuse {
			decisions = append(decisions, reused)
			updateCloudState(&state, &baseline, &recoveryBuffer, f, reused.Outcome == Reject, cfg)
			continue
		}

		d, rejected := evaluateFrame(f, state, baseline, cfg, hfrDist, starDist)
		updateCloudState(&state, &baseline, &recoveryBuffer, f, rejected, cfg)
		decisions = append(decisions, d)
	}
	return decisions
}

// reuseExisting decides whether a frame's prior decision should be kept
// verbatim instead of recomputed, per ResetMode.
func reuseExisting(frameID string, existing map[string]Decision, mode ResetMode) (bool, Decision) {
	prior, ok := existing[frameID]
	if !ok {
		return false, Decision{}
	}
	switch mode {
	case ResetAll:
		return false, Decision{}
	case ResetAutomatic:
		if isAutoReason(prior.HumanReason) {
			return false, Decision{}
		}
		return true, prior
	default: // ResetNone
		return true, prior
	}
}

func isAutoReason(reason string) bool {
	return len(reason) >= len(autoPrefix) && reason[:len(autoPrefix)] == autoPrefix
}

// evaluateFrame applies cloud analysis first, then distribution rules,
// returning the Decision and whether it was a rejection (for cloud state
// bookkeeping).
func evaluateFrame(f FrameMetrics, state cloudState, baseline []FrameMetrics, cfg Config, hfrDist, starDist distribution) (Decision, bool) {
	if cfg.EnableClouds {
		if code, reason := cloudCheck(f, state, baseline, cfg); code != "" {
			return Decision{
				FrameID:     f.FrameID,
				Outcome:     Reject,
				ReasonCode:  code,
				HumanReason: autoPrefix + reason,
			}, true
		}
	}

	if cfg.EnableHFR {
		if code, reason := hfrDist.check(f.AvgHFR, cfg.HFRStdDev, cfg.EnableDistribution); code != "" {
			return Decision{
				FrameID:     f.FrameID,
				Outcome:     Reject,
				ReasonCode:  "grading." + code,
				HumanReason: autoPrefix + reason,
			}, true
		}
	}
	if cfg.EnableStars {
		if code, reason := starDist.check(float64(f.StarCount), cfg.StarStdDev, cfg.EnableDistribution); code != "" {
			return Decision{
				FrameID:     f.FrameID,
				Outcome:     Reject,
				ReasonCode:  "grading." + code,
				HumanReason: autoPrefix + reason,
			}, true
		}
	}

	return Decision{FrameID: f.FrameID, Outcome: Accept, ReasonCode: "", HumanReason: ""}, false
}

// distribution holds the precomputed mean/median/stddev/mad for one
// metric across a group, plus whether the group is skewed. The metric
// name decides the rejection direction.
type distribution struct {
	name         string
	mean, median float64
	stddev, mad  float64
	skewed       bool
}

func newDistribution(name string, values []float64, medianShiftThreshold float64) distribution {
	d := distribution{name: name}
	if len(values) == 0 {
		return d
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	d.mean = stat.Mean(values, nil)
	d.median = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	d.stddev = stat.StdDev(values, nil)
	d.mad = medianAbsoluteDeviation(values, d.median)

	denom := math.Max(math.Abs(d.mean), 1e-9)
	d.skewed = math.Abs(d.median-d.mean)/denom > medianShiftThreshold
	return d
}

func medianAbsoluteDeviation(values []float64, median float64) float64 {
	devs := make([]float64, len(values))
	for i, v := range values {
		devs[i] = math.Abs(v - median)
	}
	sort.Float64s(devs)
	return stat.Quantile(0.5, stat.Empirical, devs, nil)
}

// check evaluates one value against the distribution, returning a reason
// code suffix ("hfr_zscore" etc. is assembled by the caller) and human
// message, or "" if it is not an outlier. Directionality follows d.name:
// star_count rejects low values only, every other metric (HFR) rejects
// high values only.
func (d distribution) check(value, stddevThreshold float64, enableDistribution bool) (code, reason string) {
	useMAD := enableDistribution && d.skewed
	if useMAD {
		if d.mad == 0 {
			// A zero MAD means at least half the group sits exactly on
			// the median; any deviation from it is an infinite-sigma
			// outlier in the direction this metric rejects.
			dev := value - d.median
			if d.name == "star_count" && dev < 0 {
				return "stars_mad", fmt.Sprintf("star count %d is below the group median %.2f (zero MAD)", int(value), d.median)
			}
			if d.name != "star_count" && dev > 0 {
				return "hfr_mad", fmt.Sprintf("HFR %.2f is above the group median %.2f (zero MAD)", value, d.median)
			}
			return "", ""
		}
		score := (value - d.median) / d.mad
		if d.name == "star_count" {
			if -score > stddevThreshold {
				return "stars_mad", fmt.Sprintf("star count %d is %.2f MAD below median %.2f (threshold %.1f)", int(value), -score, d.median, stddevThreshold)
			}
			return "", ""
		}
		if score > stddevThreshold {
			return "hfr_mad", fmt.Sprintf("HFR %.2f is %.2f MAD above median %.2f (threshold %.1f)", value, score, d.median, stddevThreshold)
		}
		return "", ""
	}

	if d.stddev == 0 {
		return "", ""
	}
	score := (value - d.mean) / d.stddev
	if d.name == "star_count" {
		if -score > stddevThreshold {
			return "stars_zscore", fmt.Sprintf("star count %d is %.2fσ below mean %.2f (threshold %.1fσ)", int(value), -score, d.mean, stddevThreshold)
		}
		return "", ""
	}
	if score > stddevThreshold {
		return "hfr_zscore", fmt.Sprintf("HFR %.2f is %.2fσ above mean %.2f (threshold %.1fσ)", value, score, d.mean, stddevThreshold)
	}
	return "", ""
}

// cloudCheck implements the cloud state machine transition for a single
// frame and returns a reason code/message if the frame is rejected.
func cloudCheck(f FrameMetrics, state cloudState, baseline []FrameMetrics, cfg Config) (code, reason string) {
	// Cloud comparisons apply in Stable and, against the last confirmed
	// baseline, in Recovering too: a frame that is still cloud-affected
	// keeps rejecting and keeps the recovery streak from accumulating.
	if state == warming || len(baseline) == 0 {
		return "", ""
	}
	hfrMedian := medianOf(extractHFR(baseline))
	starsMedian := medianOf(extractStars(baseline))

	if hfrMedian > 0 && f.AvgHFR/hfrMedian-1 > cfg.CloudThresholdHFR {
		return "grading.cloud_hfr", fmt.Sprintf("HFR %.2f is %.0f%% above baseline median %.2f (threshold %.0f%%)",
			f.AvgHFR, 100*(f.AvgHFR/hfrMedian-1), hfrMedian, 100*cfg.CloudThresholdHFR)
	}
	if starsMedian > 0 && 1-float64(f.StarCount)/starsMedian > cfg.CloudThresholdStars {
		return "grading.cloud_stars", fmt.Sprintf("star count %d is %.0f%% below baseline median %.2f (threshold %.0f%%)",
			f.StarCount, 100*(1-float64(f.StarCount)/starsMedian), starsMedian, 100*cfg.CloudThresholdStars)
	}
	return "", ""
}

// updateCloudState advances the rolling-baseline state machine after a
// frame's outcome is known. While Recovering, the
// previously-confirmed baseline is kept for comparison (so a still-bad
// frame keeps rejecting); only a run of baseline_count consecutive clean
// frames replaces it and returns the group to Stable.
func updateCloudState(state *cloudState, baseline, recoveryBuffer *[]FrameMetrics, f FrameMetrics, rejected bool, cfg Config) {
	switch *state {
	case warming:
		*baseline = append(*baseline, f)
		if len(*baseline) >= cfg.CloudBaselineCount {
			*state = stable
		}
	case stable:
		if rejected {
			*state = recovering
			*recoveryBuffer = nil
			return
		}
		*baseline = append(*baseline, f)
		if len(*baseline) > cfg.CloudBaselineCount {
			*baseline = (*baseline)[len(*baseline)-cfg.CloudBaselineCount:]
		}
	case recovering:
		if rejected {
			*recoveryBuffer = nil
			return
		}
		*recoveryBuffer = append(*recoveryBuffer, f)
		if len(*recoveryBuffer) >= cfg.CloudBaselineCount {
			*baseline = append([]FrameMetrics(nil), *recoveryBuffer...)
			*recoveryBuffer = nil
			*state = stable
		}
	}
}

func extractHFR(fs []FrameMetrics) []float64 {
	out := make([]float64, len(fs))
	for i, f := range fs {
		out[i] = f.AvgHFR
	}
	return out
}

func extractStars(fs []FrameMetrics) []float64 {
	out := make([]float64, len(fs))
	for i, f := range fs {
		out[i] = float64(f.StarCount)
	}
	return out
}

func medianOf(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	sorted := append([]float64(nil), v...)
	sort.Float64s(sorted)
	return stat.Quantile(0.5, stat.Empirical, sorted, nil)
}
