package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// RunStat summarizes one metric over repeated runs. Values are rounded to
// four decimals.
type RunStat struct {
	Mean   float64 `json:"mean"`
	Stddev float64 `json:"stddev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// ComputeStats uses the sample (n-1) standard deviation, which is 0 for a
// single value. An empty sample yields all zeros.
func ComputeStats(values []float64) RunStat {
	if len(values) == 0 {
		return RunStat{}
	}
	n := float64(len(values))
	lo, hi, sum := values[0], values[0], 0.0
	for _, v := range values {
		sum += v
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	mean := sum / n

	var sd float64
	if len(values) > 1 {
		var sq float64
		for _, v := range values {
			sq += (v - mean) * (v - mean)
		}
		sd = math.Sqrt(sq / (n - 1))
	}
	return RunStat{Mean: round4(mean), Stddev: round4(sd), Min: round4(lo), Max: round4(hi)}
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}

// ConfigSummary holds the per-metric stats of one configuration.
type ConfigSummary struct {
	PassRate    RunStat `json:"pass_rate"`
	TimeSeconds RunStat `json:"time_seconds"`
	Tokens      RunStat `json:"tokens"`
}

// Delta is primary minus baseline, pre-formatted with an explicit sign.
type Delta struct {
	PassRate    string `json:"pass_rate"`
	TimeSeconds string `json:"time_seconds"`
	Tokens      string `json:"tokens"`
}

type NamedSummary struct {
	Name    string
	Summary ConfigSummary
}

// RunSummary keeps configurations in the order they were found. It
// marshals to a JSON object with one key per configuration plus "delta".
type RunSummary struct {
	Configs []NamedSummary
	Delta   Delta
}

func (s RunSummary) Get(name string) (ConfigSummary, bool) {
	for _, c := range s.Configs {
		if c.Name == name {
			return c.Summary, true
		}
	}
	return ConfigSummary{}, false
}

func (s RunSummary) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for _, c := range s.Configs {
		if err := writeField(&buf, c.Name, c.Summary); err != nil {
			return nil, err
		}
		buf.WriteByte(',')
	}
	if err := writeField(&buf, "delta", s.Delta); err != nil {
		return nil, err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeField(buf *bytes.Buffer, key string, v any) error {
	k, err := json.Marshal(key)
	if err != nil {
		return err
	}
	val, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", key, err)
	}
	buf.Write(k)
	buf.WriteByte(':')
	buf.Write(val)
	return nil
}

// Aggregate computes stats per configuration and the delta between the
// first two. With a single configuration the baseline is zero; further
// configurations are summarized but never enter the delta.
func Aggregate(configs []ConfigRuns) RunSummary {
	var s RunSummary
	for _, c := range configs {
		var rates, times, tokens []float64
		for _, r := range c.Runs {
			rates = append(rates, r.PassRate)
			times = append(times, r.TimeSeconds)
			tokens = append(tokens, float64(r.Tokens))
		}
		s.Configs = append(s.Configs, NamedSummary{
			Name: c.Name,
			Summary: ConfigSummary{
				PassRate:    ComputeStats(rates),
				TimeSeconds: ComputeStats(times),
				Tokens:      ComputeStats(tokens),
			},
		})
	}

	var primary, baseline ConfigSummary
	if len(s.Configs) > 0 {
		primary = s.Configs[0].Summary
	}
	if len(s.Configs) > 1 {
		baseline = s.Configs[1].Summary
	}
	s.Delta = Delta{
		PassRate:    fmt.Sprintf("%+.2f", primary.PassRate.Mean-baseline.PassRate.Mean),
		TimeSeconds: fmt.Sprintf("%+.1f", primary.TimeSeconds.Mean-baseline.TimeSeconds.Mean),
		Tokens:      fmt.Sprintf("%+.0f", primary.Tokens.Mean-baseline.Tokens.Mean),
	}
	return s
}
