package infra

import (
	"encoding/json"
	"log/slog"
	"os"
)

// QualityGate is the trade-permit check derived from externally maintained
// risk metrics. A sidecar process refreshes the payload file; this adapter
// only reads and compares. Queried once per engine cycle, never per symbol.
type QualityGate struct {
	path         string
	coherenceMin float64 // L must be at least this
	gainMax      float64 // G_eff must not exceed this
	anomalyMax   float64 // Q must not exceed this
}

// gatePayload matches the metrics file written by the watcher sidecar.
type gatePayload struct {
	Metrics struct {
		L    float64 `json:"L"`
		GEff float64 `json:"G_eff"`
		Q    float64 `json:"Q"`
	} `json:"metrics"`
}

// NewQualityGate builds the gate from config thresholds.
func NewQualityGate(cfg *Config) *QualityGate {
	return &QualityGate{
		path:         cfg.Gate.MetricsPath,
		coherenceMin: cfg.Gate.CoherenceMin,
		gainMax:      cfg.Gate.GainMax,
		anomalyMax:   cfg.Gate.AnomalyMax,
	}
}

// Permits reports whether trading is allowed this cycle.
//
// When the metrics source is unreadable the gate fails open only while the
// coherence floor is still at its zero default. An operator who raised the
// floor has opted into suppression, so a missing source then fails closed.
func (g *QualityGate) Permits() bool {
	data, err := os.ReadFile(g.path)
	if err != nil {
		return g.coherenceMin == 0
	}

	var p gatePayload
	if err := json.Unmarshal(data, &p); err != nil {
		slog.Debug("gate payload unparseable", slog.String("path", g.path), slog.Any("error", err))
		return g.coherenceMin == 0
	}

	return p.Metrics.L >= g.coherenceMin &&
		p.Metrics.GEff <= g.gainMax &&
		p.Metrics.Q <= g.anomalyMax
}
