package dto

import (
	"time"

	"demandForecastApp/internal/domain/model"
)

// PairOutcomeDTO is the JSON view of one pair's result.
type PairOutcomeDTO struct {
	Region        string                 `json:"region"`
	Metric        model.Metric           `json:"metric"`
	Status        string                 `json:"status"`
	HistoryLen    int                    `json:"history_len"`
	Points        []*model.ForecastPoint `json:"points,omitempty"`
	Notifications int                    `json:"notifications"`
	Error         string                 `json:"error,omitempty"`
}

// RunReportDTO is pushed to websocket clients after each pipeline run.
type RunReportDTO struct {
	Type       string           `json:"type"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Stage      string           `json:"stage"`
	Stages     []string         `json:"stages"`
	RolledUp   int              `json:"rolled_up"`
	Succeeded  int              `json:"succeeded"`
	Skipped    int              `json:"skipped"`
	Failed     bool             `json:"failed"`
	Error      string           `json:"error,omitempty"`
	Outcomes   []PairOutcomeDTO `json:"outcomes"`
}

// FromRunReport converts a run report for the API layer.
func FromRunReport(r *model.RunReport) *RunReportDTO {
	out := &RunReportDTO{
		Type:       "run_report",
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Stage:      string(r.Stage()),
		Stages:     make([]string, len(r.Stages)),
		RolledUp:   r.RolledUp,
		Succeeded:  r.Count(model.PairSucceeded),
		Skipped:    r.Count(model.PairSkipped),
		Failed:     r.Failed(),
		Outcomes:   make([]PairOutcomeDTO, 0, len(r.Outcomes)),
	}
	for i, s := range r.Stages {
		out.Stages[i] = string(s)
	}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	for _, o := range r.Outcomes {
		p := PairOutcomeDTO{
			Region:        string(o.Region),
			Metric:        o.Metric,
			Status:        string(o.Status),
			HistoryLen:    o.HistoryLen,
			Points:        o.Points,
			Notifications: len(o.Notifications),
		}
		if o.Err != nil {
			p.Error = o.Err.Error()
		}
		out.Outcomes = append(out.Outcomes, p)
	}
	return out
}
