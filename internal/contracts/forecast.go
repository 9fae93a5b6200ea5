package contracts

import (
	"fmt"
	"time"
)

// PointForecast 단일 모델의 (호라이즌, 대상일, 예측값)
type PointForecast struct {
	Horizon    Horizon   `json:"horizon"`
	Step       int       `json:"step"`
	TargetDate time.Time `json:"target_date"`
	Value      float64   `json:"value"`
	Model      ModelType `json:"model"`
}

// ForecastStep 앙상블 결과의 스텝별 레코드
type ForecastStep struct {
	Step          int             `json:"step"`
	Date          time.Time       `json:"date"`
	Mean          float64         `json:"mean"`
	CI80Low       float64         `json:"ci80_low"`
	CI80High      float64         `json:"ci80_high"`
	CI95Low       float64         `json:"ci95_low"`
	CI95High      float64         `json:"ci95_high"`
	Contributions []PointForecast `json:"contributions"`
}

// ForecastResult 한 런, 한 호라이즌의 최종 예측
type ForecastResult struct {
	RunID       string             `json:"run_id,omitempty"`
	Horizon     Horizon            `json:"horizon"`
	IssueDate   time.Time          `json:"issue_date"`
	IssueValue  float64            `json:"issue_value"`
	GeneratedAt time.Time          `json:"generated_at"`
	Models      []ModelType        `json:"models"`
	Weights     map[string]float64 `json:"weights"`
	Steps       []ForecastStep     `json:"steps"`
	Degraded    bool               `json:"degraded"`
	Warnings    []string           `json:"warnings,omitempty"`
}

// Final returns the end-of-horizon step
func (r *ForecastResult) Final() (ForecastStep, bool) {
	if len(r.Steps) == 0 {
		return ForecastStep{}, false
	}
	return r.Steps[len(r.Steps)-1], true
}

// Validate checks interval ordering and nesting at every step
func (r *ForecastResult) Validate() error {
	for _, s := range r.Steps {
		switch {
		case s.CI80Low > s.Mean || s.Mean > s.CI80High:
			return fmt.Errorf("step %d: mean %.6f outside 80%% interval [%.6f, %.6f]", s.Step, s.Mean, s.CI80Low, s.CI80High)
		case s.CI95Low > s.CI80Low || s.CI95High < s.CI80High:
			return fmt.Errorf("step %d: 80%% interval not nested in 95%% interval", s.Step)
		}
	}
	return nil
}
