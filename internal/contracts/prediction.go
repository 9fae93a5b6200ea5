package contracts

import "time"

// PredictionRecord 예측 시점에 기록되는 로그 (append-only, 키: horizon + issue_date)
type PredictionRecord struct {
	Horizon    Horizon   `json:"horizon"`
	IssueDate  time.Time `json:"issue_date"`
	TargetDate time.Time `json:"target_date"`
	IssueValue float64   `json:"issue_value"` // 발행일 관측값 (방향 적중 계산용)
	Predicted  float64   `json:"predicted"`
	CI80Low    float64   `json:"ci80_low"`
	CI80High   float64   `json:"ci80_high"`
	CI95Low    float64   `json:"ci95_low"`
	CI95High   float64   `json:"ci95_high"`
	RunID      string    `json:"run_id,omitempty"`
	LoggedAt   time.Time `json:"logged_at"`
}

// NewPredictionRecord takes the end-of-horizon step of a result
func NewPredictionRecord(r *ForecastResult, loggedAt time.Time) (PredictionRecord, bool) {
	final, ok := r.Final()
	if !ok {
		return PredictionRecord{}, false
	}
	return PredictionRecord{
		Horizon:    r.Horizon,
		IssueDate:  Day(r.IssueDate),
		TargetDate: Day(final.Date),
		IssueValue: r.IssueValue,
		Predicted:  final.Mean,
		CI80Low:    final.CI80Low,
		CI80High:   final.CI80High,
		CI95Low:    final.CI95Low,
		CI95High:   final.CI95High,
		RunID:      r.RunID,
		LoggedAt:   loggedAt,
	}, true
}

// ActualRecord 실현값 (대상일 기준)
type ActualRecord struct {
	TargetDate time.Time `json:"target_date"`
	Value      float64   `json:"value"`
	ObservedAt time.Time `json:"observed_at"`
}

// PairedRecord 예측과 실현값의 짝
type PairedRecord struct {
	PredictionRecord
	Actual float64 `json:"actual"`
}

// AbsError returns |actual - predicted|
func (p PairedRecord) AbsError() float64 {
	d := p.Actual - p.Predicted
	if d < 0 {
		return -d
	}
	return d
}

// DirectionHit reports whether predicted and realized moves share a sign
func (p PairedRecord) DirectionHit() bool {
	return (p.Predicted-p.IssueValue)*(p.Actual-p.IssueValue) > 0
}

// Within80 reports whether the actual fell inside the 80% interval
func (p PairedRecord) Within80() bool {
	return p.Actual >= p.CI80Low && p.Actual <= p.CI80High
}

// Within95 reports whether the actual fell inside the 95% interval
func (p PairedRecord) Within95() bool {
	return p.Actual >= p.CI95Low && p.Actual <= p.CI95High
}
