package contracts

import (
	"time"
)

// ReadinessLevel 운영 준비도 단계
type ReadinessLevel string

const (
	LevelNotReady ReadinessLevel = "NOT_READY"
	LevelCautious ReadinessLevel = "CAUTIOUS"
	LevelReady    ReadinessLevel = "READY"
	LevelOptimal  ReadinessLevel = "OPTIMAL"
)

// CriterionScore 기준별 점수 (0~100)
type CriterionScore struct {
	Name     string  `json:"name"`
	Score    float64 `json:"score"`
	Pass     bool    `json:"pass"`
	Critical bool    `json:"critical"`
	Detail   string  `json:"detail"`
}

// ReadinessAssessment 이력으로부터 매번 재계산되는 준비도 평가 (저장 대상 아님)
type ReadinessAssessment struct {
	Score      float64          `json:"score"`
	Level      ReadinessLevel   `json:"level"`
	Criteria   []CriterionScore `json:"criteria"`
	AssessedAt time.Time        `json:"assessed_at"`
}

// CriticalPassed reports whether every critical criterion passes
func (a ReadinessAssessment) CriticalPassed() bool {
	for _, c := range a.Criteria {
		if c.Critical && !c.Pass {
			return false
		}
	}
	return true
}

// StatusLine renders LEVEL|timestamp for external polling
func (a ReadinessAssessment) StatusLine() string {
	return string(a.Level) + "|" + a.AssessedAt.UTC().Format(time.RFC3339)
}
