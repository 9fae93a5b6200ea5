package contracts

import (
	"fmt"
	"strconv"
	"strings"
)

// Horizon 예측 기간 (일 단위)
// 설정 시점에 고정되며, 호라이즌마다 모델/가중치/재학습 주기가 따로 존재
type Horizon int

const (
	Horizon7  Horizon = 7
	Horizon15 Horizon = 15
	Horizon30 Horizon = 30
	Horizon90 Horizon = 90
)

// AllHorizons returns supported horizons in ascending order
func AllHorizons() []Horizon {
	return []Horizon{Horizon7, Horizon15, Horizon30, Horizon90}
}

// Valid reports whether h is one of the supported horizons
func (h Horizon) Valid() bool {
	switch h {
	case Horizon7, Horizon15, Horizon30, Horizon90:
		return true
	}
	return false
}

// Days returns the number of days ahead
func (h Horizon) Days() int {
	return int(h)
}

func (h Horizon) String() string {
	return strconv.Itoa(int(h)) + "d"
}

// ParseHorizon accepts "7", "7d" or "7D"
func ParseHorizon(s string) (Horizon, error) {
	trimmed := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "d")
	n, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("%w: horizon %q", ErrConfiguration, s)
	}
	h := Horizon(n)
	if !h.Valid() {
		return 0, fmt.Errorf("%w: unsupported horizon %d", ErrConfiguration, n)
	}
	return h, nil
}
