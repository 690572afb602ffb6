package engine

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// MaxQuestionScore is awarded for a correct answer with the full time limit remaining.
const MaxQuestionScore = 1000

var maxQuestionScore = decimal.NewFromInt(MaxQuestionScore)

// QuestionScore returns max(1, ceil(1000 * remaining / limit)) for a correct answer.
func QuestionScore(remaining, limit decimal.Decimal) int {
	if !limit.IsPositive() {
		return 1
	}
	if remaining.GreaterThan(limit) {
		remaining = limit
	}
	points := maxQuestionScore.Mul(remaining).Div(limit).Ceil().IntPart()
	if points < 1 {
		return 1
	}
	return int(points)
}

// LocalAccuracy is the percentage of correct answers rounded to the nearest integer.
func LocalAccuracy(correct, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(correct) / float64(total) * 100))
}

// seconds converts a duration to fixed-point seconds with two decimal places.
func seconds(d time.Duration) decimal.Decimal {
	return decimal.New(int64(d/time.Millisecond), -3).Round(2)
}
