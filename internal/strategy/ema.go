package strategy

// ExponentialMovingAverage is a streaming EMA with alpha = 2 / (period + 1).
// It reports Initialized once period inputs have been seen.
type ExponentialMovingAverage struct {
	period int
	alpha  float64
	value  float64
	count  int
}

func NewExponentialMovingAverage(period int) *ExponentialMovingAverage {
	return &ExponentialMovingAverage{
		period: period,
		alpha:  2.0 / float64(period+1),
	}
}

func (e *ExponentialMovingAverage) Update(x float64) {
	if e.count == 0 {
		e.value = x
	} else {
		e.value = e.alpha*x + (1-e.alpha)*e.value
	}
	e.count++
}

func (e *ExponentialMovingAverage) Value() float64 { return e.value }

func (e *ExponentialMovingAverage) Initialized() bool { return e.count >= e.period }

func (e *ExponentialMovingAverage) Reset() {
	e.value = 0
	e.count = 0
}
