package engine

// Progress bands of the fake generation counter
const (
	slowBandEnd = 30
	fastBandEnd = 80

	slowStep = 3
	fastStep = 8
	tailStep = 2

	// ProgressComplete is the value the counter settles on
	ProgressComplete = 100
)

// NextProgress advances the counter by one tick. Growth is slow below 30,
// fast below 80 and slow again up to 100, where it clamps.
func NextProgress(p int) int {
	var next int
	switch {
	case p < slowBandEnd:
		next = p + slowStep
	case p < fastBandEnd:
		next = p + fastStep
	default:
		next = p + tailStep
	}
	if next > ProgressComplete {
		next = ProgressComplete
	}
	return next
}
