package intent

type Level int

const (
	LevelCold Level = iota
	LevelWarm
	LevelHot
)

func (l Level) String() string {
	switch l {
	case LevelHot:
		return "Hot"
	case LevelWarm:
		return "Warm"
	default:
		return "Cold"
	}
}

func Classify(score int) Level {
	switch {
	case score >= HotThreshold:
		return LevelHot
	case score >= WarmThreshold:
		return LevelWarm
	default:
		return LevelCold
	}
}

// Counts tallies scores per level.
type Counts struct {
	Hot  int `json:"hot"`
	Warm int `json:"warm"`
	Cold int `json:"cold"`
}

func Breakdown(scores []int) Counts {
	var c Counts
	for _, s := range scores {
		switch Classify(s) {
		case LevelHot:
			c.Hot++
		case LevelWarm:
			c.Warm++
		default:
			c.Cold++
		}
	}
	return c
}
