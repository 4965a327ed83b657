package focus

// ScoreFunc rates the sharpness at a lens position.
type ScoreFunc func(position int) int

// Sweep is a contrast-detect search: it steps the lens through Steps
// positions, one per frame, and settles on the position with the best
// score. A run succeeds when the best score reaches MinScore.
type Sweep struct {
	Steps    int
	MinScore int
	Score    ScoreFunc

	running    bool
	continuous bool
	step       int
	best       int
	bestPos    int
	position   int
}

// NewSweep creates a sweep over steps lens positions.
func NewSweep(steps, minScore int, score ScoreFunc) *Sweep {
	if steps < 1 {
		steps = 1
	}
	return &Sweep{Steps: steps, MinScore: minScore, Score: score}
}

// Start implements Engine.
func (s *Sweep) Start() error {
	if s.running {
		return ErrBusy
	}
	s.running = true
	s.step = 0
	s.best = -1
	s.bestPos = 0
	return nil
}

// Cancel implements Engine.
func (s *Sweep) Cancel() error {
	s.running = false
	return nil
}

// StartContinuous implements Engine.
func (s *Sweep) StartContinuous() error {
	s.continuous = true
	return nil
}

// StopContinuous implements Engine.
func (s *Sweep) StopContinuous() error {
	s.continuous = false
	return nil
}

// Position is the current lens position.
func (s *Sweep) Position() int {
	return s.position
}

// Poll implements Engine.
func (s *Sweep) Poll() (bool, bool) {
	if !s.running {
		if s.continuous {
			s.track()
		}
		return false, false
	}

	score := s.score(s.step)
	if score > s.best {
		s.best = score
		s.bestPos = s.step
	}
	s.step++
	if s.step < s.Steps {
		s.position = s.step
		return false, false
	}

	s.running = false
	s.position = s.bestPos
	return true, s.best >= s.MinScore
}

// track nudges the lens towards the better neighbour.
func (s *Sweep) track() {
	here := s.score(s.position)
	if s.position+1 < s.Steps && s.score(s.position+1) > here {
		s.position++
	} else if s.position > 0 && s.score(s.position-1) > here {
		s.position--
	}
}

func (s *Sweep) score(pos int) int {
	if s.Score == nil {
		return 0
	}
	return s.Score(pos)
}
