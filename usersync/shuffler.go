package usersync

import "math/rand"

// shuffler exists so tests can supply a deterministic sequence where production code
// randomizes for fairness.
type shuffler interface {
	shuffle(n int, swap func(i, j int))
}

type randomShuffler struct{}

func (randomShuffler) shuffle(n int, swap func(i, j int)) {
	rand.Shuffle(n, swap)
}

func shuffledCopy(s shuffler, a []string) []string {
	aCopy := make([]string, len(a))
	copy(aCopy, a)
	s.shuffle(len(aCopy), func(i, j int) { aCopy[i], aCopy[j] = aCopy[j], aCopy[i] })
	return aCopy
}
