package queue

import "sort"

const (
	// scoreDecay is applied to every existing score when new related videos
	// arrive, so recent plays dominate the ranking.
	scoreDecay = 0.8
	// maxCandidates bounds the pool; the lowest scores are dropped first.
	maxCandidates = 100
)

type candidate struct {
	videoID  string
	score    float64
	cooldown int
	seq      int
}

// autoPlay is the recommendation pool of one room. It is not safe for
// concurrent use; PlayerQueue guards it with the room lock.
type autoPlay struct {
	candidates []*candidate
	index      map[string]*candidate
	blacklist  map[string]struct{}
	cooldown   int
	seq        int
}

func newAutoPlay(cooldown int) *autoPlay {
	if cooldown < 1 {
		cooldown = 1
	}
	return &autoPlay{
		index:     make(map[string]*candidate),
		blacklist: make(map[string]struct{}),
		cooldown:  cooldown,
	}
}

// feed decays the pool and adds the related videos of source. Earlier
// results in related rank higher.
func (a *autoPlay) feed(source string, related []string) {
	for _, c := range a.candidates {
		c.score *= scoreDecay
	}

	for rank, id := range related {
		if id == "" || id == source {
			continue
		}
		c, ok := a.index[id]
		if !ok {
			a.seq++
			c = &candidate{videoID: id, seq: a.seq}
			a.index[id] = c
			a.candidates = append(a.candidates, c)
		}
		c.score += 1 / float64(rank+1)
	}

	if len(a.candidates) > maxCandidates {
		ranked := a.ranked()
		for _, c := range ranked[maxCandidates:] {
			delete(a.index, c.videoID)
		}
		ranked = ranked[:maxCandidates]
		sort.Slice(ranked, func(i, j int) bool { return ranked[i].seq < ranked[j].seq })
		a.candidates = ranked
	}
}

// ranked returns the pool ordered by score, ties broken by insertion order.
func (a *autoPlay) ranked() []*candidate {
	out := make([]*candidate, len(a.candidates))
	copy(out, a.candidates)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].score > out[j].score
	})
	return out
}

func (a *autoPlay) blocked(videoID string) bool {
	_, ok := a.blacklist[videoID]
	return ok
}

// best returns the highest-ranked candidate that is off cooldown and not
// blacklisted.
func (a *autoPlay) best() (*candidate, bool) {
	for _, c := range a.ranked() {
		if c.cooldown == 0 && !a.blocked(c.videoID) {
			return c, true
		}
	}
	return nil, false
}

// played records that videoID started playing: its cooldown is raised and
// every other candidate moves one play closer to eligibility.
func (a *autoPlay) played(videoID string) {
	for _, c := range a.candidates {
		if c.videoID == videoID {
			c.cooldown = a.cooldown
		} else if c.cooldown > 0 {
			c.cooldown--
		}
	}
}

func (a *autoPlay) state() []AutoPlayCandidate {
	ranked := a.ranked()
	out := make([]AutoPlayCandidate, 0, len(ranked))
	for _, c := range ranked {
		if a.blocked(c.videoID) {
			continue
		}
		out = append(out, AutoPlayCandidate{VideoID: c.videoID, Score: c.score, Cooldown: c.cooldown})
	}
	return out
}
