package usersync

// BidderSelector expands the bidders named by a cookie sync request into the set that
// should actually be synced.
type BidderSelector interface {
	// Select returns bidder names in encounter order: requested bidders first, then any
	// cooperative additions. The result holds no duplicates.
	Select(requested []string, cooperative *bool, limit *int) []string
}

type standardSelector struct {
	shuffler        shuffler
	defaultCoopSync bool
	// priorityGroups are disjoint tiers walked highest priority first. No universal
	// priority exists within a tier, so a partial draw from one is randomized.
	priorityGroups [][]string
	activeBidders  []string
}

// NewBidderSelector builds the selector used for cooperative sync expansion.
func NewBidderSelector(defaultCoopSync bool, priorityGroups [][]string, activeBidders []string) BidderSelector {
	return standardSelector{
		shuffler:        randomShuffler{},
		defaultCoopSync: defaultCoopSync,
		priorityGroups:  priorityGroups,
		activeBidders:   activeBidders,
	}
}

func (s standardSelector) Select(requested []string, cooperative *bool, limit *int) []string {
	// An omitted bidder list means sync should be done for all active bidders.
	if len(requested) == 0 {
		all := make([]string, len(s.activeBidders))
		copy(all, s.activeBidders)
		return all
	}

	coop := s.defaultCoopSync
	if cooperative != nil {
		coop = *cooperative
	}
	if !coop {
		return dedupe(requested)
	}

	if limit == nil {
		return s.addAllCoopSyncBidders(requested)
	}
	return s.addCoopSyncBidders(requested, *limit)
}

func (s standardSelector) addAllCoopSyncBidders(requested []string) []string {
	bidders := newBidderSet(len(requested))
	bidders.addAll(requested)
	for _, group := range s.priorityGroups {
		bidders.addAll(group)
	}
	return bidders.ordered
}

func (s standardSelector) addCoopSyncBidders(requested []string, limit int) []string {
	if limit <= 0 {
		return dedupe(requested)
	}

	bidders := newBidderSet(limit)
	bidders.addAll(requested)

	for _, group := range s.priorityGroups {
		remaining := limit - bidders.size()
		if remaining <= 0 {
			break
		}
		if len(group) > remaining {
			for _, bidder := range shuffledCopy(s.shuffler, group) {
				if bidders.add(bidder) && bidders.size() >= limit {
					break
				}
			}
		} else {
			bidders.addAll(group)
		}
	}
	return bidders.ordered
}

// bidderSet keeps encounter order while rejecting duplicates.
type bidderSet struct {
	seen    map[string]struct{}
	ordered []string
}

func newBidderSet(capacity int) *bidderSet {
	return &bidderSet{
		seen:    make(map[string]struct{}, capacity),
		ordered: make([]string, 0, capacity),
	}
}

func (s *bidderSet) add(bidder string) bool {
	if _, ok := s.seen[bidder]; ok {
		return false
	}
	s.seen[bidder] = struct{}{}
	s.ordered = append(s.ordered, bidder)
	return true
}

func (s *bidderSet) addAll(bidders []string) {
	for _, bidder := range bidders {
		s.add(bidder)
	}
}

func (s *bidderSet) size() int {
	return len(s.ordered)
}

func dedupe(bidders []string) []string {
	set := newBidderSet(len(bidders))
	set.addAll(bidders)
	return set.ordered
}
