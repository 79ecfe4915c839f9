package domain

import (
	"sort"
	"time"

	venues "github.com/fd1az/arb-engine/business/venues/domain"
	"github.com/fd1az/arb-engine/internal/asset"
)

// QuoteSet is one aggregation round's answers for a single direction
// (TokenIn sold for TokenOut) at a fixed input size.
type QuoteSet struct {
	Pair     venues.Pair
	TokenIn  *asset.Asset
	TokenOut *asset.Asset
	AmountIn asset.Amount

	// Quotes holds one entry per venue that answered in time, sorted
	// by descending output.
	Quotes []venues.Quote

	// FailedVenues counts venues that errored, timed out, or were
	// skipped by an open breaker this round.
	FailedVenues int

	FetchedAt time.Time
}

// NewQuoteSet sorts the quotes best-first and stamps the set.
func NewQuoteSet(tokenIn, tokenOut *asset.Asset, amountIn asset.Amount, quotes []venues.Quote, failed int) *QuoteSet {
	sort.SliceStable(quotes, func(i, j int) bool {
		return quotes[i].AmountOut.Raw().Cmp(quotes[j].AmountOut.Raw()) > 0
	})
	return &QuoteSet{
		Pair:         venues.NewPair(tokenIn, tokenOut),
		TokenIn:      tokenIn,
		TokenOut:     tokenOut,
		AmountIn:     amountIn,
		Quotes:       quotes,
		FailedVenues: failed,
		FetchedAt:    time.Now(),
	}
}

// Best returns the quote with the largest output, or nil when the set
// is empty.
func (s *QuoteSet) Best() *venues.Quote {
	if len(s.Quotes) == 0 {
		return nil
	}
	return &s.Quotes[0]
}

// BestExcluding returns the best quote from a venue other than the
// named one, for pairing the two legs of a cross-venue trade.
func (s *QuoteSet) BestExcluding(venue string) *venues.Quote {
	for i := range s.Quotes {
		if s.Quotes[i].Venue != venue {
			return &s.Quotes[i]
		}
	}
	return nil
}

// Prune drops quotes that have expired by now and returns the number
// removed.
func (s *QuoteSet) Prune(now time.Time) int {
	kept := s.Quotes[:0]
	for _, q := range s.Quotes {
		if !q.Expired(now) {
			kept = append(kept, q)
		}
	}
	removed := len(s.Quotes) - len(kept)
	s.Quotes = kept
	return removed
}
