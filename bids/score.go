// Package bids stores vendor offers and ranks them. Scoring is pure and
// deterministic: identical offers and wholesaler metadata always produce
// the identical ranking.
package bids

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Scoring weights. A confirmed-stock claim dominates; price, delivery
// speed, reliability and rating then separate confirmed offers.
const (
	stockConfirmedPoints = 1000
	priceCeiling         = 500
	priceDivisor         = 200
	etaCeiling           = 300
	etaPointsPerHour     = 4
	etaClampHours        = 72
	etaDefaultHours      = 24
	reliabilityWeight    = 1.5
	ratingWeight         = 10
)

// Defaults applied when a wholesaler's metadata is unset.
const (
	DefaultReliability = 50
	DefaultRating      = 0
)

// Candidate is an open offer joined with its wholesaler's metadata.
type Candidate struct {
	Offer
	WholesalerActive bool
	Reliability      float64
	Rating           float64
}

// Ranked is a candidate with its computed score.
type Ranked struct {
	Candidate
	Score float64
}

var etaPattern = regexp.MustCompile(`^([0-9]+(?:\.[0-9]+)?)\s*([a-z]*)$`)

// ParseETAHours converts a free-form delivery estimate ("2H", "1 day",
// "45 min") to hours. Estimates which cannot be parsed default to 24 hours.
func ParseETAHours(eta string) float64 {
	var m = etaPattern.FindStringSubmatch(strings.ToLower(strings.TrimSpace(eta)))
	if m == nil {
		return etaDefaultHours
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return etaDefaultHours
	}

	switch {
	case m[2] == "" || strings.HasPrefix(m[2], "h"):
		return value
	case strings.HasPrefix(m[2], "d"):
		return value * 24
	case strings.HasPrefix(m[2], "m"):
		return value / 60
	}
	return etaDefaultHours
}

// Score computes a candidate's composite score.
func Score(c Candidate) float64 {
	var s float64
	if c.StockConfirmed {
		s += stockConfirmedPoints
	}
	s += math.Max(0, priceCeiling-c.PriceQuote.InexactFloat64()/priceDivisor)

	var hours = math.Min(ParseETAHours(c.ETA), etaClampHours)
	s += math.Max(0, etaCeiling-hours*etaPointsPerHour)

	s += c.Reliability * reliabilityWeight
	s += c.Rating * ratingWeight
	return s
}

// Rank scores candidates and sorts them best first. Ties break on
// stock-confirmed, then lower price, then earlier submission.
func Rank(candidates []Candidate) []Ranked {
	var ranked = make([]Ranked, 0, len(candidates))
	for _, c := range candidates {
		ranked = append(ranked, Ranked{Candidate: c, Score: Score(c)})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		var a, b = ranked[i], ranked[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.StockConfirmed != b.StockConfirmed {
			return a.StockConfirmed
		}
		if !a.PriceQuote.Equal(b.PriceQuote) {
			return a.PriceQuote.LessThan(b.PriceQuote)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})
	return ranked
}
