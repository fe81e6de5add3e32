// Package prediction aggregates market-cap votes into a per-token
// percentage distribution over the fixed price-range buckets.
package prediction

import (
	"github.com/kinexbt/coin-yaps/internal/models"
)

// MaxBucketUsers is how many voters each bucket lists
const MaxBucketUsers = 5

// Voter is the public identity of a voter
type Voter struct {
	ID       uint   `json:"id"`
	Name     string `json:"name,omitempty"`
	Username string `json:"username,omitempty"`
}

// Bucket is one price range of a distribution
type Bucket struct {
	PriceRange models.PriceRange `json:"priceRange"`
	Percentage int               `json:"percentage"`
	Votes      int               `json:"votes"`
	Users      []Voter           `json:"users"`
}

// Distribution is the vote breakdown of one token, buckets in display order
type Distribution struct {
	Predictions []Bucket `json:"predictions"`
	TotalVotes  int      `json:"totalVotes"`
}

// Percentage is round(count/total*100) with halves rounded up, 0 when total is 0
func Percentage(count, total int) int {
	if total <= 0 {
		return 0
	}
	return (count*200 + total) / (2 * total)
}

// ComputeDistribution tallies rows for a single token. Rows are expected in
// store order; the first voters of each bucket are listed.
func ComputeDistribution(rows []models.Prediction) Distribution {
	ranges := models.PriceRanges()
	index := make(map[models.PriceRange]int, len(ranges))
	buckets := make([]Bucket, len(ranges))
	for i, r := range ranges {
		index[r] = i
		buckets[i] = Bucket{PriceRange: r, Users: []Voter{}}
	}

	total := 0
	for _, row := range rows {
		i, ok := index[row.PriceRange]
		if !ok {
			continue
		}
		total++
		b := &buckets[i]
		b.Votes++
		if len(b.Users) < MaxBucketUsers {
			b.Users = append(b.Users, voterOf(row))
		}
	}

	for i := range buckets {
		buckets[i].Percentage = Percentage(buckets[i].Votes, total)
	}
	return Distribution{Predictions: buckets, TotalVotes: total}
}

// PercentageOf returns the bucket percentage for r
func (d Distribution) PercentageOf(r models.PriceRange) int {
	for _, b := range d.Predictions {
		if b.PriceRange == r {
			return b.Percentage
		}
	}
	return 0
}

func voterOf(row models.Prediction) Voter {
	v := Voter{ID: row.UserID}
	if row.User != nil {
		v.Name = row.User.Name
		v.Username = row.User.Username
	}
	return v
}
