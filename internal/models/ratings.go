package models

// RatingSummary is derived on the caller side from a list of ratings.
// Nothing here is persisted.
type RatingSummary struct {
	Count     int     `json:"count"`
	Mean      float64 `json:"mean"`
	Excellent int     `json:"excellent"`
	Good      int     `json:"good"`
	Poor      int     `json:"poor"`
}

const (
	excellentFrom = 80
	goodFrom      = 60
)

func SummarizeRatings(ratings []QCRating) RatingSummary {
	var sum RatingSummary
	if len(ratings) == 0 {
		return sum
	}
	total := 0
	for _, r := range ratings {
		total += r.Score
		switch {
		case r.Score >= excellentFrom:
			sum.Excellent++
		case r.Score >= goodFrom:
			sum.Good++
		default:
			sum.Poor++
		}
	}
	sum.Count = len(ratings)
	sum.Mean = float64(total) / float64(len(ratings))
	return sum
}
