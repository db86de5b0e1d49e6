package fuzzy

import (
	"testing"

	"github.com/nalgeon/be"
)

func TestDistance(t *testing.T) {
	be.Equal(t, Distance("kitten", "sitting"), 3)
	be.Equal(t, Distance("", "abc"), 3)
	be.Equal(t, Distance("Invoice", "invoice"), 0)
	be.Equal(t, Distance("hóa đơn", "hoa don"), 0)
}

func TestMatch(t *testing.T) {
	tests := []struct {
		query, text string
		want        bool
	}{
		{"meet", "Team meeting tomorrow", true},
		{"invoce", "Your invoice is ready", true},
		{"xyz", "Your invoice is ready", false},
		{"", "anything", false},
		{"recei", "Receipt from store", true},
	}
	for _, tt := range tests {
		be.Equal(t, Match(tt.query, tt.text), tt.want)
	}
}

func TestRankOrdersByScore(t *testing.T) {
	candidates := []Candidate{
		{Value: "Quarterly report", Fields: []Field{{"Quarterly report", 100}}},
		{Value: "Alice Report", Fields: []Field{{"Alice Report", 80}}},
		{Value: "Lunch", Fields: []Field{{"Lunch", 100}}},
		{Value: "quarterly report", Fields: []Field{{"quarterly report", 100}}},
		{Value: "Reprot typo", Fields: []Field{{"Reprot typo", 100}}},
	}

	got := Rank("report", candidates, 10)
	be.Equal(t, got, []string{"Quarterly report", "Alice Report", "Reprot typo"})

	be.Equal(t, len(Rank("report", candidates, 1)), 1)
	be.Equal(t, len(Rank("zzzz", candidates, 5)), 0)
}
