package parser

import (
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-scrape-reviews/models"
	"golang.org/x/net/html"
)

var (
	// ErrMissingStarRating means an item carries no "X.Y out of 5 stars" span.
	// Every review on the listing has one, so this is a markup contract violation.
	ErrMissingStarRating = errors.New("parser: review has no star rating")

	helpfulnessPattern = regexp.MustCompile(`(\d+(?:,\d+)*) of (\d+(?:,\d+)*) people found the following review helpful`)
	starPattern        = regexp.MustCompile(`^(\d(?:\.\d+)?) out of 5 stars`)
)

// ExtractReview builds a review record from a single item container.
func ExtractReview(item *goquery.Selection) (models.Review, error) {
	stars, err := ExtractStars(item)
	if err != nil {
		return models.Review{}, err
	}
	return models.Review{
		Helpfulness: ExtractHelpfulness(item),
		Stars:       stars,
	}, nil
}

// ExtractHelpfulness returns the helpful/total vote counts of an item, or the
// zero rating when the note is absent or does not parse.
func ExtractHelpfulness(item *goquery.Selection) models.HelpfulnessRating {
	text, ok := findText(item, helpfulnessPattern)
	if !ok {
		return models.HelpfulnessRating{}
	}
	rating, ok := ParseHelpfulness(text)
	if !ok {
		return models.HelpfulnessRating{}
	}
	return rating
}

// ParseHelpfulness matches the helpfulness note at the start of text.
func ParseHelpfulness(text string) (models.HelpfulnessRating, bool) {
	text = strings.TrimSpace(text)
	loc := helpfulnessPattern.FindStringSubmatchIndex(text)
	if loc == nil || loc[0] != 0 {
		return models.HelpfulnessRating{}, false
	}

	helpful, err := parseGroupedInt(text[loc[2]:loc[3]])
	if err != nil {
		return models.HelpfulnessRating{}, false
	}
	total, err := parseGroupedInt(text[loc[4]:loc[5]])
	if err != nil {
		return models.HelpfulnessRating{}, false
	}

	rating := models.HelpfulnessRating{Helpful: helpful, Total: total}
	if !rating.Valid() {
		return models.HelpfulnessRating{}, false
	}
	return rating, true
}

// ExtractStars returns the truncated star rating of an item.
func ExtractStars(item *goquery.Selection) (models.StarRating, error) {
	var (
		stars models.StarRating
		found bool
	)
	item.Find("span").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		stars, found = ParseStars(s.Text())
		return !found
	})
	if !found {
		return 0, ErrMissingStarRating
	}
	return stars, nil
}

// ParseStars converts "4.5 out of 5 stars" into 4. The fractional part is
// dropped, not rounded.
func ParseStars(text string) (models.StarRating, bool) {
	m := starPattern.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return 0, false
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	stars := models.StarRating(math.Floor(value))
	if !stars.Valid() {
		return 0, false
	}
	return stars, true
}

func parseGroupedInt(s string) (int, error) {
	return strconv.Atoi(strings.ReplaceAll(s, ",", ""))
}

// findText returns the first text node under sel, in document order, that
// contains a match for re.
func findText(sel *goquery.Selection, re *regexp.Regexp) (string, bool) {
	for _, n := range sel.Nodes {
		if text, ok := walkText(n, re); ok {
			return text, true
		}
	}
	return "", false
}

func walkText(n *html.Node, re *regexp.Regexp) (string, bool) {
	if n.Type == html.TextNode && re.MatchString(n.Data) {
		return n.Data, true
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if text, ok := walkText(c, re); ok {
			return text, true
		}
	}
	return "", false
}
