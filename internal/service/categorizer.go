package service

import (
	"strings"
	"unicode"

	"github.com/spec-kit/maintenance-voice/internal/domain"
)

// categoryKeywords is ordered; earlier categories win ties.
var categoryKeywords = []struct {
	category domain.TicketCategory
	keywords []string
}{
	{domain.TicketCategoryPlumbing, []string{"water", "leak", "pipe", "tap", "drain", "toilet", "sink", "bathroom", "kitchen"}},
	{domain.TicketCategoryElectrical, []string{"light", "electricity", "power", "socket", "wiring", "switch", "fan", "bulb", "fuse"}},
	{domain.TicketCategoryCleaning, []string{"garbage", "trash", "dirty", "clean", "sweeping", "waste", "dustbin"}},
	{domain.TicketCategorySecurity, []string{"gate", "lock", "security", "cctv", "camera", "guard", "entry", "access"}},
	{domain.TicketCategoryCarpentry, []string{"door", "window", "furniture", "wood", "cabinet", "shelf", "wardrobe"}},
	{domain.TicketCategoryPainting, []string{"paint", "wall", "ceiling", "color", "whitewash"}},
	{domain.TicketCategoryHVAC, []string{"ac", "air conditioning", "heating", "ventilation", "temperature"}},
}

var criticalKeywords = []string{
	"urgent", "emergency", "immediately", "critical", "dangerous",
	"leak", "fire", "electrical", "gas", "no water", "no power",
}

var soonKeywords = []string{"soon", "asap"}

const longDescriptionThreshold = 200

// Classification is the rule-based triage of a ticket's text.
type Classification struct {
	Category domain.TicketCategory
	Priority domain.TicketPriority
}

// Categorize assigns a category and priority from the ticket's wording.
func Categorize(title, description string) Classification {
	text := strings.ToLower(strings.TrimSpace(title) + " " + strings.TrimSpace(description))
	words := wordSet(text)
	return Classification{
		Category: categorize(text, words),
		Priority: prioritize(text, words),
	}
}

func categorize(text string, words map[string]struct{}) domain.TicketCategory {
	best, bestScore := domain.TicketCategoryOthers, 0
	for _, entry := range categoryKeywords {
		score := 0
		for _, kw := range entry.keywords {
			if contains(text, words, kw) {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = entry.category, score
		}
	}
	return best
}

func prioritize(text string, words map[string]struct{}) domain.TicketPriority {
	critical := 0
	for _, kw := range criticalKeywords {
		if contains(text, words, kw) {
			critical++
		}
	}
	switch {
	case critical >= 2:
		return domain.TicketPriorityCritical
	case critical == 1:
		return domain.TicketPriorityHigh
	}
	for _, kw := range soonKeywords {
		if contains(text, words, kw) {
			return domain.TicketPriorityHigh
		}
	}
	if len(text) > longDescriptionThreshold {
		return domain.TicketPriorityModerate
	}
	return domain.TicketPriorityLow
}

// contains matches single words against whole tokens, with a trailing "s"
// tolerated, and phrases against the raw text.
func contains(text string, words map[string]struct{}, keyword string) bool {
	if strings.Contains(keyword, " ") {
		return strings.Contains(text, keyword)
	}
	if _, ok := words[keyword]; ok {
		return true
	}
	_, ok := words[keyword+"s"]
	return ok
}

func wordSet(text string) map[string]struct{} {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}
