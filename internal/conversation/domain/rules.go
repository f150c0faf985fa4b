package domain

import (
	"strings"
	"time"
)

// Rule-table constants. Weights match the lead scoring model: urgency
// language dominates, high-value inventory and premium rooftops follow.
const (
	priorityUrgency    = 10
	priorityHighValue  = 5
	priorityPremium    = 5
	priorityEngagement = 3

	// HighPriorityThreshold marks leads that get an instant first reply.
	HighPriorityThreshold = 10

	temperatureSpecific = 0.3
	temperatureBalanced = 0.7
	temperatureCreative = 0.9

	// DefaultMaxTurns bounds a conversation unless adaptive mode raises it.
	DefaultMaxTurns = 2

	inquiryTypeSpecific = "specific"
)

var urgencyKeywords = []string{"today", "immediately", "asap"}

// Rules evaluates creation-time lead rule tables. All values are frozen at
// construction; the adaptive flag cannot change a conversation mid-flight.
type Rules struct {
	HighValuePrice      float64
	EngagementThreshold time.Duration
	DefaultModel        string
	HighCapabilityModel string
	AdaptiveMode        bool
	MaxTurnsCap         int
}

// ScorePriority computes the queue priority as a weighted sum of lead signals.
func (r Rules) ScorePriority(ev LeadEvent) int {
	score := 0

	comments := strings.ToLower(ev.Comments)
	for _, keyword := range urgencyKeywords {
		if strings.Contains(comments, keyword) {
			score += priorityUrgency
			break
		}
	}

	if ev.Vehicle.Price > r.HighValuePrice {
		score += priorityHighValue
	}
	if ev.Metadata.PremiumDealership {
		score += priorityPremium
	}
	if time.Duration(ev.Metadata.EngagementSeconds)*time.Second > r.EngagementThreshold {
		score += priorityEngagement
	}

	return score
}

// SelectModel picks the AI model: premium rooftops and high-value inventory
// get the higher-capability model.
func (r Rules) SelectModel(ev LeadEvent) string {
	if ev.Metadata.PremiumDealership || ev.Vehicle.Price > r.HighValuePrice {
		return r.HighCapabilityModel
	}
	return r.DefaultModel
}

// SelectTemperature picks generation creativity: specific inquiries get
// precise answers, creative-mode leads get exploratory ones.
func (r Rules) SelectTemperature(ev LeadEvent) float64 {
	if ev.Metadata.InquiryType == inquiryTypeSpecific {
		return temperatureSpecific
	}
	if ev.Metadata.CreativeMode {
		return temperatureCreative
	}
	return temperatureBalanced
}

// SelectMaxTurns returns the turn budget. Outside adaptive mode this is
// always DefaultMaxTurns; in adaptive mode the lead's requested cap is
// honored up to the server-side maximum.
func (r Rules) SelectMaxTurns(ev LeadEvent) int {
	if !r.AdaptiveMode {
		return DefaultMaxTurns
	}

	requested := ev.Metadata.RequestedTurns
	if requested < DefaultMaxTurns {
		return DefaultMaxTurns
	}
	if r.MaxTurnsCap > 0 && requested > r.MaxTurnsCap {
		return r.MaxTurnsCap
	}
	return requested
}
