package knowledge

import (
	"fmt"
	"strings"

	"github.com/readyhouston/hdr/internal/profile"
)

// Recommendation is a profile-driven preparedness suggestion.
type Recommendation struct {
	Type    string `json:"type"` // "warning" or "info"
	Title   string `json:"title"`
	Message string `json:"message"`
	Action  string `json:"action"`
	Link    string `json:"link,omitempty"`
}

// PersonalizedChecklist returns the checklist for kind extended with the
// household items the profile calls for. A nil profile yields the base list.
func (b *Base) PersonalizedChecklist(kind string, p *profile.UserProfile) ([]string, error) {
	d, ok := b.Disaster(kind)
	if !ok {
		return nil, fmt.Errorf("unknown disaster kind %q", kind)
	}
	items := d.Checklist
	if p == nil {
		return items, nil
	}
	for _, need := range []struct {
		set bool
		key string
	}{
		{p.Elderly, "elderly"},
		{p.Pets, "pets"},
		{p.Medical, "medical"},
		{p.Children, "children"},
	} {
		if need.set {
			items = append(items, b.Household[need.key]...)
		}
	}
	return items, nil
}

// Recommendations derives suggestions from the profile's location and
// household.
func (b *Base) Recommendations(p *profile.UserProfile) []Recommendation {
	if p == nil {
		return nil
	}
	var recs []Recommendation

	if n, ok := b.Neighborhood(p.Neighborhood); ok {
		if n.FloodRisk == "high" {
			recs = append(recs, Recommendation{
				Type:    "warning",
				Title:   "High Flood Risk Area",
				Message: "Your area has high flood risk. Consider flood insurance (30-day waiting period).",
				Action:  "Learn about flood insurance",
				Link:    "https://www.floodsmart.gov",
			})
		}
		if n.EvacuationZone != "" && n.EvacuationZone != "None" {
			recs = append(recs, Recommendation{
				Type:    "info",
				Title:   "Evacuation Zone " + n.EvacuationZone,
				Message: fmt.Sprintf("You are in evacuation zone %s. Know your evacuation routes.", n.EvacuationZone),
				Action:  "View evacuation routes",
			})
		}
	}

	if p.Elderly {
		recs = append(recs, Recommendation{
			Type:    "info",
			Title:   "Senior Services",
			Message: "Register with STEAR for assistance during emergencies.",
			Action:  "Register with STEAR",
			Link:    "https://tdem.texas.gov/stear/",
		})
	}
	if p.Medical {
		recs = append(recs, Recommendation{
			Type:    "warning",
			Title:   "Medical Needs Registry",
			Message: "Register with CenterPoint for priority power restoration.",
			Action:  "Register now",
			Link:    "https://www.centerpointenergy.com/en-us/residential/customer-service/electric-outage-center/critical-care",
		})
	}
	if p.Pets {
		recs = append(recs, Recommendation{
			Type:    "info",
			Title:   "Pet Preparedness",
			Message: "Not all shelters accept pets. Plan pet-friendly accommodations.",
			Action:  "Find pet-friendly shelters",
		})
	}
	if p.EvacuationCapability == "none" {
		recs = append(recs, Recommendation{
			Type:    "warning",
			Title:   "Transportation Assistance",
			Message: "Register for evacuation assistance if you lack transportation.",
			Action:  "Get transportation help",
			Link:    "tel:311",
		})
	}
	return recs
}

// EvacuationGuidance returns location-aware evacuation guidance followed by
// the general zone rules.
func (b *Base) EvacuationGuidance(p *profile.UserProfile) string {
	var sb strings.Builder
	sb.WriteString("Based on your location:\n\n")

	if p != nil && p.Neighborhood != "" {
		if n, ok := b.Neighborhood(p.Neighborhood); ok {
			fmt.Fprintf(&sb, "• Your area (%s) has %s flood risk\n", p.Neighborhood, n.FloodRisk)
			if n.EvacuationZone != "None" {
				fmt.Fprintf(&sb, "• You are in Evacuation Zone %s\n", n.EvacuationZone)
				fmt.Fprintf(&sb, "• Monitor news for Zone %s evacuation orders\n", n.EvacuationZone)
			}
		}
	}
	if p != nil && strings.Contains(strings.ToLower(p.HousingType), "mobile") {
		sb.WriteString("• You live in a mobile home: plan to evacuate for any hurricane\n")
	}

	sb.WriteString("\nGeneral evacuation guidelines:\n")
	sb.WriteString("• Zone A: Evacuate for all hurricanes\n")
	sb.WriteString("• Zone B: Evacuate for Category 3+ hurricanes\n")
	sb.WriteString("• Zone C: Evacuate for Category 4+ hurricanes\n")
	sb.WriteString("• Mobile homes: Always evacuate regardless of zone\n")
	return sb.String()
}
