package chat

import (
	"strings"

	"github.com/readyhouston/hdr/internal/search"
)

// realtimeKeywords mark messages that benefit from a live web search.
var realtimeKeywords = []string{
	"current", "latest", "recent", "today", "now", "live", "active",
	"weather", "forecast", "warning", "alert", "evacuation",
	"road", "traffic", "closure", "flood", "hurricane", "storm",
	"news", "update", "report", "status", "what", "who", "when", "where",
}

// NeedsSearch reports whether msg should be augmented with search results:
// it mentions a realtime keyword or asks a question.
func NeedsSearch(msg string) bool {
	lower := strings.ToLower(msg)
	for _, kw := range realtimeKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return strings.Contains(msg, "?")
}

// ServiceUnavailableMessage is returned by the chat proxy endpoint when it
// has no LLM credential.
const ServiceUnavailableMessage = "I'm unable to access the AI service right now. Please try again later or use the built-in guidance."

// ErrorResponse is the reply when a turn fails outright.
const ErrorResponse = "I'm experiencing technical difficulties right now. For immediate assistance:\n\n" +
	"• Emergency: 911\n" +
	"• Non-emergency: 311\n" +
	"• Harris County Emergency: 713-884-3131\n" +
	"• Red Cross: 713-526-8300\n\n" +
	"Please try your question again in a moment."

const defaultResponse = "I'm here to help with Houston disaster preparedness! I can assist with:\n\n" +
	"• Hurricane & flood preparation\n" +
	"• Evacuation planning\n" +
	"• Emergency supplies\n" +
	"• Shelter information\n" +
	"• Recovery resources\n\n" +
	"For immediate emergencies: call 911\n" +
	"For non-emergency help: call 311\n\n" +
	"What specific disaster topic can I help you with?"

type canned struct {
	keywords []string
	text     string
}

// cannedResponses is matched in order; the first entry with a keyword
// contained in the lowercased message wins.
var cannedResponses = []canned{
	{[]string{"hurricane"}, "Hurricane preparation is crucial in Houston. Key steps:\n\n" +
		"• Monitor NOAA Hurricane Center updates\n" +
		"• Know your evacuation zone (A-E)\n" +
		"• Stock 7-10 days of supplies\n" +
		"• Secure outdoor items\n" +
		"• Have evacuation plan ready\n\n" +
		"For current hurricane information, visit nhc.noaa.gov or call Harris County Emergency Management."},
	{[]string{"flood"}, "Houston flood safety:\n\n" +
		"• Never drive through flooded roads (\"Turn Around, Don't Drown\")\n" +
		"• Know your flood risk zone\n" +
		"• Move to higher ground if advised\n" +
		"• Monitor Harris County Flood Warning System\n" +
		"• Have emergency kit ready\n\n" +
		"For current flood conditions: harriscountyfws.org or call 713-884-3131."},
	{[]string{"evacuation"}, "Houston evacuation zones run A-E:\n\n" +
		"• Zone A: Most vulnerable (coastal/surge areas)\n" +
		"• Zone E: Least vulnerable (inland areas)\n" +
		"• Know your zone at readyharris.org\n" +
		"• Plan multiple routes out\n" +
		"• Leave early if advised\n\n" +
		"For evacuation assistance: 311 or visit evacuation_resources.html in this app."},
	{[]string{"shelter"}, "Houston emergency shelters:\n\n" +
		"• Red Cross shelters open during disasters\n" +
		"• Pet-friendly options available\n" +
		"• Check shelter_resources.html in this app\n" +
		"• Call 2-1-1 for current shelter information\n" +
		"• Bring ID, medications, comfort items\n\n" +
		"For shelter locations: dial 2-1-1 or visit readyharris.org."},
	{[]string{"heat"}, "Houston heat safety (summer temps 95-105°F):\n\n" +
		"• Stay hydrated - drink before thirsty\n" +
		"• Limit outdoor activity 10am-6pm\n" +
		"• Use AC or visit cooling centers\n" +
		"• Never leave anyone in cars\n" +
		"• Watch for heat exhaustion signs\n\n" +
		"Cooling centers: call 311 or visit houstonhealthdepartment.org."},
	{[]string{"freeze", "winter", "ice storm", "cold"}, "Houston winter weather safety:\n\n" +
		"• Protect pipes - insulate or let faucets drip\n" +
		"• Bring pets and plants indoors\n" +
		"• Never heat your home with a grill, generator, or oven\n" +
		"• Check on elderly neighbors\n" +
		"• Prepare for extended power outages\n\n" +
		"Warming centers: call 311 or visit houstonemergency.org."},
	{[]string{"tornado"}, "Tornado safety in Houston:\n\n" +
		"• A watch means conditions are favorable; a warning means take shelter now\n" +
		"• Go to an interior room on the lowest floor\n" +
		"• Stay away from windows\n" +
		"• Leave mobile homes for a sturdier building\n" +
		"• Keep a NOAA Weather Radio with battery backup\n\n" +
		"For severe weather alerts: weather.gov/hgx or sign up at readyharris.org."},
	{[]string{"chemical", "refinery", "hazmat", "shelter in place", "shelter-in-place"}, "Chemical emergency guidance for the Houston area:\n\n" +
		"• Shelter in place when officials advise it\n" +
		"• Close and seal windows and doors\n" +
		"• Turn off heating and air conditioning\n" +
		"• Follow local radio or TV for updates\n" +
		"• Stay inside until the all-clear is given\n\n" +
		"For chemical incident information: call 311 or Harris County Emergency Management at 713-884-3131."},
	{[]string{"emergency kit", "supplies"}, "Essential emergency kit for Houston: Water (1 gallon/person/day for 7 days), " +
		"non-perishable food for 7 days, medications, first aid kit, flashlights, " +
		"battery-powered radio, phone chargers, cash, important documents in waterproof container, " +
		"tools, duct tape, plastic sheeting, and supplies for pets.\n\n" +
		"For immediate emergencies: call 911"},
	{[]string{"insurance", "fema"}, "After a disaster: Document all damage with photos/video before cleaning. " +
		"Contact your insurance company immediately. Register with FEMA at disasterassistance.gov " +
		"or call 1-800-621-3362. Keep all receipts for emergency repairs and temporary housing. " +
		"Note: Flood insurance has a 30-day waiting period - get it before hurricane season!"},
}

// FallbackResponse returns deterministic guidance for msg. A search answer,
// when present, takes precedence over the keyword table.
func FallbackResponse(msg string, results *search.Response) string {
	if results != nil && results.Answer != "" {
		return "Based on current information: " + results.Answer +
			"\n\nFor the most up-to-date information, please check official sources like Harris County Emergency Management or call 311."
	}

	lower := strings.ToLower(msg)
	for _, c := range cannedResponses {
		for _, kw := range c.keywords {
			if strings.Contains(lower, kw) {
				return c.text
			}
		}
	}
	return defaultResponse
}

// Suggestions proposes follow-up questions the message has not already
// covered.
func Suggestions(msg string) []string {
	lower := strings.ToLower(msg)
	var out []string
	if !strings.Contains(lower, "kit") {
		out = append(out, "What should be in my emergency kit?")
	}
	if !strings.Contains(lower, "evacuate") {
		out = append(out, "When should I evacuate?")
	}
	if !strings.Contains(lower, "shelter") {
		out = append(out, "Where are the emergency shelters?")
	}
	if !strings.Contains(lower, "insurance") {
		out = append(out, "How do I file an insurance claim?")
	}
	return out
}
