package prompts

type Resource struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

var resources = map[string][]Resource{
	General: {
		{"WHO - Mental Health", "https://www.who.int/health-topics/mental-health"},
		{"Teléfono de la Esperanza", "https://telefonodelaesperanza.org/"},
		{"Spanish Mental Health Confederation", "https://consaludmental.org/"},
	},
	"Anxiety": {
		{"Mind - Anxiety and panic attacks", "https://www.mind.org.uk/information-support/types-of-mental-health-problems/anxiety-and-panic-attacks/"},
		{"NHS - Anxiety, fear and panic", "https://www.nhs.uk/mental-health/feelings-symptoms-behaviours/feelings-and-symptoms/anxiety-fear-panic/"},
	},
	"Depression": {
		{"Spanish Psychiatry Association", "https://www.sepsiq.org/"},
		{"NHS - Clinical depression", "https://www.nhs.uk/mental-health/conditions/clinical-depression/overview/"},
	},
	"Stress": {
		{"American Psychological Association - Stress", "https://www.apa.org/topics/stress"},
		{"Mental Health Foundation - Stress", "https://www.mentalhealth.org.uk/explore-mental-health/a-z-topics/stress"},
	},
	"Relationships": {
		{"The Gottman Institute", "https://www.gottman.com/"},
		{"Relate", "https://www.relate.org.uk/"},
	},
	"Self-esteem": {
		{"Mind - Self-esteem", "https://www.mind.org.uk/information-support/types-of-mental-health-problems/self-esteem/about-self-esteem/"},
		{"Self-Compassion", "https://self-compassion.org/"},
	},
}

var examples = map[string][]string{
	General: {
		"Could you give me some tips to improve my emotional well-being?",
		"I haven't felt well emotionally lately, what can I do?",
	},
	"Anxiety": {
		"I feel anxious all the time, what can I do?",
		"How can I handle panic attacks?",
	},
	"Depression": {
		"I have no motivation to do anything lately",
		"How can I deal with recurring negative thoughts?",
	},
	"Stress": {
		"Work is causing me a lot of stress, how can I manage it?",
		"I need techniques to relax after a hard day",
	},
	"Relationships": {
		"I have trouble communicating with my partner",
		"How can I set healthy boundaries with my family?",
	},
	"Self-esteem": {
		"I always compare myself to others and feel inferior",
		"I feel like I'm not good enough at anything",
	},
}

// Resources returns the external links for category; unknown categories get
// the General list.
func Resources(category string) []Resource {
	return resources[Normalize(category)]
}

func ExamplePrompts(category string) []string {
	return examples[Normalize(category)]
}
