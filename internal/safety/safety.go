// Package safety screens user messages before they reach retrieval or the
// language model.
package safety

import (
	"fmt"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"
)

// CrisisKeywords are phrases that route a message to the crisis protocol.
var CrisisKeywords = []string{
	"suicide", "kill myself", "end my life", "don't want to live",
	"self-harm", "cut myself", "hurt myself", "die", "end everything", "end it all",
	"no point living", "nobody would miss me", "better without me",
	"i can't take it anymore", "can't go on", "want to die", "burden", "no way out",
	"harm myself", "hopeless", "goodbye forever", "can't resist anymore",
}

var suicideRisk = []string{"suicide", "kill myself", "end my life", "don't want to live", "want to die"}

var violenceWords = []string{"violence", "abuse", "abused", "abusing"}

// OffTopicKeywords mark requests outside the assistant's scope.
var OffTopicKeywords = []string{
	"hack", "hacker", "pornography", "porn", "steal", "pirate", "crack",
	"illegal drugs", "impersonate", "identity theft",
}

// EmergencyNumbers lists the helplines quoted in crisis responses.
var EmergencyNumbers = map[string]string{
	"general":            "112",
	"suicide_prevention": "024",
	"mental_health":      "900 10 22 10",
	"gender_violence":    "016",
	"youth_phone":        "900 20 20 10",
	"online_chat":        "https://www.telefonodelaesperanza.org/",
}

const OffTopicWarning = "Your message seems to be about topics outside the scope of this mental health assistant. " +
	"Please rephrase your question around emotional well-being and mental health."

// normalize lowercases and folds typographic apostrophes.
func normalize(message string) string {
	return strings.ReplaceAll(strings.ToLower(message), "’", "'")
}

// DetectCrisis reports whether message contains any crisis phrase, and which.
// Phrases only match on word boundaries, so "diet" does not match "die".
func DetectCrisis(message string) (bool, []string) {
	msg := normalize(message)
	var found []string
	for _, kw := range CrisisKeywords {
		if matchesPhrase(msg, kw) {
			found = append(found, kw)
		}
	}
	return len(found) > 0, found
}

func matchesPhrase(msg, phrase string) bool {
	for start := 0; ; {
		i := strings.Index(msg[start:], phrase)
		if i < 0 {
			return false
		}
		i += start
		end := i + len(phrase)
		if boundary(msg, i, end) {
			return true
		}
		start = i + 1
	}
}

// boundary reports whether msg[start:end] is not glued to a letter on either
// side. Punctuation such as curly quotes, dashes and ellipses is a boundary.
func boundary(msg string, start, end int) bool {
	if start > 0 {
		if r, _ := utf8.DecodeLastRuneInString(msg[:start]); unicode.IsLetter(r) {
			return false
		}
	}
	if end < len(msg) {
		if r, _ := utf8.DecodeRuneInString(msg[end:]); unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

// CrisisResponse builds the message shown instead of a model reply.
func CrisisResponse(keywords []string) string {
	var b strings.Builder
	b.WriteString("**Important safety message**\n\n")
	b.WriteString("Something in your message suggests you may be going through a very difficult moment.\n\n")
	if containsAny(keywords, suicideRisk) {
		b.WriteString("Help is available right now. Your feelings are valid, and trained professionals " +
			"can help you through them and find another way forward.\n\n")
	} else {
		b.WriteString("Help is available, and you do not have to face what you are experiencing alone.\n\n")
	}
	b.WriteString("Immediate support:\n")
	fmt.Fprintf(&b, "- Emergency services: %s\n", EmergencyNumbers["general"])
	fmt.Fprintf(&b, "- Suicide prevention line (24h): %s\n", EmergencyNumbers["suicide_prevention"])
	fmt.Fprintf(&b, "- Mental health helpline: %s\n", EmergencyNumbers["mental_health"])
	if containsAny(keywords, violenceWords) {
		fmt.Fprintf(&b, "- Gender violence line: %s\n", EmergencyNumbers["gender_violence"])
	}
	b.WriteString("\nThis assistant is not designed for crisis situations and does not replace professional help. " +
		"If you are in immediate danger, please contact emergency services.")
	return b.String()
}

// CheckMessage reports whether message is in scope, with a warning if not.
func CheckMessage(message string) (bool, string) {
	msg := normalize(message)
	for _, kw := range OffTopicKeywords {
		if matchesPhrase(msg, kw) {
			return false, OffTopicWarning
		}
	}
	return true, ""
}

func containsAny(haystack, needles []string) bool {
	for _, n := range needles {
		if slices.Contains(haystack, n) {
			return true
		}
	}
	return false
}
