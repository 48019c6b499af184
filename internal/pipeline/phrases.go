package pipeline

import "strings"

// distressPhrases deterministically confirm distress when present in a
// transcript. Matching is case-insensitive substring containment; the first
// match in list order wins and there is no severity ranking among phrases.
var distressPhrases = []string{
	"help me",
	"i can't breathe",
	"emergency",
	"angel code 9",
	"gunshot",
	"scream",
	"screaming",
	"i'm scared",
	"don't hurt me",
}

// scanForPhrase returns the first distress phrase contained in the
// transcript, if any.
func scanForPhrase(transcript string) (string, bool) {
	text := strings.ToLower(transcript)
	for _, phrase := range distressPhrases {
		if strings.Contains(text, phrase) {
			return phrase, true
		}
	}
	return "", false
}
