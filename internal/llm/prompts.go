package llm

import "fmt"

// ClassificationPrompt asks the model to label communication and emotional
// patterns in a condensed interaction log. The log is one interaction per
// line, oldest first.
func ClassificationPrompt(log string) string {
	return fmt.Sprintf(`You are a behavioral pattern classifier. Read this interaction log and
label the recurring communication and emotional patterns in it.

INTERACTION LOG (oldest first):
%s

Communication pattern types (use only these):
- avoidance: postponing, cancelling or steering away from a needed conversation
- passive_aggressive: indirect hostility, sarcasm, silent treatment
- directness: raising issues plainly and promptly
- assertive: stating needs or boundaries respectfully

Trend values: "increasing", "stable", "decreasing" (compare the later half of
the log with the earlier half).

Rules:
- frequency is the number of log lines showing the pattern
- confidence is 0.0-1.0
- emotion names are single lowercase words (e.g. "anxiety", "joy")
- associated_people lists the people present when the emotion was logged
- Return ONLY a JSON object, no other text

Return:
{
  "communication": [{"type": "...", "frequency": 0, "trend": "...", "confidence": 0.0}],
  "emotional": [{"emotion": "...", "frequency": 0, "trend": "...", "confidence": 0.0, "associated_people": ["..."]}]
}

If the log shows no patterns, return: {"communication": [], "emotional": []}`, log)
}
