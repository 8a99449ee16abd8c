package classify

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/lazypower/tether/internal/model"
)

// communicationCues maps interaction types and note phrases to styles.
var communicationCues = map[CommunicationType][]string{
	Avoidance:         {"avoid", "cancel", "postpone", "rescheduled", "didn't bring up", "changed the subject", "ignored", "no_show", "no-show"},
	PassiveAggressive: {"sarcas", "passive aggressive", "passive-aggressive", "silent treatment", "cold shoulder", "snide", "backhanded"},
	Directness:        {"directly", "told them", "was honest", "straightforward", "raised the issue", "spoke up"},
	Assertive:         {"boundary", "boundaries", "asked for", "stood up for", "said no"},
}

// Heuristic is a rule-based Classifier working from interaction types, note
// phrases and emotion tags. It needs no external service.
type Heuristic struct{}

// NewHeuristic returns the rule-based classifier.
func NewHeuristic() *Heuristic {
	return &Heuristic{}
}

func (h *Heuristic) Classify(ctx context.Context, req Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	mid := midpoint(req)

	type counts struct{ earlier, later int }
	comm := make(map[CommunicationType]*counts)
	emo := make(map[string]*counts)
	emoPeople := make(map[string]map[string]string)

	for _, in := range req.Interactions {
		late := !in.OccurredAt.Before(mid)
		text := strings.ToLower(in.Type + " " + in.Notes)

		for typ, cues := range communicationCues {
			if !matchesAny(text, cues) {
				continue
			}
			c := comm[typ]
			if c == nil {
				c = &counts{}
				comm[typ] = c
			}
			if late {
				c.later++
			} else {
				c.earlier++
			}
		}

		seen := make(map[string]bool)
		for _, e := range in.Emotions {
			e = strings.ToLower(strings.TrimSpace(e))
			if e == "" || seen[e] {
				continue
			}
			seen[e] = true
			c := emo[e]
			if c == nil {
				c = &counts{}
				emo[e] = c
				emoPeople[e] = make(map[string]string)
			}
			if late {
				c.later++
			} else {
				c.earlier++
			}
			for _, p := range in.People {
				emoPeople[e][strings.ToLower(p)] = p
			}
		}
	}

	var res Result
	for typ, c := range comm {
		n := c.earlier + c.later
		res.Communication = append(res.Communication, CommunicationPattern{
			Type:       typ,
			Frequency:  n,
			Trend:      trendOf(c.earlier, c.later),
			Confidence: model.Clamp01(0.5 + 0.1*float64(n)),
		})
	}
	sort.Slice(res.Communication, func(i, j int) bool {
		return res.Communication[i].Type < res.Communication[j].Type
	})

	for e, c := range emo {
		n := c.earlier + c.later
		people := make([]string, 0, len(emoPeople[e]))
		for _, p := range emoPeople[e] {
			people = append(people, p)
		}
		sort.Strings(people)
		res.Emotional = append(res.Emotional, EmotionalTrend{
			Emotion:          e,
			Frequency:        n,
			Trend:            trendOf(c.earlier, c.later),
			Confidence:       model.Clamp01(0.4 + 0.1*float64(n)),
			AssociatedPeople: people,
		})
	}
	sort.Slice(res.Emotional, func(i, j int) bool {
		return res.Emotional[i].Emotion < res.Emotional[j].Emotion
	})
	return res, nil
}

// midpoint splits the window in half. Without explicit bounds the span of
// the interactions themselves is used.
func midpoint(req Request) time.Time {
	from, to := req.From, req.To
	if len(req.Interactions) > 0 {
		if from.IsZero() {
			from = req.Interactions[0].OccurredAt
		}
		if to.IsZero() {
			to = req.Interactions[len(req.Interactions)-1].OccurredAt
		}
	}
	return from.Add(to.Sub(from) / 2)
}

func matchesAny(text string, cues []string) bool {
	for _, c := range cues {
		if strings.Contains(text, c) {
			return true
		}
	}
	return false
}
