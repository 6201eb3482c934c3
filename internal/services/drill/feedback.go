package drill

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const maxPerBucket = 3

var (
	openEndedPattern   = regexp.MustCompile(`\b(what|how|why|tell me|describe|when|where)\b[^?]*\?`)
	followUpPattern    = regexp.MustCompile(`tell me more|what about|can you elaborate|\bwhy\b`)
	firstPersonPattern = regexp.MustCompile(`\b(i|i'm|i've|i'd|i'll|me|my|mine)\b`)
)

// Sentence bank. Each signal contributes exactly one of its pair.
const (
	strengthQuestions      = "You kept the conversation moving by asking questions."
	improveQuestions       = "Ask more questions so the other person has something to respond to."
	strengthOpenEnded      = "You asked open-ended questions that invite longer answers."
	improveOpenEnded       = "Try open-ended questions that start with what, how, or why."
	strengthFollowUp       = "You followed up on what they said instead of changing topic."
	improveFollowUp        = "Use a follow-up like \"tell me more\" to go deeper on their answers."
	strengthSelfDisclosure = "You shared something about yourself, which makes the exchange feel two-sided."
	improveSelfDisclosure  = "Share one short personal detail to build connection."
	strengthFlow           = "You avoided awkward pauses by always having a question ready."
	improveFlow            = "Keep a question in your back pocket so pauses never get awkward."

	fallbackStrength    = "You showed up and practiced, which is the hardest part."
	fallbackImprovement = "Keep practicing to make these habits feel natural."
	defaultNextStep     = "Pick one thing from this drill and use it in your next real conversation."
)

// Signals are the text heuristics computed over everything the user said.
type Signals struct {
	Questions      int
	OpenEnded      int
	FollowUp       bool
	SelfDisclosure bool
	// FlowGoal is set when the drill goal is about avoiding silence or
	// keeping the conversation flowing.
	FlowGoal bool
}

// Analyze computes Signals for the user's concatenated text.
func Analyze(userText, goal string) Signals {
	text := strings.ToLower(userText)
	g := strings.ToLower(goal)

	return Signals{
		Questions:      strings.Count(text, "?"),
		OpenEnded:      len(openEndedPattern.FindAllString(text, -1)),
		FollowUp:       followUpPattern.MatchString(text),
		SelfDisclosure: firstPersonPattern.MatchString(text) && utf8.RuneCountInString(text) >= 40,
		FlowGoal:       strings.Contains(g, "avoid") || strings.Contains(g, "silence") || strings.Contains(g, "flow"),
	}
}

func (s Signals) buckets() (strengths, improvements []string) {
	pick := func(ok bool, strength, improvement string) {
		if ok {
			strengths = append(strengths, strength)
		} else {
			improvements = append(improvements, improvement)
		}
	}

	pick(s.Questions >= 2, strengthQuestions, improveQuestions)
	pick(s.OpenEnded >= 2, strengthOpenEnded, improveOpenEnded)
	pick(s.FollowUp, strengthFollowUp, improveFollowUp)
	pick(s.SelfDisclosure, strengthSelfDisclosure, improveSelfDisclosure)
	if s.FlowGoal {
		pick(s.Questions >= 3, strengthFlow, improveFlow)
	}

	if len(strengths) > maxPerBucket {
		strengths = strengths[:maxPerBucket]
	}
	if len(improvements) > maxPerBucket {
		improvements = improvements[:maxPerBucket]
	}
	if len(strengths) == 0 {
		strengths = []string{fallbackStrength}
	}
	if len(improvements) == 0 {
		improvements = []string{fallbackImprovement}
	}
	return strengths, improvements
}

// FeedbackFor returns the server's critique when there is one. Otherwise,
// for a finished drill, it derives one from the transcript and reports
// heuristic as true. Running drills without feedback yield "".
func FeedbackFor(d *Drill) (text string, heuristic bool) {
	if d == nil {
		return "", false
	}
	if d.HasFeedback() {
		return d.Feedback, false
	}
	if !d.IsTerminal() {
		return "", false
	}
	return HeuristicFeedback(d), true
}

// HeuristicFeedback builds rule-based feedback from the user's turns and
// the drill's own setup. It makes no network calls.
func HeuristicFeedback(d *Drill) string {
	var userParts []string
	for _, turn := range d.Transcript.Turns() {
		if turn.Role == RoleUser {
			userParts = append(userParts, turn.Content)
		}
	}

	signals := Analyze(strings.Join(userParts, " "), d.goal())
	strengths, improvements := signals.buckets()

	sections := []string{
		d.header(),
		"What you did well: " + strings.Join(strengths, " "),
		"What to improve: " + strings.Join(improvements, " "),
		"Next step: " + d.nextStep(),
	}
	if lessons := d.lessonNames(); len(lessons) > 0 {
		sections = append(sections, "Lessons to apply next time: "+strings.Join(lessons, ", "))
	}
	if summary := EndOfCallSummary(d.Events); summary != "" {
		sections = append(sections, "Call summary: "+summary)
	}

	return strings.TrimSpace(strings.Join(sections, "\n\n"))
}

func (d *Drill) goal() string {
	if d.Goal != "" {
		return d.Goal
	}
	if d.Prompt != nil {
		return d.Prompt.Goal
	}
	return ""
}

func (d *Drill) setting() string {
	if d.Setting != "" {
		return d.Setting
	}
	if d.Prompt != nil {
		return d.Prompt.Setting
	}
	return ""
}

func (d *Drill) header() string {
	var lines []string
	if d.Prompt != nil && strings.TrimSpace(d.Prompt.Objective) != "" {
		lines = append(lines, "Objective: "+strings.TrimSpace(d.Prompt.Objective))
	}

	var parts []string
	for _, part := range []string{d.setting(), d.goal()} {
		if part = strings.TrimSpace(strings.ReplaceAll(part, "_", " ")); part != "" {
			parts = append(parts, part)
		}
	}
	if len(parts) > 0 {
		lines = append(lines, "Context: "+strings.Join(parts, ", "))
	}

	if len(lines) == 0 {
		return "Drill recap"
	}
	return strings.Join(lines, "\n")
}

func (d *Drill) nextStep() string {
	if d.Prompt != nil && len(d.Prompt.Rubric) > 0 && strings.TrimSpace(d.Prompt.Rubric[0]) != "" {
		return strings.TrimSpace(d.Prompt.Rubric[0])
	}
	return defaultNextStep
}

// lessonNames prefers lesson titles from the prompt and falls back to the
// raw lesson ids.
func (d *Drill) lessonNames() []string {
	var names []string
	if d.Prompt != nil {
		for _, ref := range d.Prompt.LessonRefs {
			if title := strings.TrimSpace(ref.Title); title != "" {
				names = append(names, title)
			}
		}
	}
	if len(names) > 0 {
		return names
	}
	for _, id := range d.LessonIDs {
		if id = strings.TrimSpace(id); id != "" {
			names = append(names, id)
		}
	}
	return names
}
