package proactive

import "time"

// careSilence is the silence after which a care message becomes appropriate.
const careSilence = 72 * time.Hour

// followupSilence is the silence after which a topic follow-up becomes
// appropriate, provided a topic is known.
const followupSilence = 6 * time.Hour

// decide picks at most one expression type for the user at this tick.
// Ordering encodes priority: care for a long-absent user beats a routine
// greeting, which beats a topic follow-up.
func decide(sig Signals, settings Settings, caps []int, minQuiet time.Duration) (ExpressionType, bool) {
	if !settings.Enabled {
		return "", false
	}
	if sig.FiredToday >= capFor(sig.Stage, caps) {
		return "", false
	}
	if settings.inQuietWindow(sig.LocalHour) {
		return "", false
	}
	if sig.Silence < minQuiet {
		return "", false
	}

	candidates := []ExpressionType{}
	// Care messages start once a relationship exists; brand-new users are not
	// chased after a long silence.
	if sig.Silence >= careSilence && sig.Stage != StageNew {
		candidates = append(candidates, TypeCare)
	}
	if sig.LocalHour >= 7 && sig.LocalHour < 10 {
		candidates = append(candidates, TypeGreeting)
	}
	if sig.LocalHour >= 21 && sig.LocalHour < 23 {
		candidates = append(candidates, TypeFarewell)
	}
	if sig.LastTopic != "" && sig.Silence >= followupSilence {
		candidates = append(candidates, TypeShare)
	}
	// Closer relationships also get an unprompted daytime reflection.
	if (sig.Stage == StageFamiliar || sig.Stage == StageClose) &&
		sig.LocalHour >= 10 && sig.LocalHour < 21 {
		candidates = append(candidates, TypeReflection)
	}

	for _, c := range candidates {
		if settings.allows(c) {
			return c, true
		}
	}
	return "", false
}
