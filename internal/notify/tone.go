package notify

// Tone is the personality a user picked for reminder copy.
type Tone string

const (
	ToneEncouraging Tone = "encouraging"
	ToneToughLove   Tone = "tough_love"
	ToneFunny       Tone = "funny"
	ToneZen         Tone = "zen"
)

var toneStyles = map[Tone]string{
	ToneEncouraging: "warm, supportive and upbeat",
	ToneToughLove:   "blunt and demanding, like a strict coach, never insulting",
	ToneFunny:       "playful and witty with a light joke",
	ToneZen:         "calm, mindful and gentle",
}

// ParseTone maps a stored personality to a tone. Unknown values are
// encouraging.
func ParseTone(s string) Tone {
	if _, ok := toneStyles[Tone(s)]; ok {
		return Tone(s)
	}
	return ToneEncouraging
}

// Style describes the tone for the model.
func (t Tone) Style() string {
	return toneStyles[ParseTone(string(t))]
}
