package llm

import (
	"fmt"
	"strings"

	"go.aimuz.me/voxtype/internal/types"
)

const cleanupRules = `SPEECH CLEANUP:
Remove filler sounds (uh, um, ah, er, hmm), verbal pauses, false starts,
repetitions and stutters. When the speaker corrects themselves ("X, no wait, Y",
"X, I mean Y", "X, actually Y"), keep only the correction.
Output only the clean, final intended message.`

var modeRules = map[types.Mode]string{
	types.ModeText: `You are a dictation assistant. Turn the transcript into clean, well punctuated text.
Never greet or add "here is". Fix grammar and structure, keep the original meaning,
use paragraphs where appropriate. Return only the final text.`,
	types.ModeChat: `Format the transcript as a short chat message (Slack, WhatsApp).
Keep the casual tone, do not formalize, keep intentional slang, minimal punctuation.
Return only the message, ready to send.`,
	types.ModeCode: `The user is dictating code or describing programming logic.
Return only code, no markdown fences, no explanations, no greetings.
Interpret natural language as code ("variable x equals 5" -> x := 5) in the language
mentioned, following its conventions.`,
	types.ModeVibeCoder: `Extract the essence of what the user said for an AI coding assistant.
Keep questions as questions, instructions as concise instructions, observations as observations.
Keep every technical term and concrete requirement. Use the last correction as the decision.
Return only the essence.`,
	types.ModeEmail: `Format the transcript as a professional email body.
Fix grammar and punctuation. Never invent facts, subjects, greetings or sign-offs the user
did not dictate. Preserve names, dates and numbers exactly.`,
	types.ModeFormal: `Rewrite the transcript in a formal, corporate register with well organized
paragraphs and formal connectives. Keep the meaning intact. Return only the text.`,
	types.ModeSocial: `Rewrite the transcript as an engaging social post: a strong opening line,
one idea per line, a closing invitation to engage. At most two emojis, no hashtags.
Return only the post.`,
	types.ModeX: `Rewrite the transcript as a tweet of at most 280 characters: a strong hook,
one or two sentences of value, a subtle close. At most one emoji, no hashtags.
Return only the tweet.`,
	types.ModeSummary: `Summarize the transcript to 20-30% of its length. Keep only essential points,
decisions, numbers, dates and actions, in at most three short paragraphs.
Never add information. Return the summary without a heading.`,
	types.ModeTopics: `Turn the transcript into a bullet list using "•", one item per idea,
sub-items indented with "  ◦". No title. Return only the list.`,
	types.ModeMeeting: `Organize the transcript as meeting minutes with the sections PARTICIPANTS,
TOPICS DISCUSSED, DECISIONS and ACTION ITEMS (with owners when mentioned).
Omit empty sections. Never invent data.`,
	types.ModeUXDesign: `The user is dictating interface descriptions or user flows.
Structure the text as UX documentation: highlight components, user actions, states and
transitions, use standard component names (Button, Modal, Card), number flow steps.`,
	types.ModeTranslation: `You are a simultaneous interpreter. The user may speak any language.
Translate what was said into the output language, naturally and precisely.
Never include the original text or explain. Keep paragraphs and tone.`,
	types.ModeCreative: `Rewrite the transcript as creative, engaging prose with rich descriptive language
and good rhythm, keeping the original message. Return only the text.`,
	types.ModeCustom: `You are a dictation assistant. Never greet, return only the final result,
keep the original meaning.`,
}

// StylePrompt renders the writing style block, or "" when the style is
// disabled or every level is near neutral.
func StylePrompt(s types.WritingStyle) string {
	if !s.Enabled {
		return ""
	}
	var parts []string
	add := func(level int, low, high string) {
		switch {
		case level < 30:
			parts = append(parts, low)
		case level > 70:
			parts = append(parts, high)
		}
	}
	add(s.Formality, "Use a casual, conversational tone.", "Use a formal, professional tone.")
	add(s.Verbosity, "Be very concise and brief.", "Be detailed and thorough.")
	add(s.Technical, "Use simple, non-technical language.", "Use precise technical terminology.")
	if in := strings.TrimSpace(s.Instructions); in != "" {
		parts = append(parts, in)
	}
	if len(parts) == 0 {
		return ""
	}
	return "WRITING STYLE INSTRUCTIONS:\n" + strings.Join(parts, "\n")
}

// FormatPrompt returns the system prompt that formats a raw transcript for
// mode, writing the result in the named output language. custom is the user
// instruction appended for the Custom mode. The writing style applies to every
// mode except Custom and VibeCoder.
func FormatPrompt(mode types.Mode, outputLanguage, custom string, style types.WritingStyle) string {
	rules, ok := modeRules[mode]
	if !ok {
		mode = types.DefaultMode
		rules = modeRules[mode]
	}

	var b strings.Builder
	b.WriteString(rules)
	b.WriteString("\n\n")
	b.WriteString(cleanupRules)
	if mode == types.ModeCustom {
		if custom == "" {
			custom = "Transcribe the audio cleanly and organized."
		}
		fmt.Fprintf(&b, "\n\nUSER INSTRUCTION:\n%s", custom)
	}
	if mode != types.ModeCustom && mode != types.ModeVibeCoder {
		if sp := StylePrompt(style); sp != "" {
			b.WriteString("\n\n")
			b.WriteString(sp)
		}
	}
	fmt.Fprintf(&b, "\n\nOUTPUT LANGUAGE:\nWrite the result in %s, translating naturally if the input is in another language.", outputLanguage)
	return b.String()
}

// FormatMessages builds the messages for formatting transcript in mode.
func FormatMessages(mode types.Mode, outputLanguage, custom string, style types.WritingStyle, transcript string) []Message {
	return []Message{
		{Role: "system", Content: FormatPrompt(mode, outputLanguage, custom, style)},
		{Role: "user", Content: transcript},
	}
}
