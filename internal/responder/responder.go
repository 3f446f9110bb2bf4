package responder

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"strings"
)

//go:embed knowledge.md
var knowledgeBase string

// systemStyle is appended to the knowledge base to form the fixed system
// instruction for the generative path.
const systemStyle = `You are Hexpert, a friendly voice assistant that answers rules questions ` +
	`about the board game using only the reference document above. Keep answers short ` +
	`(two or three spoken sentences), concrete, and conversational. If the question is ` +
	`not about the game, say so briefly.`

// Fixed fallback explanations, one per topic category. Exported so the
// presentation layer and tests can reference the exact wording.
const (
	FallbackCurse = "Curses are drawn when your hero ends movement on a purple hex. " +
		"They stay in front of you until you lift them at a shrine or another player " +
		"cleanses you, and carrying a fourth curse ends your turn and costs you your " +
		"highest-level item."

	FallbackCombat = "Combat starts when you enter a hex with a monster or another hero. " +
		"The attacker rolls two dice plus attack, the defender rolls one die plus defense, " +
		"and the loser takes the difference as damage. Beating a monster earns experience " +
		"equal to its level."

	FallbackLeveling = "You level up by spending experience: each new level costs twice " +
		"that level. Reach level 10 and return to your starting hex to win, or be the " +
		"highest-level hero when the encounter deck runs out."

	FallbackSetup = "To set up, each player picks a hero and places it on a starting hex " +
		"on the outer ring. Shuffle the encounter and curse decks, start everyone at " +
		"level 1 with 10 health and 2 energy, and the youngest player goes first."
)

// fallbackRule pairs a topic's keywords with its fixed explanation.
// The chain is checked in order and the first match wins, so the order here
// is load-bearing: a question mentioning both curses and combat gets the
// curse answer.
type fallbackRule struct {
	keywords []string
	answer   string
}

var fallbackChain = []fallbackRule{
	{keywords: []string{"curse"}, answer: FallbackCurse},
	{keywords: []string{"combat", "fight", "attack", "battle"}, answer: FallbackCombat},
	{keywords: []string{"level", "win", "experience"}, answer: FallbackLeveling},
	{keywords: []string{"setup", "set up", "start", "begin"}, answer: FallbackSetup},
}

// Generator is the external text-generation collaborator
type Generator interface {
	Generate(ctx context.Context, system, user string) (string, error)
}

// Responder produces an answer string for a question string
type Responder struct {
	generator Generator
	logger    *slog.Logger

	// OnFallback is invoked whenever the keyword path produces the answer.
	// Optional; used for metrics.
	OnFallback func()
}

// New creates a responder. A nil generator disables the generative path
// entirely and every question is answered by the keyword fallback.
func New(generator Generator, logger *slog.Logger) *Responder {
	return &Responder{
		generator: generator,
		logger:    logger,
	}
}

// SystemInstruction returns the fixed system instruction used on the
// generative path: the embedded rules document plus response-style guidance.
func SystemInstruction() string {
	return knowledgeBase + "\n\n" + systemStyle
}

// Answer maps a question to an answer. It never fails: any error on the
// generative path falls back to the local keyword rules, which cannot fail.
func (r *Responder) Answer(ctx context.Context, question string) string {
	if r.generator != nil {
		answer, err := r.generator.Generate(ctx, SystemInstruction(), question)
		if err == nil && strings.TrimSpace(answer) != "" {
			return answer
		}
		if err != nil {
			r.logger.Warn("Generative path failed, using keyword fallback",
				slog.String("error", err.Error()),
			)
		}
	}

	if r.OnFallback != nil {
		r.OnFallback()
	}
	return fallbackAnswer(question)
}

// fallbackAnswer walks the fixed keyword chain and returns the first matching
// topic explanation, or the generic unknown-question message echoing the
// original question verbatim.
func fallbackAnswer(question string) string {
	lowered := strings.ToLower(question)

	for _, rule := range fallbackChain {
		for _, keyword := range rule.keywords {
			if strings.Contains(lowered, keyword) {
				return rule.answer
			}
		}
	}

	return fmt.Sprintf("I don't know how to answer that yet. You asked: %s", question)
}
