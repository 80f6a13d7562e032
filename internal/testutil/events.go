package testutil

import (
	"time"

	"github.com/hupe1980/flowmesh/core"
)

// CollectEvents drains a fragment event channel into a slice, giving up
// after timeout so a stuck multiplexer fails the test instead of hanging it.
func CollectEvents(ch <-chan core.FragmentEvent, timeout time.Duration) []core.FragmentEvent {
	var events []core.FragmentEvent
	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-deadline:
			return events
		}
	}
}

// TokenTexts extracts the text of every token event in order.
func TokenTexts(events []core.FragmentEvent) []string {
	var texts []string
	for _, ev := range events {
		if tok, ok := ev.(core.TokenEvent); ok {
			texts = append(texts, tok.Text)
		}
	}
	return texts
}

// ParsedLines extracts the line of every parsed-line event in order.
func ParsedLines(events []core.FragmentEvent) []string {
	var lines []string
	for _, ev := range events {
		if line, ok := ev.(core.ParsedLineEvent); ok {
			lines = append(lines, line.Line)
		}
	}
	return lines
}
