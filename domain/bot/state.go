package bot

import "github.com/soocke/vision-bot-go/domain/vision"

// State carries the session-scoped mutable bot state: the element located by
// the most recent successful find and the label → needle-path map. It belongs
// to a single Bot instance and is mutated only by the goroutine driving it.
type State struct {
	Element   *vision.Match
	MapImages map[string]string
}

// NewState returns an empty session state.
func NewState() *State {
	return &State{MapImages: make(map[string]string)}
}
