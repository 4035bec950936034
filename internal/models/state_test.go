package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsValidTransitionMatchesTable(t *testing.T) {
	for _, from := range AllStates() {
		allowed := map[ConversationState]bool{}
		for _, to := range AllowedTransitions(from) {
			allowed[to] = true
		}
		for _, to := range AllStates() {
			assert.Equal(t, allowed[to], IsValidTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestTerminalStatesHaveNoTransitions(t *testing.T) {
	for _, s := range []ConversationState{StateComplete, StateCancelled} {
		assert.True(t, s.IsTerminal())
		assert.Empty(t, AllowedTransitions(s))
		for _, to := range AllStates() {
			assert.False(t, IsValidTransition(s, to), "%s -> %s", s, to)
		}
	}
}

func TestNonTerminalStatesCanCancel(t *testing.T) {
	for _, s := range AllStates() {
		if s.IsTerminal() {
			continue
		}
		assert.True(t, IsValidTransition(s, StateCancelled), "%s must allow cancel", s)
	}
}

func TestEveryNonTerminalStateHasAnOutgoingTransition(t *testing.T) {
	for _, s := range AllStates() {
		if s.IsTerminal() {
			continue
		}
		assert.NotEmpty(t, AllowedTransitions(s), s)
	}
}

func TestAllowedTransitionsReturnsCopy(t *testing.T) {
	got := AllowedTransitions(StateMainMenu)
	got[0] = StateComplete
	assert.Equal(t, StateActiveFlow, AllowedTransitions(StateMainMenu)[0])
}

func TestParseConversationState(t *testing.T) {
	s, err := ParseConversationState("checking_location")
	require.NoError(t, err)
	assert.Equal(t, StateCheckingLocation, s)
	assert.True(t, s.IsLegacy())
	assert.False(t, StateActiveFlow.IsLegacy())

	_, err = ParseConversationState("bogus")
	assert.Error(t, err)
}
