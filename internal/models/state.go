package models

import (
	"fmt"
	"slices"
)

// ConversationState is the top-level state of a user's conversation with the bot.
type ConversationState string

const (
	StateIdle     ConversationState = "idle"
	StateMainMenu ConversationState = "main_menu"

	// StateActiveFlow is shared by every configuration-driven flow; the flow position
	// lives in the embedded FlowContext.
	StateActiveFlow ConversationState = "active_flow"

	// Legacy check flow.
	StateCheckingCategory    ConversationState = "checking_category"
	StateCheckingDescription ConversationState = "checking_description"
	StateCheckingLocation    ConversationState = "checking_location"
	StateCheckingResults     ConversationState = "checking_results"

	// Legacy report flow.
	StateReportingCategory    ConversationState = "reporting_category"
	StateReportingDescription ConversationState = "reporting_description"
	StateReportingLocation    ConversationState = "reporting_location"
	StateReportingDate        ConversationState = "reporting_date"
	StateReportingImage       ConversationState = "reporting_image"
	StateReportingConfirm     ConversationState = "reporting_confirm"

	// Terminal states. Contexts reaching them are deleted, not retained.
	StateComplete  ConversationState = "complete"
	StateCancelled ConversationState = "cancelled"
)

// stateTransitions is the only place that decides whether a state change is legal.
var stateTransitions = map[ConversationState][]ConversationState{
	StateIdle: {StateMainMenu, StateCancelled},
	StateMainMenu: {
		StateActiveFlow,
		StateCheckingCategory,
		StateReportingCategory,
		StateCancelled,
	},
	StateActiveFlow: {StateActiveFlow, StateComplete, StateCancelled},

	StateCheckingCategory:    {StateCheckingDescription, StateMainMenu, StateCancelled},
	StateCheckingDescription: {StateCheckingLocation, StateCheckingCategory, StateCancelled},
	StateCheckingLocation:    {StateCheckingResults, StateCheckingDescription, StateCancelled},
	StateCheckingResults:     {StateMainMenu, StateComplete, StateCancelled},

	StateReportingCategory:    {StateReportingDescription, StateMainMenu, StateCancelled},
	StateReportingDescription: {StateReportingLocation, StateReportingCategory, StateCancelled},
	StateReportingLocation:    {StateReportingDate, StateReportingDescription, StateCancelled},
	StateReportingDate:        {StateReportingImage, StateReportingLocation, StateCancelled},
	StateReportingImage:       {StateReportingConfirm, StateReportingDate, StateCancelled},
	StateReportingConfirm:     {StateComplete, StateReportingImage, StateCancelled},

	StateComplete:  {},
	StateCancelled: {},
}

// allStates lists every state in declaration order.
var allStates = []ConversationState{
	StateIdle,
	StateMainMenu,
	StateActiveFlow,
	StateCheckingCategory,
	StateCheckingDescription,
	StateCheckingLocation,
	StateCheckingResults,
	StateReportingCategory,
	StateReportingDescription,
	StateReportingLocation,
	StateReportingDate,
	StateReportingImage,
	StateReportingConfirm,
	StateComplete,
	StateCancelled,
}

// AllStates returns every conversation state.
func AllStates() []ConversationState {
	return slices.Clone(allStates)
}

// AllowedTransitions returns the states directly reachable from s.
// Unknown states have no outgoing transitions.
func AllowedTransitions(s ConversationState) []ConversationState {
	return slices.Clone(stateTransitions[s])
}

// IsValidTransition reports whether moving from current to next is legal.
func IsValidTransition(current, next ConversationState) bool {
	return slices.Contains(stateTransitions[current], next)
}

// ParseConversationState converts a persisted state value back into a ConversationState.
func ParseConversationState(s string) (ConversationState, error) {
	state := ConversationState(s)
	if _, ok := stateTransitions[state]; !ok {
		return "", fmt.Errorf("unknown conversation state %q", s)
	}
	return state, nil
}

// IsTerminal reports whether the state ends a conversation.
func (s ConversationState) IsTerminal() bool {
	return s == StateComplete || s == StateCancelled
}

// IsLegacy reports whether the state belongs to one of the hard-coded check/report flows.
func (s ConversationState) IsLegacy() bool {
	switch s {
	case StateCheckingCategory, StateCheckingDescription, StateCheckingLocation, StateCheckingResults,
		StateReportingCategory, StateReportingDescription, StateReportingLocation,
		StateReportingDate, StateReportingImage, StateReportingConfirm:
		return true
	}
	return false
}

func (s ConversationState) String() string {
	return string(s)
}
