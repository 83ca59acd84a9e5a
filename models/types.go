package models

import "errors"

// Choice keys accepted by the producer
const (
	ChoiceA = "a"
	ChoiceB = "b"
)

// Push channel event names
const (
	EventWelcome   = "welcome"
	EventScores    = "scores"
	EventSubscribe = "subscribe"
)

// ChannelTally is the single global broadcast channel
const ChannelTally = "tally"

var (
	ErrInvalidChoice = errors.New("invalid choice")
	ErrMissingVoter  = errors.New("voter_id is required")
)

// Choices lists the closed set of valid options in display order
var Choices = []string{ChoiceA, ChoiceB}

// ValidChoice reports whether choice belongs to the closed option set
func ValidChoice(choice string) bool {
	for _, c := range Choices {
		if c == choice {
			return true
		}
	}
	return false
}

// Queue payload

// Vote is the hand-off queue message. The "vote" key matches the producer
// wire format already in the list.
type Vote struct {
	VoterID string `json:"voter_id"`
	Choice  string `json:"vote"`
}

// Validate checks a decoded message before it is applied
func (v Vote) Validate() error {
	if v.VoterID == "" {
		return ErrMissingVoter
	}
	if !ValidChoice(v.Choice) {
		return ErrInvalidChoice
	}
	return nil
}

// Tally maps choice -> count. Every valid choice is present.
type Tally map[string]int

// NewTally returns a tally with every valid choice at zero
func NewTally() Tally {
	t := make(Tally, len(Choices))
	for _, c := range Choices {
		t[c] = 0
	}
	return t
}

// Request types

type SubmitVoteRequest struct {
	Vote string `json:"vote"`
}

// Response types

type VotePageResponse struct {
	OptionA  string `json:"option_a"`
	OptionB  string `json:"option_b"`
	Hostname string `json:"hostname"`
	VoterID  string `json:"voter_id"`
}

type SubmitVoteResponse struct {
	VoterID  string `json:"voter_id"`
	Vote     string `json:"vote"`
	Hostname string `json:"hostname"`
	Message  string `json:"message"`
}

type ScoresResponse struct {
	OptionA string `json:"option_a"`
	OptionB string `json:"option_b"`
	Scores  Tally  `json:"scores"`
	Total   int    `json:"total"`
}

// Push channel

// Event is one frame on the observer websocket
type Event struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

type WelcomeData struct {
	Message string `json:"message"`
	Channel string `json:"channel"`
	OptionA string `json:"option_a"`
	OptionB string `json:"option_b"`
}

type SubscribeData struct {
	Channel string `json:"channel"`
}

// Error response

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
