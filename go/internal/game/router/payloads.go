package router

// Payloads carried by USER_ACTION triggers. Validation of who may send them
// happens before the router runs.

type StartGame struct{}

type Pick struct {
	Theme    int `json:"theme"`
	Question int `json:"question"`
}

type SetTurn struct {
	ParticipantID string `json:"participant_id"`
}

type Buzz struct{}

type Skip struct{}

type MediaReady struct{}

type Review struct {
	Correct bool `json:"correct"`
}

type Continue struct{}

type Transfer struct {
	Target string `json:"target"`
}

type StakeAction string

const (
	StakeBid   StakeAction = "BID"
	StakePass  StakeAction = "PASS"
	StakeAllIn StakeAction = "ALL_IN"
)

type Stake struct {
	Action StakeAction `json:"action"`
	Amount int         `json:"amount,omitempty"`
}

type Eliminate struct {
	Theme int `json:"theme"`
}

type FinalBid struct {
	Amount int `json:"amount"`
}

type FinalAnswer struct {
	Text string `json:"text"`
}

type FinalReview struct {
	ParticipantID string `json:"participant_id"`
	Correct       bool   `json:"correct"`
}

// Departure is the PLAYER_LEFT payload. The departing participant is treated
// as gone even while still on the roster.
type Departure struct {
	ParticipantID string
}
