package router

import (
	"slices"

	"github.com/mcdev12/quizhall/go/internal/events"
	"github.com/mcdev12/quizhall/go/internal/models"
)

// beginStake opens the auction, starting with the turn-holder.
func (c *call) beginStake() {
	players := c.remaining(c.s.State.Eligible)
	switch len(players) {
	case 0:
		c.revealAnswer()
		return
	case 1:
		c.beginAnswering(players[0], c.s.State.Question.Price)
		return
	}
	if i := slices.Index(players, c.s.TurnPlayer); i > 0 {
		players = slices.Concat(players[i:], players[:i])
	}
	c.s.State.Stake = &models.StakeBidding{
		Order: players,
		Floor: c.s.State.Question.Price,
	}
	c.enter(models.PhaseStakeBidding)
}

func (c *call) stakeAction(payload any) bool {
	p, ok := payload.(Stake)
	if !ok {
		return false
	}
	b := c.s.State.Stake
	if b == nil || b.Current() != c.by || b.HasPassed(c.by) {
		return false
	}
	bidder := c.s.Participant(c.by)
	if bidder == nil {
		return false
	}
	ceiling := max(bidder.Score, b.Floor)

	switch p.Action {
	case StakeBid:
		if b.AllIn || p.Amount < b.Floor || p.Amount > ceiling || p.Amount <= b.HighBid {
			return false
		}
		b.HighBid, b.HighBidder = p.Amount, c.by
	case StakeAllIn:
		if ceiling <= b.HighBid {
			return false
		}
		b.HighBid, b.HighBidder, b.AllIn = ceiling, c.by, true
	case StakePass:
		if b.HighBidder == c.by {
			return false
		}
		b.Passed = append(b.Passed, c.by)
	default:
		return false
	}

	amount := 0
	if p.Action != StakePass {
		amount = b.HighBid
	}
	c.advanceStake(true)
	next := ""
	if c.s.Phase == models.PhaseStakeBidding {
		next = c.s.State.Stake.Current()
	}
	c.emit(events.KindStakeBid, events.StakeBidPayload{
		ParticipantID: c.by,
		Action:        string(p.Action),
		Amount:        amount,
		Next:          next,
	})
	return true
}

func (c *call) stakeTimeout(any) bool {
	b := c.s.State.Stake
	if b == nil {
		return false
	}
	winner := ""
	switch {
	case c.isRemaining(b.HighBidder):
		winner = b.HighBidder
	case c.isRemaining(b.Current()) && !b.HasPassed(b.Current()):
		winner = b.Current()
	default:
		if u := c.unresolved(); len(u) > 0 {
			winner = u[0]
		}
	}
	if winner == "" {
		c.revealAnswer()
		return true
	}
	c.emit(events.KindStakeBid, events.StakeBidPayload{ParticipantID: winner, Action: "WON", Amount: c.stakeValue(winner), Auto: true})
	c.beginAnswering(winner, c.stakeValue(winner))
	return true
}

// stakePlayerLeft drops the departing bidder from the auction.
func (c *call) stakePlayerLeft(any) bool {
	b := c.s.State.Stake
	if b == nil || !slices.Contains(b.Order, c.departing) || b.HasPassed(c.departing) {
		return false
	}
	wasTurn := b.Current() == c.departing
	b.Passed = append(b.Passed, c.departing)
	if b.HighBidder == c.departing {
		b.HighBid, b.HighBidder, b.AllIn = 0, "", false
	}
	c.emit(events.KindStakeBid, events.StakeBidPayload{ParticipantID: c.departing, Action: string(StakePass), Auto: true})
	c.advanceStake(wasTurn)
	return true
}

// unresolved lists bidders still in the auction, in turn order.
func (c *call) unresolved() []string {
	b := c.s.State.Stake
	var out []string
	for _, id := range b.Order {
		if !b.HasPassed(id) && c.isRemaining(id) {
			out = append(out, id)
		}
	}
	return out
}

func (c *call) stakeValue(winner string) int {
	b := c.s.State.Stake
	if b.HighBidder == winner {
		return max(b.HighBid, b.Floor)
	}
	return b.Floor
}

// advanceStake resolves the auction once one bidder is left, otherwise
// optionally passes the turn to the next bidder.
func (c *call) advanceStake(moveTurn bool) {
	b := c.s.State.Stake
	u := c.unresolved()
	switch len(u) {
	case 0:
		c.revealAnswer()
		return
	case 1:
		c.beginAnswering(u[0], c.stakeValue(u[0]))
		return
	}
	if !moveTurn {
		return
	}
	for step := 1; step <= len(b.Order); step++ {
		i := (b.Turn + step) % len(b.Order)
		id := b.Order[i]
		if id != b.HighBidder && slices.Contains(u, id) {
			b.Turn = i
			c.enter(models.PhaseStakeBidding)
			return
		}
	}
}

// beginTransfer lets the turn-holder hand a secret question to someone else.
func (c *call) beginTransfer() {
	eligible := c.remaining(c.s.State.Eligible)
	if len(eligible) == 0 {
		c.revealAnswer()
		return
	}
	holder := ""
	if c.isRemaining(c.s.TurnPlayer) {
		holder = c.s.TurnPlayer
	}
	candidates := without(eligible, holder)
	if len(candidates) == 0 {
		candidates = eligible
	}
	c.s.State.Transfer = &models.SecretTransfer{Holder: holder, Candidates: candidates}
	if holder == "" {
		c.randomTransfer()
		return
	}
	c.enter(models.PhaseSecretTransfer)
}

func (c *call) transferAction(payload any) bool {
	p, ok := payload.(Transfer)
	if !ok {
		return false
	}
	t := c.s.State.Transfer
	if t == nil || t.Holder != c.by || !slices.Contains(t.Candidates, p.Target) || !c.isRemaining(p.Target) {
		return false
	}
	c.emit(events.KindSecretTransferred, events.SecretTransferredPayload{From: c.by, To: p.Target})
	c.beginAnswering(p.Target, c.s.State.Question.Price)
	return true
}

func (c *call) transferTimeout(any) bool {
	if c.s.State.Transfer == nil {
		return false
	}
	c.randomTransfer()
	return true
}

// transferPlayerLeft assigns the question at random when the holder leaves.
func (c *call) transferPlayerLeft(any) bool {
	t := c.s.State.Transfer
	if t == nil {
		return false
	}
	if c.departing == t.Holder {
		c.randomTransfer()
		return true
	}
	if !slices.Contains(t.Candidates, c.departing) {
		return false
	}
	t.Candidates = without(t.Candidates, c.departing)
	if len(t.Candidates) == 0 {
		t.Candidates = []string{t.Holder}
	}
	return true
}

func (c *call) randomTransfer() {
	t := c.s.State.Transfer
	pool := c.remaining(t.Candidates)
	if len(pool) == 0 {
		pool = c.remaining(c.s.State.Eligible)
	}
	target := c.r.pick(pool)
	if target == "" {
		c.revealAnswer()
		return
	}
	c.emit(events.KindSecretTransferred, events.SecretTransferredPayload{From: t.Holder, To: target, Random: true})
	c.beginAnswering(target, c.s.State.Question.Price)
}
