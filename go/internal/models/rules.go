package models

import "time"

// Rules are the per-session settings fixed at creation.
type Rules struct {
	MaxPlayers       int            `json:"max_players" yaml:"max_players"`
	MaxScoreDelta    int            `json:"max_score_delta" yaml:"max_score_delta"`
	MaxAbsoluteScore int            `json:"max_absolute_score" yaml:"max_absolute_score"`
	Durations        TimerDurations `json:"durations" yaml:"durations"`
}

// TimerDurations configures the countdown of every timed phase.
type TimerDurations struct {
	MediaDownload    time.Duration `json:"media_download" yaml:"media_download"`
	Showing          time.Duration `json:"showing" yaml:"showing"`
	Answering        time.Duration `json:"answering" yaml:"answering"`
	ShowingAnswer    time.Duration `json:"showing_answer" yaml:"showing_answer"`
	SecretTransfer   time.Duration `json:"secret_transfer" yaml:"secret_transfer"`
	StakeBidding     time.Duration `json:"stake_bidding" yaml:"stake_bidding"`
	ThemeElimination time.Duration `json:"theme_elimination" yaml:"theme_elimination"`
	FinalBidding     time.Duration `json:"final_bidding" yaml:"final_bidding"`
	FinalAnswering   time.Duration `json:"final_answering" yaml:"final_answering"`
}

// DefaultRules returns the built-in settings.
func DefaultRules() Rules {
	return Rules{
		MaxPlayers:       8,
		MaxScoreDelta:    10000,
		MaxAbsoluteScore: 1000000,
		Durations: TimerDurations{
			MediaDownload:    15 * time.Second,
			Showing:          20 * time.Second,
			Answering:        15 * time.Second,
			ShowingAnswer:    5 * time.Second,
			SecretTransfer:   15 * time.Second,
			StakeBidding:     30 * time.Second,
			ThemeElimination: 20 * time.Second,
			FinalBidding:     30 * time.Second,
			FinalAnswering:   45 * time.Second,
		},
	}
}

// For returns the countdown for a phase; zero means the phase is untimed.
func (d TimerDurations) For(phase Phase) time.Duration {
	switch phase {
	case PhaseMediaDownloading:
		return d.MediaDownload
	case PhaseShowing:
		return d.Showing
	case PhaseAnswering:
		return d.Answering
	case PhaseShowingAnswer:
		return d.ShowingAnswer
	case PhaseSecretTransfer:
		return d.SecretTransfer
	case PhaseStakeBidding:
		return d.StakeBidding
	case PhaseThemeElimination:
		return d.ThemeElimination
	case PhaseFinalBidding:
		return d.FinalBidding
	case PhaseFinalAnswering:
		return d.FinalAnswering
	default:
		return 0
	}
}

// WithDefaults fills zero fields from DefaultRules.
func (r Rules) WithDefaults() Rules {
	def := DefaultRules()
	if r.MaxPlayers <= 0 {
		r.MaxPlayers = def.MaxPlayers
	}
	if r.MaxScoreDelta <= 0 {
		r.MaxScoreDelta = def.MaxScoreDelta
	}
	if r.MaxAbsoluteScore <= 0 {
		r.MaxAbsoluteScore = def.MaxAbsoluteScore
	}
	d := &r.Durations
	fill := func(v *time.Duration, fallback time.Duration) {
		if *v <= 0 {
			*v = fallback
		}
	}
	fill(&d.MediaDownload, def.Durations.MediaDownload)
	fill(&d.Showing, def.Durations.Showing)
	fill(&d.Answering, def.Durations.Answering)
	fill(&d.ShowingAnswer, def.Durations.ShowingAnswer)
	fill(&d.SecretTransfer, def.Durations.SecretTransfer)
	fill(&d.StakeBidding, def.Durations.StakeBidding)
	fill(&d.ThemeElimination, def.Durations.ThemeElimination)
	fill(&d.FinalBidding, def.Durations.FinalBidding)
	fill(&d.FinalAnswering, def.Durations.FinalAnswering)
	return r
}
