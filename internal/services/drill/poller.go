package drill

import (
	"context"
	"errors"
	"time"

	"github.com/deepgram/connected/internal/config"
	"github.com/deepgram/connected/internal/services/session"
	"github.com/deepgram/connected/pkg/logger"
)

type State string

const (
	StateIdle             State = "idle"
	StatePolling          State = "polling"
	StateFeedbackReady    State = "feedback_ready"
	StateFeedbackDegraded State = "feedback_degraded"
	StateRedirected       State = "redirected_unauthenticated"
)

func (s State) IsTerminal() bool {
	switch s {
	case StateFeedbackReady, StateFeedbackDegraded, StateRedirected:
		return true
	}
	return false
}

// Update is emitted after every poll and once more on reaching a
// terminal state.
type Update struct {
	State  State  `json:"state"`
	Drill  *Drill `json:"drill,omitempty"`
	Status string `json:"status,omitempty"`
	Polls  int    `json:"polls"`
}

type Result struct {
	State     State  `json:"state"`
	Drill     *Drill `json:"drill,omitempty"`
	Feedback  string `json:"feedback"`
	Heuristic bool   `json:"heuristic"`
	Polls     int    `json:"polls"`
	Redirect  string `json:"redirect,omitempty"`
}

type Fetcher interface {
	Get(ctx context.Context, id string) (*Drill, error)
}

type PollerConfig struct {
	Interval time.Duration
	// FeedbackGracePolls is how many consecutive terminal snapshots without
	// feedback are accepted before giving up on the backend's summary.
	FeedbackGracePolls int
	LoginPath          string
}

func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		Interval:           config.GetDrillPollInterval(),
		FeedbackGracePolls: config.GetDrillFeedbackGracePolls(),
		LoginPath:          config.GetLoginPath(),
	}
}

// Poller watches one drill at a time until it settles.
type Poller struct {
	fetcher   Fetcher
	navigator session.Navigator
	cfg       PollerConfig
}

func NewPoller(fetcher Fetcher, navigator session.Navigator, cfg PollerConfig) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = config.DefaultDrillPollInterval
	}
	if cfg.FeedbackGracePolls < 1 {
		cfg.FeedbackGracePolls = config.DefaultDrillFeedbackGracePolls
	}
	if cfg.LoginPath == "" {
		cfg.LoginPath = "/login"
	}
	return &Poller{fetcher: fetcher, navigator: navigator, cfg: cfg}
}

var ErrNoDrillID = errors.New("drill: no drill id")

// Run polls drill id until it reaches a terminal state or ctx is done.
// Requests never overlap: the next tick is scheduled only after the
// previous response has been handled. observe may be nil. After ctx is
// cancelled no further updates are delivered and ctx.Err() is returned.
func (p *Poller) Run(ctx context.Context, id string, observe func(Update)) (*Result, error) {
	if id == "" {
		return nil, ErrNoDrillID
	}
	emit := func(u Update) {
		if observe != nil {
			observe(u)
		}
	}

	logger.Info(logger.DRILL, "Polling drill %s every %s", id, p.cfg.Interval)
	emit(Update{State: StatePolling})

	polls, feedbackless := 0, 0
	for {
		d, err := p.fetcher.Get(ctx, id)
		polls++
		if ctx.Err() != nil {
			logger.Debug(logger.DRILL, "Polling of drill %s cancelled after %d polls", id, polls)
			return nil, ctx.Err()
		}

		switch {
		case IsUnauthorized(err):
			logger.Warn(logger.DRILL, "Drill %s poll unauthorised - redirecting to login", id)
			if p.navigator != nil {
				p.navigator.Navigate(ctx, p.cfg.LoginPath)
			}
			emit(Update{State: StateRedirected, Polls: polls})
			return &Result{State: StateRedirected, Polls: polls, Redirect: p.cfg.LoginPath}, nil

		case err != nil:
			logger.Warn(logger.DRILL, "Drill %s poll %d failed: %v", id, polls, err)
			emit(Update{State: StatePolling, Status: err.Error(), Polls: polls})

		default:
			emit(Update{State: StatePolling, Drill: d, Polls: polls})

			if !d.IsTerminal() {
				feedbackless = 0
				break
			}
			if !d.HasFeedback() {
				feedbackless++
				if feedbackless < p.cfg.FeedbackGracePolls {
					break
				}
				logger.Info(logger.DRILL, "Drill %s has no feedback after %d terminal polls - using heuristic", id, feedbackless)
			}

			feedback, heuristic := FeedbackFor(d)
			state := StateFeedbackReady
			if heuristic {
				state = StateFeedbackDegraded
			} else {
				logger.Info(logger.DRILL, "Drill %s feedback ready after %d polls", id, polls)
			}
			return p.finish(emit, &Result{
				State:     state,
				Drill:     d,
				Feedback:  feedback,
				Heuristic: heuristic,
				Polls:     polls,
			}), nil
		}

		timer := time.NewTimer(p.cfg.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Debug(logger.DRILL, "Polling of drill %s cancelled after %d polls", id, polls)
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (p *Poller) finish(emit func(Update), res *Result) *Result {
	emit(Update{State: res.State, Drill: res.Drill, Polls: res.Polls})
	return res
}
