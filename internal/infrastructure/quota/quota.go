package quota

import (
	"sync"

	"golang.org/x/time/rate"
)

// Guard applies a per-user submission budget plus a global one so a
// single user cannot starve everyone else.
type Guard struct {
	global *rate.Limiter

	mu      sync.Mutex
	perUser map[string]*rate.Limiter
	userRPS rate.Limit
	burst   int
}

type Options struct {
	GlobalRPS   float64
	GlobalBurst int
	UserRPS     float64
	UserBurst   int
}

// maxTrackedUsers bounds the per-user limiter map. Past the cap the map
// resets, which briefly refills budgets instead of leaking memory.
const maxTrackedUsers = 10000

func New(opts Options) *Guard {
	if opts.GlobalRPS <= 0 {
		opts.GlobalRPS = 10
	}
	if opts.GlobalBurst <= 0 {
		opts.GlobalBurst = 20
	}
	if opts.UserRPS <= 0 {
		opts.UserRPS = 0.5
	}
	if opts.UserBurst <= 0 {
		opts.UserBurst = 3
	}
	return &Guard{
		global:  rate.NewLimiter(rate.Limit(opts.GlobalRPS), opts.GlobalBurst),
		perUser: make(map[string]*rate.Limiter),
		userRPS: rate.Limit(opts.UserRPS),
		burst:   opts.UserBurst,
	}
}

func (g *Guard) Allow(userID string) bool {
	if !g.limiterFor(userID).Allow() {
		return false
	}
	return g.global.Allow()
}

func (g *Guard) limiterFor(userID string) *rate.Limiter {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.perUser) >= maxTrackedUsers {
		g.perUser = make(map[string]*rate.Limiter)
	}
	lim, ok := g.perUser[userID]
	if !ok {
		lim = rate.NewLimiter(g.userRPS, g.burst)
		g.perUser[userID] = lim
	}
	return lim
}
