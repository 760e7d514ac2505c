package handler

import (
	"golang.org/x/time/rate"

	"relaychat/internal/app/chat"
	"relaychat/internal/app/credential"
	"relaychat/internal/configs"
	"relaychat/internal/pkg/limiter"
)

const (
	APIRate   = 1
	APIBurst  = 10
	JoinRate  = 0.2
	JoinBurst = 5
)

// AppDeps carries everything the admin HTTP surface needs.
type AppDeps struct {
	Config      *configs.AppConfig
	Chat        *chat.Deps
	Credentials *credential.Service

	apiLimiter  *limiter.IPRateLimiter
	joinLimiter *limiter.IPRateLimiter
}

// NewAppDeps builds AppDeps with fresh per-IP limiters. Call Close to release them.
func NewAppDeps(cfg *configs.AppConfig, chatDeps *chat.Deps) *AppDeps {
	return &AppDeps{
		Config:      cfg,
		Chat:        chatDeps,
		Credentials: chatDeps.Credentials,
		apiLimiter:  limiter.NewIPRateLimiter(rate.Limit(APIRate), APIBurst),
		joinLimiter: limiter.NewIPRateLimiter(rate.Limit(JoinRate), JoinBurst),
	}
}

// Close stops the limiter cleanup goroutines.
func (d *AppDeps) Close() {
	d.apiLimiter.Stop()
	d.joinLimiter.Stop()
}
