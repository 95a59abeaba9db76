package config

import (
	"time"

	"github.com/wesleyorama2/drip/pkg/ratelimit"
)

// Default values applied by ApplyDefaults.
const (
	DefaultName    = "drip"
	DefaultCallers = 1
	DefaultPer     = time.Second
)

// ApplyDefaults fills in unset fields. Call it after Validate.
func ApplyDefaults(p *Profile) {
	if p.Name == "" {
		p.Name = DefaultName
	}
	if p.Limiter.Strategy == "" {
		p.Limiter.Strategy = ratelimit.StrategyLeakyBucket
	}
	if p.Limiter.Per == 0 {
		p.Limiter.Per = Duration(DefaultPer)
	}
	if p.Limiter.Slack == nil {
		slack := ratelimit.DefaultSlack
		p.Limiter.Slack = &slack
	}
	if p.Load.Callers == 0 {
		p.Load.Callers = DefaultCallers
	}
}

// Options converts the limiter section into constructor options.
func (l LimiterConfig) Options() []ratelimit.Option {
	var opts []ratelimit.Option
	if l.Per != 0 {
		opts = append(opts, ratelimit.Per(l.Per.GetDuration(DefaultPer)))
	}
	if l.Slack != nil {
		opts = append(opts, ratelimit.WithSlack(*l.Slack))
	}
	return opts
}

// SlackValue returns the configured slack or the library default.
func (l LimiterConfig) SlackValue() int {
	if l.Slack == nil {
		return ratelimit.DefaultSlack
	}
	return *l.Slack
}
