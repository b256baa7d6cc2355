// Package metrics exposes Prometheus counters for the reward engines.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MiningCyclesCredited counts completed mining cycles that were
	// credited to a balance, including cycles credited on resume.
	MiningCyclesCredited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mining_cycles_credited_total",
		Help: "Number of mining cycles credited to user balances.",
	})

	// DailyBonusClaims counts successful daily bonus claims.
	DailyBonusClaims = promauto.NewCounter(prometheus.CounterOpts{
		Name: "daily_bonus_claims_total",
		Help: "Number of successful daily bonus claims.",
	})

	// ReferralRewards counts referral payouts by cascade level
	// ("direct" or "1".."5").
	ReferralRewards = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "referral_rewards_total",
		Help: "Number of referral rewards paid, by cascade level.",
	}, []string{"level"})

	// MilestoneClaims counts one-time milestone bonus claims.
	MilestoneClaims = promauto.NewCounter(prometheus.CounterOpts{
		Name: "milestone_claims_total",
		Help: "Number of referral milestone bonuses claimed.",
	})

	// TaskClaims counts one-off social task redemptions.
	TaskClaims = promauto.NewCounter(prometheus.CounterOpts{
		Name: "task_claims_total",
		Help: "Number of social task rewards claimed.",
	})
)
