package service

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	streakUpdateCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "miniquest",
		Subsystem: "worker",
		Name:      "streak_updates_total",
		Help:      "Streak transitions grouped by outcome.",
	}, []string{"result"})

	fanoutCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "miniquest",
		Subsystem: "worker",
		Name:      "fanout_notifications_total",
		Help:      "Notifications created by post fan-out.",
	})

	pushCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "miniquest",
		Subsystem: "worker",
		Name:      "push_dispatches_total",
		Help:      "Push gateway dispatches grouped by outcome.",
	}, []string{"result"})

	battleCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "miniquest",
		Subsystem: "worker",
		Name:      "battles_aggregated_total",
		Help:      "Battle aggregations grouped by outcome.",
	}, []string{"result"})
)

func init() {
	prometheus.MustRegister(streakUpdateCounter, fanoutCounter, pushCounter, battleCounter)
}

func recordStreakUpdate(result string) {
	streakUpdateCounter.WithLabelValues(result).Inc()
}

func recordFanout(count int) {
	fanoutCounter.Add(float64(count))
}

func recordPush(result string) {
	pushCounter.WithLabelValues(result).Inc()
}

func recordBattle(result string) {
	battleCounter.WithLabelValues(result).Inc()
}
