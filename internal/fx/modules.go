package fx

import (
	"miniquest-worker/internal/api"
	"miniquest-worker/internal/config"
	"miniquest-worker/internal/database"
	"miniquest-worker/internal/logger"
	"miniquest-worker/internal/repository"
	"miniquest-worker/internal/scheduler"
	"miniquest-worker/internal/server"
	"miniquest-worker/internal/service"

	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

func ProvideStreakService(profiles *repository.ProfileRepository, log zerolog.Logger) *service.StreakService {
	return service.NewStreakService(profiles, log)
}

func ProvidePushService(profiles *repository.ProfileRepository, gateway *api.PushClient, log zerolog.Logger) *service.PushService {
	return service.NewPushService(profiles, gateway, log)
}

func ProvideFanoutService(
	quests *repository.QuestRepository,
	notifications *repository.NotificationRepository,
	push *service.PushService,
	log zerolog.Logger,
) *service.FanoutService {
	return service.NewFanoutService(quests, notifications, push, log)
}

func ProvideBattleService(
	quests *repository.QuestRepository,
	posts *repository.PostRepository,
	push *service.PushService,
	log zerolog.Logger,
) *service.BattleService {
	return service.NewBattleService(quests, posts, push, log)
}

func ProvideEventServer(
	streak *service.StreakService,
	fanout *service.FanoutService,
	push *service.PushService,
	posts *repository.PostRepository,
	profiles *repository.ProfileRepository,
	quests *repository.QuestRepository,
	log zerolog.Logger,
) *server.EventServer {
	return server.NewEventServer(streak, fanout, push, posts, profiles, quests, log)
}

var Module = fx.Options(
	fx.Provide(logger.New),
	fx.Provide(config.Load),
	fx.Provide(database.New),
	// repos
	fx.Provide(repository.NewProfileRepository),
	fx.Provide(repository.NewPostRepository),
	fx.Provide(repository.NewQuestRepository),
	fx.Provide(repository.NewNotificationRepository),
	// push gateway client
	fx.Provide(api.NewPushClient),
	// svc
	fx.Provide(ProvideStreakService),
	fx.Provide(ProvidePushService),
	fx.Provide(ProvideFanoutService),
	fx.Provide(ProvideBattleService),
	// adapters
	fx.Provide(ProvideEventServer),
	fx.Provide(scheduler.NewDaily),
)
