// Command orchestrator is the composition root: it loads configuration,
// dials the bus, registers the mission trigger handler and the five demo
// step handlers, waits for the bus to become reachable, creates consumer
// groups, and starts the dispatcher, reclaimer and admin HTTP surface.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hyzhak/sagabus"
	"github.com/hyzhak/sagabus/internal/httpapi"
	"github.com/hyzhak/sagabus/internal/missiondemo"
)

func main() {
	env := sagabus.LoadEnvConfig()
	logger := sagabus.NewLogger("orchestrator", sagabus.LoggerConfig{Level: sagabus.ParseLevel(env.LogLevel)})

	shutdownTracing := sagabus.InitTracing("sagabus-orchestrator")
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(ctx)
	}()

	busCfg := env.BusConfig("sagabus")
	bus := sagabus.NewBusClient(busCfg)
	defer bus.Close()

	if err := sagabus.RegisterMetrics(prometheus.DefaultRegisterer); err != nil {
		logger.Warn("metrics registration failed", "error", err)
	}

	coordinator := sagabus.NewCoordinator(bus)
	executor := sagabus.NewSagaExecutor(coordinator)

	compensations := sagabus.MissionCompensations{
		ReleaseResources:    missiondemo.ReleaseResourcesCompensation(missiondemo.CompensationConfig{}),
		AbortExploration:    missiondemo.AbortExplorationCompensation(missiondemo.CompensationConfig{}),
		RollbackIntegration: missiondemo.RollbackIntegrationCompensation(missiondemo.CompensationConfig{}),
	}
	steps := sagabus.MissionSagaSteps(compensations)

	reg := sagabus.NewRegistry()
	demoCfg := missiondemo.StepConfig{WorkDuration: 200 * time.Millisecond}

	mustRegister(reg, sagabus.HandlerDescriptor{
		Name:      "mission_trigger",
		Stream:    env.MissionTopic,
		Group:     sagabus.MissionGroup,
		EventType: sagabus.MissionEventType,
		Fn:        sagabus.NewMissionTriggerHandler(executor, steps, 30*time.Second),
	}, logger)

	mustRegister(reg, sagabus.HandlerDescriptor{
		Name:      "allocate_resources",
		Stream:    sagabus.ResourcesStream,
		Group:     "resources_handler_group",
		EventType: "resources:allocate",
		Fn:        sagabus.MultiStageWrap(bus, missiondemo.AllocateResources(demoCfg)),
	}, logger)

	mustRegister(reg, sagabus.HandlerDescriptor{
		Name:      "plan_route",
		Stream:    sagabus.RoutingStream,
		Group:     "routing_handler_group",
		EventType: "routing:plan",
		Fn:        sagabus.MultiStageWrap(bus, missiondemo.PlanRoute(demoCfg)),
	}, logger)

	mustRegister(reg, sagabus.HandlerDescriptor{
		Name:      "perform_exploration",
		Stream:    sagabus.ExplorationStream,
		Group:     "exploration_handler_group",
		EventType: "exploration:perform",
		Fn:        sagabus.MultiStageWrap(bus, missiondemo.PerformExploration(demoCfg)),
	}, logger)

	mustRegister(reg, sagabus.HandlerDescriptor{
		Name:      "integrate_maps",
		Stream:    sagabus.MapStream,
		Group:     "map_handler_group",
		EventType: "map:integrate",
		Fn:        sagabus.MultiStageWrap(bus, missiondemo.IntegrateMaps(demoCfg)),
	}, logger)

	mustRegister(reg, sagabus.HandlerDescriptor{
		Name:      "release_resources",
		Stream:    sagabus.ResourcesStream,
		Group:     "resources_release_handler_group",
		EventType: "resources:release",
		Fn:        sagabus.MultiStageWrap(bus, missiondemo.ReleaseResources(demoCfg)),
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := sagabus.Startup(ctx, bus, reg, sagabus.DefaultStartupConfig()); err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}

	dispatcher := sagabus.NewDispatcher(bus, reg, sagabus.DefaultDispatcherConfig())
	go dispatcher.RunReclaimer(ctx)

	adminMux := http.NewServeMux()
	adminMux.Handle("/", httpapi.New(bus, env.MissionTopic).Router())
	adminMux.Handle("/metrics", promhttp.Handler())
	adminServer := &http.Server{Addr: ":8080", Handler: adminMux}

	go func() {
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("admin http server error", "error", err)
		}
	}()

	logger.Info("orchestrator started", "mission_topic", env.MissionTopic)

	if err := dispatcher.Run(ctx); err != nil {
		logger.Error("dispatcher exited with error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = adminServer.Shutdown(shutdownCtx)

	logger.Info("orchestrator stopped")
}

func mustRegister(reg *sagabus.Registry, d sagabus.HandlerDescriptor, logger *sagabus.Logger) {
	if err := reg.Register(d); err != nil {
		logger.Error("failed to register handler", "name", d.Name, "error", err)
		os.Exit(1)
	}
}
