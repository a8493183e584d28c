//go:build integration

package sagabus_test

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/hyzhak/sagabus"
)

// TestMissionSagaAgainstDisposableRedis boots a throwaway redis:7-alpine
// container and runs a one-step saga with a stand-in step handler through
// the real dispatcher, coordinator and executor against it, rather
// than against whatever Redis the rest of the package's tests happen to
// find on REDIS_HOST/REDIS_PORT. Run with -tags=integration; it pulls a
// Docker image and is excluded from the default test run.
func TestMissionSagaAgainstDisposableRedis(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("starting redis container: %v", err)
	}
	defer func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	}()

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("container port: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: host + ":" + port.Port()})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Fatalf("ping disposable redis: %v", err)
	}

	bus := sagabus.NewBusClientFromRedis(rdb)
	coordinator := sagabus.NewCoordinator(bus)
	executor := sagabus.NewSagaExecutor(coordinator)

	const (
		stepStream = "it:mission:step:commands"
		stepReply  = "it:mission:step:replies"
		stepEvent  = "it:step:run"
	)

	group := "it_step_handler_group"
	if _, err := bus.CreateGroup(ctx, stepStream, group, sagabus.GroupStartIDProduction); err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}

	reg := sagabus.NewRegistry()
	handler := sagabus.MultiStageWrap(bus, sagabus.ProgressHandler(
		func(ctx context.Context, fields sagabus.Fields, progress sagabus.ProgressFunc) (map[string]any, error) {
			return map[string]any{"ok": true}, nil
		},
	))
	if err := reg.Register(sagabus.HandlerDescriptor{
		Name: "it_step", Stream: stepStream, Group: group, EventType: stepEvent, Fn: handler,
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	dispatcher := sagabus.NewDispatcher(bus, reg, sagabus.DefaultDispatcherConfig())
	dispatchCtx, stopDispatch := context.WithCancel(ctx)
	defer stopDispatch()
	go dispatcher.Run(dispatchCtx)

	steps := []sagabus.Step{
		{
			Name:          "run_step",
			CommandStream: stepStream,
			ReplyPrefix:   stepReply,
			EventType:     stepEvent,
			Timeout:       10 * time.Second,
		},
	}

	sagaCtx, err := executor.Run(ctx, "it-correlation", steps, 10*time.Second, nil)
	if err != nil {
		t.Fatalf("saga run: %v", err)
	}
	if sagaCtx.Status != sagabus.SagaSucceeded {
		t.Errorf("status = %v, want succeeded", sagaCtx.Status)
	}
	if len(sagaCtx.Completed) != 1 || sagaCtx.Completed[0] != "run_step" {
		t.Errorf("completed = %v", sagaCtx.Completed)
	}
}
