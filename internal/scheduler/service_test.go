package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/friendsincode/verdandi/internal/events"
	"github.com/friendsincode/verdandi/internal/leadership"
	"github.com/friendsincode/verdandi/internal/models"
	"github.com/friendsincode/verdandi/internal/presets"
	"github.com/friendsincode/verdandi/internal/snapshot"
	"github.com/friendsincode/verdandi/internal/storage"
)

type fixture struct {
	sched   *Service
	exports *snapshot.Service
	presets *presets.Service
	bus     *events.Bus
	db      *gorm.DB
}

func setup(t *testing.T) *fixture {
	t.Helper()

	database, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// Cron fires on its own goroutines; a single connection keeps them on
	// the same in-memory database.
	sqlDB, err := database.DB()
	if err != nil {
		t.Fatalf("unwrap sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := database.AutoMigrate(&models.Preset{}, &models.ExportJob{}, &models.Snapshot{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	bus := events.NewBus()
	presetSvc := presets.NewService(database, bus, nil, zerolog.Nop())

	store, err := storage.NewFSStore(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("fs store: %v", err)
	}
	exportSvc := snapshot.NewService(database, presetSvc, store, bus, zerolog.Nop())

	return &fixture{
		sched:   New(exportSvc, bus, zerolog.Nop()),
		exports: exportSvc,
		presets: presetSvc,
		bus:     bus,
		db:      database,
	}
}

func createPreset(t *testing.T, f *fixture, name string) *models.Preset {
	t.Helper()
	preset := &models.Preset{
		Name:        name,
		Grouping:    "per_day",
		ExtendBegin: true,
		ExtendEnd:   true,
	}
	if err := f.presets.Create(context.Background(), preset); err != nil {
		t.Fatalf("create preset: %v", err)
	}
	return preset
}

func createJob(t *testing.T, f *fixture, name, presetID, schedule string, enabled bool) *models.ExportJob {
	t.Helper()
	job := &models.ExportJob{
		Name:     name,
		PresetID: presetID,
		Schedule: schedule,
		Format:   models.FormatCSV,
		Enabled:  enabled,
	}
	if err := f.exports.CreateJob(context.Background(), job); err != nil {
		t.Fatalf("create job: %v", err)
	}
	return job
}

func TestReloadRegistersEnabledJobs(t *testing.T) {
	f := setup(t)
	preset := createPreset(t, f, "ops-rota")

	enabled := createJob(t, f, "nightly", preset.ID, "0 3 * * *", true)
	createJob(t, f, "paused", preset.ID, "0 4 * * *", false)

	if err := f.sched.Reload(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}

	ids := f.sched.Registered()
	if len(ids) != 1 || ids[0] != enabled.ID {
		t.Fatalf("registered = %v, want [%s]", ids, enabled.ID)
	}
}

func TestReloadSkipsMalformedSchedule(t *testing.T) {
	f := setup(t)
	preset := createPreset(t, f, "ops-rota")
	good := createJob(t, f, "nightly", preset.ID, "0 3 * * *", true)

	// Bypass job validation to simulate a row written by another tool.
	broken := &models.ExportJob{
		ID:       uuid.NewString(),
		PresetID: preset.ID,
		Name:     "broken",
		Schedule: "whenever",
		Format:   models.FormatICS,
		Enabled:  true,
	}
	if err := f.db.Omit("Preset").Create(broken).Error; err != nil {
		t.Fatalf("insert broken job: %v", err)
	}

	if err := f.sched.Reload(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}

	ids := f.sched.Registered()
	if len(ids) != 1 || ids[0] != good.ID {
		t.Fatalf("registered = %v, want only %s", ids, good.ID)
	}
}

func TestReloadReconcilesChanges(t *testing.T) {
	f := setup(t)
	preset := createPreset(t, f, "ops-rota")
	job := createJob(t, f, "nightly", preset.ID, "0 3 * * *", true)

	ctx := context.Background()
	if err := f.sched.Reload(ctx); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if err := f.sched.Reload(ctx); err != nil {
		t.Fatalf("second reload: %v", err)
	}
	if ids := f.sched.Registered(); len(ids) != 1 {
		t.Fatalf("registered = %v, want one job", ids)
	}

	off := false
	if _, err := f.exports.UpdateJob(ctx, job.ID, snapshot.JobPatch{Enabled: &off}); err != nil {
		t.Fatalf("disable job: %v", err)
	}
	if err := f.sched.Reload(ctx); err != nil {
		t.Fatalf("reload after disable: %v", err)
	}
	if ids := f.sched.Registered(); len(ids) != 0 {
		t.Fatalf("registered = %v, want none after disable", ids)
	}
}

func TestRunReloadsOnPresetEvents(t *testing.T) {
	f := setup(t)
	preset := createPreset(t, f, "ops-rota")
	createJob(t, f, "nightly", preset.ID, "0 3 * * *", true)

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- f.sched.Run(ctx) }()

	waitFor(t, 2*time.Second, func() bool { return len(f.sched.Registered()) == 1 })

	// Job CRUD has no bus event of its own; a preset mutation forces the
	// reload that picks up the new job.
	createJob(t, f, "weekly", preset.ID, "0 5 * * 1", true)
	f.bus.Publish(events.EventPresetUpdated, events.Payload{"id": preset.ID})

	waitFor(t, 2*time.Second, func() bool { return len(f.sched.Registered()) == 2 })

	cancel()
	select {
	case err := <-runErr:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
}

func TestScheduledRunProducesSnapshot(t *testing.T) {
	f := setup(t)
	preset := createPreset(t, f, "ops-rota")
	createJob(t, f, "fast", preset.ID, "@every 1s", true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- f.sched.Run(ctx) }()

	waitFor(t, 5*time.Second, func() bool {
		var count int64
		f.db.Model(&models.Snapshot{}).Count(&count)
		return count > 0
	})

	cancel()
	select {
	case <-runErr:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}

	var snap models.Snapshot
	if err := f.db.First(&snap).Error; err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	if snap.Format != models.FormatCSV {
		t.Fatalf("snapshot format = %q, want csv", snap.Format)
	}
	if snap.IntervalCount == 0 {
		t.Fatal("expected intervals in scheduled snapshot")
	}
}

func TestLeaderAwareRunsWhenStandalone(t *testing.T) {
	f := setup(t)
	preset := createPreset(t, f, "ops-rota")
	createJob(t, f, "nightly", preset.ID, "0 3 * * *", true)

	election := leadership.NewStandalone("test-instance", zerolog.Nop())
	wrapper := NewLeaderAware(f.sched, election, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := wrapper.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	if !wrapper.IsLeader() {
		t.Fatal("standalone wrapper should be leader")
	}

	waitFor(t, 2*time.Second, func() bool { return len(f.sched.Registered()) == 1 })

	if err := wrapper.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
