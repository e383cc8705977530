package presets

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/friendsincode/verdandi/internal/events"
	"github.com/friendsincode/verdandi/internal/models"
)

func setupService(t *testing.T) (*Service, *events.Bus) {
	t.Helper()

	database, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.AutoMigrate(&models.Preset{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	bus := events.NewBus()
	return NewService(database, bus, nil, zerolog.Nop()), bus
}

func expectEvent(t *testing.T, sub events.Subscriber, eventType events.EventType) events.Event {
	t.Helper()
	select {
	case event := <-sub:
		if event.Type != eventType {
			t.Fatalf("event type = %q, want %q", event.Type, eventType)
		}
		return event
	default:
		t.Fatalf("no %q event published", eventType)
		return events.Event{}
	}
}

func TestCreateAppliesDefaultsAndNormalizes(t *testing.T) {
	svc, bus := setupService(t)
	sub := bus.Subscribe(events.EventPresetCreated)

	preset := &models.Preset{Name: "ops-weekly", Grouping: "week"}
	if err := svc.Create(context.Background(), preset); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if preset.ID == "" {
		t.Error("Create() did not assign an ID")
	}
	if preset.Grouping != "per_week" {
		t.Errorf("grouping = %q, want per_week", preset.Grouping)
	}
	if preset.Precision != "1ms" {
		t.Errorf("precision = %q, want 1ms", preset.Precision)
	}
	if preset.FeedLookbackDays != 7 || preset.FeedHorizonDays != 35 {
		t.Errorf("feed window = %d/%d, want 7/35", preset.FeedLookbackDays, preset.FeedHorizonDays)
	}

	event := expectEvent(t, sub, events.EventPresetCreated)
	if event.Payload["name"] != "ops-weekly" {
		t.Errorf("event name = %v, want ops-weekly", event.Payload["name"])
	}
}

func TestCreateRejectsInvalid(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		preset models.Preset
	}{
		{"empty name", models.Preset{Grouping: "per_day"}},
		{"unknown grouping", models.Preset{Name: "x", Grouping: "fortnightly"}},
		{"bad precision", models.Preset{Name: "x", Grouping: "per_day", Precision: "soon"}},
		{"negative precision", models.Preset{Name: "x", Grouping: "per_day", Precision: "-1s"}},
		{"negative horizon", models.Preset{Name: "x", Grouping: "per_day", FeedHorizonDays: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			preset := tt.preset
			err := svc.Create(ctx, &preset)
			if !errors.Is(err, ErrInvalidPreset) {
				t.Errorf("Create() error = %v, want ErrInvalidPreset", err)
			}
		})
	}
}

func TestCreateRejectsDuplicateName(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	if err := svc.Create(ctx, &models.Preset{Name: "dup"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := svc.Create(ctx, &models.Preset{Name: "dup"}); !errors.Is(err, ErrNameExists) {
		t.Errorf("Create() duplicate error = %v, want ErrNameExists", err)
	}
}

func TestGetAndGetByName(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	preset := &models.Preset{Name: "lookup"}
	if err := svc.Create(ctx, preset); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	byID, err := svc.Get(ctx, preset.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if byID.Name != "lookup" {
		t.Errorf("Get() name = %q, want lookup", byID.Name)
	}

	byName, err := svc.GetByName(ctx, "lookup")
	if err != nil {
		t.Fatalf("GetByName() error = %v", err)
	}
	if byName.ID != preset.ID {
		t.Errorf("GetByName() id = %q, want %q", byName.ID, preset.ID)
	}

	if _, err := svc.Get(ctx, "00000000-0000-0000-0000-000000000000"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() missing error = %v, want ErrNotFound", err)
	}
	if _, err := svc.GetByName(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByName() missing error = %v, want ErrNotFound", err)
	}
}

func TestListOrdersByName(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	for _, name := range []string{"zulu", "alpha", "mike"} {
		if err := svc.Create(ctx, &models.Preset{Name: name}); err != nil {
			t.Fatalf("Create(%s) error = %v", name, err)
		}
	}

	presets, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}

	want := []string{"alpha", "mike", "zulu"}
	if len(presets) != len(want) {
		t.Fatalf("List() returned %d presets, want %d", len(presets), len(want))
	}
	for i, name := range want {
		if presets[i].Name != name {
			t.Errorf("presets[%d].Name = %q, want %q", i, presets[i].Name, name)
		}
	}
}

func TestUpdateAppliesPatch(t *testing.T) {
	svc, bus := setupService(t)
	ctx := context.Background()
	sub := bus.Subscribe(events.EventPresetUpdated)

	preset := &models.Preset{Name: "patchable"}
	if err := svc.Create(ctx, preset); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	grouping := "per_month"
	precision := "1us"
	offset := 7 * 3600
	updated, err := svc.Update(ctx, preset.ID, Patch{
		Grouping:          &grouping,
		Precision:         &precision,
		OffsetWestSeconds: &offset,
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	if updated.Grouping != "per_month" || updated.Precision != "1us" || updated.OffsetWestSeconds != offset {
		t.Errorf("Update() result = %q/%q/%d", updated.Grouping, updated.Precision, updated.OffsetWestSeconds)
	}

	reloaded, err := svc.Get(ctx, preset.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if reloaded.Grouping != "per_month" {
		t.Errorf("persisted grouping = %q, want per_month", reloaded.Grouping)
	}

	expectEvent(t, sub, events.EventPresetUpdated)
}

func TestUpdateRejectsTakenName(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	if err := svc.Create(ctx, &models.Preset{Name: "first"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	second := &models.Preset{Name: "second"}
	if err := svc.Create(ctx, second); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	taken := "first"
	if _, err := svc.Update(ctx, second.ID, Patch{Name: &taken}); !errors.Is(err, ErrNameExists) {
		t.Errorf("Update() rename error = %v, want ErrNameExists", err)
	}
}

func TestUpdateRejectsInvalidPatch(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	preset := &models.Preset{Name: "strict"}
	if err := svc.Create(ctx, preset); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	bad := "hourly"
	if _, err := svc.Update(ctx, preset.ID, Patch{Grouping: &bad}); !errors.Is(err, ErrInvalidPreset) {
		t.Errorf("Update() error = %v, want ErrInvalidPreset", err)
	}
}

func TestDeletePublishesEvent(t *testing.T) {
	svc, bus := setupService(t)
	ctx := context.Background()
	sub := bus.Subscribe(events.EventPresetDeleted)

	preset := &models.Preset{Name: "doomed"}
	if err := svc.Create(ctx, preset); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := svc.Delete(ctx, preset.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	expectEvent(t, sub, events.EventPresetDeleted)

	if err := svc.Delete(ctx, preset.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete() repeat error = %v, want ErrNotFound", err)
	}
}

func TestGenerateForPreset(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	preset := &models.Preset{Name: "gen", Grouping: "per_day", ExtendBegin: true, ExtendEnd: true}
	if err := svc.Create(ctx, preset); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	from := time.Date(2022, time.June, 25, 12, 0, 0, 0, time.UTC)
	to := time.Date(2022, time.June, 27, 12, 0, 0, 0, time.UTC)

	intervals, err := svc.GenerateForPreset(ctx, preset, from, to)
	if err != nil {
		t.Fatalf("GenerateForPreset() error = %v", err)
	}
	if len(intervals) != 3 {
		t.Fatalf("GenerateForPreset() returned %d intervals, want 3", len(intervals))
	}

	wantFirst := time.Date(2022, time.June, 25, 0, 0, 0, 0, time.UTC)
	if !intervals[0].Begin.Equal(wantFirst) {
		t.Errorf("first begin = %v, want %v", intervals[0].Begin, wantFirst)
	}
}

func TestGenerateForPresetRejectsCorruptConfig(t *testing.T) {
	svc, _ := setupService(t)

	corrupt := &models.Preset{Name: "corrupt", Grouping: "every_other_tuesday", Precision: "1ms"}
	if _, err := svc.GenerateForPreset(context.Background(), corrupt, time.Now(), time.Now().Add(time.Hour)); !errors.Is(err, ErrInvalidPreset) {
		t.Errorf("GenerateForPreset() error = %v, want ErrInvalidPreset", err)
	}
}
