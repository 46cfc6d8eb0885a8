package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hairbuy/intake/internal/db"
	"github.com/hairbuy/intake/internal/migrations"
	"github.com/hairbuy/intake/internal/pricing"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestStore(t *testing.T) (*Store, *clock) {
	t.Helper()
	ctx := context.Background()
	database, err := db.Open(ctx, filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	_, err = migrations.Up(ctx, database)
	require.NoError(t, err)

	c := &clock{t: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	return New(database).WithClock(c.now), c
}

func newApp(name string, cm int, color pricing.Color, price int64) NewApplication {
	return NewApplication{
		Length:         pricing.LengthCM(cm),
		Color:          color,
		Structure:      pricing.StructureSlavic,
		Condition:      pricing.ConditionNatural,
		Age:            pricing.AgeAdult,
		Photos:         []string{"a.jpg", "b.png"},
		Name:           name,
		Phone:          "+7 (912) 345-67-89",
		Email:          "anna@example.com",
		City:           "Казань",
		Comment:        "Срезаны в прошлом месяце",
		EstimatedPrice: price,
	}
}

func TestCreateAndGet(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	a, err := s.Create(ctx, newApp("Анна", 65, pricing.ColorBlonde, 45000))
	require.NoError(t, err)

	assert.NotZero(t, a.ID)
	assert.Equal(t, StatusNew, a.Status)
	assert.Equal(t, pricing.Band60to80, a.LengthBand)
	require.NotNil(t, a.LengthCM)
	assert.Equal(t, 65, *a.LengthCM)
	assert.Equal(t, []string{"a.jpg", "b.png"}, a.Photos)
	assert.Nil(t, a.FinalPrice)
	assert.Equal(t, int64(45000), a.Revenue())
	assert.Equal(t, time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC), a.CreatedAt)

	_, err = s.Get(ctx, 999)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestCreate_BandOnlyLength(t *testing.T) {
	s, _ := newTestStore(t)
	in := newApp("Мария", 0, pricing.ColorBlack, 52000)
	in.Length, _ = pricing.LengthBand("100+")

	a, err := s.Create(context.Background(), in)
	require.NoError(t, err)
	assert.Nil(t, a.LengthCM)
	assert.Equal(t, "Более 100 см", a.LengthLabel())
}

func TestStatusLifecycle(t *testing.T) {
	s, c := newTestStore(t)
	ctx := context.Background()
	a, err := s.Create(ctx, newApp("Анна", 65, pricing.ColorBlonde, 45000))
	require.NoError(t, err)

	c.t = c.t.Add(time.Hour)
	a, err = s.MarkViewed(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusViewed, a.Status)
	assert.True(t, a.UpdatedAt.After(a.CreatedAt))

	a, err = s.SetStatus(ctx, a.ID, StatusViewed)
	require.NoError(t, err, "re-setting the same status is a no-op")

	_, err = s.SetStatus(ctx, a.ID, StatusCompleted)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	var te *TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, StatusViewed, te.From)

	a, err = s.SetStatus(ctx, a.ID, StatusInProgress)
	require.NoError(t, err)
	a, err = s.SetStatus(ctx, a.ID, StatusCompleted)
	require.NoError(t, err)
	assert.True(t, a.Status.Terminal())

	_, err = s.SetStatus(ctx, a.ID, StatusRejected)
	assert.True(t, errors.Is(err, ErrInvalidTransition))

	a, err = s.MarkViewed(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, a.Status, "MarkViewed only touches new applications")

	_, err = s.SetStatus(ctx, a.ID, Status("archived"))
	assert.True(t, errors.Is(err, ErrInvalidStatus))
}

func TestCanTransitionTable(t *testing.T) {
	allowed := map[Status][]Status{
		StatusNew:        {StatusNew, StatusViewed, StatusInProgress, StatusRejected},
		StatusViewed:     {StatusViewed, StatusInProgress, StatusRejected},
		StatusInProgress: {StatusInProgress, StatusCompleted, StatusRejected},
		StatusCompleted:  {StatusCompleted},
		StatusRejected:   {StatusRejected},
	}
	for from, tos := range allowed {
		for _, to := range Statuses() {
			want := false
			for _, ok := range tos {
				if ok == to {
					want = true
				}
			}
			assert.Equal(t, want, from.CanTransition(to), "%s -> %s", from, to)
		}
	}
}

func TestUpdateAdmin(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	a, err := s.Create(ctx, newApp("Анна", 65, pricing.ColorBlonde, 45000))
	require.NoError(t, err)

	price := int64(47000)
	notes := "  Договорились по телефону  "
	status := StatusInProgress
	a, err = s.UpdateAdmin(ctx, a.ID, AdminUpdate{Status: &status, FinalPrice: &price, AdminNotes: &notes})
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, a.Status)
	require.NotNil(t, a.FinalPrice)
	assert.Equal(t, int64(47000), *a.FinalPrice)
	assert.Equal(t, "Договорились по телефону", a.AdminNotes)
	assert.Equal(t, int64(47000), a.Revenue())

	a, err = s.UpdateAdmin(ctx, a.ID, AdminUpdate{ClearFinalPrice: true})
	require.NoError(t, err)
	assert.Nil(t, a.FinalPrice)

	negative := int64(-1)
	_, err = s.UpdateAdmin(ctx, a.ID, AdminUpdate{FinalPrice: &negative})
	assert.Error(t, err)

	_, err = s.UpdateAdmin(ctx, 12345, AdminUpdate{AdminNotes: &notes})
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestList_FilterAndPaging(t *testing.T) {
	s, c := newTestStore(t)
	ctx := context.Background()

	names := []string{"Анна", "Борис", "Вера", "Галина", "Дарья"}
	var ids []int64
	for _, n := range names {
		a, err := s.Create(ctx, newApp(n, 70, pricing.ColorBlonde, 45000))
		require.NoError(t, err)
		ids = append(ids, a.ID)
		c.t = c.t.Add(24 * time.Hour)
	}
	_, err := s.SetStatus(ctx, ids[1], StatusRejected)
	require.NoError(t, err)

	apps, total, err := s.List(ctx, Filter{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, apps, 2)
	assert.Equal(t, "Дарья", apps[0].Name, "newest first")

	apps, total, err = s.List(ctx, Filter{Status: StatusRejected})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "Борис", apps[0].Name)

	apps, _, err = s.List(ctx, Filter{Query: "ГАЛ"})
	require.NoError(t, err)
	require.Len(t, apps, 1)
	assert.Equal(t, "Галина", apps[0].Name)

	_, total, err = s.List(ctx, Filter{Query: "9123456"})
	require.NoError(t, err)
	assert.Equal(t, 5, total, "digits-only phone search")

	_, total, err = s.List(ctx, Filter{Query: "100%"})
	require.NoError(t, err)
	assert.Equal(t, 0, total)

	from := time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 13, 0, 0, 0, 0, time.UTC)
	apps, total, err = s.List(ctx, Filter{From: from, To: to})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, "Вера", apps[0].Name)

	_, _, err = s.List(ctx, Filter{Status: "bogus"})
	assert.True(t, errors.Is(err, ErrInvalidStatus))

	all, err := s.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestStatsTrendAndTop(t *testing.T) {
	s, c := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC)

	c.t = now.AddDate(0, 0, -40)
	_, err := s.Create(ctx, newApp("Старая", 45, pricing.ColorBlack, 20000))
	require.NoError(t, err)

	c.t = now.AddDate(0, 0, -3)
	b, err := s.Create(ctx, newApp("Неделя", 90, pricing.ColorChestnut, 46750))
	require.NoError(t, err)

	c.t = now.Add(-2 * time.Hour)
	d, err := s.Create(ctx, newApp("Сегодня", 65, pricing.ColorBlonde, 45000))
	require.NoError(t, err)
	_, err = s.Create(ctx, newApp("Сегодня 2", 65, pricing.ColorBlonde, 40000))
	require.NoError(t, err)

	price := int64(50000)
	_, err = s.UpdateAdmin(ctx, d.ID, AdminUpdate{FinalPrice: &price})
	require.NoError(t, err)
	_, err = s.SetStatus(ctx, b.ID, StatusRejected)
	require.NoError(t, err)

	stats, err := s.Stats(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, PeriodStats{Count: 2, Revenue: 90000}, stats.Today)
	assert.Equal(t, PeriodStats{Count: 3, Revenue: 90000}, stats.Week)
	assert.Equal(t, PeriodStats{Count: 3, Revenue: 90000}, stats.Month)
	assert.Equal(t, PeriodStats{Count: 4, Revenue: 110000}, stats.AllTime)
	assert.Equal(t, 3, stats.ByStatus[StatusNew])
	assert.Equal(t, 1, stats.ByStatus[StatusRejected])
	assert.Equal(t, 0, stats.ByStatus[StatusCompleted])

	trend, err := s.Trend(ctx, now, 0)
	require.NoError(t, err)
	require.Len(t, trend, DefaultTrendDays)
	assert.Equal(t, "2026-03-04", trend[0].Day)
	assert.Equal(t, DayPoint{Day: "2026-03-07", Count: 1, Revenue: 0}, trend[3])
	assert.Equal(t, DayPoint{Day: "2026-03-10", Count: 2, Revenue: 90000}, trend[6])

	long, err := s.Trend(ctx, now, 1000)
	require.NoError(t, err)
	assert.Len(t, long, MaxTrendDays)

	top, err := s.TopCharacteristics(ctx, 2)
	require.NoError(t, err)
	require.Len(t, top.Colors, 2)
	assert.Equal(t, Bucket{Value: "blonde", Count: 2}, top.Colors[0])
	assert.Equal(t, Bucket{Value: "60-80", Count: 2}, top.Lengths[0])
	assert.Equal(t, []Bucket{{Value: "slavic", Count: 4}}, top.Structures)
}

func TestOverrides(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertOverride(ctx, pricing.Override{Band: pricing.Band60to80, Color: pricing.ColorBlonde, Amount: 46000}))
	require.NoError(t, s.UpsertOverride(ctx, pricing.Override{Band: pricing.Band60to80, Color: pricing.ColorBlonde, Amount: 47000}))
	require.NoError(t, s.UpsertOverride(ctx, pricing.Override{Band: pricing.Band40to50, Color: pricing.ColorBlack, Amount: 21000}))

	list, err := s.ListOverrides(ctx)
	require.NoError(t, err)
	assert.Equal(t, []pricing.Override{
		{Band: pricing.Band40to50, Color: pricing.ColorBlack, Amount: 21000},
		{Band: pricing.Band60to80, Color: pricing.ColorBlonde, Amount: 47000},
	}, list)

	table, err := pricing.DefaultTable().WithOverrides(list)
	require.NoError(t, err)
	v, _ := table.Base(pricing.Band60to80, pricing.ColorBlonde)
	assert.Equal(t, int64(47000), v)

	require.NoError(t, s.DeleteOverride(ctx, pricing.Band40to50, pricing.ColorBlack))
	err = s.DeleteOverride(ctx, pricing.Band40to50, pricing.ColorBlack)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestEditOverrides(t *testing.T) {
	s, c := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertOverride(ctx, pricing.Override{Band: pricing.Band40to50, Color: pricing.ColorBlack, Amount: 21000}))
	require.NoError(t, s.UpsertOverride(ctx, pricing.Override{Band: pricing.Band60to80, Color: pricing.ColorBlonde, Amount: 46000}))

	c.t = c.t.Add(time.Hour)
	err := s.EditOverrides(ctx, func(current []pricing.Override) ([]pricing.Override, error) {
		require.Len(t, current, 2)
		return []pricing.Override{
			{Band: pricing.Band60to80, Color: pricing.ColorBlonde, Amount: 46000},
			{Band: pricing.Band80to100, Color: pricing.ColorBlack, Amount: 45000},
		}, nil
	})
	require.NoError(t, err)

	list, err := s.ListOverrides(ctx)
	require.NoError(t, err)
	assert.Equal(t, []pricing.Override{
		{Band: pricing.Band60to80, Color: pricing.ColorBlonde, Amount: 46000},
		{Band: pricing.Band80to100, Color: pricing.ColorBlack, Amount: 45000},
	}, list)

	var unchanged string
	require.NoError(t, s.DB().QueryRowContext(ctx,
		`SELECT updated_at FROM price_overrides WHERE length_band = '60-80' AND color = 'blonde'`).Scan(&unchanged))
	assert.Equal(t, "2026-03-10 12:00:00", unchanged)

	rejected := errors.New("rejected")
	err = s.EditOverrides(ctx, func(current []pricing.Override) ([]pricing.Override, error) {
		return nil, rejected
	})
	assert.ErrorIs(t, err, rejected)

	after, err := s.ListOverrides(ctx)
	require.NoError(t, err)
	assert.Equal(t, list, after)
}

func TestTelegramAdmins(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	inserted, err := s.EnsureTelegramAdmin(ctx, TelegramAdmin{ChatID: 111, Username: "anna", Active: true, CanManageApplications: true})
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = s.EnsureTelegramAdmin(ctx, TelegramAdmin{ChatID: 111, Username: "other", Active: true})
	require.NoError(t, err)
	assert.False(t, inserted)

	_, err = s.EnsureTelegramAdmin(ctx, TelegramAdmin{ChatID: 222, Active: false})
	require.NoError(t, err)
	_, err = s.EnsureTelegramAdmin(ctx, TelegramAdmin{ChatID: 333, Active: true, CanManageApplications: false})
	require.NoError(t, err)

	anna, err := s.TelegramAdminByChat(ctx, 111)
	require.NoError(t, err)
	assert.True(t, anna.Active)
	assert.True(t, anna.CanManageApplications)
	inactive, err := s.TelegramAdminByChat(ctx, 222)
	require.NoError(t, err)
	assert.False(t, inactive.Active)
	readOnly, err := s.TelegramAdminByChat(ctx, 333)
	require.NoError(t, err)
	assert.True(t, readOnly.Active)
	assert.False(t, readOnly.CanManageApplications)
	_, err = s.TelegramAdminByChat(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)

	admins, err := s.ActiveTelegramAdmins(ctx)
	require.NoError(t, err)
	require.Len(t, admins, 2)
	assert.Equal(t, "anna", admins[0].Username)
	assert.True(t, admins[0].CanManageApplications)
	assert.Equal(t, int64(333), admins[1].ChatID)
}
