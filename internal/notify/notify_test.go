package notify

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hairbuy/intake/internal/pricing"
	"github.com/hairbuy/intake/internal/store"
)

type fakeNotifier struct {
	name      string
	failFirst int32
	err       error

	calls atomic.Int32
	mu    sync.Mutex
	got   []int64
}

func (f *fakeNotifier) Name() string { return f.name }

func (f *fakeNotifier) Notify(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n := f.calls.Add(1)
	if f.err != nil {
		return f.err
	}
	if n <= f.failFirst {
		return errors.New("temporary")
	}
	f.mu.Lock()
	f.got = append(f.got, ev.Application.ID)
	f.mu.Unlock()
	return nil
}

func event(id int64) Event {
	return Event{Kind: KindApplicationCreated, Application: store.Application{ID: id}}
}

func TestDispatcher_RetriesThenDelivers(t *testing.T) {
	flaky := &fakeNotifier{name: "flaky", failFirst: 2}
	d := NewDispatcher(zap.NewNop(), Options{Workers: 1, MaxRetries: 3, Backoff: time.Millisecond}, flaky)
	d.Start(context.Background())

	require.True(t, d.Enqueue(event(7)))
	d.Close()

	assert.Equal(t, int32(3), flaky.calls.Load())
	assert.Equal(t, []int64{7}, flaky.got)
}

func TestDispatcher_OneChannelFailingDoesNotBlockOthers(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	broken := &fakeNotifier{name: "broken", err: errors.New("smtp down")}
	permanent := &fakeNotifier{name: "misconfigured", err: ErrPermanent}
	ok := &fakeNotifier{name: "ok"}

	d := NewDispatcher(zap.New(core), Options{Workers: 2, MaxRetries: 2, Backoff: time.Millisecond}, broken, permanent, ok)
	d.Start(context.Background())
	for i := int64(1); i <= 3; i++ {
		require.True(t, d.Enqueue(event(i)))
	}
	d.Close()

	assert.Equal(t, int32(9), broken.calls.Load(), "1 attempt + 2 retries per event")
	assert.Equal(t, int32(3), permanent.calls.Load(), "permanent errors are not retried")
	assert.ElementsMatch(t, []int64{1, 2, 3}, ok.got)
	assert.Equal(t, 6, logs.FilterMessage("notification failed").Len())
	assert.Equal(t, 3, logs.FilterMessage("notification delivered").Len())
}

func TestDispatcher_EnqueueNeverBlocks(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	d := NewDispatcher(zap.New(core), Options{QueueSize: 1}, &fakeNotifier{name: "ok"})

	assert.True(t, d.Enqueue(event(1)))
	assert.False(t, d.Enqueue(event(2)), "queue is full and no worker is running")
	assert.Equal(t, 1, logs.FilterMessage("notification dropped").Len())

	d.Close()
	assert.False(t, d.Enqueue(event(3)))
	d.Close()
}

func TestDispatcher_DeliversEventsQueuedBeforeSignal(t *testing.T) {
	flaky := &fakeNotifier{name: "flaky", failFirst: 1}
	d := NewDispatcher(zap.NewNop(), Options{Workers: 1, MaxRetries: 3, Backoff: 20 * time.Millisecond}, flaky)

	signal, stop := context.WithCancel(context.Background())
	d.Start(signal)
	require.True(t, d.Enqueue(event(7)))
	require.True(t, d.Enqueue(event(8)))
	stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Shutdown(ctx))
	assert.Equal(t, []int64{7, 8}, flaky.got)
}

func TestDispatcher_ShutdownDeadlineStopsRetrying(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	broken := &fakeNotifier{name: "broken", err: errors.New("down")}
	d := NewDispatcher(zap.New(core), Options{Workers: 1, MaxRetries: 100, Backoff: time.Hour}, broken)

	d.Start(context.Background())
	require.True(t, d.Enqueue(event(1)))
	require.True(t, d.Enqueue(event(2)))
	require.Eventually(t, func() bool { return broken.calls.Load() >= 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := d.Shutdown(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(1), broken.calls.Load())
	assert.Equal(t, 1, logs.FilterMessage("notification dropped").Len(), "event 2 never started")
}

func TestEmailNotifier_Message(t *testing.T) {
	var (
		gotAddr string
		gotTo   []string
		gotMsg  string
	)
	n := NewEmailNotifier(SMTPConfig{Host: "smtp.example.com", Port: 2525, From: "shop@example.com", To: []string{"a@example.com", "b@example.com"}})
	n.send = func(addr string, _ smtp.Auth, _ string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		return nil
	}
	n.now = func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) }

	a := store.Application{
		ID: 42, Name: "Анна", Phone: "+7 (912) 345-67-89",
		LengthBand: pricing.Band60to80, Color: pricing.ColorBlonde, Structure: pricing.StructureSlavic,
		Condition: pricing.ConditionNatural, Age: pricing.AgeAdult, EstimatedPrice: 45000,
		Photos: []string{"a.jpg"}, CreatedAt: time.Date(2026, 3, 10, 11, 0, 0, 0, time.UTC),
	}
	require.NoError(t, n.Notify(context.Background(), Event{Kind: KindApplicationCreated, Application: a}))

	assert.Equal(t, "smtp.example.com:2525", gotAddr)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, gotTo)
	assert.Contains(t, gotMsg, "Subject: =?utf-8?q?")
	assert.Contains(t, gotMsg, "Оценка: 45 000 ₽")
	assert.Contains(t, gotMsg, "Длина: 60-80 см\r\n")
	assert.True(t, strings.HasSuffix(gotMsg, "\r\n"))
}

func TestEmailNotifier_NoRecipientsIsPermanent(t *testing.T) {
	n := NewEmailNotifier(SMTPConfig{Host: "smtp.example.com"})
	err := n.Notify(context.Background(), event(1))
	assert.True(t, errors.Is(err, ErrPermanent))
}

func TestFormatAmount(t *testing.T) {
	cases := map[int64]string{0: "0", 999: "999", 1000: "1 000", 45000: "45 000", 1234567: "1 234 567", -2500: "-2 500"}
	for v, want := range cases {
		assert.Equal(t, want, FormatAmount(v))
	}
}
