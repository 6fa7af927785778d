package worker

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"rexbot/internal/alerting"
	"rexbot/internal/configcache"
	"rexbot/internal/messaging"
	"rexbot/internal/models"
	"rexbot/internal/queue"
	"rexbot/internal/store"
)

const adminID = int64(900)

type fakeGenerator struct {
	text       string
	err        error
	lastSystem string
	lastUser   string
	calls      int
}

func (g *fakeGenerator) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	g.calls++
	g.lastSystem = systemPrompt
	g.lastUser = userPrompt
	return g.text, g.err
}

// recordedDelivery wraps a task body with observable ack and nack hooks.
type recordedDelivery struct {
	delivery queue.Delivery
	acked    bool
	nacks    []time.Duration
}

func makeDelivery(t *testing.T, payload any) *recordedDelivery {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	r := &recordedDelivery{}
	r.delivery = queue.Delivery{
		Body: body,
		Ack:  func() error { r.acked = true; return nil },
		NackWithDelay: func(d time.Duration) error {
			r.nacks = append(r.nacks, d)
			return nil
		},
	}
	return r
}

func rawDelivery(body []byte) *recordedDelivery {
	r := &recordedDelivery{}
	r.delivery = queue.Delivery{
		Body: body,
		Ack:  func() error { r.acked = true; return nil },
		NackWithDelay: func(d time.Duration) error {
			r.nacks = append(r.nacks, d)
			return nil
		},
	}
	return r
}

type generationFixture struct {
	worker *GenerationWorker
	store  *store.InMemoryStore
	cache  *configcache.MemoryCache
	queue  *queue.MemoryQueue
	gen    *fakeGenerator
	alerts *messaging.Recorder
}

func newGenerationFixture(t *testing.T) *generationFixture {
	t.Helper()
	f := &generationFixture{
		store:  store.NewInMemoryStore(),
		cache:  configcache.NewMemoryCache(),
		queue:  queue.NewMemoryQueue(),
		gen:    &fakeGenerator{},
		alerts: messaging.NewRecorder(),
	}
	f.worker = NewGenerationWorker(f.queue, f.cache, f.store, f.gen, alerting.New(f.alerts, []int64{adminID}))
	return f
}

func dietTask() models.GenerationTask {
	return models.GenerationTask{
		TaskID:       "t-1",
		UserID:       42,
		Mode:         models.ModeDiet,
		Answers:      map[string]string{"goal": "похудеть"},
		SubmissionID: "sub-1",
	}
}

func (f *generationFixture) drainDelivery(t *testing.T) []models.DeliveryTask {
	t.Helper()
	var tasks []models.DeliveryTask
	for _, body := range f.queue.Drain(models.ChannelDelivery) {
		var task models.DeliveryTask
		if err := json.Unmarshal(body, &task); err != nil {
			t.Fatalf("unmarshal delivery task: %v", err)
		}
		tasks = append(tasks, task)
	}
	return tasks
}

func TestGenerationMalformedTaskDropped(t *testing.T) {
	f := newGenerationFixture(t)
	d := rawDelivery([]byte("not json"))

	f.worker.Handle(context.Background(), d.delivery)

	if !d.acked {
		t.Fatal("malformed task not acked")
	}
	if f.gen.calls != 0 {
		t.Fatal("generator called for malformed task")
	}
}

func TestGenerationMissingTemplateDropsAndAlerts(t *testing.T) {
	f := newGenerationFixture(t)
	d := makeDelivery(t, dietTask())

	f.worker.Handle(context.Background(), d.delivery)

	if !d.acked || len(d.nacks) != 0 {
		t.Fatalf("acked = %v nacks = %v, want ack without requeue", d.acked, d.nacks)
	}
	if f.gen.calls != 0 {
		t.Fatal("generator called without a template")
	}
	if last := f.alerts.Last(); last == nil || last.UserID != adminID {
		t.Fatalf("admin alert = %+v, want one to admin", last)
	}
	if tasks := f.drainDelivery(t); len(tasks) != 0 {
		t.Fatalf("delivery tasks = %d, want 0", len(tasks))
	}
}

func TestGenerationProviderFailureNotRetried(t *testing.T) {
	ctx := context.Background()
	f := newGenerationFixture(t)
	if err := f.cache.SetPromptTemplate(ctx, models.ModeDiet, "План для {goal}"); err != nil {
		t.Fatalf("SetPromptTemplate: %v", err)
	}
	f.gen.err = errors.New("provider down")
	d := makeDelivery(t, dietTask())

	f.worker.Handle(ctx, d.delivery)

	if !d.acked || len(d.nacks) != 0 {
		t.Fatalf("acked = %v nacks = %v, want single attempt", d.acked, d.nacks)
	}
	if f.gen.calls != 1 {
		t.Fatalf("generator calls = %d, want 1", f.gen.calls)
	}
	if f.alerts.Last() == nil {
		t.Fatal("no admin alert on provider failure")
	}
}

func TestGenerationSuccess(t *testing.T) {
	ctx := context.Background()
	f := newGenerationFixture(t)
	if err := f.cache.SetPromptTemplate(ctx, models.ModeDiet, "План для {goal}"); err != nil {
		t.Fatalf("SetPromptTemplate: %v", err)
	}
	task := dietTask()
	if err := f.store.CreateSubmission(ctx, &models.Submission{
		ID: task.SubmissionID, UserID: task.UserID, Mode: task.Mode, Answers: task.Answers,
	}); err != nil {
		t.Fatalf("CreateSubmission: %v", err)
	}
	f.gen.text = "```html\n<h1>План</h1><ul><li>Завтрак</li></ul>\n```"
	d := makeDelivery(t, task)

	f.worker.Handle(ctx, d.delivery)

	if !d.acked {
		t.Fatal("successful task not acked")
	}
	if f.gen.lastSystem != "План для похудеть" {
		t.Fatalf("system prompt = %q", f.gen.lastSystem)
	}

	sub, err := f.store.GetSubmission(ctx, task.SubmissionID)
	if err != nil {
		t.Fatalf("GetSubmission: %v", err)
	}
	if !strings.Contains(sub.GeneratedResult, "<b>План</b>") || strings.Contains(sub.GeneratedResult, "```") {
		t.Fatalf("stored result = %q, want cleaned HTML", sub.GeneratedResult)
	}

	tasks := f.drainDelivery(t)
	if len(tasks) != 2 {
		t.Fatalf("delivery tasks = %d, want result and tracking offer", len(tasks))
	}
	result, offer := tasks[0], tasks[1]
	if result.UserID != task.UserID || !strings.Contains(result.Text, "<blockquote expandable>") {
		t.Fatalf("result task = %+v", result)
	}
	if offer.Keyboard == nil || offer.Keyboard.InlineKeyboard[0][0].CallbackData != "tracking_on_diet" {
		t.Fatalf("offer task = %+v, want tracking offer keyboard", offer)
	}
}

func TestGenerationNatalChartSkipsTrackingOffer(t *testing.T) {
	ctx := context.Background()
	f := newGenerationFixture(t)
	if err := f.cache.SetPromptTemplate(ctx, models.ModeNatalChart, "Карта для {birth_date}"); err != nil {
		t.Fatalf("SetPromptTemplate: %v", err)
	}
	f.gen.text = "<b>Карта</b>"
	task := models.GenerationTask{
		TaskID: "t-2", UserID: 7, Mode: models.ModeNatalChart,
		Answers: map[string]string{"birth_date": "15.04.1990"}, SubmissionID: "sub-2",
	}
	d := makeDelivery(t, task)

	f.worker.Handle(ctx, d.delivery)

	if tasks := f.drainDelivery(t); len(tasks) != 1 {
		t.Fatalf("delivery tasks = %d, want result only", len(tasks))
	}
}

func TestRenderTemplate(t *testing.T) {
	answers := map[string]string{"goal": "похудеть", "age": "30"}

	got := renderTemplate("Цель: {goal}, возраст: {age}", answers)
	if got != "Цель: похудеть, возраст: 30" {
		t.Fatalf("rendered = %q", got)
	}

	// An unresolved placeholder keeps the template intact and appends the raw
	// answer data instead.
	got = renderTemplate("Цель: {goal}, вес: {weight}", answers)
	if !strings.HasPrefix(got, "Цель: {goal}, вес: {weight}\n\nДанные: ") {
		t.Fatalf("fallback = %q", got)
	}
	if !strings.Contains(got, `"goal":"похудеть"`) {
		t.Fatalf("fallback missing raw answers: %q", got)
	}
}
