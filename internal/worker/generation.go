// Package worker implements the two queue consumers: background content
// generation and outbound message delivery. The two carry deliberately
// different retry policies, so each holds its own handler rather than
// sharing a generic retry wrapper.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"rexbot/internal/alerting"
	"rexbot/internal/configcache"
	"rexbot/internal/genai"
	"rexbot/internal/markup"
	"rexbot/internal/metrics"
	"rexbot/internal/models"
	"rexbot/internal/queue"
	"rexbot/internal/store"
)

// GenerationPrefetch bounds concurrent generation calls; the provider is the
// slow rate-limited dependency.
const GenerationPrefetch = 5

// generationInstruction is the fixed user-role formatting contract sent with
// every generation request.
const generationInstruction = "Составь рекомендацию на основе моих данных.\n" +
	"ТРЕБОВАНИЯ К ОФОРМЛЕНИЮ:\n" +
	"1. Эмодзи используй ТОЛЬКО в заголовках и очень умеренно (не более 1 на заголовок).\n" +
	"2. Внутри списков (перечислениях) эмодзи НЕ ИСПОЛЬЗУЙ.\n" +
	"3. Используй тег <b> для жирного выделения заголовков.\n" +
	"4. Списки оформляй строго тегами <li>.\n" +
	"5. Пиши сразу в HTML, не используй Markdown.\n" +
	"6. НЕ пиши <!DOCTYPE> или <html>, только текст."

// GenerationWorker consumes GenerationTasks, produces cleaned content and
// hands it to the delivery channel.
//
// Policy: at most one generation attempt per task. Every exit path
// acknowledges the task; failures are logged and alerted instead of
// requeued, so a persistently broken provider cannot cause a retry storm.
type GenerationWorker struct {
	queue   queue.Queue
	cache   configcache.Cache
	store   store.Store
	gen     genai.Generator
	alerter *alerting.Alerter
}

// NewGenerationWorker wires a generation worker.
func NewGenerationWorker(q queue.Queue, cache configcache.Cache, st store.Store, gen genai.Generator, alerter *alerting.Alerter) *GenerationWorker {
	return &GenerationWorker{queue: q, cache: cache, store: st, gen: gen, alerter: alerter}
}

// Run consumes the generation channel until ctx is canceled.
func (w *GenerationWorker) Run(ctx context.Context) error {
	return w.queue.Consume(ctx, models.ChannelGeneration, GenerationPrefetch, w.Handle)
}

// Handle processes one generation delivery.
func (w *GenerationWorker) Handle(ctx context.Context, d queue.Delivery) {
	defer func() {
		if err := d.Ack(); err != nil {
			slog.Error("generation ack failed", "error", err)
		}
	}()

	var task models.GenerationTask
	if err := json.Unmarshal(d.Body, &task); err != nil {
		slog.Error("generation task malformed, dropping", "error", err)
		metrics.AITasksProcessed.WithLabelValues("unknown", "malformed").Inc()
		return
	}
	log := slog.With("taskID", task.TaskID, "userID", task.UserID, "mode", task.Mode)
	log.Info("generation task received")
	start := time.Now()

	template, err := w.cache.GetPromptTemplate(ctx, task.Mode)
	if err == nil && template == "" {
		err = models.ErrConfigurationMissing
	}
	if err != nil {
		// Missing template is a configuration error; retrying cannot fix it.
		log.Error("prompt template unavailable, dropping task", "error", err)
		metrics.AITasksProcessed.WithLabelValues(string(task.Mode), "config_missing").Inc()
		w.alerter.Alert(ctx, fmt.Sprintf("⚠️ Generation: no prompt template for mode %s, task %s dropped", task.Mode, task.TaskID))
		return
	}

	systemPrompt := renderTemplate(template, task.Answers)
	result, err := w.gen.Generate(ctx, systemPrompt, generationInstruction)
	if err != nil {
		log.Error("generation failed, dropping task", "error", err)
		metrics.AITasksProcessed.WithLabelValues(string(task.Mode), "failed").Inc()
		metrics.SystemErrors.WithLabelValues("generation", "provider").Inc()
		w.alerter.Alert(ctx, fmt.Sprintf("🔥 Generation failed for user %d (%s): %v", task.UserID, task.Mode, err))
		return
	}

	clean := markup.CleanHTML(result)
	if err := w.store.AttachSubmissionResult(ctx, task.SubmissionID, clean); err != nil {
		log.Error("failed to persist generated result", "error", err)
		metrics.SystemErrors.WithLabelValues("generation", "store").Inc()
	}

	finalText := fmt.Sprintf(
		"✅ <b>Ваши рекомендации (%s) готовы!</b>\n\n"+
			"<blockquote expandable>%s</blockquote>\n\n"+
			"--- \n"+
			"⚠️ <i><b>Важно:</b> Рекомендации носят информационный характер.</i>",
		task.Mode, clean)
	if err := w.publishDelivery(ctx, models.DeliveryTask{
		TaskID: task.TaskID + ":result",
		UserID: task.UserID,
		Text:   finalText,
	}); err != nil {
		log.Error("failed to enqueue result delivery", "error", err)
		w.alerter.Alert(ctx, fmt.Sprintf("🔥 Generation result for user %d could not be enqueued: %v", task.UserID, err))
		return
	}

	if task.Mode.TracksDaily() {
		offer := models.DeliveryTask{
			TaskID: task.TaskID + ":offer",
			UserID: task.UserID,
			Text:   "Хотите, чтобы я каждый день спрашивал о ваших успехах?",
			Keyboard: &models.Keyboard{InlineKeyboard: [][]models.InlineButton{{
				{Text: "👍 Да, давай!", CallbackData: fmt.Sprintf("tracking_on_%s", task.Mode)},
				{Text: "👎 Нет, спасибо", CallbackData: fmt.Sprintf("tracking_off_%s", task.Mode)},
			}}},
		}
		if err := w.publishDelivery(ctx, offer); err != nil {
			log.Error("failed to enqueue tracking offer", "error", err)
		}
	}

	metrics.AITasksProcessed.WithLabelValues(string(task.Mode), "success").Inc()
	metrics.AITaskDuration.WithLabelValues(string(task.Mode)).Observe(time.Since(start).Seconds())
	log.Info("generation task completed", "duration", time.Since(start))
}

func (w *GenerationWorker) publishDelivery(ctx context.Context, task models.DeliveryTask) error {
	return w.queue.Publish(ctx, models.ChannelDelivery, task)
}

var placeholderRe = regexp.MustCompile(`\{[a-zA-Z0-9_]+\}`)

// renderTemplate substitutes {key} placeholders with collected answers.
// When the template references a key the answers do not cover, the raw
// answer data is appended verbatim instead, so a template/survey mismatch
// degrades output quality rather than failing the task.
func renderTemplate(template string, answers map[string]string) string {
	rendered := template
	for key, value := range answers {
		rendered = strings.ReplaceAll(rendered, "{"+key+"}", value)
	}
	if placeholderRe.MatchString(rendered) {
		raw, err := json.Marshal(answers)
		if err != nil {
			raw = []byte("{}")
		}
		slog.Warn("prompt template has unresolved placeholders, appending raw answers")
		return template + "\n\nДанные: " + string(raw)
	}
	return rendered
}
