// Package bot routes inbound chat events to the survey flow and the
// engagement engine and renders their outcomes back to the user.
//
// The router enforces the per-user ordering contract: every event for a
// user is handled to completion before the next one for the same user is
// accepted. Events for different users run concurrently.
package bot

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"rexbot/internal/engagement"
	"rexbot/internal/messaging"
	"rexbot/internal/metrics"
	"rexbot/internal/models"
	"rexbot/internal/queue"
	"rexbot/internal/store"
	"rexbot/internal/survey"
)

// Event is one inbound user action, normalized away from the transport.
type Event struct {
	UserID       int64
	Username     string
	FullName     string
	Text         string
	PhotoID      string
	CallbackData string
}

// IsCallback reports whether the event is a pressed inline button.
func (e Event) IsCallback() bool { return e.CallbackData != "" }

// Config is the router's explicit configuration.
type Config struct {
	AdminIDs []int64
}

// Router dispatches events to handlers.
type Router struct {
	cfg     Config
	store   store.Store
	surveys *survey.Controller
	engage  *engagement.Engine
	queue   queue.Queue
	msg     messaging.Service
	now     func() time.Time

	locks userLocks
}

// New creates an event router.
func New(cfg Config, st store.Store, surveys *survey.Controller, engage *engagement.Engine, q queue.Queue, msg messaging.Service) *Router {
	return &Router{
		cfg:     cfg,
		store:   st,
		surveys: surveys,
		engage:  engage,
		queue:   q,
		msg:     msg,
		now:     time.Now,
		locks:   userLocks{locks: make(map[int64]*userLock)},
	}
}

func (r *Router) isAdmin(userID int64) bool {
	for _, id := range r.cfg.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// HandleEvent processes one event to completion. Errors are handled inside;
// the method never panics the caller's poll loop.
func (r *Router) HandleEvent(ctx context.Context, e Event) {
	unlock := r.locks.lock(e.UserID)
	defer unlock()

	metrics.ActiveUsers.Inc()
	defer metrics.ActiveUsers.Dec()
	if e.IsCallback() {
		metrics.BotUpdates.WithLabelValues("callback").Inc()
	} else {
		metrics.BotUpdates.WithLabelValues("message").Inc()
	}

	user, err := r.ensureUser(ctx, e)
	if err != nil {
		slog.Error("failed to load user", "error", err, "userID", e.UserID)
		metrics.SystemErrors.WithLabelValues("bot", "store").Inc()
		return
	}

	if strings.HasPrefix(e.Text, "/start") {
		r.handleStart(ctx, user, strings.TrimSpace(strings.TrimPrefix(e.Text, "/start")))
		return
	}

	// Everything past /start requires an active subscription.
	if !r.isAdmin(user.ID) && !user.SubscriptionActive(r.now()) {
		r.send(ctx, user.ID, textWelcomeNoAccess, nil)
		return
	}

	if e.IsCallback() {
		r.handleCallback(ctx, user, e.CallbackData)
		return
	}
	r.handleMessage(ctx, user, e)
}

// ensureUser loads the user record, registering first-time users.
func (r *Router) ensureUser(ctx context.Context, e Event) (*models.User, error) {
	user, err := r.store.GetUser(ctx, e.UserID)
	if err != nil {
		return nil, err
	}
	if user != nil {
		return user, nil
	}
	user = &models.User{
		ID:        e.UserID,
		Username:  e.Username,
		FullName:  e.FullName,
		CreatedAt: r.now(),
	}
	if err := r.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	slog.Info("new user registered", "userID", user.ID)
	return user, nil
}

func (r *Router) send(ctx context.Context, userID int64, text string, keyboard *models.Keyboard) {
	if err := r.msg.SendText(ctx, userID, text, keyboard); err != nil {
		slog.Error("failed to send reply", "error", err, "userID", userID)
		metrics.SystemErrors.WithLabelValues("bot", "send").Inc()
	}
}

// userLocks serializes event handling per user. Entries are refcounted and
// evicted once the last holder releases, so the map stays bounded by the
// number of users with in-flight events.
type userLocks struct {
	mu    sync.Mutex
	locks map[int64]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func (l *userLocks) lock(userID int64) func() {
	l.mu.Lock()
	e, ok := l.locks[userID]
	if !ok {
		e = &userLock{}
		l.locks[userID] = e
	}
	e.refs++
	l.mu.Unlock()
	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.locks, userID)
		}
		l.mu.Unlock()
	}
}
