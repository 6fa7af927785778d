package engagement

import (
	"context"
	"errors"
	"testing"
	"time"

	"rexbot/internal/models"
	"rexbot/internal/store"
)

var testNow = time.Date(2025, 6, 10, 20, 0, 0, 0, time.UTC)

func newEngine(t *testing.T) (*Engine, *store.InMemoryStore) {
	t.Helper()
	st := store.NewInMemoryStore()
	return New(st, WithClock(func() time.Time { return testNow })), st
}

func seedTracking(t *testing.T, st *store.InMemoryStore, userID int64, daysAgo int, status models.TrackingStatus) {
	t.Helper()
	day := testNow.AddDate(0, 0, -daysAgo)
	_, err := st.InsertTracking(context.Background(), models.TrackingRecord{
		UserID: userID, Mode: models.ModeDiet,
		Date: day.Format(models.DateLayout), Status: status, CreatedAt: day,
	})
	if err != nil {
		t.Fatalf("InsertTracking: %v", err)
	}
}

func TestRecordTrackingDuplicate(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)

	if _, err := e.RecordTracking(ctx, 1, models.ModeDiet, models.TrackingSuccess); err != nil {
		t.Fatalf("first report: %v", err)
	}
	_, err := e.RecordTracking(ctx, 1, models.ModeDiet, models.TrackingFail)
	if !errors.Is(err, models.ErrDuplicateTracking) {
		t.Fatalf("second report err = %v, want ErrDuplicateTracking", err)
	}
}

func TestRecordTrackingUnsupportedMode(t *testing.T) {
	e, _ := newEngine(t)
	if _, err := e.RecordTracking(context.Background(), 1, models.ModeDating, models.TrackingSuccess); err == nil {
		t.Fatal("dating mode accepted a tracking report")
	}
}

func TestStreakCounting(t *testing.T) {
	ctx := context.Background()
	e, st := newEngine(t)

	// Two counting days before today, then a fail that ends the streak.
	seedTracking(t, st, 1, 1, models.TrackingSuccess)
	seedTracking(t, st, 1, 2, models.TrackingPartial)
	seedTracking(t, st, 1, 3, models.TrackingFail)
	seedTracking(t, st, 1, 4, models.TrackingSuccess)

	result, err := e.RecordTracking(ctx, 1, models.ModeDiet, models.TrackingSuccess)
	if err != nil {
		t.Fatalf("RecordTracking: %v", err)
	}
	if result.Streak != 3 || result.Milestone {
		t.Fatalf("result = %+v, want streak 3 without milestone", result)
	}
}

func TestStreakBrokenByGap(t *testing.T) {
	ctx := context.Background()
	e, st := newEngine(t)

	// Yesterday is missing, so older records do not count.
	seedTracking(t, st, 1, 2, models.TrackingSuccess)
	seedTracking(t, st, 1, 3, models.TrackingSuccess)

	result, err := e.RecordTracking(ctx, 1, models.ModeDiet, models.TrackingSuccess)
	if err != nil {
		t.Fatalf("RecordTracking: %v", err)
	}
	if result.Streak != 1 {
		t.Fatalf("streak = %d, want 1", result.Streak)
	}
}

func TestStreakIsPerMode(t *testing.T) {
	ctx := context.Background()
	e, st := newEngine(t)

	seedTracking(t, st, 1, 1, models.TrackingSuccess)
	if _, err := st.InsertTracking(ctx, models.TrackingRecord{
		UserID: 1, Mode: models.ModeTrainer,
		Date: testNow.Format(models.DateLayout), Status: models.TrackingSuccess,
	}); err != nil {
		t.Fatalf("InsertTracking: %v", err)
	}

	streak, err := e.ComputeStreak(ctx, 1, models.ModeTrainer)
	if err != nil {
		t.Fatalf("ComputeStreak: %v", err)
	}
	if streak != 1 {
		t.Fatalf("trainer streak = %d, want 1", streak)
	}
}

func TestStreakMilestoneAtSevenDays(t *testing.T) {
	ctx := context.Background()
	e, st := newEngine(t)

	for days := 1; days <= 6; days++ {
		seedTracking(t, st, 1, days, models.TrackingSuccess)
	}
	result, err := e.RecordTracking(ctx, 1, models.ModeDiet, models.TrackingSuccess)
	if err != nil {
		t.Fatalf("RecordTracking: %v", err)
	}
	if result.Streak != 7 || !result.Milestone {
		t.Fatalf("result = %+v, want streak 7 with milestone", result)
	}
}

func TestRecordInteraction(t *testing.T) {
	ctx := context.Background()
	e, st := newEngine(t)

	isMatch, err := e.RecordInteraction(ctx, 1, 2, models.ActionLike)
	if err != nil || isMatch {
		t.Fatalf("one-sided like: match = %v err = %v", isMatch, err)
	}

	if _, err := e.RecordInteraction(ctx, 1, 2, models.ActionLike); !errors.Is(err, models.ErrDuplicateVote) {
		t.Fatalf("repeat vote err = %v, want ErrDuplicateVote", err)
	}

	// A dislike back does not complete a match.
	isMatch, err = e.RecordInteraction(ctx, 3, 1, models.ActionDislike)
	if err != nil || isMatch {
		t.Fatalf("dislike: match = %v err = %v", isMatch, err)
	}

	// The reciprocal like flips both records.
	isMatch, err = e.RecordInteraction(ctx, 2, 1, models.ActionLike)
	if err != nil || !isMatch {
		t.Fatalf("reciprocal like: match = %v err = %v", isMatch, err)
	}
	for _, pair := range [][2]int64{{1, 2}, {2, 1}} {
		event, err := st.GetMatchEvent(ctx, pair[0], pair[1])
		if err != nil || event == nil || !event.IsMatch {
			t.Fatalf("event %v = %+v err = %v, want matched", pair, event, err)
		}
	}
}

func redemptionFixture(t *testing.T) (*Engine, *store.InMemoryStore, *models.User) {
	t.Helper()
	e, st := newEngine(t)
	user := &models.User{ID: 100, CreatedAt: testNow}
	if err := st.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return e, st, user
}

func addCode(t *testing.T, st *store.InMemoryStore, code models.ActivationCode) {
	t.Helper()
	if err := st.CreateActivationCodes(context.Background(), []models.ActivationCode{code}); err != nil {
		t.Fatalf("CreateActivationCodes: %v", err)
	}
}

func TestRedeemErrors(t *testing.T) {
	ctx := context.Background()
	e, st, user := redemptionFixture(t)

	if _, err := e.RedeemActivationCode(ctx, user, "missing"); !errors.Is(err, models.ErrCodeNotFound) {
		t.Fatalf("unknown code err = %v, want ErrCodeNotFound", err)
	}

	addCode(t, st, models.ActivationCode{CodeHash: "disabled", IsActive: false})
	if _, err := e.RedeemActivationCode(ctx, user, "disabled"); !errors.Is(err, models.ErrCodeInactive) {
		t.Fatalf("inactive code err = %v, want ErrCodeInactive", err)
	}

	addCode(t, st, models.ActivationCode{CodeHash: "fresh", IsActive: true})
	if _, err := e.RedeemActivationCode(ctx, user, "fresh"); err != nil {
		t.Fatalf("first redemption: %v", err)
	}
	if _, err := e.RedeemActivationCode(ctx, user, "fresh"); !errors.Is(err, models.ErrCodeUsedBySelf) {
		t.Fatalf("self repeat err = %v, want ErrCodeUsedBySelf", err)
	}

	other := &models.User{ID: 200, CreatedAt: testNow}
	if err := st.CreateUser(ctx, other); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if _, err := e.RedeemActivationCode(ctx, other, "fresh"); !errors.Is(err, models.ErrCodeUsedByOther) {
		t.Fatalf("other user err = %v, want ErrCodeUsedByOther", err)
	}
}

func TestRedeemExtendsSubscription(t *testing.T) {
	ctx := context.Background()
	e, st, user := redemptionFixture(t)

	addCode(t, st, models.ActivationCode{CodeHash: "c1", IsActive: true})
	result, err := e.RedeemActivationCode(ctx, user, "c1")
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	want := testNow.AddDate(0, 0, SubscriptionExtensionDays)
	if !result.ExpiresAt.Equal(want) {
		t.Fatalf("expiry = %v, want %v", result.ExpiresAt, want)
	}

	// A redemption before expiry stacks on the current expiry, not on now.
	addCode(t, st, models.ActivationCode{CodeHash: "c2", IsActive: true})
	result, err = e.RedeemActivationCode(ctx, user, "c2")
	if err != nil {
		t.Fatalf("second redeem: %v", err)
	}
	want = want.AddDate(0, 0, SubscriptionExtensionDays)
	if !result.ExpiresAt.Equal(want) {
		t.Fatalf("stacked expiry = %v, want %v", result.ExpiresAt, want)
	}

	stored, _ := st.GetUser(ctx, user.ID)
	if stored.ActivationCount != 2 {
		t.Fatalf("activation count = %d, want 2", stored.ActivationCount)
	}
	code, _ := st.GetActivationCode(ctx, "c1")
	if code.ActivatedAt == nil || code.ActivatedBy != user.ID {
		t.Fatalf("code after redemption = %+v", code)
	}
}

func TestRedeemLapsedSubscriptionRestartsFromNow(t *testing.T) {
	ctx := context.Background()
	e, st, user := redemptionFixture(t)

	past := testNow.AddDate(0, 0, -30)
	user.SubscriptionExpiresAt = &past
	if err := st.UpdateUser(ctx, user); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}

	addCode(t, st, models.ActivationCode{CodeHash: "c1", IsActive: true})
	result, err := e.RedeemActivationCode(ctx, user, "c1")
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	want := testNow.AddDate(0, 0, SubscriptionExtensionDays)
	if !result.ExpiresAt.Equal(want) {
		t.Fatalf("expiry = %v, want %v", result.ExpiresAt, want)
	}
}

func TestCreditGrantedAtExactThreshold(t *testing.T) {
	ctx := context.Background()
	e, st, user := redemptionFixture(t)

	for i := 1; i <= DefaultCreditThreshold+1; i++ {
		hash := string(rune('a' + i))
		addCode(t, st, models.ActivationCode{CodeHash: hash, IsActive: true})
		result, err := e.RedeemActivationCode(ctx, user, hash)
		if err != nil {
			t.Fatalf("redeem %d: %v", i, err)
		}
		wantGrant := i == DefaultCreditThreshold
		if result.CreditGranted != wantGrant {
			t.Fatalf("redemption %d: granted = %v, want %v", i, result.CreditGranted, wantGrant)
		}
	}

	stored, _ := st.GetUser(ctx, user.ID)
	if stored.Credits != 1 {
		t.Fatalf("credits = %d, want exactly 1", stored.Credits)
	}
}

func TestCreditThresholdOverride(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryStore()
	e := New(st, WithClock(func() time.Time { return testNow }), WithCreditThreshold(2))
	user := &models.User{ID: 1, CreatedAt: testNow}
	if err := st.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	addCode(t, st, models.ActivationCode{CodeHash: "x1", IsActive: true})
	addCode(t, st, models.ActivationCode{CodeHash: "x2", IsActive: true})

	result, err := e.RedeemActivationCode(ctx, user, "x1")
	if err != nil || result.CreditGranted {
		t.Fatalf("first redemption: %+v err = %v", result, err)
	}
	result, err = e.RedeemActivationCode(ctx, user, "x2")
	if err != nil || !result.CreditGranted {
		t.Fatalf("second redemption: %+v err = %v", result, err)
	}
}
