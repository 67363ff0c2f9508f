package runtime_test

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/gocare/internal/runtime"
	"github.com/aretw0/gocare/pkg/domain"
	"github.com/aretw0/gocare/pkg/security"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOrchestrator(t *testing.T, dir *fakeDirectory, opts ...runtime.EngineOption) *runtime.Orchestrator {
	t.Helper()
	eng := runtime.NewEngine(dir, dir, opts...)
	o := eng.NewOrchestrator("sess-" + strings.ReplaceAll(t.Name(), "/", "-"))
	o.Start(context.Background(), domain.Handshake{})
	return o
}

func say(t *testing.T, o *runtime.Orchestrator, text string) domain.TurnResult {
	t.Helper()
	res, err := o.HandleUtterance(context.Background(), text)
	require.NoError(t, err)
	require.NoError(t, o.Context().Validate(), "invariants after %q", text)
	return res
}

// toMain drives a fresh orchestrator through a successful verification.
func toMain(t *testing.T, o *runtime.Orchestrator) {
	t.Helper()
	say(t, o, testMobile)
	say(t, o, testCode)
	require.Equal(t, domain.RoleMain, o.Role())
}

func TestScenarioA_IdentifierMovesToAuthenticating(t *testing.T) {
	dir := newFakeDirectory()
	o := newOrchestrator(t, dir)

	res := say(t, o, "call")
	assert.Equal(t, domain.RoleGreeting, res.Role)
	assert.NotEmpty(t, res.Replies)

	res = say(t, o, "15551234567")
	assert.Equal(t, domain.RoleAuthenticating, res.Role)
	sc := o.Context()
	assert.Equal(t, "15551234567", sc.UserMobile)
	assert.Zero(t, dir.verifyCount(), "greeting must never verify")
	assert.Contains(t, res.Text(), "4567")
}

func TestGreeting_NormalizesIdentifier(t *testing.T) {
	o := newOrchestrator(t, newFakeDirectory())

	say(t, o, "it's +1 (555) 123-4567")
	assert.Equal(t, "+15551234567", o.Context().UserMobile)
}

func TestScenarioB_ThreeFailuresLock(t *testing.T) {
	dir := newFakeDirectory()
	o := newOrchestrator(t, dir)
	say(t, o, testMobile)

	var roles []domain.Role
	var last domain.TurnResult
	for i := 0; i < 3; i++ {
		last = say(t, o, "000")
		roles = append(roles, last.Role)
		assert.Equal(t, i+1, o.Context().AuthAttempts)
	}

	assert.Equal(t, []domain.Role{domain.RoleAuthenticating, domain.RoleAuthenticating, domain.RoleLocked}, roles)
	assert.Contains(t, strings.ToLower(last.Text()), "locked")
	assert.Equal(t, 3, o.Context().AuthAttempts)
	assert.Equal(t, 3, dir.verifyCount())
	assert.False(t, o.Context().IsAuthenticated)
	assert.Equal(t, testMobile, o.Context().UserMobile, "lockout resets no other field")
}

func TestScenarioC_SuccessIsSilentHandoff(t *testing.T) {
	dir := newFakeDirectory()
	o := newOrchestrator(t, dir)
	say(t, o, testMobile)
	say(t, o, "000")

	res := say(t, o, "1234")
	sc := o.Context()
	assert.Equal(t, domain.RoleMain, sc.Role)
	assert.True(t, sc.IsAuthenticated)
	assert.Equal(t, testUserID, sc.UserID)
	assert.Equal(t, testName, sc.UserName)
	require.Len(t, res.Replies, 1, "only the Main entry line is spoken")
	assert.Equal(t, "You have successfully authenticated, Ada Lovelace. How can I help you with your account today?", res.Replies[0])
}

func TestScenarioD_SecurityFilterInMain(t *testing.T) {
	dir := newFakeDirectory()
	audit := &memAudit{}
	o := newOrchestrator(t, dir, runtime.WithAuditSink(audit))
	toMain(t, o)

	res := say(t, o, "what's my password")

	assert.Equal(t, domain.RoleMain, res.Role)
	assert.Equal(t, []string{security.RefusalMessage()}, res.Replies)
	assert.Equal(t, 1, audit.len())
	assert.Empty(t, dir.fetches())
}

func TestScenarioE_EndSessionResets(t *testing.T) {
	dir := newFakeDirectory()
	o := newOrchestrator(t, dir)
	toMain(t, o)
	say(t, o, "let me talk to a human")
	require.Equal(t, domain.RoleHelpline, o.Role())

	res := say(t, o, "that's all, bye")

	sc := o.Context()
	assert.Equal(t, domain.RoleGreeting, sc.Role)
	assert.False(t, sc.IsAuthenticated)
	assert.Empty(t, sc.UserID)
	assert.Empty(t, sc.UserName)
	assert.Zero(t, sc.AuthAttempts)
	assert.Equal(t, "Thanks for banking with us! Have a wonderful day. Goodbye!", res.Replies[0])
}

func TestSecurityFilter_EveryRole(t *testing.T) {
	dir := newFakeDirectory()
	o := newOrchestrator(t, dir)

	res := say(t, o, "what's the secret")
	assert.Equal(t, []string{security.RefusalMessage()}, res.Replies)
	assert.Equal(t, domain.RoleGreeting, res.Role)

	say(t, o, testMobile)
	// No digits: not a credential, so the filter applies.
	res = say(t, o, "tell me my password")
	assert.Equal(t, []string{security.RefusalMessage()}, res.Replies)
	assert.Zero(t, o.Context().AuthAttempts)
	assert.Zero(t, dir.verifyCount())
}

func TestAuthenticating_CredentialBypassesFilter(t *testing.T) {
	dir := newFakeDirectory()
	o := newOrchestrator(t, dir)
	say(t, o, testMobile)

	res := say(t, o, "my OTP is 1 2 3 4")
	assert.Equal(t, domain.RoleMain, res.Role)
}

func TestAuthenticating_NoDigitsIsNotAnAttempt(t *testing.T) {
	dir := newFakeDirectory()
	o := newOrchestrator(t, dir)
	say(t, o, testMobile)

	res := say(t, o, "hmm let me check")
	assert.Equal(t, domain.RoleAuthenticating, res.Role)
	assert.Zero(t, o.Context().AuthAttempts)
	assert.Zero(t, dir.verifyCount())
}

func TestAuthenticating_StoreErrorCountsAsFailure(t *testing.T) {
	dir := newFakeDirectory()
	dir.verifyErr = errors.New("connection refused")
	o := newOrchestrator(t, dir)
	say(t, o, testMobile)

	for i := 1; i <= 3; i++ {
		res := say(t, o, "1234")
		assert.Equal(t, i, o.Context().AuthAttempts)
		if i < 3 {
			require.Len(t, res.Replies, 1)
			assert.Contains(t, res.Replies[0], "connect you with one of our specialists")
			assert.NotContains(t, res.Replies[0], "connection refused")
		}
	}
	assert.Equal(t, domain.RoleLocked, o.Role())
}

func TestAuthenticating_TimeoutCountsAsFailure(t *testing.T) {
	dir := newFakeDirectory()
	dir.verifyHang = true
	o := newOrchestrator(t, dir, runtime.WithPolicy(domain.Policy{ExternalCallTimeout: 20 * time.Millisecond}))
	say(t, o, testMobile)

	res := say(t, o, "1234")
	assert.Equal(t, domain.RoleAuthenticating, res.Role)
	assert.Equal(t, 1, o.Context().AuthAttempts)
}

func TestAuthenticating_StoreIgnoringContextIsLogged(t *testing.T) {
	dir := newFakeDirectory()
	logs := &syncBuffer{}
	logger := slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	o := newOrchestrator(t, dir,
		runtime.WithLogger(logger),
		runtime.WithPolicy(domain.Policy{ExternalCallTimeout: 20 * time.Millisecond}))
	say(t, o, testMobile)

	stall := make(chan struct{})
	dir.mu.Lock()
	dir.stall = stall
	dir.mu.Unlock()

	res := say(t, o, "1234")
	assert.Equal(t, domain.RoleAuthenticating, res.Role)
	assert.Equal(t, 1, o.Context().AuthAttempts)
	assert.Contains(t, logs.String(), "external call still running after cancel")

	close(stall)
	require.Eventually(t, func() bool {
		return strings.Contains(logs.String(), "stray external call returned")
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, o.Context().AuthAttempts, "a late answer changes nothing")
}

func TestAuthenticating_PendingAfterCodeCountsAsFailure(t *testing.T) {
	dir := newFakeDirectory()
	dir.pending = true
	o := newOrchestrator(t, dir)
	say(t, o, testMobile)

	say(t, o, "1234")
	assert.Equal(t, 1, o.Context().AuthAttempts)
	assert.Equal(t, domain.RoleAuthenticating, o.Role())
}

func TestAuthenticating_ResendCode(t *testing.T) {
	dir := newFakeDirectory()
	o := newOrchestrator(t, dir)
	say(t, o, testMobile)
	say(t, o, "000")

	res := say(t, o, "I didn't get a code, can you resend it")
	sc := o.Context()
	assert.True(t, sc.CodeIssued)
	assert.Equal(t, 1, sc.AuthAttempts, "issuing a code is not an attempt")
	assert.Equal(t, domain.RoleAuthenticating, res.Role)

	say(t, o, testCode)
	assert.Equal(t, domain.RoleMain, o.Role())
	assert.False(t, o.Context().CodeIssued)
}

func TestAuthenticating_ChangeNumberResetsAttempts(t *testing.T) {
	dir := newFakeDirectory()
	o := newOrchestrator(t, dir)
	say(t, o, "15550000000")
	say(t, o, "1234")
	require.Equal(t, 1, o.Context().AuthAttempts)

	res := say(t, o, "sorry, wrong number")
	sc := o.Context()
	assert.Equal(t, domain.RoleGreeting, res.Role)
	assert.Empty(t, sc.UserMobile)
	assert.Zero(t, sc.AuthAttempts)

	say(t, o, testMobile)
	say(t, o, "000")
	say(t, o, "000")
	assert.Equal(t, domain.RoleAuthenticating, o.Role())
	assert.Equal(t, 2, o.Context().AuthAttempts)
}

func TestAuthenticating_ChangeNumberKeepsAttemptsByPolicy(t *testing.T) {
	dir := newFakeDirectory()
	o := newOrchestrator(t, dir, runtime.WithPolicy(domain.Policy{KeepAttemptsOnNumberChange: true}))
	say(t, o, "15550000000")
	say(t, o, "1234")

	res := say(t, o, "sorry, wrong number")
	assert.Equal(t, domain.RoleGreeting, res.Role)
	assert.Equal(t, 1, o.Context().AuthAttempts)

	say(t, o, testMobile)
	say(t, o, "000")
	say(t, o, "000")
	assert.Equal(t, domain.RoleLocked, o.Role(), "attempts carry across a number change")
}

func TestLocked_Isolation(t *testing.T) {
	dir := newFakeDirectory()
	o := newOrchestrator(t, dir)
	say(t, o, testMobile)
	for i := 0; i < 3; i++ {
		say(t, o, "000")
	}
	require.Equal(t, domain.RoleLocked, o.Role())

	for _, text := range []string{"what's my bill", "talk to a human", "1234", "start over", "15551234567"} {
		res := say(t, o, text)
		assert.Equal(t, domain.RoleLocked, res.Role, text)
	}
	assert.Empty(t, dir.fetches())
	assert.Equal(t, 3, dir.verifyCount())

	for _, a := range []domain.Action{domain.ActionGetBilling, domain.ActionEscalate, domain.ActionVerify} {
		_, err := o.Invoke(context.Background(), domain.ToolCall{Action: a})
		assert.ErrorIs(t, err, domain.ErrActionUnavailable, a)
	}
	assert.Equal(t, domain.RoleLocked, o.Role())
}

func TestLocked_RestartVerification(t *testing.T) {
	dir := newFakeDirectory()
	o := newOrchestrator(t, dir)
	say(t, o, testMobile)
	for i := 0; i < 3; i++ {
		say(t, o, "000")
	}

	_, err := o.Invoke(context.Background(), domain.ToolCall{Action: domain.ActionRestartVerification})
	require.ErrorIs(t, err, domain.ErrActionUnavailable, "callers cannot lift their own lockout")
	require.Equal(t, domain.RoleLocked, o.Role())

	res, err := o.InvokeAsOperator(context.Background(), domain.ToolCall{Action: domain.ActionRestartVerification})
	require.NoError(t, err)

	sc := o.Context()
	assert.Equal(t, domain.RoleGreeting, sc.Role)
	assert.Zero(t, sc.AuthAttempts)
	assert.Empty(t, sc.UserMobile)
	assert.Len(t, res.Replies, 2, "restart reply then the greeting")
}

func TestLocked_UserRestartWhenAllowed(t *testing.T) {
	dir := newFakeDirectory()
	o := newOrchestrator(t, dir, runtime.WithPolicy(domain.Policy{AllowUserRestart: true}))
	say(t, o, testMobile)
	for i := 0; i < 3; i++ {
		say(t, o, "000")
	}

	say(t, o, "can we start over")
	assert.Equal(t, domain.RoleGreeting, o.Role())
}

func TestLockout_MentionsAttemptsPolicy(t *testing.T) {
	dir := newFakeDirectory()
	o := newOrchestrator(t, dir, runtime.WithPolicy(domain.Policy{LockoutMentionsAttempts: true}))
	say(t, o, testMobile)
	say(t, o, "000")
	say(t, o, "000")
	res := say(t, o, "000")

	assert.Contains(t, res.Text(), "3 unsuccessful attempts")
}

func TestMain_DataUsesVerifiedUserOnly(t *testing.T) {
	dir := newFakeDirectory()
	o := newOrchestrator(t, dir)
	toMain(t, o)

	res, err := o.Invoke(context.Background(), domain.ToolCall{
		Action: domain.ActionGetBilling,
		Args:   map[string]any{domain.ArgUserID: "u-9999"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"billing/" + testUserID}, dir.fetches())
	assert.Equal(t, "Here are your billing details: amount 42.10, due date 2026-11-01.", res.Replies[0])
}

func TestMain_DataByUtterance(t *testing.T) {
	dir := newFakeDirectory()
	o := newOrchestrator(t, dir)
	toMain(t, o)

	res := say(t, o, "when did I last log in?")
	assert.Contains(t, res.Text(), "last login")
	assert.Equal(t, []string{"last_login/" + testUserID}, dir.fetches())
}

func TestMain_NotFoundAndServiceErrors(t *testing.T) {
	dir := newFakeDirectory()
	delete(dir.records, domain.DataActivity)
	o := newOrchestrator(t, dir)
	toMain(t, o)

	res := say(t, o, "show my recent activity")
	assert.Equal(t, "I couldn't find any recent activity on your account.", res.Text())

	dir.mu.Lock()
	dir.fetchErr = errors.New("db down")
	dir.mu.Unlock()

	res = say(t, o, "what's my bill")
	assert.Contains(t, res.Text(), "specialists")
	assert.NotContains(t, res.Text(), "db down")
	assert.Equal(t, domain.RoleMain, res.Role)
}

func TestMain_FreeTextUsesResponder(t *testing.T) {
	o := newOrchestrator(t, newFakeDirectory(), runtime.WithResponder(staticResponder("Happy to help.")))
	toMain(t, o)

	res := say(t, o, "how are you today")
	assert.Equal(t, []string{"Happy to help."}, res.Replies)
}

func TestEscalate_PreservesIdentityByDefault(t *testing.T) {
	o := newOrchestrator(t, newFakeDirectory())
	toMain(t, o)

	res := say(t, o, "I need a specialist")
	sc := o.Context()
	assert.Equal(t, domain.RoleHelpline, sc.Role)
	assert.Equal(t, testUserID, sc.UserID)
	assert.Equal(t, testName, sc.UserName)
	assert.True(t, sc.IsAuthenticated)
	assert.NotEmpty(t, sc.Advisory)
	require.Len(t, res.Replies, 2)
	assert.Equal(t, "Alright Ada Lovelace, let me get you over to one of our specialists.", res.Replies[0])
	assert.Equal(t, "Hi there! I'm one of our customer support specialists. What can I help you with today?", res.Replies[1])
}

func TestEscalate_ResetPolicy(t *testing.T) {
	o := newOrchestrator(t, newFakeDirectory(), runtime.WithPolicy(domain.Policy{Escalation: domain.EscalationReset}))
	toMain(t, o)

	_, err := o.Invoke(context.Background(), domain.ToolCall{Action: domain.ActionEscalate, Args: map[string]any{domain.ArgReason: "card stolen"}})
	require.NoError(t, err)

	sc := o.Context()
	assert.Equal(t, domain.RoleHelpline, sc.Role)
	assert.Empty(t, sc.UserID)
	assert.False(t, sc.IsAuthenticated)
	assert.Equal(t, "card stolen", sc.Advisory)
}

func TestEndSession_ReverifyPolicyKeepsIdentifier(t *testing.T) {
	o := newOrchestrator(t, newFakeDirectory(), runtime.WithPolicy(domain.Policy{EndSessionRole: domain.RoleAuthenticating}))
	toMain(t, o)
	say(t, o, "human please")
	say(t, o, "goodbye")

	sc := o.Context()
	assert.Equal(t, domain.RoleAuthenticating, sc.Role)
	assert.Equal(t, testMobile, sc.UserMobile)
	assert.False(t, sc.IsAuthenticated)
	assert.Empty(t, sc.UserID)
}

func TestHandshake_HintsAreNotIdentity(t *testing.T) {
	dir := newFakeDirectory()
	eng := runtime.NewEngine(dir, dir)
	o := eng.NewOrchestrator("hs")

	res := o.Start(context.Background(), domain.Handshake{UserName: "Mr. Babbage", UserID: testMobile})
	require.Len(t, res.Replies, 1)
	assert.Contains(t, res.Replies[0], "Mr. Babbage")
	assert.Contains(t, res.Replies[0], "4567")
	assert.False(t, o.Context().IsAuthenticated)

	say(t, o, "yes that's me")
	assert.Equal(t, domain.RoleAuthenticating, o.Role())
	assert.Equal(t, testMobile, o.Context().UserMobile)

	res = say(t, o, testCode)
	assert.Equal(t, testName, o.Context().UserName, "store name overrides the hint")
	assert.NotContains(t, res.Text(), "Babbage")
}

type panickyHandler struct{}

func (panickyHandler) Role() domain.Role                                { return domain.RoleGreeting }
func (panickyHandler) Enter(*domain.SessionContext) string              { return "hi" }
func (panickyHandler) Actions(*domain.SessionContext) []domain.ActionSpec { return nil }
func (panickyHandler) Handle(context.Context, *domain.SessionContext, domain.Intent) runtime.Outcome {
	panic("boom")
}

func TestOrchestrator_PanicFallsBack(t *testing.T) {
	o := newOrchestrator(t, newFakeDirectory(), runtime.WithHandler(panickyHandler{}))
	before := o.Context()

	res := say(t, o, "hello")
	assert.Equal(t, []string{"Sorry, I ran into an error."}, res.Replies)
	after := o.Context()
	assert.Equal(t, before.Role, after.Role)
	assert.Equal(t, before.UserMobile, after.UserMobile)
}

type rogueHandler struct{}

func (rogueHandler) Role() domain.Role                                { return domain.RoleGreeting }
func (rogueHandler) Enter(*domain.SessionContext) string              { return "hi" }
func (rogueHandler) Actions(*domain.SessionContext) []domain.ActionSpec { return nil }
func (rogueHandler) Handle(context.Context, *domain.SessionContext, domain.Intent) runtime.Outcome {
	return runtime.Outcome{Transition: &domain.Transition{
		Action: domain.ActionVerify,
		Next:   domain.RoleMain,
		Patch:  domain.ContextPatch{UserID: domain.Ptr("u-1"), IsAuthenticated: domain.Ptr(true)},
		Silent: true,
	}}
}

func TestOrchestrator_RejectsTransitionOutsideTable(t *testing.T) {
	o := newOrchestrator(t, newFakeDirectory(), runtime.WithHandler(rogueHandler{}))

	res := say(t, o, "let me in")
	assert.Equal(t, []string{"Sorry, I ran into an error."}, res.Replies)
	assert.Equal(t, domain.RoleGreeting, o.Role())
	assert.False(t, o.Context().IsAuthenticated)
}

func TestOrchestrator_TeardownAbandonsTurn(t *testing.T) {
	dir := newFakeDirectory()
	dir.verifyHang = true
	o := newOrchestrator(t, dir)
	say(t, o, testMobile)

	sessionCtx, endSession := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		endSession()
	}()
	_, err := o.HandleUtterance(sessionCtx, "1234")
	require.ErrorIs(t, err, context.Canceled)

	assert.Zero(t, o.Context().AuthAttempts, "abandoned turn commits nothing")
	assert.Equal(t, domain.RoleAuthenticating, o.Role())
}

func TestOrchestrator_OversizedInputRejected(t *testing.T) {
	o := newOrchestrator(t, newFakeDirectory())

	res := say(t, o, strings.Repeat("5", security.DefaultMaxInputSize+1))
	assert.Equal(t, domain.RoleGreeting, res.Role)
	assert.Empty(t, o.Context().UserMobile)
	assert.Equal(t, []string{"Sorry, I didn't catch that. Could you say it again?"}, res.Replies)
}

func TestOrchestrator_TurnsAreSerialised(t *testing.T) {
	dir := newFakeDirectory()
	o := newOrchestrator(t, dir)
	say(t, o, testMobile)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = o.HandleUtterance(context.Background(), "000")
		}()
	}
	wg.Wait()

	sc := o.Context()
	require.NoError(t, sc.Validate())
	assert.Equal(t, domain.RoleLocked, sc.Role)
	assert.Equal(t, 3, sc.AuthAttempts)
	assert.Equal(t, 3, dir.verifyCount(), "turns after lockout never reach the store")
}

func TestOrchestrator_Hooks(t *testing.T) {
	dir := newFakeDirectory()
	var (
		mu      sync.Mutex
		entered []domain.Role
		left    []domain.Role
		tools   []string
		turns   []string
		blocked int
	)
	hooks := domain.LifecycleHooks{
		OnRoleEnter: func(_ context.Context, e *domain.RoleEvent) { mu.Lock(); entered = append(entered, e.Role); mu.Unlock() },
		OnRoleLeave: func(_ context.Context, e *domain.RoleEvent) { mu.Lock(); left = append(left, e.Role); mu.Unlock() },
		OnToolReturn: func(_ context.Context, e *domain.ToolEvent) {
			mu.Lock()
			tools = append(tools, e.ToolName)
			mu.Unlock()
		},
		OnSecurityViolation: func(context.Context, *domain.SecurityEvent) { mu.Lock(); blocked++; mu.Unlock() },
		OnTurn:              func(_ context.Context, e *domain.TurnEvent) { mu.Lock(); turns = append(turns, e.Outcome); mu.Unlock() },
	}
	o := newOrchestrator(t, dir, runtime.WithLifecycleHooks(hooks))
	say(t, o, testMobile)
	say(t, o, "000")
	say(t, o, testCode)
	say(t, o, "what's my pin")

	assert.Equal(t, []domain.Role{domain.RoleGreeting, domain.RoleAuthenticating, domain.RoleMain}, entered)
	assert.Equal(t, []domain.Role{domain.RoleGreeting, domain.RoleAuthenticating}, left)
	assert.Equal(t, []string{"verify", "verify"}, tools)
	assert.Equal(t, 1, blocked)
	assert.Equal(t, []string{"transition", "verification_failed", "transition", "refused"}, turns)
}

func TestTurnResult_CarriesDiff(t *testing.T) {
	o := newOrchestrator(t, newFakeDirectory())

	res := say(t, o, testMobile)
	require.NotNil(t, res.Changes)
	require.NotNil(t, res.Changes.Role)
	assert.Equal(t, domain.RoleAuthenticating, *res.Changes.Role)
	assert.Equal(t, testMobile, res.Changes.Changes["user_mobile"])
}
