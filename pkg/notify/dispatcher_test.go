package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
)

type stubMatches struct {
	pending []models.UserLoanMatch
	marked  [][]string
}

func (s *stubMatches) ListPendingNotification(_ context.Context, limit int) ([]models.UserLoanMatch, error) {
	if len(s.pending) > limit {
		return s.pending[:limit], nil
	}
	return s.pending, nil
}

func (s *stubMatches) MarkNotified(_ context.Context, ids []string) error {
	s.marked = append(s.marked, ids)
	return nil
}

type stubUserGetter struct {
	users map[string]*models.User
}

func (s *stubUserGetter) Get(_ context.Context, id string) (*models.User, error) {
	usr, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s not found", id)
	}
	return usr, nil
}

type stubProductGetter struct {
	products map[string]*models.LoanProduct
	calls    int
}

func (s *stubProductGetter) Get(_ context.Context, id string) (*models.LoanProduct, error) {
	s.calls++
	product, ok := s.products[id]
	if !ok {
		return nil, fmt.Errorf("loan product %s not found", id)
	}
	return product, nil
}

type sentEmail struct {
	to      string
	subject string
	text    string
	html    string
}

type stubSender struct {
	sent   []sentEmail
	errFor map[string]error
}

func (s *stubSender) Send(_ context.Context, to, subject, textBody, htmlBody string) (string, error) {
	if err, ok := s.errFor[to]; ok {
		return "", err
	}
	s.sent = append(s.sent, sentEmail{to: to, subject: subject, text: textBody, html: htmlBody})
	return fmt.Sprintf("msg-%d", len(s.sent)), nil
}

type logFinish struct {
	status  models.ProcessStatus
	details string
	records int
}

type stubLog struct {
	entries  []models.ProcessingLog
	finishes []logFinish
}

func (s *stubLog) Append(_ context.Context, entry *models.ProcessingLog) (*models.ProcessingLog, error) {
	stored := *entry
	stored.ID = fmt.Sprintf("log-%d", len(s.entries)+1)
	s.entries = append(s.entries, stored)
	return &stored, nil
}

func (s *stubLog) FinishWithCount(_ context.Context, _ string, status models.ProcessStatus, details string, records int) error {
	s.finishes = append(s.finishes, logFinish{status: status, details: details, records: records})
	return nil
}

func noopLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func pendingMatch(id, userID, productID string, score float64) models.UserLoanMatch {
	return models.UserLoanMatch{
		ID:        id,
		UserID:    userID,
		ProductID: productID,
		Score:     score,
		Status:    models.EligibilityStatusEligible,
		Reasons:   database.JSONB[[]string]{Data: []string{"Strong credit profile"}},
	}
}

func notifyUserFixture(id, email string) *models.User {
	return &models.User{ID: id, UserID: "ext-" + id, Email: email}
}

func notifyProductFixture(id, name, lender string) *models.LoanProduct {
	maxRate := 23.43
	minAmount := 5000.0
	maxAmount := 100000.0
	minCredit := 680
	return &models.LoanProduct{
		ID:              id,
		ProductName:     name,
		LenderName:      lender,
		InterestRateMin: 8.99,
		InterestRateMax: &maxRate,
		MinLoanAmount:   &minAmount,
		MaxLoanAmount:   &maxAmount,
		MinCreditScore:  &minCredit,
	}
}

func newTestDispatcher(matches *stubMatches, users *stubUserGetter, products *stubProductGetter, sender *stubSender, logs *stubLog) *Dispatcher {
	return NewDispatcher(matches, users, products, sender, logs, noopLogger(), Config{SendDelay: time.Millisecond})
}

func TestRun_SendsGroupedEmailsAndMarksNotified(t *testing.T) {
	matches := &stubMatches{pending: []models.UserLoanMatch{
		pendingMatch("m-1", "u-1", "p-1", 0.72),
		pendingMatch("m-2", "u-1", "p-2", 0.91),
		pendingMatch("m-3", "u-2", "p-1", 0.80),
	}}
	users := &stubUserGetter{users: map[string]*models.User{
		"u-1": notifyUserFixture("u-1", "alice@example.com"),
		"u-2": notifyUserFixture("u-2", "bob@example.com"),
	}}
	products := &stubProductGetter{products: map[string]*models.LoanProduct{
		"p-1": notifyProductFixture("p-1", "SoFi Personal Loan", "SoFi"),
		"p-2": notifyProductFixture("p-2", "Marcus Personal Loan", "Marcus by Goldman Sachs"),
	}}
	sender := &stubSender{}
	logs := &stubLog{}

	dispatcher := newTestDispatcher(matches, users, products, sender, logs)

	result, err := dispatcher.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, result.EmailsSent)
	assert.Equal(t, 2, result.UsersNotified)

	require.Len(t, sender.sent, 2)
	assert.Equal(t, "alice@example.com", sender.sent[0].to)
	assert.Equal(t, "bob@example.com", sender.sent[1].to)

	// Alice's email lists her best match first
	assert.Equal(t, "🏦 2 Personal Loan Matches Found for You", sender.sent[0].subject)
	marcusIdx := strings.Index(sender.sent[0].text, "Marcus Personal Loan")
	sofiIdx := strings.Index(sender.sent[0].text, "SoFi Personal Loan")
	require.GreaterOrEqual(t, marcusIdx, 0)
	require.GreaterOrEqual(t, sofiIdx, 0)
	assert.Less(t, marcusIdx, sofiIdx)

	require.Len(t, matches.marked, 2)
	assert.ElementsMatch(t, []string{"m-1", "m-2"}, matches.marked[0])
	assert.Equal(t, []string{"m-3"}, matches.marked[1])

	require.Len(t, logs.entries, 1)
	assert.Equal(t, models.ProcessTypeNotification, logs.entries[0].ProcessType)
	require.NotNil(t, logs.entries[0].Details)
	assert.Equal(t, "Starting email notification process", *logs.entries[0].Details)

	require.Len(t, logs.finishes, 1)
	assert.Equal(t, models.ProcessStatusCompleted, logs.finishes[0].status)
	assert.Equal(t, "Successfully sent 2 emails to 2 users", logs.finishes[0].details)
	assert.Equal(t, 2, logs.finishes[0].records)
}

func TestRun_NoPendingNotificationsCompletesWithZero(t *testing.T) {
	logs := &stubLog{}
	dispatcher := newTestDispatcher(&stubMatches{}, &stubUserGetter{}, &stubProductGetter{}, &stubSender{}, logs)

	result, err := dispatcher.Run(context.Background())
	require.NoError(t, err)

	assert.Zero(t, result.EmailsSent)
	assert.Zero(t, result.UsersNotified)

	require.Len(t, logs.finishes, 1)
	assert.Equal(t, models.ProcessStatusCompleted, logs.finishes[0].status)
	assert.Equal(t, "No users with unsent notifications found", logs.finishes[0].details)
}

func TestRun_CapsCardsPerEmailButMarksAllPending(t *testing.T) {
	pending := make([]models.UserLoanMatch, 0, 7)
	products := map[string]*models.LoanProduct{}
	for i := 0; i < 7; i++ {
		productID := fmt.Sprintf("p-%d", i)
		pending = append(pending, pendingMatch(fmt.Sprintf("m-%d", i), "u-1", productID, 0.5+float64(i)*0.05))
		products[productID] = notifyProductFixture(productID, fmt.Sprintf("Loan %d", i), "Lender")
	}

	matches := &stubMatches{pending: pending}
	sender := &stubSender{}

	dispatcher := newTestDispatcher(
		matches,
		&stubUserGetter{users: map[string]*models.User{"u-1": notifyUserFixture("u-1", "alice@example.com")}},
		&stubProductGetter{products: products},
		sender,
		&stubLog{},
	)

	result, err := dispatcher.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.EmailsSent)

	require.Len(t, sender.sent, 1)
	assert.Equal(t, 5, strings.Count(sender.sent[0].text, "Lender:"))
	assert.Contains(t, sender.sent[0].subject, "5 Personal Loan Matches")

	// Every pending match is marked so leftovers never dribble out later
	require.Len(t, matches.marked, 1)
	assert.Len(t, matches.marked[0], 7)
}

func TestRun_SendFailureLeavesUserPending(t *testing.T) {
	matches := &stubMatches{pending: []models.UserLoanMatch{
		pendingMatch("m-1", "u-1", "p-1", 0.9),
		pendingMatch("m-2", "u-2", "p-1", 0.8),
	}}
	users := &stubUserGetter{users: map[string]*models.User{
		"u-1": notifyUserFixture("u-1", "alice@example.com"),
		"u-2": notifyUserFixture("u-2", "bob@example.com"),
	}}
	products := &stubProductGetter{products: map[string]*models.LoanProduct{
		"p-1": notifyProductFixture("p-1", "SoFi Personal Loan", "SoFi"),
	}}
	sender := &stubSender{errFor: map[string]error{"alice@example.com": errors.New("throttled")}}
	logs := &stubLog{}

	dispatcher := newTestDispatcher(matches, users, products, sender, logs)

	result, err := dispatcher.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.EmailsSent)
	assert.Equal(t, 1, result.UsersNotified)

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "bob@example.com", sender.sent[0].to)

	require.Len(t, matches.marked, 1)
	assert.Equal(t, []string{"m-2"}, matches.marked[0])

	require.Len(t, logs.finishes, 1)
	assert.Equal(t, models.ProcessStatusCompleted, logs.finishes[0].status)
	assert.Equal(t, "Successfully sent 1 emails to 1 users", logs.finishes[0].details)
}

func TestRun_ProductLookupsAreMemoized(t *testing.T) {
	matches := &stubMatches{pending: []models.UserLoanMatch{
		pendingMatch("m-1", "u-1", "p-1", 0.9),
		pendingMatch("m-2", "u-2", "p-1", 0.8),
		pendingMatch("m-3", "u-3", "p-1", 0.7),
	}}
	users := &stubUserGetter{users: map[string]*models.User{
		"u-1": notifyUserFixture("u-1", "a@example.com"),
		"u-2": notifyUserFixture("u-2", "b@example.com"),
		"u-3": notifyUserFixture("u-3", "c@example.com"),
	}}
	products := &stubProductGetter{products: map[string]*models.LoanProduct{
		"p-1": notifyProductFixture("p-1", "SoFi Personal Loan", "SoFi"),
	}}

	dispatcher := newTestDispatcher(matches, users, products, &stubSender{}, &stubLog{})

	_, err := dispatcher.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, products.calls)
}

func TestRun_CancellationStopsBetweenUsers(t *testing.T) {
	matches := &stubMatches{pending: []models.UserLoanMatch{
		pendingMatch("m-1", "u-1", "p-1", 0.9),
		pendingMatch("m-2", "u-2", "p-1", 0.8),
	}}
	users := &stubUserGetter{users: map[string]*models.User{
		"u-1": notifyUserFixture("u-1", "a@example.com"),
		"u-2": notifyUserFixture("u-2", "b@example.com"),
	}}
	products := &stubProductGetter{products: map[string]*models.LoanProduct{
		"p-1": notifyProductFixture("p-1", "SoFi Personal Loan", "SoFi"),
	}}
	sender := &stubSender{}
	logs := &stubLog{}

	ctx, cancel := context.WithCancel(context.Background())

	dispatcher := NewDispatcher(matches, users, products, sender, logs, noopLogger(), Config{SendDelay: time.Hour})

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := dispatcher.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	// First user was delivered before the cancel, the second never started
	require.Len(t, sender.sent, 1)
	require.Len(t, logs.finishes, 1)
	assert.Equal(t, models.ProcessStatusFailed, logs.finishes[0].status)
}
