package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/gorelikserver/scada-sms/internal/alarm_service/domain"
	"github.com/gorelikserver/scada-sms/internal/alarm_service/provider"
	"github.com/gorelikserver/scada-sms/internal/alarm_service/queue"
)

// --- Mocks ---

type MockSMSProvider struct {
	mock.Mock
}

func (m *MockSMSProvider) Send(ctx context.Context, details provider.SendRequestDetails) (*provider.SendResponseDetails, error) {
	args := m.Called(ctx, details)
	var resp *provider.SendResponseDetails
	if r := args.Get(0); r != nil {
		resp = r.(*provider.SendResponseDetails)
	}
	return resp, args.Error(1)
}

func (m *MockSMSProvider) GetName() string { return "mock_test" }

type MockAuditRepository struct {
	mock.Mock
	mu      sync.Mutex
	records []*domain.AuditRecord
}

func (m *MockAuditRepository) Append(ctx context.Context, record *domain.AuditRecord) error {
	args := m.Called(ctx, record)
	if args.Error(0) == nil {
		m.mu.Lock()
		m.records = append(m.records, record)
		m.mu.Unlock()
	}
	return args.Error(0)
}

func (m *MockAuditRepository) ListByJob(ctx context.Context, jobID string) ([]*domain.AuditRecord, error) {
	args := m.Called(ctx, jobID)
	if r := args.Get(0); r != nil {
		return r.([]*domain.AuditRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAuditRepository) byPhone() map[string]*domain.AuditRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]*domain.AuditRecord, len(m.records))
	for _, r := range m.records {
		out[r.PhoneNumber] = r
	}
	return out
}

type MockJobQueue struct {
	mock.Mock
}

func (m *MockJobQueue) Enqueue(ctx context.Context, description string, groupID int, restrictedDay *bool) (string, error) {
	args := m.Called(ctx, description, groupID, restrictedDay)
	return args.String(0), args.Error(1)
}

func (m *MockJobQueue) DequeueNext(ctx context.Context) (*domain.AlarmJob, error) {
	args := m.Called(ctx)
	if j := args.Get(0); j != nil {
		return j.(*domain.AlarmJob), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockJobQueue) RenewClaim(ctx context.Context, id, token string) error {
	return m.Called(ctx, id, token).Error(0)
}

func (m *MockJobQueue) MarkCompleted(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockJobQueue) MarkFailed(ctx context.Context, id string, errorText string) error {
	return m.Called(ctx, id, errorText).Error(0)
}

func (m *MockJobQueue) Get(ctx context.Context, id string) (*domain.AlarmJob, error) {
	args := m.Called(ctx, id)
	if j := args.Get(0); j != nil {
		return j.(*domain.AlarmJob), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockJobQueue) List(ctx context.Context, status domain.JobStatus) ([]*domain.AlarmJob, error) {
	args := m.Called(ctx, status)
	if j := args.Get(0); j != nil {
		return j.([]*domain.AlarmJob), args.Error(1)
	}
	return nil, args.Error(1)
}

// fakeDirectory filters an in-memory group the way the SQL query does.
type fakeDirectory struct {
	members map[int][]domain.Recipient
	err     error
}

func (f *fakeDirectory) GetRecipients(_ context.Context, groupID int, restrictedOnly bool) ([]domain.Recipient, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.Recipient
	for _, r := range f.members[groupID] {
		if !r.SMSEnabled || (restrictedOnly && !r.WorksRestrictedDays) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

type fakeOracle struct {
	restricted bool
	mu         sync.Mutex
	calls      int
}

func (f *fakeOracle) IsRestrictedDay(context.Context, time.Time) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.restricted
}

type recordingPublisher struct {
	mu       sync.Mutex
	outcomes []JobOutcome
}

func (p *recordingPublisher) PublishOutcome(_ context.Context, o JobOutcome) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.outcomes = append(p.outcomes, o)
	return nil
}

type fakeLease struct {
	held     bool
	released bool
}

func (l *fakeLease) Acquire(context.Context) (func(context.Context) error, error) {
	if l.held {
		return nil, domain.ErrDispatchInProgress
	}
	return func(context.Context) error {
		l.released = true
		return nil
	}, nil
}

// --- Fixtures ---

var (
	alice = domain.Recipient{UserID: 1, UserName: "A", PhoneNumber: "+972500000001", SMSEnabled: true}
	bob   = domain.Recipient{UserID: 2, UserName: "B", PhoneNumber: "+972500000002", SMSEnabled: true, WorksRestrictedDays: true}
	carol = domain.Recipient{UserID: 3, UserName: "C", PhoneNumber: "+972500000003", SMSEnabled: false, WorksRestrictedDays: true}
)

type dispatchFixture struct {
	queue    *queue.FileQueue
	sender   *MockSMSProvider
	audit    *MockAuditRepository
	oracle   *fakeOracle
	dir      *fakeDirectory
	resolver *RecipientResolver
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newDispatchFixture(t *testing.T) *dispatchFixture {
	t.Helper()
	q, err := queue.NewFileQueue(queue.Config{Dir: t.TempDir()}, testLogger())
	require.NoError(t, err)

	f := &dispatchFixture{
		queue:  q,
		sender: new(MockSMSProvider),
		audit:  new(MockAuditRepository),
		oracle: &fakeOracle{},
		dir:    &fakeDirectory{members: map[int][]domain.Recipient{10: {alice, bob, carol}}},
	}
	f.resolver = NewRecipientResolver(f.dir, f.oracle, testLogger())
	return f
}

func (f *dispatchFixture) dispatcher(cfg DispatcherConfig, opts ...DispatcherOption) *Dispatcher {
	return NewDispatcher(f.queue, f.resolver, f.sender, f.audit, testLogger(), cfg, opts...)
}

func sentTo(phone string) interface{} {
	return mock.MatchedBy(func(d provider.SendRequestDetails) bool { return d.PhoneNumber == phone })
}

func sentOK(status string) *provider.SendResponseDetails {
	return &provider.SendResponseDetails{GatewayStatus: status, RawResponse: `{"status":"` + status + `"}`, StatusCode: 200}
}

// --- Tests ---

func TestDispatcher_RunOnce_AllRecipientsSucceed(t *testing.T) {
	ctx := context.Background()
	f := newDispatchFixture(t)

	id, err := f.queue.Enqueue(ctx, "Reservoir level critical", 10, nil)
	require.NoError(t, err)

	f.sender.On("Send", mock.Anything, sentTo(alice.PhoneNumber)).Return(sentOK("SENT"), nil).Once()
	f.sender.On("Send", mock.Anything, sentTo(bob.PhoneNumber)).Return(sentOK("SENT"), nil).Once()
	f.audit.On("Append", mock.Anything, mock.Anything).Return(nil)

	summary, err := f.dispatcher(DispatcherConfig{}).RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, RunSummary{JobsProcessed: 1, JobsCompleted: 1, Deliveries: 2}, summary)

	job, err := f.queue.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, job.Status)
	assert.NotNil(t, job.CompletedAt)

	audits := f.audit.byPhone()
	require.Len(t, audits, 2)
	for _, rec := range audits {
		assert.Equal(t, id, rec.JobID)
		assert.Equal(t, domain.DeliverySuccess, rec.Status)
		assert.Equal(t, "SENT", rec.GatewayStatus)
		assert.Equal(t, "Reservoir level critical", rec.Description)
	}
	f.sender.AssertExpectations(t)
}

func TestDispatcher_RunOnce_RestrictedDayOnlyNotifiesRestrictedWorkers(t *testing.T) {
	ctx := context.Background()
	f := newDispatchFixture(t)
	f.oracle.restricted = true

	id, err := f.queue.Enqueue(ctx, "Chlorine dosing fault", 10, nil)
	require.NoError(t, err)

	f.sender.On("Send", mock.Anything, sentTo(bob.PhoneNumber)).Return(sentOK("DELIVERED"), nil).Once()
	f.audit.On("Append", mock.Anything, mock.Anything).Return(nil)

	summary, err := f.dispatcher(DispatcherConfig{}).RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Deliveries)

	f.sender.AssertNumberOfCalls(t, "Send", 1)
	f.sender.AssertNotCalled(t, "Send", mock.Anything, sentTo(alice.PhoneNumber))
	assert.Equal(t, 1, f.oracle.calls)

	job, err := f.queue.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, job.Status)
}

func TestDispatcher_RunOnce_GatewayTimeoutFailsJobWithFullAudit(t *testing.T) {
	ctx := context.Background()
	f := newDispatchFixture(t)

	id, err := f.queue.Enqueue(ctx, "Pump 2 tripped", 10, nil)
	require.NoError(t, err)

	timeoutErr := errors.New("gateway request failed: context deadline exceeded (Client.Timeout exceeded while awaiting headers)")
	f.sender.On("Send", mock.Anything, sentTo(alice.PhoneNumber)).Return(nil, timeoutErr).Once()
	f.sender.On("Send", mock.Anything, sentTo(bob.PhoneNumber)).Return(sentOK("SENT"), nil).Once()
	f.audit.On("Append", mock.Anything, mock.Anything).Return(nil)

	summary, err := f.dispatcher(DispatcherConfig{}).RunOnce(ctx)
	require.NoError(t, err, "delivery failures never escape RunOnce")
	assert.Equal(t, RunSummary{JobsProcessed: 1, JobsFailed: 1, Deliveries: 2, DeliveryFailures: 1}, summary)

	audits := f.audit.byPhone()
	require.Len(t, audits, 2)
	assert.Equal(t, domain.DeliveryFailed, audits[alice.PhoneNumber].Status)
	assert.Contains(t, audits[alice.PhoneNumber].Response, "deadline exceeded")
	assert.Equal(t, domain.DeliverySuccess, audits[bob.PhoneNumber].Status)

	job, err := f.queue.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, job.Status)
	require.NotNil(t, job.Error)
	assert.Equal(t, "1 of 2 recipients failed", *job.Error)
}

func TestDispatcher_RunOnce_GatewayRejectionKeepsGatewayStatus(t *testing.T) {
	ctx := context.Background()
	f := newDispatchFixture(t)
	f.dir.members[10] = []domain.Recipient{alice}

	_, err := f.queue.Enqueue(ctx, "Door forced", 10, nil)
	require.NoError(t, err)

	f.sender.On("Send", mock.Anything, mock.Anything).
		Return(&provider.SendResponseDetails{GatewayStatus: "HTTP_503", RawResponse: "maintenance", StatusCode: 503},
			errors.New("gateway returned status 503: maintenance")).Once()
	f.audit.On("Append", mock.Anything, mock.Anything).Return(nil)

	_, err = f.dispatcher(DispatcherConfig{}).RunOnce(ctx)
	require.NoError(t, err)

	rec := f.audit.byPhone()[alice.PhoneNumber]
	require.NotNil(t, rec)
	assert.Equal(t, domain.DeliveryFailed, rec.Status)
	assert.Equal(t, "HTTP_503", rec.GatewayStatus)
	assert.Contains(t, rec.Response, "503")
}

func TestDispatcher_RunOnce_EmptyRecipientsCompletesJob(t *testing.T) {
	ctx := context.Background()
	f := newDispatchFixture(t)

	id, err := f.queue.Enqueue(ctx, "Unknown group alarm", 404, nil)
	require.NoError(t, err)

	summary, err := f.dispatcher(DispatcherConfig{}).RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, RunSummary{JobsProcessed: 1, JobsCompleted: 1}, summary)

	job, err := f.queue.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, job.Status)
	f.sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	f.audit.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
}

func TestDispatcher_RunOnce_OverrideBypassesCalendar(t *testing.T) {
	ctx := context.Background()

	t.Run("OverrideFalseOnRestrictedDay", func(t *testing.T) {
		f := newDispatchFixture(t)
		f.oracle.restricted = true
		no := false

		_, err := f.queue.Enqueue(ctx, "Override off", 10, &no)
		require.NoError(t, err)
		f.sender.On("Send", mock.Anything, mock.Anything).Return(sentOK("SENT"), nil)
		f.audit.On("Append", mock.Anything, mock.Anything).Return(nil)

		_, err = f.dispatcher(DispatcherConfig{}).RunOnce(ctx)
		require.NoError(t, err)
		f.sender.AssertNumberOfCalls(t, "Send", 2)
		assert.Zero(t, f.oracle.calls)
	})

	t.Run("OverrideTrueOnOrdinaryDay", func(t *testing.T) {
		f := newDispatchFixture(t)
		yes := true

		_, err := f.queue.Enqueue(ctx, "Override on", 10, &yes)
		require.NoError(t, err)
		f.sender.On("Send", mock.Anything, sentTo(bob.PhoneNumber)).Return(sentOK("SENT"), nil).Once()
		f.audit.On("Append", mock.Anything, mock.Anything).Return(nil)

		_, err = f.dispatcher(DispatcherConfig{}).RunOnce(ctx)
		require.NoError(t, err)
		f.sender.AssertNumberOfCalls(t, "Send", 1)
		assert.Zero(t, f.oracle.calls)
	})
}

func TestDispatcher_RunOnce_ResolutionErrorFailsJob(t *testing.T) {
	ctx := context.Background()
	f := newDispatchFixture(t)
	f.dir.err = errors.New("directory unavailable")

	failing, err := f.queue.Enqueue(ctx, "First", 10, nil)
	require.NoError(t, err)

	summary, err := f.dispatcher(DispatcherConfig{}).RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.JobsFailed)

	job, err := f.queue.Get(ctx, failing)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, job.Status)
	require.NotNil(t, job.Error)
	assert.Contains(t, *job.Error, "directory unavailable")
}

func TestDispatcher_RunOnce_AuditFailureFailsRecipient(t *testing.T) {
	ctx := context.Background()
	f := newDispatchFixture(t)

	id, err := f.queue.Enqueue(ctx, "Audit down", 10, nil)
	require.NoError(t, err)

	f.sender.On("Send", mock.Anything, mock.Anything).Return(sentOK("SENT"), nil)
	f.audit.On("Append", mock.Anything, mock.MatchedBy(func(r *domain.AuditRecord) bool { return r.RecipientID == alice.UserID })).
		Return(errors.New("insert failed"))
	f.audit.On("Append", mock.Anything, mock.MatchedBy(func(r *domain.AuditRecord) bool { return r.RecipientID == bob.UserID })).
		Return(nil)

	summary, err := f.dispatcher(DispatcherConfig{}).RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.DeliveryFailures)

	job, err := f.queue.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, job.Status)
	assert.Equal(t, "1 of 2 recipients failed", *job.Error)
}

func TestDispatcher_RunOnce_ProcessesOldestFirstAndDrains(t *testing.T) {
	ctx := context.Background()
	f := newDispatchFixture(t)
	f.dir.members[1] = []domain.Recipient{alice}
	f.dir.members[2] = []domain.Recipient{bob}

	first, err := f.queue.Enqueue(ctx, "first", 1, nil)
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	second, err := f.queue.Enqueue(ctx, "second", 2, nil)
	require.NoError(t, err)

	var order []string
	var mu sync.Mutex
	f.sender.On("Send", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			mu.Lock()
			order = append(order, args.Get(1).(provider.SendRequestDetails).JobID)
			mu.Unlock()
		}).
		Return(sentOK("SENT"), nil)
	f.audit.On("Append", mock.Anything, mock.Anything).Return(nil)

	summary, err := f.dispatcher(DispatcherConfig{}).RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.JobsProcessed)
	assert.Equal(t, []string{first, second}, order)

	pending, err := f.queue.List(ctx, domain.StatusPending)
	require.NoError(t, err)
	assert.Empty(t, pending)

	again, err := f.dispatcher(DispatcherConfig{}).RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, again.JobsProcessed, "terminal jobs are never processed again")
}

func TestDispatcher_RunOnce_ConcurrentSendsAuditEveryRecipient(t *testing.T) {
	ctx := context.Background()
	f := newDispatchFixture(t)

	var members []domain.Recipient
	for i := 1; i <= 12; i++ {
		members = append(members, domain.Recipient{UserID: 100 + i, PhoneNumber: "+97250" + string(rune('a'+i)), SMSEnabled: true})
	}
	f.dir.members[10] = members

	_, err := f.queue.Enqueue(ctx, "Fan out", 10, nil)
	require.NoError(t, err)
	f.sender.On("Send", mock.Anything, mock.Anything).Return(sentOK("SENT"), nil)
	f.audit.On("Append", mock.Anything, mock.Anything).Return(nil)

	summary, err := f.dispatcher(DispatcherConfig{Concurrency: 4}).RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 12, summary.Deliveries)
	assert.Len(t, f.audit.byPhone(), 12)
	f.audit.AssertNumberOfCalls(t, "Append", 12)
}

func TestDispatcher_RunOnce_PublishesOutcome(t *testing.T) {
	ctx := context.Background()
	f := newDispatchFixture(t)
	publisher := &recordingPublisher{}

	id, err := f.queue.Enqueue(ctx, "Published", 10, nil)
	require.NoError(t, err)
	f.sender.On("Send", mock.Anything, sentTo(alice.PhoneNumber)).Return(nil, errors.New("boom"))
	f.sender.On("Send", mock.Anything, sentTo(bob.PhoneNumber)).Return(sentOK("SENT"), nil)
	f.audit.On("Append", mock.Anything, mock.Anything).Return(nil)

	_, err = f.dispatcher(DispatcherConfig{}, WithOutcomePublisher(publisher)).RunOnce(ctx)
	require.NoError(t, err)

	require.Len(t, publisher.outcomes, 1)
	outcome := publisher.outcomes[0]
	assert.Equal(t, id, outcome.JobID)
	assert.Equal(t, domain.StatusFailed, outcome.Status)
	assert.Equal(t, 2, outcome.Recipients)
	assert.Equal(t, 1, outcome.Failed)
	assert.Equal(t, "1 of 2 recipients failed", outcome.Error)
}

func TestDispatcher_RunOnce_StopsWhenClaimIsTakenOver(t *testing.T) {
	ctx := context.Background()
	f := newDispatchFixture(t)
	rival, err := queue.NewFileQueue(queue.Config{Dir: f.queue.Dir(), StaleClaimAfter: time.Millisecond}, testLogger())
	require.NoError(t, err)

	id, err := f.queue.Enqueue(ctx, "Pump station flooding", 10, nil)
	require.NoError(t, err)

	var (
		rivalJob *domain.AlarmJob
		rivalErr error
	)
	f.sender.On("Send", mock.Anything, sentTo(alice.PhoneNumber)).Return(sentOK("SENT"), nil).Once().
		Run(func(mock.Arguments) {
			time.Sleep(5 * time.Millisecond)
			rivalJob, rivalErr = rival.DequeueNext(ctx)
		})
	f.audit.On("Append", mock.Anything, mock.Anything).Return(nil)

	summary, err := f.dispatcher(DispatcherConfig{}).RunOnce(ctx)
	require.NoError(t, err)
	require.NoError(t, rivalErr)
	require.NotNil(t, rivalJob)
	assert.Equal(t, id, rivalJob.ID)

	assert.Equal(t, RunSummary{JobsProcessed: 1, Deliveries: 1, ClaimsLost: 1}, summary)
	f.sender.AssertNotCalled(t, "Send", mock.Anything, sentTo(bob.PhoneNumber))
	assert.Len(t, f.audit.byPhone(), 1)

	job, err := f.queue.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, job.Status, "the job belongs to the new owner and is left for it to finalize")
	assert.Equal(t, rivalJob.ClaimToken, job.ClaimToken)
}

func TestDispatcher_RunOnce_RenewsClaimBeforeEachSend(t *testing.T) {
	ctx := context.Background()
	f := newDispatchFixture(t)

	id, err := f.queue.Enqueue(ctx, "Turbidity alarm", 10, nil)
	require.NoError(t, err)

	var versions []int64
	record := func(mock.Arguments) {
		job, getErr := f.queue.Get(ctx, id)
		if assert.NoError(t, getErr) {
			versions = append(versions, job.Version)
		}
	}
	f.sender.On("Send", mock.Anything, sentTo(alice.PhoneNumber)).Return(sentOK("SENT"), nil).Once().Run(record)
	f.sender.On("Send", mock.Anything, sentTo(bob.PhoneNumber)).Return(sentOK("SENT"), nil).Once().Run(record)
	f.audit.On("Append", mock.Anything, mock.Anything).Return(nil)

	summary, err := f.dispatcher(DispatcherConfig{}).RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.JobsCompleted)

	// enqueue v1, claim v2, one renewal per recipient
	assert.Equal(t, []int64{3, 4}, versions)
}

func TestDispatcher_RunOnce_Lease(t *testing.T) {
	ctx := context.Background()

	t.Run("Held", func(t *testing.T) {
		q := new(MockJobQueue)
		d := NewDispatcher(q, nil, new(MockSMSProvider), new(MockAuditRepository), testLogger(), DispatcherConfig{},
			WithLease(&fakeLease{held: true}))

		_, err := d.RunOnce(ctx)
		assert.ErrorIs(t, err, domain.ErrDispatchInProgress)
		q.AssertNotCalled(t, "DequeueNext", mock.Anything)
	})

	t.Run("ReleasedAfterRun", func(t *testing.T) {
		q := new(MockJobQueue)
		q.On("DequeueNext", mock.Anything).Return(nil, nil).Once()
		lease := &fakeLease{}
		d := NewDispatcher(q, nil, new(MockSMSProvider), new(MockAuditRepository), testLogger(), DispatcherConfig{}, WithLease(lease))

		_, err := d.RunOnce(ctx)
		require.NoError(t, err)
		assert.True(t, lease.released)
	})
}

func TestDispatcher_RunOnce_QueueErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("LockContentionAbortsRun", func(t *testing.T) {
		q := new(MockJobQueue)
		q.On("DequeueNext", mock.Anything).Return(nil, domain.ErrLockContention).Once()
		d := NewDispatcher(q, nil, new(MockSMSProvider), new(MockAuditRepository), testLogger(), DispatcherConfig{})

		_, err := d.RunOnce(ctx)
		assert.ErrorIs(t, err, domain.ErrLockContention)
	})

	t.Run("SameJobTwiceStopsRun", func(t *testing.T) {
		q := new(MockJobQueue)
		job := &domain.AlarmJob{ID: "0190a1b2-0000-7000-8000-000000000009", GroupID: 404, Description: "x", Status: domain.StatusProcessing}
		q.On("DequeueNext", mock.Anything).Return(job, nil).Twice()
		q.On("MarkCompleted", mock.Anything, job.ID).Return(nil).Once()

		resolver := NewRecipientResolver(&fakeDirectory{}, &fakeOracle{}, testLogger())
		d := NewDispatcher(q, resolver, new(MockSMSProvider), new(MockAuditRepository), testLogger(), DispatcherConfig{})

		summary, err := d.RunOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, summary.JobsProcessed)
		q.AssertExpectations(t)
	})

	t.Run("FinalizeErrorIsCounted", func(t *testing.T) {
		q := new(MockJobQueue)
		job := &domain.AlarmJob{ID: "0190a1b2-0000-7000-8000-00000000000a", GroupID: 404, Description: "x", Status: domain.StatusProcessing}
		q.On("DequeueNext", mock.Anything).Return(job, nil).Once()
		q.On("DequeueNext", mock.Anything).Return(nil, nil).Once()
		q.On("MarkCompleted", mock.Anything, job.ID).Return(domain.ErrLockContention).Once()

		resolver := NewRecipientResolver(&fakeDirectory{}, &fakeOracle{}, testLogger())
		d := NewDispatcher(q, resolver, new(MockSMSProvider), new(MockAuditRepository), testLogger(), DispatcherConfig{})

		summary, err := d.RunOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, summary.FinalizeErrors)
		assert.Zero(t, summary.JobsCompleted)
	})

	t.Run("CancelledContext", func(t *testing.T) {
		q := new(MockJobQueue)
		d := NewDispatcher(q, nil, new(MockSMSProvider), new(MockAuditRepository), testLogger(), DispatcherConfig{})
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		_, err := d.RunOnce(cctx)
		assert.ErrorIs(t, err, context.Canceled)
		q.AssertNotCalled(t, "DequeueNext", mock.Anything)
	})
}
