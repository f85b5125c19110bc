package service_test

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/unclebandit/mailleopard-backend/internal/config"
	appErrors "github.com/unclebandit/mailleopard-backend/internal/errors"
	"github.com/unclebandit/mailleopard-backend/internal/mailer"
	"github.com/unclebandit/mailleopard-backend/internal/model"
	"github.com/unclebandit/mailleopard-backend/internal/queue"
	"github.com/unclebandit/mailleopard-backend/internal/repository"
	"github.com/unclebandit/mailleopard-backend/internal/service"
)

// memStore backs the mock repositories so campaign, email and contact state stay consistent.
type memStore struct {
	mu        sync.Mutex
	nextID    int
	users     map[int]*model.User
	contacts  map[int]*model.Contact
	campaigns map[int]*model.Campaign
	emails    map[int]*model.Email
	templates map[int]*model.Template
	events    []*model.EmailEvent

	applyCalls int
	applyErr   error
}

func newStore() *memStore {
	return &memStore{
		users:     map[int]*model.User{},
		contacts:  map[int]*model.Contact{},
		campaigns: map[int]*model.Campaign{},
		emails:    map[int]*model.Email{},
		templates: map[int]*model.Template{},
	}
}

func (s *memStore) id() int {
	s.nextID++
	return s.nextID
}

func (s *memStore) addUser(plan model.Plan) *model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := &model.User{ID: s.id(), Email: "owner@example.com", FullName: "Owner", Plan: plan, IsActive: true}
	s.users[u.ID] = u
	return u
}

func (s *memStore) addContacts(userID, n int) []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int, 0, n)
	for i := 0; i < n; i++ {
		c := &model.Contact{
			ID:           s.id(),
			UserID:       userID,
			Status:       model.ContactActive,
			SubscribedAt: time.Now().UTC(),
		}
		c.Email = strings.ToLower("c" + strconv.Itoa(c.ID) + "@example.com")
		c.FirstName = "Contact" + strconv.Itoa(c.ID)
		s.contacts[c.ID] = c
		ids = append(ids, c.ID)
	}
	return ids
}

func (s *memStore) emailsOf(campaignID int) []*model.Email {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Email
	for _, e := range s.emails {
		if e.CampaignID == campaignID {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *memStore) campaign(id int) model.Campaign {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.campaigns[id]
}

func (s *memStore) setStatus(id int, status model.CampaignStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.campaigns[id].Status = status
}

func cloneContact(c *model.Contact) *model.Contact {
	cp := *c
	cp.Tags = append(pq.StringArray(nil), c.Tags...)
	return &cp
}

func hasAllTags(have []string, want []string) bool {
	set := map[string]struct{}{}
	for _, t := range have {
		set[t] = struct{}{}
	}
	for _, t := range want {
		if _, ok := set[t]; !ok {
			return false
		}
	}
	return true
}

// ---- users

type MockUserRepo struct{ s *memStore }

func (m *MockUserRepo) GetByID(ctx context.Context, id int) (*model.User, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	u, ok := m.s.users[id]
	if !ok {
		return nil, appErrors.NewNotFound("user", id)
	}
	cp := *u
	return &cp, nil
}

func (m *MockUserRepo) GetByStripeSubscription(ctx context.Context, subscriptionID string) (*model.User, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, u := range m.s.users {
		if subscriptionID != "" && u.StripeSubscriptionID == subscriptionID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, appErrors.NewNotFound("user with subscription", subscriptionID)
}

func (m *MockUserRepo) UpdatePlan(ctx context.Context, id int, plan model.Plan) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	u, ok := m.s.users[id]
	if !ok {
		return appErrors.NewNotFound("user", id)
	}
	u.Plan = plan
	return nil
}

func (m *MockUserRepo) SetStripeSubscription(ctx context.Context, id int, plan model.Plan, customerID, subscriptionID string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	u, ok := m.s.users[id]
	if !ok {
		return appErrors.NewNotFound("user", id)
	}
	u.Plan = plan
	if customerID != "" {
		u.StripeCustomerID = customerID
	}
	u.StripeSubscriptionID = subscriptionID
	return nil
}

// ---- contacts

type MockContactRepo struct{ s *memStore }

func (m *MockContactRepo) Create(ctx context.Context, c *model.Contact) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, other := range m.s.contacts {
		if other.UserID == c.UserID && strings.EqualFold(other.Email, c.Email) {
			return appErrors.NewBadRequest("contact with email %s already exists", c.Email)
		}
	}
	c.ID = m.s.id()
	c.CreatedAt = time.Now().UTC()
	if c.Status == "" {
		c.Status = model.ContactActive
	}
	m.s.contacts[c.ID] = cloneContact(c)
	return nil
}

func (m *MockContactRepo) GetByID(ctx context.Context, userID, id int) (*model.Contact, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	c, ok := m.s.contacts[id]
	if !ok || c.UserID != userID {
		return nil, appErrors.NewNotFound("contact", id)
	}
	return cloneContact(c), nil
}

func (m *MockContactRepo) GetByEmail(ctx context.Context, userID int, email string) (*model.Contact, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, c := range m.s.contacts {
		if c.UserID == userID && strings.EqualFold(c.Email, email) {
			return cloneContact(c), nil
		}
	}
	return nil, nil
}

func (m *MockContactRepo) Update(ctx context.Context, c *model.Contact) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	old, ok := m.s.contacts[c.ID]
	if !ok || old.UserID != c.UserID {
		return appErrors.NewNotFound("contact", c.ID)
	}
	m.s.contacts[c.ID] = cloneContact(c)
	return nil
}

func (m *MockContactRepo) Delete(ctx context.Context, userID, id int) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	c, ok := m.s.contacts[id]
	if !ok || c.UserID != userID {
		return appErrors.NewNotFound("contact", id)
	}
	delete(m.s.contacts, id)
	return nil
}

func (m *MockContactRepo) matching(userID int, f repository.ContactFilter) []*model.Contact {
	var out []*model.Contact
	for _, c := range m.s.contacts {
		if c.UserID != userID {
			continue
		}
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		if !hasAllTags(c.Tags, f.Tags) {
			continue
		}
		if f.Search != "" && !strings.Contains(strings.ToLower(c.Email+" "+c.FirstName+" "+c.LastName+" "+c.Company), strings.ToLower(f.Search)) {
			continue
		}
		out = append(out, cloneContact(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (m *MockContactRepo) List(ctx context.Context, userID int, f repository.ContactFilter) ([]*model.Contact, int, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	all := m.matching(userID, f)
	if f.Limit <= 0 {
		return all, len(all), nil
	}
	start := min(f.Offset, len(all))
	end := min(start+f.Limit, len(all))
	return all[start:end], len(all), nil
}

func (m *MockContactRepo) Count(ctx context.Context, userID int) (int, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	n := 0
	for _, c := range m.s.contacts {
		if c.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (m *MockContactRepo) ListActive(ctx context.Context, userID int, ids []int, tags []string) ([]*model.Contact, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	wanted := map[int]bool{}
	for _, id := range ids {
		wanted[id] = true
	}
	var out []*model.Contact
	for _, c := range m.s.contacts {
		if c.UserID != userID || c.Status != model.ContactActive {
			continue
		}
		switch {
		case len(ids) > 0:
			if !wanted[c.ID] {
				continue
			}
		case len(tags) > 0:
			if !hasAllTags(c.Tags, tags) {
				continue
			}
		}
		out = append(out, cloneContact(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MockContactRepo) Tags(ctx context.Context, userID int) ([]string, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	set := map[string]struct{}{}
	for _, c := range m.s.contacts {
		if c.UserID == userID {
			for _, t := range c.Tags {
				set[t] = struct{}{}
			}
		}
	}
	out := []string{}
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out, nil
}

func (m *MockContactRepo) BulkUpdate(ctx context.Context, userID int, ids []int, addTags []string, status model.ContactStatus) (int, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	n := 0
	for _, id := range ids {
		c, ok := m.s.contacts[id]
		if !ok || c.UserID != userID {
			continue
		}
		c.MergeTags(addTags)
		if status != "" {
			c.Status = status
		}
		n++
	}
	return n, nil
}

func (m *MockContactRepo) BulkDelete(ctx context.Context, userID int, ids []int) (int, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	n := 0
	for _, id := range ids {
		if c, ok := m.s.contacts[id]; ok && c.UserID == userID {
			delete(m.s.contacts, id)
			n++
		}
	}
	return n, nil
}

// ---- campaigns

type MockCampaignRepo struct{ s *memStore }

func (m *MockCampaignRepo) CreateWithEmails(ctx context.Context, c *model.Campaign, contactIDs []int) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	c.ID = m.s.id()
	c.CreatedAt = time.Now().UTC()
	if c.Status == "" {
		c.Status = model.CampaignDraft
	}
	c.RecipientsCount = len(contactIDs)
	cp := *c
	m.s.campaigns[c.ID] = &cp
	for _, cid := range contactIDs {
		e := &model.Email{ID: m.s.id(), CampaignID: c.ID, ContactID: cid, Status: model.EmailPending, CreatedAt: c.CreatedAt}
		m.s.emails[e.ID] = e
	}
	return nil
}

func (m *MockCampaignRepo) GetByID(ctx context.Context, id int) (*model.Campaign, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	c, ok := m.s.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	cp := *c
	return &cp, nil
}

func (m *MockCampaignRepo) GetForUser(ctx context.Context, userID, id int) (*model.Campaign, error) {
	c, err := m.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.UserID != userID {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	return c, nil
}

func (m *MockCampaignRepo) List(ctx context.Context, userID int, f repository.CampaignFilter) ([]*model.Campaign, int, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var all []*model.Campaign
	for _, c := range m.s.campaigns {
		if c.UserID != userID || (f.Status != "" && c.Status != f.Status) {
			continue
		}
		if f.Search != "" && !strings.Contains(strings.ToLower(c.Name), strings.ToLower(f.Search)) {
			continue
		}
		cp := *c
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	start := min(f.Offset, len(all))
	end := min(start+f.Limit, len(all))
	return all[start:end], len(all), nil
}

func (m *MockCampaignRepo) Update(ctx context.Context, c *model.Campaign) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.campaigns[c.ID]; !ok {
		return appErrors.NewCampaignNotFound(c.ID)
	}
	cp := *c
	m.s.campaigns[c.ID] = &cp
	return nil
}

func (m *MockCampaignRepo) Delete(ctx context.Context, userID, id int) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	c, ok := m.s.campaigns[id]
	if !ok || c.UserID != userID {
		return appErrors.NewCampaignNotFound(id)
	}
	delete(m.s.campaigns, id)
	return nil
}

func (m *MockCampaignRepo) TransitionStatus(ctx context.Context, id int, from []model.CampaignStatus, to model.CampaignStatus) (bool, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	c, ok := m.s.campaigns[id]
	if !ok {
		return false, nil
	}
	for _, f := range from {
		if c.Status == f {
			now := time.Now().UTC()
			c.Status = to
			c.UpdatedAt = &now
			if to == model.CampaignSent {
				c.SentAt = &now
			}
			return true, nil
		}
	}
	return false, nil
}

func (m *MockCampaignRepo) ClaimDueScheduled(ctx context.Context, now time.Time) ([]int, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var ids []int
	for _, c := range m.s.campaigns {
		if c.Status == model.CampaignScheduled && c.ScheduledAt != nil && !c.ScheduledAt.After(now) {
			c.Status = model.CampaignSending
			touched := now
			c.UpdatedAt = &touched
			ids = append(ids, c.ID)
		}
	}
	sort.Ints(ids)
	return ids, nil
}

func (m *MockCampaignRepo) ClaimStalledSending(ctx context.Context, idleSince time.Time) ([]int, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var ids []int
	for _, c := range m.s.campaigns {
		last := c.CreatedAt
		if c.UpdatedAt != nil {
			last = *c.UpdatedAt
		}
		if c.Status == model.CampaignSending && !last.After(idleSince) {
			now := time.Now().UTC()
			c.UpdatedAt = &now
			ids = append(ids, c.ID)
		}
	}
	sort.Ints(ids)
	return ids, nil
}

func (m *MockCampaignRepo) GetCampaignStats(ctx context.Context, campaignID int) (map[string]int, error) {
	stats := map[string]int{"total": 0, "pending": 0, "sent": 0, "failed": 0}
	for _, e := range m.s.emailsOf(campaignID) {
		stats[string(e.Status)]++
		stats["total"]++
	}
	return stats, nil
}

// ---- emails

type MockEmailRepo struct{ s *memStore }

func (m *MockEmailRepo) PendingRecipients(ctx context.Context, campaignID int) ([]model.Recipient, error) {
	var out []model.Recipient
	for _, e := range m.s.emailsOf(campaignID) {
		if e.Status != model.EmailPending {
			continue
		}
		m.s.mu.Lock()
		c := cloneContact(m.s.contacts[e.ContactID])
		m.s.mu.Unlock()
		out = append(out, model.Recipient{EmailID: e.ID, Contact: *c})
	}
	return out, nil
}

func (m *MockEmailRepo) ApplySendResults(ctx context.Context, results []model.SendResult) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if m.s.applyErr != nil {
		return m.s.applyErr
	}
	m.s.applyCalls++
	for _, r := range results {
		e, ok := m.s.emails[r.EmailID]
		if !ok || e.Status != model.EmailPending {
			continue
		}
		e.Status = r.Status()
		if r.Error != "" {
			e.LastError = r.Error
			continue
		}
		mid := r.MessageID
		at := r.At
		e.MessageID = &mid
		e.SentAt = &at
	}
	return nil
}

func (m *MockEmailRepo) GetByID(ctx context.Context, id int) (*model.Email, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	e, ok := m.s.emails[id]
	if !ok {
		return nil, appErrors.NewNotFound("email", id)
	}
	cp := *e
	return &cp, nil
}

func (m *MockEmailRepo) GetByMessageID(ctx context.Context, messageID string) (*model.Email, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, e := range m.s.emails {
		if e.MessageID != nil && *e.MessageID == messageID {
			cp := *e
			return &cp, nil
		}
	}
	return nil, appErrors.NewNotFound("email", messageID)
}

func (m *MockEmailRepo) RecordEvent(ctx context.Context, ev *model.EmailEvent) (*model.EventOutcome, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	e, ok := m.s.emails[ev.EmailID]
	if !ok {
		return nil, appErrors.NewNotFound("email", ev.EmailID)
	}
	out := &model.EventOutcome{EmailID: e.ID, CampaignID: e.CampaignID, ContactID: e.ContactID}
	ev.ID = len(m.s.events) + 1
	m.s.events = append(m.s.events, ev)

	at := ev.CreatedAt
	var ts **time.Time
	c := m.s.campaigns[e.CampaignID]
	var counter *int
	var status model.ContactStatus
	switch ev.EventType {
	case model.EventOpen:
		ts, counter = &e.OpenedAt, &c.OpensCount
		e.OpenCount++
	case model.EventClick:
		ts, counter = &e.ClickedAt, &c.ClicksCount
		e.ClickCount++
	case model.EventUnsubscribe:
		ts, counter, status = &e.UnsubscribedAt, &c.UnsubscribesCount, model.ContactUnsubscribed
	case model.EventBounce:
		ts, counter, status = &e.BouncedAt, &c.BouncesCount, model.ContactBounced
	case model.EventComplaint:
		ts, counter, status = &e.ComplainedAt, &c.ComplaintsCount, model.ContactComplained
	default:
		return nil, errors.New("unknown event type")
	}
	if *ts == nil {
		*ts = &at
		out.First = true
		*counter++
		if status != "" {
			m.s.contacts[e.ContactID].Status = status
		}
	}
	return out, nil
}

// ---- templates

type MockTemplateRepo struct{ s *memStore }

func (m *MockTemplateRepo) add(t *model.Template) *model.Template {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	t.ID = m.s.id()
	cp := *t
	m.s.templates[t.ID] = &cp
	return t
}

func (m *MockTemplateRepo) Create(ctx context.Context, t *model.Template) error {
	m.add(t)
	return nil
}

func (m *MockTemplateRepo) GetVisible(ctx context.Context, userID, id int) (*model.Template, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	t, ok := m.s.templates[id]
	if !ok || !(t.IsDefault || (t.UserID != nil && *t.UserID == userID)) {
		return nil, appErrors.NewNotFound("template", id)
	}
	cp := *t
	return &cp, nil
}

func (m *MockTemplateRepo) List(ctx context.Context, userID int, f repository.TemplateFilter) ([]*model.Template, int, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []*model.Template
	for _, t := range m.s.templates {
		if t.IsDefault || (t.UserID != nil && *t.UserID == userID) {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, len(out), nil
}

func (m *MockTemplateRepo) Update(ctx context.Context, t *model.Template) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	cp := *t
	m.s.templates[t.ID] = &cp
	return nil
}

func (m *MockTemplateRepo) Delete(ctx context.Context, userID, id int) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	delete(m.s.templates, id)
	return nil
}

func (m *MockTemplateRepo) Categories(ctx context.Context, userID int) ([]string, error) {
	return []string{}, nil
}

func (m *MockTemplateRepo) IncrementUsage(ctx context.Context, id int) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if t, ok := m.s.templates[id]; ok {
		t.UsageCount++
	}
	return nil
}

// ---- queue and sender

type MockQueue struct {
	mu        sync.Mutex
	published []any
	err       error
}

func (q *MockQueue) Publish(ctx context.Context, topic string, payload any) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.published = append(q.published, payload)
	return nil
}

func (q *MockQueue) Subscribe(topic string, h queue.Handler) error {
	return nil
}

func (q *MockQueue) Close() error { return nil }

// MockSender delivers through fn, or succeeds with a synthetic id when fn is nil.
type MockSender struct {
	mu   sync.Mutex
	sent []mailer.Message
	fn   func(ctx context.Context, msg mailer.Message) (string, error)
}

func (m *MockSender) Send(ctx context.Context, msg mailer.Message) (string, error) {
	m.mu.Lock()
	m.sent = append(m.sent, msg)
	n := len(m.sent)
	m.mu.Unlock()
	if m.fn != nil {
		return m.fn(ctx, msg)
	}
	return "msg-" + strconv.Itoa(n), nil
}

func (m *MockSender) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// ---- billing

type MockPaymentRepo struct {
	mu       sync.Mutex
	payments map[string]*model.Payment
}

func newPaymentRepo() *MockPaymentRepo {
	return &MockPaymentRepo{payments: map[string]*model.Payment{}}
}

func (m *MockPaymentRepo) Create(ctx context.Context, p *model.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.payments[p.OrderID]; ok {
		return appErrors.NewBadRequest("order %s already exists", p.OrderID)
	}
	p.ID = len(m.payments) + 1
	cp := *p
	m.payments[p.OrderID] = &cp
	return nil
}

func (m *MockPaymentRepo) GetByOrderID(ctx context.Context, orderID string) (*model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[orderID]
	if !ok {
		return nil, appErrors.NewNotFound("payment", orderID)
	}
	cp := *p
	return &cp, nil
}

func (m *MockPaymentRepo) Update(ctx context.Context, p *model.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.payments[p.OrderID] = &cp
	return nil
}

type MockWebhookRepo struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newWebhookRepo() *MockWebhookRepo {
	return &MockWebhookRepo{seen: map[string]bool{}}
}

func (m *MockWebhookRepo) MarkProcessed(ctx context.Context, provider, eventID, eventType string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := provider + "|" + eventID
	if m.seen[key] {
		return false, nil
	}
	m.seen[key] = true
	return true, nil
}

func (m *MockWebhookRepo) Unmark(ctx context.Context, provider, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.seen, provider+"|"+eventID)
	return nil
}

var (
	_ repository.UserRepositoryInterface         = (*MockUserRepo)(nil)
	_ repository.ContactRepositoryInterface      = (*MockContactRepo)(nil)
	_ repository.CampaignRepositoryInterface     = (*MockCampaignRepo)(nil)
	_ repository.EmailRepositoryInterface        = (*MockEmailRepo)(nil)
	_ repository.TemplateRepositoryInterface     = (*MockTemplateRepo)(nil)
	_ repository.PaymentRepositoryInterface      = (*MockPaymentRepo)(nil)
	_ repository.WebhookEventRepositoryInterface = (*MockWebhookRepo)(nil)
	_ mailer.Sender                              = (*MockSender)(nil)
	_ queue.Queue                                = (*MockQueue)(nil)
)

type fixture struct {
	store     *memStore
	users     *MockUserRepo
	contacts  *MockContactRepo
	campaigns *MockCampaignRepo
	emails    *MockEmailRepo
	templates *MockTemplateRepo
	queue     *MockQueue
	sender    *MockSender
}

func newFixture() *fixture {
	s := newStore()
	return &fixture{
		store:     s,
		users:     &MockUserRepo{s: s},
		contacts:  &MockContactRepo{s: s},
		campaigns: &MockCampaignRepo{s: s},
		emails:    &MockEmailRepo{s: s},
		templates: &MockTemplateRepo{s: s},
		queue:     &MockQueue{},
		sender:    &MockSender{},
	}
}

func (f *fixture) campaignService() *service.CampaignService {
	return &service.CampaignService{
		CampaignRepo: f.campaigns,
		ContactRepo:  f.contacts,
		TemplateRepo: f.templates,
		UserRepo:     f.users,
		Queue:        f.queue,
		Sender:       f.sender,
		Plans:        config.DefaultPlans(),
		Log:          zap.NewNop(),
	}
}

func (f *fixture) contactService() *service.ContactService {
	return &service.ContactService{
		ContactRepo: f.contacts,
		UserRepo:    f.users,
		Plans:       config.DefaultPlans(),
		Log:         zap.NewNop(),
	}
}

func (f *fixture) pipeline() *service.SendPipeline {
	return &service.SendPipeline{
		CampaignRepo: f.campaigns,
		EmailRepo:    f.emails,
		Sender:       f.sender,
		Log:          zap.NewNop(),
		BatchSize:    10,
	}
}

// sendingCampaign builds a campaign for n fresh contacts and moves it to sending.
func (f *fixture) sendingCampaign(t *testing.T, userID, n int) *model.Campaign {
	t.Helper()
	ids := f.store.addContacts(userID, n)
	c, err := f.campaignService().Build(context.Background(), userID, service.CampaignInput{
		Name:       "Launch",
		Subject:    "Hi {{first_name}}",
		Content:    "<p>Hello {{first_name}}</p>",
		ContactIDs: ids,
	})
	require.NoError(t, err)
	f.store.setStatus(c.ID, model.CampaignSending)
	return c
}
