package services

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/scholarstream/internal/common"
	"github.com/dmitrijs2005/scholarstream/internal/dbx"
	"github.com/dmitrijs2005/scholarstream/internal/server/models"
	"github.com/dmitrijs2005/scholarstream/internal/server/processor"
	"github.com/dmitrijs2005/scholarstream/internal/server/repositories/applications"
	"github.com/dmitrijs2005/scholarstream/internal/server/repositories/payments"
)

// --- application store ---

type fakeApps struct {
	mu   sync.Mutex
	byID map[string]*models.Application
	seq  int

	getErr   error
	markErr  error
	listErr  error
	markHook func()
}

func newFakeApps(apps ...*models.Application) *fakeApps {
	f := &fakeApps{byID: map[string]*models.Application{}}
	for _, a := range apps {
		cp := *a
		if cp.PaymentStatus == "" {
			cp.PaymentStatus = models.PaymentUnpaid
		}
		f.byID[a.ID] = &cp
	}
	return f
}

func (f *fakeApps) Create(ctx context.Context, app *models.Application) (*models.Application, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.byID {
		if a.UserEmail == app.UserEmail && a.ScholarshipID == app.ScholarshipID {
			return nil, common.ErrAlreadyExists
		}
	}
	f.seq++
	if app.ID == "" {
		app.ID = fmt.Sprintf("app-%d", f.seq)
	}
	app.ApplicationStatus = models.ApplicationPending
	app.PaymentStatus = models.PaymentUnpaid
	app.CreatedAt = time.Now()
	cp := *app
	f.byID[app.ID] = &cp
	return app, nil
}

func (f *fakeApps) GetByID(ctx context.Context, id string) (*models.Application, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	a, ok := f.byID[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeApps) ListByUser(ctx context.Context, email string) ([]*models.Application, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []*models.Application
	for _, a := range f.byID {
		if a.UserEmail == email {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeApps) MarkPaid(ctx context.Context, id, trackingID string, paidAt time.Time) (bool, error) {
	if f.markHook != nil {
		f.markHook()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markErr != nil {
		return false, f.markErr
	}
	a, ok := f.byID[id]
	if !ok || a.PaymentStatus != models.PaymentUnpaid {
		return false, nil
	}
	a.PaymentStatus = models.PaymentPaid
	a.TrackingID = trackingID
	t := paidAt
	a.PaidAt = &t
	return true, nil
}

func (f *fakeApps) get(id string) models.Application {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.byID[id]
}

// --- payment ledger ---

type fakeLedger struct {
	mu      sync.Mutex
	byTx    map[string]*models.Payment
	order   []string
	lookups atomic.Int32
	inserts atomic.Int32

	lookupErr error
	insertErr error
	listErr   error
	// onLookup runs before every GetByTransactionID, with its 1-based call number.
	onLookup func(n int32)
	// phantomConflict makes every Insert report a duplicate without storing.
	phantomConflict bool
	// readZone, when set, is the zone GetByTransactionID reports PaidAt in,
	// the way pgx hands back timestamptz in the session's zone.
	readZone *time.Location
	// afterList runs once ListByPayer has taken its snapshot.
	afterList func()
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{byTx: map[string]*models.Payment{}}
}

func (f *fakeLedger) Insert(ctx context.Context, p *models.Payment) error {
	f.inserts.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	if _, ok := f.byTx[p.TransactionID]; ok || f.phantomConflict {
		return common.ErrAlreadyExists
	}
	if p.ID == "" {
		p.ID = "P-" + p.TransactionID
	}
	cp := *p
	f.byTx[p.TransactionID] = &cp
	f.order = append(f.order, p.TransactionID)
	return nil
}

func (f *fakeLedger) GetByTransactionID(ctx context.Context, txID string) (*models.Payment, error) {
	n := f.lookups.Add(1)
	if f.onLookup != nil {
		f.onLookup(n)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	p, ok := f.byTx[txID]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *p
	if f.readZone != nil {
		cp.PaidAt = cp.PaidAt.In(f.readZone)
	}
	return &cp, nil
}

func (f *fakeLedger) ListByPayer(ctx context.Context, email string) ([]*models.Payment, error) {
	out, err := f.filter(func(p *models.Payment) bool { return p.PayerEmail == email })
	if f.afterList != nil {
		f.afterList()
	}
	return out, err
}

func (f *fakeLedger) ListByApplication(ctx context.Context, appID string) ([]*models.Payment, error) {
	return f.filter(func(p *models.Payment) bool { return p.ApplicationID == appID })
}

func (f *fakeLedger) filter(keep func(*models.Payment) bool) ([]*models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []*models.Payment
	for _, tx := range f.order {
		if p, ok := f.byTx[tx]; ok && keep(p) {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeLedger) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byTx)
}

// --- repository manager ---

type fakeRepoManager struct {
	apps   *fakeApps
	ledger *fakeLedger
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Applications(dbx.DBTX) applications.Repository {
	return m.apps
}
func (m *fakeRepoManager) Payments(dbx.DBTX) payments.Repository { return m.ledger }

// --- processor ---

type fakeGateway struct {
	mu       sync.Mutex
	sessions map[string]*models.CheckoutSession

	retrieveErr error
	retrieves   atomic.Int32

	created   []processor.CreateSessionRequest
	createErr error
	// sawDeadline records whether CreateSession/RetrieveSession got a bounded ctx.
	sawDeadline atomic.Bool
}

func newFakeGateway(sessions ...*models.CheckoutSession) *fakeGateway {
	g := &fakeGateway{sessions: map[string]*models.CheckoutSession{}}
	for _, s := range sessions {
		g.sessions[s.ID] = s
	}
	return g
}

func (g *fakeGateway) CreateSession(ctx context.Context, req processor.CreateSessionRequest) (*models.CheckoutSession, error) {
	if _, ok := ctx.Deadline(); ok {
		g.sawDeadline.Store(true)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.created = append(g.created, req)
	id := "cs_new_" + req.Metadata[common.MetadataApplicationID]
	return &models.CheckoutSession{ID: id, URL: "https://checkout.test/" + id, Status: "open", PaymentStatus: models.SessionUnpaid}, nil
}

func (g *fakeGateway) RetrieveSession(ctx context.Context, id string) (*models.CheckoutSession, error) {
	g.retrieves.Add(1)
	if _, ok := ctx.Deadline(); ok {
		g.sawDeadline.Store(true)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.retrieveErr != nil {
		return nil, g.retrieveErr
	}
	s, ok := g.sessions[id]
	if !ok {
		return nil, common.ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (g *fakeGateway) ParseWebhook([]byte, string) (*processor.WebhookEvent, error) {
	return nil, common.Invalid("not supported by fake")
}

// --- cache and events ---

type fakeCache struct {
	mu          sync.Mutex
	data        map[string][]*models.Payment
	versions    map[string]int64
	gets        int
	sets        int
	invalidated []string
	err         error
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: map[string][]*models.Payment{}, versions: map[string]int64{}}
}

func cacheKey(email string, version int64) string {
	return fmt.Sprintf("%s#%d", email, version)
}

func (c *fakeCache) Get(ctx context.Context, email string) ([]*models.Payment, int64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	if c.err != nil {
		return nil, 0, false, c.err
	}
	version := c.versions[email]
	v, ok := c.data[cacheKey(email, version)]
	return v, version, ok, nil
}

func (c *fakeCache) Set(ctx context.Context, email string, version int64, p []*models.Payment, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	if c.err != nil {
		return c.err
	}
	c.data[cacheKey(email, version)] = p
	return nil
}

func (c *fakeCache) Invalidate(ctx context.Context, email string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, email)
	delete(c.data, cacheKey(email, c.versions[email]))
	c.versions[email]++
	return c.err
}

type fakePublisher struct {
	mu        sync.Mutex
	published []*models.Payment
	err       error
}

func (p *fakePublisher) PaymentRecorded(ctx context.Context, pay *models.Payment) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, pay)
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}
