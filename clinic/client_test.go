package clinic

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonwraymond/querysync/health"
	"github.com/jonwraymond/querysync/key"
	"github.com/jonwraymond/querysync/policy"
	"github.com/jonwraymond/querysync/query"
	"github.com/jonwraymond/querysync/resilience"
)

// memCollection is an in-memory Collection keyed by id.
type memCollection[T any] struct {
	mu    sync.Mutex
	items []T
	id    func(*T) *string
	lists atomic.Int32
	fail  error
}

func newMem[T any](id func(*T) *string, items ...T) *memCollection[T] {
	return &memCollection[T]{items: items, id: id}
}

func (m *memCollection[T]) List(ctx context.Context, q ListQuery) (Page[T], error) {
	m.lists.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return Page[T]{}, m.fail
	}
	return Page[T]{Items: append([]T(nil), m.items...), Total: len(m.items), Page: q.Page}, nil
}

func (m *memCollection[T]) Create(ctx context.Context, item T) (T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	*m.id(&item) = strconv.Itoa(len(m.items) + 1)
	m.items = append(m.items, item)
	return item, nil
}

func (m *memCollection[T]) Update(ctx context.Context, item T) (T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.items {
		if *m.id(&m.items[i]) == *m.id(&item) {
			m.items[i] = item
			return item, nil
		}
	}
	return item, &resilience.ServerError{Status: 404}
}

func (m *memCollection[T]) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.items {
		if *m.id(&m.items[i]) == id {
			m.items = append(m.items[:i], m.items[i+1:]...)
			return nil
		}
	}
	return &resilience.ServerError{Status: 404}
}

type fakeAPI struct {
	appointments *memCollection[Appointment]
	doctors      *memCollection[Doctor]
	medicines    *memCollection[Medicine]
	treatments   *memCollection[Treatment]
	blogs        *memCollection[Blog]
	roles        *memCollection[Role]
	permissions  *memCollection[Permission]
	users        *memCollection[User]

	scoped atomic.Int32
	stats  atomic.Int32
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		appointments: newMem(func(a *Appointment) *string { return &a.ID },
			Appointment{ID: "1", Patient: "Ana", DoctorID: "1", Status: "upcoming"}),
		doctors:     newMem(func(d *Doctor) *string { return &d.ID }, Doctor{ID: "1", Name: "Dr. Grey"}),
		medicines:   newMem(func(m *Medicine) *string { return &m.ID }),
		treatments:  newMem(func(t *Treatment) *string { return &t.ID }),
		blogs:       newMem(func(b *Blog) *string { return &b.ID }),
		roles:       newMem(func(r *Role) *string { return &r.ID }, Role{ID: "1", Name: "admin"}),
		permissions: newMem(func(p *Permission) *string { return &p.ID }),
		users:       newMem(func(u *User) *string { return &u.ID }),
	}
}

func (f *fakeAPI) Appointments() Collection[Appointment] { return f.appointments }
func (f *fakeAPI) Doctors() Collection[Doctor]           { return f.doctors }
func (f *fakeAPI) Medicines() Collection[Medicine]       { return f.medicines }
func (f *fakeAPI) Treatments() Collection[Treatment]     { return f.treatments }
func (f *fakeAPI) Blogs() Collection[Blog]               { return f.blogs }
func (f *fakeAPI) Roles() Collection[Role]               { return f.roles }
func (f *fakeAPI) Permissions() Collection[Permission]   { return f.permissions }
func (f *fakeAPI) Users() Collection[User]               { return f.users }

func (f *fakeAPI) ListAppointmentsFor(ctx context.Context, view AppointmentView, q ListQuery) (Page[Appointment], error) {
	f.scoped.Add(1)
	return f.appointments.List(ctx, q)
}

func (f *fakeAPI) DashboardStats(ctx context.Context) (DashboardStats, error) {
	n := f.stats.Add(1)
	return DashboardStats{Appointments: int(n)}, nil
}

func newTestClient(t *testing.T, api *fakeAPI) *Client {
	t.Helper()
	c, err := NewClient(Config{
		API: api,
		Query: query.Config{
			Retry: resilience.RetryConfig{InitialDelay: time.Millisecond, MaxDelay: time.Millisecond},
		},
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestNewClient_RequiresAPI(t *testing.T) {
	if _, err := NewClient(Config{}); !errors.Is(err, ErrNilAPI) {
		t.Errorf("NewClient() error = %v, want ErrNilAPI", err)
	}
}

func TestTable_CoversEveryMutation(t *testing.T) {
	reg := policy.NewRegistry(policy.Default())
	if err := NewResources(newFakeAPI()).Register(reg); err != nil {
		t.Fatal(err)
	}
	table := Table()
	if err := table.Validate(reg); err != nil {
		t.Fatalf("Table().Validate() = %v", err)
	}

	if got := len(table.Kinds()); got != 24 {
		t.Errorf("kinds = %d, want 24", got)
	}

	tests := []struct {
		kind string
		want []string
	}{
		{"appointment.create", []string{ResAppointments, ResStaffAppointments, ResUserAppointments, ResDoctorAppointments, ResDashboardStats}},
		{"treatment.update", []string{ResTreatments, ResDashboardStats}},
		{"role.delete", []string{ResRoles, ResPermissions}},
		{"permission.create", []string{ResRoles, ResPermissions}},
		{"blog.update", []string{ResBlogs}},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			got, ok := table.Prefixes(tt.kind)
			if !ok || len(got) != len(tt.want) {
				t.Fatalf("Prefixes(%q) = %v", tt.kind, got)
			}
			for i, r := range tt.want {
				if !got[i].Equal(key.Prefix(r)) {
					t.Errorf("prefix %d = %s, want %s", i, got[i], r)
				}
			}
		})
	}
}

func TestResources_Policies(t *testing.T) {
	c := newTestClient(t, newFakeAPI())
	reg := c.Cache().Policies()

	if p, _ := reg.Resolve(ResRoles); p.TTL != policy.Reference().TTL {
		t.Errorf("roles TTL = %v, want reference TTL", p.TTL)
	}
	if p, _ := reg.Resolve(ResDashboardStats); p.RefetchInterval == 0 {
		t.Error("dashboard stats should be polled")
	}
	if p, ok := reg.Resolve(ResBlogs); !ok || p.TTL != 0 {
		t.Errorf("blogs policy = %+v, %v, want registered default", p, ok)
	}
}

func TestCreateAppointment_RefreshesListings(t *testing.T) {
	api := newFakeAPI()
	c := newTestClient(t, api)
	ctx := context.Background()

	first, err := query.Fetch(ctx, c.Cache(), c.Resources.Appointments, ListQuery{Page: 1})
	if err != nil || len(first.Items) != 1 {
		t.Fatalf("Fetch() = %+v, %v", first, err)
	}
	if _, err := query.Fetch(ctx, c.Cache(), c.Resources.StaffAppointments, ListQuery{Page: 1}); err != nil {
		t.Fatal(err)
	}
	if _, err := query.Fetch(ctx, c.Cache(), c.Resources.Appointments, ListQuery{Page: 1}); err != nil {
		t.Fatal(err)
	}
	if api.appointments.lists.Load() != 2 {
		t.Fatalf("lists = %d before mutation, want 2", api.appointments.lists.Load())
	}

	created, err := c.Mutations.Appointments.Create.Mutate(ctx, Appointment{Patient: "Ben", DoctorID: "1"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if created.ID != "2" {
		t.Errorf("created ID = %q", created.ID)
	}

	after, err := query.Fetch(ctx, c.Cache(), c.Resources.Appointments, ListQuery{Page: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(after.Items) != 2 {
		t.Errorf("list after create = %+v", after.Items)
	}
	staff, _ := c.Cache().Peek(key.Must(ResStaffAppointments, ListQuery{Page: 1}))
	if staff.IsFresh(time.Now()) {
		t.Error("staff listing not invalidated")
	}
}

func TestRoleUpdate_InvalidatesPermissions(t *testing.T) {
	api := newFakeAPI()
	c := newTestClient(t, api)
	ctx := context.Background()

	if _, err := query.Fetch(ctx, c.Cache(), c.Resources.Permissions, ListQuery{}); err != nil {
		t.Fatal(err)
	}
	if _, err := query.Fetch(ctx, c.Cache(), c.Resources.Doctors, ListQuery{}); err != nil {
		t.Fatal(err)
	}

	if _, err := c.Mutations.Roles.Update.Mutate(ctx, Role{ID: "1", Name: "superadmin"}); err != nil {
		t.Fatal(err)
	}

	if e, _ := c.Cache().Peek(key.Prefix(ResPermissions)); e.IsFresh(time.Now()) {
		t.Error("permissions still fresh after role update")
	}
	if e, _ := c.Cache().Peek(key.Prefix(ResDoctors)); e.Invalidated {
		t.Error("doctors invalidated by role update")
	}
}

func TestDelete_NotFoundSkipsInvalidation(t *testing.T) {
	api := newFakeAPI()
	c := newTestClient(t, api)
	ctx := context.Background()

	if _, err := query.Fetch(ctx, c.Cache(), c.Resources.Doctors, ListQuery{}); err != nil {
		t.Fatal(err)
	}
	_, err := c.Mutations.Doctors.Delete.Mutate(ctx, "99")
	if resilience.StatusOf(err) != 404 {
		t.Fatalf("Delete() error = %v, want 404", err)
	}
	if e, _ := c.Cache().Peek(key.Prefix(ResDoctors)); e.Invalidated {
		t.Error("failed delete invalidated doctors")
	}
}

func TestDashboard_Prefetch(t *testing.T) {
	api := newFakeAPI()
	c := newTestClient(t, api)

	if err := c.Dashboard(context.Background()); err != nil {
		t.Fatalf("Dashboard() error = %v", err)
	}
	stats, ok := query.Peek(c.Cache(), c.Resources.DashboardStats, struct{}{})
	if !ok || stats.Appointments != 1 {
		t.Errorf("stats = %+v, %v", stats, ok)
	}
	if _, ok := query.Peek(c.Cache(), c.Resources.Doctors, ListQuery{Page: 1}); !ok {
		t.Error("doctors page 1 not prefetched")
	}
}

func TestDashboard_PropagatesError(t *testing.T) {
	api := newFakeAPI()
	api.doctors.fail = &resilience.ServerError{Status: 403, Message: "forbidden"}
	c := newTestClient(t, api)

	if err := c.Dashboard(context.Background()); resilience.StatusOf(err) != 403 {
		t.Errorf("Dashboard() error = %v, want 403", err)
	}
}

func TestHealthChecker(t *testing.T) {
	api := newFakeAPI()
	api.blogs.fail = &resilience.ServerError{Status: 404}
	c := newTestClient(t, api)
	ctx := context.Background()

	checker := c.HealthChecker()
	if checker.Name() != "clinic-cache" {
		t.Errorf("Name() = %q", checker.Name())
	}
	if r := checker.Check(ctx); r.Status != health.StatusHealthy {
		t.Errorf("empty cache = %v", r.Status)
	}

	if _, err := query.Fetch(ctx, c.Cache(), c.Resources.Doctors, ListQuery{}); err != nil {
		t.Fatal(err)
	}
	if _, err := query.Fetch(ctx, c.Cache(), c.Resources.Blogs, ListQuery{}); err == nil {
		t.Fatal("blogs fetch should fail")
	}
	if r := checker.Check(ctx); r.Status != health.StatusDegraded {
		t.Errorf("half failing = %v (%v), want degraded", r.Status, r.Details)
	}

	_ = c.Close()
	if r := checker.Check(ctx); r.Status != health.StatusUnhealthy {
		t.Errorf("closed = %v, want unhealthy", r.Status)
	}
}
