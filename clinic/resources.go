package clinic

import (
	"context"

	"github.com/jonwraymond/querysync/key"
	"github.com/jonwraymond/querysync/policy"
	"github.com/jonwraymond/querysync/query"
)

// Resource names.
const (
	ResAppointments       = "appointments"
	ResStaffAppointments  = "appointments-staff"
	ResUserAppointments   = "appointments-user"
	ResDoctorAppointments = "appointments-doctor"
	ResDoctors            = "doctors"
	ResMedicines          = "medicines"
	ResTreatments         = "treatments"
	ResBlogs              = "blogs"
	ResRoles              = "roles"
	ResPermissions        = "permissions"
	ResUsers              = "users"
	ResDashboardStats     = "dashboard-stats"
)

// Resources holds the read descriptors of the clinic backend.
type Resources struct {
	Appointments       query.Resource[Page[Appointment], ListQuery]
	StaffAppointments  query.Resource[Page[Appointment], ListQuery]
	UserAppointments   query.Resource[Page[Appointment], ListQuery]
	DoctorAppointments query.Resource[Page[Appointment], ListQuery]
	Doctors            query.Resource[Page[Doctor], ListQuery]
	Medicines          query.Resource[Page[Medicine], ListQuery]
	Treatments         query.Resource[Page[Treatment], ListQuery]
	Blogs              query.Resource[Page[Blog], ListQuery]
	Roles              query.Resource[Page[Role], ListQuery]
	Permissions        query.Resource[Page[Permission], ListQuery]
	Users              query.Resource[Page[User], ListQuery]
	DashboardStats     query.Resource[DashboardStats, struct{}]
}

// NewResources builds the descriptors over api.
func NewResources(api API) Resources {
	live := policy.Live()
	reference := policy.Reference()

	return Resources{
		Appointments: query.Resource[Page[Appointment], ListQuery]{
			Name:   ResAppointments,
			Fetch:  api.Appointments().List,
			Policy: &live,
		},
		StaffAppointments:  scoped(api, ResStaffAppointments, ViewStaff, &live),
		UserAppointments:   scoped(api, ResUserAppointments, ViewUser, &live),
		DoctorAppointments: scoped(api, ResDoctorAppointments, ViewDoctor, &live),
		Doctors:            query.Resource[Page[Doctor], ListQuery]{Name: ResDoctors, Fetch: api.Doctors().List},
		Medicines:          query.Resource[Page[Medicine], ListQuery]{Name: ResMedicines, Fetch: api.Medicines().List},
		Treatments:         query.Resource[Page[Treatment], ListQuery]{Name: ResTreatments, Fetch: api.Treatments().List},
		Blogs:              query.Resource[Page[Blog], ListQuery]{Name: ResBlogs, Fetch: api.Blogs().List},
		Roles: query.Resource[Page[Role], ListQuery]{
			Name:   ResRoles,
			Fetch:  api.Roles().List,
			Policy: &reference,
		},
		Permissions: query.Resource[Page[Permission], ListQuery]{
			Name:   ResPermissions,
			Fetch:  api.Permissions().List,
			Policy: &reference,
		},
		Users: query.Resource[Page[User], ListQuery]{Name: ResUsers, Fetch: api.Users().List},
		DashboardStats: query.Resource[DashboardStats, struct{}]{
			Name: ResDashboardStats,
			Fetch: func(ctx context.Context, _ struct{}) (DashboardStats, error) {
				return api.DashboardStats(ctx)
			},
			Policy: &live,
		},
	}
}

func scoped(api API, name string, view AppointmentView, p *policy.Policy) query.Resource[Page[Appointment], ListQuery] {
	return query.Resource[Page[Appointment], ListQuery]{
		Name: name,
		Fetch: func(ctx context.Context, q ListQuery) (Page[Appointment], error) {
			return api.ListAppointmentsFor(ctx, view, q)
		},
		Policy: p,
	}
}

// Register binds every resource's policy in reg.
func (r Resources) Register(reg *policy.Registry) error {
	for _, register := range []func(*policy.Registry) error{
		r.Appointments.Register,
		r.StaffAppointments.Register,
		r.UserAppointments.Register,
		r.DoctorAppointments.Register,
		r.Doctors.Register,
		r.Medicines.Register,
		r.Treatments.Register,
		r.Blogs.Register,
		r.Roles.Register,
		r.Permissions.Register,
		r.Users.Register,
		r.DashboardStats.Register,
	} {
		if err := register(reg); err != nil {
			return err
		}
	}
	return nil
}

// Table returns the invalidation table of the clinic mutations.
//
// Appointment writes touch every appointment listing and the dashboard.
// Role and permission writes invalidate each other because roles embed
// their permission names.
func Table() query.Table {
	appointments := prefixes(ResAppointments, ResStaffAppointments, ResUserAppointments,
		ResDoctorAppointments, ResDashboardStats)
	doctors := prefixes(ResDoctors, ResDoctorAppointments, ResDashboardStats)
	medicines := prefixes(ResMedicines)
	treatments := prefixes(ResTreatments, ResDashboardStats)
	blogs := prefixes(ResBlogs)
	access := prefixes(ResRoles, ResPermissions)
	users := prefixes(ResUsers, ResDashboardStats)

	t := query.Table{}
	crud(t, "appointment", appointments)
	crud(t, "doctor", doctors)
	crud(t, "medicine", medicines)
	crud(t, "treatment", treatments)
	crud(t, "blog", blogs)
	crud(t, "role", access)
	crud(t, "permission", access)
	crud(t, "user", users)
	return t
}

func crud(t query.Table, entity string, ks []key.Key) {
	for _, op := range []string{"create", "update", "delete"} {
		t[entity+"."+op] = ks
	}
}

func prefixes(resources ...string) []key.Key {
	out := make([]key.Key, len(resources))
	for i, r := range resources {
		out[i] = key.Prefix(r)
	}
	return out
}
