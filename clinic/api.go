package clinic

import (
	"context"
	"time"
)

// ListQuery is the common filter for paged list endpoints. Zero fields are
// omitted from cache keys.
type ListQuery struct {
	Page   int    `json:"page,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Search string `json:"search,omitempty"`
	Status string `json:"status,omitempty"`
	Sort   string `json:"sort,omitempty"`

	// Owner scopes per-user, per-doctor and per-staff appointment views.
	Owner string `json:"owner,omitempty"`
}

// Page is one page of a list endpoint.
type Page[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
	Page  int `json:"page"`
}

type Appointment struct {
	ID        string    `json:"id"`
	Patient   string    `json:"patient"`
	DoctorID  string    `json:"doctorId"`
	Treatment string    `json:"treatment,omitempty"`
	At        time.Time `json:"at"`
	Status    string    `json:"status"`
}

type Doctor struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Specialty string `json:"specialty"`
}

type Medicine struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Stock int    `json:"stock"`
}

type Treatment struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Price int64  `json:"price"`
}

type Blog struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

type Role struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
}

type Permission struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// DashboardStats are the aggregate counters on the admin dashboard.
type DashboardStats struct {
	Appointments int   `json:"appointments"`
	Doctors      int   `json:"doctors"`
	Patients     int   `json:"patients"`
	Revenue      int64 `json:"revenue"`
}

// Collection is the REST surface of one CRUD resource.
type Collection[T any] interface {
	List(ctx context.Context, q ListQuery) (Page[T], error)
	Create(ctx context.Context, item T) (T, error)
	Update(ctx context.Context, item T) (T, error)
	Delete(ctx context.Context, id string) error
}

// AppointmentView selects a scoped appointment listing.
type AppointmentView string

const (
	ViewStaff  AppointmentView = "staff"
	ViewUser   AppointmentView = "user"
	ViewDoctor AppointmentView = "doctor"
)

// API is the backend client. Errors should use the resilience taxonomy
// (*resilience.ServerError for non-2xx responses, *resilience.NetworkError
// for transport failures) so that retries classify them correctly.
type API interface {
	Appointments() Collection[Appointment]
	Doctors() Collection[Doctor]
	Medicines() Collection[Medicine]
	Treatments() Collection[Treatment]
	Blogs() Collection[Blog]
	Roles() Collection[Role]
	Permissions() Collection[Permission]
	Users() Collection[User]

	ListAppointmentsFor(ctx context.Context, view AppointmentView, q ListQuery) (Page[Appointment], error)
	DashboardStats(ctx context.Context) (DashboardStats, error)
}
