package domain

type Hotel struct {
	ID        string
	Name      string
	Timezone  string
	Capacity  int
	Currency  string
	BasePrice float64 // current published price, input to the pricing collaborator
}

type Role string

const (
	RoleManager Role = "manager"
	RoleAnalyst Role = "analyst"
)

type User struct {
	ID      string
	Email   string // globally unique
	Role    Role
	HotelID string
}
