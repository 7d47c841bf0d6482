package domain

import "time"

// AccountType is the closed set of account kinds. Authorization switches on
// it; there are no per-type account models.
type AccountType string

const (
	AccountBuyer  AccountType = "buyer"
	AccountSeller AccountType = "seller"
	AccountAdmin  AccountType = "admin"
)

// ParseAccountType converts a stored or token value into an AccountType.
func ParseAccountType(s string) (AccountType, bool) {
	switch t := AccountType(s); t {
	case AccountBuyer, AccountSeller, AccountAdmin:
		return t, true
	}
	return "", false
}

// SelfRegistrable reports whether accounts of this type may sign up without an admin.
func (t AccountType) SelfRegistrable() bool {
	return t == AccountBuyer || t == AccountSeller
}

// AccountStatus constants.
type AccountStatus string

const (
	AccountActive    AccountStatus = "active"
	AccountSuspended AccountStatus = "suspended"
)

// Valid reports whether s is a known account status.
func (s AccountStatus) Valid() bool {
	return s == AccountActive || s == AccountSuspended
}

// Account is a registered marketplace user.
type Account struct {
	ID           string        `json:"id"`
	Email        string        `json:"email"`
	PasswordHash string        `json:"-"`
	DisplayName  string        `json:"display_name"`
	Type         AccountType   `json:"account_type"`
	Status       AccountStatus `json:"status"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID   string
	Type AccountType
}

// System is the actor used by scheduled jobs.
var System = Actor{ID: "system", Type: AccountAdmin}

func (a Actor) IsBuyer() bool  { return a.Type == AccountBuyer }
func (a Actor) IsSeller() bool { return a.Type == AccountSeller }
func (a Actor) IsAdmin() bool  { return a.Type == AccountAdmin }
