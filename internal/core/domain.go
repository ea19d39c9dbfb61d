package core

import (
	"errors"
	"strings"
	"time"
)

const (
	SplitEven         SplitType = "even"
	SplitUneven       SplitType = "uneven"
	SplitProportional SplitType = "proportional"
)

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

type (
	SplitType string

	Role string

	// User is an account referenced by id everywhere else. Accounts are
	// managed by an external collaborator; only identity and role matter here.
	User struct {
		ID       string
		FullName string
		Role     Role
	}

	// Category classifies an expense. A nil OwnerID means the category is
	// global and usable by anyone.
	Category struct {
		ID      string
		Name    string
		OwnerID *string
	}

	Group struct {
		ID        string
		Name      string
		CreatorID string
	}

	// GroupWithMembers is a group resolved together with its member set.
	GroupWithMembers struct {
		Group
		MemberIDs []string
	}

	// Expense is a recorded payment. Immutable once created; splits and
	// settlements are derived from it inside the same transaction.
	Expense struct {
		ID          string
		PayerID     string
		CreatorID   string
		GroupID     *string
		CategoryID  *string
		Amount      Money
		Currency    string
		SplitType   SplitType
		Description string
		CreatedAt   time.Time
	}

	// Split is one participant's owed share of a single expense.
	// For every expense the splits cover each participant exactly once,
	// including the payer, and sum to the expense amount.
	Split struct {
		ID        string
		ExpenseID string
		UserID    string
		Amount    Money
		IsSettled bool
	}

	// Settlement is the current net balance between two users within one
	// group: a single directed creditor-to-debtor edge with positive amount.
	// At most one row exists per unordered user pair per group.
	Settlement struct {
		ID         string
		GroupID    string
		CreditorID string
		DebtorID   string
		Amount     Money
		CreatedAt  time.Time
		UpdatedAt  time.Time
	}

	// Activity is a fire-and-forget audit event consumed by the activity feed.
	Activity struct {
		ID        string
		Type      string
		GroupID   *string
		Metadata  ActivityMetadata
		CreatedAt time.Time
	}

	ActivityMetadata struct {
		Action       string `json:"action"`
		ResourceType string `json:"resourceType"`
		ActorID      string `json:"actorId"`
		TargetID     string `json:"targetId"`
		ActorName    string `json:"actorName"`
		Message      string `json:"msg"`
	}
)

const (
	ActivityExpenseAdded      = "EXPENSE_ADDED"
	ActivitySettlementUpdated = "SETTLEMENT_UPDATED"
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidCurrency  = errors.New("invalid currency code")
	ErrInvalidSplitType = errors.New("invalid split type")
)

// IsValid reports whether t is a known split type.
func (t SplitType) IsValid() bool {
	switch t {
	case SplitEven, SplitUneven, SplitProportional:
		return true
	default:
		return false
	}
}

// IsValid reports whether r is a known role.
func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleAdmin:
		return true
	default:
		return false
	}
}

// UsableBy reports whether the category can be attached to an expense paid by
// payerID: global categories are usable by anyone, owned ones only by their
// owner.
func (c Category) UsableBy(payerID string) bool {
	return c.OwnerID == nil || *c.OwnerID == payerID
}

// HasMember reports whether userID belongs to the group.
func (g GroupWithMembers) HasMember(userID string) bool {
	for _, id := range g.MemberIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func (e Expense) Validate() error {
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if !validCurrency(e.Currency) {
		return ErrInvalidCurrency
	}
	if !e.SplitType.IsValid() {
		return ErrInvalidSplitType
	}
	if e.PayerID == "" {
		return errors.New("missing payer id")
	}
	if len(e.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	return nil
}

func (s Settlement) Validate() error {
	if err := s.Amount.Validate(); err != nil {
		return err
	}
	if s.CreditorID == "" || s.DebtorID == "" {
		return errors.New("missing settlement user id")
	}
	if s.CreditorID == s.DebtorID {
		return errors.New("settlement creditor and debtor must differ")
	}
	return nil
}

// SamePair reports whether the settlement connects users a and b,
// regardless of which side is currently creditor.
func (s Settlement) SamePair(a, b string) bool {
	return (s.CreditorID == a && s.DebtorID == b) ||
		(s.CreditorID == b && s.DebtorID == a)
}

func validCurrency(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// NormalizeCurrency trims and upper-cases a currency code from a request body.
func NormalizeCurrency(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
