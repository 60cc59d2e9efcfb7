package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReferenceKind identifies one of the deduplicated lookup collections.
type ReferenceKind string

const (
	KindUserGroup      ReferenceKind = "user_group"
	KindCurrency       ReferenceKind = "currency"
	KindPublisher      ReferenceKind = "publisher"
	KindPublishPlace   ReferenceKind = "publish_place"
	KindCampusLocation ReferenceKind = "campus_location"
	KindCreator        ReferenceKind = "creator"
	KindItemType       ReferenceKind = "item_type"
	KindUserRole       ReferenceKind = "user_role"
)

// Kinds lists every reference collection a backend must support.
var Kinds = []ReferenceKind{
	KindUserGroup,
	KindCurrency,
	KindPublisher,
	KindPublishPlace,
	KindCampusLocation,
	KindCreator,
	KindItemType,
	KindUserRole,
}

// Reference is a deduplicated lookup entity, keyed by its natural name
// within its kind. Only the attribute matching the kind is meaningful;
// the rest stay at their zero values.
type Reference struct {
	Kind             ReferenceKind
	Name             string
	Position         string
	Symbol           string
	PreventBorrowing bool
	Prefix           string
}

// Attributes carries optional reference attributes for resolve defaults
// and upserts. A nil field means "not specified": resolve-or-create
// applies it only on creation, upsert leaves the stored value untouched.
type Attributes struct {
	Position         *string
	Symbol           *string
	PreventBorrowing *bool
	Prefix           *string
}

// ApplyTo overwrites the specified attributes on ref.
func (a Attributes) ApplyTo(ref *Reference) {
	if a.Position != nil {
		ref.Position = *a.Position
	}
	if a.Symbol != nil {
		ref.Symbol = *a.Symbol
	}
	if a.PreventBorrowing != nil {
		ref.PreventBorrowing = *a.PreventBorrowing
	}
	if a.Prefix != nil {
		ref.Prefix = *a.Prefix
	}
}

// User is a patron. Its natural key is (Name, Group); Group names an
// existing UserGroup reference.
type User struct {
	Name     string
	Group    string
	Email    *string
	Username string
}

// BorrowRecord is the current circulation state of one item. An item has
// at most one active record. DueDate is present exactly when BorrowDate
// is present.
type BorrowRecord struct {
	UserName   string
	GroupName  string
	BorrowDate *time.Time
	DueDate    *time.Time
}

// HeldBy reports whether u is the record's current holder.
func (b *BorrowRecord) HeldBy(u *User) bool {
	return b.UserName == u.Name && b.GroupName == u.Group
}

// Item is a single catalog holding. Accession is the sole identity key;
// re-importing the same accession updates the record in place. Reference
// fields hold the natural name of the referenced entity.
type Item struct {
	Accession       string
	CallNumber      string
	Title           string
	Author          string
	Publisher       string
	PublishPlace    string
	PublicationYear *int
	ReceiptDate     *time.Time
	Currency        string
	Price           decimal.NullDecimal
	Source          string
	CampusLocation  string
	BorrowCurrent   *BorrowRecord
}
