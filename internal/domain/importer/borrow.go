package importer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"catalog-migrator/internal/domain/catalog"
	"catalog-migrator/internal/pkg/apperrors"
)

// BorrowPeriod is the loan term added to a borrow date to get the due
// date.
const BorrowPeriod = 14 * 24 * time.Hour

// SkipReason classifies why a circulation row could not be applied.
type SkipReason string

const (
	SkipItemNotFound    SkipReason = "item_not_found"
	SkipUserNotFound    SkipReason = "user_not_found"
	SkipAlreadyBorrowed SkipReason = "already_borrowed"
)

// SkipError reports a circulation row that was refused. It is a
// row-level outcome, not a failure: the orchestrator records it as a
// warning and moves on.
type SkipError struct {
	Reason    SkipReason
	Accession string
	Title     string
	Borrower  string
	Holder    string
}

func (e *SkipError) Error() string {
	switch e.Reason {
	case SkipUserNotFound:
		return fmt.Sprintf("skipping %s - %q, borrowed by %s: user does not exist", e.Accession, e.Title, e.Borrower)
	case SkipAlreadyBorrowed:
		return fmt.Sprintf("skipping %s - %q, borrowed by %s: item already borrowed by %s", e.Accession, e.Title, e.Borrower, e.Holder)
	default:
		return fmt.Sprintf("skipping %s - %q, borrowed by %s: item record does not exist", e.Accession, e.Title, e.Borrower)
	}
}

// SplitBorrower splits the circulation export's "User Name, GroupName"
// field. User names may themselves contain commas, so the group is
// always the last comma-separated segment and everything before it,
// rejoined, is the user name.
func SplitBorrower(userID string) (name, group string) {
	parts := strings.Split(strings.TrimSpace(userID), ",")
	group = strings.TrimSpace(parts[len(parts)-1])
	name = strings.TrimSpace(strings.Join(parts[:len(parts)-1], ","))
	return name, group
}

// BorrowReconciler merges "currently borrowed" rows into item
// circulation state.
type BorrowReconciler struct {
	store  catalog.Store
	router *AccessionRouter
	warn   warnFunc
}

func NewBorrowReconciler(store catalog.Store, router *AccessionRouter, warn warnFunc) *BorrowReconciler {
	if warn == nil {
		warn = func(string, ...any) {}
	}
	return &BorrowReconciler{store: store, router: router, warn: warn}
}

// Reconcile applies one circulation row. It returns a *SkipError when
// the row must be refused (item missing, borrower missing, or the item
// is already held by someone else); circulation state is never
// overwritten across a borrower mismatch. A borrow date that fails to
// parse degrades to an absent date with a warning; the record is still
// persisted.
func (r *BorrowReconciler) Reconcile(ctx context.Context, row Row) error {
	accession, err := r.router.Route(ctx, strings.TrimSpace(row["Category"]), strings.TrimSpace(row["Accession"]))
	if err != nil {
		return err
	}

	item, err := r.store.GetItem(ctx, accession)
	if errors.Is(err, apperrors.ErrNotFound) {
		return &SkipError{Reason: SkipItemNotFound, Accession: accession, Title: row["Title"], Borrower: row["UserName"]}
	}
	if err != nil {
		return fmt.Errorf("looking up item %s: %w", accession, err)
	}

	user, err := r.resolveBorrower(ctx, row["UserName"])
	if errors.Is(err, apperrors.ErrNotFound) {
		return &SkipError{Reason: SkipUserNotFound, Accession: item.Accession, Title: item.Title, Borrower: row["UserName"]}
	}
	if err != nil {
		return err
	}

	if current := item.BorrowCurrent; current != nil {
		if !current.HeldBy(user) {
			return &SkipError{
				Reason:    SkipAlreadyBorrowed,
				Accession: item.Accession,
				Title:     item.Title,
				Borrower:  row["UserName"],
				Holder:    current.UserName,
			}
		}
	} else {
		item.BorrowCurrent = &catalog.BorrowRecord{}
	}

	record := item.BorrowCurrent
	record.UserName = user.Name
	record.GroupName = user.Group

	rawDate := strings.TrimSpace(row["Date Borrowed"])
	if borrowed := ParseDate(rawDate, BorrowDateLayouts); borrowed != nil {
		due := borrowed.Add(BorrowPeriod)
		record.BorrowDate = borrowed
		record.DueDate = &due
	} else {
		r.warn("unset borrow date for %s - %q: %q is not a valid date", item.Accession, item.Title, rawDate)
	}

	if err := r.store.PutItem(ctx, item); err != nil {
		return fmt.Errorf("saving item %s: %w", item.Accession, err)
	}
	return nil
}

// resolveBorrower looks up the user named by a circulation row. Both
// the group and the user must already exist; this path never creates.
func (r *BorrowReconciler) resolveBorrower(ctx context.Context, userID string) (*catalog.User, error) {
	name, group := SplitBorrower(userID)

	groupRef, err := r.store.LookupReference(ctx, catalog.KindUserGroup, group)
	if err != nil {
		return nil, err
	}
	return r.store.GetUser(ctx, name, groupRef.Name)
}
