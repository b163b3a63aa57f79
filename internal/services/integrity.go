package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"moneta/internal/core"
	"moneta/internal/docstore"
)

// IntegrityReport summarizes what the verify pass found. The cascades in this
// system are multi-document and non-atomic, so a crash mid-sequence can leave
// orphan association rows or half-regenerated recurring groups; the verify
// pass is the documented repair path for those windows.
type IntegrityReport struct {
	TransactionsScanned    int
	AssociationsScanned    int
	OrphanAssociations     int
	UnknownTagAssociations int
	InconsistentGroups     []core.GroupID
	RepairedAssociations   int
}

// tagResolver is what the verify pass needs from the taxonomy.
type tagResolver interface {
	TagByID(id core.TagID) (core.Tag, bool)
}

// VerifyIntegrity scans transactions and associations concurrently and
// cross-checks them. With repair set, association rows pointing at missing
// transactions or unknown tags are deleted.
func VerifyIntegrity(ctx context.Context, store docstore.Store, taxonomy tagResolver, repair bool) (IntegrityReport, error) {
	var (
		report       IntegrityReport
		transactions []core.Transaction
		associations []docstore.Document
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		transactions, err = NewTransactionRepo(store).All(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		associations, err = store.Query(gctx, docstore.CollectionAssociations, docstore.Query{})
		if err != nil {
			return fmt.Errorf("query associations: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return IntegrityReport{}, err
	}

	report.TransactionsScanned = len(transactions)
	report.AssociationsScanned = len(associations)

	known := make(map[core.TxnID]struct{}, len(transactions))
	groups := make(map[core.GroupID][]core.Transaction)
	for _, t := range transactions {
		known[t.ID] = struct{}{}
		if t.IsRecurring() {
			groups[t.RecurringID] = append(groups[t.RecurringID], t)
		}
	}

	for _, doc := range associations {
		txnID := core.TxnID(doc.String("transaction_id"))
		tagID := core.TagID(doc.String("tag_id"))

		var broken bool
		if _, ok := known[txnID]; !ok {
			report.OrphanAssociations++
			broken = true
		}
		if _, ok := taxonomy.TagByID(tagID); !ok {
			report.UnknownTagAssociations++
			broken = true
		}
		if broken && repair {
			id := string(txnID) + "/" + string(tagID)
			if err := store.Delete(ctx, docstore.CollectionAssociations, id); err != nil {
				return report, fmt.Errorf("repair association %s: %w", id, err)
			}
			report.RepairedAssociations++
		}
	}

	for groupID, members := range groups {
		if !groupConsistent(members) {
			report.InconsistentGroups = append(report.InconsistentGroups, groupID)
		}
	}
	sort.Slice(report.InconsistentGroups, func(i, j int) bool {
		return report.InconsistentGroups[i] < report.InconsistentGroups[j]
	})

	slog.InfoContext(ctx, "Integrity verify pass complete",
		"transactions", report.TransactionsScanned,
		"associations", report.AssociationsScanned,
		"orphan_associations", report.OrphanAssociations,
		"unknown_tag_associations", report.UnknownTagAssociations,
		"inconsistent_groups", len(report.InconsistentGroups),
		"repaired", report.RepairedAssociations)
	return report, nil
}

// groupConsistent checks the homogeneity invariant: members share amount,
// type and frequency, and the member count matches the anchor's repeats.
func groupConsistent(members []core.Transaction) bool {
	anchor := members[0]
	for _, m := range members[1:] {
		if m.Amount != anchor.Amount || m.Type != anchor.Type || m.Frequency != anchor.Frequency {
			return false
		}
	}
	return len(members) == anchor.Frequency.Repeats
}
