package firestore

import (
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/Sushant736/propscholar-monorepo-sub000/internal/domain"
	"github.com/Sushant736/propscholar-monorepo-sub000/internal/repositories"
)

type stockPlanEntry struct {
	ref       *firestore.DocumentRef
	variantID string
	quantity  int
	current   int
	exists    bool
}

func variantRef(client *firestore.Client, productID, variantID string) *firestore.DocumentRef {
	return client.Collection(productsCollection).Doc(productID).Collection(variantsCollection).Doc(variantID)
}

// planStockDecrement reads the current counters for lines inside tx. Lines for the same
// variant are merged. It performs reads only so it can precede the transaction's writes.
func planStockDecrement(tx *firestore.Transaction, client *firestore.Client, lines []domain.StockLine) ([]stockPlanEntry, error) {
	index := make(map[string]int, len(lines))
	plan := make([]stockPlanEntry, 0, len(lines))
	for _, line := range lines {
		productID := strings.TrimSpace(line.ProductID)
		variantID := strings.TrimSpace(line.VariantID)
		if productID == "" || variantID == "" {
			return nil, repositories.NewStockError(repositories.StockErrorVariantNotFound, variantID, "product and variant ids are required", nil)
		}
		if line.Quantity <= 0 {
			continue
		}
		key := productID + "/" + variantID
		if i, ok := index[key]; ok {
			plan[i].quantity += line.Quantity
			continue
		}
		index[key] = len(plan)
		plan = append(plan, stockPlanEntry{
			ref:       variantRef(client, productID, variantID),
			variantID: variantID,
			quantity:  line.Quantity,
		})
	}
	if len(plan) == 0 {
		return nil, nil
	}

	refs := make([]*firestore.DocumentRef, len(plan))
	for i := range plan {
		refs[i] = plan[i].ref
	}
	snaps, err := tx.GetAll(refs)
	if err != nil {
		return nil, err
	}
	for i, snap := range snaps {
		if snap == nil || !snap.Exists() {
			continue
		}
		var doc variantDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode variant %s: %w", plan[i].variantID, err)
		}
		plan[i].current = doc.Stock
		plan[i].exists = true
	}
	return plan, nil
}

// applyStockDecrement writes the new counters, clamping at zero. Missing variants are skipped.
func applyStockDecrement(tx *firestore.Transaction, plan []stockPlanEntry, now time.Time) error {
	for _, entry := range plan {
		if !entry.exists {
			continue
		}
		next := entry.current - entry.quantity
		if next < 0 {
			next = 0
		}
		if err := tx.Update(entry.ref, []firestore.Update{
			{Path: "stock", Value: next},
			{Path: "updatedAt", Value: now},
		}); err != nil {
			return err
		}
	}
	return nil
}
