package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/Sushant736/propscholar-monorepo-sub000/internal/domain"
	pfirestore "github.com/Sushant736/propscholar-monorepo-sub000/internal/platform/firestore"
)

// CartRepository reads carts/{userId} and joins each line with its catalog entries.
type CartRepository struct {
	provider *pfirestore.Provider
	carts    *pfirestore.Collection[cartDocument]
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	return &CartRepository{
		provider: provider,
		carts:    pfirestore.NewCollection[cartDocument](provider, cartsCollection),
	}, nil
}

// LoadWithCatalog returns the user's cart. A missing cart document is an empty cart.
func (r *CartRepository) LoadWithCatalog(ctx context.Context, userID string) (domain.Cart, error) {
	if r == nil || r.carts == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.Cart{}, errors.New("user id is required")
	}

	doc, err := r.carts.Get(ctx, userID)
	if err != nil {
		if pfirestore.IsNotFound(err) {
			return domain.Cart{UserID: userID}, nil
		}
		return domain.Cart{}, err
	}

	cart := domain.Cart{UserID: userID, UpdatedAt: doc.Data.UpdatedAt.UTC()}
	if len(doc.Data.Lines) == 0 {
		return cart, nil
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Cart{}, err
	}

	refs := make([]*firestore.DocumentRef, 0, len(doc.Data.Lines)*2)
	for _, line := range doc.Data.Lines {
		productID, variantID := strings.TrimSpace(line.ProductID), strings.TrimSpace(line.VariantID)
		if productID == "" || variantID == "" {
			return domain.Cart{}, fmt.Errorf("cart %s: line is missing product or variant id", userID)
		}
		refs = append(refs,
			client.Collection(productsCollection).Doc(productID),
			variantRef(client, productID, variantID),
		)
	}
	snaps, err := client.GetAll(ctx, refs)
	if err != nil {
		return domain.Cart{}, pfirestore.WrapError("carts.loadCatalog", err)
	}

	cart.Lines = make([]domain.CartLine, 0, len(doc.Data.Lines))
	for i, line := range doc.Data.Lines {
		entry := domain.CartLine{
			ProductID: strings.TrimSpace(line.ProductID),
			VariantID: strings.TrimSpace(line.VariantID),
			Quantity:  line.Quantity,
		}
		if snap := snaps[i*2]; snap != nil && snap.Exists() {
			var product productDocument
			if err := snap.DataTo(&product); err != nil {
				return domain.Cart{}, fmt.Errorf("decode product %s: %w", entry.ProductID, err)
			}
			entry.Product = &domain.Product{ID: entry.ProductID, Name: product.Name, IsActive: product.IsActive}
		}
		if snap := snaps[i*2+1]; snap != nil && snap.Exists() {
			var variant variantDocument
			if err := snap.DataTo(&variant); err != nil {
				return domain.Cart{}, fmt.Errorf("decode variant %s: %w", entry.VariantID, err)
			}
			v := variant.toDomain(entry.ProductID, entry.VariantID)
			entry.Variant = &v
		}
		cart.Lines = append(cart.Lines, entry)
	}
	return cart, nil
}

func emptyCart(now time.Time) cartDocument {
	return cartDocument{Lines: []cartLineDocument{}, UpdatedAt: now}
}

// clearCartInTx empties the cart as part of an enclosing transaction; it needs no read.
func clearCartInTx(tx *firestore.Transaction, client *firestore.Client, userID string, now time.Time) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil
	}
	return tx.Set(client.Collection(cartsCollection).Doc(userID), emptyCart(now))
}
