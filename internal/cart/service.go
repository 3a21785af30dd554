package cart

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/avolk/go_checkout/internal/catalog"
	"github.com/avolk/go_checkout/internal/inventory"
	"github.com/avolk/go_checkout/internal/pricing"
	"golang.org/x/sync/singleflight"
)

type Service struct {
	repo    Repository
	cache   Cache
	catalog catalog.Catalog
	ledger  inventory.Ledger
	pricing pricing.Config
	sfg     singleflight.Group // Prevents cache stampede
}

func NewService(repo Repository, cache Cache, cat catalog.Catalog, ledger inventory.Ledger, cfg pricing.Config) *Service {
	return &Service{
		repo:    repo,
		cache:   cache,
		catalog: cat,
		ledger:  ledger,
		pricing: cfg,
	}
}

// FindOrCreate returns the customer's cart, materializing an empty one on
// first access. Safe under concurrent first-access: the repository upserts.
func (s *Service) FindOrCreate(ctx context.Context, customerID string) (*Cart, error) {
	return s.repo.FindOrCreate(ctx, customerID)
}

// Get serves reads through the cache. A missing cart reads as an empty one;
// nothing is persisted until the first add.
func (s *Service) Get(ctx context.Context, customerID string) (*Cart, error) {
	v, err, _ := s.sfg.Do(customerID, func() (interface{}, error) {
		c, err := s.cache.Get(ctx, customerID)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			log.Printf("cart cache get error: %v", err) // log cache error but continue
		}

		c, errGet := s.repo.Get(ctx, customerID)
		if errors.Is(errGet, ErrCartNotFound) {
			now := time.Now()
			return &Cart{
				CustomerID:   customerID,
				Items:        nil,
				LastActivity: now,
				CreatedAt:    now,
				UpdatedAt:    now,
			}, nil
		}
		if errGet != nil {
			return nil, errGet
		}

		go func() {
			if errSet := s.cache.Set(context.Background(), customerID, c); errSet != nil {
				log.Printf("cart cache set error: %v", errSet)
			}
		}()

		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Cart), nil
}

// AddItem merges into an existing (product, variant) line or appends a new
// one with name/sku/price captured from the catalog now.
func (s *Service) AddItem(ctx context.Context, customerID string, productID int64, qty int, variant map[string]string) (*Cart, error) {
	if qty < 1 || qty > MaxItemQuantity {
		return nil, ErrInvalidQuantity
	}

	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up product %d: %w", productID, err)
	}
	if !product.IsActive {
		return nil, ErrProductInactive
	}

	c, err := s.repo.FindOrCreate(ctx, customerID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	key := VariantKey(productID, variant)
	merged := false
	for i := range c.Items {
		if c.Items[i].Key() != key {
			continue
		}
		if c.Items[i].Quantity+qty > MaxItemQuantity {
			return nil, ErrQuantityExceeded
		}
		c.Items[i].Quantity += qty
		c.Items[i].UpdatedAt = now
		merged = true
		break
	}

	if !merged {
		c.Items = append(c.Items, CartItem{
			ProductID: productID,
			SKU:       product.SKU,
			Name:      product.Name,
			UnitPrice: product.Price,
			Quantity:  qty,
			Variant:   variant,
			AddedAt:   now,
			UpdatedAt: now,
		})
	}

	if err := s.persist(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// UpdateItemQuantity sets a line's quantity; zero or less removes the line.
func (s *Service) UpdateItemQuantity(ctx context.Context, customerID string, productID int64, variant map[string]string, qty int) (*Cart, error) {
	if qty > MaxItemQuantity {
		return nil, ErrQuantityExceeded
	}

	c, err := s.repo.Get(ctx, customerID)
	if err != nil {
		if errors.Is(err, ErrCartNotFound) {
			return nil, ErrItemNotFound
		}
		return nil, err
	}

	key := VariantKey(productID, variant)
	idx := -1
	for i := range c.Items {
		if c.Items[i].Key() == key {
			idx = i
			break
		}
	}
	if idx == -1 {
		return nil, ErrItemNotFound
	}

	if qty <= 0 {
		c.Items = append(c.Items[:idx], c.Items[idx+1:]...)
	} else {
		c.Items[idx].Quantity = qty
		c.Items[idx].UpdatedAt = time.Now()
	}

	if err := s.persist(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// RemoveItem drops a line; removing an absent line is a no-op.
func (s *Service) RemoveItem(ctx context.Context, customerID string, productID int64, variant map[string]string) (*Cart, error) {
	c, err := s.repo.Get(ctx, customerID)
	if err != nil {
		if errors.Is(err, ErrCartNotFound) {
			return s.Get(ctx, customerID)
		}
		return nil, err
	}

	key := VariantKey(productID, variant)
	kept := c.Items[:0]
	for _, item := range c.Items {
		if item.Key() != key {
			kept = append(kept, item)
		}
	}
	if len(kept) == len(c.Items) {
		return c, nil
	}
	c.Items = kept

	if err := s.persist(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// ClearCart removes all lines. Clearing an absent cart succeeds.
func (s *Service) ClearCart(ctx context.Context, customerID string) error {
	err := s.repo.Delete(ctx, customerID)
	if err != nil && !errors.Is(err, ErrCartNotFound) {
		return err
	}

	s.invalidateCache(customerID)
	return nil
}

// ValidateAgainstStock is a read-only pre-check against the ledger; it never
// reserves anything. Unknown products count as zero available.
func (s *Service) ValidateAgainstStock(ctx context.Context, customerID string) ([]Shortfall, error) {
	c, err := s.Get(ctx, customerID)
	if err != nil {
		return nil, err
	}

	var shortfalls []Shortfall
	for i, item := range c.Items {
		available := 0
		rec, err := s.ledger.GetAvailability(ctx, item.ProductID)
		if err != nil && !errors.Is(err, inventory.ErrProductNotFound) {
			return nil, fmt.Errorf("failed to check stock for product %d: %w", item.ProductID, err)
		}
		if rec != nil {
			available = rec.AvailableForSale()
		}

		if item.Quantity > available {
			shortfalls = append(shortfalls, Shortfall{
				ItemIndex: i,
				ProductID: item.ProductID,
				Requested: item.Quantity,
				Available: available,
			})
		}
	}
	return shortfalls, nil
}

// persist recomputes totals from the items (never adjusted incrementally),
// stamps activity, arms the empty-cart TTL and invalidates the cache.
func (s *Service) persist(ctx context.Context, c *Cart) error {
	c.Totals = pricing.Calculate(s.pricing, c.Lines())
	c.LastActivity = time.Now()
	if len(c.Items) == 0 {
		expires := c.LastActivity.Add(EmptyCartTTL)
		c.ExpiresAt = &expires
	} else {
		c.ExpiresAt = nil
	}

	if err := s.repo.Save(ctx, c); err != nil {
		return err
	}

	s.invalidateCache(c.CustomerID)
	return nil
}

func (s *Service) invalidateCache(customerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, customerID); err != nil {
		log.Printf("cart cache invalidate error: %v", err)
	}
}
