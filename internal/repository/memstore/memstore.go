// Package memstore is an in-memory repository.Store. Transactions are
// serialized on one mutex and rolled back by restoring a snapshot.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"storefront/internal/domain"
	"storefront/internal/repository"

	"github.com/google/uuid"
)

type userRecord struct {
	user domain.User
	seq  int64
}

type productRecord struct {
	product domain.Product
	seq     int64
}

type cartLine struct {
	productID uuid.UUID
	quantity  int
}

type cartRecord struct {
	id        uuid.UUID
	userID    uuid.UUID
	lines     []cartLine
	createdAt time.Time
	updatedAt time.Time
}

type orderRecord struct {
	order domain.Order
	seq   int64
}

type keyID struct {
	userID uuid.UUID
	key    string
}

type state struct {
	seq      int64
	users    map[uuid.UUID]*userRecord
	products map[uuid.UUID]*productRecord
	carts    map[uuid.UUID]*cartRecord // keyed by user id
	orders   map[uuid.UUID]*orderRecord
	keys     map[keyID]domain.IdempotencyKey
}

func newState() *state {
	return &state{
		users:    map[uuid.UUID]*userRecord{},
		products: map[uuid.UUID]*productRecord{},
		carts:    map[uuid.UUID]*cartRecord{},
		orders:   map[uuid.UUID]*orderRecord{},
		keys:     map[keyID]domain.IdempotencyKey{},
	}
}

func (s *state) next() int64 {
	s.seq++
	return s.seq
}

func (s *state) clone() *state {
	c := newState()
	c.seq = s.seq
	for id, r := range s.users {
		cp := *r
		c.users[id] = &cp
	}
	for id, r := range s.products {
		cp := *r
		c.products[id] = &cp
	}
	for id, r := range s.carts {
		cp := *r
		cp.lines = append([]cartLine(nil), r.lines...)
		c.carts[id] = &cp
	}
	for id, r := range s.orders {
		cp := *r
		cp.order = copyOrder(r.order)
		c.orders[id] = &cp
	}
	for k, v := range s.keys {
		c.keys[k] = v
	}
	return c
}

func copyOrder(o domain.Order) domain.Order {
	o.Items = append([]domain.OrderItem(nil), o.Items...)
	if o.Customer != nil {
		customer := *o.Customer
		o.Customer = &customer
	}
	return o
}

// Store implements repository.Store in memory
type Store struct {
	mu   *sync.Mutex
	data **state
	inTx bool
}

var _ repository.Store = (*Store)(nil)

// New creates an empty Store
func New() *Store {
	data := newState()
	return &Store{mu: &sync.Mutex{}, data: &data}
}

// run executes fn against the current state, taking the lock unless a
// transaction already holds it.
func (s *Store) run(fn func(st *state) error) error {
	if !s.inTx {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	return fn(*s.data)
}

func (s *Store) Users() repository.UserRepository         { return &users{s} }
func (s *Store) Products() repository.ProductRepository   { return &products{s} }
func (s *Store) Categories() repository.CategoryRepository { return &categories{s} }
func (s *Store) Carts() repository.CartRepository         { return &carts{s} }
func (s *Store) Orders() repository.OrderRepository       { return &orders{s} }
func (s *Store) IdempotencyKeys() repository.IdempotencyKeyRepository {
	return &idempotencyKeys{s}
}

// WithTx runs fn with exclusive access. State changes are discarded when fn
// fails or panics.
func (s *Store) WithTx(ctx context.Context, fn func(tx repository.Store) error) (err error) {
	if s.inTx {
		return fn(s)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := (*s.data).clone()
	defer func() {
		if p := recover(); p != nil {
			*s.data = snapshot
			panic(p)
		}
		if err != nil {
			*s.data = snapshot
		}
	}()

	if err = fn(&Store{mu: s.mu, data: s.data, inTx: true}); err != nil {
		return err
	}
	return ctx.Err()
}

// SetProductStock overwrites a product's stock. Tests use it to simulate
// catalog changes made outside the API.
func (s *Store) SetProductStock(id uuid.UUID, stock int) {
	_ = s.run(func(st *state) error {
		if r, ok := st.products[id]; ok {
			r.product.Stock = stock
		}
		return nil
	})
}

type users struct{ s *Store }

func (r *users) checkIdentity(st *state, user *domain.User) error {
	for id, other := range st.users {
		if id == user.ID {
			continue
		}
		if other.user.Email == user.Email {
			return repository.ErrEmailTaken
		}
		if other.user.Phone == user.Phone {
			return repository.ErrPhoneTaken
		}
	}
	return nil
}

func (r *users) Create(_ context.Context, user *domain.User) error {
	return r.s.run(func(st *state) error {
		if err := r.checkIdentity(st, user); err != nil {
			return err
		}
		st.users[user.ID] = &userRecord{user: *user, seq: st.next()}
		return nil
	})
}

func (r *users) Update(_ context.Context, user *domain.User) error {
	return r.s.run(func(st *state) error {
		rec, ok := st.users[user.ID]
		if !ok {
			return repository.ErrUserNotFound
		}
		if err := r.checkIdentity(st, user); err != nil {
			return err
		}
		updated := *user
		updated.PasswordHash = rec.user.PasswordHash
		updated.Role = rec.user.Role
		updated.CreatedAt = rec.user.CreatedAt
		updated.UpdatedAt = time.Now()
		rec.user = updated
		user.UpdatedAt = updated.UpdatedAt
		return nil
	})
}

func (r *users) UpdatePassword(_ context.Context, id uuid.UUID, passwordHash string) error {
	return r.s.run(func(st *state) error {
		rec, ok := st.users[id]
		if !ok {
			return repository.ErrUserNotFound
		}
		rec.user.PasswordHash = passwordHash
		rec.user.UpdatedAt = time.Now()
		return nil
	})
}

func (r *users) find(match func(u *domain.User) bool) (*domain.User, error) {
	var found *domain.User
	err := r.s.run(func(st *state) error {
		for _, rec := range st.users {
			if match(&rec.user) {
				u := rec.user
				found = &u
				return nil
			}
		}
		return repository.ErrUserNotFound
	})
	return found, err
}

func (r *users) FindByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	return r.find(func(u *domain.User) bool { return u.ID == id })
}

func (r *users) findByEmail(email string) (*domain.User, error) {
	return r.find(func(u *domain.User) bool { return u.Email == email })
}

func (r *users) findByPhone(phone string) (*domain.User, error) {
	return r.find(func(u *domain.User) bool { return u.Phone == phone })
}

func (r *users) FindByIdentifier(_ context.Context, emailOrPhone string) (*domain.User, error) {
	if user, err := r.findByEmail(emailOrPhone); err == nil {
		return user, nil
	}
	return r.findByPhone(emailOrPhone)
}

func (r *users) List(_ context.Context) ([]*domain.User, error) {
	var out []*domain.User
	err := r.s.run(func(st *state) error {
		recs := make([]*userRecord, 0, len(st.users))
		for _, rec := range st.users {
			recs = append(recs, rec)
		}
		sort.Slice(recs, func(i, j int) bool { return recs[i].seq > recs[j].seq })
		out = make([]*domain.User, 0, len(recs))
		for _, rec := range recs {
			u := rec.user
			out = append(out, &u)
		}
		return nil
	})
	return out, err
}

type products struct{ s *Store }

func (r *products) Create(_ context.Context, product *domain.Product) error {
	return r.s.run(func(st *state) error {
		st.products[product.ID] = &productRecord{product: *product, seq: st.next()}
		return nil
	})
}

func (r *products) Update(_ context.Context, product *domain.Product) error {
	return r.s.run(func(st *state) error {
		rec, ok := st.products[product.ID]
		if !ok {
			return repository.ErrProductNotFound
		}
		updated := *product
		updated.CreatedAt = rec.product.CreatedAt
		updated.UpdatedAt = time.Now()
		rec.product = updated
		product.UpdatedAt = updated.UpdatedAt
		return nil
	})
}

func (r *products) Delete(_ context.Context, id uuid.UUID) error {
	return r.s.run(func(st *state) error {
		if _, ok := st.products[id]; !ok {
			return repository.ErrProductNotFound
		}
		delete(st.products, id)
		// cart lines cascade with the product
		for _, cart := range st.carts {
			kept := cart.lines[:0]
			for _, line := range cart.lines {
				if line.productID != id {
					kept = append(kept, line)
				}
			}
			cart.lines = kept
		}
		return nil
	})
}

func (r *products) FindByID(_ context.Context, id uuid.UUID) (*domain.Product, error) {
	var found *domain.Product
	err := r.s.run(func(st *state) error {
		rec, ok := st.products[id]
		if !ok {
			return repository.ErrProductNotFound
		}
		p := rec.product
		found = &p
		return nil
	})
	return found, err
}

func (r *products) LockByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	return r.FindByID(ctx, id)
}

func productLess(a, b *productRecord, sortBy string) (less bool, equal bool) {
	switch sortBy {
	case "name":
		return a.product.Name < b.product.Name, a.product.Name == b.product.Name
	case "price":
		return a.product.Price.LessThan(b.product.Price), a.product.Price.Equal(b.product.Price)
	case "stock":
		return a.product.Stock < b.product.Stock, a.product.Stock == b.product.Stock
	case "rating":
		ra, rb := -1.0, -1.0
		if a.product.Rating != nil {
			ra = *a.product.Rating
		}
		if b.product.Rating != nil {
			rb = *b.product.Rating
		}
		return ra < rb, ra == rb
	default:
		return a.seq < b.seq, a.seq == b.seq
	}
}

func (r *products) List(_ context.Context, filter repository.ProductFilter) ([]*domain.Product, int, error) {
	var (
		out   []*domain.Product
		total int
	)
	err := r.s.run(func(st *state) error {
		query := strings.ToLower(strings.TrimSpace(filter.Query))

		matched := []*productRecord{}
		for _, rec := range st.products {
			if filter.Category != "" && rec.product.Category != filter.Category {
				continue
			}
			if query != "" &&
				!strings.Contains(strings.ToLower(rec.product.Name), query) &&
				!strings.Contains(strings.ToLower(rec.product.Description), query) {
				continue
			}
			matched = append(matched, rec)
		}

		desc := filter.SortOrder != repository.SortOrderAsc
		sort.Slice(matched, func(i, j int) bool {
			less, equal := productLess(matched[i], matched[j], filter.SortBy)
			if equal {
				return matched[i].product.ID.String() < matched[j].product.ID.String()
			}
			if desc {
				return !less
			}
			return less
		})

		total = len(matched)
		start := (filter.Page - 1) * filter.PageSize
		if start < 0 {
			start = 0
		}
		end := start + filter.PageSize
		if start > total {
			start = total
		}
		if end > total || filter.PageSize <= 0 {
			end = total
		}

		out = make([]*domain.Product, 0, end-start)
		for _, rec := range matched[start:end] {
			p := rec.product
			out = append(out, &p)
		}
		return nil
	})
	return out, total, err
}

func (r *products) DecrementStock(_ context.Context, id uuid.UUID, quantity int) error {
	return r.s.run(func(st *state) error {
		rec, ok := st.products[id]
		if !ok {
			return repository.ErrProductNotFound
		}
		if rec.product.Stock < quantity {
			return repository.ErrOutOfStock
		}
		rec.product.Stock -= quantity
		return nil
	})
}

func (r *products) IncrementStock(_ context.Context, id uuid.UUID, quantity int) error {
	return r.s.run(func(st *state) error {
		rec, ok := st.products[id]
		if !ok {
			return repository.ErrProductNotFound
		}
		rec.product.Stock += quantity
		return nil
	})
}

type categories struct{ s *Store }

func (r *categories) List(_ context.Context) ([]domain.Category, error) {
	var out []domain.Category
	err := r.s.run(func(st *state) error {
		counts := map[string]int{}
		for _, rec := range st.products {
			counts[rec.product.Category]++
		}
		out = make([]domain.Category, 0, len(counts))
		for name, n := range counts {
			out = append(out, domain.Category{Name: name, ProductCount: n})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
		return nil
	})
	return out, err
}

type carts struct{ s *Store }

func (r *carts) view(st *state, rec *cartRecord) *domain.Cart {
	cart := &domain.Cart{
		ID:        rec.id,
		UserID:    rec.userID,
		Items:     []domain.CartItem{},
		CreatedAt: rec.createdAt,
		UpdatedAt: rec.updatedAt,
	}
	for _, line := range rec.lines {
		p, ok := st.products[line.productID]
		if !ok {
			continue
		}
		cart.Items = append(cart.Items, domain.CartItem{
			ProductID:   line.productID,
			Quantity:    line.quantity,
			Name:        p.product.Name,
			Price:       p.product.Price,
			Image:       p.product.Image,
			Description: p.product.Description,
			Stock:       p.product.Stock,
		})
	}
	return cart
}

func (r *carts) GetOrCreate(_ context.Context, userID uuid.UUID) (*domain.Cart, error) {
	var cart *domain.Cart
	err := r.s.run(func(st *state) error {
		rec, ok := st.carts[userID]
		if !ok {
			now := time.Now()
			rec = &cartRecord{id: uuid.New(), userID: userID, createdAt: now, updatedAt: now}
			st.carts[userID] = rec
		}
		cart = r.view(st, rec)
		return nil
	})
	return cart, err
}

func (r *carts) FindByUserID(_ context.Context, userID uuid.UUID) (*domain.Cart, error) {
	var cart *domain.Cart
	err := r.s.run(func(st *state) error {
		rec, ok := st.carts[userID]
		if !ok {
			return repository.ErrCartNotFound
		}
		cart = r.view(st, rec)
		return nil
	})
	return cart, err
}

func cartByID(st *state, cartID uuid.UUID) *cartRecord {
	for _, rec := range st.carts {
		if rec.id == cartID {
			return rec
		}
	}
	return nil
}

func (r *carts) UpsertItem(_ context.Context, cartID, productID uuid.UUID, quantity int) error {
	return r.s.run(func(st *state) error {
		rec := cartByID(st, cartID)
		if rec == nil {
			return repository.ErrCartNotFound
		}
		if _, ok := st.products[productID]; !ok {
			return repository.ErrProductNotFound
		}
		rec.updatedAt = time.Now()
		for i := range rec.lines {
			if rec.lines[i].productID == productID {
				rec.lines[i].quantity += quantity
				return nil
			}
		}
		rec.lines = append(rec.lines, cartLine{productID: productID, quantity: quantity})
		return nil
	})
}

func (r *carts) SetItemQuantity(_ context.Context, cartID, productID uuid.UUID, quantity int) error {
	return r.s.run(func(st *state) error {
		rec := cartByID(st, cartID)
		if rec == nil {
			return repository.ErrCartNotFound
		}
		for i := range rec.lines {
			if rec.lines[i].productID == productID {
				rec.lines[i].quantity = quantity
				rec.updatedAt = time.Now()
				return nil
			}
		}
		return repository.ErrCartItemNotFound
	})
}

func (r *carts) RemoveItem(_ context.Context, cartID, productID uuid.UUID) error {
	return r.s.run(func(st *state) error {
		rec := cartByID(st, cartID)
		if rec == nil {
			return repository.ErrCartNotFound
		}
		for i := range rec.lines {
			if rec.lines[i].productID == productID {
				rec.lines = append(rec.lines[:i], rec.lines[i+1:]...)
				rec.updatedAt = time.Now()
				return nil
			}
		}
		return repository.ErrCartItemNotFound
	})
}

func (r *carts) Clear(_ context.Context, cartID uuid.UUID) error {
	return r.s.run(func(st *state) error {
		rec := cartByID(st, cartID)
		if rec == nil {
			return repository.ErrCartNotFound
		}
		rec.lines = nil
		rec.updatedAt = time.Now()
		return nil
	})
}

func (r *carts) ClearByUserID(_ context.Context, userID uuid.UUID) error {
	return r.s.run(func(st *state) error {
		if rec, ok := st.carts[userID]; ok {
			rec.lines = nil
		}
		return nil
	})
}

type orders struct{ s *Store }

func (r *orders) Create(_ context.Context, order *domain.Order) error {
	return r.s.run(func(st *state) error {
		if _, ok := st.users[order.UserID]; !ok {
			return repository.ErrUserNotFound
		}
		stored := copyOrder(*order)
		stored.Customer = nil
		st.orders[order.ID] = &orderRecord{order: stored, seq: st.next()}
		return nil
	})
}

func (r *orders) FindByID(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	var found *domain.Order
	err := r.s.run(func(st *state) error {
		rec, ok := st.orders[id]
		if !ok {
			return repository.ErrOrderNotFound
		}
		o := copyOrder(rec.order)
		found = &o
		return nil
	})
	return found, err
}

func (r *orders) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return r.FindByID(ctx, id)
}

func (r *orders) UpdateStatus(_ context.Context, order *domain.Order) error {
	return r.s.run(func(st *state) error {
		rec, ok := st.orders[order.ID]
		if !ok {
			return repository.ErrOrderNotFound
		}
		rec.order.Status = order.Status
		rec.order.UpdatedAt = time.Now()
		order.UpdatedAt = rec.order.UpdatedAt
		return nil
	})
}

func (r *orders) list(match func(o *domain.Order) bool, withCustomer bool) ([]*domain.Order, error) {
	var out []*domain.Order
	err := r.s.run(func(st *state) error {
		recs := []*orderRecord{}
		for _, rec := range st.orders {
			if match(&rec.order) {
				recs = append(recs, rec)
			}
		}
		sort.Slice(recs, func(i, j int) bool { return recs[i].seq > recs[j].seq })

		out = make([]*domain.Order, 0, len(recs))
		for _, rec := range recs {
			o := copyOrder(rec.order)
			if withCustomer {
				if u, ok := st.users[o.UserID]; ok {
					o.Customer = &domain.OrderCustomer{
						Email:     u.user.Email,
						FirstName: u.user.FirstName,
						LastName:  u.user.LastName,
					}
				}
			}
			out = append(out, &o)
		}
		return nil
	})
	return out, err
}

func (r *orders) ListByUser(_ context.Context, userID uuid.UUID) ([]*domain.Order, error) {
	return r.list(func(o *domain.Order) bool { return o.UserID == userID }, false)
}

func (r *orders) ListAll(_ context.Context, status *domain.OrderStatus) ([]*domain.Order, error) {
	return r.list(func(o *domain.Order) bool { return status == nil || o.Status == *status }, true)
}

type idempotencyKeys struct{ s *Store }

func (r *idempotencyKeys) Create(_ context.Context, key *domain.IdempotencyKey) error {
	return r.s.run(func(st *state) error {
		id := keyID{userID: key.UserID, key: key.Key}
		if _, ok := st.keys[id]; ok {
			return repository.ErrIdempotencyKeyExists
		}
		st.keys[id] = *key
		return nil
	})
}

func (r *idempotencyKeys) FindByKey(_ context.Context, userID uuid.UUID, key string) (*domain.IdempotencyKey, error) {
	var found *domain.IdempotencyKey
	err := r.s.run(func(st *state) error {
		k, ok := st.keys[keyID{userID: userID, key: key}]
		if !ok {
			return repository.ErrIdempotencyKeyNotFound
		}
		found = &k
		return nil
	})
	return found, err
}
