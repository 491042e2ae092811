package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	domain "github.com/adunni-couture/api/internal/domain"
	"github.com/adunni-couture/api/internal/repositories"
)

// fixedClock returns a deterministic instant for every call.
func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

var testInstant = time.Date(2025, time.March, 14, 9, 30, 0, 0, time.UTC)

// stubRepoError satisfies repositories.RepositoryError for test stubs.
type stubRepoError struct {
	msg         string
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e stubRepoError) Error() string       { return e.msg }
func (e stubRepoError) IsNotFound() bool    { return e.notFound }
func (e stubRepoError) IsConflict() bool    { return e.conflict }
func (e stubRepoError) IsUnavailable() bool { return e.unavailable }

func notFoundErr(kind, id string) error {
	return stubRepoError{msg: fmt.Sprintf("%s %s not found", kind, id), notFound: true}
}

func conflictErr(kind, id string) error {
	return stubRepoError{msg: fmt.Sprintf("%s %s conflict", kind, id), conflict: true}
}

// captureLogger records structured log events emitted by services under test.
type captureLogger struct {
	mu     sync.Mutex
	events []capturedEvent
}

type capturedEvent struct {
	Event  string
	Fields map[string]any
}

func (l *captureLogger) Log(_ context.Context, event string, fields map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, capturedEvent{Event: event, Fields: fields})
}

func (l *captureLogger) Events(name string) []capturedEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []capturedEvent
	for _, ev := range l.events {
		if ev.Event == name {
			out = append(out, ev)
		}
	}
	return out
}

// captureNotifier records notices handed to the fan-out seam.
type captureNotifier struct {
	mu      sync.Mutex
	notices []Notice
}

func (n *captureNotifier) Notify(_ context.Context, notice Notice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
}

func (n *captureNotifier) Notices() []Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Notice, len(n.notices))
	copy(out, n.notices)
	return out
}

// capturePublisher records emitted order events.
type capturePublisher struct {
	mu     sync.Mutex
	events []OrderEventMessage
	err    error
}

func (p *capturePublisher) PublishOrderEvent(_ context.Context, event OrderEventMessage) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.events = append(p.events, event)
	return fmt.Sprintf("msg-%d", len(p.events)), nil
}

func (p *capturePublisher) Events() []OrderEventMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]OrderEventMessage, len(p.events))
	copy(out, p.events)
	return out
}

// sequenceIDs returns a generator yielding id-1, id-2, ...
func sequenceIDs(prefix string) func() string {
	var n int
	return func() string {
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

// memoryOrderRepo is an in-memory OrderRepository honouring expectedStatus.
type memoryOrderRepo struct {
	mu       sync.Mutex
	orders   map[string]domain.Order
	byRef    map[string]string
	updates  int
	insertFn func(domain.Order) error
	updateFn func(domain.Order, *domain.OrderStatus) error
}

func newMemoryOrderRepo(seed ...domain.Order) *memoryOrderRepo {
	repo := &memoryOrderRepo{
		orders: make(map[string]domain.Order),
		byRef:  make(map[string]string),
	}
	for _, order := range seed {
		repo.orders[order.ID] = order
		if order.PaymentReference != nil {
			repo.byRef[*order.PaymentReference] = order.ID
		}
	}
	return repo
}

func (r *memoryOrderRepo) Insert(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertFn != nil {
		if err := r.insertFn(order); err != nil {
			return err
		}
	}
	if _, ok := r.orders[order.ID]; ok {
		return conflictErr("order", order.ID)
	}
	r.orders[order.ID] = order
	if order.PaymentReference != nil {
		r.byRef[*order.PaymentReference] = order.ID
	}
	return nil
}

func (r *memoryOrderRepo) Update(_ context.Context, order domain.Order, expectedStatus *domain.OrderStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateFn != nil {
		if err := r.updateFn(order, expectedStatus); err != nil {
			return err
		}
	}
	existing, ok := r.orders[order.ID]
	if !ok {
		return notFoundErr("order", order.ID)
	}
	if expectedStatus != nil && existing.Status != *expectedStatus {
		return conflictErr("order", order.ID)
	}
	r.orders[order.ID] = order
	if order.PaymentReference != nil {
		r.byRef[*order.PaymentReference] = order.ID
	}
	r.updates++
	return nil
}

func (r *memoryOrderRepo) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok {
		return domain.Order{}, notFoundErr("order", orderID)
	}
	return order, nil
}

func (r *memoryOrderRepo) FindByPaymentReference(_ context.Context, reference string) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byRef[reference]
	if !ok {
		return domain.Order{}, notFoundErr("order reference", reference)
	}
	return r.orders[id], nil
}

func (r *memoryOrderRepo) List(_ context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var items []domain.Order
	for _, order := range r.orders {
		if filter.UserID != "" && order.UserID != filter.UserID {
			continue
		}
		items = append(items, order)
	}
	return domain.CursorPage[domain.Order]{Items: items}, nil
}

// memoryCustomOrderRepo mirrors memoryOrderRepo for bespoke orders.
type memoryCustomOrderRepo struct {
	mu       sync.Mutex
	orders   map[string]domain.CustomOrder
	updateFn func(domain.CustomOrder, *domain.CustomOrderStatus) error
}

func newMemoryCustomOrderRepo(seed ...domain.CustomOrder) *memoryCustomOrderRepo {
	repo := &memoryCustomOrderRepo{orders: make(map[string]domain.CustomOrder)}
	for _, order := range seed {
		repo.orders[order.ID] = order
	}
	return repo
}

func (r *memoryCustomOrderRepo) Insert(_ context.Context, order domain.CustomOrder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[order.ID]; ok {
		return conflictErr("custom order", order.ID)
	}
	r.orders[order.ID] = order
	return nil
}

func (r *memoryCustomOrderRepo) Update(_ context.Context, order domain.CustomOrder, expectedStatus *domain.CustomOrderStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateFn != nil {
		if err := r.updateFn(order, expectedStatus); err != nil {
			return err
		}
	}
	existing, ok := r.orders[order.ID]
	if !ok {
		return notFoundErr("custom order", order.ID)
	}
	if expectedStatus != nil && existing.Status != *expectedStatus {
		return conflictErr("custom order", order.ID)
	}
	r.orders[order.ID] = order
	return nil
}

func (r *memoryCustomOrderRepo) FindByID(_ context.Context, orderID string) (domain.CustomOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok {
		return domain.CustomOrder{}, notFoundErr("custom order", orderID)
	}
	return order, nil
}

func (r *memoryCustomOrderRepo) List(_ context.Context, filter repositories.CustomOrderListFilter) (domain.CursorPage[domain.CustomOrder], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var items []domain.CustomOrder
	for _, order := range r.orders {
		if filter.UserID != "" && order.UserID != filter.UserID {
			continue
		}
		items = append(items, order)
	}
	return domain.CursorPage[domain.CustomOrder]{Items: items}, nil
}

// memoryInvoiceRepo stores invoices keyed by ID with a custom-order uniqueness guard.
type memoryInvoiceRepo struct {
	mu       sync.Mutex
	invoices map[string]domain.Invoice
	insertFn func(domain.Invoice) error
}

func newMemoryInvoiceRepo(seed ...domain.Invoice) *memoryInvoiceRepo {
	repo := &memoryInvoiceRepo{invoices: make(map[string]domain.Invoice)}
	for _, inv := range seed {
		repo.invoices[inv.ID] = inv
	}
	return repo
}

func (r *memoryInvoiceRepo) Insert(_ context.Context, invoice domain.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertFn != nil {
		if err := r.insertFn(invoice); err != nil {
			return err
		}
	}
	for _, existing := range r.invoices {
		if existing.CustomOrderRef == invoice.CustomOrderRef {
			return conflictErr("invoice for custom order", invoice.CustomOrderRef)
		}
	}
	r.invoices[invoice.ID] = invoice
	return nil
}

func (r *memoryInvoiceRepo) MarkPaid(_ context.Context, invoiceID string, paidAt time.Time) (domain.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	invoice, ok := r.invoices[invoiceID]
	if !ok {
		return domain.Invoice{}, notFoundErr("invoice", invoiceID)
	}
	invoice.Paid = true
	invoice.PaidAt = &paidAt
	r.invoices[invoiceID] = invoice
	return invoice, nil
}

func (r *memoryInvoiceRepo) FindByID(_ context.Context, invoiceID string) (domain.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	invoice, ok := r.invoices[invoiceID]
	if !ok {
		return domain.Invoice{}, notFoundErr("invoice", invoiceID)
	}
	return invoice, nil
}

func (r *memoryInvoiceRepo) FindByCustomOrder(_ context.Context, customOrderID string) (domain.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, invoice := range r.invoices {
		if invoice.CustomOrderRef == customOrderID {
			return invoice, nil
		}
	}
	return domain.Invoice{}, notFoundErr("invoice for custom order", customOrderID)
}

func (r *memoryInvoiceRepo) ListByUser(_ context.Context, userID string, _ domain.Pagination) (domain.CursorPage[domain.Invoice], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var items []domain.Invoice
	for _, invoice := range r.invoices {
		if invoice.UserID == userID {
			items = append(items, invoice)
		}
	}
	return domain.CursorPage[domain.Invoice]{Items: items}, nil
}

// memoryReceiptRepo enforces payment reference uniqueness like the Firestore layer.
type memoryReceiptRepo struct {
	mu       sync.Mutex
	receipts map[string]domain.Receipt
	byRef    map[string]string
}

func newMemoryReceiptRepo(seed ...domain.Receipt) *memoryReceiptRepo {
	repo := &memoryReceiptRepo{
		receipts: make(map[string]domain.Receipt),
		byRef:    make(map[string]string),
	}
	for _, receipt := range seed {
		repo.receipts[receipt.ID] = receipt
		repo.byRef[receipt.PaymentReference] = receipt.ID
	}
	return repo
}

func (r *memoryReceiptRepo) Insert(_ context.Context, receipt domain.Receipt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byRef[receipt.PaymentReference]; ok {
		return conflictErr("receipt reference", receipt.PaymentReference)
	}
	r.receipts[receipt.ID] = receipt
	r.byRef[receipt.PaymentReference] = receipt.ID
	return nil
}

func (r *memoryReceiptRepo) FindByPaymentReference(_ context.Context, reference string) (domain.Receipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byRef[reference]
	if !ok {
		return domain.Receipt{}, notFoundErr("receipt reference", reference)
	}
	return r.receipts[id], nil
}

func (r *memoryReceiptRepo) ListByUser(_ context.Context, userID string, _ domain.Pagination) (domain.CursorPage[domain.Receipt], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var items []domain.Receipt
	for _, receipt := range r.receipts {
		if receipt.UserID == userID {
			items = append(items, receipt)
		}
	}
	return domain.CursorPage[domain.Receipt]{Items: items}, nil
}

// memoryProductRepo serves catalog reads/writes for cart and catalog tests.
type memoryProductRepo struct {
	mu       sync.Mutex
	products map[string]domain.Product
}

func newMemoryProductRepo(seed ...domain.Product) *memoryProductRepo {
	repo := &memoryProductRepo{products: make(map[string]domain.Product)}
	for _, product := range seed {
		repo.products[product.ID] = product
	}
	return repo
}

func (r *memoryProductRepo) Upsert(_ context.Context, product domain.Product) (domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.products[product.ID] = product
	return product, nil
}

func (r *memoryProductRepo) Delete(_ context.Context, productID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.products[productID]; !ok {
		return notFoundErr("product", productID)
	}
	delete(r.products, productID)
	return nil
}

func (r *memoryProductRepo) FindByID(_ context.Context, productID string) (domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	product, ok := r.products[productID]
	if !ok {
		return domain.Product{}, notFoundErr("product", productID)
	}
	return product, nil
}

func (r *memoryProductRepo) List(_ context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var items []domain.Product
	for _, product := range r.products {
		if filter.PublishedOnly && !product.IsPublished {
			continue
		}
		if filter.Category != "" && product.Category != filter.Category {
			continue
		}
		items = append(items, product)
	}
	return domain.CursorPage[domain.Product]{Items: items}, nil
}

func (r *memoryProductRepo) AdjustStock(_ context.Context, productID string, sku string, delta int) (domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	product, ok := r.products[productID]
	if !ok {
		return domain.Product{}, notFoundErr("product", productID)
	}
	for i := range product.Variants {
		if product.Variants[i].SKU != sku {
			continue
		}
		next := product.Variants[i].Stock + delta
		if next < 0 {
			return domain.Product{}, conflictErr("product stock", sku)
		}
		product.Variants[i].Stock = next
		r.products[productID] = product
		return product, nil
	}
	return domain.Product{}, notFoundErr("product variant", sku)
}

// memoryCartRepo keys carts by user ID and honours the optimistic update guard.
type memoryCartRepo struct {
	mu    sync.Mutex
	carts map[string]domain.Cart
}

func newMemoryCartRepo(seed ...domain.Cart) *memoryCartRepo {
	repo := &memoryCartRepo{carts: make(map[string]domain.Cart)}
	for _, cart := range seed {
		repo.carts[cart.UserID] = cart
	}
	return repo
}

func (r *memoryCartRepo) UpsertCart(_ context.Context, cart domain.Cart, expectedUpdate *time.Time) (domain.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.carts[cart.UserID]; ok && expectedUpdate != nil && !existing.UpdatedAt.Equal(*expectedUpdate) {
		return domain.Cart{}, conflictErr("cart", cart.UserID)
	}
	r.carts[cart.UserID] = cart
	return cart, nil
}

func (r *memoryCartRepo) GetCart(_ context.Context, userID string) (domain.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cart, ok := r.carts[userID]
	if !ok {
		return domain.Cart{}, notFoundErr("cart", userID)
	}
	return cart, nil
}

func (r *memoryCartRepo) ClearCart(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.carts, userID)
	return nil
}

// memoryShippingRateRepo resolves flat fees by state membership.
type memoryShippingRateRepo struct {
	mu      sync.Mutex
	rates   map[string]domain.ShippingRate
	lookups int
}

func newMemoryShippingRateRepo(seed ...domain.ShippingRate) *memoryShippingRateRepo {
	repo := &memoryShippingRateRepo{rates: make(map[string]domain.ShippingRate)}
	for _, rate := range seed {
		repo.rates[rate.ID] = rate
	}
	return repo
}

func (r *memoryShippingRateRepo) Upsert(_ context.Context, rate domain.ShippingRate) (domain.ShippingRate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rates[rate.ID] = rate
	return rate, nil
}

func (r *memoryShippingRateRepo) Delete(_ context.Context, rateID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rates[rateID]; !ok {
		return notFoundErr("shipping rate", rateID)
	}
	delete(r.rates, rateID)
	return nil
}

func (r *memoryShippingRateRepo) FindByState(_ context.Context, state string) (domain.ShippingRate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookups++
	for _, rate := range r.rates {
		for _, candidate := range rate.States {
			if candidate == state {
				return rate, nil
			}
		}
	}
	return domain.ShippingRate{}, notFoundErr("shipping rate for state", state)
}

func (r *memoryShippingRateRepo) List(_ context.Context, _ domain.Pagination) (domain.CursorPage[domain.ShippingRate], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var items []domain.ShippingRate
	for _, rate := range r.rates {
		items = append(items, rate)
	}
	return domain.CursorPage[domain.ShippingRate]{Items: items}, nil
}

// memoryPromotionRepo indexes promotions by code.
type memoryPromotionRepo struct {
	mu         sync.Mutex
	promotions map[string]domain.Promotion
}

func newMemoryPromotionRepo(seed ...domain.Promotion) *memoryPromotionRepo {
	repo := &memoryPromotionRepo{promotions: make(map[string]domain.Promotion)}
	for _, promo := range seed {
		repo.promotions[promo.ID] = promo
	}
	return repo
}

func (r *memoryPromotionRepo) Upsert(_ context.Context, promotion domain.Promotion) (domain.Promotion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.promotions[promotion.ID] = promotion
	return promotion, nil
}

func (r *memoryPromotionRepo) Delete(_ context.Context, promotionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.promotions[promotionID]; !ok {
		return notFoundErr("promotion", promotionID)
	}
	delete(r.promotions, promotionID)
	return nil
}

func (r *memoryPromotionRepo) FindByCode(_ context.Context, code string) (domain.Promotion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, promo := range r.promotions {
		if promo.Code == code {
			return promo, nil
		}
	}
	return domain.Promotion{}, notFoundErr("promotion", code)
}

func (r *memoryPromotionRepo) List(_ context.Context, _ domain.Pagination) (domain.CursorPage[domain.Promotion], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var items []domain.Promotion
	for _, promo := range r.promotions {
		items = append(items, promo)
	}
	return domain.CursorPage[domain.Promotion]{Items: items}, nil
}

// memoryNotificationRepo stores in-app notification rows.
type memoryNotificationRepo struct {
	mu   sync.Mutex
	rows map[string]domain.Notification
}

func newMemoryNotificationRepo(seed ...domain.Notification) *memoryNotificationRepo {
	repo := &memoryNotificationRepo{rows: make(map[string]domain.Notification)}
	for _, row := range seed {
		repo.rows[row.ID] = row
	}
	return repo
}

func (r *memoryNotificationRepo) Insert(_ context.Context, notification domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[notification.ID] = notification
	return nil
}

func (r *memoryNotificationRepo) MarkRead(_ context.Context, userID string, notificationID string) (domain.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[notificationID]
	if !ok || row.UserID != userID {
		return domain.Notification{}, notFoundErr("notification", notificationID)
	}
	row.Read = true
	r.rows[notificationID] = row
	return row, nil
}

func (r *memoryNotificationRepo) ListByUser(_ context.Context, userID string, _ domain.Pagination) (domain.CursorPage[domain.Notification], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var items []domain.Notification
	for _, row := range r.rows {
		if row.UserID == userID {
			items = append(items, row)
		}
	}
	return domain.CursorPage[domain.Notification]{Items: items}, nil
}

// memoryUserRepo stores user profile projections.
type memoryUserRepo struct {
	mu    sync.Mutex
	users map[string]domain.UserProfile
}

func newMemoryUserRepo(seed ...domain.UserProfile) *memoryUserRepo {
	repo := &memoryUserRepo{users: make(map[string]domain.UserProfile)}
	for _, user := range seed {
		repo.users[user.ID] = user
	}
	return repo
}

func (r *memoryUserRepo) Upsert(_ context.Context, profile domain.UserProfile) (domain.UserProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[profile.ID] = profile
	return profile, nil
}

func (r *memoryUserRepo) FindByID(_ context.Context, userID string) (domain.UserProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[userID]
	if !ok {
		return domain.UserProfile{}, notFoundErr("user", userID)
	}
	return user, nil
}

// stubCounterRepo hands out deterministic sequence numbers.
type stubCounterRepo struct {
	mu   sync.Mutex
	next map[string]int64
}

func newStubCounterRepo() *stubCounterRepo {
	return &stubCounterRepo{next: make(map[string]int64)}
}

func (r *stubCounterRepo) Next(_ context.Context, counterID string, step int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next[counterID] += step
	return r.next[counterID], nil
}

// stubDocumentGenerator records generation requests and returns canned paths.
type stubDocumentGenerator struct {
	mu       sync.Mutex
	invoices []domain.Invoice
	receipts []domain.Receipt
	err      error
}

func (g *stubDocumentGenerator) GenerateInvoice(_ context.Context, invoice Invoice) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return "", g.err
	}
	g.invoices = append(g.invoices, invoice)
	return "documents/invoices/" + invoice.ID + ".pdf", nil
}

func (g *stubDocumentGenerator) GenerateReceipt(_ context.Context, receipt Receipt) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return "", g.err
	}
	g.receipts = append(g.receipts, receipt)
	return "documents/receipts/" + receipt.ID + ".pdf", nil
}
