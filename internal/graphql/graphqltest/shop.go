package graphqltest

import (
	"errors"
	"fmt"
	"maps"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
)

// Product in the fake catalog.
type Product struct {
	ID           string
	Name         string
	Slug         string
	Price        decimal.Decimal
	CategorySlug string
	ImageURL     string
	IsActive     bool
	Description  string
	SKU          string
	StockQty     int
}

// Order placed through the fake shop.
type Order struct {
	OrderID      string
	CustomerName string
	Status       string
	GrandTotal   decimal.Decimal
	Items        []OrderItem
}

type OrderItem struct {
	ProductID string
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
}

// ContactMessage stored by the fake shop.
type ContactMessage struct {
	ID      string
	Name    string
	Email   string
	Message string
}

type cartLine struct {
	id        string
	productID string
	quantity  int
	unitPrice decimal.Decimal
}

// Shop is a fake storefront backend with a server-side cart that accumulates
// quantities the way the real API does.
type Shop struct {
	*Server

	lock       sync.Mutex
	products   []Product
	categories []map[string]any
	lines      []*cartLine
	nextID     int
	orders     []*Order
	messages   []ContactMessage
	hooks      map[string]func(Request)
	// SubtotalFunc lets tests make the server's subtotal differ from the
	// naive sum, eg. to model rounding rules.
	subtotalFunc func(lines decimal.Decimal) decimal.Decimal
}

var orderStatuses = map[string]bool{"placed": true, "delivered": true, "canceled": true}

// NewShop starts a fake shop with the given catalog.
func NewShop(t testing.TB, products ...Product) *Shop {
	t.Helper()
	shop := &Shop{Server: NewServer(t), hooks: map[string]func(Request){}}
	for _, p := range products {
		if p.Slug == "" {
			p.Slug = slugify(p.Name)
		}
		p.IsActive = true
		shop.products = append(shop.products, p)
	}
	shop.register()
	return shop
}

// OnRequest installs a hook run before the resolver for field, outside the
// shop's lock. Tests use it to delay or block specific requests.
func (s *Shop) OnRequest(field string, hook func(Request)) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.hooks[field] = hook
}

// SetSubtotalFunc overrides how the server derives the subtotal.
func (s *Shop) SetSubtotalFunc(fn func(decimal.Decimal) decimal.Decimal) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.subtotalFunc = fn
}

// AddCategory adds a category to the catalog.
func (s *Shop) AddCategory(id, name, slug string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.categories = append(s.categories, map[string]any{"id": id, "name": name, "slug": slug})
}

// Deactivate hides a product from the storefront.
func (s *Shop) Deactivate(slug string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	for i := range s.products {
		if s.products[i].Slug == slug {
			s.products[i].IsActive = false
		}
	}
}

// Categories returns the stored categories.
func (s *Shop) Categories() []map[string]any {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.categoriesJSON()
}

// AddOrder stores an order, eg. to seed the back-office list.
func (s *Shop) AddOrder(order Order) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if order.Status == "" {
		order.Status = "placed"
	}
	s.orders = append(s.orders, &order)
}

// AddContactMessage stores a contact message.
func (s *Shop) AddContactMessage(msg ContactMessage) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.messages = append(s.messages, msg)
}

// Quantity returns the server-side quantity for a product in the cart.
func (s *Shop) Quantity(productID string) int {
	s.lock.Lock()
	defer s.lock.Unlock()
	if line := s.line(productID); line != nil {
		return line.quantity
	}
	return 0
}

// Orders returns the stored orders.
func (s *Shop) Orders() []Order {
	s.lock.Lock()
	defer s.lock.Unlock()
	out := make([]Order, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, *o)
	}
	return out
}

// ContactMessages returns the stored messages.
func (s *Shop) ContactMessages() []ContactMessage {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]ContactMessage(nil), s.messages...)
}

func (s *Shop) handle(field string, fn func(req Request) (any, error)) {
	s.Handle(field, func(req Request) (any, error) {
		s.lock.Lock()
		hook := s.hooks[field]
		s.lock.Unlock()
		if hook != nil {
			hook(req)
		}
		s.lock.Lock()
		defer s.lock.Unlock()
		return fn(req)
	})
}

func (s *Shop) register() {
	s.handle("cartSummary", func(req Request) (any, error) {
		return map[string]any{"count": s.count()}, nil
	})
	s.handle("cart", func(req Request) (any, error) {
		return s.cartJSON(), nil
	})
	s.handle("addToCart", func(req Request) (any, error) {
		product, ok := s.product(req.StringVar("productId"))
		if !ok {
			return nil, errors.New("Product not found")
		}
		if line := s.line(product.ID); line != nil {
			line.quantity += req.IntVar("quantity", 1)
		} else {
			s.nextID++
			s.lines = append(s.lines, &cartLine{
				id:        strconv.Itoa(s.nextID),
				productID: product.ID,
				quantity:  req.IntVar("quantity", 1),
				unitPrice: product.Price,
			})
		}
		return map[string]any{"cart": s.cartJSON(), "success": true}, nil
	})
	s.handle("updateCartItem", func(req Request) (any, error) {
		line := s.line(req.StringVar("productId"))
		if line == nil {
			return nil, errors.New("Cart item not found")
		}
		if q := req.IntVar("quantity", 0); q <= 0 {
			s.deleteLine(line.productID)
		} else {
			line.quantity = q
		}
		return map[string]any{"cart": s.cartJSON(), "success": true}, nil
	})
	s.handle("removeFromCart", func(req Request) (any, error) {
		if s.line(req.StringVar("productId")) == nil {
			return nil, errors.New("Cart item not found")
		}
		s.deleteLine(req.StringVar("productId"))
		return map[string]any{"cart": s.cartJSON(), "success": true}, nil
	})
	s.handle("clearCart", func(req Request) (any, error) {
		s.lines = nil
		return map[string]any{"cart": s.cartJSON(), "success": true}, nil
	})
	s.handle("categories", func(req Request) (any, error) {
		return s.categoriesJSON(), nil
	})
	s.handle("createCategory", func(req Request) (any, error) {
		name := strings.TrimSpace(req.StringVar("name"))
		if name == "" {
			return map[string]any{"success": false, "category": nil}, nil
		}
		s.nextID++
		category := map[string]any{"id": strconv.Itoa(100 + s.nextID), "name": name, "slug": slugify(name)}
		s.categories = append(s.categories, category)
		return map[string]any{"success": true, "category": maps.Clone(category)}, nil
	})
	s.handle("updateCategory", func(req Request) (any, error) {
		name := strings.TrimSpace(req.StringVar("name"))
		for _, category := range s.categories {
			if category["id"] != req.StringVar("id") {
				continue
			}
			if name == "" {
				return map[string]any{"success": false, "category": maps.Clone(category)}, nil
			}
			category["name"] = name
			category["slug"] = slugify(name)
			return map[string]any{"success": true, "category": maps.Clone(category)}, nil
		}
		return nil, errors.New("Category not found")
	})
	s.handle("deleteCategory", func(req Request) (any, error) {
		for i, category := range s.categories {
			if category["id"] == req.StringVar("id") {
				s.categories = append(s.categories[:i], s.categories[i+1:]...)
				return map[string]any{"success": true}, nil
			}
		}
		return map[string]any{"success": false}, nil
	})
	s.handle("product", func(req Request) (any, error) {
		for _, p := range s.products {
			if p.Slug != req.StringVar("slug") {
				continue
			}
			out := productJSON(p)
			out["description"] = p.Description
			out["sku"] = p.SKU
			out["stockQty"] = p.StockQty
			out["category"] = nil
			for _, category := range s.categories {
				if category["slug"] == p.CategorySlug {
					out["category"] = maps.Clone(category)
				}
			}
			return out, nil
		}
		return nil, nil //nolint:nilnil
	})
	s.handle("products", func(req Request) (any, error) {
		search := strings.ToLower(req.StringVar("search"))
		category := req.StringVar("categorySlug")
		var out []any
		for _, p := range s.products {
			if search != "" && !strings.Contains(strings.ToLower(p.Name), search) {
				continue
			}
			if category != "" && p.CategorySlug != category {
				continue
			}
			out = append(out, productJSON(p))
		}
		return window(out, req), nil
	})
	s.handle("createProduct", func(req Request) (any, error) {
		input, _ := req.Variables["input"].(map[string]any) //nolint:forcetypeassert
		name, _ := input["name"].(string)                   //nolint:forcetypeassert
		if name == "" {
			return map[string]any{"success": false, "errors": []string{"name is required"}}, nil
		}
		price, err := decimal.NewFromString(fmt.Sprint(input["price"]))
		if err != nil {
			return map[string]any{"success": false, "errors": []string{"invalid price"}}, nil
		}
		s.nextID++
		p := Product{ID: strconv.Itoa(100 + s.nextID), Name: name, Price: price, IsActive: true,
			Slug: slugify(name)}
		if upload, ok := req.Upload("image"); ok {
			p.ImageURL = "/media/products/" + upload.Filename
		}
		s.products = append(s.products, p)
		return map[string]any{"success": true, "product": productJSON(p)}, nil
	})
	s.handle("updateProduct", func(req Request) (any, error) {
		slug := req.StringVar("slug")
		for i, p := range s.products {
			if p.Slug != slug {
				continue
			}
			input, _ := req.Variables["input"].(map[string]any) //nolint:forcetypeassert
			if name, ok := input["name"].(string); ok && name != "" {
				p.Name = name
			}
			if raw, ok := input["price"]; ok {
				price, err := decimal.NewFromString(fmt.Sprint(raw))
				if err != nil || price.IsNegative() {
					return map[string]any{"success": false, "errors": []string{"invalid price"}}, nil
				}
				p.Price = price
			}
			if upload, ok := req.Upload("image"); ok {
				p.ImageURL = "/media/products/" + upload.Filename
			}
			s.products[i] = p
			return map[string]any{"success": true, "product": productJSON(p)}, nil
		}
		return nil, errors.New("Product not found")
	})
	s.handle("orders", func(req Request) (any, error) {
		status := req.StringVar("status")
		var out []any
		for i := len(s.orders) - 1; i >= 0; i-- {
			o := s.orders[i]
			if status != "" && o.Status != status {
				continue
			}
			out = append(out, orderJSON(o))
		}
		return window(out, req), nil
	})
	s.handle("updateOrderStatus", func(req Request) (any, error) {
		status := req.StringVar("status")
		for _, o := range s.orders {
			if o.OrderID != req.StringVar("orderId") {
				continue
			}
			if !orderStatuses[status] {
				return map[string]any{"success": false, "order": orderJSON(o)}, nil
			}
			o.Status = status
			return map[string]any{"success": true, "order": orderJSON(o)}, nil
		}
		return nil, errors.New("Order not found")
	})
	s.handle("createOrder", func(req Request) (any, error) {
		if len(s.lines) == 0 {
			return nil, errors.New("The cart is empty")
		}
		input, _ := req.Variables["input"].(map[string]any) //nolint:forcetypeassert
		name, _ := input["customerName"].(string)           //nolint:forcetypeassert
		order := &Order{OrderID: fmt.Sprintf("ORD-%04d", len(s.orders)+1), CustomerName: name, Status: "placed"}
		for _, line := range s.lines {
			product, _ := s.product(line.productID)
			order.Items = append(order.Items, OrderItem{ProductID: line.productID, Name: product.Name, Quantity: line.quantity, UnitPrice: line.unitPrice})
		}
		order.GrandTotal = s.subtotal()
		s.orders = append(s.orders, order)
		s.lines = nil
		return map[string]any{"success": true, "order": orderJSON(order)}, nil
	})
	s.handle("contactMessages", func(req Request) (any, error) {
		var out []any
		for i := len(s.messages) - 1; i >= 0; i-- {
			m := s.messages[i]
			out = append(out, map[string]any{"id": m.ID, "name": m.Name, "email": m.Email, "message": m.Message})
		}
		return window(out, req), nil
	})
	s.handle("createContactMessage", func(req Request) (any, error) {
		if req.StringVar("email") == "" || req.StringVar("message") == "" {
			return map[string]any{"success": false}, nil
		}
		s.nextID++
		msg := ContactMessage{ID: strconv.Itoa(s.nextID), Name: req.StringVar("name"), Email: req.StringVar("email"), Message: req.StringVar("message")}
		s.messages = append(s.messages, msg)
		return map[string]any{"success": true, "contactMessage": map[string]any{"id": msg.ID, "name": msg.Name, "email": msg.Email, "message": msg.Message}}, nil
	})
	s.handle("deleteContactMessage", func(req Request) (any, error) {
		id := req.StringVar("id")
		for i, m := range s.messages {
			if m.ID == id {
				s.messages = append(s.messages[:i], s.messages[i+1:]...)
				return map[string]any{"success": true}, nil
			}
		}
		return map[string]any{"success": false}, nil
	})
}

func (s *Shop) categoriesJSON() []map[string]any {
	out := make([]map[string]any, 0, len(s.categories))
	for _, category := range s.categories {
		out = append(out, maps.Clone(category))
	}
	return out
}

func slugify(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, " ", "-"))
}

func window(items []any, req Request) []any {
	offset := req.IntVar("offset", 0)
	limit := req.IntVar("limit", len(items))
	if offset >= len(items) {
		return []any{}
	}
	end := min(offset+limit, len(items))
	return items[offset:end]
}

func (s *Shop) product(id string) (Product, bool) {
	for _, p := range s.products {
		if p.ID == id {
			return p, true
		}
	}
	return Product{}, false
}

func (s *Shop) line(productID string) *cartLine {
	for _, line := range s.lines {
		if line.productID == productID {
			return line
		}
	}
	return nil
}

func (s *Shop) deleteLine(productID string) {
	for i, line := range s.lines {
		if line.productID == productID {
			s.lines = append(s.lines[:i], s.lines[i+1:]...)
			return
		}
	}
}

func (s *Shop) count() int {
	n := 0
	for _, line := range s.lines {
		n += line.quantity
	}
	return n
}

func (s *Shop) subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, line := range s.lines {
		sum = sum.Add(line.unitPrice.Mul(decimal.NewFromInt(int64(line.quantity))))
	}
	if s.subtotalFunc != nil {
		return s.subtotalFunc(sum)
	}
	return sum
}

func (s *Shop) cartJSON() map[string]any {
	items := make([]any, 0, len(s.lines))
	for _, line := range s.lines {
		product, _ := s.product(line.productID)
		items = append(items, map[string]any{
			"id":                line.id,
			"quantity":          line.quantity,
			"unitPriceSnapshot": line.unitPrice.StringFixed(2),
			"lineTotal":         line.unitPrice.Mul(decimal.NewFromInt(int64(line.quantity))).StringFixed(2),
			"product":           productJSON(product),
		})
	}
	return map[string]any{"subtotal": s.subtotal().StringFixed(2), "items": items}
}

func productJSON(p Product) map[string]any {
	var image any
	if p.ImageURL != "" {
		image = p.ImageURL
	}
	return map[string]any{
		"id":           p.ID,
		"name":         p.Name,
		"slug":         p.Slug,
		"price":        p.Price.StringFixed(2),
		"imageUrl":     image,
		"categorySlug": p.CategorySlug,
		"isActive":     p.IsActive,
	}
}

func orderJSON(o *Order) map[string]any {
	items := make([]any, 0, len(o.Items))
	sort.SliceStable(o.Items, func(i, j int) bool { return o.Items[i].ProductID < o.Items[j].ProductID })
	for _, item := range o.Items {
		items = append(items, map[string]any{
			"nameSnapshot":      item.Name,
			"quantity":          item.Quantity,
			"unitPriceSnapshot": item.UnitPrice.StringFixed(2),
			"lineTotal":         item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))).StringFixed(2),
		})
	}
	return map[string]any{
		"orderId":      o.OrderID,
		"customerName": o.CustomerName,
		"status":       o.Status,
		"grandTotal":   o.GrandTotal.StringFixed(2),
		"items":        items,
	}
}
