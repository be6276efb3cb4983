package mockshop

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/erauner12/urshop-admin/internal/api"
	"github.com/google/uuid"
)

// DefaultLowStockThreshold is used by /admin/low-stock without ?threshold
const DefaultLowStockThreshold = 5

var errNotFound = errors.New("not found")

type adminRecord struct {
	api.Admin
	passwordHash []byte
}

// catalog is the in-memory shop: admins, products, categories, orders and
// users. All methods are safe for concurrent use and return copies.
type catalog struct {
	mu         sync.RWMutex
	admins     map[string]*adminRecord // key: id
	products   map[string]*api.Product
	categories []api.Category
	orders     map[string]*api.Order
	users      []api.User
	seq        int
}

var (
	seedBrands   = []string{"Acme", "Globex", "Initech", "Umbrella"}
	seedStatuses = []api.OrderStatus{api.OrderPending, api.OrderProcessing, api.OrderShipped, api.OrderDelivered, api.OrderCancelled}
)

// newCatalog builds the deterministic seed data set: 3 top-level categories
// with one sub and sub-sub category each, 45 products, 5 users and 30 orders
// dated May 2024.
func newCatalog() *catalog {
	c := &catalog{
		admins:   make(map[string]*adminRecord),
		products: make(map[string]*api.Product),
		orders:   make(map[string]*api.Order),
	}

	for i, name := range []string{"Electronics", "Clothing", "Home"} {
		top := fmt.Sprintf("c%d", i+1)
		c.categories = append(c.categories,
			api.Category{ID: top, Name: name},
			api.Category{ID: top + "-1", Name: name + " Basics", ParentID: top},
			api.Category{ID: top + "-1-1", Name: name + " Essentials", ParentID: top + "-1"},
		)
	}

	for i := 1; i <= 45; i++ {
		cat := fmt.Sprintf("c%d", i%3+1)
		stock := 10 + i
		switch {
		case i%7 == 0:
			stock = 0
		case i%5 == 0:
			stock = 3
		}
		p := &api.Product{
			ID:               fmt.Sprintf("p%03d", i),
			Name:             fmt.Sprintf("Product %03d", i),
			Description:      fmt.Sprintf("Seed product number %d", i),
			Brand:            seedBrands[i%len(seedBrands)],
			Price:            5 + float64(i)*2.5,
			Stock:            stock,
			CategoryID:       cat,
			SubCategoryID:    cat + "-1",
			SubSubCategoryID: cat + "-1-1",
			CreatedAt:        time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Hour).Format(time.RFC3339),
		}
		c.products[p.ID] = p
	}

	for i := 1; i <= 5; i++ {
		c.users = append(c.users, api.User{
			ID:        fmt.Sprintf("u%03d", i),
			Name:      fmt.Sprintf("Customer %d", i),
			Email:     fmt.Sprintf("customer%d@example.com", i),
			CreatedAt: time.Date(2024, 3, i, 8, 0, 0, 0, time.UTC).Format(time.RFC3339),
		})
	}

	for i := 1; i <= 30; i++ {
		created := time.Date(2024, 5, i, 10, 0, 0, 0, time.UTC).Format(time.RFC3339)
		o := &api.Order{
			ID:        fmt.Sprintf("o%03d", i),
			UserID:    fmt.Sprintf("u%03d", i%5+1),
			Status:    seedStatuses[i%len(seedStatuses)],
			CreatedAt: created,
			UpdatedAt: created,
		}
		for j, pid := range []int{i%45 + 1, (i*7)%45 + 1} {
			p := c.products[fmt.Sprintf("p%03d", pid)]
			item := api.OrderItem{ProductID: p.ID, Name: p.Name, Quantity: j + 1, Price: p.Price}
			o.Items = append(o.Items, item)
			o.Total += item.Price * float64(item.Quantity)
		}
		c.orders[o.ID] = o
	}
	for i := range c.users {
		c.users[i].OrderCount = c.countUserOrdersLocked(c.users[i].ID)
	}

	c.seq = 1000
	return c
}

func (c *catalog) addAdmin(a api.Admin, hash []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.admins[a.ID] = &adminRecord{Admin: a, passwordHash: hash}
}

func (c *catalog) adminByEmail(email string) (adminRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, a := range c.admins {
		if strings.EqualFold(a.Email, email) {
			return *a, true
		}
	}
	return adminRecord{}, false
}

func (c *catalog) admin(id string) (api.Admin, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.admins[id]
	if !ok {
		return api.Admin{}, false
	}
	return a.Admin, true
}

func (c *catalog) updateAdmin(id string, in api.ProfileUpdate) (api.Admin, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.admins[id]
	if !ok {
		return api.Admin{}, false
	}
	if in.Name != "" {
		a.Name = in.Name
	}
	if in.Phone != "" {
		a.Phone = in.Phone
	}
	return a.Admin, true
}

// Products

func (c *catalog) listProducts(f api.ProductFilter, match func(api.Product) bool) []api.Product {
	c.mu.RLock()
	defer c.mu.RUnlock()

	search := strings.ToLower(f.Search)
	out := make([]api.Product, 0, len(c.products))
	for _, p := range c.products {
		if search != "" && !strings.Contains(strings.ToLower(p.Name), search) && !strings.Contains(strings.ToLower(p.Brand), search) {
			continue
		}
		if f.CategoryID != "" && p.CategoryID != f.CategoryID && p.SubCategoryID != f.CategoryID && p.SubSubCategoryID != f.CategoryID {
			continue
		}
		if f.Brand != "" && !strings.EqualFold(p.Brand, f.Brand) {
			continue
		}
		if match != nil && !match(*p) {
			continue
		}
		out = append(out, cloneProduct(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (c *catalog) product(id string) (api.Product, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.products[id]
	if !ok {
		return api.Product{}, false
	}
	return cloneProduct(p), true
}

func (c *catalog) addProduct(p api.Product) api.Product {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	p.ID = fmt.Sprintf("p%d", c.seq)
	p.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	c.products[p.ID] = &p
	return cloneProduct(&p)
}

// updateProduct applies the non-zero fields of in. Images are appended.
func (c *catalog) updateProduct(id string, in api.Product) (api.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.products[id]
	if !ok {
		return api.Product{}, errNotFound
	}
	if in.Name != "" {
		p.Name = in.Name
	}
	if in.Description != "" {
		p.Description = in.Description
	}
	if in.Brand != "" {
		p.Brand = in.Brand
	}
	if in.Price > 0 {
		p.Price = in.Price
	}
	if in.Stock >= 0 {
		p.Stock = in.Stock
	}
	if in.CategoryID != "" {
		p.CategoryID = in.CategoryID
	}
	if in.SubCategoryID != "" {
		p.SubCategoryID = in.SubCategoryID
	}
	if in.SubSubCategoryID != "" {
		p.SubSubCategoryID = in.SubSubCategoryID
	}
	p.Images = append(p.Images, in.Images...)
	return cloneProduct(p), nil
}

func (c *catalog) deleteProduct(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.products[id]; !ok {
		return false
	}
	delete(c.products, id)
	return true
}

func (c *catalog) setStock(id string, stock int) (api.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.products[id]
	if !ok {
		return api.Product{}, errNotFound
	}
	p.Stock = stock
	return cloneProduct(p), nil
}

// Categories

func (c *catalog) childCategories(parentID string) []api.Category {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := []api.Category{}
	for _, cat := range c.categories {
		if cat.ParentID == parentID {
			out = append(out, cat)
		}
	}
	return out
}

func (c *catalog) categoryExists(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, cat := range c.categories {
		if cat.ID == id {
			return true
		}
	}
	return false
}

// Orders

// listOrders returns matching orders, newest first.
func (c *catalog) listOrders(f api.OrderFilter, userID string) []api.Order {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]api.Order, 0, len(c.orders))
	for _, o := range c.orders {
		if userID != "" && o.UserID != userID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		if !inRange(o.CreatedAt, f.From, f.To) {
			continue
		}
		out = append(out, cloneOrder(o))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt > out[j].CreatedAt
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (c *catalog) order(id string) (api.Order, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	o, ok := c.orders[id]
	if !ok {
		return api.Order{}, false
	}
	return cloneOrder(o), true
}

func (c *catalog) setOrderStatus(id string, status api.OrderStatus) (api.Order, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.orders[id]
	if !ok {
		return api.Order{}, errNotFound
	}
	o.Status = status
	o.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	return cloneOrder(o), nil
}

func (c *catalog) countUserOrdersLocked(userID string) int {
	n := 0
	for _, o := range c.orders {
		if o.UserID == userID {
			n++
		}
	}
	return n
}

// Users

func (c *catalog) listUsers(search string) []api.User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	search = strings.ToLower(search)
	out := []api.User{}
	for _, u := range c.users {
		if search != "" && !strings.Contains(strings.ToLower(u.Name), search) && !strings.Contains(strings.ToLower(u.Email), search) {
			continue
		}
		out = append(out, u)
	}
	return out
}

func (c *catalog) userExists(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, u := range c.users {
		if u.ID == id {
			return true
		}
	}
	return false
}

// Reports. Cancelled orders never count towards sales.

func (c *catalog) salesReport(from, to string) api.SalesReport {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r := api.SalesReport{From: from, To: to}
	for _, o := range c.orders {
		if o.Status == api.OrderCancelled || !inRange(o.CreatedAt, from, to) {
			continue
		}
		r.Orders++
		r.Revenue += o.Total
		for _, it := range o.Items {
			r.ItemsSold += it.Quantity
		}
	}
	return r
}

func (c *catalog) dailyReports(from, to string) []api.DailyReport {
	c.mu.RLock()
	defer c.mu.RUnlock()
	byDate := map[string]*api.DailyReport{}
	for _, o := range c.orders {
		if o.Status == api.OrderCancelled || !inRange(o.CreatedAt, from, to) {
			continue
		}
		day := datePart(o.CreatedAt)
		r, ok := byDate[day]
		if !ok {
			r = &api.DailyReport{Date: day}
			byDate[day] = r
		}
		r.Orders++
		r.Revenue += o.Total
	}
	out := make([]api.DailyReport, 0, len(byDate))
	for _, r := range byDate {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

func (c *catalog) brandStats() []api.BrandStat {
	c.mu.RLock()
	defer c.mu.RUnlock()
	byBrand := map[string]*api.BrandStat{}
	brandOf := map[string]string{}
	for _, p := range c.products {
		s, ok := byBrand[p.Brand]
		if !ok {
			s = &api.BrandStat{Brand: p.Brand}
			byBrand[p.Brand] = s
		}
		s.Products++
		brandOf[p.ID] = p.Brand
	}
	for _, o := range c.orders {
		if o.Status == api.OrderCancelled {
			continue
		}
		for _, it := range o.Items {
			if s, ok := byBrand[brandOf[it.ProductID]]; ok {
				s.Sold += it.Quantity
				s.Revenue += it.Price * float64(it.Quantity)
			}
		}
	}
	out := make([]api.BrandStat, 0, len(byBrand))
	for _, s := range byBrand {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Brand < out[j].Brand })
	return out
}

func (c *catalog) stats() api.Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := api.Stats{Products: len(c.products), Orders: len(c.orders), Users: len(c.users)}
	for _, p := range c.products {
		switch {
		case p.Stock == 0:
			s.OutOfStock++
		case p.Stock <= DefaultLowStockThreshold:
			s.LowStock++
		}
	}
	for _, o := range c.orders {
		if o.Status == api.OrderPending {
			s.PendingOrders++
		}
		if o.Status != api.OrderCancelled {
			s.Revenue += o.Total
		}
	}
	return s
}

func newImagePath(filename string) string {
	return "/uploads/" + uuid.New().String() + "-" + filename
}

func cloneProduct(p *api.Product) api.Product {
	out := *p
	out.Images = append([]string(nil), p.Images...)
	return out
}

func cloneOrder(o *api.Order) api.Order {
	out := *o
	out.Items = append([]api.OrderItem(nil), o.Items...)
	return out
}

// datePart returns the YYYY-MM-DD prefix of an RFC 3339 timestamp
func datePart(ts string) string {
	if len(ts) < 10 {
		return ts
	}
	return ts[:10]
}

// inRange reports whether the date of ts lies within [from, to]; empty bounds
// are open.
func inRange(ts, from, to string) bool {
	day := datePart(ts)
	if from != "" && day < from {
		return false
	}
	if to != "" && day > to {
		return false
	}
	return true
}
