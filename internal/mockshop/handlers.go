package mockshop

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/erauner12/urshop-admin/internal/api"
	"github.com/erauner12/urshop-admin/internal/client"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	maxUploadSize   = 10 << 20
)

// Login handles POST /admin/login
func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	s.loginCalls.Add(1)
	logger := log.Ctx(r.Context())

	var req api.LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid json")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "email and password are required")
		return
	}

	admin, ok := s.catalog.adminByEmail(req.Email)
	if !ok || bcrypt.CompareHashAndPassword(admin.passwordHash, []byte(req.Password)) != nil {
		logger.Warn().Str("email", req.Email).Msg("login rejected")
		writeError(w, r, http.StatusUnauthorized, "invalid_credentials", "wrong email or password")
		return
	}

	access, err := s.issueAccessToken(admin.ID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal", "failed to sign token")
		return
	}

	logger.Info().Str("adminId", admin.ID).Msg("admin logged in")
	writeJSON(w, http.StatusOK, api.LoginResponse{
		AccessToken:  access,
		RefreshToken: s.tokens.Issue(admin.ID),
		Admin:        admin.Admin,
	})
}

// Refresh handles POST /admin/refresh
// The presented refresh token is revoked and replaced on every call.
func (s *Server) Refresh(w http.ResponseWriter, r *http.Request) {
	s.refreshCalls.Add(1)
	logger := log.Ctx(r.Context())

	if d := time.Duration(s.refreshDelay.Load()); d > 0 {
		select {
		case <-time.After(d):
		case <-r.Context().Done():
			return
		}
	}

	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := decodeJSON(w, r, &req); err != nil || req.RefreshToken == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "refresh_token is required")
		return
	}

	adminID, next, ok := s.tokens.Rotate(req.RefreshToken)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "invalid_refresh_token", "refresh token is invalid or expired")
		return
	}

	access, err := s.issueAccessToken(adminID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal", "failed to sign token")
		return
	}

	logger.Info().Str("adminId", adminID).Msg("tokens refreshed")
	writeJSON(w, http.StatusOK, client.TokenPair{AccessToken: access, RefreshToken: next})
}

// GetMe handles GET /admin/me
func (s *Server) GetMe(w http.ResponseWriter, r *http.Request) {
	admin, ok := s.catalog.admin(AdminID(r.Context()))
	if !ok {
		writeError(w, r, http.StatusNotFound, "not_found", "admin not found")
		return
	}
	writeJSON(w, http.StatusOK, admin)
}

// UpdateMe handles PUT /admin/me
func (s *Server) UpdateMe(w http.ResponseWriter, r *http.Request) {
	var in api.ProfileUpdate
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid json")
		return
	}
	admin, ok := s.catalog.updateAdmin(AdminID(r.Context()), in)
	if !ok {
		writeError(w, r, http.StatusNotFound, "not_found", "admin not found")
		return
	}
	writeJSON(w, http.StatusOK, admin)
}

// ListProducts handles GET /admin/getproducts?search=&category=&brand=&page=&limit=
func (s *Server) ListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := api.ProductFilter{
		Search:     q.Get("search"),
		CategoryID: q.Get("category"),
		Brand:      q.Get("brand"),
	}
	writeProductPage(w, r, s.catalog.listProducts(filter, nil))
}

// OutOfStock handles GET /admin/out-of-stock
func (s *Server) OutOfStock(w http.ResponseWriter, r *http.Request) {
	items := s.catalog.listProducts(api.ProductFilter{}, func(p api.Product) bool { return p.Stock == 0 })
	writeProductPage(w, r, items)
}

// LowStock handles GET /admin/low-stock?threshold=
func (s *Server) LowStock(w http.ResponseWriter, r *http.Request) {
	threshold := parseLimit(r.URL.Query().Get("threshold"), DefaultLowStockThreshold, 1<<30)
	items := s.catalog.listProducts(api.ProductFilter{}, func(p api.Product) bool {
		return p.Stock > 0 && p.Stock <= threshold
	})
	writeProductPage(w, r, items)
}

func writeProductPage(w http.ResponseWriter, r *http.Request, items []api.Product) {
	page := parsePage(r.URL.Query().Get("page"))
	limit := parseLimit(r.URL.Query().Get("limit"), defaultPageSize, maxPageSize)
	writeJSON(w, http.StatusOK, api.List[api.Product]{
		Data:  pageOf(items, page, limit),
		Total: len(items),
		Page:  page,
	})
}

// AddProduct handles POST /admin/addproduct (multipart/form-data)
func (s *Server) AddProduct(w http.ResponseWriter, r *http.Request) {
	in, err := parseProductForm(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if in.Name == "" || in.Price <= 0 {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "name and a positive price are required")
		return
	}
	if in.Stock < 0 {
		in.Stock = 0
	}
	if in.CategoryID != "" && !s.catalog.categoryExists(in.CategoryID) {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "unknown category")
		return
	}

	p := s.catalog.addProduct(in)
	log.Ctx(r.Context()).Info().Str("productId", p.ID).Msg("product created")
	writeJSON(w, http.StatusCreated, p)
}

// UpdateProduct handles PUT /admin/product/{id} (multipart/form-data)
func (s *Server) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	in, err := parseProductForm(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	p, err := s.catalog.updateProduct(id, in)
	if errors.Is(err, errNotFound) {
		writeError(w, r, http.StatusNotFound, "not_found", "product not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// DeleteProduct handles DELETE /admin/products/{id}
func (s *Server) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.catalog.deleteProduct(id) {
		writeError(w, r, http.StatusNotFound, "not_found", "product not found")
		return
	}
	log.Ctx(r.Context()).Info().Str("productId", id).Msg("product deleted")
	w.WriteHeader(http.StatusNoContent)
}

// UpdateStock handles POST /admin/stockproduct
func (s *Server) UpdateStock(w http.ResponseWriter, r *http.Request) {
	var in api.StockUpdate
	if err := decodeJSON(w, r, &in); err != nil || in.ProductID == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "product_id is required")
		return
	}
	if in.Stock < 0 {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "stock must not be negative")
		return
	}

	p, err := s.catalog.setStock(in.ProductID, in.Stock)
	if errors.Is(err, errNotFound) {
		writeError(w, r, http.StatusNotFound, "not_found", "product not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ListCategories handles GET /admin/categories (top level only)
func (s *Server) ListCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, api.List[api.Category]{Data: s.catalog.childCategories(""), Page: 1})
}

// ListSubCategories handles GET /admin/categories/{id}/sub and
// GET /admin/subcategories/{id}/sub
func (s *Server) ListSubCategories(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.catalog.categoryExists(id) {
		writeError(w, r, http.StatusNotFound, "not_found", "category not found")
		return
	}
	writeJSON(w, http.StatusOK, api.List[api.Category]{Data: s.catalog.childCategories(id), Page: 1})
}

// ListOrders handles GET /admin/allorders/date?status=&from=&to=&page=&limit=
// Like the real backend it does not report a total.
func (s *Server) ListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status := api.OrderStatus(q.Get("status"))
	if status != "" && !status.Valid() {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "unknown order status")
		return
	}
	filter := api.OrderFilter{Status: status, From: q.Get("from"), To: q.Get("to")}
	writeOrderPage(w, r, s.catalog.listOrders(filter, ""))
}

// ListUserOrders handles GET /admin/orders/user/{id}
func (s *Server) ListUserOrders(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	if !s.catalog.userExists(userID) {
		writeError(w, r, http.StatusNotFound, "not_found", "user not found")
		return
	}
	writeOrderPage(w, r, s.catalog.listOrders(api.OrderFilter{}, userID))
}

func writeOrderPage(w http.ResponseWriter, r *http.Request, orders []api.Order) {
	page := parsePage(r.URL.Query().Get("page"))
	limit := parseLimit(r.URL.Query().Get("limit"), defaultPageSize, maxPageSize)
	writeJSON(w, http.StatusOK, api.List[api.Order]{Data: pageOf(orders, page, limit), Page: page})
}

// GetOrder handles GET /admin/orders/{id}
func (s *Server) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, ok := s.catalog.order(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, r, http.StatusNotFound, "not_found", "order not found")
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// UpdateOrderStatus handles PUT /admin/orders/status
func (s *Server) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var in api.OrderStatusUpdate
	if err := decodeJSON(w, r, &in); err != nil || in.OrderID == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "order_id is required")
		return
	}
	if !in.Status.Valid() {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "unknown order status")
		return
	}

	o, err := s.catalog.setOrderStatus(in.OrderID, in.Status)
	if errors.Is(err, errNotFound) {
		writeError(w, r, http.StatusNotFound, "not_found", "order not found")
		return
	}

	log.Ctx(r.Context()).Info().
		Str("orderId", o.ID).
		Str("status", string(o.Status)).
		Msg("order status updated")
	writeJSON(w, http.StatusOK, o)
}

// SalesReport handles GET /admin/report?from=&to=
func (s *Server) SalesReport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	writeJSON(w, http.StatusOK, s.catalog.salesReport(q.Get("from"), q.Get("to")))
}

// DailyReports handles GET /admin/reports?from=&to=
func (s *Server) DailyReports(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	reports := s.catalog.dailyReports(q.Get("from"), q.Get("to"))
	writeJSON(w, http.StatusOK, api.List[api.DailyReport]{Data: reports, Total: len(reports), Page: 1})
}

// BrandStats handles GET /admin/brand-stats
func (s *Server) BrandStats(w http.ResponseWriter, r *http.Request) {
	stats := s.catalog.brandStats()
	writeJSON(w, http.StatusOK, api.List[api.BrandStat]{Data: stats, Total: len(stats), Page: 1})
}

// Stats handles GET /admin/stats
func (s *Server) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.catalog.stats())
}

// ListUsers handles GET /admin/userlist?search=&page=&limit=
func (s *Server) ListUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	users := s.catalog.listUsers(q.Get("search"))
	page := parsePage(q.Get("page"))
	limit := parseLimit(q.Get("limit"), defaultPageSize, maxPageSize)
	writeJSON(w, http.StatusOK, api.List[api.User]{Data: pageOf(users, page, limit), Total: len(users), Page: page})
}

// parseProductForm reads a product multipart form. A missing stock field is
// reported as -1 so updates can leave the stock unchanged.
func parseProductForm(r *http.Request) (api.Product, error) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		return api.Product{}, errors.New("expected multipart/form-data body")
	}

	in := api.Product{
		Name:             strings.TrimSpace(r.FormValue("name")),
		Description:      r.FormValue("description"),
		Brand:            r.FormValue("brand"),
		CategoryID:       r.FormValue("category_id"),
		SubCategoryID:    r.FormValue("subcategory_id"),
		SubSubCategoryID: r.FormValue("subsubcategory_id"),
		Stock:            -1,
	}

	if v := r.FormValue("price"); v != "" {
		price, err := strconv.ParseFloat(v, 64)
		if err != nil || price <= 0 {
			return api.Product{}, errors.New("price must be a positive number")
		}
		in.Price = price
	}
	if v := r.FormValue("stock"); v != "" {
		stock, err := strconv.Atoi(v)
		if err != nil || stock < 0 {
			return api.Product{}, errors.New("stock must be a non-negative integer")
		}
		in.Stock = stock
	}

	for _, fh := range r.MultipartForm.File["images"] {
		f, err := fh.Open()
		if err != nil {
			return api.Product{}, err
		}
		_, err = io.Copy(io.Discard, f)
		f.Close()
		if err != nil {
			return api.Product{}, err
		}
		in.Images = append(in.Images, newImagePath(fh.Filename))
	}

	return in, nil
}
