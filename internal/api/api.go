// Package api binds the admin backend's REST endpoints to typed calls.
package api

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"

	"github.com/erauner12/urshop-admin/internal/client"
)

// Endpoint paths, relative to the backend base URL.
const (
	PathLogin            = client.LoginPath
	PathRefresh          = client.RefreshPath
	PathMe               = "/admin/me"
	PathProducts         = "/admin/getproducts"
	PathAddProduct       = "/admin/addproduct"
	PathProduct          = "/admin/product/"  // + id, PUT
	PathDeleteProduct    = "/admin/products/" // + id, DELETE
	PathStock            = "/admin/stockproduct"
	PathCategories       = "/admin/categories"
	PathSubCategories    = "/admin/categories/%s/sub"
	PathSubSubCategories = "/admin/subcategories/%s/sub"
	PathOrders           = "/admin/allorders/date"
	PathOrder            = "/admin/orders/" // + id
	PathOrderStatus      = "/admin/orders/status"
	PathReport           = "/admin/report"
	PathReports          = "/admin/reports"
	PathBrandStats       = "/admin/brand-stats"
	PathStats            = "/admin/stats"
	PathOutOfStock       = "/admin/out-of-stock"
	PathLowStock         = "/admin/low-stock"
	PathUsers            = "/admin/userlist"
	PathUserOrders       = "/admin/orders/user/" // + id
)

// API is a typed view of the admin backend.
type API struct {
	c *client.Client
}

func New(c *client.Client) *API {
	return &API{c: c}
}

// Login exchanges credentials for a token pair. It never triggers a refresh.
func (a *API) Login(ctx context.Context, email, password string) (LoginResponse, error) {
	var out LoginResponse
	err := a.c.SendJSON(ctx, http.MethodPost, PathLogin, LoginRequest{Email: email, Password: password}, &out)
	if err != nil {
		return LoginResponse{}, fmt.Errorf("login: %w", err)
	}
	return out, nil
}

func (a *API) Me(ctx context.Context) (Admin, error) {
	var out Admin
	err := a.c.GetJSON(ctx, PathMe, nil, &out)
	return out, err
}

func (a *API) UpdateMe(ctx context.Context, in ProfileUpdate) (Admin, error) {
	var out Admin
	err := a.c.SendJSON(ctx, http.MethodPut, PathMe, in, &out)
	return out, err
}

func (a *API) Products(ctx context.Context, f ProductFilter, page, limit int) (List[Product], error) {
	var out List[Product]
	err := a.c.GetJSON(ctx, PathProducts, withPage(f.Values(), page, limit), &out)
	return out, err
}

// AddProduct creates a product from a multipart form.
func (a *API) AddProduct(ctx context.Context, in ProductInput) (Product, error) {
	return a.sendProduct(ctx, http.MethodPost, PathAddProduct, in)
}

// UpdateProduct replaces a product's fields from a multipart form.
func (a *API) UpdateProduct(ctx context.Context, id string, in ProductInput) (Product, error) {
	return a.sendProduct(ctx, http.MethodPut, PathProduct+url.PathEscape(id), in)
}

func (a *API) sendProduct(ctx context.Context, method, path string, in ProductInput) (Product, error) {
	body, contentType, err := encodeProduct(in)
	if err != nil {
		return Product{}, err
	}
	req, err := a.c.NewRequest(ctx, method, path, nil, bytes.NewReader(body), contentType)
	if err != nil {
		return Product{}, err
	}

	var out Product
	err = a.c.Send(ctx, req, &out)
	return out, err
}

func (a *API) DeleteProduct(ctx context.Context, id string) error {
	req, err := a.c.NewRequest(ctx, http.MethodDelete, PathDeleteProduct+url.PathEscape(id), nil, nil, "")
	if err != nil {
		return err
	}
	return a.c.Send(ctx, req, nil)
}

func (a *API) UpdateStock(ctx context.Context, productID string, stock int) (Product, error) {
	var out Product
	err := a.c.SendJSON(ctx, http.MethodPost, PathStock, StockUpdate{ProductID: productID, Stock: stock}, &out)
	return out, err
}

func (a *API) Categories(ctx context.Context) ([]Category, error) {
	return a.categories(ctx, PathCategories)
}

func (a *API) SubCategories(ctx context.Context, categoryID string) ([]Category, error) {
	return a.categories(ctx, fmt.Sprintf(PathSubCategories, url.PathEscape(categoryID)))
}

func (a *API) SubSubCategories(ctx context.Context, subCategoryID string) ([]Category, error) {
	return a.categories(ctx, fmt.Sprintf(PathSubSubCategories, url.PathEscape(subCategoryID)))
}

func (a *API) categories(ctx context.Context, path string) ([]Category, error) {
	var out List[Category]
	if err := a.c.GetJSON(ctx, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (a *API) Orders(ctx context.Context, f OrderFilter, page, limit int) (List[Order], error) {
	var out List[Order]
	err := a.c.GetJSON(ctx, PathOrders, withPage(f.Values(), page, limit), &out)
	return out, err
}

func (a *API) Order(ctx context.Context, id string) (Order, error) {
	var out Order
	err := a.c.GetJSON(ctx, PathOrder+url.PathEscape(id), nil, &out)
	return out, err
}

func (a *API) UpdateOrderStatus(ctx context.Context, id string, status OrderStatus) (Order, error) {
	if !status.Valid() {
		return Order{}, fmt.Errorf("invalid order status %q", status)
	}
	var out Order
	err := a.c.SendJSON(ctx, http.MethodPut, PathOrderStatus, OrderStatusUpdate{OrderID: id, Status: status}, &out)
	return out, err
}

func (a *API) SalesReport(ctx context.Context, r DateRange) (SalesReport, error) {
	var out SalesReport
	err := a.c.GetJSON(ctx, PathReport, r.Values(), &out)
	return out, err
}

func (a *API) DailyReports(ctx context.Context, r DateRange) ([]DailyReport, error) {
	var out List[DailyReport]
	if err := a.c.GetJSON(ctx, PathReports, r.Values(), &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (a *API) BrandStats(ctx context.Context) ([]BrandStat, error) {
	var out List[BrandStat]
	if err := a.c.GetJSON(ctx, PathBrandStats, nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (a *API) Stats(ctx context.Context) (Stats, error) {
	var out Stats
	err := a.c.GetJSON(ctx, PathStats, nil, &out)
	return out, err
}

func (a *API) OutOfStock(ctx context.Context, page, limit int) (List[Product], error) {
	var out List[Product]
	err := a.c.GetJSON(ctx, PathOutOfStock, withPage(nil, page, limit), &out)
	return out, err
}

// LowStock lists products with stock at or below threshold (backend default
// when threshold is 0).
func (a *API) LowStock(ctx context.Context, threshold, page, limit int) (List[Product], error) {
	v := url.Values{}
	if threshold > 0 {
		v.Set("threshold", strconv.Itoa(threshold))
	}
	var out List[Product]
	err := a.c.GetJSON(ctx, PathLowStock, withPage(v, page, limit), &out)
	return out, err
}

func (a *API) Users(ctx context.Context, search string, page, limit int) (List[User], error) {
	v := url.Values{}
	if search != "" {
		v.Set("search", search)
	}
	var out List[User]
	err := a.c.GetJSON(ctx, PathUsers, withPage(v, page, limit), &out)
	return out, err
}

func (a *API) UserOrders(ctx context.Context, userID string, page, limit int) (List[Order], error) {
	var out List[Order]
	err := a.c.GetJSON(ctx, PathUserOrders+url.PathEscape(userID), withPage(nil, page, limit), &out)
	return out, err
}

// encodeProduct builds the multipart body in memory so the request can be
// replayed after a token refresh.
func encodeProduct(in ProductInput) ([]byte, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	price := ""
	if in.Price > 0 {
		price = strconv.FormatFloat(in.Price, 'f', -1, 64)
	}
	fields := []struct{ name, value string }{
		{"name", in.Name},
		{"description", in.Description},
		{"brand", in.Brand},
		{"price", price},
		{"stock", strconv.Itoa(in.Stock)},
		{"category_id", in.CategoryID},
		{"subcategory_id", in.SubCategoryID},
		{"subsubcategory_id", in.SubSubCategoryID},
	}
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		if err := mw.WriteField(f.name, f.value); err != nil {
			return nil, "", fmt.Errorf("failed to write field %s: %w", f.name, err)
		}
	}

	for _, img := range in.Images {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="images"; filename=%q`, img.Filename))
		ct := img.ContentType
		if ct == "" {
			ct = http.DetectContentType(img.Data)
		}
		h.Set("Content-Type", ct)

		part, err := mw.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create image part: %w", err)
		}
		if _, err := part.Write(img.Data); err != nil {
			return nil, "", fmt.Errorf("failed to write image %s: %w", img.Filename, err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), mw.FormDataContentType(), nil
}
