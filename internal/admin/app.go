// Package admin composes the session, the authenticated HTTP client, the
// query cache and paginated lists into the operations an admin screen
// performs.
package admin

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/erauner12/urshop-admin/internal/api"
	"github.com/erauner12/urshop-admin/internal/client"
	"github.com/erauner12/urshop-admin/internal/config"
	"github.com/erauner12/urshop-admin/internal/paginate"
	"github.com/erauner12/urshop-admin/internal/query"
	"github.com/erauner12/urshop-admin/internal/secretstore"
	"github.com/erauner12/urshop-admin/internal/session"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Options configures an App.
type Options struct {
	BaseURL  string
	Store    secretstore.Store
	Client   client.Options
	Query    query.Options
	PageSize int
}

// App is one admin client: one session, one HTTP client, one cache.
type App struct {
	state    *session.State
	client   *client.Client
	api      *api.API
	cache    *query.Cache
	pageSize int
}

// New wires an App. Call Start before the first request to restore a
// persisted session.
func New(opts Options) *App {
	state := session.New(opts.Store)
	c := client.New(opts.BaseURL, state, opts.Client)
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	return &App{
		state:    state,
		client:   c,
		api:      api.New(c),
		cache:    query.New(opts.Query),
		pageSize: pageSize,
	}
}

// FromConfig builds an App from the loaded configuration and an open store.
func FromConfig(cfg config.Config, store secretstore.Store) *App {
	return New(Options{
		BaseURL:  cfg.BaseURL,
		Store:    store,
		Client:   client.Options{Timeout: cfg.Timeout},
		Query:    query.Options{StaleTime: cfg.StaleTime, GCTime: cfg.GCTime},
		PageSize: cfg.PageSize,
	})
}

// Start restores the persisted session.
func (a *App) Start(ctx context.Context) session.Session {
	return a.state.Restore(ctx)
}

// Session returns the current session.
func (a *App) Session() session.Session {
	return a.state.Snapshot()
}

// OnStatusChange registers fn for session status transitions.
func (a *App) OnStatusChange(fn func(session.Status)) (unsubscribe func()) {
	return a.state.Subscribe(fn)
}

func (a *App) Refresher() *client.Refresher {
	return a.client.Refresher()
}

func (a *App) Cache() *query.Cache {
	return a.cache
}

// Login authenticates and stores the returned token pair. Cached data from a
// previous session is dropped.
func (a *App) Login(ctx context.Context, email, password string) (api.Admin, error) {
	out, err := a.api.Login(ctx, email, password)
	if err != nil {
		return api.Admin{}, err
	}
	a.state.SetTokens(ctx, out.AccessToken, out.RefreshToken)
	a.cache.Clear()

	log.Info().Str("adminId", out.Admin.ID).Msg("logged in")
	return out.Admin, nil
}

// Logout forgets the tokens and every cached result.
func (a *App) Logout(ctx context.Context) {
	a.state.Clear(ctx)
	a.cache.Clear()
	log.Info().Msg("logged out")
}

// Sweep evicts cache entries unused for longer than the GC time and returns
// how many were dropped. The CLI sweeps once per command; long-lived callers
// should call it periodically.
func (a *App) Sweep() int {
	return a.cache.Sweep(time.Now())
}

// Profile

func (a *App) Profile(ctx context.Context) (api.Admin, error) {
	return query.Fetch(ctx, a.cache, query.KeyOf(query.KindProfile, ""), a.api.Me)
}

func (a *App) UpdateProfile(ctx context.Context, in api.ProfileUpdate) (api.Admin, error) {
	return query.Mutate(ctx, a.cache, func(ctx context.Context) (api.Admin, error) {
		return a.api.UpdateMe(ctx, in)
	}, query.KindProfile)
}

// Products

// Products returns a paginator over the product listing. Changing the filter
// with SetCriteria restarts from page 1.
func (a *App) Products(filter api.ProductFilter) *paginate.Paginator[api.Product, api.ProductFilter] {
	return paginate.New(filter, a.pageSize, productID,
		func(ctx context.Context, f api.ProductFilter, page int) (paginate.Page[api.Product], error) {
			key := pageKey(query.KindProducts, "", f.Values(), page, a.pageSize)
			return fetchPage(ctx, a.cache, key, func(ctx context.Context) (api.List[api.Product], error) {
				return a.api.Products(ctx, f, page, a.pageSize)
			})
		})
}

func (a *App) OutOfStock() *paginate.Paginator[api.Product, struct{}] {
	return paginate.New(struct{}{}, a.pageSize, productID,
		func(ctx context.Context, _ struct{}, page int) (paginate.Page[api.Product], error) {
			key := pageKey(query.KindOutOfStock, "", nil, page, a.pageSize)
			return fetchPage(ctx, a.cache, key, func(ctx context.Context) (api.List[api.Product], error) {
				return a.api.OutOfStock(ctx, page, a.pageSize)
			})
		})
}

// LowStock lists products at or below threshold; 0 uses the backend default.
func (a *App) LowStock(threshold int) *paginate.Paginator[api.Product, int] {
	return paginate.New(threshold, a.pageSize, productID,
		func(ctx context.Context, threshold int, page int) (paginate.Page[api.Product], error) {
			key := pageKey(query.KindLowStock, strconv.Itoa(threshold), nil, page, a.pageSize)
			return fetchPage(ctx, a.cache, key, func(ctx context.Context) (api.List[api.Product], error) {
				return a.api.LowStock(ctx, threshold, page, a.pageSize)
			})
		})
}

// Product returns one product. The backend has no single-product read, so
// the listing is scanned.
func (a *App) Product(ctx context.Context, id string) (api.Product, error) {
	return query.Fetch(ctx, a.cache, query.KeyOf(query.KindProduct, id), func(ctx context.Context) (api.Product, error) {
		const limit = 100
		for page := 1; ; page++ {
			list, err := a.api.Products(ctx, api.ProductFilter{}, page, limit)
			if err != nil {
				return api.Product{}, err
			}
			for _, p := range list.Data {
				if p.ID == id {
					return p, nil
				}
			}
			if len(list.Data) < limit {
				return api.Product{}, fmt.Errorf("product %s: %w", id, client.ErrNotFound)
			}
		}
	})
}

// productTargets are the cache entries a product write can change.
func productTargets(id string) []query.Target {
	targets := []query.Target{
		query.KindProducts,
		query.KindOutOfStock,
		query.KindLowStock,
		query.KindStats,
		query.KindBrandStats,
	}
	if id != "" {
		targets = append(targets, query.KeyOf(query.KindProduct, id))
	}
	return targets
}

func (a *App) AddProduct(ctx context.Context, in api.ProductInput) (api.Product, error) {
	return query.Mutate(ctx, a.cache, func(ctx context.Context) (api.Product, error) {
		return a.api.AddProduct(ctx, in)
	}, productTargets("")...)
}

func (a *App) UpdateProduct(ctx context.Context, id string, in api.ProductInput) (api.Product, error) {
	return query.Mutate(ctx, a.cache, func(ctx context.Context) (api.Product, error) {
		return a.api.UpdateProduct(ctx, id, in)
	}, productTargets(id)...)
}

func (a *App) DeleteProduct(ctx context.Context, id string) error {
	_, err := query.Mutate(ctx, a.cache, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, a.api.DeleteProduct(ctx, id)
	}, productTargets(id)...)
	return err
}

func (a *App) UpdateStock(ctx context.Context, id string, stock int) (api.Product, error) {
	return query.Mutate(ctx, a.cache, func(ctx context.Context) (api.Product, error) {
		return a.api.UpdateStock(ctx, id, stock)
	}, productTargets(id)...)
}

// Categories

// CategoryNode is a category with its children.
type CategoryNode struct {
	api.Category
	Children []CategoryNode
}

// Categories loads the three-level category tree. Subtrees are fetched
// concurrently.
func (a *App) Categories(ctx context.Context) ([]CategoryNode, error) {
	top, err := query.Fetch(ctx, a.cache, query.KeyOf(query.KindCategories, ""), a.api.Categories)
	if err != nil {
		return nil, err
	}

	tree := make([]CategoryNode, len(top))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, cat := range top {
		tree[i].Category = cat
		g.Go(func() error {
			children, err := a.subCategories(gctx, cat.ID)
			if err != nil {
				return fmt.Errorf("category %s: %w", cat.ID, err)
			}
			tree[i].Children = children
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return tree, nil
}

func (a *App) subCategories(ctx context.Context, parentID string) ([]CategoryNode, error) {
	subs, err := query.Fetch(ctx, a.cache, query.KeyOf(query.KindSubCategories, parentID), func(ctx context.Context) ([]api.Category, error) {
		return a.api.SubCategories(ctx, parentID)
	})
	if err != nil {
		return nil, err
	}

	nodes := make([]CategoryNode, len(subs))
	for i, sub := range subs {
		leaves, err := query.Fetch(ctx, a.cache, query.KeyOf(query.KindSubSubCategories, sub.ID), func(ctx context.Context) ([]api.Category, error) {
			return a.api.SubSubCategories(ctx, sub.ID)
		})
		if err != nil {
			return nil, err
		}
		nodes[i].Category = sub
		for _, leaf := range leaves {
			nodes[i].Children = append(nodes[i].Children, CategoryNode{Category: leaf})
		}
	}
	return nodes, nil
}

// Orders

// Orders returns a paginator over orders, newest first. The backend reports
// no total, so HasMore is a guess.
func (a *App) Orders(filter api.OrderFilter) *paginate.Paginator[api.Order, api.OrderFilter] {
	return paginate.New(filter, a.pageSize, orderID,
		func(ctx context.Context, f api.OrderFilter, page int) (paginate.Page[api.Order], error) {
			key := pageKey(query.KindOrders, "", f.Values(), page, a.pageSize)
			return fetchPage(ctx, a.cache, key, func(ctx context.Context) (api.List[api.Order], error) {
				return a.api.Orders(ctx, f, page, a.pageSize)
			})
		})
}

func (a *App) Order(ctx context.Context, id string) (api.Order, error) {
	return query.Fetch(ctx, a.cache, query.KeyOf(query.KindOrder, id), func(ctx context.Context) (api.Order, error) {
		return a.api.Order(ctx, id)
	})
}

// UpdateOrderStatus changes an order's status and invalidates every listing
// and report that can show it.
func (a *App) UpdateOrderStatus(ctx context.Context, id string, status api.OrderStatus) (api.Order, error) {
	return query.Mutate(ctx, a.cache, func(ctx context.Context) (api.Order, error) {
		return a.api.UpdateOrderStatus(ctx, id, status)
	},
		query.KindOrders,
		query.KeyOf(query.KindOrder, id),
		query.KindUserOrders,
		query.KindStats,
		query.KindReport,
		query.KindReports,
		query.KindBrandStats,
	)
}

// Users

func (a *App) Users(search string) *paginate.Paginator[api.User, string] {
	return paginate.New(search, a.pageSize, func(u api.User) string { return u.ID },
		func(ctx context.Context, search string, page int) (paginate.Page[api.User], error) {
			key := pageKey(query.KindUsers, "", url.Values{"search": {search}}, page, a.pageSize)
			return fetchPage(ctx, a.cache, key, func(ctx context.Context) (api.List[api.User], error) {
				return a.api.Users(ctx, search, page, a.pageSize)
			})
		})
}

func (a *App) UserOrders(userID string) *paginate.Paginator[api.Order, string] {
	return paginate.New(userID, a.pageSize, orderID,
		func(ctx context.Context, userID string, page int) (paginate.Page[api.Order], error) {
			key := pageKey(query.KindUserOrders, userID, nil, page, a.pageSize)
			return fetchPage(ctx, a.cache, key, func(ctx context.Context) (api.List[api.Order], error) {
				return a.api.UserOrders(ctx, userID, page, a.pageSize)
			})
		})
}

// Reports

// Dashboard is the landing screen's data.
type Dashboard struct {
	Stats  api.Stats
	Sales  api.SalesReport
	Brands []api.BrandStat
}

// Dashboard fetches stats, the sales report for r and brand stats
// concurrently. The first failure cancels the others.
func (a *App) Dashboard(ctx context.Context, r api.DateRange) (Dashboard, error) {
	var d Dashboard
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		d.Stats, err = query.Fetch(gctx, a.cache, query.KeyOf(query.KindStats, ""), a.api.Stats)
		return err
	})
	g.Go(func() error {
		var err error
		d.Sales, err = a.SalesReport(gctx, r)
		return err
	})
	g.Go(func() error {
		var err error
		d.Brands, err = query.Fetch(gctx, a.cache, query.KeyOf(query.KindBrandStats, ""), a.api.BrandStats)
		return err
	})

	if err := g.Wait(); err != nil {
		return Dashboard{}, err
	}
	return d, nil
}

func (a *App) SalesReport(ctx context.Context, r api.DateRange) (api.SalesReport, error) {
	return query.Fetch(ctx, a.cache, query.NewKey(query.KindReport, "", r.Values()), func(ctx context.Context) (api.SalesReport, error) {
		return a.api.SalesReport(ctx, r)
	})
}

func (a *App) DailyReports(ctx context.Context, r api.DateRange) ([]api.DailyReport, error) {
	return query.Fetch(ctx, a.cache, query.NewKey(query.KindReports, "", r.Values()), func(ctx context.Context) ([]api.DailyReport, error) {
		return a.api.DailyReports(ctx, r)
	})
}

func productID(p api.Product) string { return p.ID }

func orderID(o api.Order) string { return o.ID }

func pageKey(kind query.Kind, id string, params url.Values, page, limit int) query.Key {
	if params == nil {
		params = url.Values{}
	}
	params.Set("page", strconv.Itoa(page))
	params.Set("limit", strconv.Itoa(limit))
	return query.NewKey(kind, id, params)
}

// fetchPage reads one list page through the cache.
func fetchPage[T any](ctx context.Context, c *query.Cache, key query.Key, fn func(context.Context) (api.List[T], error)) (paginate.Page[T], error) {
	list, err := query.Fetch(ctx, c, key, fn)
	if err != nil {
		return paginate.Page[T]{}, err
	}
	return paginate.Page[T]{Items: list.Data, Total: list.Total}, nil
}
