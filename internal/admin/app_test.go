package admin

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/erauner12/urshop-admin/internal/api"
	"github.com/erauner12/urshop-admin/internal/client"
	"github.com/erauner12/urshop-admin/internal/mockshop"
	"github.com/erauner12/urshop-admin/internal/query"
	"github.com/erauner12/urshop-admin/internal/secretstore"
	"github.com/erauner12/urshop-admin/internal/session"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type env struct {
	shop  *mockshop.Server
	url   string
	store *secretstore.Memory
}

func newEnv(t *testing.T) *env {
	t.Helper()
	shop, err := mockshop.New(mockshop.Config{JWTSecret: []byte("admin-test"), BcryptCost: bcrypt.MinCost})
	require.NoError(t, err)
	server := httptest.NewServer(shop.Routes())
	t.Cleanup(server.Close)
	return &env{shop: shop, url: server.URL, store: secretstore.NewMemory()}
}

func (e *env) app(t *testing.T) *App {
	t.Helper()
	a := New(Options{
		BaseURL:  e.url,
		Store:    e.store,
		Client:   client.Options{Timeout: 5 * time.Second},
		PageSize: 20,
	})
	a.Start(context.Background())
	return a
}

func (e *env) loggedIn(t *testing.T) *App {
	t.Helper()
	a := e.app(t)
	_, err := a.Login(context.Background(), mockshop.DefaultAdminEmail, mockshop.DefaultAdminPassword)
	require.NoError(t, err)
	return a
}

func TestLoginAndRestore(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	a := e.app(t)
	require.Equal(t, session.StatusUnauthenticated, a.Session().Status)

	admin, err := a.Login(ctx, mockshop.DefaultAdminEmail, mockshop.DefaultAdminPassword)
	require.NoError(t, err)
	require.Equal(t, mockshop.DefaultAdminID, admin.ID)
	require.Equal(t, session.StatusAuthenticated, a.Session().Status)
	require.False(t, a.Session().ExpiresAt.IsZero())

	// A second app over the same store picks the session up
	restored := e.app(t)
	require.Equal(t, session.StatusAuthenticated, restored.Session().Status)
	profile, err := restored.Profile(ctx)
	require.NoError(t, err)
	require.Equal(t, mockshop.DefaultAdminEmail, profile.Email)
}

func TestLogin_WrongPassword(t *testing.T) {
	e := newEnv(t)
	a := e.app(t)

	_, err := a.Login(context.Background(), mockshop.DefaultAdminEmail, "nope")
	require.ErrorIs(t, err, client.ErrUnauthorized)
	require.Equal(t, session.StatusUnauthenticated, a.Session().Status)
}

func TestLogout(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.loggedIn(t)

	var statuses []session.Status
	unsubscribe := a.OnStatusChange(func(s session.Status) { statuses = append(statuses, s) })
	defer unsubscribe()

	_, err := a.Profile(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, a.Cache().Len())

	a.Logout(ctx)
	require.Equal(t, []session.Status{session.StatusUnauthenticated}, statuses)
	require.Zero(t, a.Cache().Len())

	_, err = a.Profile(ctx)
	require.ErrorIs(t, err, client.ErrUnauthorized)
	require.Zero(t, e.shop.RefreshCalls())

	_, err = e.store.Get(ctx, session.RefreshTokenKey)
	require.ErrorIs(t, err, secretstore.ErrNotFound)
}

func TestExpiredAccessTokenRefreshesTransparently(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.loggedIn(t)
	before := a.Session()

	e.shop.ExpireAccessTokens()
	e.shop.SetRefreshDelay(100 * time.Millisecond)

	stats, err := a.Dashboard(ctx, api.DateRange{})
	require.NoError(t, err)
	require.Equal(t, 45, stats.Stats.Products)

	require.EqualValues(t, 1, e.shop.RefreshCalls())
	require.EqualValues(t, 1, a.Refresher().Calls())
	require.Equal(t, client.RefreshIdle, a.Refresher().State())

	after := a.Session()
	require.NotEqual(t, before.AccessToken, after.AccessToken)
	require.NotEqual(t, before.RefreshToken, after.RefreshToken)

	// The rotated pair was mirrored to the store
	persisted, err := e.store.Get(ctx, session.RefreshTokenKey)
	require.NoError(t, err)
	require.Equal(t, after.RefreshToken, persisted)
}

func TestConcurrentUnauthorizedShareOneRefresh(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.loggedIn(t)

	e.shop.ExpireAccessTokens()
	e.shop.SetRefreshDelay(200 * time.Millisecond)

	ids := []string{"o001", "o002", "o003", "o004", "o005", "o006", "o007", "o008"}
	var wg sync.WaitGroup
	errs := make([]error, len(ids))
	for i, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = a.Order(ctx, id)
		}()
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, ids[i])
	}
	require.EqualValues(t, 1, e.shop.RefreshCalls())
}

func TestRefreshFailureKeepsSessionAndSurfacesUnauthorized(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.loggedIn(t)

	e.shop.ExpireAccessTokens()
	e.shop.RevokeRefreshTokens(mockshop.DefaultAdminID)

	_, err := a.Profile(ctx)
	require.ErrorIs(t, err, client.ErrUnauthorized)
	require.EqualValues(t, 1, e.shop.RefreshCalls())
	require.Equal(t, session.StatusAuthenticated, a.Session().Status, "no forced logout")
}

func TestProductsPaginationAndFilterSwitch(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.loggedIn(t)

	products := a.Products(api.ProductFilter{})
	require.NoError(t, products.LoadPages(ctx, 5))
	require.Len(t, products.Items(), 45)
	require.Equal(t, 3, products.Page())
	require.False(t, products.HasMore())

	require.True(t, products.SetCriteria(api.ProductFilter{Brand: "Acme"}))
	require.Empty(t, products.Items())

	loaded, err := products.LoadMore(ctx)
	require.NoError(t, err)
	require.True(t, loaded)
	require.Len(t, products.Items(), 11)
	for _, p := range products.Items() {
		require.Equal(t, "Acme", p.Brand)
	}
	require.False(t, products.HasMore())
}

func TestStockUpdateInvalidatesListings(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.loggedIn(t)

	out := a.OutOfStock()
	_, err := out.LoadMore(ctx)
	require.NoError(t, err)
	require.Len(t, out.Items(), 6)

	p, err := a.UpdateStock(ctx, "p007", 12)
	require.NoError(t, err)
	require.Equal(t, 12, p.Stock)

	out.Reset()
	_, err = out.LoadMore(ctx)
	require.NoError(t, err)
	require.Len(t, out.Items(), 5)

	product, err := a.Product(ctx, "p007")
	require.NoError(t, err)
	require.Equal(t, 12, product.Stock)
}

func TestProductLookup(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.loggedIn(t)

	p, err := a.Product(ctx, "p010")
	require.NoError(t, err)
	require.Equal(t, "Product 010", p.Name)

	_, err = a.Product(ctx, "p999")
	require.ErrorIs(t, err, client.ErrNotFound)

	require.NoError(t, a.DeleteProduct(ctx, "p010"))
	_, err = a.Product(ctx, "p010")
	require.ErrorIs(t, err, client.ErrNotFound)
}

func TestUpdateOrderStatusInvalidatesOrder(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.loggedIn(t)

	order, err := a.Order(ctx, "o003")
	require.NoError(t, err)
	require.Equal(t, api.OrderDelivered, order.Status)

	_, err = a.UpdateOrderStatus(ctx, "o003", api.OrderCancelled)
	require.NoError(t, err)

	entry, ok := a.Cache().Peek(query.KeyOf(query.KindOrder, "o003"))
	require.True(t, ok)
	require.True(t, entry.Stale)

	order, err = a.Order(ctx, "o003")
	require.NoError(t, err)
	require.Equal(t, api.OrderCancelled, order.Status)
}

func TestFailedMutationLeavesCache(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.loggedIn(t)

	_, err := a.Order(ctx, "o003")
	require.NoError(t, err)

	_, err = a.UpdateOrderStatus(ctx, "o003", "lost")
	require.Error(t, err)

	entry, ok := a.Cache().Peek(query.KeyOf(query.KindOrder, "o003"))
	require.True(t, ok)
	require.False(t, entry.Stale)
}

func TestOrdersPaginator(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.loggedIn(t)

	orders := a.Orders(api.OrderFilter{})
	_, err := orders.LoadMore(ctx)
	require.NoError(t, err)
	require.Len(t, orders.Items(), 20)
	require.True(t, orders.HasMore(), "full page without total means maybe more")

	_, err = orders.LoadMore(ctx)
	require.NoError(t, err)
	require.Len(t, orders.Items(), 30)
	require.False(t, orders.HasMore())
	require.Equal(t, "o030", orders.Items()[0].ID)

	orders.SetCriteria(api.OrderFilter{Status: api.OrderShipped})
	_, err = orders.LoadMore(ctx)
	require.NoError(t, err)
	require.Len(t, orders.Items(), 6)
}

func TestUsersAndUserOrders(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.loggedIn(t)

	users := a.Users("")
	_, err := users.LoadMore(ctx)
	require.NoError(t, err)
	require.Len(t, users.Items(), 5)
	require.Equal(t, 5, users.Total())

	orders := a.UserOrders("u002")
	_, err = orders.LoadMore(ctx)
	require.NoError(t, err)
	require.Len(t, orders.Items(), 6)
}

func TestCategoriesTree(t *testing.T) {
	e := newEnv(t)
	a := e.loggedIn(t)

	tree, err := a.Categories(context.Background())
	require.NoError(t, err)
	require.Len(t, tree, 3)
	for _, top := range tree {
		require.Len(t, top.Children, 1)
		require.Equal(t, top.ID, top.Children[0].ParentID)
		require.Len(t, top.Children[0].Children, 1)
		require.Equal(t, top.Children[0].ID, top.Children[0].Children[0].ParentID)
	}
}

func TestDashboardIsCached(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.loggedIn(t)
	may := api.DateRange{From: "2024-05-01", To: "2024-05-31"}

	d, err := a.Dashboard(ctx, may)
	require.NoError(t, err)
	require.Equal(t, 24, d.Sales.Orders)
	require.Len(t, d.Brands, 4)
	require.Equal(t, 3, a.Cache().Len())

	daily, err := a.DailyReports(ctx, may)
	require.NoError(t, err)
	require.Len(t, daily, 24)

	_, err = a.Dashboard(ctx, may)
	require.NoError(t, err)
	require.Equal(t, 4, a.Cache().Len())
}

func TestSweepEvictsUnusedResults(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := New(Options{
		BaseURL: e.url,
		Store:   e.store,
		Query:   query.Options{GCTime: time.Millisecond},
	})
	a.Start(ctx)
	_, err := a.Login(ctx, mockshop.DefaultAdminEmail, mockshop.DefaultAdminPassword)
	require.NoError(t, err)

	_, err = a.Profile(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, a.Cache().Len())

	time.Sleep(5 * time.Millisecond)
	require.Equal(t, 1, a.Sweep())
	require.Zero(t, a.Cache().Len())
}
