package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/erauner12/urshop-admin/internal/admin"
	"github.com/erauner12/urshop-admin/internal/api"
	"github.com/erauner12/urshop-admin/internal/config"
	"github.com/erauner12/urshop-admin/internal/paginate"
	"github.com/erauner12/urshop-admin/internal/session"
)

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, app *admin.App, args []string, out io.Writer) error
}

var commands = map[string]command{}

func register(name, summary string, run func(ctx context.Context, app *admin.App, args []string, out io.Writer) error) {
	commands[name] = command{name: name, summary: summary, run: run}
}

func init() {
	register("login", "log in and store the token pair", runLogin)
	register("logout", "forget the stored tokens", runLogout)
	register("whoami", "show the session and profile", runWhoami)
	register("products", "list products", runProducts)
	register("out-of-stock", "list products with no stock", runOutOfStock)
	register("low-stock", "list products running low", runLowStock)
	register("stock", "set a product's stock", runStock)
	register("delete-product", "delete a product", runDeleteProduct)
	register("orders", "list orders, newest first", runOrders)
	register("order", "show one order", runOrder)
	register("order-status", "change an order's status", runOrderStatus)
	register("dashboard", "show stats, sales and brands", runDashboard)
	register("categories", "show the category tree", runCategories)
	register("users", "list customers", runUsers)
	register("user-orders", "list a customer's orders", runUserOrders)
}

func newFlags(name string) *flag.FlagSet {
	return flag.NewFlagSet(appName+" "+name, flag.ContinueOnError)
}

func required(name, value string) error {
	if value == "" {
		return fmt.Errorf("-%s is required", name)
	}
	return nil
}

func table(out io.Writer, header string, rows func(w io.Writer)) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, header)
	rows(w)
	w.Flush()
}

// loadAll fetches up to pages pages, or every page when pages is 0.
func loadAll[T any, C comparable](ctx context.Context, p *paginate.Paginator[T, C], pages int) ([]T, error) {
	if pages > 0 {
		if err := p.LoadPages(ctx, pages); err != nil {
			return nil, err
		}
		return p.Items(), nil
	}
	for p.HasMore() {
		if _, err := p.LoadMore(ctx); err != nil {
			return nil, err
		}
	}
	return p.Items(), nil
}

func runLogin(ctx context.Context, app *admin.App, args []string, out io.Writer) error {
	fs := newFlags("login")
	email := fs.String("email", "", "admin email")
	password := fs.String("password", "", "admin password (default $URSHOP_PASSWORD)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *password == "" {
		*password = config.Env("URSHOP_PASSWORD", "")
	}
	if err := errors.Join(required("email", *email), required("password", *password)); err != nil {
		return err
	}

	profile, err := app.Login(ctx, *email, *password)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "logged in as %s <%s>\n", profile.Name, profile.Email)
	return nil
}

func runLogout(ctx context.Context, app *admin.App, _ []string, out io.Writer) error {
	app.Logout(ctx)
	fmt.Fprintln(out, "logged out")
	return nil
}

func runWhoami(ctx context.Context, app *admin.App, _ []string, out io.Writer) error {
	s := app.Session()
	fmt.Fprintf(out, "session: %s\n", s.Status)
	if s.Status != session.StatusAuthenticated {
		return nil
	}
	if !s.ExpiresAt.IsZero() {
		fmt.Fprintf(out, "access token expires: %s\n", s.ExpiresAt.Local().Format("2006-01-02 15:04:05"))
	}

	profile, err := app.Profile(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "admin: %s <%s> (%s)\n", profile.Name, profile.Email, profile.Role)
	if n := app.Refresher().Calls(); n > 0 {
		fmt.Fprintf(out, "token refreshed %d time(s)\n", n)
	}
	return nil
}

func printProducts(out io.Writer, products []api.Product) {
	table(out, "ID\tNAME\tBRAND\tPRICE\tSTOCK", func(w io.Writer) {
		for _, p := range products {
			fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%d\n", p.ID, p.Name, p.Brand, p.Price, p.Stock)
		}
	})
}

func runProducts(ctx context.Context, app *admin.App, args []string, out io.Writer) error {
	fs := newFlags("products")
	var f api.ProductFilter
	fs.StringVar(&f.Search, "search", "", "search name and brand")
	fs.StringVar(&f.CategoryID, "category", "", "category, sub category or sub-sub category id")
	fs.StringVar(&f.Brand, "brand", "", "brand")
	pages := fs.Int("pages", 1, "pages to load, 0 for all")
	if err := fs.Parse(args); err != nil {
		return err
	}

	p := app.Products(f)
	products, err := loadAll(ctx, p, *pages)
	if err != nil {
		return err
	}
	printProducts(out, products)
	if p.HasMore() {
		fmt.Fprintf(out, "showing %d of %d, use -pages for more\n", len(products), p.Total())
	}
	return nil
}

func runOutOfStock(ctx context.Context, app *admin.App, _ []string, out io.Writer) error {
	products, err := loadAll(ctx, app.OutOfStock(), 0)
	if err != nil {
		return err
	}
	printProducts(out, products)
	return nil
}

func runLowStock(ctx context.Context, app *admin.App, args []string, out io.Writer) error {
	fs := newFlags("low-stock")
	threshold := fs.Int("threshold", 0, "stock threshold, 0 for the backend default")
	if err := fs.Parse(args); err != nil {
		return err
	}
	products, err := loadAll(ctx, app.LowStock(*threshold), 0)
	if err != nil {
		return err
	}
	printProducts(out, products)
	return nil
}

func runStock(ctx context.Context, app *admin.App, args []string, out io.Writer) error {
	fs := newFlags("stock")
	id := fs.String("id", "", "product id")
	qty := fs.Int("qty", -1, "new stock quantity")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required("id", *id); err != nil {
		return err
	}
	if *qty < 0 {
		return errors.New("-qty must be zero or more")
	}

	p, err := app.UpdateStock(ctx, *id, *qty)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s stock is now %d\n", p.ID, p.Stock)
	return nil
}

func runDeleteProduct(ctx context.Context, app *admin.App, args []string, out io.Writer) error {
	fs := newFlags("delete-product")
	id := fs.String("id", "", "product id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required("id", *id); err != nil {
		return err
	}
	if err := app.DeleteProduct(ctx, *id); err != nil {
		return err
	}
	fmt.Fprintf(out, "deleted %s\n", *id)
	return nil
}

func printOrders(out io.Writer, orders []api.Order) {
	table(out, "ID\tUSER\tSTATUS\tTOTAL\tCREATED", func(w io.Writer) {
		for _, o := range orders {
			fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%s\n", o.ID, o.UserID, o.Status, o.Total, o.CreatedAt)
		}
	})
}

func runOrders(ctx context.Context, app *admin.App, args []string, out io.Writer) error {
	fs := newFlags("orders")
	var status string
	var f api.OrderFilter
	fs.StringVar(&status, "status", "", "pending, processing, shipped, delivered or cancelled")
	fs.StringVar(&f.From, "from", "", "first day, YYYY-MM-DD")
	fs.StringVar(&f.To, "to", "", "last day, YYYY-MM-DD")
	pages := fs.Int("pages", 1, "pages to load, 0 for all")
	if err := fs.Parse(args); err != nil {
		return err
	}
	f.Status = api.OrderStatus(status)
	if status != "" && !f.Status.Valid() {
		return fmt.Errorf("unknown status %q", status)
	}

	p := app.Orders(f)
	orders, err := loadAll(ctx, p, *pages)
	if err != nil {
		return err
	}
	printOrders(out, orders)
	if p.HasMore() {
		fmt.Fprintln(out, "more orders may exist, use -pages for more")
	}
	return nil
}

func runOrder(ctx context.Context, app *admin.App, args []string, out io.Writer) error {
	fs := newFlags("order")
	id := fs.String("id", "", "order id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required("id", *id); err != nil {
		return err
	}

	o, err := app.Order(ctx, *id)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "order %s for %s: %s, %.2f\n", o.ID, o.UserID, o.Status, o.Total)
	table(out, "PRODUCT\tNAME\tQTY\tPRICE", func(w io.Writer) {
		for _, it := range o.Items {
			fmt.Fprintf(w, "%s\t%s\t%d\t%.2f\n", it.ProductID, it.Name, it.Quantity, it.Price)
		}
	})
	return nil
}

func runOrderStatus(ctx context.Context, app *admin.App, args []string, out io.Writer) error {
	fs := newFlags("order-status")
	id := fs.String("id", "", "order id")
	status := fs.String("status", "", "new status")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := errors.Join(required("id", *id), required("status", *status)); err != nil {
		return err
	}

	o, err := app.UpdateOrderStatus(ctx, *id, api.OrderStatus(*status))
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "order %s is now %s\n", o.ID, o.Status)
	return nil
}

func runDashboard(ctx context.Context, app *admin.App, args []string, out io.Writer) error {
	fs := newFlags("dashboard")
	var r api.DateRange
	fs.StringVar(&r.From, "from", "", "first day, YYYY-MM-DD")
	fs.StringVar(&r.To, "to", "", "last day, YYYY-MM-DD")
	if err := fs.Parse(args); err != nil {
		return err
	}

	d, err := app.Dashboard(ctx, r)
	if err != nil {
		return err
	}
	s := d.Stats
	fmt.Fprintf(out, "products %d (out of stock %d, low %d)\n", s.Products, s.OutOfStock, s.LowStock)
	fmt.Fprintf(out, "orders %d (pending %d), users %d, revenue %.2f\n", s.Orders, s.PendingOrders, s.Users, s.Revenue)
	fmt.Fprintf(out, "sales: %d orders, %d items, %.2f\n\n", d.Sales.Orders, d.Sales.ItemsSold, d.Sales.Revenue)
	table(out, "BRAND\tPRODUCTS\tSOLD\tREVENUE", func(w io.Writer) {
		for _, b := range d.Brands {
			fmt.Fprintf(w, "%s\t%d\t%d\t%.2f\n", b.Brand, b.Products, b.Sold, b.Revenue)
		}
	})
	return nil
}

func runCategories(ctx context.Context, app *admin.App, _ []string, out io.Writer) error {
	tree, err := app.Categories(ctx)
	if err != nil {
		return err
	}
	var walk func(nodes []admin.CategoryNode, depth int)
	walk = func(nodes []admin.CategoryNode, depth int) {
		for _, n := range nodes {
			fmt.Fprintf(out, "%s%s  %s\n", strings.Repeat("  ", depth), n.ID, n.Name)
			walk(n.Children, depth+1)
		}
	}
	walk(tree, 0)
	return nil
}

func runUsers(ctx context.Context, app *admin.App, args []string, out io.Writer) error {
	fs := newFlags("users")
	search := fs.String("search", "", "search name and email")
	if err := fs.Parse(args); err != nil {
		return err
	}
	users, err := loadAll(ctx, app.Users(*search), 0)
	if err != nil {
		return err
	}
	table(out, "ID\tNAME\tEMAIL\tORDERS", func(w io.Writer) {
		for _, u := range users {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", u.ID, u.Name, u.Email, u.OrderCount)
		}
	})
	return nil
}

func runUserOrders(ctx context.Context, app *admin.App, args []string, out io.Writer) error {
	fs := newFlags("user-orders")
	id := fs.String("id", "", "user id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required("id", *id); err != nil {
		return err
	}
	orders, err := loadAll(ctx, app.UserOrders(*id), 0)
	if err != nil {
		return err
	}
	printOrders(out, orders)
	return nil
}
