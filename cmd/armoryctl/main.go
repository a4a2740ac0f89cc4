package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/rl1809/armory-atlas/internal/adapter/storage"
	"github.com/rl1809/armory-atlas/internal/config"
	"github.com/rl1809/armory-atlas/internal/core/domain"
	"github.com/rl1809/armory-atlas/internal/core/service"
	"github.com/rl1809/armory-atlas/internal/seed"
)

const usage = `usage: armoryctl <command> [flags]

commands:
  create-all                       create tables and views
  drop-all                         drop tables and views
  generate [products|users|items|loans] [-n count]
  stock <product-id> [size]        available items of a product and size
  search <text>                    search products by name, type or size
  available                        all product/size pairs in stock
  history <ssn>                    loans of a user
  loans [-n limit]                 most recent loans
  borrows                          loans per user
  borrow --ssn S (--item ID | --product P --size S) [--date YYYY-MM-DD]
  return (--item ID | --loan ID) [--date YYYY-MM-DD]
`

type app struct {
	store   storage.Store
	lending *service.LendingService
	catalog *service.CatalogService
	out     io.Writer
	logger  *zap.Logger
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load(".env")
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logger, err := cfg.NewLogger()
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := storage.Open(ctx, cfg)
	if err != nil {
		logger.Fatal("open storage", zap.Error(err))
	}
	defer closeStore()

	a := &app{
		store:   store,
		lending: service.NewLendingService(store, service.WithLogger(logger)),
		catalog: service.NewCatalogService(store, logger),
		out:     os.Stdout,
		logger:  logger,
	}
	if err := a.run(ctx, os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		closeStore()
		os.Exit(1)
	}
}

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "create-all":
		return a.store.CreateAll(ctx)
	case "drop-all":
		return a.store.DropAll(ctx)
	case "generate":
		return a.generate(ctx, args)
	case "stock":
		return a.stock(ctx, args)
	case "search":
		rows, err := a.catalog.SearchItems(ctx, strings.Join(args, " "))
		if err != nil {
			return err
		}
		a.printStock(rows)
		return nil
	case "available":
		rows, err := a.catalog.ListAvailableItems(ctx)
		if err != nil {
			return err
		}
		a.printStock(rows)
		return nil
	case "history":
		if len(args) != 1 {
			return errors.New("history needs exactly one ssn")
		}
		loans, err := a.catalog.LoanHistoryForUser(ctx, args[0])
		if err != nil {
			return err
		}
		a.printLoans(loans)
		return nil
	case "loans":
		return a.loans(ctx, args)
	case "borrows":
		counts, err := a.catalog.BorrowCountsByUser(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SSN\tNAME\tTOTAL\tACTIVE")
		for _, c := range counts {
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", c.SSN, c.Name, c.Total, c.Active)
		}
		return w.Flush()
	case "borrow":
		return a.borrow(ctx, args)
	case "return":
		return a.giveBack(ctx, args)
	case "help", "-h", "--help":
		fmt.Fprint(a.out, usage)
		return nil
	default:
		return fmt.Errorf("unknown command %q\n%s", cmd, usage)
	}
}

func (a *app) generate(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("generate", pflag.ContinueOnError)
	n := fs.IntP("count", "n", 100, "number of users, items or loans")
	if err := fs.Parse(args); err != nil {
		return err
	}

	gen := seed.NewGenerator(a.lending, a.catalog, nil, a.logger)
	what := fs.Arg(0)
	switch what {
	case "":
		return gen.All(ctx, *n)
	case "products":
		_, err := gen.Products(ctx)
		return err
	case "users":
		_, err := gen.Users(ctx, *n)
		return err
	case "items":
		_, err := gen.Items(ctx, *n)
		return err
	case "loans":
		_, err := gen.Loans(ctx, *n)
		return err
	default:
		return fmt.Errorf("cannot generate %q", what)
	}
}

func (a *app) stock(ctx context.Context, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return errors.New("stock needs a product id and an optional size")
	}
	size := ""
	if len(args) == 2 {
		size = args[1]
	}
	n, err := a.catalog.StockForProductSize(ctx, args[0], size)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, n)
	return nil
}

func (a *app) loans(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("loans", pflag.ContinueOnError)
	limit := fs.IntP("limit", "n", 10, "number of loans, 0 for all")
	if err := fs.Parse(args); err != nil {
		return err
	}
	loans, err := a.catalog.ListLoans(ctx, *limit)
	if err != nil {
		return err
	}
	a.printLoans(loans)
	return nil
}

func (a *app) borrow(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("borrow", pflag.ContinueOnError)
	ssn := fs.String("ssn", "", "borrower")
	item := fs.String("item", "", "item id")
	product := fs.String("product", "", "product id, lends any free item")
	size := fs.String("size", "", "size, with --product")
	date := fs.String("date", "", "borrow date YYYY-MM-DD, default today")
	if err := fs.Parse(args); err != nil {
		return err
	}
	day, err := parseDate(*date)
	if err != nil {
		return err
	}

	var loan domain.Loan
	if *item != "" {
		loan, err = a.lending.Borrow(ctx, *ssn, *item, day)
	} else {
		loan, err = a.lending.BorrowAny(ctx, *ssn, *product, *size, day)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "loan %s: item %s to %s on %s\n",
		loan.ID, loan.ItemID, loan.SSN, loan.BorrowDate.Format(time.DateOnly))
	return nil
}

func (a *app) giveBack(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("return", pflag.ContinueOnError)
	item := fs.String("item", "", "item id")
	loanID := fs.String("loan", "", "loan id")
	date := fs.String("date", "", "return date YYYY-MM-DD, default today")
	if err := fs.Parse(args); err != nil {
		return err
	}
	day, err := parseDate(*date)
	if err != nil {
		return err
	}

	var loan domain.Loan
	switch {
	case *item != "":
		loan, err = a.lending.ReturnItem(ctx, *item, day)
	case *loanID != "":
		loan, err = a.lending.ReturnLoan(ctx, *loanID, day)
	default:
		return errors.New("return needs --item or --loan")
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "loan %s: item %s returned on %s\n",
		loan.ID, loan.ItemID, loan.ReturnDate.Format(time.DateOnly))
	return nil
}

func (a *app) printStock(rows []domain.StockRow) {
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PRODUCT\tNAME\tTYPE\tSIZE\tIN STOCK")
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", r.ProductID, r.ProductName, r.ProductType, r.Size, r.Quantity)
	}
	w.Flush()
}

func (a *app) printLoans(loans []domain.LoanDetail) {
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "LOAN\tSSN\tNAME\tPRODUCT\tSIZE\tBORROWED\tRETURNED")
	for _, l := range loans {
		returned := "-"
		if l.ReturnDate != nil {
			returned = l.ReturnDate.Format(time.DateOnly)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			l.LoanID, l.SSN, l.Name, l.ProductName, l.Size, l.BorrowDate.Format(time.DateOnly), returned)
	}
	w.Flush()
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q: %w", s, err)
	}
	return t, nil
}
