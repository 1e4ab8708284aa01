// Command ledgerctl is the operator CLI: it seeds commission plans,
// onboards users, funds wallets and runs one-off reconciliation.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/alecthomas/kingpin/v2"
	"github.com/shopspring/decimal"

	"reseller-ledger/internal/app"
	"reseller-ledger/internal/config"
	"reseller-ledger/internal/domain"
	"reseller-ledger/internal/logger"
	"reseller-ledger/internal/service"
	"reseller-ledger/internal/utils"
)

var (
	cli        = kingpin.New("ledgerctl", "Operator tooling for the reseller ledger.")
	configPath = cli.Flag("config", "Path to configuration file").Short('c').Default("config/config.dev.yaml").String()

	seedCmd  = cli.Command("seed-plans", "Create commission plans and upsert their rates from a YAML file.")
	seedPath = seedCmd.Arg("file", "Seed file").Required().ExistingFile()

	addUserCmd    = cli.Command("add-user", "Onboard a user and open their wallet.")
	addUserName   = addUserCmd.Flag("name", "Display name").Required().String()
	addUserPhone  = addUserCmd.Flag("phone", "Phone number").String()
	addUserRole   = addUserCmd.Flag("role", "superadmin, admin, master, dealer or retailer").Required().Enum("superadmin", "admin", "master", "dealer", "retailer")
	addUserParent = addUserCmd.Flag("parent", "Onboarding parent user id").Int64()
	addUserPIN    = addUserCmd.Flag("pin", "Initial transaction PIN").String()

	assignCmd    = cli.Command("assign-plan", "Assign a commission plan to a user.")
	assignUser   = assignCmd.Flag("user", "User id").Required().Int64()
	assignPlanNm = assignCmd.Flag("plan", "Plan name").Required().String()
	assignBy     = assignCmd.Flag("by", "Assigning admin user id").Required().Int64()

	fundCmd    = cli.Command("fund-wallet", "Top up a user's wallet.")
	fundUser   = fundCmd.Flag("user", "User id").Required().Int64()
	fundAmount = fundCmd.Flag("amount", "Amount in rupees").Required().String()
	fundActor  = fundCmd.Flag("actor", "Operator user id").Required().Int64()
	fundNote   = fundCmd.Flag("note", "Ledger description").Default("wallet top-up").String()

	pinCmd  = cli.Command("set-pin", "Set a user's transaction PIN.")
	pinUser = pinCmd.Flag("user", "User id").Required().Int64()
	pinNew  = pinCmd.Flag("pin", "New PIN").Required().String()

	reprocessCmd = cli.Command("reprocess", "Distribute commission for one transaction.")
	reprocessTxn = reprocessCmd.Arg("txn", "Business transaction id").Required().String()

	refundCmd = cli.Command("complete-refund", "Retry the refund of a transaction stuck in refund_pending.")
	refundTxn = refundCmd.Arg("txn", "Business transaction id").Required().String()

	reconcileCmd  = cli.Command("reconcile", "Compare a wallet balance with its ledger.")
	reconcileUser = reconcileCmd.Arg("user", "User id").Required().Int64()
)

func main() {
	command := kingpin.MustParse(cli.Parse(os.Args[1:]))

	cfg, err := config.Load(*configPath)
	if err != nil {
		cli.Fatalf("failed to load configuration: %v", err)
	}
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)

	ctx := context.Background()
	a, err := app.New(ctx, cfg)
	if err != nil {
		cli.Fatalf("failed to initialize services: %v", err)
	}
	defer a.Close()

	if err := run(ctx, a, command); err != nil {
		a.Close()
		cli.Fatalf("%s: %v", command, err)
	}
}

func run(ctx context.Context, a *app.App, command string) error {
	switch command {
	case seedCmd.FullCommand():
		f, err := loadSeedFile(*seedPath)
		if err != nil {
			return err
		}
		n, err := seedPlans(ctx, a.Store, a.Plans, f)
		if err != nil {
			return err
		}
		fmt.Printf("seeded %d plans, %d rates\n", len(f.Plans), n)

	case addUserCmd.FullCommand():
		u, err := addUser(ctx, a, domain.Role(*addUserRole), *addUserName, *addUserPhone, *addUserParent, *addUserPIN)
		if err != nil {
			return err
		}
		fmt.Printf("user %d (%s) created\n", u.ID, u.Role)

	case assignCmd.FullCommand():
		plan, err := a.Store.Plans().GetByName(ctx, *assignPlanNm)
		if err != nil {
			return fmt.Errorf("plan %s: %w", *assignPlanNm, err)
		}
		if err := a.Plans.AssignPlan(ctx, *assignUser, plan.ID, *assignBy); err != nil {
			return err
		}
		fmt.Printf("plan %s assigned to user %d\n", plan.Name, *assignUser)

	case fundCmd.FullCommand():
		amount, err := utils.ParseAmount(*fundAmount)
		if err != nil {
			return err
		}
		balance, err := topUp(ctx, a.Wallets, *fundUser, amount, *fundActor, *fundNote)
		if err != nil {
			return err
		}
		fmt.Printf("credited %s, balance %s\n", utils.FormatINR(amount), utils.FormatINR(balance))

	case pinCmd.FullCommand():
		if err := a.Wallets.SetPIN(ctx, *pinUser, *pinNew); err != nil {
			return err
		}
		fmt.Printf("PIN updated for user %d\n", *pinUser)

	case reprocessCmd.FullCommand():
		ok, message := a.Distributor.Process(ctx, *reprocessTxn)
		fmt.Println(message)
		if !ok {
			return fmt.Errorf("commission not distributed")
		}

	case refundCmd.FullCommand():
		if err := a.Orchestrator.CompleteRefund(ctx, *refundTxn); err != nil {
			return err
		}
		fmt.Printf("transaction %s refunded\n", *refundTxn)

	case reconcileCmd.FullCommand():
		rec, err := a.Ledger.Reconcile(ctx, *reconcileUser)
		if err != nil {
			return err
		}
		fmt.Printf("user %d wallet %d: balance %s, ledger %s, consistent=%t\n",
			rec.UserID, rec.WalletID, rec.Balance.StringFixed(2), rec.LedgerSum.StringFixed(2), rec.Consistent)
		if !rec.Consistent {
			return fmt.Errorf("wallet does not match its ledger")
		}
	}
	return nil
}

func addUser(ctx context.Context, a *app.App, role domain.Role, name, phone string, parent int64, pin string) (*domain.User, error) {
	u := &domain.User{Name: name, Phone: phone, Role: role, Active: true}
	if parent != 0 {
		if _, err := a.Store.Users().GetByID(ctx, parent); err != nil {
			return nil, fmt.Errorf("parent %d: %w", parent, err)
		}
		u.CreatedBy = &parent
	}
	if err := a.Store.Users().Create(ctx, u); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	if _, err := a.Wallets.Open(ctx, u.ID); err != nil {
		return nil, err
	}
	if pin != "" {
		if err := a.Wallets.SetPIN(ctx, u.ID, pin); err != nil {
			return nil, err
		}
	}
	return u, nil
}

func topUp(ctx context.Context, wallets service.WalletService, userID int64, amount decimal.Decimal, actor int64, note string) (decimal.Decimal, error) {
	return wallets.Credit(ctx, service.CreditRequest{
		UserID:      userID,
		Amount:      amount,
		Category:    domain.CategoryTopup,
		Description: note,
		Reference:   service.NewReference("TOP"),
		ActorID:     actor,
	})
}
