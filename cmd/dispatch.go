package cmd

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/openprocure/rfp-pilot/internal/dispatch"
	"github.com/openprocure/rfp-pilot/internal/logger"
	"github.com/openprocure/rfp-pilot/internal/rfp"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	PromptSendNow = "Send now"
	PromptBack    = "back"
)

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Interactively send an RFP out to vendors over email",
	Run: func(cmd *cobra.Command, _ []string) {
		runDispatch(cmd)
	},
}

func init() {
	rootCmd.AddCommand(dispatchCmd)

	dispatchCmd.Flags().StringP("template", "t", "", "email body template. Default is a built-in one.")

	viper.BindPFlag("dispatch.template", dispatchCmd.Flags().Lookup("template"))
}

// runDispatch is the operator-facing path for sending an RFP without the HTTP
// API. It walks through RFP and vendor selection and then mails every chosen
// vendor with the tagged subject.
func runDispatch(_ *cobra.Command) {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	if config == nil {
		logger.Fatal("config is required")
	}

	st := openStore(config, logger)

	mail := newMailer(config, logger)

	dispatcher := dispatch.New(dispatch.Deps{
		RFPs:     st.RFPs,
		Vendors:  st.Vendors,
		Statuses: st.Statuses,
		Users:    st.Users,
		Mailer:   mail,
		Logger:   logger,
	})

	record, err := selectRFP(ctx, st.RFPs)
	if err != nil {
		logger.Fatal("selecting an rfp", zap.Error(err))
	}
	if record == nil {
		logger.Info("exiting", zap.String("reason", "no rfp selected"))
		return
	}

	vendors, err := st.Vendors.List(ctx)
	if err != nil {
		logger.Fatal("listing vendors", zap.Error(err))
	}
	if len(vendors) == 0 {
		logger.Info("exiting", zap.String("reason", "no vendors registered"))
		return
	}

	vendorIDs, err := selectVendors(vendors)
	if err != nil {
		logger.Fatal("selecting vendors", zap.Error(err))
	}
	if len(vendorIDs) == 0 {
		logger.Info("exiting", zap.String("reason", "no vendors selected"))
		return
	}

	results, err := dispatcher.Send(ctx, record.ID, vendorIDs, viper.GetString("dispatch.template"))
	if err != nil {
		logger.Fatal("dispatching the rfp", zap.Error(err))
	}

	for _, result := range results {
		logger.Info("dispatch result",
			zap.Uint("vendor_id", result.VendorID),
			zap.String("email", result.Email),
			zap.String("status", result.Status),
		)
	}
}

func selectRFP(ctx context.Context, repo interface {
	List(ctx context.Context) ([]*rfp.RFP, error)
},
) (*rfp.RFP, error) {
	records, err := repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list rfps: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	items := make([]string, 0, len(records))
	for _, record := range records {
		items = append(items, fmt.Sprintf("%d %s", record.ID, record.Title))
	}

	rfpPrompt := promptui.Select{
		Label: "Choose an RFP and press ENTER",
		Items: append(items, PromptBack),
	}

	_, selected, err := rfpPrompt.Run()
	if err != nil {
		return nil, err
	}
	if selected == PromptBack {
		return nil, nil
	}

	id, err := strconv.ParseUint(strings.Split(selected, " ")[0], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("parse selected rfp id: %w", err)
	}

	for _, record := range records {
		if record.ID == uint(id) {
			return record, nil
		}
	}

	return nil, fmt.Errorf("there is no such rfp id %d", id)
}

// selectVendors loops until the operator picks Send now or backs out. Picking
// a vendor twice is harmless since the id set is deduplicated.
func selectVendors(vendors []*rfp.Vendor) ([]uint, error) {
	chosen := make(map[uint]bool)

	for {
		items := make([]string, 0, len(vendors)+2)
		for _, v := range vendors {
			label := fmt.Sprintf("%d %s / %s", v.ID, v.Name, v.Email)
			if chosen[v.ID] {
				label += " (selected)"
			}
			items = append(items, label)
		}

		if len(chosen) > 0 {
			items = append(items, PromptSendNow)
		}

		vendorPrompt := promptui.Select{
			Label: "Choose vendors and press ENTER",
			Items: append(items, PromptBack),
		}

		_, selected, err := vendorPrompt.Run()
		if err != nil {
			return nil, err
		}

		switch selected {
		case PromptBack:
			return nil, nil
		case PromptSendNow:
			ids := make([]uint, 0, len(chosen))
			for _, v := range vendors {
				if chosen[v.ID] {
					ids = append(ids, v.ID)
				}
			}
			return ids, nil
		default:
			id, err := strconv.ParseUint(strings.Split(selected, " ")[0], 10, 32)
			if err != nil {
				return nil, fmt.Errorf("parse selected vendor id: %w", err)
			}
			chosen[uint(id)] = true
		}
	}
}
